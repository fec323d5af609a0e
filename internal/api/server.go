// Package api exposes the testbook pipeline over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dgallion1/testbook/internal/config"
	"github.com/dgallion1/testbook/internal/generate"
	"github.com/dgallion1/testbook/internal/pipeline"
	"github.com/dgallion1/testbook/internal/testbook"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsSource reports generation latency. *generate.ClaudeClient implements it.
type StatsSource interface {
	Model() string
	Stats() *generate.LLMStats
}

// Server is the HTTP API server for testbook.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	llm          StatsSource // Nil when generation is disabled.
	normalizer   *testbook.Normalizer
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. llm may be nil.
func NewServer(orch *pipeline.Orchestrator, llm StatsSource, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		llm:          llm,
		normalizer:   testbook.NewNormalizer(log),
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey))

		r.Route("/api/documents", func(r chi.Router) {
			r.Post("/", s.handleUpload)
			r.Post("/batch", s.handleBatchUpload)
			r.Get("/{jobID}/status", s.handleStatus)
			r.Get("/{jobID}", s.handleGetDocument)
			r.Get("/{jobID}/testbook", s.handleGetTestbook)
			r.Get("/{jobID}/chunks", s.handleListChunks)
			r.Delete("/{jobID}", s.handleDeleteDocument)
		})

		r.Post("/api/testbooks/normalize", s.handleNormalize)
		r.Post("/api/testbooks/validate", s.handleValidate)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
		"jobs":        s.orchestrator.JobCount(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
