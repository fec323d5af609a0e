package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/testbook/internal/api"
	"github.com/dgallion1/testbook/internal/config"
	"github.com/dgallion1/testbook/internal/extract"
	"github.com/dgallion1/testbook/internal/generate"
	"github.com/dgallion1/testbook/internal/index"
	"github.com/dgallion1/testbook/internal/pipeline"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the processing workers",
		Long: `Run the HTTP API and the processing workers.

Configuration comes from the environment and an optional .env file:
TESTBOOK_API_KEY is required; ANTHROPIC_API_KEY enables generation and
INDEX_URL enables chunk indexing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ex, err := newExtractor(cfg.PolicyFile, false)
	if err != nil {
		return err
	}

	// Generation is optional.
	var (
		gen    generate.Generator = generate.Disabled{}
		llm    api.StatsSource
		claude *generate.ClaudeClient
	)
	if cfg.AnthropicAPIKey != "" {
		claude, err = generate.NewClaudeClient(generate.ClaudeConfig{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.AnthropicModel,
			RateLimit: cfg.GenerationRateLimit,
		})
		if err != nil {
			return err
		}
		defer claude.Close()
		gen, llm = claude, claude
	} else {
		log.Warn("ANTHROPIC_API_KEY not set, every feature gets the fallback procedure")
	}

	var idx *index.Client
	if cfg.IndexURL != "" {
		idx = index.NewClient(cfg.IndexURL, cfg.IndexAPIKey)
		defer idx.Close()
	}

	orch, err := pipeline.NewOrchestrator(cfg, gen, idx, ex, log)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	orch.Start(ctx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewServer(orch, llm, log, cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting testbookd", "port", cfg.Port, "generation", claude != nil, "index", idx != nil)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		orch.Stop()
		if err != nil {
			log.Error("server error", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	orch.Stop()
	return nil
}

// newExtractor builds the pattern extractor, loading a YAML policy when a
// path is given.
func newExtractor(policyFile string, dedupe bool) (*extract.Extractor, error) {
	opts := extract.Options{Dedupe: dedupe}
	if policyFile != "" {
		p, err := extract.LoadPolicy(policyFile)
		if err != nil {
			return nil, err
		}
		opts.Policy = &p
	}
	return extract.New(opts), nil
}
