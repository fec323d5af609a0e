// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Generation
	AnthropicAPIKey       string // Empty disables the model; every feature gets the fallback procedure.
	AnthropicModel        string
	GenerationRateLimit   float64
	MaxFeatures           int
	MaxConcurrentGenerate int

	// Chunk index
	IndexURL           string // Empty disables indexing.
	IndexAPIKey        string
	MaxConcurrentIndex int

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Chunking defaults
	ChunkSize    int
	ChunkOverlap int

	// Job state
	JobTTL          time.Duration
	ResultCacheSize int

	// Extraction
	PolicyFile           string
	PDFFallbackPdftotext bool

	LogLevel slog.Level
}

// Load reads a .env file when present, then the environment. Out-of-range
// values fall back to their defaults.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("TESTBOOK_API_KEY"),

		AnthropicAPIKey:       os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:        envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		GenerationRateLimit:   envFloat("GENERATION_RATE_LIMIT", 2),
		MaxFeatures:           envInt("MAX_FEATURES", 20),
		MaxConcurrentGenerate: envInt("MAX_CONCURRENT_GENERATE", 3),

		IndexURL:           os.Getenv("INDEX_URL"),
		IndexAPIKey:        os.Getenv("INDEX_API_KEY"),
		MaxConcurrentIndex: envInt("MAX_CONCURRENT_INDEX", 10),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		ChunkSize:    envInt("CHUNK_SIZE", 1200),
		ChunkOverlap: envInt("CHUNK_OVERLAP", 200),

		JobTTL:          envDuration("JOB_TTL", 1*time.Hour),
		ResultCacheSize: envInt("RESULT_CACHE_SIZE", 256),

		PolicyFile:           os.Getenv("POLICY_FILE"),
		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		LogLevel: envLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if cfg.GenerationRateLimit <= 0 {
		cfg.GenerationRateLimit = 2
	}
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = 20
	}
	if cfg.MaxConcurrentGenerate <= 0 {
		cfg.MaxConcurrentGenerate = 3
	}
	if cfg.MaxConcurrentIndex <= 0 {
		cfg.MaxConcurrentIndex = 10
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1200
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = min(200, cfg.ChunkSize-1)
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.ResultCacheSize <= 0 {
		cfg.ResultCacheSize = 256
	}

	return cfg
}

// Validate checks the settings the HTTP server cannot run without.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("TESTBOOK_API_KEY is required")
	}
	if c.IndexURL != "" && !strings.HasPrefix(c.IndexURL, "http://") && !strings.HasPrefix(c.IndexURL, "https://") {
		return fmt.Errorf("INDEX_URL must be an http(s) URL, got %q", c.IndexURL)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envLevel(key string, fallback slog.Level) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(os.Getenv(key))); err != nil {
		return fallback
	}
	return l
}
