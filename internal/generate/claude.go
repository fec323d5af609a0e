package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dgallion1/testbook/internal/metrics"
	"github.com/dgallion1/testbook/internal/testbook"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-5"
	defaultRateLimit = 2.0
	maxTokens        = 4096
)

// ClaudeConfig configures a ClaudeClient. Zero values pick the defaults.
type ClaudeConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	RateLimit float64 // Requests per second.
	Timeout   time.Duration
	Stats     *LLMStats
}

// ClaudeClient calls the Anthropic Messages API for test procedures.
type ClaudeClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	stats      *LLMStats
}

func NewClaudeClient(cfg ClaudeConfig) (*ClaudeClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Stats == nil {
		cfg.Stats = NewLLMStats(time.Hour)
	}
	return &ClaudeClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		stats:      cfg.Stats,
	}, nil
}

// Model returns the model name sent with each request.
func (c *ClaudeClient) Model() string { return c.model }

// Stats returns the client's rolling latency window.
func (c *ClaudeClient) Stats() *LLMStats { return c.stats }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate asks the model for procedures covering req.Feature.
func (c *ClaudeClient) Generate(ctx context.Context, req Request) ([]testbook.RawRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	text, err := c.complete(ctx, BuildPrompt(req))
	elapsed := time.Since(start)
	c.stats.Record(elapsed, err)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.Get().GenerationDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if err != nil {
		return nil, err
	}

	return ParseRecords(text)
}

func (c *ClaudeClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: 0.1,
		System:      SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("claude api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("claude api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("claude error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	for _, block := range apiResp.Content {
		if block.Type == "text" || block.Type == "" {
			return block.Text, nil
		}
	}
	return "", errors.New("empty response from claude")
}

// Close releases idle connections.
func (c *ClaudeClient) Close() {
	c.httpClient.CloseIdleConnections()
}

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// stripCodeBlock returns the body of the first fenced block in s, or s
// trimmed when there is none.
func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// ParseRecords decodes model output into records. The output may be wrapped in
// a code fence and may hold a JSON array or a single object. Array elements
// that are not objects come back as nil records so the normalizer drops them
// at their original index.
func ParseRecords(text string) ([]testbook.RawRecord, error) {
	text = stripCodeBlock(text)

	var raw any
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse procedures json: %w (raw: %s)", err, truncate(text, 200))
	}

	switch v := raw.(type) {
	case map[string]any:
		return []testbook.RawRecord{v}, nil
	case []any:
		out := make([]testbook.RawRecord, 0, len(v))
		for _, item := range v {
			m, _ := item.(map[string]any)
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parse procedures json: expected array or object, got %T", raw)
	}
}
