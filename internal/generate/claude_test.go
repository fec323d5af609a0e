package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgallion1/testbook/internal/document"
	"github.com/dgallion1/testbook/internal/testbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loginRequest = Request{
	Feature: document.Feature{ID: "FEAT-000", Name: "User Login", Description: "log in with a password", Complexity: "medium"},
	Requirements: []document.Requirement{
		{ID: "REQ-000", Title: "Lockout", Description: "lock the account after five failures"},
	},
}

func claudeServer(t *testing.T, status int, text string) (*httptest.Server, *anthropicRequest) {
	t.Helper()
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(text))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": text}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func newTestClient(t *testing.T, baseURL string) *ClaudeClient {
	t.Helper()
	c, err := NewClaudeClient(ClaudeConfig{APIKey: "secret", BaseURL: baseURL, RateLimit: 1000})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestClaudeClient_Generate(t *testing.T) {
	srv, got := claudeServer(t, http.StatusOK, "```json\n[{\"title\": \"Valid login\", \"estimated_duration\": 15}]\n```")
	c := newTestClient(t, srv.URL)

	recs, err := c.Generate(context.Background(), loginRequest)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Valid login", recs[0]["title"])
	assert.Equal(t, json.Number("15"), recs[0]["estimated_duration"])

	assert.Equal(t, defaultModel, got.Model)
	assert.Equal(t, SystemPrompt, got.System)
	require.Len(t, got.Messages, 1)
	assert.Contains(t, got.Messages[0].Content, "Feature: User Login")
	assert.Contains(t, got.Messages[0].Content, "REQ-000 Lockout")

	snap := c.Stats().Snapshot()
	assert.Equal(t, 1, snap.Count)
	assert.Zero(t, snap.Errors)
}

func TestClaudeClient_RetryableStatus(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusBadGateway} {
		srv, _ := claudeServer(t, status, "slow down")
		c := newTestClient(t, srv.URL)

		_, err := c.Generate(context.Background(), loginRequest)
		var re *RetryableError
		require.True(t, errors.As(err, &re), "status %d: got %v", status, err)
		assert.Equal(t, status, re.StatusCode)
		assert.Equal(t, 1, c.Stats().Snapshot().Errors)
	}
}

func TestClaudeClient_ClientErrorNotRetryable(t *testing.T) {
	srv, _ := claudeServer(t, http.StatusBadRequest, `{"error":"bad"}`)
	c := newTestClient(t, srv.URL)

	_, err := c.Generate(context.Background(), loginRequest)
	require.Error(t, err)
	var re *RetryableError
	assert.False(t, errors.As(err, &re))
	assert.Contains(t, err.Error(), "status 400")
}

func TestClaudeClient_CanceledContext(t *testing.T) {
	srv, _ := claudeServer(t, http.StatusOK, "[]")
	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Generate(ctx, loginRequest)
	assert.Error(t, err)
}

func TestNewClaudeClient_RequiresKey(t *testing.T) {
	_, err := NewClaudeClient(ClaudeConfig{})
	assert.Error(t, err)
}

func TestParseRecords(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    int
		wantErr bool
	}{
		{"array", `[{"title":"a"},{"title":"b"}]`, 2, false},
		{"single object", `{"title":"a"}`, 1, false},
		{"fenced", "Here you go:\n```\n[{\"title\":\"a\"}]\n```", 1, false},
		{"non-object elements kept as nil", `[{"title":"a"}, "oops", 3]`, 3, false},
		{"empty array", `[]`, 0, false},
		{"scalar", `42`, 0, true},
		{"garbage", `not json`, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recs, err := ParseRecords(tc.text)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, recs, tc.want)
		})
	}
}

func TestParseRecords_NonObjectsReachNormalizer(t *testing.T) {
	recs, err := ParseRecords(`[{"title":"a","test_steps":["go"]}, "oops", 3]`)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Nil(t, recs[1])
	assert.Nil(t, recs[2])

	b := testbook.NewNormalizer(nil).NormalizeBatch(recs, loginRequest.Feature)
	require.Len(t, b.Procedures, 1)
	require.Len(t, b.Dropped, 2)
	assert.Equal(t, 1, b.Dropped[0].Index)
	assert.Equal(t, 2, b.Dropped[1].Index)
}

func TestBuildPrompt_LimitsContext(t *testing.T) {
	req := loginRequest
	long := strings.Repeat("x", 500)
	for i := 0; i < 5; i++ {
		req.Context = append(req.Context, document.Chunk{Content: long})
	}

	p := BuildPrompt(req)
	assert.Equal(t, 3, strings.Count(p, "- "+strings.Repeat("x", 200)+"...\n"))
	assert.Contains(t, p, "Complexity: medium")
	assert.NotContains(t, p, strings.Repeat("x", 201))
}

func TestDisabled(t *testing.T) {
	recs, err := Disabled{}.Generate(context.Background(), loginRequest)
	assert.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRetryableError_Truncates(t *testing.T) {
	err := &RetryableError{StatusCode: 503, Message: strings.Repeat("m", 300)}
	assert.Less(t, len(err.Error()), 260)
}
