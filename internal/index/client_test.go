package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dgallion1/testbook/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	mu      sync.Mutex
	nodes   map[string]json.RawMessage
	sources map[string]string
	links []linkRequest
	auth  []string
}

func newFakeIndex(t *testing.T) (*fakeIndex, *Client) {
	t.Helper()
	f := &fakeIndex{nodes: map[string]json.RawMessage{}, sources: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL+"/", "key")
	t.Cleanup(c.Close)
	return f, c
}

func (f *fakeIndex) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))

	if r.URL.Path == "/links" {
		var req linkRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.links = append(f.links, req)
		w.WriteHeader(http.StatusCreated)
		return
	}

	key := r.URL.Path[len("/kv/"):]
	switch r.Method {
	case http.MethodPut:
		var req struct {
			Value  json.RawMessage `json:"value"`
			Source string          `json:"source"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.nodes[key] = req.Value
		f.sources[key] = req.Source
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		prefix := key[:len(key)-1] // trailing "*"
		var nodes []map[string]any
		for k, v := range f.nodes {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
				nodes = append(nodes, map[string]any{"key_path": k, "value": v})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"nodes": nodes})
	case http.MethodDelete:
		for k := range f.nodes {
			if len(k) > len(key) && k[:len(key)] == key {
				delete(f.nodes, k)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestClient_PutListDelete(t *testing.T) {
	f, c := newFakeIndex(t)
	ctx := context.Background()

	a := document.Chunk{ID: "0", Content: "first", Section: "Introduction"}
	b := document.Chunk{ID: "1", Content: "second", Section: "SECURITY"}
	doc1 := &document.Structured{ID: "doc-1"}
	doc2 := &document.Structured{ID: "doc-2"}
	require.NoError(t, c.PutChunk(ctx, doc1, a))
	require.NoError(t, c.PutChunk(ctx, doc1, b))
	require.NoError(t, c.PutChunk(ctx, doc2, a))
	require.NoError(t, c.LinkChunks(ctx, "doc-1", a, b))

	entries, err := c.ListChunks(ctx, "doc-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	contents := []string{entries[0].Chunk.Content, entries[1].Chunk.Content}
	assert.ElementsMatch(t, []string{"first", "second"}, contents)

	// The same per-pass chunk id stays distinct across documents.
	assert.Equal(t, "doc-1/0", f.sources[ChunkKey("doc-1", "0")])
	assert.Equal(t, "doc-2/0", f.sources[ChunkKey("doc-2", "0")])

	require.Len(t, f.links, 1)
	assert.Equal(t, ChunkKey("doc-1", "0"), f.links[0].From)
	assert.Equal(t, ChunkKey("doc-1", "1"), f.links[0].To)
	assert.Equal(t, "SECURITY", f.links[0].Summary)

	require.NoError(t, c.DeleteDocument(ctx, "doc-1"))
	entries, err = c.ListChunks(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = c.ListChunks(ctx, "doc-2", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	for _, h := range f.auth {
		assert.Equal(t, "Bearer key", h)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "")

	err := c.PutChunk(context.Background(), &document.Structured{ID: "doc"}, document.Chunk{ID: "0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestChunkKey_Escapes(t *testing.T) {
	assert.Equal(t, "testbook/docs/a%2Fb/chunks/3", ChunkKey("a/b", "3"))
}
