// Package index pushes document chunks to an external key-value index so
// they can be retrieved as generation context.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgallion1/testbook/internal/document"
)

// Client talks to the index's HTTP API. Chunks live under
// testbook/docs/{docID}/chunks/{chunkID}.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// nodeRequest is the body for PUT /kv/{key}.
type nodeRequest struct {
	Value      any    `json:"value"`
	MemoryType string `json:"memory_type,omitempty"`
	Source     string `json:"source,omitempty"`
}

// linkRequest is the body for PUT /links.
type linkRequest struct {
	From    string  `json:"from_key"`
	To      string  `json:"to_key"`
	Weight  float64 `json:"weight"`
	Summary string  `json:"summary,omitempty"`
}

// Entry is one indexed chunk.
type Entry struct {
	Key   string         `json:"key_path"`
	Chunk document.Chunk `json:"value"`
}

func docKey(docID string) string {
	return "testbook/docs/" + url.PathEscape(docID)
}

// ChunkKey is the index key for one chunk.
func ChunkKey(docID, chunkID string) string {
	return docKey(docID) + "/chunks/" + url.PathEscape(chunkID)
}

// PutChunk stores or replaces one chunk of doc. The node's source is the
// chunk's document-scoped id.
func (c *Client) PutChunk(ctx context.Context, doc *document.Structured, chunk document.Chunk) error {
	key := ChunkKey(doc.ID, chunk.ID)
	req := nodeRequest{Value: chunk, MemoryType: "document_chunk", Source: doc.ScopedID(chunk.ID)}
	if err := c.send(ctx, http.MethodPut, "/kv/"+key, req, nil, http.StatusOK, http.StatusCreated); err != nil {
		return fmt.Errorf("put chunk %s: %w", key, err)
	}
	return nil
}

// LinkChunks records that chunk to follows chunk from in docID.
func (c *Client) LinkChunks(ctx context.Context, docID string, from, to document.Chunk) error {
	req := linkRequest{
		From:    ChunkKey(docID, from.ID),
		To:      ChunkKey(docID, to.ID),
		Weight:  1,
		Summary: to.Section,
	}
	if err := c.send(ctx, http.MethodPut, "/links", req, nil, http.StatusOK, http.StatusCreated); err != nil {
		return fmt.Errorf("link chunks %s -> %s: %w", from.ID, to.ID, err)
	}
	return nil
}

// ListChunks returns the indexed chunks of docID, at most limit when limit > 0.
func (c *Client) ListChunks(ctx context.Context, docID string, limit int) ([]Entry, error) {
	path := "/kv/" + docKey(docID) + "/chunks/*"
	if limit > 0 {
		path += "?limit=" + url.QueryEscape(fmt.Sprintf("%d", limit))
	}
	var result struct {
		Nodes []Entry `json:"nodes"`
	}
	if err := c.send(ctx, http.MethodGet, path, nil, &result, http.StatusOK); err != nil {
		return nil, fmt.Errorf("list chunks %s: %w", docID, err)
	}
	return result.Nodes, nil
}

// DeleteDocument removes every indexed chunk of docID.
func (c *Client) DeleteDocument(ctx context.Context, docID string) error {
	path := "/kv/" + docKey(docID) + "?children=true"
	if err := c.send(ctx, http.MethodDelete, path, nil, nil, http.StatusOK, http.StatusNoContent, http.StatusNotFound); err != nil {
		return fmt.Errorf("delete document %s: %w", docID, err)
	}
	return nil
}

// send issues one request. A non-nil in is sent as JSON and a non-nil out is
// decoded from the response body.
func (c *Client) send(ctx context.Context, method, path string, in, out any, ok ...int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	accepted := false
	for _, code := range ok {
		if resp.StatusCode == code {
			accepted = true
			break
		}
	}
	if !accepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
