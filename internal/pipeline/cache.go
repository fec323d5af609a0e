package pipeline

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dgallion1/testbook/internal/chunker"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ResultCache remembers finished results by content so a re-upload of the
// same text with the same chunking is answered without regenerating.
type ResultCache struct {
	cache *lru.Cache[string, *Result]
}

func NewResultCache(size int) (*ResultCache, error) {
	c, err := lru.New[string, *Result](size)
	if err != nil {
		return nil, fmt.Errorf("result cache: %w", err)
	}
	return &ResultCache{cache: c}, nil
}

// CacheKey combines a content hash with every setting that changes the
// result: chunking, the title override and the feature selection.
func CacheKey(contentHash string, cfg chunker.Config, opts JobOptions) string {
	features := slices.Clone(opts.Features)
	slices.Sort(features)
	return fmt.Sprintf("%s:%d:%d:%t:%q:%s", contentHash, cfg.ChunkSize, cfg.Overlap, cfg.PreserveContext,
		opts.Title, strings.Join(features, ","))
}

func (c *ResultCache) Get(key string) (*Result, bool) {
	return c.cache.Get(key)
}

func (c *ResultCache) Add(key string, r *Result) {
	c.cache.Add(key, r)
}

// RemoveDocument drops every entry produced for docID.
func (c *ResultCache) RemoveDocument(docID string) {
	for _, key := range c.cache.Keys() {
		if r, ok := c.cache.Peek(key); ok && r.Document != nil && r.Document.ID == docID {
			c.cache.Remove(key)
		}
	}
}

func (c *ResultCache) Len() int {
	return c.cache.Len()
}
