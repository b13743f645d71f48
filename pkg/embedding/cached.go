package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/harun/twinself/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProvider memoises another provider's vectors in an LRU keyed by text digest.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

// NewCachedProvider wraps inner with a cache of size entries.
func NewCachedProvider(inner Provider, size int) (*CachedProvider, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

func (c *CachedProvider) Name() string { return c.inner.Name() }

func (c *CachedProvider) Dimension() int { return c.inner.Dimension() }

// Len returns the number of cached vectors.
func (c *CachedProvider) Len() int { return c.cache.Len() }

func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var (
		missIdx  []int
		missText []string
	)
	for i, text := range texts {
		if vec, ok := c.cache.Get(cacheKey(text)); ok {
			observability.RecordEmbeddingCache(true)
			results[i] = vec
			continue
		}
		observability.RecordEmbeddingCache(false)
		missIdx = append(missIdx, i)
		missText = append(missText, text)
	}

	if len(missText) == 0 {
		return results, nil
	}

	vectors, err := c.inner.Embed(ctx, missText)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missText) {
		return nil, fmt.Errorf("provider %s returned %d vectors for %d texts", c.inner.Name(), len(vectors), len(missText))
	}
	for i, idx := range missIdx {
		c.cache.Add(cacheKey(texts[idx]), vectors[i])
		results[idx] = vectors[i]
	}
	return results, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
