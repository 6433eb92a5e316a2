// Package memcache wraps an embed.Oracle with an in-memory vector cache so
// repeated texts within one run are embedded only once.
package memcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/cognicore/conceptgen/pkg/conceptgen/embed"
)

// Cache is a caching embed.Oracle backed by a map. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	oracle  embed.Oracle
	vectors map[string][]float32
}

// New creates a cache around oracle.
func New(oracle embed.Oracle) *Cache {
	return &Cache{
		oracle:  oracle,
		vectors: make(map[string][]float32),
	}
}

// Embed returns cached vectors where available and asks the wrapped oracle
// for the rest in a single batch. Returned vectors are copies.
func (c *Cache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missIdx []int
	var missTexts []string
	c.mu.RLock()
	for i, text := range texts {
		if vec, ok := c.vectors[text]; ok {
			out[i] = copyVector(vec)
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		}
	}
	c.mu.RUnlock()

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.oracle.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("oracle returned %d vectors for %d texts", len(vecs), len(missTexts))
	}

	c.mu.Lock()
	for k, i := range missIdx {
		c.vectors[texts[i]] = copyVector(vecs[k])
		out[i] = vecs[k]
	}
	c.mu.Unlock()
	return out, nil
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
