// Package embed defines the embedding oracle used by similarity-based
// filtering and selection, plus the cosine arithmetic on its vectors.
package embed

import (
	"context"
	"math"
)

// Oracle produces one embedding vector per input text, in input order.
// Implementations must be deterministic for identical inputs so that
// filtering decisions are reproducible across runs.
type Oracle interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Cosine returns the cosine similarity of a and b, clamped to [-1, 1].
// Mismatched lengths, empty vectors, and zero vectors all score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// MaxCosine returns the highest cosine similarity between v and any vector
// in vs. An empty vs scores -1, below any usable threshold.
func MaxCosine(v []float32, vs [][]float32) float64 {
	best := -1.0
	for _, w := range vs {
		if sim := Cosine(v, w); sim > best {
			best = sim
		}
	}
	return best
}
