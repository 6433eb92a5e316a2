// Package selection bounds a candidate pool to a fixed-size concept set.
// Each method has one policy: greedy diversity maximization, per-class
// discriminability ranking, and the embedding-free relaxed rerank.
package selection

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cognicore/conceptgen/pkg/conceptgen/embed"
	"github.com/cognicore/conceptgen/pkg/conceptgen/filter"
	"github.com/cognicore/conceptgen/pkg/conceptgen/internalerr"
)

// visualIndicators raise a concept's relaxed rerank score when any of them
// appears as a substring.
var visualIndicators = []string{"color", "shape", "size", "texture", "pattern", "surface", "material"}

// Selector applies the embedding-backed selection policies.
type Selector struct {
	oracle          embed.Oracle
	lengthThreshold int
	fallback        bool
	logger          *log.Logger
}

// New creates a Selector. When fallback is set, an unavailable oracle
// degrades to plain order-preserving truncation instead of failing. A nil
// logger is silent.
func New(oracle embed.Oracle, lengthThreshold int, fallback bool, logger *log.Logger) *Selector {
	return &Selector{oracle: oracle, lengthThreshold: lengthThreshold, fallback: fallback, logger: logger}
}

// Diversify picks up to k concepts from pool by greedy farthest-point
// selection in embedding space: the first candidate seeds the set, then the
// candidate with the largest distance to its nearest selected neighbor is
// added until k are chosen. Pool order breaks ties.
func (s *Selector) Diversify(ctx context.Context, pool []string, k int) ([]string, error) {
	cands := s.prefilter(pool)
	if k <= 0 || len(cands) == 0 {
		return nil, nil
	}
	if len(cands) <= k {
		return cands, nil
	}

	vecs, err := s.oracle.Embed(ctx, cands)
	if err != nil {
		if s.fallback {
			s.logf("diversity selection degraded to truncation: %v", err)
			return cands[:k], nil
		}
		return nil, fmt.Errorf("%w: %v", internalerr.ErrEmbed, err)
	}

	selected := []int{0}
	chosen := make([]bool, len(cands))
	chosen[0] = true
	for len(selected) < k {
		bestIdx := -1
		bestDist := -1.0
		for idx := range cands {
			if chosen[idx] {
				continue
			}
			nearest := math.Inf(1)
			for _, sel := range selected {
				if d := 1 - embed.Cosine(vecs[idx], vecs[sel]); d < nearest {
					nearest = d
				}
			}
			if nearest > bestDist {
				bestDist = nearest
				bestIdx = idx
			}
		}
		if bestIdx < 0 {
			break
		}
		chosen[bestIdx] = true
		selected = append(selected, bestIdx)
	}

	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = cands[idx]
	}
	return out, nil
}

// RankDiscriminability scores each concept by how much closer it sits to
// its own class label than to the nearest other class label, then keeps the
// top k. A pool that already fits within k comes back in pool order without
// consulting the oracle. Earlier pool position breaks score ties.
func (s *Selector) RankDiscriminability(ctx context.Context, pool []string, class string, classes []string, k int) ([]string, error) {
	cands := s.prefilter(pool)
	if k <= 0 {
		return nil, nil
	}

	lowerClass := strings.ToLower(class)
	kept := make([]string, 0, len(cands))
	for _, c := range cands {
		scrubbed := filter.ScrubClassName(c, class)
		if scrubbed == "" || strings.Contains(scrubbed, lowerClass) {
			continue
		}
		kept = append(kept, scrubbed)
	}
	if len(kept) <= k {
		return kept, nil
	}

	conceptVecs, err := s.oracle.Embed(ctx, kept)
	if err != nil {
		return s.rankFallback(kept, k, err)
	}
	classVecs, err := s.oracle.Embed(ctx, classes)
	if err != nil {
		return s.rankFallback(kept, k, err)
	}

	targetIdx := 0
	for i, name := range classes {
		if name == class {
			targetIdx = i
			break
		}
	}

	scores := make([]float64, len(kept))
	for i := range kept {
		target := embed.Cosine(conceptVecs[i], classVecs[targetIdx])
		other := 0.0
		seen := false
		for j, vec := range classVecs {
			if j == targetIdx {
				continue
			}
			sim := embed.Cosine(conceptVecs[i], vec)
			if !seen || sim > other {
				other = sim
				seen = true
			}
		}
		scores[i] = target - other
	}

	order := make([]int, len(kept))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	out := make([]string, 0, k)
	for _, idx := range order[:k] {
		out = append(out, kept[idx])
	}
	return out, nil
}

func (s *Selector) rankFallback(kept []string, k int, err error) ([]string, error) {
	if !s.fallback {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrEmbed, err)
	}
	s.logf("discriminability ranking degraded to truncation: %v", err)
	return kept[:k], nil
}

// RerankRelaxed orders a relaxed pool by a token-band score and keeps the
// top k. One-to-three-word concepts score highest, visual vocabulary adds a
// point, and distinct words add a tenth each. Ties prefer shorter concepts,
// then earlier pool position. No embeddings are involved.
func RerankRelaxed(pool []string, k int) []string {
	if k <= 0 {
		return nil
	}

	type scored struct {
		concept string
		score   float64
		length  int
	}
	items := make([]scored, 0, len(pool))
	for _, c := range pool {
		words := strings.Fields(c)
		var score float64
		switch n := len(words); {
		case n >= 1 && n <= 3:
			score = 3
		case n <= 5:
			score = 2
		default:
			score = 1
		}

		lower := strings.ToLower(c)
		for _, ind := range visualIndicators {
			if strings.Contains(lower, ind) {
				score++
				break
			}
		}

		distinct := make(map[string]struct{}, len(words))
		for _, w := range strings.Fields(lower) {
			distinct[w] = struct{}{}
		}
		score += float64(len(distinct)) * 0.1

		items = append(items, scored{concept: c, score: score, length: utf8.RuneCountInString(c)})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].length < items[j].length
	})

	if len(items) > k {
		items = items[:k]
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.concept
	}
	return out
}

// prefilter deduplicates case-insensitively, first spelling wins, and drops
// over-length concepts.
func (s *Selector) prefilter(pool []string) []string {
	seen := make(map[string]struct{}, len(pool))
	out := make([]string, 0, len(pool))
	for _, c := range pool {
		key := strings.ToLower(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if utf8.RuneCountInString(c) <= s.lengthThreshold {
			out = append(out, c)
		}
	}
	return out
}

func (s *Selector) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
