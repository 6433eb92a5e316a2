// Package filter applies the concept validity and deduplication rules that
// turn raw extracted candidates into a clean per-class concept set.
package filter

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cognicore/conceptgen/pkg/conceptgen/embed"
	"github.com/cognicore/conceptgen/pkg/conceptgen/internalerr"
)

// relaxedMaxLength is the longest concept the relaxed pass keeps, in runes.
const relaxedMaxLength = 50

// relaxedPoolCap bounds a class's relaxed pool after sorting.
const relaxedPoolCap = 1000

// Options control the rule thresholds.
type Options struct {
	// LengthThreshold is the maximum concept length in runes.
	LengthThreshold int
	// ClassSimThreshold drops concepts whose best similarity to any class
	// label reaches it.
	ClassSimThreshold float64
	// ConceptSimThreshold drops later near-duplicates of earlier concepts.
	ConceptSimThreshold float64
	// MaxWords is the word cap. Zero means five.
	MaxWords int
	// MinLength is the minimum concept length in runes. Zero means two.
	MinLength int
	// Blacklist lists generic words rejected outright, matched whole and
	// case-insensitively.
	Blacklist []string
	// EmbeddingFallback skips the similarity rules instead of failing when
	// the oracle is unavailable.
	EmbeddingFallback bool
}

// Target identifies whose candidates are being filtered.
type Target struct {
	Class   string
	Classes []string
}

// Chain applies the rules in a fixed order.
type Chain struct {
	oracle    embed.Oracle
	opts      Options
	blacklist map[string]struct{}
	logger    *log.Logger
}

// New creates a filter chain. A nil logger is silent.
func New(oracle embed.Oracle, opts Options, logger *log.Logger) *Chain {
	if opts.MaxWords <= 0 {
		opts.MaxWords = 5
	}
	if opts.MinLength <= 0 {
		opts.MinLength = 2
	}
	blacklist := make(map[string]struct{}, len(opts.Blacklist))
	for _, w := range opts.Blacklist {
		blacklist[strings.ToLower(w)] = struct{}{}
	}
	return &Chain{oracle: oracle, opts: opts, blacklist: blacklist, logger: logger}
}

// Apply runs the rules in order: length cap, class-label similarity,
// near-duplicate similarity, word cap, class-name scrub, and the generic
// word check. The first surviving spelling always wins. Embedding failures
// abort unless EmbeddingFallback is set, in which case the two similarity
// rules are skipped for this batch.
func (c *Chain) Apply(ctx context.Context, candidates []string, target Target) ([]string, error) {
	kept := make([]string, 0, len(candidates))
	for _, s := range candidates {
		if utf8.RuneCountInString(s) <= c.opts.LengthThreshold {
			kept = append(kept, s)
		}
	}

	semantic, err := c.applySimilarity(ctx, kept, target.Classes)
	if err != nil {
		if !c.opts.EmbeddingFallback {
			return nil, err
		}
		c.logf("similarity rules skipped for %q: %v", target.Class, err)
	} else {
		kept = semantic
	}

	out := kept[:0]
	for _, s := range kept {
		if len(strings.Fields(s)) <= c.opts.MaxWords {
			out = append(out, s)
		}
	}

	final := make([]string, 0, len(out))
	for _, s := range out {
		scrubbed := ScrubClassName(s, target.Class)
		if scrubbed == "" {
			continue
		}
		if !c.validConcept(scrubbed) {
			continue
		}
		final = append(final, scrubbed)
	}
	return final, nil
}

// applySimilarity runs the two embedding-backed rules. On any oracle error
// it returns the input untouched along with the error so the caller can
// decide whether to fall back.
func (c *Chain) applySimilarity(ctx context.Context, concepts []string, classes []string) ([]string, error) {
	if len(concepts) == 0 {
		return concepts, nil
	}

	kept := concepts
	if len(classes) > 0 {
		conceptVecs, err := c.oracle.Embed(ctx, concepts)
		if err != nil {
			return concepts, fmt.Errorf("%w: %v", internalerr.ErrEmbed, err)
		}
		classVecs, err := c.oracle.Embed(ctx, classes)
		if err != nil {
			return concepts, fmt.Errorf("%w: %v", internalerr.ErrEmbed, err)
		}
		filtered := make([]string, 0, len(concepts))
		for i, s := range concepts {
			if embed.MaxCosine(conceptVecs[i], classVecs) < c.opts.ClassSimThreshold {
				filtered = append(filtered, s)
			}
		}
		kept = filtered
	}

	if len(kept) < 2 {
		return kept, nil
	}
	vecs, err := c.oracle.Embed(ctx, kept)
	if err != nil {
		return concepts, fmt.Errorf("%w: %v", internalerr.ErrEmbed, err)
	}
	removed := make([]bool, len(kept))
	for i := range kept {
		for j := i + 1; j < len(kept); j++ {
			if embed.Cosine(vecs[i], vecs[j]) > c.opts.ConceptSimThreshold {
				removed[j] = true
			}
		}
	}
	out := make([]string, 0, len(kept))
	for i, s := range kept {
		if !removed[i] {
			out = append(out, s)
		}
	}
	return out, nil
}

// ApplyRelaxed is the lighter pass used by the rerank method: scrub the
// class name, validate against the relaxed length band, deduplicate
// first-seen, sort by length ascending, and cap the pool. Output is
// lowercase because scrubbing folds case.
func (c *Chain) ApplyRelaxed(pool []string, class string) []string {
	seen := make(map[string]struct{}, len(pool))
	cleaned := make([]string, 0, len(pool))
	for _, s := range pool {
		scrubbed := ScrubClassName(s, class)
		if scrubbed == "" || !c.validRelaxed(scrubbed) {
			continue
		}
		if _, ok := seen[scrubbed]; ok {
			continue
		}
		seen[scrubbed] = struct{}{}
		cleaned = append(cleaned, scrubbed)
	}
	stableSortByLength(cleaned)
	if len(cleaned) > relaxedPoolCap {
		cleaned = cleaned[:relaxedPoolCap]
	}
	return cleaned
}

// validConcept is the terminal rule of Apply: a minimum length, no bare
// generic words, and at least one letter.
func (c *Chain) validConcept(s string) bool {
	if utf8.RuneCountInString(s) < c.opts.MinLength {
		return false
	}
	if _, ok := c.blacklist[strings.ToLower(s)]; ok {
		return false
	}
	return containsLetter(s)
}

// validRelaxed adds the relaxed upper length bound on top of validConcept.
func (c *Chain) validRelaxed(s string) bool {
	if utf8.RuneCountInString(s) > relaxedMaxLength {
		return false
	}
	return c.validConcept(s)
}

func (c *Chain) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// ScrubClassName removes whole-word occurrences of class from concept,
// case-insensitively, then collapses whitespace. The result is lowercase.
// Occurrences embedded inside larger words are left alone.
func ScrubClassName(concept, class string) string {
	lower := strings.ToLower(strings.TrimSpace(concept))
	needle := strings.ToLower(strings.TrimSpace(class))
	if needle == "" {
		return collapseSpaces(lower)
	}

	var b strings.Builder
	i := 0
	for i < len(lower) {
		j := strings.Index(lower[i:], needle)
		if j < 0 {
			b.WriteString(lower[i:])
			break
		}
		start := i + j
		end := start + len(needle)
		if wordBoundary(lower, start, end) {
			b.WriteString(lower[i:start])
		} else {
			b.WriteString(lower[i:end])
		}
		i = end
	}
	return collapseSpaces(b.String())
}

// wordBoundary reports whether lower[start:end] is delimited by non-word
// runes on both sides.
func wordBoundary(lower string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(lower[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(lower) {
		r, _ := utf8.DecodeRuneInString(lower[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stableSortByLength orders by rune count ascending, preserving input
// order among equals.
func stableSortByLength(items []string) {
	sort.SliceStable(items, func(i, j int) bool {
		return utf8.RuneCountInString(items[i]) < utf8.RuneCountInString(items[j])
	})
}
