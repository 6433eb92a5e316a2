// Package normalize turns raw language-model responses into candidate
// concept strings. Two extraction modes exist: the strict mode used by the
// threshold, diversity, and discriminability methods, and the relaxed mode
// used by the rerank method.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultFillers are lowercase substrings that mark a candidate as
// conversational filler rather than a concept.
var DefaultFillers = []string{
	"good question",
	"fun question",
	"that is",
	"they are",
	"it is",
	"i think",
}

// DefaultBlacklist lists bare generic words that carry no descriptive
// signal on their own.
var DefaultBlacklist = []string{
	"thing", "object", "item", "stuff", "something", "anything", "a", "an", "the",
}

// minConceptLength is the shortest strict-mode candidate kept, in runes,
// measured after the article prefix is applied.
const minConceptLength = 4

// relaxedSplitLength is the line length above which a comma-separated
// relaxed-mode line is split into independent candidates.
const relaxedSplitLength = 50

// Extractor parses model responses using configured filler phrases.
type Extractor struct {
	fillers []string
}

// New creates an Extractor. Filler phrases are matched case-insensitively
// as substrings; nil falls back to DefaultFillers.
func New(fillers []string) *Extractor {
	if fillers == nil {
		fillers = DefaultFillers
	}
	lowered := make([]string, 0, len(fillers))
	for _, f := range fillers {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			lowered = append(lowered, f)
		}
	}
	return &Extractor{fillers: lowered}
}

// Extract parses a response in strict mode. Each line is stripped of its
// list marker, split on commas, prefixed with an article when it has none,
// reduced to letters, digits, spaces, and hyphens, and kept if it is at
// least four runes long, not yet seen case-insensitively, and free of
// filler phrases. Input order is preserved.
func (e *Extractor) Extract(raw string) []string {
	raw = norm.NFKC.String(raw)

	var out []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeftFunc(line, isListMarkerRune)
		if line == "" {
			continue
		}

		segments := []string{line}
		if strings.Contains(line, ",") {
			segments = strings.Split(line, ",")
		}
		for _, seg := range segments {
			seg = strings.TrimSpace(seg)
			if seg == "" {
				continue
			}
			if !startsWithArticle(seg) {
				seg = "a " + seg
			}
			seg = keepConceptRunes(seg)
			seg = collapseSpaces(seg)
			if utf8.RuneCountInString(seg) < minConceptLength {
				continue
			}
			key := strings.ToLower(seg)
			if _, ok := seen[key]; ok {
				continue
			}
			if e.hasFiller(key) {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, seg)
		}
	}
	return out
}

// ExtractRelaxed parses a response in relaxed mode. List markers, quotes,
// leading articles, and sentence punctuation are stripped, long
// comma-separated lines are split, and candidates are deduplicated
// case-insensitively within the response. Validity checks happen later, in
// the per-class relaxed filter pass.
func (e *Extractor) ExtractRelaxed(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = stripListMarker(line)
		if line == "" {
			continue
		}

		pieces := []string{line}
		if strings.Contains(line, ",") && utf8.RuneCountInString(line) > relaxedSplitLength {
			pieces = strings.Split(line, ",")
		}
		for _, piece := range pieces {
			concept := cleanRelaxed(piece)
			if concept == "" {
				continue
			}
			key := strings.ToLower(concept)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, concept)
		}
	}
	return out
}

func (e *Extractor) hasFiller(lower string) bool {
	for _, f := range e.fillers {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// isListMarkerRune matches the run of numbering, bullets, and whitespace
// that strict mode strips from the front of a line.
func isListMarkerRune(r rune) bool {
	return unicode.IsDigit(r) || unicode.IsSpace(r) || r == '.' || r == '-' || r == '*' || r == '•'
}

// stripListMarker removes one leading bullet and one leading "1." or "1)"
// style number from a relaxed-mode line.
func stripListMarker(s string) string {
	if r, size := utf8.DecodeRuneInString(s); r == '-' || r == '*' || r == '•' {
		s = strings.TrimLeftFunc(s[size:], unicode.IsSpace)
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		s = strings.TrimLeftFunc(s[i+1:], unicode.IsSpace)
	}
	return s
}

func cleanRelaxed(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `'"`)
	s = collapseSpaces(s)
	s = stripLeadingArticle(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '.', '!', '?', ';', ':':
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// startsWithArticle reports whether the first word is "a", "an", or "the".
func startsWithArticle(s string) bool {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i <= 0 {
		return false
	}
	switch strings.ToLower(s[:i]) {
	case "a", "an", "the":
		return true
	}
	return false
}

// stripLeadingArticle removes one leading "a", "an", or "the" together with
// the whitespace after it.
func stripLeadingArticle(s string) string {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i <= 0 {
		return s
	}
	switch strings.ToLower(s[:i]) {
	case "a", "an", "the":
		return strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	return s
}

// keepConceptRunes drops everything except letters, digits, whitespace,
// and hyphens.
func keepConceptRunes(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
