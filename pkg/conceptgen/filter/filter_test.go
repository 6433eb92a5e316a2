package filter

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/cognicore/conceptgen/pkg/conceptgen/internalerr"
)

// stubOracle serves hand-set vectors. Missing texts are an error so a test
// with an incomplete map fails loudly.
type stubOracle struct {
	vectors map[string][]float32
	fail    bool
}

func (o *stubOracle) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if o.fail {
		return nil, errors.New("embedding service down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := o.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no stub vector for %q", t)
		}
		out[i] = vec
	}
	return out, nil
}

func defaultOptions() Options {
	return Options{
		LengthThreshold:     30,
		ClassSimThreshold:   0.85,
		ConceptSimThreshold: 0.9,
		Blacklist:           []string{"thing", "object", "stuff"},
	}
}

func TestApplyLengthRule(t *testing.T) {
	oracle := &stubOracle{vectors: map[string][]float32{
		"a short": {1, 0},
		"fox":     {0, 1},
	}}
	chain := New(oracle, defaultOptions(), nil)

	got, err := chain.Apply(context.Background(),
		[]string{"a short", "a concept name that runs well past thirty runes"},
		Target{Class: "fox", Classes: []string{"fox"}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []string{"a short"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestApplyClassSimilarityRule(t *testing.T) {
	// "a dog" is parallel to the class label, "a wagging tail" orthogonal.
	oracle := &stubOracle{vectors: map[string][]float32{
		"a dog":          {1, 0},
		"a wagging tail": {0, 1},
		"dog":            {1, 0},
	}}
	chain := New(oracle, defaultOptions(), nil)

	got, err := chain.Apply(context.Background(),
		[]string{"a dog", "a wagging tail"},
		Target{Class: "dog", Classes: []string{"dog"}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []string{"a wagging tail"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestApplyNearDuplicateRule(t *testing.T) {
	// cos(first, second) ~ 0.95, cos(first, third) = 0.
	oracle := &stubOracle{vectors: map[string][]float32{
		"a bright red color": {1, 0},
		"a vivid red color":  {0.95, 0.312},
		"a bushy tail":       {0, 1},
	}}
	chain := New(oracle, defaultOptions(), nil)

	got, err := chain.Apply(context.Background(),
		[]string{"a bright red color", "a vivid red color", "a bushy tail"},
		Target{Class: "fox"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []string{"a bright red color", "a bushy tail"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected earlier spelling to win, got %v", got)
	}
}

func TestApplyNearDuplicateChain(t *testing.T) {
	// B duplicates A and C duplicates B. C is removed even though B already
	// was: every later member of a duplicate pair goes.
	oracle := &stubOracle{vectors: map[string][]float32{
		"a red coat":     {1, 0},
		"a reddish coat": {0.95, 0.312},
		"a ruddy coat":   {0.81, 0.586},
	}}
	chain := New(oracle, defaultOptions(), nil)

	got, err := chain.Apply(context.Background(),
		[]string{"a red coat", "a reddish coat", "a ruddy coat"},
		Target{Class: "fox"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []string{"a red coat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestApplyWordCapRule(t *testing.T) {
	oracle := &stubOracle{vectors: map[string][]float32{
		"a big fluffy soft warm coat": {1, 0},
		"a soft coat":                 {0, 1},
	}}
	chain := New(oracle, defaultOptions(), nil)

	got, err := chain.Apply(context.Background(),
		[]string{"a big fluffy soft warm coat", "a soft coat"},
		Target{Class: "fox"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []string{"a soft coat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected six-word concept dropped, got %v", got)
	}
}

func TestApplyScrubRule(t *testing.T) {
	oracle := &stubOracle{vectors: map[string][]float32{
		"a fluffy cat tail":      {1, 0, 0, 0},
		"a CAT scan image":       {0, 1, 0, 0},
		"a concatenation device": {0, 0, 1, 0},
		"cat":                    {0, 0, 0, 1},
	}}
	chain := New(oracle, defaultOptions(), nil)

	got, err := chain.Apply(context.Background(),
		[]string{"a fluffy cat tail", "a CAT scan image", "a concatenation device"},
		Target{Class: "cat", Classes: []string{"cat"}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []string{"a fluffy tail", "a scan image", "a concatenation device"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected whole-word scrub only, got %v", got)
	}
}

func TestApplyGenericWordRule(t *testing.T) {
	oracle := &stubOracle{vectors: map[string][]float32{
		"Fox thing":     {1, 0, 0, 0, 0},
		"fox":           {0, 1, 0, 0, 0},
		"fox 42":        {0, 0, 1, 0, 0},
		"fox y":         {0, 0, 0, 1, 0},
		"a den dweller": {0, 0, 0, 0, 1},
	}}
	chain := New(oracle, defaultOptions(), nil)

	got, err := chain.Apply(context.Background(),
		[]string{"Fox thing", "fox", "fox 42", "fox y", "a den dweller"},
		Target{Class: "fox"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []string{"a den dweller"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected scrub residue rejected, got %v", got)
	}
}

func TestApplyEmbeddingFailureEscalates(t *testing.T) {
	chain := New(&stubOracle{fail: true}, defaultOptions(), nil)

	_, err := chain.Apply(context.Background(),
		[]string{"a soft coat", "a bushy tail"},
		Target{Class: "fox", Classes: []string{"fox"}})
	if err == nil {
		t.Fatal("Expected error when oracle is down")
	}
	if !errors.Is(err, internalerr.ErrEmbed) {
		t.Errorf("Expected ErrEmbed, got %v", err)
	}
}

func TestApplyEmbeddingFallbackSkipsSimilarity(t *testing.T) {
	opts := defaultOptions()
	opts.EmbeddingFallback = true
	chain := New(&stubOracle{fail: true}, opts, nil)

	got, err := chain.Apply(context.Background(),
		[]string{"a soft coat", "a big fluffy soft warm coat", "fox"},
		Target{Class: "fox", Classes: []string{"fox"}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	// Length, word cap, scrub, and validity still ran.
	want := []string{"a soft coat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected exact rules to survive the fallback, got %v", got)
	}
}

func TestApplyEmptyInput(t *testing.T) {
	chain := New(&stubOracle{}, defaultOptions(), nil)
	got, err := chain.Apply(context.Background(), nil, Target{Class: "fox", Classes: []string{"fox"}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no concepts, got %v", got)
	}
}

func TestApplyRelaxed(t *testing.T) {
	chain := New(&stubOracle{}, defaultOptions(), nil)

	pool := []string{
		"green turtle shell",
		"turtle",
		"thing",
		"ridged scutes",
		"Green Shell",
		"y",
		"an exceedingly long description that runs far past the fifty rune cap",
	}
	got := chain.ApplyRelaxed(pool, "turtle")
	// "green turtle shell" scrubs to "green shell" and "Green Shell"
	// duplicates it; sorting is by length ascending.
	want := []string{"green shell", "ridged scutes"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestApplyRelaxedCapsPool(t *testing.T) {
	chain := New(&stubOracle{}, defaultOptions(), nil)

	pool := make([]string, 0, 1100)
	for i := 0; i < 1100; i++ {
		pool = append(pool, fmt.Sprintf("pattern %04d", i))
	}
	got := chain.ApplyRelaxed(pool, "turtle")
	if len(got) != 1000 {
		t.Fatalf("Expected pool capped at 1000, got %d", len(got))
	}
	if got[0] != "pattern 0000" || got[999] != "pattern 0999" {
		t.Errorf("Expected stable order among equal lengths, got %q ... %q", got[0], got[999])
	}
}

func TestScrubClassName(t *testing.T) {
	cases := []struct {
		concept string
		class   string
		want    string
	}{
		{"a fluffy cat tail", "cat", "a fluffy tail"},
		{"a CAT scan image", "cat", "a scan image"},
		{"a concatenation device", "cat", "a concatenation device"},
		{"the cat and the cat", "cat", "the and the"},
		{"a maine coon cat portrait", "maine coon", "a cat portrait"},
		{"cat", "cat", ""},
		{"a bushy tail", "", "a bushy tail"},
	}
	for _, tc := range cases {
		if got := ScrubClassName(tc.concept, tc.class); got != tc.want {
			t.Errorf("ScrubClassName(%q, %q): expected %q, got %q", tc.concept, tc.class, got, tc.want)
		}
	}
}
