package sqlitecache

import (
	"context"
	"path/filepath"
	"testing"
)

type countingOracle struct {
	calls int
}

func (o *countingOracle) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	o.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0.5, -1.25}
	}
	return out, nil
}

func TestEmbedPersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")
	upstream := &countingOracle{}

	cache, err := Open(ctx, dbPath, "all-minilm", upstream)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	first, err := cache.Embed(ctx, []string{"a red fox", "a blue jay"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(ctx, dbPath, "all-minilm", upstream)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reopened.Close()

	second, err := reopened.Embed(ctx, []string{"a red fox", "a blue jay"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if upstream.calls != 1 {
		t.Errorf("Expected 1 upstream call across reopens, got %d", upstream.calls)
	}
	for i := range first {
		if len(first[i]) != len(second[i]) {
			t.Fatalf("Expected same dimensions, got %d vs %d", len(first[i]), len(second[i]))
		}
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Errorf("Vector %d differs at %d: %f vs %f", i, j, first[i][j], second[i][j])
			}
		}
	}
}

func TestEmbedSeparatesModels(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")

	a := &countingOracle{}
	cacheA, err := Open(ctx, dbPath, "all-minilm", a)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cacheA.Close()
	if _, err := cacheA.Embed(ctx, []string{"a red fox"}); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	b := &countingOracle{}
	cacheB, err := Open(ctx, dbPath, "nomic-embed-text", b)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cacheB.Close()
	if _, err := cacheB.Embed(ctx, []string{"a red fox"}); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if b.calls != 1 {
		t.Errorf("Expected cache miss under a different model label, got %d upstream calls", b.calls)
	}
}

func TestEmbedMixedHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")
	upstream := &countingOracle{}

	cache, err := Open(ctx, dbPath, "all-minilm", upstream)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cache.Close()

	if _, err := cache.Embed(ctx, []string{"a red fox"}); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	out, err := cache.Embed(ctx, []string{"a green frog", "a red fox"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if upstream.calls != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", upstream.calls)
	}
	if out[0][0] != float32(len("a green frog")) {
		t.Errorf("Expected miss vector in slot 0, got %v", out[0])
	}
	if out[1][0] != float32(len("a red fox")) {
		t.Errorf("Expected hit vector in slot 1, got %v", out[1])
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, 3e-7}
	decoded, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("decodeVector failed: %v", err)
	}
	if len(decoded) != len(vec) {
		t.Fatalf("Expected %d values, got %d", len(vec), len(decoded))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Errorf("Value %d: expected %f, got %f", i, vec[i], decoded[i])
		}
	}
}

func TestDecodeVectorRejectsTruncatedBlob(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for truncated blob")
	}
}
