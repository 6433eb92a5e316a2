// Package sqlitecache wraps an embed.Oracle with a SQLite-backed vector
// cache so embeddings survive across runs.
package sqlitecache

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"github.com/cognicore/conceptgen/pkg/conceptgen/embed"
)

// Cache is a caching embed.Oracle persisted to a SQLite database. Vectors
// are keyed by model label and text digest so switching the embedding model
// never serves stale entries.
type Cache struct {
	db     *sql.DB
	oracle embed.Oracle
	model  string
}

// Open opens the cache database at path, creating it if needed, and wraps
// oracle with it.
func Open(ctx context.Context, path, model string, oracle embed.Oracle) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db, oracle: oracle, model: model}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS embeddings (
	model TEXT NOT NULL,
	text_sha TEXT NOT NULL,
	dim INTEGER NOT NULL,
	vec BLOB NOT NULL,
	PRIMARY KEY (model, text_sha)
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Embed returns stored vectors where available and asks the wrapped oracle
// for the rest in a single batch, persisting what comes back.
func (c *Cache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		vec, ok, err := c.lookup(ctx, text)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = vec
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		}
	}

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

	for k, i := range missIdx {
		if err := c.store(ctx, texts[i], vecs[k]); err != nil {
			return nil, err
		}
		out[i] = vecs[k]
	}
	return out, nil
}

func (c *Cache) lookup(ctx context.Context, text string) ([]float32, bool, error) {
	var dim int
	var blob []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT dim, vec FROM embeddings WHERE model = ? AND text_sha = ?`,
		c.model, textKey(text)).Scan(&dim, &blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, false, err
	}
	if len(vec) != dim {
		return nil, false, fmt.Errorf("cached vector dim mismatch: have %d, want %d", len(vec), dim)
	}
	return vec, true, nil
}

func (c *Cache) store(ctx context.Context, text string, vec []float32) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (model, text_sha, dim, vec) VALUES (?, ?, ?, ?)`,
		c.model, textKey(text), len(vec), encodeVector(vec))
	return err
}

func textKey(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
