package index

import (
	"context"
	"database/sql"
	"hash/fnv"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

// fakeEngine is a deterministic embedding engine for tests. Known texts can
// be pinned to explicit vectors; everything else gets a token-hash vector,
// so equal texts always embed identically.
type fakeEngine struct {
	pinned map[string][]float32
	dims   int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{pinned: make(map[string][]float32), dims: 16}
}

func (f *fakeEngine) pin(text string, vec []float32) {
	f.pinned[text] = vec
}

func (f *fakeEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.pinned[text]; ok {
		return v, nil
	}
	vec := make([]float32, f.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(f.dims)]++
	}
	return vec, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return f.dims }
func (f *fakeEngine) Name() string    { return "fake" }

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
