// Package index implements the two logical vector indices (content and
// summary) over the shared sqlite database. The handle is explicitly owned
// and passed in; there is no lazily-initialized global.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"paperdesk/internal/embedding"
	"paperdesk/internal/logging"
)

// Name selects one of the two logical indices.
type Name string

const (
	// Content holds full-text chunks keyed by (paper_id, page, seq).
	Content Name = "content"
	// Summary holds summaries and notes keyed by (paper_id, source_type, seq).
	Summary Name = "summary"
)

// SourceType tags where a chunk's text came from.
type SourceType string

const (
	SourceContent SourceType = "content"
	SourceSummary SourceType = "summary"
	SourceNotes   SourceType = "notes"
)

// Chunk is the unit of retrieval handed back to callers.
type Chunk struct {
	PaperID    string
	Page       int
	Text       string
	Similarity float64
	SourceType SourceType
}

// Entry is a stored chunk together with its embedding, for rerankers that
// need pairwise similarities (MMR).
type Entry struct {
	Chunk
	Embedding []float32
}

// ErrNotInitialized reports a search against an index that was never
// built. Distinct from a query that matched nothing, which returns an
// empty result set.
type ErrNotInitialized struct {
	Index Name
}

func (e *ErrNotInitialized) Error() string {
	return fmt.Sprintf("index %q has not been built", e.Index)
}

// VectorIndex stores embedded chunks and serves similarity candidates.
type VectorIndex struct {
	db     *sql.DB
	engine embedding.Engine
}

// New creates a VectorIndex over an existing database handle.
// InitOrLoad must be called before any other operation.
func New(db *sql.DB, engine embedding.Engine) *VectorIndex {
	return &VectorIndex{db: db, engine: engine}
}

// InitOrLoad creates the chunk tables if missing and loads index state.
func (v *VectorIndex) InitOrLoad(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			idx         TEXT NOT NULL,
			paper_id    TEXT NOT NULL,
			page        INTEGER NOT NULL DEFAULT 0,
			seq         INTEGER NOT NULL DEFAULT 0,
			source_type TEXT NOT NULL,
			content     TEXT NOT NULL,
			embedding   TEXT NOT NULL,
			PRIMARY KEY (idx, paper_id, page, source_type, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_paper ON chunks(idx, paper_id)`,
		`CREATE TABLE IF NOT EXISTS index_state (
			name     TEXT PRIMARY KEY,
			built_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := v.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init index tables: %w", err)
		}
	}
	logging.Index("vector index tables ready")
	return nil
}

// Built reports whether a logical index has ever been built.
func (v *VectorIndex) Built(ctx context.Context, name Name) bool {
	var n int
	err := v.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM index_state WHERE name = ?`, string(name)).Scan(&n)
	return err == nil && n > 0
}

func (v *VectorIndex) markBuilt(ctx context.Context, name Name) error {
	_, err := v.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO index_state (name, built_at) VALUES (?, ?)`,
		string(name), time.Now().Format(time.RFC3339))
	return err
}

// PageText is one page of extracted text to be chunked and indexed.
type PageText struct {
	Page int
	Text string
}

// chunkWindow bounds the size of one content chunk.
const chunkWindow = 1400

// splitPage cuts page text into windows, breaking at whitespace when it can.
func splitPage(text string) []string {
	if len(text) <= chunkWindow {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var parts []string
	for len(text) > chunkWindow {
		cut := chunkWindow
		// Back up to the nearest space to avoid mid-word splits.
		for cut > chunkWindow/2 && text[cut] != ' ' && text[cut] != '\n' {
			cut--
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// IndexContent embeds and stores a paper's page texts into the content
// index. Keys are (paper_id, page, seq), so re-indexing the same paper
// replaces rather than duplicates.
func (v *VectorIndex) IndexContent(ctx context.Context, paperID string, pages []PageText) error {
	timer := logging.StartTimer(logging.CategoryIndex, "IndexContent "+paperID)
	defer timer.Stop()

	type piece struct {
		page, seq int
		text      string
	}
	var pieces []piece
	for _, pg := range pages {
		for seq, part := range splitPage(pg.Text) {
			pieces = append(pieces, piece{page: pg.Page, seq: seq, text: part})
		}
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.text
	}
	vectors, err := v.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed content for %s: %w", paperID, err)
	}

	for i, p := range pieces {
		if err := v.put(ctx, Content, paperID, p.page, p.seq, SourceContent, p.text, vectors[i]); err != nil {
			return err
		}
	}

	logging.Index("indexed %d content chunks for %s", len(pieces), paperID)
	return v.markBuilt(ctx, Content)
}

// IndexSummary embeds and stores a paper's summary into the summary index,
// replacing any previous summary chunks for that paper.
func (v *VectorIndex) IndexSummary(ctx context.Context, paperID, body string) error {
	// Stale windows from a longer previous summary must not survive.
	if _, err := v.db.ExecContext(ctx, `
		DELETE FROM chunks WHERE idx = ? AND paper_id = ? AND source_type = ?`,
		string(Summary), paperID, string(SourceSummary)); err != nil {
		return err
	}

	parts := splitPage(body)
	vectors, err := v.engine.EmbedBatch(ctx, parts)
	if err != nil {
		return fmt.Errorf("embed summary for %s: %w", paperID, err)
	}
	for seq, part := range parts {
		if err := v.put(ctx, Summary, paperID, 0, seq, SourceSummary, part, vectors[seq]); err != nil {
			return err
		}
	}

	logging.Index("indexed summary for %s (%d chunks)", paperID, len(parts))
	return v.markBuilt(ctx, Summary)
}

// IndexNote appends one note to the summary index under the next free seq.
func (v *VectorIndex) IndexNote(ctx context.Context, paperID, note string) error {
	var next int
	err := v.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq)+1, 0) FROM chunks
		WHERE idx = ? AND paper_id = ? AND source_type = ?`,
		string(Summary), paperID, string(SourceNotes)).Scan(&next)
	if err != nil {
		return err
	}

	vec, err := v.engine.Embed(ctx, note)
	if err != nil {
		return fmt.Errorf("embed note for %s: %w", paperID, err)
	}
	if err := v.put(ctx, Summary, paperID, 0, next, SourceNotes, note, vec); err != nil {
		return err
	}
	return v.markBuilt(ctx, Summary)
}

func (v *VectorIndex) put(ctx context.Context, name Name, paperID string, page, seq int, st SourceType, text string, vec []float32) error {
	embJSON, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("serialize embedding: %w", err)
	}
	_, err = v.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO chunks
		(idx, paper_id, page, seq, source_type, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(name), paperID, page, seq, string(st), text, string(embJSON))
	if err != nil {
		return fmt.Errorf("store chunk %s/%s: %w", name, paperID, err)
	}
	return nil
}

// Entries loads all stored entries of a logical index, optionally
// restricted to an allow-list of paper ids. Returns ErrNotInitialized when
// the index was never built; an empty slice is a legitimate result.
func (v *VectorIndex) Entries(ctx context.Context, name Name, paperFilter []string) ([]Entry, error) {
	if !v.Built(ctx, name) {
		return nil, &ErrNotInitialized{Index: name}
	}

	query := `SELECT paper_id, page, source_type, content, embedding FROM chunks WHERE idx = ?`
	args := []any{string(name)}
	if len(paperFilter) > 0 {
		query += ` AND paper_id IN (?` + repeat(",?", len(paperFilter)-1) + `)`
		for _, id := range paperFilter {
			args = append(args, id)
		}
	}

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var st, embJSON string
		if err := rows.Scan(&e.PaperID, &e.Page, &st, &e.Text, &embJSON); err != nil {
			return nil, err
		}
		e.SourceType = SourceType(st)
		if err := json.Unmarshal([]byte(embJSON), &e.Embedding); err != nil {
			logging.Get(logging.CategoryIndex).Warn("skipping chunk with bad embedding: %s/%d", e.PaperID, e.Page)
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of chunks in a logical index.
func (v *VectorIndex) Count(ctx context.Context, name Name) (int, error) {
	var n int
	err := v.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE idx = ?`, string(name)).Scan(&n)
	return n, err
}

// PapersIndexed returns the distinct paper ids present in a logical index.
func (v *VectorIndex) PapersIndexed(ctx context.Context, name Name) ([]string, error) {
	rows, err := v.db.QueryContext(ctx,
		`SELECT DISTINCT paper_id FROM chunks WHERE idx = ? ORDER BY paper_id ASC`, string(name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HasPaper reports whether a paper has chunks in a logical index.
func (v *VectorIndex) HasPaper(ctx context.Context, name Name, paperID string) bool {
	var n int
	err := v.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks WHERE idx = ? AND paper_id = ?`,
		string(name), paperID).Scan(&n)
	return err == nil && n > 0
}

// Clear removes all chunks of a logical index and its built marker, for
// full rebuilds.
func (v *VectorIndex) Clear(ctx context.Context, name Name) error {
	if _, err := v.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE idx = ?`, string(name)); err != nil {
		return err
	}
	_, err := v.db.ExecContext(ctx,
		`DELETE FROM index_state WHERE name = ?`, string(name))
	return err
}

// Engine exposes the embedding engine for callers that embed queries.
func (v *VectorIndex) Engine() embedding.Engine {
	return v.engine
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
