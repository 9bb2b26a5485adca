// Package store owns the local sqlite database: paper metadata, summaries,
// notes, and download bookkeeping. The vector indices share the same file
// through the handle this package hands out.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paperdesk/internal/logging"
	"paperdesk/internal/paper"
)

// ErrPaperNotFound reports that a paper id has no row in the local store.
type ErrPaperNotFound struct {
	PaperID string
}

func (e *ErrPaperNotFound) Error() string {
	return fmt.Sprintf("paper not in local store: %s", e.PaperID)
}

// Store wraps the sqlite database holding all durable state.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the store database and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// Single-session tool; one connection avoids sqlite write contention.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("store opened at %s", path)
	return s, nil
}

// DB exposes the shared handle for the vector index living in the same file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id           TEXT PRIMARY KEY,
			base_id      TEXT NOT NULL,
			title        TEXT NOT NULL DEFAULT '',
			abstract     TEXT NOT NULL DEFAULT '',
			authors      TEXT NOT NULL DEFAULT '[]',
			categories   TEXT NOT NULL DEFAULT '[]',
			published    TEXT NOT NULL DEFAULT '',
			updated      TEXT NOT NULL DEFAULT '',
			abs_url      TEXT NOT NULL DEFAULT '',
			pdf_url      TEXT NOT NULL DEFAULT '',
			doi          TEXT NOT NULL DEFAULT '',
			journal_ref  TEXT NOT NULL DEFAULT '',
			pdf_path     TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_base ON papers(base_id)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			paper_id   TEXT PRIMARY KEY,
			body       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			paper_id   TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_paper ON notes(paper_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}
	return nil
}

// UpsertPaper stores paper metadata, replacing any existing row for the
// same full id. Re-running against the same paper is a no-op in effect.
func (s *Store) UpsertPaper(ctx context.Context, m *paper.Metadata) error {
	authors, _ := json.Marshal(m.Authors)
	categories, _ := json.Marshal(m.Categories)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO papers
		(id, base_id, title, abstract, authors, categories, published, updated,
		 abs_url, pdf_url, doi, journal_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, abstract=excluded.abstract,
			authors=excluded.authors, categories=excluded.categories,
			published=excluded.published, updated=excluded.updated,
			abs_url=excluded.abs_url, pdf_url=excluded.pdf_url,
			doi=excluded.doi, journal_ref=excluded.journal_ref`,
		m.PaperID,
		paper.BaseID(m.PaperID),
		m.Title,
		m.Abstract,
		string(authors),
		string(categories),
		m.Published.Format(time.RFC3339),
		m.Updated.Format(time.RFC3339),
		m.AbsURL,
		m.PDFURL,
		m.DOI,
		m.JournalRef,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert paper %s: %w", m.PaperID, err)
	}
	return nil
}

// GetPaper loads one paper by full id.
func (s *Store) GetPaper(ctx context.Context, id string) (*paper.Metadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, abstract, authors, categories, published, updated,
		       abs_url, pdf_url, doi, journal_ref
		FROM papers WHERE id = ?`, id)
	m, err := scanPaper(row)
	if err == sql.ErrNoRows {
		return nil, &ErrPaperNotFound{PaperID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load paper %s: %w", id, err)
	}
	return m, nil
}

// HasPaper reports whether a paper id is stored locally.
func (s *Store) HasPaper(ctx context.Context, id string) bool {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers WHERE id = ?`, id).Scan(&n)
	return err == nil && n > 0
}

// VersionsOf returns all stored full ids sharing a base id, ascending.
func (s *Store) VersionsOf(ctx context.Context, baseID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM papers WHERE base_id = ? ORDER BY id ASC`, baseID)
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

// ListPapers returns all stored papers ordered ascending by id, matching
// the canonical result-set ordering every command uses.
func (s *Store) ListPapers(ctx context.Context) ([]*paper.Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, abstract, authors, categories, published, updated,
		       abs_url, pdf_url, doi, journal_ref
		FROM papers ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var papers []*paper.Metadata
	for rows.Next() {
		m, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, m)
	}
	return papers, rows.Err()
}

// SetPDFPath records where a paper's PDF landed on disk.
func (s *Store) SetPDFPath(ctx context.Context, id, path string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE papers SET pdf_path = ? WHERE id = ?`, path, id)
	return err
}

// PDFPath returns the recorded local PDF path, "" when not downloaded.
func (s *Store) PDFPath(ctx context.Context, id string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT pdf_path FROM papers WHERE id = ?`, id).Scan(&path)
	if err == sql.ErrNoRows {
		return "", &ErrPaperNotFound{PaperID: id}
	}
	return path, err
}

// SaveSummary stores a paper's summary, replacing any previous one.
func (s *Store) SaveSummary(ctx context.Context, paperID, body string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO summaries (paper_id, body, updated_at)
		VALUES (?, ?, ?)`,
		paperID, body, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save summary for %s: %w", paperID, err)
	}
	return nil
}

// GetSummary returns the stored summary, "" when none exists.
func (s *Store) GetSummary(ctx context.Context, paperID string) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM summaries WHERE paper_id = ?`, paperID).Scan(&body)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return body, err
}

// HasSummary reports whether a summary exists for the paper.
func (s *Store) HasSummary(ctx context.Context, paperID string) bool {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM summaries WHERE paper_id = ?`, paperID).Scan(&n)
	return err == nil && n > 0
}

// AddNote appends a free-form note to a paper.
func (s *Store) AddNote(ctx context.Context, paperID, body string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (paper_id, body, created_at) VALUES (?, ?, ?)`,
		paperID, body, time.Now().Format(time.RFC3339))
	return err
}

// Notes returns all notes for a paper in creation order.
func (s *Store) Notes(ctx context.Context, paperID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM notes WHERE paper_id = ? ORDER BY id ASC`, paperID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		notes = append(notes, body)
	}
	return notes, rows.Err()
}

// Stats summarizes store contents for the status command.
type Stats struct {
	Papers    int
	Summaries int
	Notes     int
}

// Stats counts stored rows.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers`).Scan(&st.Papers); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries`).Scan(&st.Summaries); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&st.Notes); err != nil {
		return st, err
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaper(row rowScanner) (*paper.Metadata, error) {
	var m paper.Metadata
	var authors, categories, published, updated string

	err := row.Scan(&m.PaperID, &m.Title, &m.Abstract, &authors, &categories,
		&published, &updated, &m.AbsURL, &m.PDFURL, &m.DOI, &m.JournalRef)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(authors), &m.Authors)
	json.Unmarshal([]byte(categories), &m.Categories)
	m.Published, _ = time.Parse(time.RFC3339, published)
	m.Updated, _ = time.Parse(time.RFC3339, updated)

	return &m, nil
}
