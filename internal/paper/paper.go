// Package paper defines the paper metadata model and arXiv identifier
// handling shared by every other component.
package paper

import (
	"fmt"
	"strings"
	"time"
)

// Metadata describes one paper as returned by the metadata collaborator.
// Identity is PaperID; all other fields are display/ranking material.
type Metadata struct {
	PaperID    string    `json:"paper_id"`
	Title      string    `json:"title"`
	Authors    []string  `json:"authors"`
	Published  time.Time `json:"published"`
	Updated    time.Time `json:"updated"`
	Abstract   string    `json:"abstract"`
	Categories []string  `json:"categories"` // primary category first
	AbsURL     string    `json:"abs_url"`
	PDFURL     string    `json:"pdf_url"`
	DOI        string    `json:"doi,omitempty"`
	JournalRef string    `json:"journal_ref,omitempty"`
}

// PrimaryCategory returns the first category, or "" when none are known.
func (m *Metadata) PrimaryCategory() string {
	if len(m.Categories) == 0 {
		return ""
	}
	return m.Categories[0]
}

// AuthorLine joins authors for single-line display, truncating long lists.
func (m *Metadata) AuthorLine(max int) string {
	if max <= 0 || len(m.Authors) <= max {
		return strings.Join(m.Authors, ", ")
	}
	return fmt.Sprintf("%s, et al.", strings.Join(m.Authors[:max], ", "))
}
