// Package arxiv implements the metadata and keyword-search collaborators
// against the arXiv Atom API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"paperdesk/internal/logging"
	"paperdesk/internal/paper"
)

const defaultBaseURL = "https://export.arxiv.org/api/query"

// ErrNotFound reports that arXiv has no entry for the requested id.
type ErrNotFound struct {
	PaperID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("paper not found on arXiv: %s", e.PaperID)
}

// Client queries the arXiv Atom API. Metadata is cached per id before any
// network call, so repeated lookups within a session are free.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]*paper.Metadata
}

// NewClient creates a client. An empty baseURL selects the public API.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      make(map[string]*paper.Metadata),
	}
}

// FetchMetadata retrieves metadata for one paper id, serving from cache
// when possible. Returns *ErrNotFound when arXiv has no such entry.
func (c *Client) FetchMetadata(ctx context.Context, id string) (*paper.Metadata, error) {
	c.mu.Lock()
	if m, ok := c.cache[id]; ok {
		c.mu.Unlock()
		logging.APIDebug("metadata cache hit for %s", id)
		return m, nil
	}
	c.mu.Unlock()

	feed, err := c.query(ctx, url.Values{"id_list": {id}, "max_results": {"1"}})
	if err != nil {
		return nil, err
	}
	if len(feed.Entries) == 0 || strings.TrimSpace(feed.Entries[0].Title) == "" {
		return nil, &ErrNotFound{PaperID: id}
	}

	m := parseAtomEntry(feed.Entries[0])
	if m.PaperID == "" {
		return nil, &ErrNotFound{PaperID: id}
	}

	c.mu.Lock()
	c.cache[id] = m
	// Cache under the returned id too; arXiv resolves bare ids to the
	// latest version and the caller may retry with either form.
	c.cache[m.PaperID] = m
	c.mu.Unlock()

	return m, nil
}

// Search runs a keyword query over title and abstract, returning
// metadata-complete results (one entry per paper, already deduplicated on
// the server side).
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]*paper.Metadata, error) {
	if maxResults <= 0 {
		maxResults = 10
	}

	timer := logging.StartTimer(logging.CategoryAPI, "arxiv.Search")
	defer timer.Stop()

	feed, err := c.query(ctx, url.Values{
		"search_query": {fmt.Sprintf("all:%s", query)},
		"max_results":  {fmt.Sprintf("%d", maxResults)},
		"sortBy":       {"relevance"},
	})
	if err != nil {
		return nil, err
	}

	var results []*paper.Metadata
	for _, entry := range feed.Entries {
		m := parseAtomEntry(entry)
		if m.PaperID == "" {
			continue
		}
		c.mu.Lock()
		c.cache[m.PaperID] = m
		c.mu.Unlock()
		results = append(results, m)
	}
	logging.API("arxiv search %q returned %d results", query, len(results))
	return results, nil
}

func (c *Client) query(ctx context.Context, params url.Values) (*atomFeed, error) {
	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv http %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse arxiv feed: %w", err)
	}
	return &feed, nil
}

// Atom feed structures for the arXiv API.

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Authors    []atomAuthor   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Primary    atomCategory   `xml:"primary_category"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	JournalRef string         `xml:"journal_ref"`
	DOI        string         `xml:"doi"`
	Links      []atomLink     `xml:"link"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// parseAtomEntry converts an atom entry to paper metadata. The id keeps
// its version suffix; arXiv always reports the concrete version it served.
func parseAtomEntry(entry atomEntry) *paper.Metadata {
	paperID := ""
	if idx := strings.LastIndex(entry.ID, "/abs/"); idx >= 0 {
		paperID = entry.ID[idx+5:]
	}

	var authors []string
	for _, a := range entry.Authors {
		authors = append(authors, a.Name)
	}

	// Primary category first, remaining categories in feed order.
	var categories []string
	if entry.Primary.Term != "" {
		categories = append(categories, entry.Primary.Term)
	}
	for _, cat := range entry.Categories {
		if cat.Term != "" && cat.Term != entry.Primary.Term {
			categories = append(categories, cat.Term)
		}
	}

	m := &paper.Metadata{
		PaperID:    paperID,
		Title:      collapseWhitespace(entry.Title),
		Abstract:   collapseWhitespace(entry.Summary),
		Authors:    authors,
		Categories: categories,
		DOI:        entry.DOI,
		JournalRef: entry.JournalRef,
		AbsURL:     entry.ID,
	}

	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			m.PDFURL = link.Href
		}
	}
	if m.PDFURL == "" && paperID != "" {
		m.PDFURL = fmt.Sprintf("https://arxiv.org/pdf/%s", paperID)
	}

	m.Published, _ = time.Parse(time.RFC3339, entry.Published)
	m.Updated, _ = time.Parse(time.RFC3339, entry.Updated)

	return m
}

// collapseWhitespace normalizes the newline-wrapped text arXiv feeds carry.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
