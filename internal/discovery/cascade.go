// Package discovery finds candidate papers for a free-text query through a
// primary-plus-fallback cascade, reranks when the pool exceeds the request,
// and always returns canonical ascending-id order.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"paperdesk/internal/embedding"
	"paperdesk/internal/logging"
	"paperdesk/internal/paper"
)

// maxAPIIDs caps how many raw ids the discovery API is asked for.
const maxAPIIDs = 10

// Finder is the discovery-API collaborator: a query in, raw paper ids out.
// Implementations may return llm.ErrNotConfigured when no credentials exist.
type Finder interface {
	FindPaperIDs(ctx context.Context, query string, limit int) ([]string, error)
}

// MetadataSource fetches metadata by id and searches by keyword. The arxiv
// client satisfies this.
type MetadataSource interface {
	FetchMetadata(ctx context.Context, id string) (*paper.Metadata, error)
	Search(ctx context.Context, query string, maxResults int) ([]*paper.Metadata, error)
}

// Error aggregates the per-id failures of a discovery pass in which no
// candidate could be materialized.
type Error struct {
	Query  string
	Causes []error
}

func (e *Error) Error() string {
	return fmt.Sprintf("discovery for %q failed: %d candidate fetches errored", e.Query, len(e.Causes))
}

func (e *Error) Unwrap() []error { return e.Causes }

// Cascade runs the discovery pipeline. Finder and engine are optional:
// a nil or unconfigured Finder drops straight to keyword search, and a nil
// engine switches reranking to token overlap.
type Cascade struct {
	finder         Finder
	source         MetadataSource
	engine         embedding.Engine
	candidateLimit int
}

// NewCascade builds a cascade. candidateLimit bounds the keyword-search
// fallback pool.
func NewCascade(finder Finder, source MetadataSource, engine embedding.Engine, candidateLimit int) *Cascade {
	if candidateLimit <= 0 {
		candidateLimit = 20
	}
	return &Cascade{finder: finder, source: source, engine: engine, candidateLimit: candidateLimit}
}

// Discover returns up to k papers for the query in ascending-id order. An
// empty result is a legitimate outcome, not an error.
func (c *Cascade) Discover(ctx context.Context, query string, k int) ([]*paper.Metadata, error) {
	timer := logging.StartTimer(logging.CategoryDiscovery, "Discover")
	defer timer.Stop()

	if k <= 0 {
		k = 5
	}

	candidates, err := c.primary(ctx, query)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		candidates, err = c.keyword(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	if len(candidates) <= k {
		sortByID(candidates)
		return candidates, nil
	}

	top := c.rerank(ctx, query, candidates, k)
	// Callers display and index by id order, so the relevance order used
	// to pick the top k never leaks out.
	sortByID(top)
	return top, nil
}

// primary runs the discovery-API path. A nil slice (with nil error) means
// the path was unavailable and the keyword fallback should run.
func (c *Cascade) primary(ctx context.Context, query string) ([]*paper.Metadata, error) {
	if c.finder == nil {
		return nil, nil
	}

	ids, err := c.finder.FindPaperIDs(ctx, query, maxAPIIDs)
	if err != nil {
		logging.Discovery("discovery API unavailable (%v); falling back to keyword search", err)
		return nil, nil
	}

	deduped := paper.DedupeIDs(ids)
	if len(deduped) == 0 {
		return nil, nil
	}
	logging.Discovery("discovery API proposed %d ids (%d after dedupe)", len(ids), len(deduped))

	var (
		out    []*paper.Metadata
		causes []error
	)
	for _, id := range deduped {
		m, err := c.source.FetchMetadata(ctx, id)
		if err != nil {
			logging.DiscoveryDebug("metadata fetch for %s failed: %v", id, err)
			causes = append(causes, fmt.Errorf("%s: %w", id, err))
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, &Error{Query: query, Causes: causes}
	}
	return out, nil
}

// keyword runs the metadata-complete keyword search fallback.
func (c *Cascade) keyword(ctx context.Context, query string) ([]*paper.Metadata, error) {
	results, err := c.source.Search(ctx, query, c.candidateLimit)
	if err != nil {
		return nil, &Error{Query: query, Causes: []error{err}}
	}
	logging.Discovery("keyword search returned %d candidates", len(results))
	return results, nil
}

// rerank scores candidates against the query and keeps the top k, by
// embedding cosine similarity when an engine is available, otherwise by
// token overlap.
func (c *Cascade) rerank(ctx context.Context, query string, candidates []*paper.Metadata, k int) []*paper.Metadata {
	type ranked struct {
		m     *paper.Metadata
		score float64
	}

	scoredSet := make([]ranked, 0, len(candidates))
	if scores, err := c.embedScores(ctx, query, candidates); err == nil {
		for i, m := range candidates {
			scoredSet = append(scoredSet, ranked{m: m, score: scores[i]})
		}
	} else {
		logging.Discovery("embedding rerank unavailable (%v); using token overlap", err)
		queryTokens := tokenSet(query)
		for _, m := range candidates {
			scoredSet = append(scoredSet, ranked{m: m, score: jaccard(queryTokens, tokenSet(m.Title+" "+m.Abstract))})
		}
	}

	sort.SliceStable(scoredSet, func(i, j int) bool { return scoredSet[i].score > scoredSet[j].score })
	if len(scoredSet) > k {
		scoredSet = scoredSet[:k]
	}

	out := make([]*paper.Metadata, len(scoredSet))
	for i, r := range scoredSet {
		out[i] = r.m
	}
	return out
}

// embedScores computes query-to-candidate cosine similarities over
// title + abstract.
func (c *Cascade) embedScores(ctx context.Context, query string, candidates []*paper.Metadata) ([]float64, error) {
	if c.engine == nil {
		return nil, errors.New("no embedding engine configured")
	}

	queryVec, err := c.engine.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(candidates))
	for i, m := range candidates {
		texts[i] = m.Title + " " + m.Abstract
	}
	vectors, err := c.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(candidates))
	for i, vec := range vectors {
		sim, err := embedding.CosineSimilarity(queryVec, vec)
		if err != nil {
			return nil, err
		}
		scores[i] = sim
	}
	return scores, nil
}

func sortByID(papers []*paper.Metadata) {
	sort.SliceStable(papers, func(i, j int) bool { return papers[i].PaperID < papers[j].PaperID })
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(tok, ".,;:!?()\"'")] = true
	}
	delete(set, "")
	return set
}

// jaccard is intersection-over-union of two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
