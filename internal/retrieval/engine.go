// Package retrieval implements diversity-aware top-k search over the
// vector indices, with similarity cutoffs, paper allow-list filtering,
// MMR reranking, and a manual diversity fallback for comparison queries.
package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"paperdesk/internal/embedding"
	"paperdesk/internal/index"
	"paperdesk/internal/logging"
)

// Options controls one search call.
type Options struct {
	K                int
	Index            index.Name
	UseMMR           bool
	MMRAlpha         float64 // 1.0 = pure relevance, 0.0 = pure diversity
	SimilarityCutoff float64
	PaperFilter      []string // allow-list of paper ids; nil means all
}

// Engine runs similarity search over an explicitly owned vector index.
type Engine struct {
	idx *index.VectorIndex
}

// NewEngine wraps a vector index handle.
func NewEngine(idx *index.VectorIndex) *Engine {
	return &Engine{idx: idx}
}

// Index exposes the underlying vector index for status reporting.
func (e *Engine) Index() *index.VectorIndex {
	return e.idx
}

// scored pairs an index entry with its query similarity.
type scored struct {
	entry index.Entry
	sim   float64
}

// Search returns up to K chunks ordered by descending similarity.
// An index that was never built surfaces index.ErrNotInitialized; a query
// that matches nothing returns an empty slice.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]index.Chunk, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Search")
	defer timer.Stop()

	if opts.K <= 0 {
		opts.K = 10
	}

	queryVec, err := e.idx.Engine().Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := e.candidates(ctx, queryVec, opts)
	if err != nil {
		return nil, err
	}

	var picked []scored
	if opts.UseMMR {
		picked = mmrSelect(candidates, opts.K, opts.MMRAlpha)
	} else {
		picked = topK(candidates, opts.K)
	}

	// Comparison queries that still collapsed onto a single paper get a
	// manual diversity pass: one supplemental retrieval per extracted term.
	if opts.UseMMR && isComparisonQuery(query) && distinctPapers(picked) <= 1 {
		terms := extractEntityTerms(query)
		if len(terms) > 0 {
			logging.Retrieval("diversity fallback for %q with terms %v", query, terms)
			picked = e.diversityFallback(ctx, picked, terms, opts)
		}
	}

	return toChunks(picked), nil
}

// candidates loads, scores, and cutoff-filters the index entries.
func (e *Engine) candidates(ctx context.Context, queryVec []float32, opts Options) ([]scored, error) {
	entries, err := e.idx.Entries(ctx, opts.Index, opts.PaperFilter)
	if err != nil {
		return nil, err
	}

	var out []scored
	for _, entry := range entries {
		sim, err := embedding.CosineSimilarity(queryVec, entry.Embedding)
		if err != nil {
			continue // dimension drift from an older engine; skip
		}
		if sim < opts.SimilarityCutoff {
			continue
		}
		out = append(out, scored{entry: entry, sim: sim})
	}
	logging.RetrievalDebug("%d/%d entries above cutoff %.2f", len(out), len(entries), opts.SimilarityCutoff)
	return out, nil
}

// topK sorts by similarity descending and truncates.
func topK(candidates []scored, k int) []scored {
	sorted := make([]scored, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].sim > sorted[j].sim })
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

// mmrSelect applies maximum marginal relevance: each step takes the
// candidate maximizing alpha*relevance - (1-alpha)*max-similarity-to-
// already-selected. Output is re-sorted by similarity descending.
func mmrSelect(candidates []scored, k int, alpha float64) []scored {
	if len(candidates) == 0 {
		return nil
	}
	if alpha < 0 || alpha > 1 {
		alpha = 0.5
	}

	remaining := make([]scored, len(candidates))
	copy(remaining, candidates)

	var selected []scored
	for len(selected) < k && len(remaining) > 0 {
		bestIdx, bestScore := -1, 0.0
		for i, cand := range remaining {
			redundancy := 0.0
			for _, sel := range selected {
				sim, err := embedding.CosineSimilarity(cand.entry.Embedding, sel.entry.Embedding)
				if err == nil && sim > redundancy {
					redundancy = sim
				}
			}
			score := alpha*cand.sim - (1-alpha)*redundancy
			if bestIdx < 0 || score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	sort.SliceStable(selected, func(i, j int) bool { return selected[i].sim > selected[j].sim })
	return selected
}

// diversityFallback runs one plain retrieval pass per extracted term and
// merges results so that each newly surfaced paper contributes its best
// chunk before remaining slots fill up by similarity.
func (e *Engine) diversityFallback(ctx context.Context, original []scored, terms []string, opts Options) []scored {
	seen := make(map[string]bool)
	keyOf := func(s scored) string {
		return fmt.Sprintf("%s|%d|%s|%s", s.entry.PaperID, s.entry.Page, s.entry.SourceType, s.entry.Text)
	}
	papersCovered := make(map[string]bool)
	for _, s := range original {
		seen[keyOf(s)] = true
		papersCovered[s.entry.PaperID] = true
	}

	merged := append([]scored(nil), original...)
	for _, term := range terms {
		termVec, err := e.idx.Engine().Embed(ctx, term)
		if err != nil {
			continue
		}
		cands, err := e.candidates(ctx, termVec, opts)
		if err != nil {
			continue // fallback is best-effort; the original results stand
		}
		for _, cand := range topK(cands, opts.K) {
			if papersCovered[cand.entry.PaperID] || seen[keyOf(cand)] {
				continue
			}
			// Best new-paper chunk per term pass.
			merged = append(merged, cand)
			seen[keyOf(cand)] = true
			papersCovered[cand.entry.PaperID] = true
			break
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].sim > merged[j].sim })
	if len(merged) > opts.K {
		merged = merged[:opts.K]
	}
	return merged
}

func distinctPapers(picked []scored) int {
	papers := make(map[string]bool)
	for _, s := range picked {
		papers[s.entry.PaperID] = true
	}
	return len(papers)
}

func toChunks(picked []scored) []index.Chunk {
	chunks := make([]index.Chunk, len(picked))
	for i, s := range picked {
		c := s.entry.Chunk
		c.Similarity = s.sim
		chunks[i] = c
	}
	return chunks
}

// Comparison-query detection and entity-term extraction. Best effort: any
// reasonable multi-term expansion that recovers multi-paper coverage is
// acceptable here.

var comparisonIndicators = []string{"compare", "versus", "vs", "and", "both", "between"}

func isComparisonQuery(query string) bool {
	words := strings.Fields(strings.ToLower(query))
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?")
		for _, ind := range comparisonIndicators {
			if w == ind {
				return true
			}
		}
	}
	return false
}

var versionTokenPattern = regexp.MustCompile(`^[A-Za-z]{1,8}[-.]?\d+(\.\d+)?$`)

// knownNames is a small lexicon of model/system names that show up in
// comparison questions without capitalization or version suffixes.
var knownNames = map[string]bool{
	"gpt": true, "codex": true, "llama": true, "claude": true,
	"gemini": true, "bert": true, "palm": true, "qwen": true,
	"mistral": true, "deepseek": true, "kimi": true, "grok": true,
}

// extractEntityTerms pulls candidate entity terms out of a comparison
// query: version-like tokens (v3, k2, gpt-4), capitalized words, and
// lexicon hits. Order of first appearance, deduplicated.
func extractEntityTerms(query string) []string {
	var terms []string
	seen := make(map[string]bool)
	add := func(term string) {
		key := strings.ToLower(term)
		if !seen[key] {
			seen[key] = true
			terms = append(terms, term)
		}
	}

	for _, raw := range strings.Fields(query) {
		tok := strings.Trim(raw, ".,;:!?()\"'")
		if tok == "" {
			continue
		}
		lower := strings.ToLower(tok)

		if knownNames[lower] {
			add(tok)
			continue
		}
		if versionTokenPattern.MatchString(tok) {
			add(tok)
			continue
		}
		// Capitalized words that are not sentence-leading stopwords.
		if tok[0] >= 'A' && tok[0] <= 'Z' && len(tok) > 1 && !isStopword(lower) {
			add(tok)
		}
	}
	return terms
}

var stopwords = map[string]bool{
	"compare": true, "versus": true, "vs": true, "and": true, "both": true,
	"between": true, "what": true, "how": true, "which": true, "the": true,
	"does": true, "is": true, "are": true, "do": true,
}

func isStopword(w string) bool {
	return stopwords[w]
}
