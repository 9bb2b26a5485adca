// Package research answers questions across the whole library with a
// three-stage pipeline: summary-level paper selection, detail retrieval
// restricted to the selected papers, and LLM synthesis over the grouped
// excerpts.
package research

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"paperdesk/internal/index"
	"paperdesk/internal/llm"
	"paperdesk/internal/logging"
	"paperdesk/internal/paper"
	"paperdesk/internal/retrieval"
	"paperdesk/internal/store"
)

const (
	defaultSummaryPapers = 5
	defaultDetailChunks  = 10
	stageCutoff          = 0.5
)

// StepError wraps a failure with the pipeline stage it happened in. The
// command layer renders it; it never crosses the session boundary raw.
type StepError struct {
	Stage string
	Cause error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("research stage %q failed: %v", e.Stage, e.Cause)
}

func (e *StepError) Unwrap() error { return e.Cause }

// PaperContext is one referenced paper with the pages its excerpts came from.
type PaperContext struct {
	Metadata *paper.Metadata
	Pages    []int
}

// Result is the pipeline output. Success=false with a message covers the
// "no relevant papers" outcome, which is not an error.
type Result struct {
	Success   bool
	Message   string
	Synthesis string
	Papers    []PaperContext
	PaperIDs  []string
}

// Pipeline wires the retrieval engine, the metadata store, and the LLM.
type Pipeline struct {
	retriever     *retrieval.Engine
	store         *store.Store
	llm           llm.Client
	summaryPapers int
	detailChunks  int
	mmrAlpha      float64
}

// Options tunes the pipeline; zero values take the defaults.
type Options struct {
	SummaryPapers int
	DetailChunks  int
	MMRAlpha      float64
}

func NewPipeline(retriever *retrieval.Engine, st *store.Store, client llm.Client, opts Options) *Pipeline {
	if opts.SummaryPapers <= 0 {
		opts.SummaryPapers = defaultSummaryPapers
	}
	if opts.DetailChunks <= 0 {
		opts.DetailChunks = defaultDetailChunks
	}
	if opts.MMRAlpha <= 0 || opts.MMRAlpha > 1 {
		opts.MMRAlpha = 0.5
	}
	return &Pipeline{
		retriever:     retriever,
		store:         st,
		llm:           client,
		summaryPapers: opts.SummaryPapers,
		detailChunks:  opts.DetailChunks,
		mmrAlpha:      opts.MMRAlpha,
	}
}

// Run executes the three stages. Errors always come back as *StepError so
// the command layer can name the failing stage.
func (p *Pipeline) Run(ctx context.Context, question string) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryResearch, "Run")
	defer timer.Stop()

	summaryChunks, paperIDs, err := p.selectPapers(ctx, question)
	if err != nil {
		return nil, &StepError{Stage: "paper selection", Cause: err}
	}
	if len(paperIDs) == 0 {
		logging.Research("no papers above cutoff for %q", question)
		return &Result{Success: false, Message: "no relevant papers found for this question"}, nil
	}
	logging.Research("stage 1 selected %d papers for %q", len(paperIDs), question)

	detailChunks, err := p.detailFor(ctx, question, paperIDs, summaryChunks)
	if err != nil {
		return nil, &StepError{Stage: "detail retrieval", Cause: err}
	}

	synthesis, papers, err := p.synthesize(ctx, question, detailChunks)
	if err != nil {
		return nil, &StepError{Stage: "synthesis", Cause: err}
	}

	ids := make([]string, len(papers))
	for i, pc := range papers {
		ids[i] = pc.Metadata.PaperID
	}
	return &Result{
		Success:   true,
		Synthesis: synthesis,
		Papers:    papers,
		PaperIDs:  paper.SortIDsAscending(ids),
	}, nil
}

// selectPapers runs the summary-index pass and collapses hits to the unique
// set of papers they reference.
func (p *Pipeline) selectPapers(ctx context.Context, question string) ([]index.Chunk, []string, error) {
	chunks, err := p.retriever.Search(ctx, question, retrieval.Options{
		Index:            index.Summary,
		K:                p.summaryPapers,
		UseMMR:           true,
		MMRAlpha:         p.mmrAlpha,
		SimilarityCutoff: stageCutoff,
	})
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, c := range chunks {
		if !seen[c.PaperID] {
			seen[c.PaperID] = true
			ids = append(ids, c.PaperID)
		}
	}
	return chunks, ids, nil
}

// detailFor runs the content-index pass restricted to the selected papers.
// An empty detail set, including a content index that was never built,
// falls back to the summary chunks instead of failing the question.
func (p *Pipeline) detailFor(ctx context.Context, question string, paperIDs []string, summaryChunks []index.Chunk) ([]index.Chunk, error) {
	chunks, err := p.retriever.Search(ctx, question, retrieval.Options{
		Index:            index.Content,
		K:                p.detailChunks,
		SimilarityCutoff: stageCutoff,
		PaperFilter:      paperIDs,
	})
	if err != nil {
		var notInit *index.ErrNotInitialized
		if errors.As(err, &notInit) {
			logging.Research("content index not built; answering from summaries")
			return summaryChunks, nil
		}
		return nil, err
	}
	if len(chunks) == 0 {
		logging.Research("no detail chunks above cutoff; answering from summaries")
		return summaryChunks, nil
	}
	return chunks, nil
}

// synthesize groups chunks per paper, builds the context blocks, and asks
// the LLM for a grounded answer.
func (p *Pipeline) synthesize(ctx context.Context, question string, chunks []index.Chunk) (string, []PaperContext, error) {
	grouped := make(map[string][]index.Chunk)
	var order []string
	for _, c := range chunks {
		if _, ok := grouped[c.PaperID]; !ok {
			order = append(order, c.PaperID)
		}
		grouped[c.PaperID] = append(grouped[c.PaperID], c)
	}
	sort.Strings(order)

	var (
		blocks strings.Builder
		papers []PaperContext
	)
	for _, id := range order {
		meta, err := p.store.GetPaper(ctx, id)
		if err != nil {
			// Chunks can outlive store rows after partial rebuilds; keep
			// the excerpt usable with a minimal identity.
			logging.Research("metadata missing for %s: %v", id, err)
			meta = &paper.Metadata{PaperID: id, Title: "(metadata unavailable)"}
		}

		fmt.Fprintf(&blocks, "## %s [%s]\n", meta.Title, id)
		pageSet := make(map[int]bool)
		for _, c := range grouped[id] {
			if c.SourceType == index.SourceContent {
				fmt.Fprintf(&blocks, "\n(page %d)\n%s\n", c.Page, c.Text)
				pageSet[c.Page] = true
			} else {
				fmt.Fprintf(&blocks, "\n(%s)\n%s\n", c.SourceType, c.Text)
			}
		}
		blocks.WriteString("\n")

		pages := make([]int, 0, len(pageSet))
		for pg := range pageSet {
			pages = append(pages, pg)
		}
		sort.Ints(pages)
		papers = append(papers, PaperContext{Metadata: meta, Pages: pages})
	}

	system, user := llm.SynthesizePrompt(question, blocks.String())
	answer, err := p.llm.CompleteWithSystem(ctx, system, user)
	if err != nil {
		return "", nil, err
	}
	return answer, papers, nil
}
