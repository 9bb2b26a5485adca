// Package workflow drives the acquire → index → summarize → refine →
// persist pipeline for a single paper. Steps report progress through an
// injected UI capability and fail with a typed step error; effects of
// completed steps are never rolled back.
package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"paperdesk/internal/index"
	"paperdesk/internal/llm"
	"paperdesk/internal/logging"
	"paperdesk/internal/paper"
	"paperdesk/internal/store"
	"paperdesk/internal/ui"
)

// StepError names the pipeline step that failed. Earlier steps' effects
// stand: a downloaded file stays on disk even when summarization fails.
type StepError struct {
	Step  string
	Cause error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Cause)
}

func (e *StepError) Unwrap() error { return e.Cause }

// Source fetches metadata and PDFs. The arxiv client satisfies this.
type Source interface {
	FetchMetadata(ctx context.Context, id string) (*paper.Metadata, error)
	DownloadPDF(ctx context.Context, paperID, pdfURL, destDir string) (string, error)
}

// Extractor turns a PDF file into per-page text.
type Extractor func(path string) ([]index.PageText, error)

// Orchestrator owns one paper's end-to-end workflow.
type Orchestrator struct {
	store   *store.Store
	source  Source
	index   *index.VectorIndex
	llm     llm.Client
	ui      ui.UI
	extract Extractor
	pdfDir  string
}

func NewOrchestrator(st *store.Store, source Source, idx *index.VectorIndex, client llm.Client, u ui.UI, extract Extractor, pdfDir string) *Orchestrator {
	return &Orchestrator{
		store:   st,
		source:  source,
		index:   idx,
		llm:     client,
		ui:      u,
		extract: extract,
		pdfDir:  pdfDir,
	}
}

// Summarize runs acquire → index-content → draft for one paper and returns
// the draft. Already-present artifacts are detected and skipped, so
// re-running against a complete paper does no duplicate work.
func (o *Orchestrator) Summarize(ctx context.Context, paperID string) (string, error) {
	meta, err := o.acquire(ctx, paperID)
	if err != nil {
		return "", err
	}
	pages, err := o.indexContent(ctx, meta)
	if err != nil {
		return "", err
	}
	return o.draft(ctx, meta, pages)
}

// acquire ensures metadata is stored and the PDF is on disk.
func (o *Orchestrator) acquire(ctx context.Context, paperID string) (*paper.Metadata, error) {
	meta, err := o.store.GetPaper(ctx, paperID)
	if err != nil {
		o.ui.Progress("fetching metadata for " + paperID)
		meta, err = o.source.FetchMetadata(ctx, paperID)
		if err != nil {
			return nil, o.fail("acquire", fmt.Errorf("fetch metadata: %w", err))
		}
		if err := o.store.UpsertPaper(ctx, meta); err != nil {
			return nil, o.fail("acquire", err)
		}
	}

	if path, err := o.store.PDFPath(ctx, meta.PaperID); err == nil && path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			logging.Workflow("pdf for %s already at %s", meta.PaperID, path)
			return meta, nil
		}
	}

	o.ui.Progress("downloading PDF for " + meta.PaperID)
	path, err := o.source.DownloadPDF(ctx, meta.PaperID, meta.PDFURL, o.pdfDir)
	if err != nil {
		return nil, o.fail("acquire", fmt.Errorf("download pdf: %w", err))
	}
	if err := o.store.SetPDFPath(ctx, meta.PaperID, path); err != nil {
		return nil, o.fail("acquire", err)
	}
	o.ui.Success("downloaded " + filepath.Base(path))
	return meta, nil
}

// indexContent extracts and indexes the paper's full text, skipping papers
// whose chunks already exist. It returns the extracted pages so the
// summarize step can reuse them without a second extraction.
func (o *Orchestrator) indexContent(ctx context.Context, meta *paper.Metadata) ([]index.PageText, error) {
	path, err := o.store.PDFPath(ctx, meta.PaperID)
	if err != nil || path == "" {
		return nil, o.fail("index", fmt.Errorf("no pdf recorded for %s", meta.PaperID))
	}

	pages, err := o.extract(path)
	if err != nil {
		return nil, o.fail("index", err)
	}

	if o.index.HasPaper(ctx, index.Content, meta.PaperID) {
		logging.Workflow("content for %s already indexed", meta.PaperID)
		return pages, nil
	}

	o.ui.Progress(fmt.Sprintf("indexing %d pages of %s", len(pages), meta.PaperID))
	if err := o.index.IndexContent(ctx, meta.PaperID, pages); err != nil {
		return nil, o.fail("index", err)
	}
	o.ui.Success("indexed " + meta.PaperID)
	return pages, nil
}

// summaryExcerptLimit bounds how much extracted text goes into the prompt.
const summaryExcerptLimit = 60_000

// draft produces the summary text, reusing a stored summary when present.
func (o *Orchestrator) draft(ctx context.Context, meta *paper.Metadata, pages []index.PageText) (string, error) {
	if existing, err := o.store.GetSummary(ctx, meta.PaperID); err == nil && existing != "" {
		logging.Workflow("summary for %s already stored", meta.PaperID)
		return existing, nil
	}

	var full string
	for _, pg := range pages {
		room := summaryExcerptLimit - len(full)
		if room <= 0 {
			break
		}
		if len(pg.Text) >= room {
			full += pg.Text[:room]
			break
		}
		full += pg.Text + "\n"
	}

	o.ui.Progress("summarizing " + meta.PaperID)
	system, user := llm.SummarizePrompt(meta.Title, meta.PaperID, meta.Abstract, full)
	body, err := o.llm.CompleteWithSystem(ctx, system, user)
	if err != nil {
		return "", o.fail("summarize", err)
	}
	return body, nil
}

// Refine applies feedback to a draft. The draft is the entire state; there
// is no hidden conversation memory.
func (o *Orchestrator) Refine(ctx context.Context, draft, feedback string) (string, error) {
	o.ui.Progress("revising summary")
	system, user := llm.RefinePrompt(draft, feedback)
	body, err := o.llm.CompleteWithSystem(ctx, system, user)
	if err != nil {
		return "", o.fail("refine", err)
	}
	return body, nil
}

// Persist saves the draft and (re)indexes it into the summary index.
// Both writes replace prior versions, so persisting twice is harmless.
func (o *Orchestrator) Persist(ctx context.Context, paperID, draft string) error {
	if err := o.store.SaveSummary(ctx, paperID, draft); err != nil {
		return o.fail("persist", err)
	}
	if err := o.index.IndexSummary(ctx, paperID, draft); err != nil {
		return o.fail("persist", err)
	}
	o.ui.Success("saved summary for " + paperID)
	return nil
}

// AddNote stores a note and makes it retrievable alongside summaries.
func (o *Orchestrator) AddNote(ctx context.Context, paperID, note string) error {
	if err := o.store.AddNote(ctx, paperID, note); err != nil {
		return o.fail("notes", err)
	}
	if err := o.index.IndexNote(ctx, paperID, note); err != nil {
		return o.fail("notes", err)
	}
	return nil
}

func (o *Orchestrator) fail(step string, cause error) *StepError {
	err := &StepError{Step: step, Cause: cause}
	logging.Workflow("%v", err)
	o.ui.Error(err.Error())
	return err
}
