package workflow

import (
	"context"
	"fmt"
	"os"

	"paperdesk/internal/index"
	"paperdesk/internal/logging"
)

// Rebuild drops both indices and re-derives them from the store: content
// from the downloaded PDFs, summaries and notes from their stored bodies.
func (o *Orchestrator) Rebuild(ctx context.Context) error {
	o.ui.Progress("clearing indices")
	for _, name := range []index.Name{index.Content, index.Summary} {
		if err := o.index.Clear(ctx, name); err != nil {
			return o.fail("rebuild", err)
		}
	}
	return o.Reindex(ctx)
}

// Reindex fills index gaps without touching existing chunks: papers with a
// PDF but no content chunks get extracted and indexed, stored summaries
// and notes missing from the summary index get re-embedded.
func (o *Orchestrator) Reindex(ctx context.Context) error {
	papers, err := o.store.ListPapers(ctx)
	if err != nil {
		return o.fail("reindex", err)
	}

	indexed := 0
	for _, meta := range papers {
		if !o.index.HasPaper(ctx, index.Content, meta.PaperID) {
			path, err := o.store.PDFPath(ctx, meta.PaperID)
			if err == nil && path != "" {
				pages, err := o.extract(path)
				if err != nil {
					logging.Workflow("skipping content for %s: %v", meta.PaperID, err)
				} else if err := o.index.IndexContent(ctx, meta.PaperID, pages); err != nil {
					return o.fail("reindex", err)
				} else {
					indexed++
				}
			}
		}

		if !o.index.HasPaper(ctx, index.Summary, meta.PaperID) {
			if body, err := o.store.GetSummary(ctx, meta.PaperID); err == nil && body != "" {
				if err := o.index.IndexSummary(ctx, meta.PaperID, body); err != nil {
					return o.fail("reindex", err)
				}
			}
			notes, err := o.store.Notes(ctx, meta.PaperID)
			if err == nil {
				for _, note := range notes {
					if err := o.index.IndexNote(ctx, meta.PaperID, note); err != nil {
						return o.fail("reindex", err)
					}
				}
			}
		}
	}

	o.ui.Success(fmt.Sprintf("reindex complete: %d papers newly indexed", indexed))
	return nil
}

// ValidationReport lists inconsistencies between the store and the indices.
type ValidationReport struct {
	Papers        int
	MissingPDFs   []string // recorded pdf path no longer on disk
	UnindexedPDFs []string // pdf present but no content chunks
	OrphanChunks  []string // chunks whose paper left the store
}

func (r ValidationReport) Clean() bool {
	return len(r.MissingPDFs) == 0 && len(r.UnindexedPDFs) == 0 && len(r.OrphanChunks) == 0
}

// Validate cross-checks store rows, files on disk, and index contents.
// It only reports; rebuild and reindex do the repairs.
func (o *Orchestrator) Validate(ctx context.Context) (ValidationReport, error) {
	var report ValidationReport

	papers, err := o.store.ListPapers(ctx)
	if err != nil {
		return report, o.fail("validate", err)
	}
	report.Papers = len(papers)

	known := make(map[string]bool, len(papers))
	for _, meta := range papers {
		known[meta.PaperID] = true
		path, err := o.store.PDFPath(ctx, meta.PaperID)
		if err != nil || path == "" {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			report.MissingPDFs = append(report.MissingPDFs, meta.PaperID)
			continue
		}
		if !o.index.HasPaper(ctx, index.Content, meta.PaperID) {
			report.UnindexedPDFs = append(report.UnindexedPDFs, meta.PaperID)
		}
	}

	for _, name := range []index.Name{index.Content, index.Summary} {
		ids, err := o.index.PapersIndexed(ctx, name)
		if err != nil {
			return report, o.fail("validate", err)
		}
		for _, id := range ids {
			if !known[id] {
				report.OrphanChunks = append(report.OrphanChunks, fmt.Sprintf("%s (%s)", id, name))
			}
		}
	}
	return report, nil
}

// SummarizeAll drafts and persists a summary for every stored paper that
// does not have one yet. Per-paper failures are reported and skipped so one
// broken PDF cannot block the batch.
func (o *Orchestrator) SummarizeAll(ctx context.Context) (done, failed int, err error) {
	papers, err := o.store.ListPapers(ctx)
	if err != nil {
		return 0, 0, o.fail("summarize-all", err)
	}

	for _, meta := range papers {
		if o.store.HasSummary(ctx, meta.PaperID) {
			continue
		}
		draft, err := o.Summarize(ctx, meta.PaperID)
		if err != nil {
			failed++
			continue
		}
		if err := o.Persist(ctx, meta.PaperID, draft); err != nil {
			failed++
			continue
		}
		done++
	}

	o.ui.Success(fmt.Sprintf("summarized %d papers (%d failed)", done, failed))
	return done, failed, nil
}
