package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"paperdesk/internal/index"
	"paperdesk/internal/paper"
	"paperdesk/internal/store"
)

type fixture struct {
	orch   *Orchestrator
	store  *store.Store
	index  *index.VectorIndex
	source *fakeSource
	llm    *fakeLLM
	ui     *fakeUI
}

func newFixture(t *testing.T, extract Extractor) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "paperdesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	idx := index.New(st.DB(), &fakeEngine{dims: 8})
	require.NoError(t, idx.InitOrLoad(context.Background()))

	source := &fakeSource{papers: map[string]*paper.Metadata{
		"2107.03374v2": {
			PaperID:  "2107.03374v2",
			Title:    "Evaluating LLMs on Code",
			Abstract: "We study code generation.",
			PDFURL:   "https://arxiv.org/pdf/2107.03374v2",
		},
	}}
	client := &fakeLLM{reply: "## Summary\ndraft text"}
	u := &fakeUI{}
	if extract == nil {
		extract = fixedPages(index.PageText{Page: 1, Text: "codex full text"})
	}
	orch := NewOrchestrator(st, source, idx, client, u, extract, filepath.Join(dir, "pdfs"))
	return &fixture{orch: orch, store: st, index: idx, source: source, llm: client, ui: u}
}

func TestSummarizeEndToEnd(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	draft, err := fx.orch.Summarize(ctx, "2107.03374v2")
	require.NoError(t, err)
	require.Equal(t, "## Summary\ndraft text", draft)

	require.True(t, fx.store.HasPaper(ctx, "2107.03374v2"))
	path, err := fx.store.PDFPath(ctx, "2107.03374v2")
	require.NoError(t, err)
	require.NotEmpty(t, path)
	require.True(t, fx.index.HasPaper(ctx, index.Content, "2107.03374v2"))
	require.Equal(t, 1, fx.source.downloads)
}

func TestSummarizeIdempotentAfterPersist(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	draft, err := fx.orch.Summarize(ctx, "2107.03374v2")
	require.NoError(t, err)
	require.NoError(t, fx.orch.Persist(ctx, "2107.03374v2", draft))

	countBefore, err := fx.index.Count(ctx, index.Content)
	require.NoError(t, err)
	llmCallsBefore := fx.llm.calls

	again, err := fx.orch.Summarize(ctx, "2107.03374v2")
	require.NoError(t, err)
	require.Equal(t, draft, again)

	require.Equal(t, 1, fx.source.downloads, "existing pdf must not be re-downloaded")
	require.Equal(t, llmCallsBefore, fx.llm.calls, "stored summary must be reused")
	countAfter, err := fx.index.Count(ctx, index.Content)
	require.NoError(t, err)
	require.Equal(t, countBefore, countAfter, "re-run must not duplicate chunks")
}

func TestFailedStepKeepsEarlierEffects(t *testing.T) {
	fx := newFixture(t, func(string) ([]index.PageText, error) {
		return nil, errors.New("garbled pdf")
	})
	ctx := context.Background()

	_, err := fx.orch.Summarize(ctx, "2107.03374v2")
	var se *StepError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "index", se.Step)

	// Effects-so-far: metadata and the downloaded file survive the failure.
	require.True(t, fx.store.HasPaper(ctx, "2107.03374v2"))
	path, err := fx.store.PDFPath(ctx, "2107.03374v2")
	require.NoError(t, err)
	require.NotEmpty(t, path)
	require.NotEmpty(t, fx.ui.errors)
}

func TestPersistReplacesSummaryChunks(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, fx.orch.Persist(ctx, "2107.03374v2", "first draft"))
	require.NoError(t, fx.orch.Persist(ctx, "2107.03374v2", "second draft"))

	entries, err := fx.index.Entries(ctx, index.Summary, []string{"2107.03374v2"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "second draft", entries[0].Text)
}

func TestSummarizeExcerptAtLimitBoundary(t *testing.T) {
	// A first page that lands exactly on the excerpt limit, with more
	// pages behind it, must truncate cleanly rather than slice past the
	// remaining room.
	fx := newFixture(t, fixedPages(
		index.PageText{Page: 1, Text: strings.Repeat("a", summaryExcerptLimit)},
		index.PageText{Page: 2, Text: "trailing page"},
	))

	draft, err := fx.orch.Summarize(context.Background(), "2107.03374v2")
	require.NoError(t, err)
	require.Equal(t, "## Summary\ndraft text", draft)
}

func TestSummarizeExcerptFillsToLimitWithNewline(t *testing.T) {
	// One byte under the limit: the separator newline fills the excerpt
	// exactly, and the next page must be dropped, not sliced negatively.
	fx := newFixture(t, fixedPages(
		index.PageText{Page: 1, Text: strings.Repeat("b", summaryExcerptLimit-1)},
		index.PageText{Page: 2, Text: "trailing page"},
	))

	draft, err := fx.orch.Summarize(context.Background(), "2107.03374v2")
	require.NoError(t, err)
	require.NotEmpty(t, draft)
}

func TestRefinePassesThroughLLM(t *testing.T) {
	fx := newFixture(t, nil)
	fx.llm.reply = "revised draft"

	out, err := fx.orch.Refine(context.Background(), "old draft", "make it shorter")
	require.NoError(t, err)
	require.Equal(t, "revised draft", out)
}

func TestRebuildRestoresIndicesFromStore(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	draft, err := fx.orch.Summarize(ctx, "2107.03374v2")
	require.NoError(t, err)
	require.NoError(t, fx.orch.Persist(ctx, "2107.03374v2", draft))
	require.NoError(t, fx.orch.AddNote(ctx, "2107.03374v2", "worth rereading"))

	require.NoError(t, fx.orch.Rebuild(ctx))

	require.True(t, fx.index.HasPaper(ctx, index.Content, "2107.03374v2"))
	entries, err := fx.index.Entries(ctx, index.Summary, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2, "summary and note must both come back")
}

func TestValidateReportsGaps(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	// Paper with a pdf on disk but no content chunks.
	meta := fx.source.papers["2107.03374v2"]
	require.NoError(t, fx.store.UpsertPaper(ctx, meta))
	path, err := fx.source.DownloadPDF(ctx, meta.PaperID, meta.PDFURL, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fx.store.SetPDFPath(ctx, meta.PaperID, path))

	report, err := fx.orch.Validate(ctx)
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Equal(t, []string{"2107.03374v2"}, report.UnindexedPDFs)
	require.Equal(t, 1, report.Papers)
}

func TestSummarizeAllSkipsAlreadySummarized(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	draft, err := fx.orch.Summarize(ctx, "2107.03374v2")
	require.NoError(t, err)
	require.NoError(t, fx.orch.Persist(ctx, "2107.03374v2", draft))

	done, failed, err := fx.orch.SummarizeAll(ctx)
	require.NoError(t, err)
	require.Zero(t, done)
	require.Zero(t, failed)
}
