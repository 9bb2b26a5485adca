package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"paperdesk/internal/index"
	"paperdesk/internal/paper"
	"paperdesk/internal/retrieval"
)

func (s *Session) handleFind(ctx context.Context, query string) CommandResult {
	if query == "" {
		return failure("usage: find <query>")
	}

	s.ui.Progress("searching arXiv for " + query)
	papers, err := s.cascade.Discover(ctx, query, s.cfg.Index.TopK)
	if err != nil {
		return failure("discovery failed: %v", err)
	}
	if len(papers) == 0 {
		s.state.OnDiscovery(nil)
		return CommandResult{Success: true, Message: "no papers found for " + query}
	}

	// Cache metadata so numeric references keep working offline.
	ids := make([]string, len(papers))
	for i, m := range papers {
		ids[i] = m.PaperID
		if err := s.store.UpsertPaper(ctx, m); err != nil {
			return failure("caching metadata: %v", err)
		}
	}

	s.state.OnDiscovery(ids)
	s.ui.DisplayPapers(papers)
	return CommandResult{
		Success:  true,
		Message:  fmt.Sprintf("found %d papers", len(papers)),
		PaperIDs: s.state.LastQuerySet(),
	}
}

func (s *Session) handleList(ctx context.Context) CommandResult {
	papers, err := s.store.ListPapers(ctx)
	if err != nil {
		return failure("listing library: %v", err)
	}
	ids := make([]string, len(papers))
	for i, m := range papers {
		ids[i] = m.PaperID
	}

	s.state.OnListLibrary(ids)
	s.ui.DisplayPapers(papers)
	return CommandResult{
		Success:  true,
		Message:  fmt.Sprintf("%d papers in library", len(papers)),
		PaperIDs: s.state.LastQuerySet(),
	}
}

func (s *Session) handleSelect(ctx context.Context, token string) CommandResult {
	id, err := s.resolver.Resolve(ctx, "select", token, s.state.LastQuerySet())
	if err != nil {
		return failure("%v", err)
	}
	meta, err := s.store.GetPaper(ctx, id)
	if err != nil {
		return failure("loading %s: %v", id, err)
	}

	s.state.OnSelect(id)
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", meta.Title)
	fmt.Fprintf(&sb, "**%s** · %s", meta.PaperID, meta.AuthorLine(5))
	if cat := meta.PrimaryCategory(); cat != "" {
		fmt.Fprintf(&sb, " · %s", cat)
	}
	if !meta.Published.IsZero() {
		fmt.Fprintf(&sb, " · %s", meta.Published.Format("2006-01-02"))
	}
	fmt.Fprintf(&sb, "\n\n%s\n", meta.Abstract)
	return CommandResult{Success: true, Content: sb.String(), PaperIDs: []string{id}}
}

func (s *Session) handleSummarize(ctx context.Context, token string) CommandResult {
	id, err := s.resolver.Resolve(ctx, "summarize", token, s.state.LastQuerySet())
	if err != nil {
		return failure("%v", err)
	}

	draft, err := s.orch.Summarize(ctx, id)
	if err != nil {
		return failure("%v", err)
	}

	s.state.OnSummarize(id, draft)
	return CommandResult{
		Success:  true,
		Message:  "draft ready; `improve <feedback>` to revise, `save` to keep it",
		Content:  draft,
		PaperIDs: []string{id},
	}
}

func (s *Session) handleImprove(ctx context.Context, feedback string) CommandResult {
	if s.state.Draft() == "" {
		return failure("no draft to improve; summarize a paper first")
	}
	if feedback == "" {
		return failure("usage: improve <feedback>")
	}

	revised, err := s.orch.Refine(ctx, s.state.Draft(), feedback)
	if err != nil {
		return failure("%v", err)
	}
	s.state.SetDraft(revised)
	return CommandResult{Success: true, Message: "draft revised", Content: revised}
}

func (s *Session) handleSave(ctx context.Context) CommandResult {
	if s.state.Draft() == "" || s.state.SelectedPaper() == "" {
		return failure("nothing to save; summarize a paper first")
	}
	if err := s.orch.Persist(ctx, s.state.SelectedPaper(), s.state.Draft()); err != nil {
		return failure("%v", err)
	}
	return CommandResult{
		Success:  true,
		Message:  "summary saved for " + s.state.SelectedPaper(),
		PaperIDs: []string{s.state.SelectedPaper()},
	}
}

func (s *Session) handleSemSearch(ctx context.Context, query string) CommandResult {
	if query == "" {
		return failure("usage: sem-search <query>")
	}

	chunks, err := s.retriever.Search(ctx, query, retrieval.Options{
		Index:            index.Content,
		K:                s.cfg.Index.TopK,
		UseMMR:           true,
		MMRAlpha:         s.cfg.Index.MMRAlpha,
		SimilarityCutoff: s.cfg.Index.SimilarityCutoff,
	})
	if err != nil {
		var notInit *index.ErrNotInitialized
		if errors.As(err, &notInit) {
			return failure("nothing indexed yet; summarize a paper first")
		}
		return failure("search failed: %v", err)
	}
	if len(chunks) == 0 {
		s.state.OnSearchResults(StateSemSearch, nil, "", "")
		return CommandResult{Success: true, Message: "no matches for " + query}
	}

	content := renderChunks(chunks)
	s.state.OnSearchResults(StateSemSearch, chunkPaperIDs(chunks), content, query)
	return CommandResult{
		Success:  true,
		Message:  fmt.Sprintf("%d matching passages", len(chunks)),
		Content:  content,
		PaperIDs: s.state.LastQuerySet(),
	}
}

func (s *Session) handleResearch(ctx context.Context, question string) CommandResult {
	if question == "" {
		return failure("usage: research <question>")
	}

	s.ui.Progress("researching across the library")
	res, err := s.research.Run(ctx, question)
	if err != nil {
		return failure("%v", err)
	}
	if !res.Success {
		s.state.OnSearchResults(StateResearch, nil, "", "")
		return CommandResult{Success: true, Message: res.Message}
	}

	var sb strings.Builder
	sb.WriteString(res.Synthesis)
	sb.WriteString("\n\n## Sources\n")
	for _, pc := range res.Papers {
		fmt.Fprintf(&sb, "- %s [%s]", pc.Metadata.Title, pc.Metadata.PaperID)
		if len(pc.Pages) > 0 {
			fmt.Fprintf(&sb, " — pages %s", joinInts(pc.Pages))
		}
		sb.WriteString("\n")
	}
	content := sb.String()

	s.state.OnSearchResults(StateResearch, res.PaperIDs, content, question)
	return CommandResult{
		Success:  true,
		Message:  fmt.Sprintf("answer drawn from %d papers", len(res.Papers)),
		Content:  content,
		PaperIDs: s.state.LastQuerySet(),
	}
}

func (s *Session) handleSummary(ctx context.Context, token string) CommandResult {
	id, err := s.resolver.Resolve(ctx, "summary", token, s.state.LastQuerySet())
	if err != nil {
		return failure("%v", err)
	}
	body, err := s.store.GetSummary(ctx, id)
	if err != nil {
		return failure("loading summary for %s: %v", id, err)
	}
	if body == "" {
		return failure("no saved summary for %s; try `summarize %s`", id, id)
	}
	return CommandResult{Success: true, Content: body, PaperIDs: []string{id}}
}

func (s *Session) handleOpen(ctx context.Context, token string) CommandResult {
	id, err := s.resolver.Resolve(ctx, "open", token, s.state.LastQuerySet())
	if err != nil {
		return failure("%v", err)
	}
	meta, err := s.store.GetPaper(ctx, id)
	if err != nil {
		return failure("loading %s: %v", id, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n  abstract: %s\n  pdf:      %s\n", meta.Title, meta.AbsURL, meta.PDFURL)
	if path, err := s.store.PDFPath(ctx, id); err == nil && path != "" {
		fmt.Fprintf(&sb, "  local:    %s\n", path)
	}
	return CommandResult{Success: true, Content: sb.String(), PaperIDs: []string{id}}
}

func (s *Session) handleNotes(ctx context.Context, rest string) CommandResult {
	fields := strings.Fields(rest)
	ref := ""
	if len(fields) > 0 {
		ref = fields[0]
	}
	id, err := s.resolver.Resolve(ctx, "notes", ref, s.state.LastQuerySet())
	if err != nil {
		return failure("%v", err)
	}

	if len(fields) <= 1 {
		notes, err := s.store.Notes(ctx, id)
		if err != nil {
			return failure("loading notes for %s: %v", id, err)
		}
		if len(notes) == 0 {
			return CommandResult{Success: true, Message: "no notes for " + id, PaperIDs: []string{id}}
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "# Notes on %s\n\n", id)
		for _, note := range notes {
			fmt.Fprintf(&sb, "- %s\n", note)
		}
		return CommandResult{Success: true, Content: sb.String(), PaperIDs: []string{id}}
	}

	note := strings.Join(fields[1:], " ")
	if err := s.orch.AddNote(ctx, id, note); err != nil {
		return failure("%v", err)
	}
	return CommandResult{Success: true, Message: "note added to " + id, PaperIDs: []string{id}}
}

func (s *Session) handleStatus(ctx context.Context) CommandResult {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return failure("reading store: %v", err)
	}

	var sb strings.Builder
	sb.WriteString("# Status\n\n")
	fmt.Fprintf(&sb, "- state: %s\n", s.state.State())
	fmt.Fprintf(&sb, "- papers: %d, summaries: %d, notes: %d\n", stats.Papers, stats.Summaries, stats.Notes)
	for _, name := range []index.Name{index.Content, index.Summary} {
		if n, err := s.retriever.Index().Count(ctx, name); err == nil {
			fmt.Fprintf(&sb, "- %s index: %d chunks\n", name, n)
		}
	}
	if set := s.state.LastQuerySet(); len(set) > 0 {
		fmt.Fprintf(&sb, "- current result set: %d papers\n", len(set))
	}
	if s.state.SelectedPaper() != "" {
		fmt.Fprintf(&sb, "- selected: %s\n", s.state.SelectedPaper())
	}
	return CommandResult{Success: true, Content: sb.String()}
}

func (s *Session) handleHistory() CommandResult {
	if len(s.history) <= 1 {
		return CommandResult{Success: true, Message: "no earlier commands"}
	}
	var sb strings.Builder
	for i, line := range s.history[:len(s.history)-1] {
		fmt.Fprintf(&sb, "%3d  %s\n", i+1, line)
	}
	return CommandResult{Success: true, Content: sb.String()}
}

func (s *Session) handleRebuild(ctx context.Context) CommandResult {
	if err := s.orch.Rebuild(ctx); err != nil {
		return failure("%v", err)
	}
	return CommandResult{Success: true, Message: "indices rebuilt from the library"}
}

func (s *Session) handleReindex(ctx context.Context) CommandResult {
	if err := s.orch.Reindex(ctx); err != nil {
		return failure("%v", err)
	}
	return CommandResult{Success: true, Message: "index gaps filled"}
}

func (s *Session) handleValidate(ctx context.Context) CommandResult {
	report, err := s.orch.Validate(ctx)
	if err != nil {
		return failure("%v", err)
	}
	if report.Clean() {
		return CommandResult{Success: true, Message: fmt.Sprintf("library consistent: %d papers", report.Papers)}
	}

	var sb strings.Builder
	sb.WriteString("# Validation\n\n")
	for _, id := range report.MissingPDFs {
		fmt.Fprintf(&sb, "- missing pdf: %s\n", id)
	}
	for _, id := range report.UnindexedPDFs {
		fmt.Fprintf(&sb, "- pdf not indexed: %s (run reindex)\n", id)
	}
	for _, id := range report.OrphanChunks {
		fmt.Fprintf(&sb, "- orphaned chunks: %s (run rebuild)\n", id)
	}
	return CommandResult{Success: true, Content: sb.String()}
}

func (s *Session) handleSummarizeAll(ctx context.Context) CommandResult {
	done, failed, err := s.orch.SummarizeAll(ctx)
	if err != nil {
		return failure("%v", err)
	}
	return CommandResult{Success: true, Message: fmt.Sprintf("summarized %d papers, %d failed", done, failed)}
}

// renderChunks formats retrieval hits with their provenance.
func renderChunks(chunks []index.Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&sb, "**%s** (page %d, %.2f)\n\n%s\n\n", c.PaperID, c.Page, c.Similarity, c.Text)
	}
	return sb.String()
}

// chunkPaperIDs collapses chunks to their unique paper ids.
func chunkPaperIDs(chunks []index.Chunk) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, c := range chunks {
		if !seen[c.PaperID] {
			seen[c.PaperID] = true
			ids = append(ids, c.PaperID)
		}
	}
	return paper.SortIDsAscending(ids)
}

// joinInts renders a page list like "3, 5".
func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
