package discovery

import (
	"context"
	"regexp"
	"strings"

	"paperdesk/internal/llm"
	"paperdesk/internal/logging"
	"paperdesk/internal/paper"
)

const finderSystem = `You are an arXiv paper scout. Given a research question,
reply with the arXiv identifiers of the most relevant papers you know of,
one per line, newest versions preferred. Reply with identifiers only, such
as 2107.03374v2 or 2412.19437. No commentary.`

// LLMFinder asks a language model to propose arXiv ids for a query. It is
// the primary discovery path; the cascade falls back to keyword search when
// the model is unconfigured or proposes nothing usable.
type LLMFinder struct {
	client llm.Client
}

func NewLLMFinder(client llm.Client) *LLMFinder {
	return &LLMFinder{client: client}
}

var idTokenPattern = regexp.MustCompile(`\b(\d{4}\.\d{4,5}(?:v\d+)?|[a-z][a-z-]*(?:\.[A-Z]{2})?/\d{7}(?:v\d+)?)\b`)

// FindPaperIDs returns up to limit syntactically valid ids from the model's
// reply, in reply order. Duplicates survive here; the cascade dedupes.
func (f *LLMFinder) FindPaperIDs(ctx context.Context, query string, limit int) ([]string, error) {
	reply, err := f.client.CompleteWithSystem(ctx, finderSystem, "Research question: "+strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, match := range idTokenPattern.FindAllString(reply, -1) {
		if !paper.IsValidID(match) {
			continue
		}
		ids = append(ids, match)
		if len(ids) >= limit {
			break
		}
	}
	logging.Discovery("model proposed %d usable ids for %q", len(ids), query)
	return ids, nil
}
