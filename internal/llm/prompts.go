package llm

import (
	"fmt"
	"strings"
)

// Prompt templates for the three LLM-backed operations. Kept as plain
// format strings; there is no template storage layer in this binary.

const summarizeSystem = `You are a research assistant. Summarize academic papers
faithfully: state the problem, the approach, the key results, and notable
limitations. Use markdown headings. Do not invent citations or numbers.`

const refineSystem = `You are a research assistant revising a paper summary.
Apply the user's feedback to the current draft. Keep everything that was not
asked to change. Return only the revised summary in markdown.`

const synthesizeSystem = `You are a research assistant answering a question from
excerpts of multiple academic papers. Ground every claim in the provided
excerpts and cite papers inline as [paper_id]. If the excerpts do not answer
the question, say so plainly.`

// SummarizePrompt builds the prompt for first-pass paper summarization.
func SummarizePrompt(title, paperID, abstract, fullText string) (system, user string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize the following paper.\n\nTitle: %s\narXiv ID: %s\n\nAbstract:\n%s\n", title, paperID, abstract)
	if fullText != "" {
		fmt.Fprintf(&sb, "\nFull text (extracted, may contain artifacts):\n%s\n", fullText)
	}
	return summarizeSystem, sb.String()
}

// RefinePrompt builds the prompt for feedback-driven draft revision.
// There is no hidden conversation memory; the whole state is the draft.
func RefinePrompt(currentDraft, feedback string) (system, user string) {
	user = fmt.Sprintf("Current summary:\n\n%s\n\nFeedback:\n%s\n", currentDraft, feedback)
	return refineSystem, user
}

// SynthesizePrompt builds the research-synthesis prompt from per-paper
// context blocks already assembled by the research pipeline.
func SynthesizePrompt(question, contextBlocks string) (system, user string) {
	user = fmt.Sprintf("Question: %s\n\nPaper excerpts:\n\n%s", question, contextBlocks)
	return synthesizeSystem, user
}
