package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"paperdesk/internal/config"
	"paperdesk/internal/paper"
)

func newPlainTerminal(out *bytes.Buffer, in string) *Terminal {
	return NewTerminal(out, strings.NewReader(in), config.UIConfig{})
}

func TestDisplayPapersNumbersFromOne(t *testing.T) {
	var out bytes.Buffer
	term := newPlainTerminal(&out, "")

	term.DisplayPapers([]*paper.Metadata{
		{PaperID: "2412.19437v2", Title: "DeepSeek-V3", Authors: []string{"A", "B"}, Categories: []string{"cs.CL"}},
		{PaperID: "2507.20534v1", Title: "Later Paper"},
	})

	text := out.String()
	require.Contains(t, text, " 1. ")
	require.Contains(t, text, " 2. ")
	require.Contains(t, text, "2412.19437v2")
	require.Contains(t, text, "DeepSeek-V3")

	// Listed order is the reference order, so the first entry must come
	// before the second in the output.
	require.Less(t, strings.Index(text, "2412.19437v2"), strings.Index(text, "2507.20534v1"))
}

func TestDisplayPapersEmpty(t *testing.T) {
	var out bytes.Buffer
	term := newPlainTerminal(&out, "")

	term.DisplayPapers(nil)
	require.Contains(t, out.String(), "no papers")
}

func TestRenderContentHonorsMarkdownToggle(t *testing.T) {
	var out bytes.Buffer
	term := newPlainTerminal(&out, "")

	// Rendering off: no glamour renderer is built and markdown passes
	// through untouched.
	require.Nil(t, term.renderer)
	term.RenderContent("# Heading\n\nbody")
	require.Contains(t, out.String(), "# Heading")

	var rendered bytes.Buffer
	term = NewTerminal(&rendered, strings.NewReader(""), config.UIConfig{RenderMarkdown: true})
	require.NotNil(t, term.renderer)
	term.RenderContent("# Heading\n\nbody")
	require.Contains(t, rendered.String(), "Heading")
}

func TestPromptTrimsInput(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out, strings.NewReader("  find codex  \n"), config.UIConfig{})

	line, err := term.Prompt("> ")
	require.NoError(t, err)
	require.Equal(t, "find codex", line)
	require.Contains(t, out.String(), "> ")
}
