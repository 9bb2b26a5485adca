// Package ui defines the rendering capability the workflows emit through,
// plus the terminal implementation. Pipelines depend on the interface only,
// so tests can capture output without a terminal.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"paperdesk/internal/config"
	"paperdesk/internal/paper"
)

// UI is the capability surface handed to command handlers and workflows.
type UI interface {
	Progress(msg string)
	Success(msg string)
	Error(msg string)
	Info(msg string)
	RenderContent(markdown string)
	DisplayPapers(papers []*paper.Metadata)
	Prompt(label string) (string, error)
}

var (
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle    = lipgloss.NewStyle().Bold(true)
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Terminal renders to an io.Writer and reads prompts from an io.Reader.
type Terminal struct {
	out      io.Writer
	in       *bufio.Reader
	renderer *glamour.TermRenderer
}

// NewTerminal builds a terminal UI. Markdown rendering and color follow the
// config; with rendering off (or a renderer that cannot be constructed)
// markdown passes through as plain text.
func NewTerminal(out io.Writer, in io.Reader, cfg config.UIConfig) *Terminal {
	var renderer *glamour.TermRenderer
	if cfg.RenderMarkdown {
		opts := []glamour.TermRendererOption{glamour.WithWordWrap(100)}
		if cfg.Color {
			opts = append(opts, glamour.WithAutoStyle())
		} else {
			opts = append(opts, glamour.WithStandardStyle("notty"))
		}
		if r, err := glamour.NewTermRenderer(opts...); err == nil {
			renderer = r
		}
	}
	return &Terminal{out: out, in: bufio.NewReader(in), renderer: renderer}
}

func (t *Terminal) Progress(msg string) {
	fmt.Fprintln(t.out, progressStyle.Render("… "+msg))
}

func (t *Terminal) Success(msg string) {
	fmt.Fprintln(t.out, successStyle.Render("✓ ")+msg)
}

func (t *Terminal) Error(msg string) {
	fmt.Fprintln(t.out, errorStyle.Render("✗ ")+msg)
}

func (t *Terminal) Info(msg string) {
	fmt.Fprintln(t.out, infoStyle.Render(msg))
}

// RenderContent pretty-prints markdown when a renderer is available.
func (t *Terminal) RenderContent(markdown string) {
	if t.renderer != nil {
		if rendered, err := t.renderer.Render(markdown); err == nil {
			fmt.Fprint(t.out, rendered)
			return
		}
	}
	fmt.Fprintln(t.out, markdown)
}

// DisplayPapers prints a numbered paper list. The numbering is what
// "select 2" style references resolve against, so the caller must pass
// papers in canonical ascending-id order.
func (t *Terminal) DisplayPapers(papers []*paper.Metadata) {
	if len(papers) == 0 {
		t.Info("no papers")
		return
	}
	for i, m := range papers {
		fmt.Fprintf(t.out, "%2d. %s\n", i+1, titleStyle.Render(m.Title))
		line := m.PaperID
		if authors := m.AuthorLine(3); authors != "" {
			line += "  " + authors
		}
		if cat := m.PrimaryCategory(); cat != "" {
			line += "  [" + cat + "]"
		}
		fmt.Fprintf(t.out, "    %s\n", metaStyle.Render(line))
	}
}

// Prompt reads one line of user input.
func (t *Terminal) Prompt(label string) (string, error) {
	fmt.Fprint(t.out, label)
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
