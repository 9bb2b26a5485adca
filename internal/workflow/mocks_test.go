package workflow

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"paperdesk/internal/index"
	"paperdesk/internal/paper"
)

type fakeEngine struct {
	dims int
}

func (f *fakeEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, f.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(f.dims)]++
	}
	return vec, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return f.dims }
func (f *fakeEngine) Name() string    { return "fake" }

type fakeSource struct {
	papers    map[string]*paper.Metadata
	downloads int
}

func (s *fakeSource) FetchMetadata(_ context.Context, id string) (*paper.Metadata, error) {
	if m, ok := s.papers[id]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("no metadata for %s", id)
}

func (s *fakeSource) DownloadPDF(_ context.Context, paperID, _ string, destDir string) (string, error) {
	s.downloads++
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, paperID+".pdf")
	if err := os.WriteFile(path, []byte("%PDF-fake"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeUI struct {
	progress []string
	success  []string
	errors   []string
}

func (u *fakeUI) Progress(msg string)             { u.progress = append(u.progress, msg) }
func (u *fakeUI) Success(msg string)              { u.success = append(u.success, msg) }
func (u *fakeUI) Error(msg string)                { u.errors = append(u.errors, msg) }
func (u *fakeUI) Info(string)                     {}
func (u *fakeUI) RenderContent(string)            {}
func (u *fakeUI) DisplayPapers([]*paper.Metadata) {}
func (u *fakeUI) Prompt(string) (string, error)   { return "", nil }

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Complete(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeLLM) CompleteWithSystem(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func fixedPages(pages ...index.PageText) Extractor {
	return func(string) ([]index.PageText, error) {
		return pages, nil
	}
}
