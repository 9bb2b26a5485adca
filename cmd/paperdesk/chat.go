package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"paperdesk/internal/arxiv"
	"paperdesk/internal/config"
	"paperdesk/internal/discovery"
	"paperdesk/internal/embedding"
	"paperdesk/internal/index"
	"paperdesk/internal/llm"
	"paperdesk/internal/logging"
	"paperdesk/internal/pdfx"
	"paperdesk/internal/research"
	"paperdesk/internal/retrieval"
	"paperdesk/internal/session"
	"paperdesk/internal/store"
	"paperdesk/internal/ui"
	"paperdesk/internal/workflow"
)

// app bundles the wired collaborators for one process.
type app struct {
	cfg      *config.Config
	store    *store.Store
	engine   embedding.Engine
	llm      *llm.GeminiClient
	session  *session.Session
	terminal *ui.Terminal
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// buildApp loads config and wires the full collaborator graph.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	llmTimeout := cfg.LLMTimeout()
	if timeout > 0 {
		llmTimeout = timeout
	}

	st, err := store.Open(cfg.ResolveDBPath(workspace))
	if err != nil {
		return nil, fmt.Errorf("opening library: %w", err)
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("embedding engine: %w", err)
	}

	idx := index.New(st.DB(), engine)
	if err := idx.InitOrLoad(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("vector index: %w", err)
	}

	client := llm.NewGeminiClient(cfg.LLM, llmTimeout)
	source := arxiv.NewClient(cfg.Arxiv.BaseURL)
	terminal := ui.NewTerminal(os.Stdout, os.Stdin, cfg.UI)

	retriever := retrieval.NewEngine(idx)
	cascade := discovery.NewCascade(discovery.NewLLMFinder(client), source, engine, cfg.Arxiv.MaxResults)
	pipeline := research.NewPipeline(retriever, st, client, research.Options{
		SummaryPapers: cfg.Index.SummaryPapers,
		DetailChunks:  cfg.Index.DetailChunks,
		MMRAlpha:      cfg.Index.MMRAlpha,
	})
	orch := workflow.NewOrchestrator(st, source, idx, client, terminal,
		pdfx.ExtractPages, filepath.Join(workspace, ".paperdesk", "pdfs"))

	sess := session.New(cfg, st, cascade, retriever, pipeline, orch, terminal)
	logging.Boot("paperdesk %s ready (workspace %s)", cfg.Version, workspace)
	return &app{
		cfg:      cfg,
		store:    st,
		engine:   engine,
		llm:      client,
		session:  sess,
		terminal: terminal,
	}, nil
}

// runInteractiveChat is the default command: a read-eval-print loop over
// the session router.
func runInteractiveChat(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	a.terminal.Info(fmt.Sprintf("paperdesk %s — type help for commands, quit to leave", a.cfg.Version))
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := a.terminal.Prompt("paperdesk> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		result := a.session.Handle(ctx, line)
		renderResult(a.terminal, result)
		if verb, _ := firstWord(line); strings.EqualFold(verb, "quit") || strings.EqualFold(verb, "exit") {
			return nil
		}
	}
}

func renderResult(terminal *ui.Terminal, result session.CommandResult) {
	if result.Content != "" {
		terminal.RenderContent(result.Content)
	}
	switch {
	case result.Message == "":
	case result.Success:
		terminal.Success(result.Message)
	default:
		terminal.Error(result.Message)
	}
}

func firstWord(line string) (string, string) {
	for i, r := range line {
		if r == ' ' {
			return line[:i], line[i+1:]
		}
	}
	return line, ""
}

// healthBudget bounds the collaborator probes in `paperdesk status`.
const healthBudget = 3 * time.Second

// runStatus prints library statistics plus collaborator health.
func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result := a.session.Handle(ctx, "status")
	renderResult(a.terminal, result)

	if err := embedding.CheckHealth(ctx, a.engine, healthBudget); err != nil {
		a.terminal.Error(fmt.Sprintf("embedding (%s): %v", a.engine.Name(), err))
	} else {
		a.terminal.Success(fmt.Sprintf("embedding (%s): ok", a.engine.Name()))
	}

	hctx, cancel := context.WithTimeout(ctx, healthBudget)
	defer cancel()
	if err := a.llm.HealthCheck(hctx); err != nil {
		a.terminal.Error(fmt.Sprintf("llm (%s): %v", a.llm.Name(), err))
	} else {
		a.terminal.Success(fmt.Sprintf("llm (%s): ok", a.llm.Name()))
	}
	return nil
}
