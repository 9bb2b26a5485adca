package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"paperdesk/internal/config"
	"paperdesk/internal/discovery"
	"paperdesk/internal/logging"
	"paperdesk/internal/research"
	"paperdesk/internal/retrieval"
	"paperdesk/internal/store"
	"paperdesk/internal/ui"
	"paperdesk/internal/workflow"
)

// CommandResult is the structured outcome of one command. Content, when
// set, is markdown for the caller to render; Message is a one-line status.
type CommandResult struct {
	Success  bool
	Message  string
	Content  string
	PaperIDs []string
}

func failure(format string, args ...any) CommandResult {
	return CommandResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

// Session processes one command at a time to completion; there are no
// concurrent in-flight commands within a session.
type Session struct {
	ID        string
	cfg       *config.Config
	state     *SessionState
	store     *store.Store
	cascade   *discovery.Cascade
	retriever *retrieval.Engine
	research  *research.Pipeline
	orch      *workflow.Orchestrator
	resolver  *Resolver
	ui        ui.UI
	history   []string
}

func New(cfg *config.Config, st *store.Store, cascade *discovery.Cascade, retriever *retrieval.Engine, pipeline *research.Pipeline, orch *workflow.Orchestrator, u ui.UI) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		cfg:       cfg,
		state:     NewSessionState(),
		store:     st,
		cascade:   cascade,
		retriever: retriever,
		research:  pipeline,
		orch:      orch,
		resolver:  NewResolver(st),
		ui:        u,
	}
	logging.Session("session %s started", s.ID)
	return s
}

// State exposes the machine for the REPL prompt and for tests.
func (s *Session) State() *SessionState { return s.state }

// Handle parses and runs one input line. Errors never escape: every path
// ends in a structured result, and a failed command leaves the session
// state exactly as it was.
func (s *Session) Handle(ctx context.Context, line string) CommandResult {
	line = strings.TrimSpace(line)
	if line == "" {
		return CommandResult{Success: true}
	}
	s.history = append(s.history, line)

	verb, rest := splitVerb(line)
	logging.Session("command %q in state %s", verb, s.state.State())

	if !s.state.CommandValid(verb) {
		if referenceCommands[verb] {
			return failure("%s needs a current result set; run find, list, sem-search, or research first", verb)
		}
		return failure("unknown command %q; try help", verb)
	}

	switch verb {
	case "find":
		return s.handleFind(ctx, rest)
	case "list":
		return s.handleList(ctx)
	case "select":
		return s.handleSelect(ctx, rest)
	case "summarize":
		return s.handleSummarize(ctx, rest)
	case "improve":
		return s.handleImprove(ctx, rest)
	case "save":
		return s.handleSave(ctx)
	case "sem-search":
		return s.handleSemSearch(ctx, rest)
	case "research":
		return s.handleResearch(ctx, rest)
	case "summary":
		return s.handleSummary(ctx, rest)
	case "open":
		return s.handleOpen(ctx, rest)
	case "notes":
		return s.handleNotes(ctx, rest)
	case "status":
		return s.handleStatus(ctx)
	case "history":
		return s.handleHistory()
	case "clear", "reset":
		s.state.Reset()
		return CommandResult{Success: true, Message: "session cleared"}
	case "help":
		return CommandResult{Success: true, Content: helpText}
	case "quit", "exit":
		return CommandResult{Success: true, Message: "bye"}
	case "rebuild":
		return s.handleRebuild(ctx)
	case "reindex":
		return s.handleReindex(ctx)
	case "validate":
		return s.handleValidate(ctx)
	case "summarize-all":
		return s.handleSummarizeAll(ctx)
	}
	return failure("unknown command %q; try help", verb)
}

func splitVerb(line string) (verb, rest string) {
	parts := strings.SplitN(line, " ", 2)
	verb = strings.ToLower(parts[0])
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}
	return verb, rest
}

const helpText = "# Commands\n\n" +
	"- `find <query>` — discover papers on arXiv\n" +
	"- `list` — show the local library\n" +
	"- `select <n|id>` — show one paper's details\n" +
	"- `summarize <n|id>` — download, index, and draft a summary\n" +
	"- `improve <feedback>` — revise the current draft\n" +
	"- `save` — persist the current draft\n" +
	"- `sem-search <query>` — semantic search over indexed full text\n" +
	"- `research <question>` — answer a question across the library\n" +
	"- `summary <n|id>` — show a saved summary\n" +
	"- `open <n|id>` — show a paper's links and local file\n" +
	"- `notes <n|id> [text]` — add or list notes\n" +
	"- `status`, `history`, `clear`, `help`, `quit`\n" +
	"- maintenance: `rebuild`, `reindex`, `validate`, `summarize-all`\n"
