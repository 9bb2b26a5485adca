// Package session holds the conversational command loop: the workflow
// state machine, the paper-reference resolver, and the command router.
package session

import (
	"paperdesk/internal/logging"
	"paperdesk/internal/paper"
)

// State is the workflow position of the conversation.
type State string

const (
	StateInitial    State = "INITIAL"
	StateSelectNew  State = "SELECT_NEW"
	StateSelectView State = "SELECT_VIEW"
	StateSummarized State = "SUMMARIZED"
	StateSemSearch  State = "SEM_SEARCH"
	StateResearch   State = "RESEARCH"
)

// SessionState is the mutable conversation memory. lastQuerySet is kept
// ascending by id on every assignment: numeric references like "select 2"
// must mean the same paper no matter which command produced the set.
type SessionState struct {
	state         State
	lastQuerySet  []string
	selectedPaper string
	draft         string
	originalQuery string
}

func NewSessionState() *SessionState {
	return &SessionState{state: StateInitial}
}

func (s *SessionState) State() State { return s.state }

// LastQuerySet returns a copy; callers must not mutate session order.
func (s *SessionState) LastQuerySet() []string {
	out := make([]string, len(s.lastQuerySet))
	copy(out, s.lastQuerySet)
	return out
}

func (s *SessionState) SelectedPaper() string { return s.selectedPaper }
func (s *SessionState) Draft() string         { return s.draft }
func (s *SessionState) OriginalQuery() string { return s.originalQuery }

// Reset wipes everything and returns to INITIAL, from any state.
func (s *SessionState) Reset() {
	logging.Session("state %s -> %s (reset)", s.state, StateInitial)
	*s = SessionState{state: StateInitial}
}

// OnDiscovery records a discovery outcome. No results means a full reset.
func (s *SessionState) OnDiscovery(ids []string) {
	if len(ids) == 0 {
		s.Reset()
		return
	}
	logging.Session("state %s -> %s (%d results)", s.state, StateSelectNew, len(ids))
	s.state = StateSelectNew
	s.lastQuerySet = paper.SortIDsAscending(ids)
}

// OnListLibrary records a library listing. The draft is cleared: the view
// has moved away from whatever was being written.
func (s *SessionState) OnListLibrary(ids []string) {
	logging.Session("state %s -> %s", s.state, StateSelectView)
	s.state = StateSelectView
	s.lastQuerySet = paper.SortIDsAscending(ids)
	s.draft = ""
}

// OnSelect remembers the paper under discussion without changing state.
func (s *SessionState) OnSelect(paperID string) {
	s.selectedPaper = paperID
}

// OnSummarize captures the freshly drafted summary. lastQuerySet survives
// only if the summarized paper was a member of it; otherwise the numbering
// would silently point at papers from before the switch.
func (s *SessionState) OnSummarize(paperID, draft string) {
	member := false
	for _, id := range s.lastQuerySet {
		if id == paperID {
			member = true
			break
		}
	}
	if !member {
		s.lastQuerySet = nil
	}
	logging.Session("state %s -> %s (set kept: %v)", s.state, StateSummarized, member)
	s.state = StateSummarized
	s.selectedPaper = paperID
	s.draft = draft
}

// OnSearchResults records a semantic-search or research outcome. target
// must be StateSemSearch or StateResearch; no results means a full reset.
func (s *SessionState) OnSearchResults(target State, ids []string, draft, query string) {
	if len(ids) == 0 {
		s.Reset()
		return
	}
	logging.Session("state %s -> %s (%d papers)", s.state, target, len(ids))
	s.state = target
	s.lastQuerySet = paper.SortIDsAscending(ids)
	s.draft = draft
	s.originalQuery = query
}

// SetDraft mutates the draft in place for the self-transitioning commands.
func (s *SessionState) SetDraft(draft string) {
	s.draft = draft
}

// globalCommands are valid in every state, set or no set.
var globalCommands = map[string]bool{
	"help": true, "status": true, "history": true, "clear": true,
	"reset": true, "quit": true, "exit": true, "rebuild": true,
	"reindex": true, "validate": true, "summarize-all": true,
}

// producingCommands start a fresh result set and are always valid.
var producingCommands = map[string]bool{
	"find": true, "list": true, "sem-search": true, "research": true,
	"summarize": true, "improve": true, "save": true,
}

// referenceCommands resolve an <n|id> against lastQuerySet.
var referenceCommands = map[string]bool{
	"select": true, "summary": true, "open": true, "notes": true,
}

// CommandValid reports whether a verb can run right now. Validity is
// dynamic: reference commands need a non-empty result set, not a
// particular state.
func (s *SessionState) CommandValid(verb string) bool {
	if globalCommands[verb] || producingCommands[verb] {
		return true
	}
	if referenceCommands[verb] {
		return len(s.lastQuerySet) > 0
	}
	return false
}
