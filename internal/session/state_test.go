package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiscoveryStoresSetSortedAscending(t *testing.T) {
	s := NewSessionState()
	s.OnDiscovery([]string{"2507.20534v1", "2412.19437v2"})

	require.Equal(t, StateSelectNew, s.State())
	require.Equal(t, []string{"2412.19437v2", "2507.20534v1"}, s.LastQuerySet())
}

func TestDiscoveryWithoutResultsResets(t *testing.T) {
	s := NewSessionState()
	s.OnDiscovery([]string{"2107.03374v2"})
	s.OnSelect("2107.03374v2")
	s.SetDraft("draft")

	s.OnDiscovery(nil)
	require.Equal(t, StateInitial, s.State())
	require.Empty(t, s.LastQuerySet())
	require.Empty(t, s.SelectedPaper())
	require.Empty(t, s.Draft())
}

func TestSearchResultsAlwaysSorted(t *testing.T) {
	s := NewSessionState()
	s.OnSearchResults(StateSemSearch, []string{"2507.20534v1", "2107.03374v2", "2412.19437v2"}, "body", "query")

	require.Equal(t, StateSemSearch, s.State())
	require.Equal(t, []string{"2107.03374v2", "2412.19437v2", "2507.20534v1"}, s.LastQuerySet())
	require.Equal(t, "query", s.OriginalQuery())
}

func TestSummarizeKeepsSetOnlyForMemberPaper(t *testing.T) {
	s := NewSessionState()
	s.OnDiscovery([]string{"2107.03374v2", "2412.19437v2"})

	s.OnSummarize("2107.03374v2", "draft one")
	require.Equal(t, StateSummarized, s.State())
	require.Len(t, s.LastQuerySet(), 2, "member paper keeps the set")

	s.OnSummarize("2507.20534v1", "draft two")
	require.Empty(t, s.LastQuerySet(), "paper switch must drop stale numbering")
	require.Equal(t, "2507.20534v1", s.SelectedPaper())
	require.Equal(t, "draft two", s.Draft())
}

func TestListLibraryClearsDraft(t *testing.T) {
	s := NewSessionState()
	s.OnSummarize("2107.03374v2", "draft")
	s.OnListLibrary([]string{"2107.03374v2"})

	require.Equal(t, StateSelectView, s.State())
	require.Empty(t, s.Draft())
}

func TestResetWipesEverythingFromAnyState(t *testing.T) {
	s := NewSessionState()
	s.OnSearchResults(StateResearch, []string{"2107.03374v2"}, "draft", "why")
	s.OnSelect("2107.03374v2")

	s.Reset()
	require.Equal(t, StateInitial, s.State())
	require.Empty(t, s.LastQuerySet())
	require.Empty(t, s.SelectedPaper())
	require.Empty(t, s.Draft())
	require.Empty(t, s.OriginalQuery())
}

func TestCommandValidity(t *testing.T) {
	s := NewSessionState()

	for _, verb := range []string{"help", "status", "history", "clear", "quit", "rebuild", "reindex", "validate", "summarize-all", "find", "list", "summarize"} {
		require.True(t, s.CommandValid(verb), "%s must be valid everywhere", verb)
	}
	for _, verb := range []string{"select", "summary", "open", "notes"} {
		require.False(t, s.CommandValid(verb), "%s needs a result set", verb)
	}
	require.False(t, s.CommandValid("frobnicate"))

	s.OnDiscovery([]string{"2107.03374v2"})
	for _, verb := range []string{"select", "summary", "open", "notes"} {
		require.True(t, s.CommandValid(verb), "%s valid with a result set", verb)
	}
}
