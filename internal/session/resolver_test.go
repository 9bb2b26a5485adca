package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"paperdesk/internal/paper"
	"paperdesk/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "resolver.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewResolver(st), st
}

func storePaper(t *testing.T, st *store.Store, id string) {
	t.Helper()
	require.NoError(t, st.UpsertPaper(context.Background(), &paper.Metadata{
		PaperID: id, Title: "Paper " + id,
	}))
}

func requireRefError(t *testing.T, err error, command string, kind RefErrorKind) *RefError {
	t.Helper()
	var re *RefError
	require.ErrorAs(t, err, &re)
	require.Equal(t, command, re.Command)
	require.Equal(t, kind, re.Kind)
	return re
}

func TestResolveEmptyAndMultiToken(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "summary", "", nil)
	requireRefError(t, err, "summary", RefEmptyArgument)

	_, err = r.Resolve(ctx, "open", "1 2", nil)
	requireRefError(t, err, "open", RefMultiToken)
}

func TestResolveIndexBounds(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()
	set := []string{"2412.19437v2", "2507.20534v1"}

	_, err := r.Resolve(ctx, "select", "0", set)
	requireRefError(t, err, "select", RefOutOfRange)

	_, err = r.Resolve(ctx, "select", "3", set)
	requireRefError(t, err, "select", RefOutOfRange)

	_, err = r.Resolve(ctx, "select", "1", nil)
	requireRefError(t, err, "select", RefOutOfRange)

	id, err := r.Resolve(ctx, "select", "2", set)
	require.NoError(t, err)
	require.Equal(t, "2507.20534v1", id)
}

func TestResolveInvalidFormat(t *testing.T) {
	r, _ := newTestResolver(t)

	_, err := r.Resolve(context.Background(), "open", "not-a-paper", nil)
	requireRefError(t, err, "open", RefInvalidFormat)
}

func TestResolveExactIDRequiresLocalPresence(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := context.Background()
	storePaper(t, st, "2107.03374v2")

	id, err := r.Resolve(ctx, "open", "2107.03374v2", nil)
	require.NoError(t, err)
	require.Equal(t, "2107.03374v2", id)

	_, err = r.Resolve(ctx, "open", "2412.19437v2", nil)
	requireRefError(t, err, "open", RefNotDownloaded)
}

func TestResolveAcquiringCommandSkipsPresenceCheck(t *testing.T) {
	r, _ := newTestResolver(t)

	id, err := r.Resolve(context.Background(), "summarize", "2412.19437v2", nil)
	require.NoError(t, err)
	require.Equal(t, "2412.19437v2", id)
}

func TestResolveVersionlessDisambiguation(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := context.Background()

	// One stored version resolves silently.
	storePaper(t, st, "2507.20534v1")
	id, err := r.Resolve(ctx, "select", "2507.20534", nil)
	require.NoError(t, err)
	require.Equal(t, "2507.20534v1", id)

	// Two stored versions must never be guessed between.
	storePaper(t, st, "2107.03374v1")
	storePaper(t, st, "2107.03374v2")
	_, err = r.Resolve(ctx, "select", "2107.03374", nil)
	re := requireRefError(t, err, "select", RefAmbiguousVersion)
	require.Equal(t, []string{"2107.03374v1", "2107.03374v2"}, re.Candidates)
}
