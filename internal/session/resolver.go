package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"paperdesk/internal/logging"
	"paperdesk/internal/paper"
	"paperdesk/internal/store"
)

// RefErrorKind classifies reference-resolution failures.
type RefErrorKind string

const (
	RefEmptyArgument    RefErrorKind = "empty-argument"
	RefMultiToken       RefErrorKind = "multi-token"
	RefOutOfRange       RefErrorKind = "out-of-range"
	RefInvalidFormat    RefErrorKind = "invalid-format"
	RefAmbiguousVersion RefErrorKind = "ambiguous-version"
	RefNotDownloaded    RefErrorKind = "not-downloaded"
	RefMetadataLoad     RefErrorKind = "metadata-load-error"
)

// RefError is a reference-resolution failure tagged with the command that
// asked for it. Candidates is populated for ambiguous-version errors so the
// user can be shown exactly what to type instead.
type RefError struct {
	Command    string
	Kind       RefErrorKind
	Detail     string
	Candidates []string
}

func (e *RefError) Error() string {
	if len(e.Candidates) > 0 {
		return fmt.Sprintf("%s: %s: %s (candidates: %s)",
			e.Command, e.Kind, e.Detail, strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("%s: %s: %s", e.Command, e.Kind, e.Detail)
}

// acquiringCommands fetch the paper themselves, so the reference does not
// have to be local yet.
var acquiringCommands = map[string]bool{
	"summarize": true,
}

// Resolver turns a user-facing reference token ("2", "2107.03374",
// "2107.03374v2") into a concrete stored paper id.
type Resolver struct {
	store *store.Store
}

func NewResolver(st *store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve maps token to a paper id against the current result set.
// Failures are always *RefError.
func (r *Resolver) Resolve(ctx context.Context, command, token string, lastQuerySet []string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", &RefError{Command: command, Kind: RefEmptyArgument,
			Detail: "expected a paper number or arXiv id"}
	}
	if len(strings.Fields(token)) > 1 {
		return "", &RefError{Command: command, Kind: RefMultiToken,
			Detail: fmt.Sprintf("%q is more than one token", token)}
	}

	if n, err := strconv.Atoi(token); err == nil {
		return r.resolveIndex(command, n, lastQuerySet)
	}
	return r.resolveID(ctx, command, token)
}

// resolveIndex maps a 1-based number into the current result set.
func (r *Resolver) resolveIndex(command string, n int, lastQuerySet []string) (string, error) {
	if len(lastQuerySet) == 0 {
		return "", &RefError{Command: command, Kind: RefOutOfRange,
			Detail: "no current result set to number into"}
	}
	if n < 1 || n > len(lastQuerySet) {
		return "", &RefError{Command: command, Kind: RefOutOfRange,
			Detail: fmt.Sprintf("%d is outside 1..%d", n, len(lastQuerySet))}
	}
	id := lastQuerySet[n-1]
	logging.SessionDebug("%s: reference %d -> %s", command, n, id)
	return id, nil
}

// resolveID validates id syntax, disambiguates versions, and checks local
// presence for commands that need the paper already downloaded.
func (r *Resolver) resolveID(ctx context.Context, command, token string) (string, error) {
	identity, err := paper.ParseID(token)
	if err != nil {
		return "", &RefError{Command: command, Kind: RefInvalidFormat,
			Detail: fmt.Sprintf("%q is not a paper number or arXiv id", token)}
	}

	// Exact id (versioned or legacy): no disambiguation needed.
	if identity.Legacy || identity.Version > 0 {
		return r.requireLocal(ctx, command, identity.FullID())
	}

	versions, err := r.store.VersionsOf(ctx, identity.BaseID)
	if err != nil {
		return "", &RefError{Command: command, Kind: RefMetadataLoad, Detail: err.Error()}
	}
	switch len(versions) {
	case 0:
		// Nothing local under this base id; the bare id stands if the
		// command will acquire it.
		return r.requireLocal(ctx, command, identity.FullID())
	case 1:
		logging.SessionDebug("%s: %s resolved to %s", command, token, versions[0])
		return versions[0], nil
	default:
		return "", &RefError{Command: command, Kind: RefAmbiguousVersion,
			Detail:     fmt.Sprintf("%s is stored in %d versions", identity.BaseID, len(versions)),
			Candidates: versions}
	}
}

func (r *Resolver) requireLocal(ctx context.Context, command, id string) (string, error) {
	if acquiringCommands[command] || r.store.HasPaper(ctx, id) {
		return id, nil
	}
	return "", &RefError{Command: command, Kind: RefNotDownloaded,
		Detail: fmt.Sprintf("%s is not in the library; try `summarize %s` first", id, id)}
}
