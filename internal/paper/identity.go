package paper

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// Modern arXiv ids look like 2107.03374 or 2107.03374v2; legacy ids use the
// archive/YYMMNNN slash form and carry no version concept here.
var (
	modernIDPattern = regexp.MustCompile(`^(\d{4}\.\d{4,5})(?:v(\d+))?$`)
	legacyIDPattern = regexp.MustCompile(`^[a-z][a-z-]*(?:\.[A-Z]{2})?/\d{7}$`)
)

// Identity is a parsed paper identifier: a stable base id plus an optional
// revision number. Version 0 means "no version given".
type Identity struct {
	BaseID  string
	Version int
	Legacy  bool
}

// FullID renders the canonical identifier string.
func (id Identity) FullID() string {
	if id.Legacy || id.Version == 0 {
		return id.BaseID
	}
	return fmt.Sprintf("%sv%d", id.BaseID, id.Version)
}

// ParseID parses a raw identifier into an Identity.
func ParseID(raw string) (Identity, error) {
	if m := modernIDPattern.FindStringSubmatch(raw); m != nil {
		version := 0
		if m[2] != "" {
			v, err := strconv.Atoi(m[2])
			if err != nil {
				return Identity{}, fmt.Errorf("invalid version in id %q: %w", raw, err)
			}
			version = v
		}
		return Identity{BaseID: m[1], Version: version}, nil
	}
	if legacyIDPattern.MatchString(raw) {
		// Legacy slash-form ids are their own group: base is the full id.
		return Identity{BaseID: raw, Legacy: true}, nil
	}
	return Identity{}, fmt.Errorf("not a recognized arXiv id: %q", raw)
}

// IsValidID reports whether raw matches either identifier form.
func IsValidID(raw string) bool {
	_, err := ParseID(raw)
	return err == nil
}

// BaseID strips any version suffix, returning the stable identifier.
// Unparseable input comes back unchanged.
func BaseID(raw string) string {
	id, err := ParseID(raw)
	if err != nil {
		return raw
	}
	return id.BaseID
}

// DedupeIDs collapses raw identifiers to one full id per base id, keeping
// the highest version within each group (missing version counts as 0) and
// breaking ties by full id string ascending. Unparseable entries are
// dropped. Output is sorted ascending by full id for deterministic
// downstream ordering.
func DedupeIDs(rawIDs []string) []string {
	best := make(map[string]Identity)
	for _, raw := range rawIDs {
		id, err := ParseID(raw)
		if err != nil {
			continue
		}
		cur, seen := best[id.BaseID]
		if !seen {
			best[id.BaseID] = id
			continue
		}
		if id.Version > cur.Version {
			best[id.BaseID] = id
		} else if id.Version == cur.Version && id.FullID() < cur.FullID() {
			best[id.BaseID] = id
		}
	}

	out := make([]string, 0, len(best))
	for _, id := range best {
		out = append(out, id.FullID())
	}
	sort.Strings(out)
	return out
}

// SortIDsAscending returns a copy of ids sorted ascending. Every command
// that stores a result set runs it through here first, so that "select 1"
// means the same paper no matter which command produced the set.
func SortIDsAscending(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}
