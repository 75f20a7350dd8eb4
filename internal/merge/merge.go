// Package merge turns a filtered upstream document and the existing catalog
// into the next catalog, counting what happened along the way.
package merge

import (
	"fmt"
	"reflect"

	"github.com/everstacklabs/pricesync/internal/catalog"
)

// Mode selects how upstream entries combine with the existing catalog.
type Mode string

const (
	// ModeAdditive keeps every existing entry and layers upstream entries
	// on top. Local-only entries survive untouched.
	ModeAdditive Mode = "additive"
	// ModeFull replaces the catalog with the filtered upstream verbatim.
	ModeFull Mode = "full"
)

// ParseMode validates a configured sync mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAdditive, ModeFull:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid sync_mode %q, want %q or %q", s, ModeAdditive, ModeFull)
	}
}

// Stats counts the outcome of a merge.
type Stats struct {
	Added         int
	Updated       int
	Unchanged     int
	TotalUpstream int
}

// Merge combines the existing catalog with filtered upstream entries and
// returns a new catalog; neither input is mutated.
//
// In full mode the result is a fresh copy of filtered and every entry counts
// as added. In additive mode entries absent locally are inserted; entries
// present locally are replaced only when updateExisting is set and the
// values differ structurally. Everything else, including drifted entries
// when updateExisting is off, counts as unchanged.
func Merge(existing, filtered catalog.Catalog, mode Mode, updateExisting bool) (catalog.Catalog, Stats) {
	stats := Stats{TotalUpstream: len(filtered)}

	if mode == ModeFull {
		stats.Added = len(filtered)
		return filtered.Clone(), stats
	}

	out := existing.Clone()
	for _, name := range filtered.SortedNames() {
		incoming := filtered[name]
		current, ok := out[name]
		switch {
		case !ok:
			out[name] = catalog.DeepCopyValue(incoming)
			stats.Added++
		case updateExisting && !reflect.DeepEqual(current, incoming):
			out[name] = catalog.DeepCopyValue(incoming)
			stats.Updated++
		default:
			stats.Unchanged++
		}
	}
	return out, stats
}

// HasChanges reports whether the merge produced any insertions or updates.
func (s Stats) HasChanges() bool {
	return s.Added > 0 || s.Updated > 0
}
