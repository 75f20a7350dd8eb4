package merge

import (
	"strings"

	"github.com/everstacklabs/pricesync/internal/catalog"
)

// FilterStats counts how much of the upstream document survived filtering.
type FilterStats struct {
	Upstream int
	Kept     int
}

// Filter selects the upstream entries worth keeping. Exclusion wins: a name
// containing any exclude substring is dropped even when it also matches a
// prefix. With an empty prefix list every non-excluded entry is kept.
// Returns a new mapping; values are shared with the input, which is treated
// as read-only from here on.
func Filter(upstream catalog.Catalog, prefixes, excludes []string) (catalog.Catalog, FilterStats) {
	out := make(catalog.Catalog, len(upstream))
	for name, v := range upstream {
		if excluded(name, excludes) {
			continue
		}
		if len(prefixes) > 0 && !hasAnyPrefix(name, prefixes) {
			continue
		}
		out[name] = v
	}
	return out, FilterStats{Upstream: len(upstream), Kept: len(out)}
}

func excluded(name string, excludes []string) bool {
	for _, pat := range excludes {
		if strings.Contains(name, pat) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
