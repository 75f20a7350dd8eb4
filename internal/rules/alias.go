// Package rules applies the operator-defined catalog rewrites that run
// after merging: alias expansion, derived-field auto-fill, and custom
// overrides. All three mutate the catalog in place; the pipeline hands them
// a catalog it owns.
package rules

import (
	"log/slog"

	"github.com/everstacklabs/pricesync/internal/catalog"
)

// Alias names a catalog entry that should mirror another entry.
type Alias struct {
	Name   string
	Source string
}

// ApplyAliases copies each alias source's current value to the alias name,
// in declaration order, overwriting whatever was there. A missing source is
// a warning, never an error. Chains resolve when declared in dependency
// order; because each alias is applied exactly once, cyclic definitions
// cannot loop, they just fail to find their source and are skipped.
// Returns the number of aliases actually applied.
func ApplyAliases(cat catalog.Catalog, aliases []Alias) int {
	applied := 0
	for _, a := range aliases {
		src, ok := cat[a.Source]
		if !ok {
			slog.Warn("alias source not found, skipping", "alias", a.Name, "source", a.Source)
			continue
		}
		cat[a.Name] = catalog.DeepCopyValue(src)
		slog.Debug("alias applied", "alias", a.Name, "source", a.Source)
		applied++
	}
	return applied
}
