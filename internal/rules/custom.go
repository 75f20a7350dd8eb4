package rules

import (
	"log/slog"

	"github.com/everstacklabs/pricesync/internal/catalog"
)

// ApplyCustom lays operator-defined records over the catalog. When both the
// existing value and the custom value are objects, custom fields overwrite
// same-named existing fields and the rest of the record survives (shallow
// field merge). In every other case the custom value replaces or creates
// the entry whole. Runs last so operator overrides always win. Returns the
// number of custom entries applied.
func ApplyCustom(cat catalog.Catalog, custom catalog.Catalog) int {
	applied := 0
	for _, name := range custom.SortedNames() {
		cv := custom[name]

		if existing, ok := cat[name]; ok {
			em, eok := catalog.AsRecord(existing)
			cm, cok := catalog.AsRecord(cv)
			if eok && cok {
				for field, val := range cm {
					em[field] = catalog.DeepCopyValue(val)
				}
				slog.Debug("custom fields merged", "model", name, "fields", len(cm))
				applied++
				continue
			}
		}

		cat[name] = catalog.DeepCopyValue(cv)
		slog.Debug("custom model set", "model", name)
		applied++
	}
	return applied
}
