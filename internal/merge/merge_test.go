package merge

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/everstacklabs/pricesync/internal/catalog"
)

func TestParseMode(t *testing.T) {
	if _, err := ParseMode("additive"); err != nil {
		t.Errorf("additive should parse: %v", err)
	}
	if _, err := ParseMode("full"); err != nil {
		t.Errorf("full should parse: %v", err)
	}
	for _, bad := range []string{"", "FULL", "incremental", "replace"} {
		if _, err := ParseMode(bad); err == nil {
			t.Errorf("ParseMode(%q) should fail", bad)
		}
	}
}

func TestMergeFullReplacesEverything(t *testing.T) {
	existing := catalog.Catalog{
		"local-only": map[string]any{"cost": json.Number("1")},
		"shared":     map[string]any{"cost": json.Number("2")},
	}
	filtered := catalog.Catalog{
		"shared":   map[string]any{"cost": json.Number("3")},
		"upstream": map[string]any{"cost": json.Number("4")},
	}

	got, stats := Merge(existing, filtered, ModeFull, false)

	if !reflect.DeepEqual(map[string]any(got), map[string]any(filtered)) {
		t.Errorf("full merge = %v, want filtered verbatim %v", got, filtered)
	}
	want := Stats{Added: 2, TotalUpstream: 2}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestMergeAdditiveInsertsNewEntries(t *testing.T) {
	existing := catalog.Catalog{"a": map[string]any{"cost": json.Number("1")}}
	filtered := catalog.Catalog{
		"a": map[string]any{"cost": json.Number("1")},
		"b": map[string]any{"cost": json.Number("2")},
	}

	got, stats := Merge(existing, filtered, ModeAdditive, false)

	if len(got) != 2 {
		t.Fatalf("merged size = %d, want 2", len(got))
	}
	want := Stats{Added: 1, Unchanged: 1, TotalUpstream: 2}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestMergeAdditivePreservesLocalOnlyEntries(t *testing.T) {
	existing := catalog.Catalog{"local-custom": map[string]any{"cost": json.Number("9")}}
	filtered := catalog.Catalog{"upstream-model": map[string]any{"cost": json.Number("1")}}

	got, stats := Merge(existing, filtered, ModeAdditive, true)

	if _, ok := got["local-custom"]; !ok {
		t.Error("additive merge must keep entries absent upstream")
	}
	if stats.Added != 1 || stats.Updated != 0 || stats.Unchanged != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestMergeAdditiveUpdateExistingOff(t *testing.T) {
	existing := catalog.Catalog{"m": map[string]any{"cost": json.Number("1")}}
	filtered := catalog.Catalog{"m": map[string]any{"cost": json.Number("2")}}

	got, stats := Merge(existing, filtered, ModeAdditive, false)

	rec := got["m"].(map[string]any)
	if rec["cost"].(json.Number) != "1" {
		t.Error("drifted upstream value must not replace existing when update_existing is off")
	}
	want := Stats{Unchanged: 1, TotalUpstream: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestMergeAdditiveUpdateExistingOn(t *testing.T) {
	existing := catalog.Catalog{"m": map[string]any{"cost": json.Number("1")}}
	filtered := catalog.Catalog{"m": map[string]any{"cost": json.Number("2")}}

	got, stats := Merge(existing, filtered, ModeAdditive, true)

	rec := got["m"].(map[string]any)
	if rec["cost"].(json.Number) != "2" {
		t.Error("drifted upstream value should replace existing when update_existing is on")
	}
	want := Stats{Updated: 1, TotalUpstream: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestMergeAdditiveEqualValuesCountUnchanged(t *testing.T) {
	rec := map[string]any{"cost": json.Number("1"), "nested": map[string]any{"x": "y"}}
	existing := catalog.Catalog{"m": catalog.DeepCopyValue(rec).(map[string]any)}
	filtered := catalog.Catalog{"m": catalog.DeepCopyValue(rec).(map[string]any)}

	_, stats := Merge(existing, filtered, ModeAdditive, true)

	want := Stats{Unchanged: 1, TotalUpstream: 1}
	if stats != want {
		t.Errorf("deep-equal values should count unchanged even with update_existing on, stats = %+v", stats)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	existing := catalog.Catalog{"m": map[string]any{"cost": json.Number("1")}}
	filtered := catalog.Catalog{
		"m": map[string]any{"cost": json.Number("2")},
		"n": map[string]any{"cost": json.Number("3")},
	}

	got, _ := Merge(existing, filtered, ModeAdditive, true)
	got["m"].(map[string]any)["cost"] = json.Number("99")
	got["n"].(map[string]any)["cost"] = json.Number("99")

	if existing["m"].(map[string]any)["cost"].(json.Number) != "1" {
		t.Error("merge result aliases the existing catalog")
	}
	if filtered["n"].(map[string]any)["cost"].(json.Number) != "3" {
		t.Error("merge result aliases the filtered catalog")
	}
}

func TestMergeGenerationUpgradeFlow(t *testing.T) {
	// One existing model picks up new upstream pricing while unrelated
	// upstream families are filtered away first.
	existing := catalog.Catalog{"gpt-4": map[string]any{"cost": json.Number("1")}}
	upstream := catalog.Catalog{
		"gpt-4":    map[string]any{"cost": json.Number("2")},
		"gpt-3":    map[string]any{"cost": json.Number("0.5")},
		"claude-x": map[string]any{"cost": json.Number("9")},
	}

	filtered, _ := Filter(upstream, []string{"gpt-4"}, nil)
	if len(filtered) != 1 {
		t.Fatalf("filtered = %v, want only gpt-4", filtered.SortedNames())
	}

	got, stats := Merge(existing, filtered, ModeAdditive, true)

	want := Stats{Updated: 1, TotalUpstream: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if got["gpt-4"].(map[string]any)["cost"].(json.Number) != "2" {
		t.Error("gpt-4 should carry the upstream cost after merge")
	}
}
