package rules

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/everstacklabs/pricesync/internal/catalog"
)

// Canonical field names for the 1-hour cache pricing rule. Upstream
// publishes the 5-minute cache write cost; the 1-hour tier is priced at a
// fixed multiple of it.
const (
	CacheCostField     = "cache_creation_input_token_cost"
	CacheCost1hrField  = "cache_creation_input_token_cost_above_1hr"
	DefaultCachePrefix = "claude-"
	DefaultCacheRatio  = "1.6"
)

// AutoFill derives one record field from another for every model matching a
// name prefix. A nil rule disables the stage.
type AutoFill struct {
	SourceField string
	TargetField string
	Prefix      string
	Ratio       decimal.Decimal
}

// NewCacheAutoFill builds the canonical 1-hour cache pricing rule with the
// given prefix and ratio, falling back to the defaults when empty.
func NewCacheAutoFill(prefix string, ratio decimal.Decimal) *AutoFill {
	if prefix == "" {
		prefix = DefaultCachePrefix
	}
	if ratio.IsZero() {
		ratio = decimal.RequireFromString(DefaultCacheRatio)
	}
	return &AutoFill{
		SourceField: CacheCostField,
		TargetField: CacheCost1hrField,
		Prefix:      prefix,
		Ratio:       ratio,
	}
}

// FillDerived sets rule.TargetField = rule.SourceField * rule.Ratio on every
// matching record where the target is not already present. Arithmetic is
// decimal-exact over the preserved JSON literals, so 0.30 * 1.6 fills 0.48
// and repeated syncs never accumulate float drift. Records that are not
// objects, lack the source field, carry a null source, or already have a
// non-null target are skipped. Returns the number of records filled.
func FillDerived(cat catalog.Catalog, rule *AutoFill) int {
	if rule == nil {
		return 0
	}

	filled := 0
	for name, v := range cat {
		if !strings.HasPrefix(name, rule.Prefix) {
			continue
		}
		rec, ok := catalog.AsRecord(v)
		if !ok {
			continue
		}
		src, ok := rec[rule.SourceField]
		if !ok || src == nil {
			continue
		}
		if tgt, ok := rec[rule.TargetField]; ok && tgt != nil {
			continue
		}

		d, err := toDecimal(src)
		if err != nil {
			slog.Warn("derived fill skipped, source not numeric",
				"model", name, "field", rule.SourceField, "value", src)
			continue
		}
		rec[rule.TargetField] = json.Number(d.Mul(rule.Ratio).String())
		slog.Debug("derived field filled", "model", name, "field", rule.TargetField)
		filled++
	}
	return filled
}

var errNotNumeric = errors.New("not a numeric value")

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case json.Number:
		return decimal.NewFromString(t.String())
	case float64:
		return decimal.NewFromFloat(t), nil
	case string:
		return decimal.NewFromString(t)
	default:
		return decimal.Decimal{}, errNotNumeric
	}
}
