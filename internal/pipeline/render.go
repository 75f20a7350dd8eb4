package pipeline

import (
	"fmt"
	"strings"
)

// RenderSummary formats a run result for terminal output.
func RenderSummary(res *RunResult) string {
	var b strings.Builder

	switch {
	case !res.Changed:
		b.WriteString("Catalog up to date.\n")
	case res.DryRun:
		b.WriteString("Changes pending:\n")
	default:
		b.WriteString("Catalog updated:\n")
	}

	writeStat := func(label string, n int) {
		fmt.Fprintf(&b, "  %-19s%d\n", label+":", n)
	}
	writeStat("upstream models", res.Filter.Upstream)
	writeStat("kept by filters", res.Filter.Kept)
	writeStat("added", res.Merge.Added)
	writeStat("updated", res.Merge.Updated)
	writeStat("unchanged", res.Merge.Unchanged)
	writeStat("aliases applied", res.Aliased)
	writeStat("auto-filled", res.AutoFilled)
	writeStat("custom overrides", res.CustomApplied)
	writeStat("total models", res.TotalModels)
	fmt.Fprintf(&b, "  %-19s%s\n", "content hash:", shortHash(res.Hash))

	return b.String()
}

// RenderPRBody formats a run result as a pull request description.
func RenderPRBody(upstreamURL string, res *RunResult) string {
	var b strings.Builder

	b.WriteString("## Model pricing sync\n\n")
	fmt.Fprintf(&b, "Automated sync from `%s`.\n\n", upstreamURL)

	b.WriteString("| Stage | Count |\n")
	b.WriteString("| --- | --- |\n")
	fmt.Fprintf(&b, "| Upstream models | %d |\n", res.Filter.Upstream)
	fmt.Fprintf(&b, "| Kept by filters | %d |\n", res.Filter.Kept)
	fmt.Fprintf(&b, "| Added | %d |\n", res.Merge.Added)
	fmt.Fprintf(&b, "| Updated | %d |\n", res.Merge.Updated)
	fmt.Fprintf(&b, "| Unchanged | %d |\n", res.Merge.Unchanged)
	fmt.Fprintf(&b, "| Aliases applied | %d |\n", res.Aliased)
	fmt.Fprintf(&b, "| Auto-filled fields | %d |\n", res.AutoFilled)
	fmt.Fprintf(&b, "| Custom overrides | %d |\n", res.CustomApplied)
	fmt.Fprintf(&b, "| Total models | %d |\n", res.TotalModels)

	fmt.Fprintf(&b, "\nContent hash: `%s`\n", res.Hash)

	return b.String()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
