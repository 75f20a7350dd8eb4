package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/everstacklabs/pricesync/internal/catalog"
)

// Severity classifies validation issues.
type Severity int

const (
	SeverityError   Severity = iota // Fails verification
	SeverityWarning                 // Reported but does not fail verification
)

// Issue represents a single validation problem.
type Issue struct {
	Severity Severity
	Model    string
	Field    string
	Message  string
}

func (i Issue) String() string {
	sev := "ERROR"
	if i.Severity == SeverityWarning {
		sev = "WARN"
	}
	return fmt.Sprintf("[%s] %s: %s — %s", sev, i.Model, i.Field, i.Message)
}

// Result holds all validation issues.
type Result struct {
	Issues []Issue
}

// HasErrors returns true if there are any blocking errors.
func (r *Result) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only error-severity issues.
func (r *Result) Errors() []Issue {
	var errs []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			errs = append(errs, i)
		}
	}
	return errs
}

// Warnings returns only warning-severity issues.
func (r *Result) Warnings() []Issue {
	var warns []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityWarning {
			warns = append(warns, i)
		}
	}
	return warns
}

// Known mode values (warn on unknown, don't block).
var knownModes = map[string]bool{
	"chat":                true,
	"completion":          true,
	"embedding":           true,
	"image_generation":    true,
	"audio_transcription": true,
	"audio_speech":        true,
	"moderation":          true,
	"rerank":              true,
}

// CheckCatalog checks every catalog entry for structural problems. Records
// are opaque, so the checks are deliberately shallow: names must be
// non-empty, entries should be objects, and anything that looks like a cost
// must be a non-negative number.
func CheckCatalog(cat catalog.Catalog) *Result {
	r := &Result{}
	for _, name := range cat.SortedNames() {
		checkModel(r, name, cat[name])
	}
	return r
}

func checkModel(r *Result, name string, v any) {
	if strings.TrimSpace(name) == "" {
		r.Issues = append(r.Issues, Issue{SeverityError, name, "name", "model name is empty"})
		return
	}

	rec, ok := catalog.AsRecord(v)
	if !ok {
		r.Issues = append(r.Issues, Issue{SeverityWarning, name, "record",
			fmt.Sprintf("entry is %T, not an object", v)})
		return
	}

	fields := make([]string, 0, len(rec))
	for f := range rec {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, f := range fields {
		fv := rec[f]

		if f == "mode" {
			if s, ok := fv.(string); ok && !knownModes[s] {
				r.Issues = append(r.Issues, Issue{SeverityWarning, name, "mode",
					fmt.Sprintf("unknown mode %q", s)})
			}
			continue
		}

		// Cost fields must be non-negative numbers. Null is allowed: it
		// marks a value upstream has not published yet.
		if !strings.Contains(f, "cost") || fv == nil {
			continue
		}
		num, ok := fv.(json.Number)
		if !ok {
			r.Issues = append(r.Issues, Issue{SeverityWarning, name, f,
				fmt.Sprintf("cost field is %T, expected a number", fv)})
			continue
		}
		parsed, err := num.Float64()
		if err != nil {
			r.Issues = append(r.Issues, Issue{SeverityWarning, name, f,
				fmt.Sprintf("cost field %q does not parse as a number", num.String())})
			continue
		}
		if parsed < 0 {
			r.Issues = append(r.Issues, Issue{SeverityError, name, f,
				fmt.Sprintf("cost %s is negative", num.String())})
		}
	}
}

// CheckFiles verifies the on-disk catalog and its hash file agree with each
// other and with what a sync would write. Catalog-level checks run too when
// the file parses.
func CheckFiles(outputPath, hashPath string) *Result {
	r := &Result{}

	data, err := os.ReadFile(outputPath)
	if os.IsNotExist(err) {
		r.Issues = append(r.Issues, Issue{SeverityError, outputPath, "exists",
			"catalog file does not exist; run pricesync sync"})
		return r
	}
	if err != nil {
		r.Issues = append(r.Issues, Issue{SeverityError, outputPath, "read", err.Error()})
		return r
	}

	cat, err := catalog.Decode(bytes.NewReader(data))
	if err != nil {
		r.Issues = append(r.Issues, Issue{SeverityError, outputPath, "parse", err.Error()})
		return r
	}

	canonical, err := catalog.Encode(cat)
	if err != nil {
		r.Issues = append(r.Issues, Issue{SeverityError, outputPath, "encode", err.Error()})
		return r
	}
	if !bytes.Equal(canonical, data) {
		r.Issues = append(r.Issues, Issue{SeverityWarning, outputPath, "format",
			"file is not in canonical form; the next sync will rewrite it"})
	}

	computed := catalog.ContentHash(canonical)
	stored, err := os.ReadFile(hashPath)
	switch {
	case os.IsNotExist(err):
		r.Issues = append(r.Issues, Issue{SeverityWarning, hashPath, "exists",
			"hash file does not exist; the next sync will treat the catalog as changed"})
	case err != nil:
		r.Issues = append(r.Issues, Issue{SeverityError, hashPath, "read", err.Error()})
	case strings.TrimSpace(string(stored)) != computed:
		r.Issues = append(r.Issues, Issue{SeverityError, hashPath, "hash",
			fmt.Sprintf("stored hash %s does not match catalog hash %s",
				shortHash(strings.TrimSpace(string(stored))), shortHash(computed))})
	}

	catResult := CheckCatalog(cat)
	r.Issues = append(r.Issues, catResult.Issues...)
	return r
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// FormatResult formats validation results for display.
func FormatResult(r *Result) string {
	if len(r.Issues) == 0 {
		return "Verification passed: no issues found."
	}

	var b strings.Builder
	errors := r.Errors()
	warnings := r.Warnings()

	if len(errors) > 0 {
		b.WriteString(fmt.Sprintf("Errors (%d):\n", len(errors)))
		for _, e := range errors {
			b.WriteString(fmt.Sprintf("  %s\n", e))
		}
	}

	if len(warnings) > 0 {
		b.WriteString(fmt.Sprintf("Warnings (%d):\n", len(warnings)))
		for _, w := range warnings {
			b.WriteString(fmt.Sprintf("  %s\n", w))
		}
	}

	return b.String()
}
