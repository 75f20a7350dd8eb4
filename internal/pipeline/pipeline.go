// Package pipeline orchestrates a sync run end to end: load the local
// catalog, fetch upstream, filter, merge, apply rules, write, and
// optionally publish the result as a pull request.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/everstacklabs/pricesync/internal/cache"
	"github.com/everstacklabs/pricesync/internal/catalog"
	"github.com/everstacklabs/pricesync/internal/config"
	"github.com/everstacklabs/pricesync/internal/history"
	"github.com/everstacklabs/pricesync/internal/httpclient"
	"github.com/everstacklabs/pricesync/internal/merge"
	"github.com/everstacklabs/pricesync/internal/rules"
	"github.com/everstacklabs/pricesync/internal/upstream"
	"github.com/everstacklabs/pricesync/internal/validate"
)

// ExitCode constants for CLI.
const (
	ExitSuccess = 0
	ExitChanges = 2 // Pending changes detected (diff mode)
)

// upstreamRate caps requests per second against the upstream host.
const upstreamRate = 2.0

// Pipeline orchestrates the full sync workflow.
type Pipeline struct {
	cfg *config.Config
}

// New creates a new Pipeline.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// RunResult holds the outcome of one sync run.
type RunResult struct {
	Changed       bool
	DryRun        bool
	Hash          string
	Filter        merge.FilterStats
	Merge         merge.Stats
	Aliased       int
	AutoFilled    int
	CustomApplied int
	TotalModels   int
	PRNumber      int
	PRURL         string
}

// Sync runs the full pipeline and persists the catalog when it changed.
func (p *Pipeline) Sync(ctx context.Context) (*RunResult, error) {
	return p.run(ctx, false)
}

// Diff runs the same pipeline without touching the catalog, hash, manifest,
// or history files.
func (p *Pipeline) Diff(ctx context.Context) (*RunResult, error) {
	return p.run(ctx, true)
}

func (p *Pipeline) run(ctx context.Context, dryRun bool) (*RunResult, error) {
	started := time.Now()

	existing, err := catalog.Load(p.cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	writer := catalog.NewWriter(p.cfg.OutputFile, p.cfg.HashFile)
	oldHash, err := writer.LoadHash()
	if err != nil {
		return nil, fmt.Errorf("loading content hash: %w", err)
	}

	fetched, err := p.fetchUpstream(ctx)
	if err != nil {
		return nil, err
	}

	res := &RunResult{DryRun: dryRun}

	filtered, fstats := merge.Filter(fetched, p.cfg.PrefixFilters, p.cfg.ExcludePatterns)
	res.Filter = fstats
	slog.Info("filtered upstream catalog",
		"upstream", fstats.Upstream,
		"kept", fstats.Kept)

	merged, mstats := merge.Merge(existing, filtered, p.cfg.Mode(), p.cfg.UpdateExisting)
	res.Merge = mstats
	slog.Info("merged catalog",
		"mode", string(p.cfg.Mode()),
		"added", mstats.Added,
		"updated", mstats.Updated,
		"unchanged", mstats.Unchanged)

	res.Aliased = rules.ApplyAliases(merged, p.cfg.Aliases)
	res.AutoFilled = rules.FillDerived(merged, p.cfg.AutoFill)
	res.CustomApplied = rules.ApplyCustom(merged, p.cfg.CustomModels)
	res.TotalModels = len(merged)
	slog.Info("applied catalog rules",
		"aliased", res.Aliased,
		"auto_filled", res.AutoFilled,
		"custom", res.CustomApplied,
		"total_models", res.TotalModels)

	// Issues never block the write; upstream data lands verbatim. The
	// verify command reports the details.
	if v := validate.CheckCatalog(merged); len(v.Issues) > 0 {
		slog.Warn("catalog has validation issues",
			"errors", len(v.Errors()),
			"warnings", len(v.Warnings()))
	}

	var wr *catalog.WriteResult
	if dryRun {
		wr, err = writer.Plan(merged, oldHash)
	} else {
		wr, err = writer.Write(merged, oldHash)
	}
	if err != nil {
		return nil, fmt.Errorf("writing catalog: %w", err)
	}
	res.Changed = wr.Changed
	res.Hash = wr.Hash

	switch {
	case !res.Changed:
		slog.Info("catalog unchanged", "hash", res.Hash)
	case dryRun:
		slog.Info("changes pending", "hash", res.Hash)
	default:
		slog.Info("catalog written",
			"path", p.cfg.OutputFile,
			"bytes", wr.Bytes,
			"hash", res.Hash)
	}

	if dryRun {
		return res, nil
	}

	if res.Changed && p.cfg.ManifestFile != "" {
		m := catalog.NewManifest(p.cfg.UpstreamURL, string(p.cfg.Mode()), res.Hash, catalog.ManifestStats{
			TotalModels:    res.TotalModels,
			Added:          mstats.Added,
			Updated:        mstats.Updated,
			Unchanged:      mstats.Unchanged,
			AliasesApplied: res.Aliased,
			AutoFilled:     res.AutoFilled,
			CustomApplied:  res.CustomApplied,
		})
		if err := catalog.WriteManifest(p.cfg.ManifestFile, m); err != nil {
			return nil, fmt.Errorf("writing manifest: %w", err)
		}
	}

	// History failures do not fail the sync.
	if p.cfg.HistoryFile != "" {
		if err := p.recordRun(res, started); err != nil {
			slog.Warn("recording run history failed", "error", err)
		}
	}

	if res.Changed && p.cfg.GitHub.Enabled() {
		num, url, err := p.publish(ctx, res)
		if err != nil {
			return nil, fmt.Errorf("publishing: %w", err)
		}
		res.PRNumber = num
		res.PRURL = url
	}

	return res, nil
}

// FetchUpstream fetches and filters the upstream catalog without merging,
// for inspection.
func (p *Pipeline) FetchUpstream(ctx context.Context) (catalog.Catalog, merge.FilterStats, error) {
	fetched, err := p.fetchUpstream(ctx)
	if err != nil {
		return nil, merge.FilterStats{}, err
	}
	filtered, stats := merge.Filter(fetched, p.cfg.PrefixFilters, p.cfg.ExcludePatterns)
	return filtered, stats, nil
}

func (p *Pipeline) fetchUpstream(ctx context.Context) (catalog.Catalog, error) {
	opts := []httpclient.Option{
		httpclient.WithTimeout(p.cfg.Timeout()),
		httpclient.WithRateLimit(upstreamRate),
	}
	if p.cfg.NoCache {
		opts = append(opts, httpclient.WithNoCache())
	} else if fc, err := cache.New(p.cfg.CacheDir, p.cfg.TTL()); err != nil {
		slog.Warn("failed to create cache, continuing without", "error", err)
	} else {
		opts = append(opts, httpclient.WithCache(fc))
	}

	fetcher := upstream.New(p.cfg.UpstreamURL, httpclient.New(opts...))
	return fetcher.Fetch(ctx)
}

func (p *Pipeline) recordRun(res *RunResult, started time.Time) error {
	store, err := history.Open(p.cfg.HistoryFile)
	if err != nil {
		return err
	}
	defer store.Close()

	r := history.NewRun(string(p.cfg.Mode()))
	r.StartedAt = started.UTC()
	r.Duration = time.Since(started)
	r.Changed = res.Changed
	r.ContentHash = res.Hash
	r.TotalModels = res.TotalModels
	r.Added = res.Merge.Added
	r.Updated = res.Merge.Updated
	r.Unchanged = res.Merge.Unchanged
	r.Aliased = res.Aliased
	r.AutoFilled = res.AutoFilled
	r.CustomApplied = res.CustomApplied
	return store.Record(r)
}
