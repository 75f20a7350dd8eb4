package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/everstacklabs/pricesync/internal/catalog"
	"github.com/everstacklabs/pricesync/internal/config"
	"github.com/everstacklabs/pricesync/internal/history"
	"github.com/everstacklabs/pricesync/internal/pipeline"
	"github.com/everstacklabs/pricesync/internal/validate"
)

var (
	cfgFile  string
	repoRoot string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pricesync",
		Short: "Automated model pricing sync",
		Long:  "Fetches upstream model pricing, merges it into the local catalog, and opens PRs with the result.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env values never override real environment variables.
			_ = godotenv.Load(".env.local", ".env")
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.json)")
	rootCmd.PersistentFlags().StringVar(&repoRoot, "repo-root", ".", "repository root for relative paths")

	rootCmd.AddCommand(
		syncCmd(),
		diffCmd(),
		fetchCmd(),
		verifyCmd(),
		historyCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Full pipeline: fetch → filter → merge → rules → write → PR",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			dryRun, _ := cmd.Flags().GetBool("dry-run")

			p := pipeline.New(cfg)
			var res *pipeline.RunResult
			if dryRun {
				res, err = p.Diff(cmd.Context())
			} else {
				res, err = p.Sync(cmd.Context())
			}
			if err != nil {
				return err
			}

			// Stable lines for CI to scrape.
			fmt.Printf("CHANGED=%t\n", res.Changed)
			fmt.Printf("HASH=%s\n", res.Hash)

			if res.PRNumber > 0 {
				slog.Info("pull request open", "number", res.PRNumber, "url", res.PRURL)
			}
			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "Show what would change without writing")

	return cmd
}

func diffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show what would change (no writes)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			res, err := pipeline.New(cfg).Diff(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Print(pipeline.RenderSummary(res))

			if res.Changed {
				os.Exit(pipeline.ExitChanges)
			}
			return nil
		},
	}
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and filter upstream pricing, print models to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			cat, stats, err := pipeline.New(cfg).FetchUpstream(cmd.Context())
			if err != nil {
				return err
			}

			for _, name := range cat.SortedNames() {
				rec, ok := catalog.AsRecord(cat[name])
				if !ok {
					fmt.Printf("%-45s %v\n", name, cat[name])
					continue
				}
				fmt.Printf("%-45s %-12s in %-14s out %s\n", name,
					field(rec, "mode"),
					field(rec, "input_cost_per_token"),
					field(rec, "output_cost_per_token"))
			}

			fmt.Printf("\nKept %d of %d upstream models\n", stats.Kept, stats.Upstream)
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the written catalog and hash file (CI check)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			result := validate.CheckFiles(cfg.OutputFile, cfg.HashFile)
			fmt.Println(validate.FormatResult(result))

			if result.HasErrors() {
				os.Exit(1)
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.HistoryFile == "" {
				return fmt.Errorf("history_file is not configured")
			}

			limit, _ := cmd.Flags().GetInt("limit")

			store, err := history.Open(cfg.HistoryFile)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded yet.")
				return nil
			}

			for _, r := range runs {
				status := "unchanged"
				if r.Changed {
					status = "changed"
				}
				fmt.Printf("%-20s %-9s %-9s %8s  +%d ~%d =%d  %s\n",
					r.StartedAt.Format("2006-01-02 15:04:05"),
					r.SyncMode,
					status,
					r.Duration.Round(time.Millisecond),
					r.Added, r.Updated, r.Unchanged,
					short(r.ContentHash))
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum runs to show")

	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile, repoRoot)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	configureLogging(cfg.LogLevel)
	return cfg, nil
}

func configureLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func field(rec map[string]any, key string) string {
	v, ok := rec[key]
	if !ok || v == nil {
		return "-"
	}
	return fmt.Sprint(v)
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
