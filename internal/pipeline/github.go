package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"
)

// publish commits the written files to a fresh branch, pushes it, and opens
// a pull request against the configured base branch.
func (p *Pipeline) publish(ctx context.Context, res *RunResult) (int, string, error) {
	branch := fmt.Sprintf("pricesync/sync-%s", time.Now().Format("20060102-150405"))
	message := "chore(prices): sync model pricing"

	gitOps, err := OpenRepo(p.cfg.RepoRoot, p.cfg.GitHub.Token)
	if err != nil {
		return 0, "", err
	}

	if err := gitOps.CreateBranch(branch); err != nil {
		return 0, "", fmt.Errorf("creating branch: %w", err)
	}

	// The history db stays local; only generated catalog files go up.
	if err := gitOps.Add(p.cfg.OutputFile, p.cfg.HashFile, p.cfg.ManifestFile); err != nil {
		return 0, "", fmt.Errorf("staging changes: %w", err)
	}

	if err := gitOps.Commit(message); err != nil {
		return 0, "", fmt.Errorf("committing: %w", err)
	}

	if err := gitOps.Push(branch); err != nil {
		return 0, "", fmt.Errorf("pushing: %w", err)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.cfg.GitHub.Token})
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)

	title := message
	body := RenderPRBody(p.cfg.UpstreamURL, res)

	pr, _, err := client.PullRequests.Create(ctx, p.cfg.GitHub.Owner, p.cfg.GitHub.Repo, &github.NewPullRequest{
		Title: &title,
		Body:  &body,
		Head:  &branch,
		Base:  &p.cfg.GitHub.BaseBranch,
	})
	if err != nil {
		return 0, "", fmt.Errorf("creating PR: %w", err)
	}

	slog.Info("pull request created",
		"number", pr.GetNumber(),
		"url", pr.GetHTMLURL())

	return pr.GetNumber(), pr.GetHTMLURL(), nil
}
