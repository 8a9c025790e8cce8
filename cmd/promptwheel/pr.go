package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promptwheel-ai/promptwheel/internal/gitpr"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

var (
	prOwner string
	prRepo  string
)

var prCmd = &cobra.Command{
	Use:   "pr <ticket>",
	Short: "Open the pull request for a completed ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runPR,
}

func init() {
	prCmd.Flags().StringVar(&prOwner, "owner", "", "GitHub owner/org (inferred from origin remote if empty)")
	prCmd.Flags().StringVar(&prRepo, "repo", "", "GitHub repository name (inferred from origin remote if empty)")
	rootCmd.AddCommand(prCmd)
}

func runPR(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if _, err := a.openSession(); err != nil {
		return err
	}
	ticketID := args[0]
	ticket := a.Tickets.Get(ticketID)
	if ticket == nil {
		return fmt.Errorf("unknown ticket %q", ticketID)
	}

	ws, err := a.Manager.GetTicketWorker(ticketID)
	if err != nil || ws == nil || ws.BranchName == "" {
		return fmt.Errorf("ticket %q has no branch to open a PR from yet", ticketID)
	}

	owner, repo := prOwner, prRepo
	if owner == "" || repo == "" {
		owner, repo, err = inferOwnerRepo(a.ProjectRoot)
		if err != nil {
			return err
		}
	}

	client := gitpr.NewClient(os.Getenv("GITHUB_TOKEN"))
	if client == nil {
		return fmt.Errorf("GITHUB_TOKEN is not set; cannot create a PR")
	}
	controller := gitpr.New(a.ProjectRoot, "promptwheel/", a.Config.Git.AllowedRemote, client)

	ctx := context.Background()
	if err := controller.Push(ctx, a.ProjectRoot, "origin", ws.BranchName); err != nil {
		return err
	}

	base := a.Config.Git.MilestoneBranch
	if base == "" {
		base, err = client.GetDefaultBranch(ctx, owner, repo)
		if err != nil {
			return err
		}
	}

	title := fmt.Sprintf("[promptwheel] %s", ticket.Title)
	body := ticket.Description
	url, number, err := client.CreatePR(ctx, owner, repo, title, body, ws.BranchName, base, a.Config.Draft)
	if err != nil {
		return err
	}

	result, err := a.ingestEvent(types.EventPRCreated, map[string]any{
		"ticket_id": ticketID,
		"pr_url":    url,
		"pr_number": number,
	})
	if err != nil {
		return err
	}
	fmt.Printf("opened PR #%d: %s\nphase: %s\n%s\n", number, url, result.NewPhase, result.Message)
	return nil
}

// inferOwnerRepo parses "owner/repo" out of the origin remote's URL,
// supporting both SSH (git@host:owner/repo.git) and HTTPS forms.
func inferOwnerRepo(repoRoot string) (string, string, error) {
	out, err := exec.Command("git", "-C", repoRoot, "remote", "get-url", "origin").Output()
	if err != nil {
		return "", "", fmt.Errorf("resolve origin remote: %w", err)
	}
	url := strings.TrimSpace(string(out))
	url = strings.TrimSuffix(url, ".git")
	var path string
	switch {
	case strings.Contains(url, "github.com:"):
		_, path, _ = strings.Cut(url, "github.com:")
	case strings.Contains(url, "github.com/"):
		_, path, _ = strings.Cut(url, "github.com/")
	default:
		return "", "", fmt.Errorf("unrecognized remote URL %q; pass --owner/--repo explicitly", url)
	}
	owner, repo, ok := strings.Cut(path, "/")
	if !ok {
		return "", "", fmt.Errorf("unrecognized remote URL %q; pass --owner/--repo explicitly", url)
	}
	return owner, repo, nil
}
