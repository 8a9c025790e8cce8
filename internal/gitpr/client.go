package gitpr

import (
	"context"
	"fmt"

	"github.com/google/go-github/v68/github"
)

// PRState is a pull request's forge-side lifecycle state.
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateMerged PRState = "merged"
	PRStateClosed PRState = "closed"
)

// Client wraps the subset of the GitHub API the PR controller needs:
// creating PRs (draft or ready), polling their state, auto-merging,
// requesting reviewers for cross-verify mode, and deleting branches
// once a PR has merged.
type Client interface {
	CreatePR(ctx context.Context, owner, repo, title, body, head, base string, draft bool) (url string, number int, err error)
	GetDefaultBranch(ctx context.Context, owner, repo string) (string, error)
	MarkReadyForReview(ctx context.Context, owner, repo string, number int) error
	RequestReviewers(ctx context.Context, owner, repo string, number int, users []string) error
	PollState(ctx context.Context, owner, repo string, number int) (PRState, error)
	Merge(ctx context.Context, owner, repo string, number int) error
	DeleteRemoteBranch(ctx context.Context, owner, repo, branch string) error
}

type ghClient struct {
	gh *github.Client
}

// NewClient builds a Client authenticated with a GitHub PAT. Returns
// nil when token is empty, signaling direct (no-PR) mode to callers.
func NewClient(token string) Client {
	if token == "" {
		return nil
	}
	return &ghClient{gh: github.NewClient(nil).WithAuthToken(token)}
}

func (c *ghClient) CreatePR(ctx context.Context, owner, repo, title, body, head, base string, draft bool) (string, int, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
		Head:  github.Ptr(head),
		Base:  github.Ptr(base),
		Draft: github.Ptr(draft),
	})
	if err != nil {
		return "", 0, fmt.Errorf("gitpr: create PR: %w", err)
	}
	return pr.GetHTMLURL(), pr.GetNumber(), nil
}

// GetDefaultBranch resolves the repository's configured default branch
// (e.g. "main" or "master"), used as the PR base when no milestone
// branch is configured for this run.
func (c *ghClient) GetDefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("gitpr: get repository %s/%s: %w", owner, repo, err)
	}
	branch := r.GetDefaultBranch()
	if branch == "" {
		return "", fmt.Errorf("gitpr: repository %s/%s has no default branch", owner, repo)
	}
	return branch, nil
}

func (c *ghClient) MarkReadyForReview(ctx context.Context, owner, repo string, number int) error {
	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return fmt.Errorf("gitpr: get PR: %w", err)
	}
	if !pr.GetDraft() {
		return nil
	}
	_, _, err = c.gh.PullRequests.Edit(ctx, owner, repo, number, &github.PullRequest{Draft: github.Ptr(false)})
	if err != nil {
		return fmt.Errorf("gitpr: mark ready for review: %w", err)
	}
	return nil
}

func (c *ghClient) RequestReviewers(ctx context.Context, owner, repo string, number int, users []string) error {
	_, _, err := c.gh.PullRequests.RequestReviewers(ctx, owner, repo, number, github.ReviewersRequest{Reviewers: users})
	if err != nil {
		return fmt.Errorf("gitpr: request reviewers: %w", err)
	}
	return nil
}

func (c *ghClient) PollState(ctx context.Context, owner, repo string, number int) (PRState, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return "", fmt.Errorf("gitpr: get PR: %w", err)
	}
	if pr.GetMerged() {
		return PRStateMerged, nil
	}
	if pr.GetState() == "closed" {
		return PRStateClosed, nil
	}
	return PRStateOpen, nil
}

func (c *ghClient) Merge(ctx context.Context, owner, repo string, number int) error {
	_, _, err := c.gh.PullRequests.Merge(ctx, owner, repo, number, "", nil)
	if err != nil {
		return fmt.Errorf("gitpr: merge PR: %w", err)
	}
	return nil
}

func (c *ghClient) DeleteRemoteBranch(ctx context.Context, owner, repo, branch string) error {
	ref := "heads/" + branch
	_, err := c.gh.Git.DeleteRef(ctx, owner, repo, ref)
	if err != nil {
		return fmt.Errorf("gitpr: delete remote branch %s: %w", branch, err)
	}
	return nil
}
