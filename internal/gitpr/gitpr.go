// Package gitpr implements the Git/PR Controller (spec.md §4.14):
// worktree and branch lifecycle for per-ticket isolation, milestone
// merges, push-safety gating, and PR creation/poll/automerge against a
// forge behind the go-github-based Client interface.
package gitpr

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	ErrDetachedHEAD    = errors.New("gitpr: detached HEAD: worktree requires a named branch")
	ErrNotGitRepo      = errors.New("gitpr: not a git repository")
	ErrResolveHEAD     = errors.New("gitpr: unable to resolve HEAD commit")
	ErrWorktreeExists  = errors.New("gitpr: failed to create a unique worktree path after 3 attempts")
	ErrRemoteMismatch  = errors.New("gitpr: remote does not match the allowed push remote")
	ErrEmptyMergeBase  = errors.New("gitpr: merge source commit is empty")
)

// GitGate serializes every git invocation that touches the main
// repository's index (spec.md §4.12/§5: "the main git repository index
// is protected by a session-global mutex"). Per-worktree git commands,
// once a worktree exists, don't need to go through the gate.
type GitGate struct {
	mu sync.Mutex
}

func (g *GitGate) run(ctx context.Context, timeout time.Duration, dir string, args ...string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return runGit(ctx, timeout, dir, args...)
}

func runGit(ctx context.Context, timeout time.Duration, dir string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil && runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("gitpr: git %s timed out after %s", args[0], timeout)
	}
	return string(out), err
}

// gitTimeout is the default per-git-call timeout (spec.md §5: "git
// operations have a 10 s default").
const gitTimeout = 10 * time.Second

// generateTicketSuffix returns an 8-char random hex suffix for worktree
// and branch names.
func generateTicketSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(b)
}

// Controller exposes the worktree/branch/PR lifecycle a ticket needs,
// all main-repo git calls routed through a shared GitGate.
type Controller struct {
	RepoRoot      string
	BranchPrefix  string // default "promptwheel/"
	AllowedRemote string // push-safety gate; empty disables the check
	Gate          *GitGate
	PR            Client // nil disables PR creation (direct mode)
}

// New builds a Controller for one repository.
func New(repoRoot, branchPrefix, allowedRemote string, pr Client) *Controller {
	if branchPrefix == "" {
		branchPrefix = "promptwheel/"
	}
	return &Controller{RepoRoot: repoRoot, BranchPrefix: branchPrefix, AllowedRemote: allowedRemote, Gate: &GitGate{}, PR: pr}
}

func (c *Controller) repoRoot(ctx context.Context) (string, error) {
	out, err := c.Gate.run(ctx, gitTimeout, c.RepoRoot, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", ErrNotGitRepo
	}
	return strings.TrimSpace(out), nil
}

func (c *Controller) headCommit(ctx context.Context, dir string) (string, error) {
	out, err := c.Gate.run(ctx, gitTimeout, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("gitpr: rev-parse HEAD: %w", err)
	}
	sha := strings.TrimSpace(out)
	if sha == "" {
		return "", ErrResolveHEAD
	}
	return sha, nil
}

// Worktree describes one ticket's isolated checkout.
type Worktree struct {
	Path       string
	BranchName string
	TicketID   string
}

// CreateWorktree creates a sibling worktree on a new branch for
// ticketID, off the current HEAD. Worktree creation touches the main
// repo's index so it runs under the git gate; work inside the returned
// path does not.
func (c *Controller) CreateWorktree(ctx context.Context, ticketID string) (*Worktree, error) {
	root, err := c.repoRoot(ctx)
	if err != nil {
		return nil, err
	}
	sha, err := c.headCommit(ctx, root)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 3; attempt++ {
		branch := c.BranchPrefix + ticketID + "-" + generateTicketSuffix()
		path := filepath.Join(filepath.Dir(root), filepath.Base(root)+"-"+ticketID+"-"+generateTicketSuffix())

		out, err := c.Gate.run(ctx, gitTimeout, root, "worktree", "add", "-b", branch, path, sha)
		if err == nil {
			return &Worktree{Path: path, BranchName: branch, TicketID: ticketID}, nil
		}
		if strings.Contains(out, "already exists") {
			continue
		}
		return nil, fmt.Errorf("gitpr: worktree add failed: %w (output: %s)", err, strings.TrimSpace(out))
	}
	return nil, ErrWorktreeExists
}

// RemoveWorktree removes a ticket's worktree and its branch.
func (c *Controller) RemoveWorktree(ctx context.Context, wt *Worktree) error {
	root, err := c.repoRoot(ctx)
	if err != nil {
		return err
	}
	if out, err := c.Gate.run(ctx, gitTimeout, root, "worktree", "remove", wt.Path, "--force"); err != nil {
		_ = os.RemoveAll(wt.Path)
		_ = out
	}
	_, _ = c.Gate.run(ctx, gitTimeout, root, "branch", "-D", wt.BranchName)
	return nil
}

// MergeToMilestone merges a ticket branch into a milestone branch
// checked out at the main repo root.
func (c *Controller) MergeToMilestone(ctx context.Context, wt *Worktree, milestoneBranch string) error {
	root, err := c.repoRoot(ctx)
	if err != nil {
		return err
	}
	mergeSHA, err := c.headCommit(ctx, wt.Path)
	if err != nil {
		return err
	}
	if mergeSHA == "" {
		return ErrEmptyMergeBase
	}
	if _, err := c.Gate.run(ctx, gitTimeout, root, "checkout", milestoneBranch); err != nil {
		return fmt.Errorf("gitpr: checkout %s: %w", milestoneBranch, err)
	}
	out, err := c.Gate.run(ctx, gitTimeout, root, "merge", "--no-ff", mergeSHA, "-m", "merge "+wt.BranchName)
	if err != nil {
		return fmt.Errorf("gitpr: merge %s failed: %w (output: %s)", wt.BranchName, err, strings.TrimSpace(out))
	}
	return nil
}

// Push pushes a branch to the configured remote, refusing to push
// anywhere else when AllowedRemote is set (spec.md §4.14's push-safety gate).
func (c *Controller) Push(ctx context.Context, dir, remote, branch string) error {
	if c.AllowedRemote != "" && remote != c.AllowedRemote {
		return ErrRemoteMismatch
	}
	if _, err := c.Gate.run(ctx, gitTimeout, dir, "push", "-u", remote, branch); err != nil {
		return fmt.Errorf("gitpr: push %s %s: %w", remote, branch, err)
	}
	return nil
}
