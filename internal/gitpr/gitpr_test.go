package gitpr

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	runGitCmd(t, dir, "init")
	runGitCmd(t, dir, "config", "user.email", "test@example.com")
	runGitCmd(t, dir, "config", "user.name", "Test")

	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("# test\n"), 0644); err != nil {
		t.Fatal(err)
	}
	runGitCmd(t, dir, "add", "README.md")
	runGitCmd(t, dir, "commit", "-m", "initial")
	return dir
}

func runGitCmd(t *testing.T, cwd string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = cwd
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, string(out))
	}
}

func TestCreateAndRemoveWorktree(t *testing.T) {
	repo := initGitRepo(t)
	c := New(repo, "pw/", "", nil)

	wt, err := c.CreateWorktree(context.Background(), "ticket-1")
	if err != nil {
		t.Fatalf("CreateWorktree: %v", err)
	}
	if _, err := os.Stat(wt.Path); err != nil {
		t.Fatalf("expected worktree directory to exist: %v", err)
	}
	if !strings.HasPrefix(wt.BranchName, "pw/ticket-1-") {
		t.Errorf("got branch %q, want pw/ticket-1-* prefix", wt.BranchName)
	}

	if err := c.RemoveWorktree(context.Background(), wt); err != nil {
		t.Fatalf("RemoveWorktree: %v", err)
	}
	if _, err := os.Stat(wt.Path); !os.IsNotExist(err) {
		t.Errorf("expected worktree directory removed, stat err=%v", err)
	}
}

func TestCreateWorktreeFailsOutsideGitRepo(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, "pw/", "", nil)

	if _, err := c.CreateWorktree(context.Background(), "ticket-1"); err == nil {
		t.Fatal("expected error creating a worktree outside a git repo")
	}
}

func TestMergeToMilestoneBringsInWorktreeCommit(t *testing.T) {
	repo := initGitRepo(t)
	runGitCmd(t, repo, "checkout", "-b", "milestone")
	runGitCmd(t, repo, "checkout", "-")

	c := New(repo, "pw/", "", nil)
	wt, err := c.CreateWorktree(context.Background(), "ticket-1")
	if err != nil {
		t.Fatalf("CreateWorktree: %v", err)
	}

	newFile := filepath.Join(wt.Path, "change.txt")
	if err := os.WriteFile(newFile, []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}
	runGitCmd(t, wt.Path, "add", "change.txt")
	runGitCmd(t, wt.Path, "commit", "-m", "ticket change")

	if err := c.MergeToMilestone(context.Background(), wt, "milestone"); err != nil {
		t.Fatalf("MergeToMilestone: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repo, "change.txt")); err != nil {
		t.Errorf("expected merged file present on milestone branch: %v", err)
	}
}

func TestPushRejectsDisallowedRemote(t *testing.T) {
	repo := initGitRepo(t)
	c := New(repo, "pw/", "origin", nil)

	err := c.Push(context.Background(), repo, "upstream", "main")
	if err != ErrRemoteMismatch {
		t.Fatalf("got err=%v, want ErrRemoteMismatch", err)
	}
}

func TestNewClientReturnsNilForEmptyToken(t *testing.T) {
	if NewClient("") != nil {
		t.Fatal("expected nil Client for empty token")
	}
}
