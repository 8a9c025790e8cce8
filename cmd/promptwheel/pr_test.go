package main

import (
	"os/exec"
	"testing"
)

func gitAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func TestInferOwnerRepoSSHRemote(t *testing.T) {
	gitAvailable(t)
	tmp := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", tmp}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init")
	run("remote", "add", "origin", "git@github.com:promptwheel-ai/promptwheel.git")

	owner, repo, err := inferOwnerRepo(tmp)
	if err != nil {
		t.Fatalf("inferOwnerRepo: %v", err)
	}
	if owner != "promptwheel-ai" || repo != "promptwheel" {
		t.Errorf("inferOwnerRepo = (%q, %q), want (promptwheel-ai, promptwheel)", owner, repo)
	}
}

func TestInferOwnerRepoHTTPSRemote(t *testing.T) {
	gitAvailable(t)
	tmp := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", tmp}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init")
	run("remote", "add", "origin", "https://github.com/promptwheel-ai/promptwheel.git")

	owner, repo, err := inferOwnerRepo(tmp)
	if err != nil {
		t.Fatalf("inferOwnerRepo: %v", err)
	}
	if owner != "promptwheel-ai" || repo != "promptwheel" {
		t.Errorf("inferOwnerRepo = (%q, %q), want (promptwheel-ai, promptwheel)", owner, repo)
	}
}

func TestInferOwnerRepoUnrecognizedRemote(t *testing.T) {
	gitAvailable(t)
	tmp := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", tmp}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init")
	run("remote", "add", "origin", "https://gitlab.com/promptwheel-ai/promptwheel.git")

	if _, _, err := inferOwnerRepo(tmp); err == nil {
		t.Error("expected error for unrecognized remote host")
	}
}
