package qarunner

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// Sandbox runs verification commands inside a throwaway container
// instead of the host shell, for tickets whose scope policy demands
// isolation from the host filesystem beyond the ticket's own worktree.
type Sandbox struct {
	Client  *client.Client
	Image   string
	WorkDir string // host path bind-mounted read-write to /workspace
}

// NewSandbox connects to the local docker daemon via the environment
// (DOCKER_HOST and friends), mirroring the teacher pack's
// client.NewClientWithOpts(client.FromEnv, ...) construction.
func NewSandbox(image, workDir string) (*Sandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("qarunner: docker client: %w", err)
	}
	return &Sandbox{Client: cli, Image: image, WorkDir: workDir}, nil
}

// runOne executes one command inside a fresh container bind-mounting
// WorkDir at /workspace, capturing combined stdout+stderr through the
// same capped writer the host runner uses.
func (sb *Sandbox) runOne(ctx context.Context, command string, timeout time.Duration, maxBytes, tailBytes int) Result {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg := &container.Config{
		Image:      sb.Image,
		Cmd:        []string{"sh", "-c", command},
		WorkingDir: "/workspace",
		Tty:        false,
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: sb.WorkDir, Target: "/workspace"},
		},
		AutoRemove: false,
	}

	start := time.Now()
	resp, err := sb.Client.ContainerCreate(runCtx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return Result{Command: command, Passed: false, Output: fmt.Sprintf("create container: %v", err)}
	}
	defer sb.Client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})

	if err := sb.Client.ContainerStart(runCtx, resp.ID, container.StartOptions{}); err != nil {
		return Result{Command: command, Passed: false, Output: fmt.Sprintf("start container: %v", err)}
	}

	statusCh, errCh := sb.Client.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if runCtx.Err() == context.DeadlineExceeded {
			return Result{Command: command, Passed: false, TimedOut: true, Output: "sandboxed command timed out", DurationMillis: time.Since(start).Milliseconds()}
		}
		return Result{Command: command, Passed: false, Output: fmt.Sprintf("wait container: %v", err), DurationMillis: time.Since(start).Milliseconds()}
	case st := <-statusCh:
		exitCode = st.StatusCode
	}

	logs, err := sb.Client.ContainerLogs(context.Background(), resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	output := ""
	if err == nil {
		defer logs.Close()
		capture := newCappedWriter(maxBytes, tailBytes)
		var discard bytes.Buffer
		stdcopy.StdCopy(capture, &discard, logs)
		output = capture.result()
	}

	return Result{
		Command:        command,
		Passed:         exitCode == 0,
		Output:         output,
		DurationMillis: time.Since(start).Milliseconds(),
	}
}

// Run executes every command inside the sandbox, recording stats
// exactly like Runner.Run so QA reports are indistinguishable from a
// host-executed run to the rest of the pipeline.
func (sb *Sandbox) Run(ctx context.Context, commands []string, timeout time.Duration, stats *Stats) Report {
	var report Report
	var failingCommands []string
	var failureCategory, failureMessage string

	for _, command := range commands {
		result := sb.runOne(ctx, command, timeout, DefaultMaxOutputBytes, DefaultTailBytes)
		report.Results = append(report.Results, result)
		stats.statFor(command).recordRun(result.Passed, result.TimedOut, result.DurationMillis)

		if !result.Passed {
			failingCommands = append(failingCommands, command)
			if failureCategory == "" {
				failureCategory = classify(result)
				failureMessage = result.Output
			}
		}
	}

	if len(failingCommands) > 0 {
		report.Failed = true
		report.LastFailure = &types.QAFailure{
			Category:        failureCategory,
			Message:         failureMessage,
			FailingCommands: failingCommands,
		}
	}
	return report
}
