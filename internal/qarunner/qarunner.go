// Package qarunner implements the QA Runner (spec.md §4.13): runs a
// ticket's verification commands with a timeout and capped output
// capture, tracks rolling per-command statistics, and classifies
// failures for the event processor's QA_FAILED retry-limit logic.
package qarunner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// Defaults per spec.md §4.13.
const (
	DefaultMaxOutputBytes = 2 * 1024 * 1024
	DefaultTailBytes      = 64 * 1024
	killGrace             = 1500 * time.Millisecond
	baselineRingSize      = 10
)

// CommandStat is one command's rolling execution history, persisted in
// qa-stats.json.
type CommandStat struct {
	Successes           int       `json:"successes"`
	Failures            int       `json:"failures"`
	Timeouts            int       `json:"timeouts"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	AvgDurationMillis   float64   `json:"avg_duration_millis"`
	RecentBaseline      []bool    `json:"recent_baseline,omitempty"` // true = passed; capped to baselineRingSize
	runCount            int       // unexported: denominator for the running average
}

func (s *CommandStat) recordRun(passed bool, timedOut bool, durationMillis int64) {
	s.runCount++
	s.AvgDurationMillis += (float64(durationMillis) - s.AvgDurationMillis) / float64(s.runCount)
	if timedOut {
		s.Timeouts++
	}
	if passed {
		s.Successes++
		s.ConsecutiveFailures = 0
	} else {
		s.Failures++
		s.ConsecutiveFailures++
	}
	s.RecentBaseline = append(s.RecentBaseline, passed)
	if len(s.RecentBaseline) > baselineRingSize {
		s.RecentBaseline = s.RecentBaseline[len(s.RecentBaseline)-baselineRingSize:]
	}
}

// Stats is the full qa-stats.json document: per-command rolling history.
type Stats struct {
	mu       sync.Mutex
	Commands map[string]*CommandStat `json:"commands"`
}

// NewStats returns an empty stats document.
func NewStats() *Stats {
	return &Stats{Commands: map[string]*CommandStat{}}
}

func (s *Stats) statFor(command string) *CommandStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.Commands[command]
	if !ok {
		stat = &CommandStat{}
		s.Commands[command] = stat
	}
	return stat
}

// Result is one verification command's outcome.
type Result struct {
	Command            string
	Passed             bool
	TimedOut           bool
	SkippedPreExisting bool
	Output             string
	DurationMillis     int64
}

// Report is the outcome of running a ticket's full verification command set.
type Report struct {
	Results     []Result
	Failed      bool
	LastFailure *types.QAFailure
}

// Runner executes verification commands in a working directory.
type Runner struct {
	WorkDir        string
	Timeout        time.Duration
	MaxOutputBytes int
	TailBytes      int
	// Baseline lists commands already failing before the session started
	// (spec.md §4.13: these are skipped and don't count against the
	// ticket). Keyed by the exact command string.
	Baseline map[string]bool
}

// New builds a Runner with spec-default output caps.
func New(workDir string, timeout time.Duration, baseline map[string]bool) *Runner {
	if baseline == nil {
		baseline = map[string]bool{}
	}
	return &Runner{
		WorkDir:        workDir,
		Timeout:        timeout,
		MaxOutputBytes: DefaultMaxOutputBytes,
		TailBytes:      DefaultTailBytes,
		Baseline:       baseline,
	}
}

// Run executes every command in order, recording stats as it goes, and
// returns a Report describing the first classified failure (if any).
func (r *Runner) Run(ctx context.Context, commands []string, stats *Stats) Report {
	var report Report
	var failingCommands []string
	var failureCategory string
	var failureMessage string

	for _, command := range commands {
		if r.Baseline[command] {
			report.Results = append(report.Results, Result{Command: command, Passed: true, SkippedPreExisting: true})
			continue
		}

		result := r.runOne(ctx, command)
		report.Results = append(report.Results, result)
		stats.statFor(command).recordRun(result.Passed, result.TimedOut, result.DurationMillis)

		if !result.Passed && failureCategory == "" {
			failingCommands = append(failingCommands, command)
			failureCategory = classify(result)
			failureMessage = result.Output
		} else if !result.Passed {
			failingCommands = append(failingCommands, command)
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

func classify(r Result) string {
	switch {
	case r.TimedOut:
		return "timeout"
	case strings.Contains(r.Output, "executable file not found") ||
		strings.Contains(r.Output, "no such file or directory") ||
		strings.Contains(r.Output, "command not found"):
		return "environment"
	default:
		return "code"
	}
}

// runOne executes a single shell command, capping captured output and
// escalating SIGTERM then SIGKILL on timeout (spec.md §4.13/§5).
func (r *Runner) runOne(ctx context.Context, command string) Result {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = r.WorkDir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	capture := newCappedWriter(r.MaxOutputBytes, r.TailBytes)
	cmd.Stdout = capture
	cmd.Stderr = capture

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	timedOut := runCtx.Err() == context.DeadlineExceeded
	passed := err == nil

	output := capture.result()
	if err != nil && !passed {
		output = fmt.Sprintf("%s\nexit error: %v", output, err)
	}

	return Result{
		Command:        command,
		Passed:         passed,
		TimedOut:       timedOut,
		Output:         output,
		DurationMillis: duration.Milliseconds(),
	}
}

// cappedWriter caps total retained output to maxBytes while always
// keeping the most recent tailBytes, so a runaway command's end (often
// where the actual error is) survives even when the middle is dropped.
type cappedWriter struct {
	maxBytes  int
	tailBytes int
	head      bytes.Buffer
	tail      []byte
	total     int
}

func newCappedWriter(maxBytes, tailBytes int) *cappedWriter {
	return &cappedWriter{maxBytes: maxBytes, tailBytes: tailBytes, tail: make([]byte, 0, tailBytes)}
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	w.total += len(p)
	if w.head.Len() < w.maxBytes {
		remaining := w.maxBytes - w.head.Len()
		if remaining > len(p) {
			remaining = len(p)
		}
		w.head.Write(p[:remaining])
	}
	w.appendTail(p)
	return len(p), nil
}

func (w *cappedWriter) appendTail(p []byte) {
	if len(p) >= w.tailBytes {
		w.tail = append(w.tail[:0], p[len(p)-w.tailBytes:]...)
		return
	}
	combined := append(w.tail, p...)
	if len(combined) > w.tailBytes {
		combined = combined[len(combined)-w.tailBytes:]
	}
	w.tail = combined
}

func (w *cappedWriter) truncated() bool {
	return w.total > w.maxBytes
}

func (w *cappedWriter) result() string {
	if !w.truncated() {
		return w.head.String()
	}
	return w.head.String() + "\n...[truncated, showing tail]...\n" + string(w.tail)
}
