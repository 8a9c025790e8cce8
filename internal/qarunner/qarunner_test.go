package qarunner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunPassingCommandRecordsSuccess(t *testing.T) {
	r := New(t.TempDir(), 5*time.Second, nil)
	stats := NewStats()

	report := r.Run(context.Background(), []string{"echo ok"}, stats)
	if report.Failed {
		t.Fatalf("got Failed=true, want false: %+v", report)
	}
	if len(report.Results) != 1 || !report.Results[0].Passed {
		t.Fatalf("got %+v", report.Results)
	}
	stat := stats.Commands["echo ok"]
	if stat == nil || stat.Successes != 1 || stat.Failures != 0 {
		t.Fatalf("got stat %+v", stat)
	}
}

func TestRunFailingCommandClassifiesCode(t *testing.T) {
	r := New(t.TempDir(), 5*time.Second, nil)
	stats := NewStats()

	report := r.Run(context.Background(), []string{"exit 1"}, stats)
	if !report.Failed {
		t.Fatal("expected Failed=true")
	}
	if report.LastFailure.Category != "code" {
		t.Errorf("got category %q, want code", report.LastFailure.Category)
	}
	if len(report.LastFailure.FailingCommands) != 1 || report.LastFailure.FailingCommands[0] != "exit 1" {
		t.Errorf("got FailingCommands %v", report.LastFailure.FailingCommands)
	}
}

func TestRunTimeoutClassifiesTimeout(t *testing.T) {
	r := New(t.TempDir(), 50*time.Millisecond, nil)
	stats := NewStats()

	report := r.Run(context.Background(), []string{"sleep 2"}, stats)
	if !report.Failed {
		t.Fatal("expected Failed=true")
	}
	if report.LastFailure.Category != "timeout" {
		t.Errorf("got category %q, want timeout", report.LastFailure.Category)
	}
	stat := stats.Commands["sleep 2"]
	if stat.Timeouts != 1 {
		t.Errorf("got Timeouts=%d, want 1", stat.Timeouts)
	}
}

func TestRunSkipsPreExistingBaselineFailure(t *testing.T) {
	r := New(t.TempDir(), 5*time.Second, map[string]bool{"exit 1": true})
	stats := NewStats()

	report := r.Run(context.Background(), []string{"exit 1"}, stats)
	if report.Failed {
		t.Fatal("expected Failed=false when the only failing command is baseline-skipped")
	}
	if !report.Results[0].SkippedPreExisting {
		t.Error("expected SkippedPreExisting=true")
	}
	if _, recorded := stats.Commands["exit 1"]; recorded {
		t.Error("baseline-skipped commands should not record stats")
	}
}

func TestRunTracksConsecutiveFailuresAndResetsOnSuccess(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 5*time.Second, nil)
	stats := NewStats()
	command := "test -f ready"

	r.Run(context.Background(), []string{command}, stats)
	r.Run(context.Background(), []string{command}, stats)
	if got := stats.Commands[command].ConsecutiveFailures; got != 2 {
		t.Fatalf("got ConsecutiveFailures=%d, want 2", got)
	}

	// A later passing run of the same command resets the streak.
	if err := os.WriteFile(filepath.Join(dir, "ready"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	r.Run(context.Background(), []string{command}, stats)
	if got := stats.Commands[command].ConsecutiveFailures; got != 0 {
		t.Errorf("got ConsecutiveFailures=%d, want 0 after a pass", got)
	}
}

func TestCappedWriterKeepsTailWhenTruncated(t *testing.T) {
	w := newCappedWriter(10, 4)
	w.Write([]byte("0123456789ABCDEF"))
	if !w.truncated() {
		t.Fatal("expected truncated=true")
	}
	result := w.result()
	if result[len(result)-4:] != "CDEF" {
		t.Errorf("got tail %q, want CDEF", result[len(result)-4:])
	}
}

func TestCappedWriterUntruncatedReturnsExactContent(t *testing.T) {
	w := newCappedWriter(100, 10)
	w.Write([]byte("hello"))
	if w.truncated() {
		t.Fatal("expected truncated=false")
	}
	if w.result() != "hello" {
		t.Errorf("got %q", w.result())
	}
}
