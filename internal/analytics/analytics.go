// Package analytics aggregates metrics over events, run history, and
// error patterns (spec.md §2's "Analytics & Reporting" bullet): one
// history entry per finished run, replayed into per-window summaries and
// a "top error patterns" view over the error ledger.
package analytics

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

func decodeJSON(line []byte, dst any) error {
	return json.Unmarshal(line, dst)
}

const historyFile = "history.ndjson"
const errorLedgerFile = "error-ledger.ndjson"

// HistoryEntry records one finished run's outcome, appended once per run
// by the session finalizer.
type HistoryEntry struct {
	Timestamp        string  `json:"timestamp"`
	RunID            string  `json:"run_id"`
	ProjectID        string  `json:"project_id"`
	TerminalPhase    string  `json:"terminal_phase"`
	TicketsCompleted int     `json:"tickets_completed"`
	TicketsBlocked   int     `json:"tickets_blocked"`
	TicketsFailed    int     `json:"tickets_failed"`
	PRsCreated       int     `json:"prs_created"`
	StepCount        int     `json:"step_count"`
	DurationSeconds  float64 `json:"duration_s"`
	GitSHA           string  `json:"git_sha,omitempty"`
}

// EntryFromRun builds a HistoryEntry from a finished run's final state.
func EntryFromRun(run *types.Run, now time.Time, gitSHA string) HistoryEntry {
	return HistoryEntry{
		Timestamp:        now.UTC().Format(time.RFC3339),
		RunID:            run.RunID,
		ProjectID:        run.ProjectID,
		TerminalPhase:    string(run.Phase),
		TicketsCompleted: run.TicketsCompleted,
		TicketsBlocked:   run.TicketsBlocked,
		TicketsFailed:    run.TicketsFailed,
		PRsCreated:       run.PRsCreated,
		StepCount:        run.StepCount,
		DurationSeconds:  now.Sub(run.StartedAt).Seconds(),
		GitSHA:           gitSHA,
	}
}

// AppendHistory appends one run's outcome to history.ndjson.
func AppendHistory(ps storage.ProjectStore, entry HistoryEntry) error {
	return ps.AppendNDJSON(historyFile, entry)
}

// LoadHistory reads every history entry, in append order. A missing file
// yields an empty slice, not an error.
func LoadHistory(ps storage.ProjectStore) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := ps.ReadNDJSON(historyFile, func(line []byte) error {
		var e HistoryEntry
		if jsonErr := decodeJSON(line, &e); jsonErr != nil {
			return nil // malformed lines are skipped
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// QuerySince filters entries to those timestamped at or after since.
func QuerySince(entries []HistoryEntry, since time.Time) []HistoryEntry {
	var result []HistoryEntry
	for _, e := range entries {
		t, err := time.Parse(time.RFC3339, e.Timestamp)
		if err != nil {
			continue
		}
		if !t.Before(since) {
			result = append(result, e)
		}
	}
	return result
}

// ErrorLedgerEntry mirrors the map events.Processor.appendErrorLedger
// writes to error-ledger.ndjson.
type ErrorLedgerEntry struct {
	Timestamp int64  `json:"ts"`
	TicketID  string `json:"ticket_id"`
	Category  string `json:"category"`
	Message   string `json:"message"`
}

// LoadErrorLedger reads every recorded QA/plan failure, in append order.
func LoadErrorLedger(ps storage.ProjectStore) ([]ErrorLedgerEntry, error) {
	var entries []ErrorLedgerEntry
	err := ps.ReadNDJSON(errorLedgerFile, func(line []byte) error {
		var e ErrorLedgerEntry
		if jsonErr := decodeJSON(line, &e); jsonErr != nil {
			return nil
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ErrorPattern is one (category, normalized message) bucket's frequency.
type ErrorPattern struct {
	Category string `json:"category"`
	Pattern  string `json:"pattern"`
	Count    int    `json:"count"`
}

// maxPatternChars is how much of an error message is kept when bucketing;
// QA output varies line-by-line (timestamps, paths), so only the leading
// slice is used as the dedup key.
const maxPatternChars = 120

// TopErrorPatterns buckets error-ledger entries by category plus a
// truncated message prefix and returns the most frequent buckets,
// highest count first.
func TopErrorPatterns(entries []ErrorLedgerEntry, limit int) []ErrorPattern {
	type key struct{ category, pattern string }
	counts := make(map[key]int)
	for _, e := range entries {
		pattern := strings.TrimSpace(e.Message)
		if len(pattern) > maxPatternChars {
			pattern = pattern[:maxPatternChars]
		}
		counts[key{e.Category, pattern}]++
	}

	patterns := make([]ErrorPattern, 0, len(counts))
	for k, count := range counts {
		patterns = append(patterns, ErrorPattern{Category: k.category, Pattern: k.pattern, Count: count})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Pattern < patterns[j].Pattern
	})
	if limit > 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns
}

// Summary aggregates a window of history entries into run-level totals.
type Summary struct {
	Runs             int     `json:"runs"`
	TicketsCompleted int     `json:"tickets_completed"`
	TicketsBlocked   int     `json:"tickets_blocked"`
	TicketsFailed    int     `json:"tickets_failed"`
	PRsCreated       int     `json:"prs_created"`
	AvgDurationSec   float64 `json:"avg_duration_s"`
}

// Summarize reduces a slice of history entries to a Summary.
func Summarize(entries []HistoryEntry) Summary {
	var s Summary
	var totalDuration float64
	for _, e := range entries {
		s.Runs++
		s.TicketsCompleted += e.TicketsCompleted
		s.TicketsBlocked += e.TicketsBlocked
		s.TicketsFailed += e.TicketsFailed
		s.PRsCreated += e.PRsCreated
		totalDuration += e.DurationSeconds
	}
	if s.Runs > 0 {
		s.AvgDurationSec = totalDuration / float64(s.Runs)
	}
	return s
}

// Report is the full payload behind the `analytics` CLI command and its
// markdown/HTML renderings.
type Report struct {
	GeneratedAt string         `json:"generated_at"`
	Window      Summary        `json:"window"`
	RecentRuns  []HistoryEntry `json:"recent_runs"`
	TopErrors   []ErrorPattern `json:"top_errors"`
}

// Build assembles a Report from a project's persisted history and error
// ledger, windowed to entries at or after since.
func Build(ps storage.ProjectStore, since time.Time, now time.Time, recentLimit, errorLimit int) (Report, error) {
	history, err := LoadHistory(ps)
	if err != nil {
		return Report{}, err
	}
	windowed := QuerySince(history, since)

	ledger, err := LoadErrorLedger(ps)
	if err != nil {
		return Report{}, err
	}

	recent := windowed
	if recentLimit > 0 && len(recent) > recentLimit {
		recent = recent[len(recent)-recentLimit:]
	}

	return Report{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Window:      Summarize(windowed),
		RecentRuns:  recent,
		TopErrors:   TopErrorPatterns(ledger, errorLimit),
	}, nil
}
