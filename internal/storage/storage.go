// Package storage persists a PromptWheel project directory: per-run
// session state, the append-only event log, per-step artifacts, and the
// project-root files shared across runs (sector map, dedup memory,
// learnings, QA stats, loop-state marker, daemon state). Every mutating
// write is tmp+rename atomic or append-only, so a crash mid-write never
// corrupts a previously committed file.
package storage

import (
	"time"
)

// ArtifactRef identifies one artifact file within a run directory.
type ArtifactRef struct {
	Step int    `json:"step"`
	Kind string `json:"kind"`
}

// ArtifactMeta is returned alongside ReadArtifacts listings.
type ArtifactMeta struct {
	ArtifactRef
	Path      string    `json:"path"`
	WrittenAt time.Time `json:"written_at"`
}

// Storage is the per-run persistence surface: one run directory's mutable
// state, event log, and artifacts. Implementations must be safe for
// concurrent use by the ticket workers of a single run.
type Storage interface {
	// Init creates the run directory structure (state, events, artifacts).
	Init() error

	// WriteState atomically overwrites state.json with the given value.
	WriteState(state any) error

	// ReadState decodes state.json into dst. Returns os.ErrNotExist if no
	// state has been written yet.
	ReadState(dst any) error

	// AppendEvent appends one JSON line to events.ndjson.
	AppendEvent(event any) error

	// ReadEvents reads every line of events.ndjson, in append order,
	// calling fn with each non-empty line as raw bytes; fn decides what
	// to do with a line it cannot decode. A missing file reads as empty.
	ReadEvents(fn func(line []byte) error) error

	// WriteArtifact atomically writes an artifact for (step, kind) and
	// returns its path.
	WriteArtifact(ref ArtifactRef, v any) (string, error)

	// ReadArtifact decodes an existing artifact into dst.
	ReadArtifact(ref ArtifactRef, dst any) error

	// ListArtifacts returns metadata for every artifact on disk, sorted by
	// step then kind.
	ListArtifacts() ([]ArtifactMeta, error)

	// Close releases any resources held by the implementation.
	Close() error
}

// ProjectStore is the project-root persistence surface: the files shared
// across every run under a project's base directory (loop-state.json,
// sectors.json, dedup.json, learnings.json, qa-stats.json, qa-baseline.json,
// history.ndjson, error-ledger.ndjson, daemon-state.json,
// daemon-wake-metrics.json, trajectories/*.yaml).
type ProjectStore interface {
	// Init creates the project base directory structure.
	Init() error

	// WriteLoopState atomically overwrites loop-state.json, the marker a
	// host stop-hook and the daemon consult between cycles.
	WriteLoopState(v any) error

	// ReadLoopState decodes loop-state.json into dst.
	ReadLoopState(dst any) error

	// RemoveLoopState deletes loop-state.json, letting a host stop-hook
	// release cleanly once a run reaches a terminal phase. A missing file
	// is not an error.
	RemoveLoopState() error

	// WriteJSON atomically overwrites a named project-root JSON file
	// (e.g. "sectors.json", "dedup.json", "learnings.json", "qa-stats.json",
	// "qa-baseline.json", "daemon-state.json").
	WriteJSON(name string, v any) error

	// ReadJSON decodes a named project-root JSON file into dst. Returns
	// os.ErrNotExist if the file has never been written.
	ReadJSON(name string, dst any) error

	// AppendNDJSON appends one JSON line to a named append-only log
	// (e.g. "history.ndjson", "error-ledger.ndjson").
	AppendNDJSON(name string, v any) error

	// ReadNDJSON reads every line of a named append-only log, in append
	// order, calling fn with each non-empty line as raw bytes; fn decides
	// what to do with a line it cannot decode. A missing file reads as
	// empty.
	ReadNDJSON(name string, fn func(line []byte) error) error

	// WriteWakeMetrics atomically overwrites daemon-wake-metrics.json.
	WriteWakeMetrics(v any) error

	// ReadAndClearWakeMetrics decodes daemon-wake-metrics.json into dst and
	// then deletes it; the file is one-shot, consumed by the next wake.
	// Returns os.ErrNotExist if no metrics are pending.
	ReadAndClearWakeMetrics(dst any) error

	// ListTrajectories returns the base names (without extension) of every
	// trajectory plan under trajectories/.
	ListTrajectories() ([]string, error)

	// WriteTrajectory atomically overwrites trajectories/<name>.yaml with
	// YAML-encoded content.
	WriteTrajectory(name string, v any) error

	// ReadTrajectory decodes trajectories/<name>.yaml into dst.
	ReadTrajectory(name string, dst any) error

	// Close releases any resources held by the implementation.
	Close() error
}
