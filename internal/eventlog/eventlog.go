// Package eventlog wraps internal/storage with PromptWheel's typed event
// shape and artifact-kind naming, giving the rest of the engine a single
// place to append events and snapshot step artifacts (spec.md §4.1).
package eventlog

import (
	"encoding/json"
	"fmt"

	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// Log appends typed events and step artifacts to a run directory.
type Log struct {
	store storage.Storage
	step  int
}

// New wraps an already-initialized Storage in a Log. The caller owns
// Storage lifetime (Init/Close).
func New(store storage.Storage) *Log {
	return &Log{store: store}
}

// Append appends an event of the given type, stamping it with the current
// step and phase.
func (l *Log) Append(eventType types.EventType, phase types.Phase, payload map[string]any, tsMillis int64) error {
	evt := types.Event{
		TS:      tsMillis,
		Type:    eventType,
		Payload: payload,
		Step:    l.step,
		Phase:   phase,
	}
	return l.store.AppendEvent(evt)
}

// SetStep updates the step number stamped onto subsequent events; the
// phase state machine calls this once per advance() before appending.
func (l *Log) SetStep(step int) {
	l.step = step
}

// WriteArtifact snapshots a step output (scout proposals, plan text, QA
// output, spindle dump, ...) under artifacts/<step>-<kind>.json.
func (l *Log) WriteArtifact(kind string, v any) (string, error) {
	return l.store.WriteArtifact(storage.ArtifactRef{Step: l.step, Kind: kind}, v)
}

// ReadAll decodes every event in the log, in append order.
func (l *Log) ReadAll() ([]types.Event, error) {
	var events []types.Event
	err := l.store.ReadEvents(func(line []byte) error {
		var e types.Event
		if err := json.Unmarshal(line, &e); err != nil {
			// Unknown/malformed lines are tolerated on read (spec.md §6).
			return nil
		}
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("eventlog: read events: %w", err)
	}
	return events, nil
}

// MarkLoopState writes loop-state.json, the whole-file marker a host
// stop-hook consults to decide whether it may let the process exit. It is
// project-root level (spec.md §6), shared across every run.
func MarkLoopState(project storage.ProjectStore, phase types.Phase, runID string) error {
	return project.WriteLoopState(map[string]any{
		"phase":  phase,
		"run_id": runID,
	})
}

// ClearLoopState is called on terminal STOP so the stop-hook can release
// cleanly (spec.md §4.1).
func ClearLoopState(project storage.ProjectStore) error {
	return project.RemoveLoopState()
}
