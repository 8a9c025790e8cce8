// Package runstate implements the Run State Manager (spec.md §4.2): the
// single object every other component goes through to read or mutate a
// session's Run record. Every mutating method serializes the full Run to
// state.json before returning, so a crash between two calls never loses a
// transition (spec.md I4).
package runstate

import (
	"fmt"
	"sync"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/config"
	"github.com/promptwheel-ai/promptwheel/internal/eventlog"
	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// Manager owns the lifecycle of one Run and serializes every mutation to
// disk. It is safe for concurrent use by multiple ticket workers.
//
// It holds two storage roots: the per-run Storage (state.json,
// events.ndjson, artifacts/) and the project-root ProjectStore
// (loop-state.json and friends), per spec.md §6's layering.
type Manager struct {
	mu      sync.Mutex
	store   storage.Storage
	project storage.ProjectStore
	log     *eventlog.Log
	run     *types.Run
	now     func() int64 // epoch-ms clock, overridable in tests
}

// New wraps an initialized per-run Storage and project-root ProjectStore.
// Call Create or Load before using it.
func New(store storage.Storage, project storage.ProjectStore, now func() int64) *Manager {
	return &Manager{store: store, project: project, log: eventlog.New(store), now: now}
}

func epochMillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Create starts a brand-new Run, embedding an immutable config snapshot,
// and persists it immediately.
func (m *Manager) Create(runID, sessionID, projectID string, cfg *config.Config, startedAtMillis int64) (*types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run != nil {
		return nil, types.ErrSessionExists
	}

	run := &types.Run{
		RunID:               runID,
		SessionID:           sessionID,
		ProjectID:           projectID,
		Phase:               types.PhaseScout,
		StepBudget:          cfg.StepBudget,
		TicketStepBudget:    cfg.TicketStepBudget,
		MaxPRs:              cfg.MaxPRs,
		TicketWorkers:       map[string]*types.WorkerState{},
		BudgetWarningsFired: map[int]bool{},
		ConfigSnapshot:      configSnapshot(cfg),
	}
	run.StartedAt = epochMillisToTime(startedAtMillis)
	if cfg.ExpiresAfter > 0 {
		exp := run.StartedAt.Add(cfg.ExpiresAfter)
		run.ExpiresAt = &exp
	}

	m.run = run
	if err := m.persistLocked(); err != nil {
		return nil, err
	}
	return run, nil
}

// Load reads an existing Run from state.json into the manager.
func (m *Manager) Load() (*types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var run types.Run
	if err := m.store.ReadState(&run); err != nil {
		return nil, fmt.Errorf("runstate: load: %w", err)
	}
	if run.TicketWorkers == nil {
		run.TicketWorkers = map[string]*types.WorkerState{}
	}
	if run.BudgetWarningsFired == nil {
		run.BudgetWarningsFired = map[int]bool{}
	}
	m.run = &run
	return m.run, nil
}

// Require returns the active run or ErrNoActiveSession.
func (m *Manager) Require() (*types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		return nil, types.ErrNoActiveSession
	}
	return m.run, nil
}

// Mutate runs fn against the active run under the manager's lock and
// persists the result. fn returning an error aborts the persist.
func (m *Manager) Mutate(fn func(run *types.Run) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run == nil {
		return types.ErrNoActiveSession
	}
	if err := fn(m.run); err != nil {
		return err
	}
	return m.persistLocked()
}

// AddHint appends an operator hint surfaced to the next scout prompt.
func (m *Manager) AddHint(text string) error {
	return m.Mutate(func(run *types.Run) error {
		run.Hints = append(run.Hints, text)
		return nil
	})
}

// AppendEvent appends an event to the log without mutating run state. The
// caller sets the log's current step beforehand via m.Log().SetStep.
func (m *Manager) AppendEvent(eventType types.EventType, payload map[string]any) error {
	m.mu.Lock()
	phase := types.Phase("")
	if m.run != nil {
		phase = m.run.Phase
	}
	m.mu.Unlock()
	return m.log.Append(eventType, phase, payload, m.now())
}

// Log returns the underlying event log, for callers that need direct
// artifact/step access (e.g. the phase state machine stamping step numbers).
func (m *Manager) Log() *eventlog.Log {
	return m.log
}

// InitTicketWorker registers a new WorkerState for a ticket entering
// PARALLEL_EXECUTE.
func (m *Manager) InitTicketWorker(ticketID string, initial types.WorkerState) error {
	return m.Mutate(func(run *types.Run) error {
		if run.TicketWorkers == nil {
			run.TicketWorkers = map[string]*types.WorkerState{}
		}
		w := initial
		w.TicketID = ticketID
		run.TicketWorkers[ticketID] = &w
		return nil
	})
}

// GetTicketWorker returns the worker state for a ticket, or nil.
func (m *Manager) GetTicketWorker(ticketID string) (*types.WorkerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		return nil, types.ErrNoActiveSession
	}
	return m.run.TicketWorkers[ticketID], nil
}

// RemoveTicketWorker drops a completed/aborted worker from the registry.
func (m *Manager) RemoveTicketWorker(ticketID string) error {
	return m.Mutate(func(run *types.Run) error {
		delete(run.TicketWorkers, ticketID)
		return nil
	})
}

// End finalizes the run: clears the project-level loop-state marker so a
// host stop-hook can release, per spec.md §4.1.
func (m *Manager) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		return types.ErrNoActiveSession
	}
	return eventlog.ClearLoopState(m.project)
}

func (m *Manager) persistLocked() error {
	if err := m.store.WriteState(m.run); err != nil {
		return fmt.Errorf("runstate: persist: %w", err)
	}
	return eventlog.MarkLoopState(m.project, m.run.Phase, m.run.RunID)
}

func configSnapshot(cfg *config.Config) map[string]any {
	return map[string]any{
		"scope":             cfg.Scope,
		"categories":        cfg.Categories,
		"min_confidence":    cfg.MinConfidence,
		"min_impact_score":  cfg.MinImpactScore,
		"create_prs":        cfg.CreatePRs,
		"draft":             cfg.Draft,
		"direct":            cfg.Direct,
		"parallel":          cfg.Parallel,
		"cross_verify":      cfg.CrossVerify,
		"skip_review":       cfg.SkipReview,
		"dry_run":           cfg.DryRun,
		"learnings_enabled": cfg.LearningsEnabled,
		"qa_commands":       cfg.QACommands,
		"formula":           cfg.Formula,
	}
}
