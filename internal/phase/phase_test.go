package phase

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/eventlog"
	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/tickets"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

type fakeBuilder struct{}

func (fakeBuilder) ScoutPrompt(run *types.Run) (string, map[string]any) {
	return "scout prompt", map[string]any{}
}
func (fakeBuilder) PlanPrompt(run *types.Run, ticket *types.Ticket) (string, map[string]any) {
	return "plan prompt for " + ticket.ID, map[string]any{}
}
func (fakeBuilder) ExecutePrompt(run *types.Run, ticket *types.Ticket) (string, map[string]any) {
	return "execute prompt for " + ticket.ID, map[string]any{}
}
func (fakeBuilder) QAPrompt(run *types.Run, ticket *types.Ticket) (string, map[string]any) {
	return "qa prompt for " + ticket.ID, map[string]any{}
}
func (fakeBuilder) PRPrompt(run *types.Run, ticket *types.Ticket) (string, map[string]any) {
	return "pr prompt for " + ticket.ID, map[string]any{}
}
func (fakeBuilder) ParallelPrompt(run *types.Run, ticket *types.Ticket) (string, map[string]any) {
	return "parallel prompt for " + ticket.ID, map[string]any{}
}

func newTestEngine(t *testing.T, parallel int) (*Engine, *tickets.Store) {
	t.Helper()
	project := storage.NewFileProjectStorage(filepath.Join(t.TempDir(), ".promptwheel"))
	if err := project.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	store, err := tickets.Load(project)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	runStorage := storage.NewFileStorage(filepath.Join(t.TempDir(), "run-1"))
	if err := runStorage.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	log := eventlog.New(runStorage)
	return New(store, log, fakeBuilder{}, parallel), store
}

func baseRun() *types.Run {
	return &types.Run{ProjectID: "p1", Phase: types.PhaseScout, StepBudget: 100, MaxPRs: 10}
}

func TestAdvanceStopsOnBudgetExhaustion(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	run := baseRun()
	run.StepBudget = 1
	run.StepCount = 1

	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result.Action != ActionStop || result.Phase != types.PhaseFailedBudget {
		t.Fatalf("got %+v, want STOP/FAILED_BUDGET", result)
	}
}

func TestAdvanceStopsOnExpiry(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	run := baseRun()
	past := time.Now().Add(-time.Hour)
	run.ExpiresAt = &past

	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result.Action != ActionStop || result.Phase != types.PhaseFailedBudget || result.Reason != "time" {
		t.Fatalf("got %+v, want STOP/FAILED_BUDGET/time", result)
	}
}

func TestAdvanceShortCircuitsOnTerminalPhase(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	run := baseRun()
	run.Phase = types.PhaseDone

	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result.Action != ActionStop || result.Phase != types.PhaseDone {
		t.Fatalf("got %+v, want STOP/DONE", result)
	}
}

func TestAdvanceFiresBudgetWarningOnce(t *testing.T) {
	e, store := newTestEngine(t, 2)
	_ = store
	run := baseRun()
	run.StepBudget = 10
	run.StepCount = 4 // next increment -> 5 -> 50%

	if _, err := e.Advance(run, time.Now()); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	events, err := e.Log.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	warnings := 0
	for _, ev := range events {
		if ev.Type == types.EventBudgetWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("got %d budget warnings, want 1", warnings)
	}

	// Advancing again at the same percentage must not refire.
	run.StepCount = 4
	if _, err := e.Advance(run, time.Now()); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	events, _ = e.Log.ReadAll()
	warnings = 0
	for _, ev := range events {
		if ev.Type == types.EventBudgetWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("got %d budget warnings after repeat, want still 1", warnings)
	}
}

func TestScoutSkipsToNextTicketWhenReadyTicketsExist(t *testing.T) {
	e, store := newTestEngine(t, 2)
	store.Put(&types.Ticket{ID: "t1", ProjectID: "p1", Status: types.TicketReady, Priority: 5})

	run := baseRun()
	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result.Phase != types.PhasePlan {
		t.Fatalf("got phase %v, want PLAN (scout should skip straight through)", result.Phase)
	}
	if run.CurrentTicketID != "t1" {
		t.Errorf("got current ticket %q, want t1", run.CurrentTicketID)
	}
}

func TestScoutEmitsPromptWhenNoReadyTickets(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	run := baseRun()

	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result.Action != ActionPrompt || result.Phase != types.PhaseScout || result.Prompt != "scout prompt" {
		t.Fatalf("got %+v", result)
	}
}

func TestNextTicketDoneWhenMaxPRsReached(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	run := baseRun()
	run.Phase = types.PhaseNextTicket
	run.MaxPRs = 1
	run.PRsCreated = 1

	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result.Action != ActionStop || result.Phase != types.PhaseDone {
		t.Fatalf("got %+v, want STOP/DONE", result)
	}
}

func TestNextTicketDoneWhenNoneReadyAndAlreadyScouted(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	run := baseRun()
	run.Phase = types.PhaseNextTicket
	run.ScoutedThisCycle = true

	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result.Action != ActionStop || result.Phase != types.PhaseDone {
		t.Fatalf("got %+v, want STOP/DONE", result)
	}
}

func TestNextTicketGoesToScoutWhenNoneReadyAndNotScouted(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	run := baseRun()
	run.Phase = types.PhaseNextTicket
	run.ScoutedThisCycle = false

	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result.Action != ActionPrompt || result.Phase != types.PhaseScout {
		t.Fatalf("got %+v, want PROMPT/SCOUT", result)
	}
}

func TestNextTicketPicksHighestPriorityAndResetsPlanState(t *testing.T) {
	e, store := newTestEngine(t, 2)
	store.Put(&types.Ticket{ID: "low", ProjectID: "p1", Status: types.TicketReady, Priority: 1})
	store.Put(&types.Ticket{ID: "high", ProjectID: "p1", Status: types.TicketReady, Priority: 9})

	run := baseRun()
	run.Phase = types.PhaseNextTicket
	run.PlanRejections = 2
	run.PlanApproved = true

	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if run.CurrentTicketID != "high" {
		t.Fatalf("got current ticket %q, want high", run.CurrentTicketID)
	}
	if run.PlanApproved || run.PlanRejections != 0 {
		t.Errorf("expected plan state reset, got approved=%v rejections=%d", run.PlanApproved, run.PlanRejections)
	}
	if result.Phase != types.PhasePlan {
		t.Errorf("got phase %v, want PLAN", result.Phase)
	}
	if store.Get("high").Status != types.TicketInProgress {
		t.Errorf("expected ticket to be marked in_progress, got %v", store.Get("high").Status)
	}
}

func TestPlanBlocksAfterThreeRejections(t *testing.T) {
	e, store := newTestEngine(t, 2)
	store.Put(&types.Ticket{ID: "t1", ProjectID: "p1", Status: types.TicketInProgress})

	run := baseRun()
	run.Phase = types.PhasePlan
	run.CurrentTicketID = "t1"
	run.PlanRejections = 3

	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result.Action != ActionStop || result.Phase != types.PhaseBlockedNeedsHuman {
		t.Fatalf("got %+v, want STOP/BLOCKED_NEEDS_HUMAN", result)
	}
}

func TestPlanEmitsPlanRequiredConstraint(t *testing.T) {
	e, store := newTestEngine(t, 2)
	store.Put(&types.Ticket{ID: "t1", ProjectID: "p1", Status: types.TicketInProgress})

	run := baseRun()
	run.Phase = types.PhasePlan
	run.CurrentTicketID = "t1"

	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result.Constraints["plan_required"] != true {
		t.Errorf("got constraints %+v, want plan_required=true", result.Constraints)
	}
}

func TestExecuteBlocksWhenTicketStepBudgetExhausted(t *testing.T) {
	e, store := newTestEngine(t, 2)
	store.Put(&types.Ticket{ID: "t1", ProjectID: "p1", Status: types.TicketInProgress})

	run := baseRun()
	run.Phase = types.PhaseExecute
	run.CurrentTicketID = "t1"
	run.TicketStepBudget = 5
	run.TicketStepCount = 5

	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result.Action != ActionStop || result.Phase != types.PhaseBlockedNeedsHuman {
		t.Fatalf("got %+v, want STOP/BLOCKED_NEEDS_HUMAN", result)
	}
}

func TestParallelExecuteDispatchesUpToParallelLimit(t *testing.T) {
	e, store := newTestEngine(t, 2)
	store.Put(&types.Ticket{ID: "t1", ProjectID: "p1", Status: types.TicketReady, Priority: 5})
	store.Put(&types.Ticket{ID: "t2", ProjectID: "p1", Status: types.TicketReady, Priority: 4})
	store.Put(&types.Ticket{ID: "t3", ProjectID: "p1", Status: types.TicketReady, Priority: 3})

	run := baseRun()
	run.Phase = types.PhaseParallelExecute

	result, err := e.Advance(run, time.Now())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(result.WorkerPrompts) != 2 {
		t.Fatalf("got %d worker prompts, want 2 (parallel limit)", len(result.WorkerPrompts))
	}
	if len(run.TicketWorkers) != 2 {
		t.Errorf("got %d ticket workers, want 2", len(run.TicketWorkers))
	}
}

func TestTieBreakOlderCreatedAtThenLexicalID(t *testing.T) {
	e, store := newTestEngine(t, 2)
	now := time.Now()
	store.Put(&types.Ticket{ID: "zeta", ProjectID: "p1", Status: types.TicketReady, Priority: 5, CreatedAt: now})
	store.Put(&types.Ticket{ID: "alpha", ProjectID: "p1", Status: types.TicketReady, Priority: 5, CreatedAt: now})

	run := baseRun()
	run.Phase = types.PhaseNextTicket

	if _, err := e.Advance(run, time.Now()); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if run.CurrentTicketID != "alpha" {
		t.Errorf("got %q, want alpha (lexical tie-break)", run.CurrentTicketID)
	}
}
