// Package phase implements the session phase state machine, `advance()`
// (spec.md §4.9): a stateless dispatch over the current run record and
// ticket database that increments step counters, enforces budgets, fires
// budget-warning events, and composes the next prompt (or a STOP signal)
// for whichever phase the run is in.
package phase

import (
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/eventlog"
	"github.com/promptwheel-ai/promptwheel/internal/tickets"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// Action is what the caller should do with an advance() result.
type Action string

const (
	ActionPrompt Action = "PROMPT"
	ActionStop   Action = "STOP"
)

// WorkerPrompt is one PARALLEL_EXECUTE worker's prompt bundle.
type WorkerPrompt struct {
	TicketID    string
	Prompt      string
	Constraints map[string]any
}

// Digest summarizes run progress, echoed on every advance() result.
type Digest struct {
	Step             int
	Phase            types.Phase
	TicketsCompleted int
	TicketsFailed    int
	BudgetRemaining  int
}

// Result is the outcome of one advance() call.
type Result struct {
	Action         Action
	Phase          types.Phase
	Prompt         string
	Constraints    map[string]any
	WorkerPrompts  []WorkerPrompt
	Digest         Digest
	Reason         string
}

// Builder composes the human-facing prompt text and constraints for
// each phase. Production code backs this with the sector/learnings/dedup/
// trajectory packages; tests can use a minimal fake, keeping this
// package decoupled from prompt-content concerns (spec.md §4.9 names
// only what must be assembled, not how each ingredient is rendered).
type Builder interface {
	ScoutPrompt(run *types.Run) (prompt string, constraints map[string]any)
	PlanPrompt(run *types.Run, ticket *types.Ticket) (prompt string, constraints map[string]any)
	ExecutePrompt(run *types.Run, ticket *types.Ticket) (prompt string, constraints map[string]any)
	QAPrompt(run *types.Run, ticket *types.Ticket) (prompt string, constraints map[string]any)
	PRPrompt(run *types.Run, ticket *types.Ticket) (prompt string, constraints map[string]any)
	ParallelPrompt(run *types.Run, ticket *types.Ticket) (prompt string, constraints map[string]any)
}

// Engine binds a run's ticket database, event log, and prompt builder
// for repeated advance() calls.
type Engine struct {
	Tickets  *tickets.Store
	Log      *eventlog.Log
	Builder  Builder
	Parallel int
}

func New(store *tickets.Store, log *eventlog.Log, builder Builder, parallel int) *Engine {
	return &Engine{Tickets: store, Log: log, Builder: builder, Parallel: parallel}
}

func (e *Engine) digest(run *types.Run) Digest {
	remaining := 0
	if run.StepBudget > 0 {
		remaining = run.StepBudget - run.StepCount
		if remaining < 0 {
			remaining = 0
		}
	}
	return Digest{
		Step:             run.StepCount,
		Phase:            run.Phase,
		TicketsCompleted: run.TicketsCompleted,
		TicketsFailed:    run.TicketsFailed,
		BudgetRemaining:  remaining,
	}
}

func (e *Engine) stop(run *types.Run, phase types.Phase, reason string) Result {
	run.Phase = phase
	return Result{Action: ActionStop, Phase: phase, Reason: reason, Digest: e.digest(run)}
}

func (e *Engine) appendEvent(run *types.Run, eventType types.EventType, payload map[string]any, nowMillis int64) error {
	if e.Log == nil {
		return nil
	}
	return e.Log.Append(eventType, run.Phase, payload, nowMillis)
}

// Advance runs one step of the state machine.
func (e *Engine) Advance(run *types.Run, now time.Time) (Result, error) {
	nowMillis := now.UnixMilli()

	// 1. Increment step_count; check budget.
	run.StepCount++
	if e.Log != nil {
		e.Log.SetStep(run.StepCount)
	}
	if run.StepBudget > 0 && run.StepCount > run.StepBudget {
		return e.stop(run, types.PhaseFailedBudget, "step budget exhausted"), nil
	}

	// 2. Expiry check.
	if run.ExpiresAt != nil && now.After(*run.ExpiresAt) {
		return e.stop(run, types.PhaseFailedBudget, "time"), nil
	}

	// 3. Terminal phase short-circuit.
	if run.Phase.IsTerminal() {
		return e.stop(run, run.Phase, "terminal phase"), nil
	}

	// 4. Budget-warning thresholds, fired once each.
	if run.StepBudget > 0 {
		if run.BudgetWarningsFired == nil {
			run.BudgetWarningsFired = map[int]bool{}
		}
		pct := run.StepCount * 100 / run.StepBudget
		for _, threshold := range []int{50, 80, 95} {
			if pct >= threshold && !run.BudgetWarningsFired[threshold] {
				run.BudgetWarningsFired[threshold] = true
				if err := e.appendEvent(run, types.EventBudgetWarning, map[string]any{"threshold_pct": threshold, "step": run.StepCount}, nowMillis); err != nil {
					return Result{}, err
				}
			}
		}
	}

	// 5. Dispatch on phase.
	return e.dispatch(run, nowMillis)
}

func (e *Engine) dispatch(run *types.Run, nowMillis int64) (Result, error) {
	switch run.Phase {
	case types.PhaseScout:
		return e.dispatchScout(run)
	case types.PhaseNextTicket:
		return e.dispatchNextTicket(run)
	case types.PhasePlan:
		return e.dispatchPlan(run)
	case types.PhaseExecute:
		return e.dispatchExecute(run)
	case types.PhaseQA:
		return e.dispatchQA(run)
	case types.PhasePR:
		return e.dispatchPR(run)
	case types.PhaseParallelExecute:
		return e.dispatchParallelExecute(run)
	default:
		return e.stop(run, types.PhaseFailedValidation, "unknown phase"), nil
	}
}

func (e *Engine) dispatchScout(run *types.Run) (Result, error) {
	if len(e.Tickets.Ready(run.ProjectID)) > 0 {
		run.Phase = types.PhaseNextTicket
		return e.dispatchNextTicket(run)
	}

	prompt, constraints := e.Builder.ScoutPrompt(run)
	return Result{
		Action:      ActionPrompt,
		Phase:       run.Phase,
		Prompt:      prompt,
		Constraints: constraints,
		Digest:      e.digest(run),
	}, nil
}

func (e *Engine) dispatchNextTicket(run *types.Run) (Result, error) {
	if run.MaxPRs > 0 && run.PRsCreated >= run.MaxPRs {
		return e.stop(run, types.PhaseDone, "max_prs reached"), nil
	}

	ready := e.Tickets.Ready(run.ProjectID)
	if len(ready) == 0 {
		if run.ScoutedThisCycle {
			return e.stop(run, types.PhaseDone, "no ready tickets after scouting"), nil
		}
		run.Phase = types.PhaseScout
		return e.dispatchScout(run)
	}

	ticket := ready[0]
	run.CurrentTicketID = ticket.ID
	run.PlanApproved = false
	run.PlanRejections = 0
	run.LastPlanRejectionReason = ""
	ticket.Status = types.TicketInProgress
	e.Tickets.Put(ticket)

	run.Phase = types.PhasePlan
	return e.dispatchPlan(run)
}

func (e *Engine) currentTicket(run *types.Run) *types.Ticket {
	return e.Tickets.Get(run.CurrentTicketID)
}

func (e *Engine) dispatchPlan(run *types.Run) (Result, error) {
	if run.PlanRejections >= 3 {
		return e.stop(run, types.PhaseBlockedNeedsHuman, "plan rejected 3 times"), nil
	}

	ticket := e.currentTicket(run)
	prompt, constraints := e.Builder.PlanPrompt(run, ticket)
	if constraints == nil {
		constraints = map[string]any{}
	}
	constraints["plan_required"] = true

	return Result{
		Action:      ActionPrompt,
		Phase:       run.Phase,
		Prompt:      prompt,
		Constraints: constraints,
		Digest:      e.digest(run),
	}, nil
}

func (e *Engine) dispatchExecute(run *types.Run) (Result, error) {
	if run.TicketStepBudget > 0 && run.TicketStepCount >= run.TicketStepBudget {
		return e.stop(run, types.PhaseBlockedNeedsHuman, "ticket step budget exhausted"), nil
	}

	ticket := e.currentTicket(run)
	prompt, constraints := e.Builder.ExecutePrompt(run, ticket)
	return Result{
		Action:      ActionPrompt,
		Phase:       run.Phase,
		Prompt:      prompt,
		Constraints: constraints,
		Digest:      e.digest(run),
	}, nil
}

func (e *Engine) dispatchQA(run *types.Run) (Result, error) {
	ticket := e.currentTicket(run)
	prompt, constraints := e.Builder.QAPrompt(run, ticket)
	return Result{
		Action:      ActionPrompt,
		Phase:       run.Phase,
		Prompt:      prompt,
		Constraints: constraints,
		Digest:      e.digest(run),
	}, nil
}

func (e *Engine) dispatchPR(run *types.Run) (Result, error) {
	ticket := e.currentTicket(run)
	prompt, constraints := e.Builder.PRPrompt(run, ticket)
	return Result{
		Action:      ActionPrompt,
		Phase:       run.Phase,
		Prompt:      prompt,
		Constraints: constraints,
		Digest:      e.digest(run),
	}, nil
}

func (e *Engine) dispatchParallelExecute(run *types.Run) (Result, error) {
	if run.TicketWorkers == nil {
		run.TicketWorkers = map[string]*types.WorkerState{}
	}
	idleSlots := e.Parallel - len(run.TicketWorkers)

	ready := e.Tickets.Ready(run.ProjectID)
	var prompts []WorkerPrompt
	for _, ticket := range ready {
		if idleSlots <= 0 {
			break
		}
		if _, already := run.TicketWorkers[ticket.ID]; already {
			continue
		}
		run.TicketWorkers[ticket.ID] = &types.WorkerState{Phase: types.PhasePlan, TicketID: ticket.ID}
		ticket.Status = types.TicketInProgress
		e.Tickets.Put(ticket)

		prompt, constraints := e.Builder.ParallelPrompt(run, ticket)
		prompts = append(prompts, WorkerPrompt{TicketID: ticket.ID, Prompt: prompt, Constraints: constraints})
		idleSlots--
	}

	return Result{
		Action:        ActionPrompt,
		Phase:         run.Phase,
		WorkerPrompts: prompts,
		Digest:        e.digest(run),
	}, nil
}
