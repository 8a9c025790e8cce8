// Package events implements the Event Processor (spec.md §4.10): the
// single `Process(run, type, payload)` entry point that routes an
// incoming event to the phase transition it implies, consulting the
// ticket database and proposal pipeline along the way.
package events

import (
	"fmt"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/config"
	"github.com/promptwheel-ai/promptwheel/internal/eventlog"
	"github.com/promptwheel-ai/promptwheel/internal/proposals"
	"github.com/promptwheel-ai/promptwheel/internal/scope"
	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/ticketworker"
	"github.com/promptwheel-ai/promptwheel/internal/tickets"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// maxScoutRetries bounds consecutive empty-yield scout/review cycles
// before the run gives up (spec.md §4.10).
const maxScoutRetries = 3

// Result is the outcome of processing one event.
type Result struct {
	Processed    bool
	PhaseChanged bool
	NewPhase     types.Phase
	Message      string
	Step         int
	CurrentPhase types.Phase
}

// Processor binds the state a running session needs to route events:
// the ticket database, the proposal pipeline, the event log, and the
// project root the scope policy resolves paths against.
type Processor struct {
	Tickets     *tickets.Store
	Pipeline    *proposals.Pipeline
	Log         *eventlog.Log
	Project     storage.ProjectStore
	Config      *config.Config
	ProjectRoot string
	NewID       func() string
	NowMillis   func() int64
}

func (p *Processor) now() time.Time {
	return time.UnixMilli(p.NowMillis()).UTC()
}

func (p *Processor) appendEvent(run *types.Run, eventType types.EventType, payload map[string]any) error {
	if p.Log == nil {
		return nil
	}
	return p.Log.Append(eventType, run.Phase, payload, p.NowMillis())
}

func (p *Processor) appendErrorLedger(ticketID, category, message string) error {
	if p.Project == nil {
		return nil
	}
	return p.Project.AppendNDJSON("error-ledger.ndjson", map[string]any{
		"ts":        p.NowMillis(),
		"ticket_id": ticketID,
		"category":  category,
		"message":   message,
	})
}

func (p *Processor) result(processed bool, run *types.Run, before types.Phase, message string) Result {
	return Result{
		Processed:    processed,
		PhaseChanged: run.Phase != before,
		NewPhase:     run.Phase,
		Message:      message,
		Step:         run.StepCount,
		CurrentPhase: run.Phase,
	}
}

// Process routes a single event and returns its effect. This is the
// package's only entry point, mirroring spec.md's processEvent(run, db,
// type, payload, project) signature.
func (p *Processor) Process(run *types.Run, eventType types.EventType, payload map[string]any) (Result, error) {
	before := run.Phase

	// PARALLEL_EXECUTE: events carrying ticket_id are forwarded to the
	// matching worker first; unmatched ticket_ids fall through below.
	if run.Phase == types.PhaseParallelExecute {
		if ticketID, _ := payload["ticket_id"].(string); ticketID != "" {
			if ws, ok := run.TicketWorkers[ticketID]; ok {
				if err := p.forwardToWorker(run, ws, ticketID, eventType, payload); err != nil {
					return Result{}, err
				}
				if err := p.appendEvent(run, eventType, payload); err != nil {
					return Result{}, err
				}
				return p.result(true, run, before, "forwarded to worker"), nil
			}
		}
	}

	if err := p.appendEvent(run, eventType, payload); err != nil {
		return Result{}, err
	}

	switch eventType {
	case types.EventScoutOutput:
		return p.handleScoutOutput(run, before, payload)
	case types.EventProposalsReviewed:
		return p.handleProposalsReviewed(run, before, payload)
	case types.EventPlanSubmitted:
		return p.handlePlanSubmitted(run, before, payload)
	case types.EventTicketResult:
		return p.handleTicketResult(run, before, payload)
	case types.EventQAPassed:
		return p.handleQAPassed(run, before)
	case types.EventQAFailed:
		return p.handleQAFailed(run, before, payload)
	case types.EventQACommandResult:
		return p.result(true, run, before, "qa command result recorded"), nil
	case types.EventPRCreated:
		return p.handlePRCreated(run, before, payload)
	case types.EventUserOverride:
		return p.handleUserOverride(run, before, payload)
	default:
		return p.result(true, run, before, "unknown event type recorded"), nil
	}
}

func (p *Processor) forwardToWorker(run *types.Run, ws *types.WorkerState, ticketID string, eventType types.EventType, payload map[string]any) error {
	ticket := p.Tickets.Get(ticketID)
	completed, blocked := ticketworker.Ingest(ws, ticket, eventType, payload, p.Config.CreatePRs)
	switch {
	case completed:
		delete(run.TicketWorkers, ticketID)
		run.TicketsCompleted++
		if ticket != nil {
			ticket.Status = types.TicketDone
			p.Tickets.Put(ticket)
		}
	case blocked:
		delete(run.TicketWorkers, ticketID)
		run.TicketsBlocked++
		if ticket != nil {
			ticket.Status = types.TicketBlocked
			p.Tickets.Put(ticket)
		}
	}
	return nil
}

func explorationSummary(proposals []types.Proposal) string {
	return fmt.Sprintf("scout yielded %d proposal(s)", len(proposals))
}

func (p *Processor) handleScoutOutput(run *types.Run, before types.Phase, payload map[string]any) (Result, error) {
	if before != types.PhaseScout {
		return p.result(true, run, before, "SCOUT_OUTPUT ignored outside SCOUT phase"), nil
	}

	// Fallback parse: a reviewed-proposals payload arriving as scout
	// output redirects to the PROPOSALS_REVIEWED handler.
	if _, ok := payload["reviewed_proposals"]; ok {
		return p.handleProposalsReviewed(run, before, payload)
	}

	candidates, _ := payload["proposals"].([]types.Proposal)
	run.ScoutExplorationLog = append(run.ScoutExplorationLog, explorationSummary(candidates))

	if len(candidates) == 0 {
		return p.retryOrDone(run, before), nil
	}

	if p.Config.SkipReview {
		return p.runPipelineAndTransition(run, before, candidates)
	}

	run.PendingProposals = append(run.PendingProposals, candidates...)
	return p.result(true, run, before, "proposals pending adversarial review"), nil
}

func (p *Processor) handleProposalsReviewed(run *types.Run, before types.Phase, payload map[string]any) (Result, error) {
	scores, _ := payload["scores"].(map[string]float64)
	merged := proposals.ApplyReviewScores(run.PendingProposals, scores)
	run.PendingProposals = nil
	return p.runPipelineAndTransition(run, before, merged)
}

func (p *Processor) runPipelineAndTransition(run *types.Run, before types.Phase, candidates []types.Proposal) (Result, error) {
	existing := p.Tickets.ForProject(run.ProjectID)
	pipelineResult := p.Pipeline.Run(candidates, existing, p.Config.Dedup.SimilarityThreshold)

	newTickets := proposals.Materialize(pipelineResult.Accepted, run.ProjectID, p.NowMillis, p.NewID)
	for _, t := range newTickets {
		p.Tickets.Put(t)
	}
	run.ScoutedThisCycle = true

	if len(pipelineResult.Accepted) == 0 {
		return p.retryOrDone(run, before), nil
	}

	run.ScoutRetries = 0
	run.Phase = types.PhaseNextTicket
	return p.result(true, run, before, fmt.Sprintf("materialized %d ticket(s)", len(newTickets))), nil
}

func (p *Processor) retryOrDone(run *types.Run, before types.Phase) Result {
	run.ScoutRetries++
	if run.ScoutRetries <= maxScoutRetries {
		run.Phase = types.PhaseScout
		return p.result(true, run, before, "no proposals yielded; retrying scout")
	}
	run.Phase = types.PhaseDone
	return p.result(true, run, before, "scout exhausted retries with no proposals")
}

// validatePlan checks a submitted plan's declared file touches and
// changed-line estimate against the ticket's scope policy.
func validatePlan(policy *scope.Policy, payload map[string]any) string {
	if files, ok := payload["files"].([]string); ok {
		for _, f := range files {
			if allowed, reason := policy.IsFileAllowed(f); !allowed {
				return fmt.Sprintf("file %q rejected by scope policy: %s", f, reason)
			}
		}
	}
	if lines, ok := payload["changed_lines"].(int); ok {
		if policy.ExceedsLineBudget(lines) {
			return fmt.Sprintf("plan's %d changed lines exceeds the ticket's line budget", lines)
		}
	}
	return ""
}

func (p *Processor) handlePlanSubmitted(run *types.Run, before types.Phase, payload map[string]any) (Result, error) {
	ticket := p.Tickets.Get(run.CurrentTicketID)
	if ticket == nil {
		return p.result(true, run, before, "PLAN_SUBMITTED with no current ticket"), nil
	}

	policy := scope.New(p.ProjectRoot, ticket, p.Config.Scope)
	if reason := validatePlan(policy, payload); reason != "" {
		run.PlanRejections++
		run.LastPlanRejectionReason = reason
		return p.result(true, run, before, reason), nil
	}

	if plan, ok := payload["plan"].(string); ok {
		_ = plan // the committed plan text is embedded by the EXECUTE prompt builder, not stored on Run directly
	}
	run.PlanApproved = true
	run.Phase = types.PhaseExecute
	return p.result(true, run, before, "plan approved"), nil
}

func (p *Processor) handleTicketResult(run *types.Run, before types.Phase, payload map[string]any) (Result, error) {
	status, _ := payload["status"].(string)
	ticket := p.Tickets.Get(run.CurrentTicketID)

	if status == "failed" {
		run.TicketsFailed++
		if ticket != nil {
			ticket.Status = types.TicketBlocked
			p.Tickets.Put(ticket)
		}
		run.Phase = types.PhaseNextTicket
		return p.result(true, run, before, "ticket failed"), nil
	}

	run.Phase = types.PhaseQA
	return p.result(true, run, before, "ticket result recorded, moving to QA"), nil
}

func (p *Processor) handleQAPassed(run *types.Run, before types.Phase) (Result, error) {
	ticket := p.Tickets.Get(run.CurrentTicketID)
	if !p.Config.CreatePRs {
		if ticket != nil {
			ticket.Status = types.TicketDone
			p.Tickets.Put(ticket)
		}
		run.TicketsCompleted++
		run.Phase = types.PhaseNextTicket
		return p.result(true, run, before, "QA passed, ticket done (no PRs)"), nil
	}
	run.Phase = types.PhasePR
	return p.result(true, run, before, "QA passed, moving to PR"), nil
}

func (p *Processor) handleQAFailed(run *types.Run, before types.Phase, payload map[string]any) (Result, error) {
	category, _ := payload["category"].(string)
	message, _ := payload["message"].(string)
	var failingCommands []string
	if raw, ok := payload["failing_commands"].([]string); ok {
		failingCommands = raw
	}
	run.LastQAFailure = &types.QAFailure{
		Category:        category,
		Message:         message,
		FailingCommands: failingCommands,
		OccurredAt:      p.now(),
	}

	if run.QARetries < ticketworker.QARetryLimit(category) {
		run.QARetries++
		run.Phase = types.PhaseExecute
		return p.result(true, run, before, "QA failed, retrying"), nil
	}

	ticket := p.Tickets.Get(run.CurrentTicketID)
	if ticket != nil {
		ticket.Status = types.TicketBlocked
		p.Tickets.Put(ticket)
	}
	run.TicketsBlocked++
	run.Phase = types.PhaseNextTicket
	if err := p.appendErrorLedger(run.CurrentTicketID, category, message); err != nil {
		return Result{}, err
	}
	return p.result(true, run, before, "QA failed past retry limit; ticket blocked"), nil
}

func (p *Processor) handlePRCreated(run *types.Run, before types.Phase, payload map[string]any) (Result, error) {
	run.PRsCreated++
	ticket := p.Tickets.Get(run.CurrentTicketID)
	if ticket != nil {
		ticket.Status = types.TicketDone
		p.Tickets.Put(ticket)
	}
	run.TicketsCompleted++
	run.Phase = types.PhaseNextTicket
	return p.result(true, run, before, fmt.Sprintf("PR created: %v", payload["pr_url"])), nil
}

func (p *Processor) handleUserOverride(run *types.Run, before types.Phase, payload map[string]any) (Result, error) {
	action, _ := payload["action"].(string)
	switch action {
	case "hint":
		if hint, ok := payload["hint"].(string); ok && hint != "" {
			run.Hints = append(run.Hints, hint)
		}
		return p.result(true, run, before, "hint added"), nil
	case "cancel":
		run.Phase = types.PhaseDone
		return p.result(true, run, before, "session cancelled by user"), nil
	case "skip_review":
		run.SkipReview = true
		p.Config.SkipReview = true
		if len(run.PendingProposals) > 0 {
			pending := run.PendingProposals
			run.PendingProposals = nil
			return p.runPipelineAndTransition(run, before, pending)
		}
		return p.result(true, run, before, "skip_review enabled"), nil
	default:
		return p.result(true, run, before, "unrecognized user override action"), nil
	}
}
