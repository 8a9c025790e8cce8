// Package ticketworker implements the per-ticket mini state machine
// (spec.md §4.11): PLAN→EXECUTE→QA→PR, driven by `Advance` (what prompt
// to emit next) and `Ingest` (how an incoming event transitions it). The
// parallel scheduler owns many of these side by side, one per in-flight
// ticket; a direct, non-parallel session drives a single one inline via
// `internal/phase`, which this package mirrors in miniature.
package ticketworker

import (
	"fmt"

	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// Builder composes prompt text/constraints for a worker's current
// phase. Kept separate from internal/phase.Builder since a worker has
// no run-wide concerns (sector scope, scouting) to embed.
type Builder interface {
	PlanPrompt(ticket *types.Ticket) (prompt string, constraints map[string]any)
	ExecutePrompt(ticket *types.Ticket, plan string) (prompt string, constraints map[string]any)
	QAPrompt(ticket *types.Ticket) (prompt string, constraints map[string]any)
	PRPrompt(ticket *types.Ticket) (prompt string, constraints map[string]any)
}

// Action mirrors phase.Action for a single worker.
type Action string

const (
	ActionPrompt    Action = "PROMPT"
	ActionCompleted Action = "COMPLETED"
	ActionBlocked   Action = "BLOCKED"
)

// Result is the outcome of one Advance call for a worker.
type Result struct {
	Action      Action
	Prompt      string
	Constraints map[string]any
	Reason      string
}

// MaxPlanRejections is the per-worker cap on plan rejections before the
// scheduler blocks the ticket (spec.md §4.9's PLAN block rule, mirrored
// per worker since WorkerState carries no rejection counter of its own).
const MaxPlanRejections = 3

// QARetryLimit returns the max retries allowed for a QA failure
// category (spec.md §4.10): environment 1, timeout 2, code 3. Shared by
// the run-level event processor and this package's per-worker Ingest.
func QARetryLimit(category string) int {
	switch category {
	case "environment":
		return 1
	case "timeout":
		return 2
	case "code":
		return 3
	default:
		return 0
	}
}

// Advance returns the next prompt for a worker's current phase, or a
// terminal Result if the worker is blocked.
func Advance(ws *types.WorkerState, ticket *types.Ticket, b Builder) Result {
	switch ws.Phase {
	case types.PhasePlan:
		if ws.PlanApproved {
			ws.Phase = types.PhaseExecute
			return Advance(ws, ticket, b)
		}
		prompt, constraints := b.PlanPrompt(ticket)
		if constraints == nil {
			constraints = map[string]any{}
		}
		constraints["plan_required"] = true
		return Result{Action: ActionPrompt, Prompt: prompt, Constraints: constraints}
	case types.PhaseExecute:
		prompt, constraints := b.ExecutePrompt(ticket, ws.Plan)
		return Result{Action: ActionPrompt, Prompt: prompt, Constraints: constraints}
	case types.PhaseQA:
		prompt, constraints := b.QAPrompt(ticket)
		return Result{Action: ActionPrompt, Prompt: prompt, Constraints: constraints}
	case types.PhasePR:
		prompt, constraints := b.PRPrompt(ticket)
		return Result{Action: ActionPrompt, Prompt: prompt, Constraints: constraints}
	default:
		return Result{Action: ActionBlocked, Reason: fmt.Sprintf("worker in unexpected phase %q", ws.Phase)}
	}
}

// Ingest applies one incoming event to a worker's state, reporting
// whether the ticket is now complete (PR created, or QA passed with
// create_prs disabled).
func Ingest(ws *types.WorkerState, ticket *types.Ticket, eventType types.EventType, payload map[string]any, createPRs bool) (completed bool, blocked bool) {
	switch eventType {
	case types.EventPlanSubmitted:
		if rejected, _ := payload["rejected"].(bool); rejected {
			ws.PlanApproved = false
			// The scheduler tracks rejection counts across Ingest calls
			// (WorkerState has no counter of its own) and blocks the
			// worker itself once the count reaches MaxPlanRejections.
			return false, false
		}
		ws.PlanApproved = true
		if plan, ok := payload["plan"].(string); ok {
			ws.Plan = plan
		}
		ws.Phase = types.PhaseExecute
		return false, false

	case types.EventTicketResult:
		status, _ := payload["status"].(string)
		if status == "failed" {
			return false, true
		}
		ws.Phase = types.PhaseQA
		return false, false

	case types.EventQAPassed:
		if !createPRs {
			return true, false
		}
		ws.Phase = types.PhasePR
		return false, false

	case types.EventQAFailed:
		category, _ := payload["category"].(string)
		message, _ := payload["message"].(string)
		var failingCommands []string
		if raw, ok := payload["failing_commands"].([]string); ok {
			failingCommands = raw
		}
		ws.LastQAFailure = &types.QAFailure{Category: category, Message: message, FailingCommands: failingCommands}

		if ws.QARetries < QARetryLimit(category) {
			ws.QARetries++
			ws.Phase = types.PhaseExecute
			return false, false
		}
		return false, true

	case types.EventPRCreated:
		if url, ok := payload["pr_url"].(string); ok {
			ws.PRURL = url
		}
		return true, false

	default:
		return false, false
	}
}
