package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/scope"
	"github.com/promptwheel-ai/promptwheel/internal/trajectory"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// prompts holds the shared composition logic behind both phase.Builder
// (run-wide phases) and ticketworker.Builder (a single parallel
// worker's phases). The two interfaces name the same concerns with
// different signatures (one carries the run, the other doesn't), so
// they're implemented by separate thin adapters — runBuilder and
// workerBuilder below — that both delegate here.
type prompts struct {
	app *app
}

func (p *prompts) ticketConstraints(t *types.Ticket) map[string]any {
	// Constructing the policy here (rather than only at Check-time in
	// internal/events) lets the prompt surface the same allow/deny
	// shape the event processor will enforce against this ticket.
	_ = scope.New(p.app.ProjectRoot, t, p.app.Config.Scope)
	return map[string]any{
		"allowed_paths":         t.AllowedPaths,
		"forbidden_paths":       t.ForbiddenPaths,
		"verification_commands": t.VerificationCommands,
		"max_lines_per_ticket":  p.app.Config.Scope.MaxLinesPerTicket,
	}
}

// activeTrajectory returns the one supported in-flight trajectory, if
// any has been activated via `trajectory activate`.
func (p *prompts) activeTrajectory() *types.Trajectory {
	names, err := trajectory.List(p.app.Project)
	if err != nil || len(names) == 0 {
		return nil
	}
	t, err := trajectory.LoadSaved(p.app.Project, names[0])
	if err != nil {
		return nil
	}
	return t
}

func trajectoryStateFile(name string) string {
	return "trajectory-state-" + name + ".json"
}

func (p *prompts) promptContext(t *types.Trajectory) *trajectory.PromptContext {
	var state types.TrajectoryState
	if err := p.app.Project.ReadJSON(trajectoryStateFile(t.Name), &state); err != nil {
		return nil
	}
	return trajectory.BuildPromptContext(t, &state)
}

// scout composes the SCOUT-phase prompt: sector rotation, the active
// trajectory step (if any), dedup memory, and relevant learnings.
func (p *prompts) scout() (string, map[string]any) {
	sector := p.app.Sectors.Next(time.Now())
	var sb strings.Builder
	sb.WriteString("Scout the repository for improvement opportunities.\n")
	if sector != nil {
		fmt.Fprintf(&sb, "Focus this cycle on sector %q (purpose: %s).\n", sector.Path, sector.Purpose)
	}
	if traj := p.activeTrajectory(); traj != nil {
		if ctx := p.promptContext(traj); ctx != nil {
			fmt.Fprintf(&sb, "\nActive trajectory step %q: %s\n%s\n", ctx.StepID, ctx.Title, ctx.Description)
			if len(ctx.AcceptanceCriteria) > 0 {
				sb.WriteString("Acceptance criteria:\n")
				for _, c := range ctx.AcceptanceCriteria {
					fmt.Fprintf(&sb, "- %s\n", c)
				}
			}
		}
	}
	if formatted := p.app.Dedup.Format(); formatted != "" {
		fmt.Fprintf(&sb, "\nRecent/duplicate work to avoid re-proposing:\n%s\n", formatted)
	}
	if _, formatted := p.app.Learnings.SelectRelevant(nil, nil, p.app.Config.Learnings); formatted != "" {
		fmt.Fprintf(&sb, "\nLearnings from prior sessions:\n%s\n", formatted)
	}
	constraints := map[string]any{"categories": p.app.Config.Categories}
	if sector != nil {
		constraints["sector"] = sector.Path
	}
	return sb.String(), constraints
}

func (p *prompts) plan(t *types.Ticket) (string, map[string]any) {
	_, formatted := p.app.Learnings.SelectRelevant(t.AllowedPaths, t.VerificationCommands, p.app.Config.Learnings)
	prompt := fmt.Sprintf("Write a plan for ticket %q: %s\n\n%s", t.ID, t.Title, t.Description)
	if formatted != "" {
		prompt += "\n\nRelevant learnings:\n" + formatted
	}
	return prompt, p.ticketConstraints(t)
}

func (p *prompts) execute(t *types.Ticket, plan string) (string, map[string]any) {
	prompt := fmt.Sprintf("Execute the approved plan for ticket %q.\n\nPlan:\n%s", t.ID, plan)
	return prompt, p.ticketConstraints(t)
}

func (p *prompts) qa(t *types.Ticket) (string, map[string]any) {
	prompt := fmt.Sprintf("Run verification for ticket %q.\nCommands: %s", t.ID, strings.Join(t.VerificationCommands, "; "))
	return prompt, p.ticketConstraints(t)
}

func (p *prompts) pr(t *types.Ticket) (string, map[string]any) {
	prompt := fmt.Sprintf("Open a pull request for ticket %q: %s", t.ID, t.Title)
	return prompt, p.ticketConstraints(t)
}

// runBuilder implements phase.Builder for the single-ticket (direct,
// non-parallel) session path, where every phase carries the run.
type runBuilder struct{ prompts }

func (b *runBuilder) ScoutPrompt(run *types.Run) (string, map[string]any) {
	return b.scout()
}

func (b *runBuilder) PlanPrompt(run *types.Run, t *types.Ticket) (string, map[string]any) {
	return b.plan(t)
}

func (b *runBuilder) ExecutePrompt(run *types.Run, t *types.Ticket) (string, map[string]any) {
	plan := ""
	if ws, err := b.app.Manager.GetTicketWorker(t.ID); err == nil && ws != nil {
		plan = ws.Plan
	}
	return b.execute(t, plan)
}

func (b *runBuilder) QAPrompt(run *types.Run, t *types.Ticket) (string, map[string]any) {
	return b.qa(t)
}

func (b *runBuilder) PRPrompt(run *types.Run, t *types.Ticket) (string, map[string]any) {
	return b.pr(t)
}

func (b *runBuilder) ParallelPrompt(run *types.Run, t *types.Ticket) (string, map[string]any) {
	return b.plan(t)
}

// workerBuilder implements ticketworker.Builder for one in-flight
// parallel ticket, where every phase is keyed only on the ticket.
type workerBuilder struct{ prompts }

func (b *workerBuilder) PlanPrompt(t *types.Ticket) (string, map[string]any) {
	return b.plan(t)
}

func (b *workerBuilder) ExecutePrompt(t *types.Ticket, plan string) (string, map[string]any) {
	return b.execute(t, plan)
}

func (b *workerBuilder) QAPrompt(t *types.Ticket) (string, map[string]any) {
	return b.qa(t)
}

func (b *workerBuilder) PRPrompt(t *types.Ticket) (string, map[string]any) {
	return b.pr(t)
}
