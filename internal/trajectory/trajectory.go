// Package trajectory implements the Trajectory Engine (spec.md §4.16):
// a YAML-defined ordered step plan with per-step dependencies that, when
// active, constrains scouting to one step at a time.
package trajectory

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// DefaultMaxRetries is how many active cycles a step may be attempted
// before it is flagged as stuck (spec.md §4.16).
const DefaultMaxRetries = 3

// idRe matches kebab-case step/trajectory identifiers.
var idRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidationError describes a structural problem with a trajectory file.
type ValidationError struct {
	StepID  string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("trajectory field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("step %q field %q: %s", e.StepID, e.Field, e.Message)
}

// Load reads and parses a trajectory YAML file from disk.
func Load(path string) (*types.Trajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trajectory: read %s: %w", path, err)
	}
	var t types.Trajectory
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("trajectory: parse %s: %w", path, err)
	}
	return &t, nil
}

// Validate checks a trajectory for structural correctness: unique
// kebab-case step IDs, required fields, and acyclic depends_on edges.
func Validate(t *types.Trajectory) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	ids := make(map[string]bool, len(t.Steps))
	for _, s := range t.Steps {
		ids[s.ID] = true
	}

	for _, s := range t.Steps {
		errs = append(errs, validateStepID(s, seen)...)
		if s.Title == "" {
			errs = append(errs, ValidationError{StepID: s.ID, Field: "title", Message: "required"})
		}
		if s.Description == "" {
			errs = append(errs, ValidationError{StepID: s.ID, Field: "description", Message: "required"})
		}
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				errs = append(errs, ValidationError{StepID: s.ID, Field: "depends_on", Message: fmt.Sprintf("unknown step %q", dep)})
			}
		}
	}

	if cycle := findCycle(t.Steps); cycle != "" {
		errs = append(errs, ValidationError{Field: "depends_on", Message: "dependency cycle involving step " + cycle})
	}
	return errs
}

func validateStepID(s types.TrajectoryStep, seen map[string]bool) []ValidationError {
	var errs []ValidationError
	if s.ID == "" {
		return append(errs, ValidationError{Field: "id", Message: "required"})
	}
	if seen[s.ID] {
		errs = append(errs, ValidationError{StepID: s.ID, Field: "id", Message: "duplicate"})
	}
	seen[s.ID] = true
	if !idRe.MatchString(s.ID) {
		errs = append(errs, ValidationError{StepID: s.ID, Field: "id", Message: "must be kebab-case"})
	}
	return errs
}

// findCycle returns the ID of a step participating in a depends_on cycle,
// or "" if the graph is acyclic.
func findCycle(steps []types.TrajectoryStep) string {
	byID := make(map[string]types.TrajectoryStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(steps))
	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, dep := range byID[id].DependsOn {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if cyc := visit(dep); cyc != "" {
					return cyc
				}
			}
		}
		color[id] = black
		return ""
	}
	for _, s := range steps {
		if color[s.ID] == white {
			if cyc := visit(s.ID); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}

// NewState builds a fresh TrajectoryState with every step pending.
func NewState(t *types.Trajectory) *types.TrajectoryState {
	states := make(map[string]*types.TrajectoryStepState, len(t.Steps))
	for _, s := range t.Steps {
		states[s.ID] = &types.TrajectoryStepState{Status: types.StepPending}
	}
	return &types.TrajectoryState{StepStates: states}
}

// stepReady reports whether every dependency of step has completed.
func stepReady(step types.TrajectoryStep, states map[string]*types.TrajectoryStepState) bool {
	for _, dep := range step.DependsOn {
		depState, ok := states[dep]
		if !ok || depState.Status != types.StepCompleted {
			return false
		}
	}
	return true
}

// GetNextStep returns the first pending or active step (in declaration
// order) whose dependencies are all completed, or nil if none is ready
// (every step is done, skipped, or blocked on an incomplete dependency).
func GetNextStep(t *types.Trajectory, state *types.TrajectoryState) *types.TrajectoryStep {
	for i := range t.Steps {
		step := t.Steps[i]
		stepState, ok := state.StepStates[step.ID]
		if !ok {
			continue
		}
		if stepState.Status != types.StepPending && stepState.Status != types.StepActive {
			continue
		}
		if stepReady(step, state.StepStates) {
			return &t.Steps[i]
		}
	}
	return nil
}

// RecordAttempt marks stepID active and bumps its attempt counters for
// the given cycle, called once per advance cycle a step is worked on.
func RecordAttempt(state *types.TrajectoryState, stepID string, cycle int) {
	s, ok := state.StepStates[stepID]
	if !ok {
		return
	}
	if s.Status == types.StepPending {
		s.Status = types.StepActive
	}
	s.CyclesAttempted++
	s.LastAttemptedCycle = cycle
	state.CurrentStepID = stepID
}

// CompleteStep marks stepID completed at the given time.
func CompleteStep(state *types.TrajectoryState, stepID string, completedAt time.Time) {
	s, ok := state.StepStates[stepID]
	if !ok {
		return
	}
	s.Status = types.StepCompleted
	s.CompletedAt = &completedAt
	if state.CurrentStepID == stepID {
		state.CurrentStepID = ""
	}
}

// IsStuck reports whether a step has been attempted maxRetries or more
// times without completing (spec.md §4.16's stuck-step flag). maxRetries
// <= 0 uses DefaultMaxRetries.
func IsStuck(state *types.TrajectoryState, stepID string, maxRetries int) bool {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	s, ok := state.StepStates[stepID]
	if !ok {
		return false
	}
	return s.Status == types.StepActive && s.CyclesAttempted >= maxRetries
}

// Pause suspends prompt injection until Resume is called, without losing
// step progress (`trajectory pause`).
func Pause(state *types.TrajectoryState) {
	state.Paused = true
}

// Resume re-enables prompt injection (`trajectory resume`).
func Resume(state *types.TrajectoryState) {
	state.Paused = false
}

// Skip marks stepID skipped so GetNextStep passes over it, without
// requiring its dependents to treat it as completed (`trajectory skip`).
func Skip(state *types.TrajectoryState, stepID string) {
	s, ok := state.StepStates[stepID]
	if !ok {
		return
	}
	s.Status = types.StepSkipped
	if state.CurrentStepID == stepID {
		state.CurrentStepID = ""
	}
}

// Reset returns a step to pending with its attempt counters cleared
// (`trajectory reset`), for retrying a step flagged stuck.
func Reset(state *types.TrajectoryState, stepID string) {
	s, ok := state.StepStates[stepID]
	if !ok {
		return
	}
	s.Status = types.StepPending
	s.CyclesAttempted = 0
	s.LastAttemptedCycle = 0
	s.CompletedAt = nil
	if state.CurrentStepID == stepID {
		state.CurrentStepID = ""
	}
}

// PromptContext is what the advance engine injects into the scout prompt
// while a trajectory is active and not paused.
type PromptContext struct {
	StepID             string
	Title              string
	Description        string
	AcceptanceCriteria []string
	Scope              []string
	Categories         []string
}

// BuildPromptContext returns the prompt context for the current step, or
// nil if the trajectory is paused or no step is ready.
func BuildPromptContext(t *types.Trajectory, state *types.TrajectoryState) *PromptContext {
	if state.Paused {
		return nil
	}
	step := GetNextStep(t, state)
	if step == nil {
		return nil
	}
	return &PromptContext{
		StepID:             step.ID,
		Title:              step.Title,
		Description:        step.Description,
		AcceptanceCriteria: step.AcceptanceCriteria,
		Scope:              step.Scope,
		Categories:         step.Categories,
	}
}

// Save persists a trajectory definition under name.
func Save(ps storage.ProjectStore, name string, t *types.Trajectory) error {
	return ps.WriteTrajectory(name, t)
}

// LoadSaved reads a previously saved trajectory definition by name.
func LoadSaved(ps storage.ProjectStore, name string) (*types.Trajectory, error) {
	var t types.Trajectory
	if err := ps.ReadTrajectory(name, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns the names of every saved trajectory.
func List(ps storage.ProjectStore) ([]string, error) {
	return ps.ListTrajectories()
}
