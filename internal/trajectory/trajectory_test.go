package trajectory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

func sampleTrajectory() *types.Trajectory {
	return &types.Trajectory{
		Name:        "migrate-auth",
		Description: "Move auth off the legacy session store",
		Steps: []types.TrajectoryStep{
			{ID: "audit-usages", Title: "Audit usages", Description: "Find every legacy session read/write"},
			{ID: "introduce-shim", Title: "Introduce shim", Description: "Add a compat shim", DependsOn: []string{"audit-usages"}},
			{ID: "migrate-callers", Title: "Migrate callers", Description: "Swap callers to the shim", DependsOn: []string{"introduce-shim"}},
		},
	}
}

func TestLoadParsesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	content := "name: migrate-auth\ndescription: test\nsteps:\n  - id: step-one\n    title: Step One\n    description: do it\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	traj, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if traj.Name != "migrate-auth" || len(traj.Steps) != 1 {
		t.Fatalf("got %+v, want name=migrate-auth with one step", traj)
	}
}

func TestValidateCatchesDuplicateAndMissingFields(t *testing.T) {
	traj := &types.Trajectory{Steps: []types.TrajectoryStep{
		{ID: "a", Title: "A", Description: "d"},
		{ID: "a", Title: "", Description: ""},
	}}
	errs := Validate(traj)
	if len(errs) < 3 {
		t.Fatalf("got %d errors, want at least 3 (duplicate id, missing title, missing description): %+v", len(errs), errs)
	}
}

func TestValidateCatchesUnknownDependency(t *testing.T) {
	traj := &types.Trajectory{Steps: []types.TrajectoryStep{
		{ID: "a", Title: "A", Description: "d", DependsOn: []string{"missing"}},
	}}
	errs := Validate(traj)
	found := false
	for _, e := range errs {
		if e.Field == "depends_on" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a depends_on error, got %+v", errs)
	}
}

func TestValidateCatchesDependencyCycle(t *testing.T) {
	traj := &types.Trajectory{Steps: []types.TrajectoryStep{
		{ID: "a", Title: "A", Description: "d", DependsOn: []string{"b"}},
		{ID: "b", Title: "B", Description: "d", DependsOn: []string{"a"}},
	}}
	errs := Validate(traj)
	found := false
	for _, e := range errs {
		if e.Message != "" && e.Field == "depends_on" && e.StepID == "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a cycle error, got %+v", errs)
	}
}

func TestGetNextStepReturnsFirstReadyStepInOrder(t *testing.T) {
	traj := sampleTrajectory()
	state := NewState(traj)

	next := GetNextStep(traj, state)
	if next == nil || next.ID != "audit-usages" {
		t.Fatalf("got %v, want audit-usages", next)
	}
}

func TestGetNextStepSkipsStepsWithUnmetDependencies(t *testing.T) {
	traj := sampleTrajectory()
	state := NewState(traj)
	state.StepStates["audit-usages"].Status = types.StepCompleted

	next := GetNextStep(traj, state)
	if next == nil || next.ID != "introduce-shim" {
		t.Fatalf("got %v, want introduce-shim", next)
	}
}

func TestGetNextStepReturnsNilWhenAllDone(t *testing.T) {
	traj := sampleTrajectory()
	state := NewState(traj)
	for _, s := range state.StepStates {
		s.Status = types.StepCompleted
	}
	if next := GetNextStep(traj, state); next != nil {
		t.Fatalf("got %v, want nil", next)
	}
}

func TestRecordAttemptMarksActiveAndIncrements(t *testing.T) {
	traj := sampleTrajectory()
	state := NewState(traj)

	RecordAttempt(state, "audit-usages", 1)
	RecordAttempt(state, "audit-usages", 2)

	s := state.StepStates["audit-usages"]
	if s.Status != types.StepActive {
		t.Errorf("got status %v, want active", s.Status)
	}
	if s.CyclesAttempted != 2 {
		t.Errorf("got %d attempts, want 2", s.CyclesAttempted)
	}
	if state.CurrentStepID != "audit-usages" {
		t.Errorf("got current step %q, want audit-usages", state.CurrentStepID)
	}
}

func TestIsStuckFlagsAfterMaxRetries(t *testing.T) {
	traj := sampleTrajectory()
	state := NewState(traj)
	RecordAttempt(state, "audit-usages", 1)
	RecordAttempt(state, "audit-usages", 2)
	RecordAttempt(state, "audit-usages", 3)

	if !IsStuck(state, "audit-usages", 3) {
		t.Error("expected step stuck after 3 attempts with maxRetries=3")
	}
	if IsStuck(state, "audit-usages", 5) {
		t.Error("expected step not stuck when maxRetries=5")
	}
}

func TestCompleteStepClearsCurrentAndSetsTimestamp(t *testing.T) {
	traj := sampleTrajectory()
	state := NewState(traj)
	RecordAttempt(state, "audit-usages", 1)

	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	CompleteStep(state, "audit-usages", now)

	s := state.StepStates["audit-usages"]
	if s.Status != types.StepCompleted {
		t.Errorf("got status %v, want completed", s.Status)
	}
	if s.CompletedAt == nil || !s.CompletedAt.Equal(now) {
		t.Errorf("got completed_at %v, want %v", s.CompletedAt, now)
	}
	if state.CurrentStepID != "" {
		t.Errorf("expected current step cleared, got %q", state.CurrentStepID)
	}
}

func TestBuildPromptContextNilWhenPaused(t *testing.T) {
	traj := sampleTrajectory()
	state := NewState(traj)
	Pause(state)

	if ctx := BuildPromptContext(traj, state); ctx != nil {
		t.Fatalf("got %+v, want nil while paused", ctx)
	}
}

func TestBuildPromptContextReturnsCurrentStep(t *testing.T) {
	traj := sampleTrajectory()
	state := NewState(traj)

	ctx := BuildPromptContext(traj, state)
	if ctx == nil || ctx.StepID != "audit-usages" {
		t.Fatalf("got %+v, want audit-usages", ctx)
	}
}

func TestSkipAndResetRoundTrip(t *testing.T) {
	traj := sampleTrajectory()
	state := NewState(traj)
	RecordAttempt(state, "audit-usages", 1)

	Skip(state, "audit-usages")
	if state.StepStates["audit-usages"].Status != types.StepSkipped {
		t.Fatal("expected skipped status")
	}
	if next := GetNextStep(traj, state); next != nil {
		t.Fatalf("got %v, want nil: introduce-shim depends on audit-usages, which is skipped rather than completed", next)
	}

	Reset(state, "audit-usages")
	s := state.StepStates["audit-usages"]
	if s.Status != types.StepPending || s.CyclesAttempted != 0 {
		t.Fatalf("got %+v, want pending with zeroed attempts after reset", s)
	}
}

func TestSaveLoadSavedAndList(t *testing.T) {
	ps := storage.NewFileProjectStorage(filepath.Join(t.TempDir(), ".promptwheel"))
	if err := ps.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	traj := sampleTrajectory()
	if err := Save(ps, "migrate-auth", traj); err != nil {
		t.Fatalf("Save: %v", err)
	}

	names, err := List(ps)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "migrate-auth" {
		t.Fatalf("got %v, want [migrate-auth]", names)
	}

	loaded, err := LoadSaved(ps, "migrate-auth")
	if err != nil {
		t.Fatalf("LoadSaved: %v", err)
	}
	if loaded.Name != "migrate-auth" || len(loaded.Steps) != 3 {
		t.Fatalf("got %+v, want round-tripped trajectory", loaded)
	}
}
