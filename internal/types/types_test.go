package types

import "testing"

func TestPhaseIsTerminal(t *testing.T) {
	terminal := []Phase{PhaseDone, PhaseFailedBudget, PhaseFailedValidation, PhaseFailedSpindle, PhaseBlockedNeedsHuman}
	for _, p := range terminal {
		if !p.IsTerminal() {
			t.Errorf("phase %q: expected terminal", p)
		}
	}

	nonTerminal := []Phase{PhaseScout, PhaseNextTicket, PhasePlan, PhaseExecute, PhaseParallelExecute, PhaseQA, PhasePR}
	for _, p := range nonTerminal {
		if p.IsTerminal() {
			t.Errorf("phase %q: expected non-terminal", p)
		}
	}
}

func TestCategoryStatSuccessRate(t *testing.T) {
	var nilStat *CategoryStat
	if rate := nilStat.SuccessRate(); rate != 0 {
		t.Errorf("nil CategoryStat: got %v, want 0", rate)
	}

	zero := &CategoryStat{}
	if rate := zero.SuccessRate(); rate != 0 {
		t.Errorf("zero attempts: got %v, want 0", rate)
	}

	mixed := &CategoryStat{Attempts: 4, Successes: 3}
	if rate := mixed.SuccessRate(); rate != 0.75 {
		t.Errorf("3/4: got %v, want 0.75", rate)
	}
}

func TestRunBudgetWarningsFiredIndependentPerRun(t *testing.T) {
	a := &Run{BudgetWarningsFired: map[int]bool{}}
	b := &Run{BudgetWarningsFired: map[int]bool{}}

	a.BudgetWarningsFired[50] = true

	if b.BudgetWarningsFired[50] {
		t.Fatal("run b should not share run a's budget warning map")
	}
	if !a.BudgetWarningsFired[50] {
		t.Fatal("run a should have recorded the 50%% warning")
	}
}
