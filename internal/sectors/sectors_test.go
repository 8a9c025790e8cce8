package sectors

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/storage"
)

func newTestMap(t *testing.T) (*Map, storage.ProjectStore) {
	t.Helper()
	project := storage.NewFileProjectStorage(filepath.Join(t.TempDir(), ".promptwheel"))
	if err := project.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m, err := Load(project)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m, project
}

func TestNextPrefersNeverScanned(t *testing.T) {
	m, _ := newTestMap(t)
	now := time.Now()
	scanned := m.Ensure("internal/scanned")
	scanned.LastScannedAt = &now
	scanned.LastScannedCycle = 5
	m.Ensure("internal/fresh")

	next := m.Next(now)
	if next == nil || next.Path != "internal/fresh" {
		t.Fatalf("got %+v, want internal/fresh", next)
	}
}

func TestNextPrefersLowerLastScannedCycle(t *testing.T) {
	m, _ := newTestMap(t)
	now := time.Now()
	a := m.Ensure("a")
	a.LastScannedAt = &now
	a.LastScannedCycle = 10
	b := m.Ensure("b")
	b.LastScannedAt = &now
	b.LastScannedCycle = 2

	next := m.Next(now)
	if next.Path != "b" {
		t.Errorf("got %s, want b", next.Path)
	}
}

func TestNextFallsBackToAlphabetical(t *testing.T) {
	m, _ := newTestMap(t)
	now := time.Now()
	for _, p := range []string{"zeta", "alpha", "mu"} {
		s := m.Ensure(p)
		s.LastScannedAt = &now
		s.LastScannedCycle = 1
	}

	next := m.Next(now)
	if next.Path != "alpha" {
		t.Errorf("got %s, want alpha", next.Path)
	}
}

func TestNextDeprioritizesPolishedSector(t *testing.T) {
	m, _ := newTestMap(t)
	now := time.Now()

	polished := m.Ensure("internal/done")
	polished.LastScannedAt = &now
	polished.LastScannedCycle = 1
	polished.ScanCount = 6
	polished.ProposalYield = 0.1
	polished.SuccessCount = 1
	polished.FailureCount = 4 // success rate 0.2 < 0.3

	active := m.Ensure("internal/active")
	active.LastScannedAt = &now
	active.LastScannedCycle = 1
	active.ScanCount = 6
	active.ProposalYield = 0.5

	next := m.Next(now)
	if next.Path != "internal/active" {
		t.Errorf("got %s, want internal/active (polished should sort last)", next.Path)
	}
}

func TestNextEmptyMap(t *testing.T) {
	m, _ := newTestMap(t)
	if got := m.Next(time.Now()); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestRecordScanResultUpdatesYieldEMA(t *testing.T) {
	m, _ := newTestMap(t)
	now := time.Now()

	m.RecordScanResult("internal/foo", 1, now, 1, "", 0)
	s := m.Ensure("internal/foo")
	if s.ProposalYield != 1.0 {
		t.Fatalf("first scan yield = %v, want 1.0", s.ProposalYield)
	}

	m.RecordScanResult("internal/foo", 2, now, 0, "", 0)
	want := yieldAlpha*0 + (1-yieldAlpha)*1.0
	if s.ProposalYield != want {
		t.Errorf("got yield %v, want %v", s.ProposalYield, want)
	}
}

func TestRecordScanResultReclassifiesOnHighConfidence(t *testing.T) {
	m, _ := newTestMap(t)
	now := time.Now()
	m.RecordScanResult("internal/foo", 1, now, 0, "test-helpers", 0.8)

	s := m.Ensure("internal/foo")
	if s.Purpose != "test-helpers" || s.ClassificationConfidence != 0.8 {
		t.Errorf("got purpose=%q confidence=%v", s.Purpose, s.ClassificationConfidence)
	}
}

func TestRecordScanResultIgnoresLowConfidenceReclassification(t *testing.T) {
	m, _ := newTestMap(t)
	now := time.Now()
	s := m.Ensure("internal/foo")
	s.Purpose = "core-logic"
	m.RecordScanResult("internal/foo", 1, now, 0, "maybe-tests", 0.2)

	if s.Purpose != "core-logic" {
		t.Errorf("purpose changed to %q on low-confidence reclassification", s.Purpose)
	}
}

func TestRecordOutcomeDecaysEvery20(t *testing.T) {
	m, _ := newTestMap(t)
	for i := 0; i < 20; i++ {
		m.RecordOutcome("internal/foo", "bugfix", true)
	}
	s := m.Ensure("internal/foo")
	if s.SuccessCount != 10 {
		t.Errorf("success count = %d, want 10 after decay", s.SuccessCount)
	}
}

func TestCategoryAffinityBoostAndSuppress(t *testing.T) {
	m, _ := newTestMap(t)
	for i := 0; i < 4; i++ {
		m.RecordOutcome("internal/foo", "boosted", true)
	}
	for i := 0; i < 4; i++ {
		m.RecordOutcome("internal/foo", "suppressed", false)
	}

	s := m.Ensure("internal/foo")
	boost, suppress := CategoryAffinity(s, "boosted")
	if !boost || suppress {
		t.Errorf("boosted category: boost=%v suppress=%v", boost, suppress)
	}
	boost, suppress = CategoryAffinity(s, "suppressed")
	if boost || !suppress {
		t.Errorf("suppressed category: boost=%v suppress=%v", boost, suppress)
	}
}

func TestCategoryAffinityBelowThreshold(t *testing.T) {
	m, _ := newTestMap(t)
	m.RecordOutcome("internal/foo", "new", true)
	s := m.Ensure("internal/foo")

	boost, suppress := CategoryAffinity(s, "new")
	if boost || suppress {
		t.Errorf("expected neither boost nor suppress below 3 attempts, got boost=%v suppress=%v", boost, suppress)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	m, project := newTestMap(t)
	m.Ensure("internal/persisted").ScanCount = 3
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(project)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := reloaded.Ensure("internal/persisted")
	if got.ScanCount != 3 {
		t.Errorf("got ScanCount=%d, want 3", got.ScanCount)
	}
}
