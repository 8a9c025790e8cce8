package proposals

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/config"
	"github.com/promptwheel-ai/promptwheel/internal/dedup"
	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

func testMemory(t *testing.T) *dedup.Memory {
	t.Helper()
	project := storage.NewFileProjectStorage(filepath.Join(t.TempDir(), ".promptwheel"))
	if err := project.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	mem, err := dedup.Load(project, config.DedupConfig{SimilarityThreshold: 0.6})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return mem
}

func baseProposal(title string) types.Proposal {
	return types.Proposal{
		Category:    "refactor",
		Title:       title,
		Description: "a description long enough to pass validation",
		Confidence:  80,
		ImpactScore: 5,
	}
}

func TestRunRejectsMissingRequiredFields(t *testing.T) {
	p := &Pipeline{Categories: []string{"refactor"}, MinImpactScore: 3, MaxProposals: 10}
	bad := types.Proposal{Category: "refactor", ImpactScore: 5, Confidence: 50}

	result := p.Run([]types.Proposal{bad}, nil, 0.6)
	if len(result.Accepted) != 0 || len(result.Rejected) != 1 {
		t.Fatalf("got %+v", result)
	}
}

func TestRunRejectsDisallowedCategory(t *testing.T) {
	p := &Pipeline{Categories: []string{"refactor"}, MinImpactScore: 3, MaxProposals: 10}
	c := baseProposal("add caching layer")
	c.Category = "security"

	result := p.Run([]types.Proposal{c}, nil, 0.6)
	if len(result.Accepted) != 0 || len(result.Rejected) != 1 {
		t.Fatalf("got %+v", result)
	}
}

func TestRunRejectsBelowMinImpact(t *testing.T) {
	p := &Pipeline{Categories: []string{"refactor"}, MinImpactScore: 3, MaxProposals: 10}
	c := baseProposal("tiny tweak")
	c.ImpactScore = 1

	result := p.Run([]types.Proposal{c}, nil, 0.6)
	if len(result.Accepted) != 0 || len(result.Rejected) != 1 {
		t.Fatalf("got %+v", result)
	}
}

func TestRunRejectsCrossRunDuplicateOfExistingTicket(t *testing.T) {
	p := &Pipeline{Categories: []string{"refactor"}, MinImpactScore: 3, MaxProposals: 10}
	c := baseProposal("add caching layer to request handler")
	existing := []*types.Ticket{{ID: "t1", Title: "add caching layer to request handler"}}

	result := p.Run([]types.Proposal{c}, existing, 0.6)
	if len(result.Accepted) != 0 {
		t.Fatalf("got accepted %+v, want none (cross-run dup)", result.Accepted)
	}
}

func TestRunRejectsInBatchDuplicate(t *testing.T) {
	p := &Pipeline{Categories: []string{"refactor"}, MinImpactScore: 3, MaxProposals: 10}
	a := baseProposal("add caching layer to request handler")
	b := baseProposal("add caching layer to request handler")

	result := p.Run([]types.Proposal{a, b}, nil, 0.6)
	if len(result.Accepted) != 1 {
		t.Fatalf("got %d accepted, want 1 (second is an in-batch dup)", len(result.Accepted))
	}
}

func TestRunRanksByImpactTimesConfidenceDescending(t *testing.T) {
	p := &Pipeline{Categories: []string{"refactor"}, MinImpactScore: 1, MaxProposals: 10}
	low := baseProposal("low score change")
	low.ImpactScore, low.Confidence = 2, 10
	high := baseProposal("high score change")
	high.ImpactScore, high.Confidence = 9, 90

	result := p.Run([]types.Proposal{low, high}, nil, 0.6)
	if len(result.Accepted) != 2 || result.Accepted[0].Title != "high score change" {
		t.Fatalf("got %+v, want high-score first", result.Accepted)
	}
}

func TestRunCapsToMaxProposals(t *testing.T) {
	p := &Pipeline{Categories: []string{"refactor"}, MinImpactScore: 1, MaxProposals: 1}
	a := baseProposal("change alpha")
	b := baseProposal("change beta entirely distinct topic")

	result := p.Run([]types.Proposal{a, b}, nil, 0.6)
	if len(result.Accepted) != 1 {
		t.Fatalf("got %d accepted, want capped to 1", len(result.Accepted))
	}
}

func TestApplyReviewScoresMergesByTitle(t *testing.T) {
	pending := []types.Proposal{baseProposal("needs review")}
	scored := ApplyReviewScores(pending, map[string]float64{"needs review": 0.85})
	if scored[0].ReviewScore == nil || *scored[0].ReviewScore != 0.85 {
		t.Fatalf("got %+v", scored[0].ReviewScore)
	}
}

func TestMaterializeSetsReadyStatusAndStructuredDescription(t *testing.T) {
	accepted := []types.Proposal{baseProposal("improve retry backoff")}
	accepted[0].Risk = types.RiskMedium
	accepted[0].RollbackNote = "revert commit abc123"

	tickets := Materialize(accepted, "proj-1", func() int64 { return 1000 }, func() string { return "fixed-id" })
	if len(tickets) != 1 {
		t.Fatalf("got %d tickets, want 1", len(tickets))
	}
	got := tickets[0]
	if got.Status != types.TicketReady {
		t.Errorf("got status %v, want ready", got.Status)
	}
	if got.ID != "fixed-id" || got.ProjectID != "proj-1" {
		t.Errorf("got id=%q project=%q", got.ID, got.ProjectID)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestRunRejectsDuplicateOfDedupMemoryEntry(t *testing.T) {
	mem := testMemory(t)
	mem.Record("add caching layer to request handler", time.Now())

	p := &Pipeline{Categories: []string{"refactor"}, MinImpactScore: 3, MaxProposals: 10, Memory: mem}
	c := baseProposal("add caching layer to request handler")

	result := p.Run([]types.Proposal{c}, nil, 0.6)
	if len(result.Accepted) != 0 {
		t.Fatalf("got accepted %+v, want none (dedup memory dup)", result.Accepted)
	}
}

func TestIsSimilarTitleUsesDedupFormula(t *testing.T) {
	if !isSimilarTitle("fix the login bug", "fix the login bug", 0.6) {
		t.Error("identical titles should be similar")
	}
	if isSimilarTitle("fix the login bug", "rewrite the billing export", 0.6) {
		t.Error("unrelated titles should not be similar")
	}
}
