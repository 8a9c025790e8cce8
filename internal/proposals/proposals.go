// Package proposals implements the Proposal Pipeline (spec.md §4.8): the
// eight-step funnel that turns a scout's raw proposal batch into ready
// tickets — schema validation, category trust ladder, impact filter,
// cross-run and in-batch dedup, ranking, capping, and materialization.
package proposals

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/promptwheel-ai/promptwheel/internal/config"
	"github.com/promptwheel-ai/promptwheel/internal/dedup"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// Rejection records why a candidate proposal was dropped, for the
// exploration log and EVENT audit trail.
type Rejection struct {
	Proposal types.Proposal
	Reason   string
}

// Result is one pipeline run's outcome.
type Result struct {
	Accepted []types.Proposal
	Rejected []Rejection
}

// Pipeline holds the session settings the funnel steps consult.
type Pipeline struct {
	Categories     []string
	MinImpactScore int
	MaxProposals   int
	Memory         *dedup.Memory
}

// New builds a Pipeline from session config and the project's dedup
// memory.
func New(cfg *config.Config, mem *dedup.Memory) *Pipeline {
	return &Pipeline{
		Categories:     cfg.Categories,
		MinImpactScore: cfg.MinImpactScore,
		MaxProposals:   cfg.MaxProposals,
		Memory:         mem,
	}
}

func (p *Pipeline) categoryAllowed(category string) bool {
	if len(p.Categories) == 0 {
		return true
	}
	for _, c := range p.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func validateSchema(p types.Proposal) string {
	switch {
	case p.Title == "":
		return "missing required field: title"
	case p.Description == "":
		return "missing required field: description"
	case p.Category == "":
		return "missing required field: category"
	case p.ImpactScore < 1 || p.ImpactScore > 10:
		return "impact_score out of range 1-10"
	case p.Confidence < 0 || p.Confidence > 100:
		return "confidence out of range 0-100"
	default:
		return ""
	}
}

// isSimilarTitle applies the dedup similarity formula (spec.md §4.4) to
// two raw titles, independent of the weighted Memory entries.
func isSimilarTitle(a, b string, threshold float64) bool {
	word, bigram := dedup.Similarity(a, b)
	return word >= threshold || bigram >= threshold
}

// Run executes pipeline steps 1-7 (validation through capping) over one
// scout batch; step 8, materialization, is Materialize.
// existingTickets should exclude aborted tickets; the caller filters
// those out before calling Run, since "non-aborted" is a project-level
// policy the pipeline itself has no opinion on.
func (p *Pipeline) Run(candidates []types.Proposal, existingTickets []*types.Ticket, similarityThreshold float64) Result {
	var result Result

	// 1. Schema validate.
	var afterSchema []types.Proposal
	for _, c := range candidates {
		if reason := validateSchema(c); reason != "" {
			result.Rejected = append(result.Rejected, Rejection{Proposal: c, Reason: reason})
			continue
		}
		afterSchema = append(afterSchema, c)
	}

	// 2. Category trust ladder.
	var afterCategory []types.Proposal
	for _, c := range afterSchema {
		if !p.categoryAllowed(c.Category) {
			result.Rejected = append(result.Rejected, Rejection{Proposal: c, Reason: fmt.Sprintf("category %q not in session's allowed list", c.Category)})
			continue
		}
		afterCategory = append(afterCategory, c)
	}

	// 3. Confidence/impact filter: confidence is a hint only.
	var afterImpact []types.Proposal
	for _, c := range afterCategory {
		if c.ImpactScore < p.MinImpactScore {
			result.Rejected = append(result.Rejected, Rejection{Proposal: c, Reason: fmt.Sprintf("impact_score %d below minimum %d", c.ImpactScore, p.MinImpactScore)})
			continue
		}
		afterImpact = append(afterImpact, c)
	}

	// 4. Cross-run dedup against existing tickets and the dedup memory
	// of recently proposed/completed titles.
	var afterCrossRun []types.Proposal
	for _, c := range afterImpact {
		duplicate := false
		for _, t := range existingTickets {
			if isSimilarTitle(c.Title, t.Title, similarityThreshold) {
				result.Rejected = append(result.Rejected, Rejection{Proposal: c, Reason: fmt.Sprintf("similar to existing ticket %q", t.ID)})
				duplicate = true
				break
			}
		}
		if !duplicate && p.Memory != nil {
			if isDup, entry := p.Memory.IsDuplicate(c.Title); isDup {
				result.Rejected = append(result.Rejected, Rejection{Proposal: c, Reason: fmt.Sprintf("similar to dedup memory entry %q", entry.Title)})
				duplicate = true
			}
		}
		if !duplicate {
			afterCrossRun = append(afterCrossRun, c)
		}
	}

	// 5. In-batch dedup, iterating in current order.
	var accepted []types.Proposal
	for _, c := range afterCrossRun {
		duplicate := false
		for _, a := range accepted {
			if isSimilarTitle(c.Title, a.Title, similarityThreshold) {
				result.Rejected = append(result.Rejected, Rejection{Proposal: c, Reason: fmt.Sprintf("similar to already-accepted proposal %q", a.Title)})
				duplicate = true
				break
			}
		}
		if !duplicate {
			accepted = append(accepted, c)
		}
	}

	// 6. Rank by impact_score * confidence descending, stable on title.
	sort.SliceStable(accepted, func(i, j int) bool {
		si := accepted[i].ImpactScore * accepted[i].Confidence
		sj := accepted[j].ImpactScore * accepted[j].Confidence
		if si != sj {
			return si > sj
		}
		return accepted[i].Title < accepted[j].Title
	})

	// 7. Cap to max_proposals.
	if p.MaxProposals > 0 && len(accepted) > p.MaxProposals {
		for _, dropped := range accepted[p.MaxProposals:] {
			result.Rejected = append(result.Rejected, Rejection{Proposal: dropped, Reason: "dropped past max_proposals cap"})
		}
		accepted = accepted[:p.MaxProposals]
	}

	result.Accepted = accepted
	return result
}

// ApplyReviewScores merges adversarial-review scores into pending
// proposals by title, for the PROPOSALS_REVIEWED resume path.
func ApplyReviewScores(pending []types.Proposal, scores map[string]float64) []types.Proposal {
	out := make([]types.Proposal, len(pending))
	copy(out, pending)
	for i := range out {
		if score, ok := scores[out[i].Title]; ok {
			s := score
			out[i].ReviewScore = &s
		}
	}
	return out
}

// describeRollback renders the risk/rollback section of a materialized
// ticket's structured description.
func describeRollback(p types.Proposal) string {
	risk := p.Risk
	if risk == "" {
		risk = types.RiskLow
	}
	rollback := p.RollbackNote
	if rollback == "" {
		rollback = "revert the ticket's commits"
	}
	return fmt.Sprintf("Risk: %s\nRollback: %s", risk, rollback)
}

// Materialize turns accepted proposals into ready tickets, id'd by newID
// (a fresh UUID when newID returns "") with a structured description
// template embedding risk and rollback notes.
func Materialize(accepted []types.Proposal, projectID string, now func() int64, newID func() string) []*types.Ticket {
	tickets := make([]*types.Ticket, 0, len(accepted))
	for _, p := range accepted {
		id := newID()
		if id == "" {
			id = uuid.NewString()
		}
		description := fmt.Sprintf("%s\n\n%s", p.Description, describeRollback(p))
		createdAt := time.UnixMilli(now()).UTC()

		tickets = append(tickets, &types.Ticket{
			ID:                   id,
			ProjectID:            projectID,
			Title:                p.Title,
			Description:          description,
			Status:               types.TicketReady,
			Priority:             p.ImpactScore * p.Confidence,
			Category:             p.Category,
			AllowedPaths:         p.AllowedPaths,
			VerificationCommands: p.VerificationCommands,
			Confidence:           p.Confidence,
			ImpactScore:          p.ImpactScore,
			Risk:                 p.Risk,
			RollbackNote:         p.RollbackNote,
			CreatedAt:            createdAt,
			UpdatedAt:            createdAt,
		})
	}
	return tickets
}
