// Package sectors implements the Sector Map (spec.md §4.3): a flat,
// two-levels-deep view of the codebase that the scout rotates through in a
// deterministic, staleness-keyed order, tracking proposal yield and
// ticket outcomes per directory.
package sectors

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

const fileName = "sectors.json"

// yieldAlpha is the EMA smoothing factor for proposal_yield.
const yieldAlpha = 0.3

// decayEvery halves success/failure counts once they accumulate this many
// total outcomes, so old history fades without ever being wiped outright.
const decayEvery = 20

// Map holds every known Sector, keyed by path, and persists to the
// project root's sectors.json.
type Map struct {
	project storage.ProjectStore
	byPath  map[string]*types.Sector
}

// Load reads sectors.json (tolerating a missing file) into a new Map.
func Load(project storage.ProjectStore) (*Map, error) {
	m := &Map{project: project, byPath: map[string]*types.Sector{}}

	var onDisk []*types.Sector
	if err := project.ReadJSON(fileName, &onDisk); err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("sectors: load: %w", err)
	}
	for _, s := range onDisk {
		m.byPath[s.Path] = s
	}
	return m, nil
}

// Save persists every sector to sectors.json.
func (m *Map) Save() error {
	return m.project.WriteJSON(fileName, m.All())
}

// All returns every sector, sorted by path for deterministic output.
func (m *Map) All() []*types.Sector {
	out := make([]*types.Sector, 0, len(m.byPath))
	for _, s := range m.byPath {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Ensure returns the sector for path, creating it (unscanned) if absent.
func (m *Map) Ensure(path string) *types.Sector {
	if s, ok := m.byPath[path]; ok {
		return s
	}
	s := &types.Sector{Path: path}
	m.byPath[path] = s
	return s
}

func failureRate(s *types.Sector) float64 {
	total := s.SuccessCount + s.FailureCount
	if total == 0 {
		return 0
	}
	return float64(s.FailureCount) / float64(total)
}

func isPolished(s *types.Sector) bool {
	if s.ScanCount < 5 || s.ProposalYield >= 0.3 {
		return false
	}
	totalOutcomes := s.SuccessCount + s.FailureCount
	if totalOutcomes == 0 {
		return true
	}
	successRate := float64(s.SuccessCount) / float64(totalOutcomes)
	return successRate < 0.3
}

func isBarren(s *types.Sector) bool {
	return s.ScanCount > 2 && s.ProposalYield < 0.5
}

func isHighFailureRate(s *types.Sector) bool {
	return s.FailureCount >= 3 && failureRate(s) > 0.6
}

// Next picks the next sector to scan, per spec.md §4.3's 10-step
// deterministic order (lower sorts first). Returns nil if no sectors are
// known yet.
func (m *Map) Next(now time.Time) *types.Sector {
	all := m.All()
	if len(all) == 0 {
		return nil
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]

		// 1. Non-polished before polished.
		if pa, pb := isPolished(a), isPolished(b); pa != pb {
			return !pa
		}
		// 2. Never-scanned first.
		if na, nb := a.LastScannedAt == nil, b.LastScannedAt == nil; na != nb {
			return na
		}
		// 3. Lower last_scanned_cycle.
		if a.LastScannedCycle != b.LastScannedCycle {
			return a.LastScannedCycle < b.LastScannedCycle
		}
		// 4. If both are older than 7 days and differ by more than 1 day, older first.
		if a.LastScannedAt != nil && b.LastScannedAt != nil {
			agedA := now.Sub(*a.LastScannedAt) > 7*24*time.Hour
			agedB := now.Sub(*b.LastScannedAt) > 7*24*time.Hour
			if agedA && agedB {
				diff := a.LastScannedAt.Sub(*b.LastScannedAt)
				if diff < 0 {
					diff = -diff
				}
				if diff > 24*time.Hour {
					return a.LastScannedAt.Before(*b.LastScannedAt)
				}
			}
		}
		// 5. Low classification confidence first.
		if a.ClassificationConfidence != b.ClassificationConfidence {
			return a.ClassificationConfidence < b.ClassificationConfidence
		}
		// 6. Non-barren first.
		if ba, bb := isBarren(a), isBarren(b); ba != bb {
			return !ba
		}
		// 7. Non-high-failure-rate first.
		if ha, hb := isHighFailureRate(a), isHighFailureRate(b); ha != hb {
			return !ha
		}
		// 8. Higher proposal_yield.
		if a.ProposalYield != b.ProposalYield {
			return a.ProposalYield > b.ProposalYield
		}
		// 9. Higher success_count.
		if a.SuccessCount != b.SuccessCount {
			return a.SuccessCount > b.SuccessCount
		}
		// 10. Alphabetical.
		return a.Path < b.Path
	})

	return all[0]
}

// RecordScanResult bumps scan counters, updates the proposal-yield EMA,
// and optionally reclassifies the sector's purpose when the scout
// supplies a medium/high-confidence reclassification.
func (m *Map) RecordScanResult(path string, cycle int, now time.Time, proposalsYielded int, reclassifiedPurpose string, reclassificationConfidence float64) {
	s := m.Ensure(path)
	s.ScanCount++
	s.LastScannedCycle = cycle
	s.LastScannedAt = &now

	yieldThisScan := 0.0
	if proposalsYielded > 0 {
		yieldThisScan = 1.0
	}
	if s.ScanCount == 1 {
		s.ProposalYield = yieldThisScan
	} else {
		s.ProposalYield = yieldAlpha*yieldThisScan + (1-yieldAlpha)*s.ProposalYield
	}

	if reclassifiedPurpose != "" && reclassificationConfidence >= 0.5 {
		s.Purpose = reclassifiedPurpose
		s.ClassificationConfidence = reclassificationConfidence
	}
}

// RecordOutcome credits a ticket success or failure to the sector and its
// category stats. The sector's success/failure counts are halved once
// they total 20; category stats are not decayed.
func (m *Map) RecordOutcome(path, category string, success bool) {
	s := m.Ensure(path)
	if success {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}
	if s.SuccessCount+s.FailureCount >= decayEvery {
		s.SuccessCount /= 2
		s.FailureCount /= 2
	}

	if s.CategoryStats == nil {
		s.CategoryStats = map[string]*types.CategoryStat{}
	}
	cs, ok := s.CategoryStats[category]
	if !ok {
		cs = &types.CategoryStat{}
		s.CategoryStats[category] = cs
	}
	cs.Attempts++
	if success {
		cs.Successes++
	}
}

// CategoryAffinity reports whether a sector's history boosts or suppresses
// a given category: boost when ≥3 attempts and success-rate > 0.6,
// suppress when ≥3 attempts and success-rate < 0.3.
func CategoryAffinity(s *types.Sector, category string) (boost, suppress bool) {
	cs := s.CategoryStats[category]
	if cs == nil || cs.Attempts < 3 {
		return false, false
	}
	rate := cs.SuccessRate()
	return rate > 0.6, rate < 0.3
}
