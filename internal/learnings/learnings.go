// Package learnings implements the Learnings Store (spec.md §4.5): a
// project-root set of short, tagged lessons biased into scout and plan
// prompts, with effectiveness tracked by ticket outcome.
package learnings

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/promptwheel-ai/promptwheel/internal/config"
	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

const fileName = "learnings.json"

// effectivenessCreditWeight is the EMA weight given to each new
// success/failure credit applied to a learning's effectiveness score.
const effectivenessCreditWeight = 0.2

// Store holds every Learning for a project and persists them to
// learnings.json. The CLI's openRun loads it in full for every session
// command; it is not loaded lazily and is not cached in the run record.
type Store struct {
	project storage.ProjectStore
	byID    map[string]*types.Learning
}

// Load reads learnings.json (tolerating a missing file) into a new Store.
func Load(project storage.ProjectStore) (*Store, error) {
	s := &Store{project: project, byID: map[string]*types.Learning{}}

	var onDisk []*types.Learning
	if err := project.ReadJSON(fileName, &onDisk); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("learnings: load: %w", err)
	}
	for _, l := range onDisk {
		s.byID[l.ID] = l
	}
	return s, nil
}

// Save persists every learning to learnings.json.
func (s *Store) Save() error {
	all := s.All()
	return s.project.WriteJSON(fileName, all)
}

// All returns every learning, sorted by id for deterministic output.
func (s *Store) All() []*types.Learning {
	out := make([]*types.Learning, 0, len(s.byID))
	for _, l := range s.byID {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Add inserts or overwrites a learning.
func (s *Store) Add(l types.Learning) {
	cp := l
	s.byID[cp.ID] = &cp
}

// Get returns a learning by id, or nil.
func (s *Store) Get(id string) *types.Learning {
	return s.byID[id]
}

// relevanceScore scores a learning against the current ticket context by
// tag/path overlap: one point per tag that appears as a substring of any
// context path or command, plus a flat 0.5 for process_insight entries
// (which apply regardless of path), plus 0.25×effectiveness once that
// sum is above zero.
func relevanceScore(l *types.Learning, ctxPaths, ctxCommands []string) float64 {
	haystacks := make([]string, 0, len(ctxPaths)+len(ctxCommands))
	haystacks = append(haystacks, ctxPaths...)
	haystacks = append(haystacks, ctxCommands...)

	score := 0.0
	for _, tag := range l.Tags {
		tag = strings.ToLower(tag)
		for _, h := range haystacks {
			if strings.Contains(strings.ToLower(h), tag) {
				score++
				break
			}
		}
	}
	if l.Category == types.LearningProcessInsight {
		score += 0.5
	}
	// Effectiveness biases ranking among equally-relevant learnings
	// without ever promoting an irrelevant one (additive, small weight).
	if score > 0 {
		score += 0.25 * l.Effectiveness
	}
	return score
}

// SelectRelevant scores every learning against the current ticket context,
// takes the top-K by relevance, and formats them inside <learnings> tags
// up to charBudget. It returns the selected ids (for injected_learning_ids
// bookkeeping) and the formatted block.
func (s *Store) SelectRelevant(ctxPaths, ctxCommands []string, cfg config.LearningsConfig) (ids []string, formatted string) {
	all := s.All()
	type scored struct {
		learning *types.Learning
		score    float64
	}
	ranked := make([]scored, 0, len(all))
	for _, l := range all {
		sc := relevanceScore(l, ctxPaths, ctxCommands)
		if sc <= 0 {
			continue
		}
		ranked = append(ranked, scored{l, sc})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	topK := cfg.TopK
	if topK <= 0 || topK > len(ranked) {
		topK = len(ranked)
	}
	ranked = ranked[:topK]

	var b strings.Builder
	b.WriteString("<learnings>\n")
	budget := cfg.CharBudget
	for _, r := range ranked {
		line := fmt.Sprintf("- [%s] %s\n", r.learning.Category, r.learning.Text)
		if b.Len()+len(line)+len("</learnings>\n") > budget {
			break
		}
		b.WriteString(line)
		ids = append(ids, r.learning.ID)
		r.learning.AccessCount++
	}
	b.WriteString("</learnings>")
	return ids, b.String()
}

// Credit applies a success or failure credit to every learning id in ids,
// updating effectiveness as an exponential moving average.
func (s *Store) Credit(ids []string, success bool) {
	credit := 0.0
	if success {
		credit = 1.0
	}
	for _, id := range ids {
		l, ok := s.byID[id]
		if !ok {
			continue
		}
		l.Effectiveness = l.Effectiveness*(1-effectivenessCreditWeight) + credit*effectivenessCreditWeight
	}
}

// ProcessInsights returns every learning tagged process_insight, collected
// specially for post-session reporting (spec.md §4.5).
func (s *Store) ProcessInsights() []*types.Learning {
	var out []*types.Learning
	for _, l := range s.All() {
		if l.Category == types.LearningProcessInsight {
			out = append(out, l)
		}
	}
	return out
}
