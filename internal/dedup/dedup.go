// Package dedup implements the Dedup Memory (spec.md §4.4): a weighted,
// decaying record of recently proposed or completed work, used to keep the
// scout from re-proposing the same ticket every cycle.
package dedup

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/promptwheel-ai/promptwheel/internal/config"
	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

const fileName = "dedup.json"

// weightEvictionFloor treats weight as zero once continuous exponential
// decay has driven it negligibly close, since it only reaches exactly
// zero in the limit.
const weightEvictionFloor = 0.5

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

var titleCaser = cases.Lower(language.Und)

// Memory holds DedupEntry records keyed by normalized title and persists
// them to the project root's dedup.json.
type Memory struct {
	cfg     config.DedupConfig
	project storage.ProjectStore
	entries map[string]*types.DedupEntry
}

// Load reads dedup.json (tolerating a missing file) into a new Memory.
func Load(project storage.ProjectStore, cfg config.DedupConfig) (*Memory, error) {
	m := &Memory{cfg: cfg, project: project, entries: map[string]*types.DedupEntry{}}

	var onDisk map[string]*types.DedupEntry
	if err := project.ReadJSON(fileName, &onDisk); err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("dedup: load: %w", err)
	}
	if onDisk != nil {
		m.entries = onDisk
	}
	return m, nil
}

// Save persists the current entries to dedup.json.
func (m *Memory) Save() error {
	return m.project.WriteJSON(fileName, m.entries)
}

// normalize applies Unicode NFC normalization, lowercases, strips
// punctuation, and collapses whitespace, so titles that differ only by
// accent composition or casing compare equal.
func normalize(title string) string {
	t := norm.NFC.String(title)
	t = titleCaser.String(t)
	t = nonWord.ReplaceAllString(t, " ")
	return strings.Join(strings.Fields(t), " ")
}

func tokens(normalized string) []string {
	var out []string
	for _, tok := range strings.Fields(normalized) {
		if len(tok) > 2 {
			out = append(out, tok)
		}
	}
	return out
}

func bigrams(normalized string) []string {
	collapsed := strings.ReplaceAll(normalized, " ", "")
	runes := []rune(collapsed)
	if len(runes) < 2 {
		return nil
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := map[string]struct{}{}
	for _, x := range a {
		setA[x] = struct{}{}
	}
	setB := map[string]struct{}{}
	for _, x := range b {
		setB[x] = struct{}{}
	}

	inter := 0
	for x := range setA {
		if _, ok := setB[x]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Similarity returns the word-Jaccard and bigram-Jaccard similarity
// between two titles, per spec.md §4.4.
func Similarity(a, b string) (word, bigram float64) {
	na, nb := normalize(a), normalize(b)
	word = jaccard(tokens(na), tokens(nb))
	bigram = jaccard(bigrams(na), bigrams(nb))
	return word, bigram
}

// IsDuplicate reports whether title matches an existing entry: exact
// normalized match, or either similarity measure at or above the
// configured threshold.
func (m *Memory) IsDuplicate(title string) (bool, *types.DedupEntry) {
	norm := normalize(title)
	for key, entry := range m.entries {
		if key == norm {
			return true, entry
		}
		word, bigram := Similarity(title, entry.Title)
		if word >= m.cfg.SimilarityThreshold || bigram >= m.cfg.SimilarityThreshold {
			return true, entry
		}
	}
	return false, nil
}

// Record inserts a new entry or bumps an existing one on rehit.
func (m *Memory) Record(title string, now time.Time) {
	norm := normalize(title)
	if existing, ok := m.entries[norm]; ok {
		existing.Weight += m.cfg.RehitBump
		existing.LastSeenAt = now
		existing.HitCount++
		return
	}
	m.entries[norm] = &types.DedupEntry{
		Title:      title,
		Weight:     m.cfg.NewWeight,
		CreatedAt:  now,
		LastSeenAt: now,
		HitCount:   1,
	}
}

// MarkCompleted bumps an entry's weight to the completed-entry weight so
// it decays roughly half as fast, per spec.md §4.4.
func (m *Memory) MarkCompleted(title string, now time.Time) {
	norm := normalize(title)
	entry, ok := m.entries[norm]
	if !ok {
		entry = &types.DedupEntry{Title: title, CreatedAt: now}
		m.entries[norm] = entry
	}
	entry.Weight = m.cfg.CompletedWeight
	entry.LastSeenAt = now
	entry.Completed = true
}

// Decay ages every entry by the days elapsed since LastSeenAt,
// multiplying its weight by (1 - daily rate) once per started day;
// completed entries decay at half the rate. Entries whose weight falls
// to weightEvictionFloor or below are evicted.
func (m *Memory) Decay(now time.Time) {
	for key, entry := range m.entries {
		days := now.Sub(entry.LastSeenAt).Hours() / 24
		if days <= 0 {
			continue
		}
		rate := m.cfg.DailyDecayRate
		if entry.Completed {
			rate /= 2
		}
		factor := 1 - rate
		if factor < 0 {
			factor = 0
		}
		for i := 0.0; i < days; i++ {
			entry.Weight *= factor
		}
		if entry.Weight <= weightEvictionFloor {
			delete(m.entries, key)
		}
	}
}

// Format renders entries sorted by weight descending, truncated to the
// configured character budget, for injection into a scout prompt.
func (m *Memory) Format() string {
	entries := make([]*types.DedupEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Weight != entries[j].Weight {
			return entries[i].Weight > entries[j].Weight
		}
		return entries[i].Title < entries[j].Title
	})

	var b strings.Builder
	for _, e := range entries {
		line := fmt.Sprintf("- %s (weight=%.0f)\n", e.Title, e.Weight)
		if b.Len()+len(line) > m.cfg.FormatCharBudget {
			break
		}
		b.WriteString(line)
	}
	return strings.TrimRight(b.String(), "\n")
}
