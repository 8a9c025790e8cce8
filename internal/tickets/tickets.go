// Package tickets is the ticket database the phase state machine and
// event processor operate over (spec.md §4.9's advance(run, db, ...) and
// §4.10's processEvent(run, db, ...)): every ticket materialized by the
// proposal pipeline, persisted at the project root so it outlives any
// single run.
package tickets

import (
	"fmt"
	"os"
	"sort"

	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

const fileName = "tickets.json"

// Store holds every known Ticket, keyed by ID, and persists to the
// project root's tickets.json.
type Store struct {
	project storage.ProjectStore
	byID    map[string]*types.Ticket
}

// Load reads tickets.json (tolerating a missing file) into a new Store.
func Load(project storage.ProjectStore) (*Store, error) {
	s := &Store{project: project, byID: map[string]*types.Ticket{}}

	var onDisk []*types.Ticket
	if err := project.ReadJSON(fileName, &onDisk); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("tickets: load: %w", err)
	}
	for _, t := range onDisk {
		s.byID[t.ID] = t
	}
	return s, nil
}

// Save persists every ticket to tickets.json.
func (s *Store) Save() error {
	return s.project.WriteJSON(fileName, s.All())
}

// All returns every ticket, sorted by ID for deterministic output.
func (s *Store) All() []*types.Ticket {
	out := make([]*types.Ticket, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the ticket by ID, or nil if unknown.
func (s *Store) Get(id string) *types.Ticket {
	return s.byID[id]
}

// Put inserts or replaces a ticket.
func (s *Store) Put(t *types.Ticket) {
	s.byID[t.ID] = t
}

// ForProject returns every ticket belonging to projectID, excluding
// aborted ones, the set the proposal pipeline's cross-run dedup step
// compares new proposals against.
func (s *Store) ForProject(projectID string) []*types.Ticket {
	var out []*types.Ticket
	for _, t := range s.All() {
		if t.ProjectID == projectID && t.Status != types.TicketAborted {
			out = append(out, t)
		}
	}
	return out
}

// Ready returns every ready ticket for a project, ordered by priority
// descending, tie-broken by older created_at then lexical id
// (spec.md §4.9's tie-break rule).
func (s *Store) Ready(projectID string) []*types.Ticket {
	var out []*types.Ticket
	for _, t := range s.All() {
		if t.ProjectID == projectID && t.Status == types.TicketReady {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// HighestPriorityReady returns the front of Ready(projectID), or nil if
// none are ready.
func (s *Store) HighestPriorityReady(projectID string) *types.Ticket {
	ready := s.Ready(projectID)
	if len(ready) == 0 {
		return nil
	}
	return ready[0]
}
