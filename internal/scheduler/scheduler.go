// Package scheduler implements the Parallel Scheduler (spec.md §4.12):
// the layer above internal/phase that, once a run is in
// PARALLEL_EXECUTE, fans a prompt request out to every in-flight ticket
// worker concurrently and applies incoming events back to the matching
// worker, removing it from the registry on completion or block.
package scheduler

import (
	"sync"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/phase"
	"github.com/promptwheel-ai/promptwheel/internal/ticketworker"
	"github.com/promptwheel-ai/promptwheel/internal/tickets"
	"github.com/promptwheel-ai/promptwheel/internal/types"
	"github.com/promptwheel-ai/promptwheel/internal/worker"
)

// Scheduler drives PARALLEL_EXECUTE on top of a phase.Engine: the engine
// decides which new tickets get a worker slot, the scheduler decides
// what every already-assigned worker does next.
type Scheduler struct {
	Engine  *phase.Engine
	Tickets *tickets.Store
	Builder ticketworker.Builder

	pool *worker.Pool[ticketworker.Result]

	// gitMu is held around Engine.Advance so ticket assignment runs one
	// tick at a time. The scheduler itself issues no git commands; git
	// calls on the main repository are serialized by gitpr.GitGate.
	gitMu sync.Mutex

	mu sync.Mutex
	// planRejections counts PLAN_SUBMITTED rejections per ticket across
	// Ingest calls; types.WorkerState carries no counter of its own
	// (ticketworker.MaxPlanRejections documents this split).
	planRejections map[string]int
}

// New builds a Scheduler bound to an already-constructed phase.Engine.
// parallel is the worker pool's concurrency (typically equal to
// engine.Parallel, since dispatch never exceeds that many workers).
func New(engine *phase.Engine, store *tickets.Store, builder ticketworker.Builder, parallel int) *Scheduler {
	return &Scheduler{
		Engine:         engine,
		Tickets:        store,
		Builder:        builder,
		pool:           worker.NewPool[ticketworker.Result](parallel),
		planRejections: map[string]int{},
	}
}

// Advance runs one PARALLEL_EXECUTE tick: the engine assigns fresh
// tickets into any open worker slots, then every already-running
// worker is asked for its next prompt concurrently via the worker pool.
// Outside PARALLEL_EXECUTE it just forwards to the engine.
func (s *Scheduler) Advance(run *types.Run, now time.Time) (phase.Result, map[string]ticketworker.Result, error) {
	s.gitMu.Lock()
	result, err := s.Engine.Advance(run, now)
	s.gitMu.Unlock()
	if err != nil || run.Phase != types.PhaseParallelExecute {
		return result, nil, err
	}

	freshlyAssigned := make(map[string]bool, len(result.WorkerPrompts))
	for _, wp := range result.WorkerPrompts {
		freshlyAssigned[wp.TicketID] = true
	}

	pending := make([]string, 0, len(run.TicketWorkers))
	for id := range run.TicketWorkers {
		if !freshlyAssigned[id] {
			pending = append(pending, id)
		}
	}

	raw := s.pool.Process(pending, func(ticketID string) (ticketworker.Result, error) {
		ws := run.TicketWorkers[ticketID]
		ticket := s.Tickets.Get(ticketID)
		return ticketworker.Advance(ws, ticket, s.Builder), nil
	})

	workerResults := make(map[string]ticketworker.Result, len(raw))
	for id, r := range raw {
		workerResults[id] = r.Value
	}
	return result, workerResults, nil
}

// Ingest applies an incoming event to the worker assigned to ticketID.
// It returns false, false when no such worker exists (the event arrived
// for a ticket the scheduler never dispatched, or already retired).
func (s *Scheduler) Ingest(run *types.Run, ticketID string, eventType types.EventType, payload map[string]any, createPRs bool) (completed, blocked bool) {
	ws := run.TicketWorkers[ticketID]
	if ws == nil {
		return false, false
	}
	ticket := s.Tickets.Get(ticketID)

	if eventType == types.EventPlanSubmitted {
		if rejected, _ := payload["rejected"].(bool); rejected {
			s.mu.Lock()
			s.planRejections[ticketID]++
			exceeded := s.planRejections[ticketID] >= ticketworker.MaxPlanRejections
			s.mu.Unlock()
			if exceeded {
				blocked = true
			}
		} else {
			s.mu.Lock()
			delete(s.planRejections, ticketID)
			s.mu.Unlock()
		}
	}

	workerCompleted, workerBlocked := ticketworker.Ingest(ws, ticket, eventType, payload, createPRs)
	completed = completed || workerCompleted
	blocked = blocked || workerBlocked

	if completed || blocked {
		delete(run.TicketWorkers, ticketID)
		s.mu.Lock()
		delete(s.planRejections, ticketID)
		s.mu.Unlock()
		if ticket != nil {
			if completed {
				ticket.Status = types.TicketDone
				run.TicketsCompleted++
			} else {
				ticket.Status = types.TicketBlocked
				run.TicketsBlocked++
			}
			s.Tickets.Put(ticket)
		}
	}
	return completed, blocked
}

// ActiveCount returns how many worker slots are currently occupied.
func (s *Scheduler) ActiveCount(run *types.Run) int {
	return len(run.TicketWorkers)
}
