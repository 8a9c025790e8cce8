// Package worker fans a prompt request out to every in-flight ticket
// worker concurrently. It backs the Parallel Scheduler (spec.md §4.12):
// each tick, every ticket still holding a worker slot gets asked for its
// next prompt at the same time, instead of one after another.
package worker

import (
	"runtime"
	"sort"
	"sync"
)

// Result pairs a ticket worker's output with the ticket ID it came from.
type Result[T any] struct {
	TicketID string
	Value    T
	Err      error
}

// Pool fans ticket work out to a fixed number of goroutine workers.
type Pool[T any] struct {
	concurrency int
}

// NewPool creates a worker pool with the given concurrency.
// If concurrency <= 0, defaults to runtime.NumCPU().
func NewPool[T any](concurrency int) *Pool[T] {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Pool[T]{concurrency: concurrency}
}

// Process runs fn against every ticket ID concurrently and returns one
// Result per ticket, keyed by ticket ID. Ticket IDs are sorted before
// dispatch so that which worker happens to pick up which ticket never
// changes the scheduler's observable behavior from one tick to the next
// (spec.md §4.12's fairness requirement) — only *when* a result lands
// in the channel is nondeterministic, not which tickets were considered.
// Errors from individual tickets are captured per-result rather than
// aborting the whole tick, so one stuck ticket never blocks its siblings.
// Git operations on the shared repository are not this pool's concern:
// gitpr.GitGate serializes those.
func (p *Pool[T]) Process(ticketIDs []string, fn func(ticketID string) (T, error)) map[string]Result[T] {
	if len(ticketIDs) == 0 {
		return nil
	}
	ordered := append([]string(nil), ticketIDs...)
	sort.Strings(ordered)

	workers := p.concurrency
	if workers > len(ordered) {
		workers = len(ordered)
	}

	jobs := make(chan string, len(ordered))
	results := make(chan Result[T], len(ordered))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticketID := range jobs {
				val, err := fn(ticketID)
				results <- Result[T]{TicketID: ticketID, Value: val, Err: err}
			}
		}()
	}

	for _, ticketID := range ordered {
		jobs <- ticketID
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make(map[string]Result[T], len(ordered))
	for r := range results {
		out[r.TicketID] = r
	}
	return out
}
