package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/phase"
	"github.com/promptwheel-ai/promptwheel/internal/ticketworker"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// advance runs one advance() tick against the active session, routing
// through the parallel scheduler when the run is in PARALLEL_EXECUTE
// and through the phase engine directly otherwise (spec.md §4.9/§4.12).
func (a *app) advance() (phase.Result, map[string]ticketworker.Result, error) {
	var result phase.Result
	var workerResults map[string]ticketworker.Result
	err := a.Manager.Mutate(func(run *types.Run) error {
		r, wr, err := a.Scheduler.Advance(run, time.Now())
		result, workerResults = r, wr
		return err
	})
	if err != nil {
		return result, workerResults, err
	}
	return result, workerResults, a.saveSupportingStores()
}

func printResult(result phase.Result, workerResults map[string]ticketworker.Result) {
	if flagOutput == "json" {
		out := map[string]any{"result": result, "worker_results": workerResults}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Printf("phase: %s  action: %s\n", result.Phase, result.Action)
	if result.Reason != "" {
		fmt.Printf("reason: %s\n", result.Reason)
	}
	if result.Prompt != "" {
		fmt.Printf("\n%s\n", result.Prompt)
	}
	for ticketID, wr := range workerResults {
		fmt.Printf("\n[%s] action: %s\n", ticketID, wr.Action)
		if wr.Prompt != "" {
			fmt.Println(wr.Prompt)
		}
	}
	fmt.Printf("\nstep %d/%d, completed=%d failed=%d\n",
		result.Digest.Step, result.Digest.BudgetRemaining+result.Digest.Step,
		result.Digest.TicketsCompleted, result.Digest.TicketsFailed)
}
