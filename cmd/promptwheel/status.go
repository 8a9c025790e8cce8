package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active run's phase and digest",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	run, err := a.openSession()
	if err != nil {
		return err
	}

	if flagOutput == "json" {
		data, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("run:        %s\n", run.RunID)
	fmt.Printf("phase:      %s\n", run.Phase)
	fmt.Printf("step:       %d/%d\n", run.StepCount, run.StepBudget)
	fmt.Printf("tickets:    %d completed, %d failed, %d blocked\n", run.TicketsCompleted, run.TicketsFailed, run.TicketsBlocked)
	fmt.Printf("PRs:        %d/%d\n", run.PRsCreated, run.MaxPRs)
	fmt.Printf("current:    %s\n", run.CurrentTicketID)
	return nil
}
