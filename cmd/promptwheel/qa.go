package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptwheel-ai/promptwheel/internal/qarunner"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

var qaCmd = &cobra.Command{
	Use:   "qa",
	Short: "Run the QA command suite against the current ticket's working tree",
	RunE:  runQA,
}

func init() {
	rootCmd.AddCommand(qaCmd)
}

func runQA(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	run, err := a.openSession()
	if err != nil {
		return err
	}
	ticket := a.Tickets.Get(run.CurrentTicketID)
	if ticket == nil {
		return fmt.Errorf("no current ticket to run QA against")
	}

	runner := qarunner.New(a.ProjectRoot, a.Config.QA.CommandTimeout, nil)
	stats := qarunner.NewStats()
	report := runner.Run(context.Background(), ticket.VerificationCommands, stats)

	if report.Failed {
		payload := map[string]any{
			"category":         report.LastFailure.Category,
			"message":          report.LastFailure.Message,
			"failing_commands": report.LastFailure.FailingCommands,
		}
		result, err := a.ingestEvent(types.EventQAFailed, payload)
		if err != nil {
			return err
		}
		fmt.Printf("QA failed (%s): %s\nphase: %s\n", report.LastFailure.Category, report.LastFailure.Message, result.NewPhase)
		return nil
	}

	result, err := a.ingestEvent(types.EventQAPassed, nil)
	if err != nil {
		return err
	}
	fmt.Printf("QA passed\nphase: %s\n%s\n", result.NewPhase, result.Message)
	return nil
}
