package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptwheel-ai/promptwheel/internal/analytics"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past run summaries",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	entries, err := analytics.LoadHistory(a.Project)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no completed runs yet")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  run=%s  phase=%s  completed=%d  failed=%d  prs=%d  %.1fs\n",
			e.Timestamp, e.RunID, e.TerminalPhase, e.TicketsCompleted, e.TicketsFailed, e.PRsCreated, e.DurationSeconds)
	}
	return nil
}
