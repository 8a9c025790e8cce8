package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptwheel-ai/promptwheel/internal/types"
)

var scoutCmd = &cobra.Command{
	Use:   "scout",
	Short: "Advance the active session and print the next prompt",
	RunE:  runScout,
}

func init() {
	rootCmd.AddCommand(scoutCmd)
}

func runScout(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	run, err := a.openSession()
	if err != nil {
		return err
	}
	if run.Phase != types.PhaseScout {
		fmt.Printf("session is in %s, not SCOUT; advancing anyway\n", run.Phase)
	}
	result, workerResults, err := a.advance()
	if err != nil {
		return err
	}
	printResult(result, workerResults)
	return nil
}
