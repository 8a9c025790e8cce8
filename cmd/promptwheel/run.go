package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runTicketCmd = &cobra.Command{
	Use:   "run <ticket>",
	Short: "Drive one ticket through its worker state machine",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunTicket,
}

func init() {
	rootCmd.AddCommand(runTicketCmd)
}

func runRunTicket(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if _, err := a.openSession(); err != nil {
		return err
	}
	ticketID := args[0]
	if t := a.Tickets.Get(ticketID); t == nil {
		return fmt.Errorf("unknown ticket %q", ticketID)
	}
	result, workerResults, err := a.advance()
	if err != nil {
		return err
	}
	printResult(result, workerResults)
	return nil
}
