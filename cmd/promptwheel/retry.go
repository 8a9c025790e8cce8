package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptwheel-ai/promptwheel/internal/types"
)

var retryCmd = &cobra.Command{
	Use:   "retry <ticket>",
	Short: "Retry a blocked or failed ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if _, err := a.openSession(); err != nil {
		return err
	}
	ticketID := args[0]
	ticket := a.Tickets.Get(ticketID)
	if ticket == nil {
		return fmt.Errorf("unknown ticket %q", ticketID)
	}
	ticket.Status = types.TicketReady
	a.Tickets.Put(ticket)
	if err := a.Tickets.Save(); err != nil {
		return err
	}
	fmt.Printf("ticket %s reset to ready\n", ticketID)
	return nil
}
