package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promptwheel-ai/promptwheel/internal/types"
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Submit reviewed proposals back into the pipeline",
	Long: `approve completes the adversarial-review step: it ingests a
PROPOSALS_REVIEWED event carrying any --score title=value overrides,
which the pipeline then runs through dedup/scope/schema validation to
materialize tickets.`,
	RunE: runApprove,
}

var approveScores []string

func init() {
	approveCmd.Flags().StringArrayVar(&approveScores, "score", nil, "title=value review score override, repeatable")
	rootCmd.AddCommand(approveCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	run, err := a.openSession()
	if err != nil {
		return err
	}
	if len(run.PendingProposals) == 0 {
		fmt.Println("no pending proposals to approve")
		return nil
	}

	scores, err := parseScores(approveScores)
	if err != nil {
		return err
	}

	result, err := a.ingestEvent(types.EventProposalsReviewed, map[string]any{"scores": scores})
	if err != nil {
		return err
	}
	fmt.Printf("phase: %s\n%s\n", result.NewPhase, result.Message)
	return nil
}

func parseScores(pairs []string) (map[string]float64, error) {
	scores := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		title, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --score %q, want title=value", pair)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --score %q: %w", pair, err)
		}
		scores[title] = value
	}
	return scores, nil
}
