package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagBaseDir  string
	flagOutput   string
	flagVerbose  bool
	flagFormula  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "promptwheel",
	Short: "PromptWheel: an autonomous code-improvement orchestrator",
	Long: `promptwheel drives a bounded, phase-gated loop that scouts a
repository for improvements, turns accepted proposals into tickets, and
walks each ticket through PLAN -> EXECUTE -> QA -> PR.

Core commands:
  init        Initialize .promptwheel/ in the current repository
  scout       Advance a session and print the next prompt
  approve     Submit reviewed proposals back into the pipeline
  run         Drive one ticket through its worker state machine
  retry       Retry a blocked or failed ticket
  pr          Open the pull request for a completed ticket
  qa          Run the QA command suite against the working tree
  status      Show the current run's phase and digest
  history     Show past run summaries
  analytics   Render aggregated metrics and error patterns
  daemon      Manage the outer wake loop
  trajectory  Manage multi-step trajectory plans
  export      Export a run's artifacts and event log
  artifacts   List artifacts written by the current run`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBaseDir, "base-dir", "", "PromptWheel data directory (default .promptwheel under the project root)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "Output format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flagFormula, "formula", "", "Formula file to resolve configuration from")
}
