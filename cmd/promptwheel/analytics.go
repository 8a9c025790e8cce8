package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/promptwheel-ai/promptwheel/internal/analytics"
)

var (
	analyticsRaw     bool
	analyticsVerbose bool
	analyticsSystem  bool
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Render aggregated metrics and error patterns",
	RunE:  runAnalytics,
}

func init() {
	analyticsCmd.Flags().BoolVar(&analyticsRaw, "raw", false, "Print the raw JSON report instead of markdown")
	analyticsCmd.Flags().BoolVar(&analyticsVerbose, "verbose", false, "Include every recent run, not just a summary line")
	analyticsCmd.Flags().BoolVar(&analyticsSystem, "system", false, "Also refresh and report from the SQLite secondary index")
	rootCmd.AddCommand(analyticsCmd)
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	recentLimit := 5
	if analyticsVerbose {
		recentLimit = 1000
	}
	report, err := analytics.Build(a.Project, time.Time{}, time.Now(), recentLimit, 10)
	if err != nil {
		return err
	}

	if analyticsSystem {
		idx, err := analytics.OpenIndex(a.dataDir() + "/analytics.db")
		if err != nil {
			return err
		}
		defer idx.Close()
		history, err := analytics.LoadHistory(a.Project)
		if err != nil {
			return err
		}
		var ledger []analytics.ErrorLedgerEntry
		if err := a.Project.ReadNDJSON("error-ledger.ndjson", func(line []byte) error {
			var e analytics.ErrorLedgerEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return nil
			}
			ledger = append(ledger, e)
			return nil
		}); err != nil {
			return err
		}
		if err := idx.RefreshFromNDJSON(history, ledger); err != nil {
			return err
		}
		counts, err := idx.CategoryCounts()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "indexed category counts: %v\n\n", counts)
	}

	if analyticsRaw {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if !analyticsVerbose {
		fmt.Println(analytics.StatusLine(report))
		return nil
	}
	return analytics.RenderMarkdown(os.Stdout, report)
}
