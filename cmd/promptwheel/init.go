package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptwheel-ai/promptwheel/internal/eventlog"
	"github.com/promptwheel-ai/promptwheel/internal/runstate"
	"github.com/promptwheel-ai/promptwheel/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize .promptwheel/ and start a new session",
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	runID := newID()
	sessionID := newID()
	runDir := storage.NewRunDir(a.dataDir(), runID)
	store := storage.NewFileStorage(runDir)
	if err := store.Init(); err != nil {
		return err
	}

	manager := runstate.New(store, a.Project, nowMillis)
	run, err := manager.Create(runID, sessionID, a.ProjectRoot, a.Config, nowMillis())
	if err != nil {
		return err
	}
	if err := eventlog.MarkLoopState(a.Project, run.Phase, runID); err != nil {
		return err
	}

	fmt.Printf("initialized PromptWheel session %s (run %s) in %s\n", sessionID, runID, a.dataDir())
	return nil
}
