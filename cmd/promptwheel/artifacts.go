package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptwheel-ai/promptwheel/internal/storage"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List artifacts written by the active run",
	RunE:  runArtifacts,
}

func init() {
	rootCmd.AddCommand(artifactsCmd)
}

func runArtifacts(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	runID, err := a.activeRunID()
	if err != nil {
		return err
	}
	store := storage.NewFileStorage(storage.NewRunDir(a.dataDir(), runID))
	metas, err := store.ListArtifacts()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println("no artifacts written yet")
		return nil
	}
	for _, m := range metas {
		fmt.Printf("step %d  %s  %s\n", m.Step, m.Kind, m.Path)
	}
	return nil
}
