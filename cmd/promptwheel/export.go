package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the active run's artifacts and event log as one JSON bundle",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}

type exportBundle struct {
	Run       *types.Run       `json:"run"`
	Events    []types.Event    `json:"events"`
	Artifacts []artifactExport `json:"artifacts"`
}

type artifactExport struct {
	Step int    `json:"step"`
	Kind string `json:"kind"`
	Path string `json:"path"`
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	run, err := a.openSession()
	if err != nil {
		return err
	}

	store := storage.NewFileStorage(storage.NewRunDir(a.dataDir(), run.RunID))
	events, err := a.Manager.Log().ReadAll()
	if err != nil {
		return err
	}
	metas, err := store.ListArtifacts()
	if err != nil {
		return err
	}
	bundle := exportBundle{Run: run, Events: events}
	for _, m := range metas {
		bundle.Artifacts = append(bundle.Artifacts, artifactExport{Step: m.Step, Kind: m.Kind, Path: m.Path})
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	if exportOut == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(exportOut), 0o755); err != nil {
		return err
	}
	return os.WriteFile(exportOut, data, 0o644)
}
