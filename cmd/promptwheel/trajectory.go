package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptwheel-ai/promptwheel/internal/trajectory"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

var trajectoryCmd = &cobra.Command{
	Use:   "trajectory",
	Short: "Manage multi-step trajectory plans",
}

var trajectoryListCmd = &cobra.Command{
	Use:  "list",
	RunE: runTrajectoryList,
}

var trajectoryShowCmd = &cobra.Command{
	Use:  "show <name>",
	Args: cobra.ExactArgs(1),
	RunE: runTrajectoryShow,
}

var trajectoryActivateCmd = &cobra.Command{
	Use:  "activate <path>",
	Args: cobra.ExactArgs(1),
	RunE: runTrajectoryActivate,
}

var trajectoryPauseCmd = &cobra.Command{Use: "pause <name>", Args: cobra.ExactArgs(1), RunE: runTrajectoryMutate(trajectory.Pause)}
var trajectoryResumeCmd = &cobra.Command{Use: "resume <name>", Args: cobra.ExactArgs(1), RunE: runTrajectoryMutate(trajectory.Resume)}

var trajectorySkipCmd = &cobra.Command{
	Use:  "skip <name> <step>",
	Args: cobra.ExactArgs(2),
	RunE: runTrajectorySkip,
}

var trajectoryResetCmd = &cobra.Command{
	Use:  "reset <name> <step>",
	Args: cobra.ExactArgs(2),
	RunE: runTrajectoryReset,
}

func init() {
	trajectoryCmd.AddCommand(trajectoryListCmd, trajectoryShowCmd, trajectoryActivateCmd,
		trajectoryPauseCmd, trajectoryResumeCmd, trajectorySkipCmd, trajectoryResetCmd)
	rootCmd.AddCommand(trajectoryCmd)
}

func loadTrajectoryState(a *app, name string) (*types.TrajectoryState, error) {
	var state types.TrajectoryState
	if err := a.Project.ReadJSON(trajectoryStateFile(name), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func saveTrajectoryState(a *app, name string, state *types.TrajectoryState) error {
	return a.Project.WriteJSON(trajectoryStateFile(name), state)
}

func runTrajectoryList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	names, err := trajectory.List(a.Project)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no saved trajectories")
		return nil
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runTrajectoryShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	name := args[0]
	t, err := trajectory.LoadSaved(a.Project, name)
	if err != nil {
		return err
	}
	state, err := loadTrajectoryState(a, name)
	if err != nil {
		state = trajectory.NewState(t)
	}
	fmt.Printf("%s: %s\n", t.Name, t.Description)
	for _, step := range t.Steps {
		status := types.StepPending
		if s, ok := state.StepStates[step.ID]; ok {
			status = s.Status
		}
		marker := " "
		if next := trajectory.GetNextStep(t, state); next != nil && next.ID == step.ID {
			marker = ">"
		}
		fmt.Printf("%s [%s] %s: %s\n", marker, status, step.ID, step.Title)
	}
	if state.Paused {
		fmt.Println("(paused)")
	}
	return nil
}

func runTrajectoryActivate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	path := args[0]
	t, err := trajectory.Load(path)
	if err != nil {
		return err
	}
	if errs := trajectory.Validate(t); len(errs) > 0 {
		for _, e := range errs {
			fmt.Println(e.Error())
		}
		return fmt.Errorf("trajectory %q failed validation", t.Name)
	}
	if err := trajectory.Save(a.Project, t.Name, t); err != nil {
		return err
	}
	state := trajectory.NewState(t)
	if err := saveTrajectoryState(a, t.Name, state); err != nil {
		return err
	}
	fmt.Printf("activated trajectory %q (%d steps)\n", t.Name, len(t.Steps))
	return nil
}

func runTrajectoryMutate(mutate func(*types.TrajectoryState)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		name := args[0]
		state, err := loadTrajectoryState(a, name)
		if err != nil {
			return err
		}
		mutate(state)
		return saveTrajectoryState(a, name, state)
	}
}

func runTrajectorySkip(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	name, stepID := args[0], args[1]
	state, err := loadTrajectoryState(a, name)
	if err != nil {
		return err
	}
	trajectory.Skip(state, stepID)
	return saveTrajectoryState(a, name, state)
}

func runTrajectoryReset(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	name, stepID := args[0], args[1]
	state, err := loadTrajectoryState(a, name)
	if err != nil {
		return err
	}
	trajectory.Reset(state, stepID)
	return saveTrajectoryState(a, name, state)
}
