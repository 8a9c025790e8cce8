package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/promptwheel-ai/promptwheel/internal/daemon"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the outer wake loop",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the wake loop in the foreground until interrupted",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Set the kill switch so the next tick exits",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the wake loop's persisted state",
	RunE:  runDaemonStatus,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

// cycleRunner adapts the CLI's advance loop to daemon.SessionRunner: a
// bounded session is just `cycles` calls to advance() against whichever
// run loop-state.json currently names, creating one if none exists.
type cycleRunner struct {
	a *app
}

func (r *cycleRunner) RunCycles(ctx context.Context, cycles int) error {
	run, err := r.a.openSession()
	if err != nil {
		if err := runInit(nil, nil); err != nil {
			return err
		}
		run, err = r.a.openSession()
		if err != nil {
			return err
		}
	}
	for i := 0; i < cycles; i++ {
		if run.Phase == types.PhaseDone || isFailedPhase(run.Phase) {
			return nil
		}
		if _, _, err := r.a.advance(); err != nil {
			return err
		}
		run, err = r.a.openSession()
		if err != nil {
			return err
		}
	}
	return nil
}

func isFailedPhase(p types.Phase) bool {
	switch p {
	case types.PhaseFailedBudget, types.PhaseFailedValidation, types.PhaseFailedSpindle, types.PhaseBlockedNeedsHuman:
		return true
	default:
		return false
	}
}

func lockAndKillPaths(a *app) (string, string) {
	return filepath.Join(a.dataDir(), "daemon.lock"), filepath.Join(a.dataDir(), "daemon.kill")
}

func newDaemon(a *app) *daemon.Daemon {
	lockPath, killPath := lockAndKillPaths(a)
	return daemon.New(a.ProjectRoot, a.Project, a.Config.Daemon, &cycleRunner{a: a}, lockPath, killPath)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	d := newDaemon(a)
	fmt.Println("daemon started; press Ctrl+C to stop")
	for {
		result, err := d.Tick(context.Background(), time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "tick error: %v\n", err)
		} else if result.Woke {
			fmt.Printf("woke: %s\n", result.Reason)
		} else {
			fmt.Printf("slept: %s\n", result.SkippedWhy)
		}
		if _, err := os.Stat(filepath.Join(a.dataDir(), "daemon.kill")); err == nil {
			fmt.Println("kill switch set; exiting")
			return nil
		}
		time.Sleep(result.NextSleep)
	}
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	_, killPath := lockAndKillPaths(a)
	if err := os.WriteFile(killPath, []byte("stop\n"), 0o644); err != nil {
		return err
	}
	fmt.Println("kill switch set; the daemon will exit on its next tick")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	var state daemon.State
	if err := a.Project.ReadJSON("daemon-state.json", &state); err != nil {
		if os.IsNotExist(err) {
			fmt.Println("daemon has never woken")
			return nil
		}
		return err
	}
	if flagOutput == "json" {
		data, _ := json.MarshalIndent(state, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("last wake:        %s\n", time.UnixMilli(state.LastWakeAtMillis).UTC().Format(time.RFC3339))
	fmt.Printf("last commit:      %s\n", state.LastCommitSHA)
	fmt.Printf("consecutive idle: %d\n", state.ConsecutiveIdleWakes)
	fmt.Printf("current interval: %s\n", time.Duration(state.CurrentIntervalMillis)*time.Millisecond)
	return nil
}
