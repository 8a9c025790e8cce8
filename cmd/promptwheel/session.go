package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/promptwheel-ai/promptwheel/internal/config"
	"github.com/promptwheel-ai/promptwheel/internal/dedup"
	"github.com/promptwheel-ai/promptwheel/internal/events"
	"github.com/promptwheel-ai/promptwheel/internal/learnings"
	"github.com/promptwheel-ai/promptwheel/internal/phase"
	"github.com/promptwheel-ai/promptwheel/internal/proposals"
	"github.com/promptwheel-ai/promptwheel/internal/runstate"
	"github.com/promptwheel-ai/promptwheel/internal/scheduler"
	"github.com/promptwheel-ai/promptwheel/internal/sectors"
	"github.com/promptwheel-ai/promptwheel/internal/storage"
	"github.com/promptwheel-ai/promptwheel/internal/tickets"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// errNoActiveSession is returned by commands that require a running
// session when loop-state.json is absent.
var errNoActiveSession = errors.New("no active session: run `promptwheel scout` after `promptwheel init` first")

// app wires every package a CLI command needs for one invocation: the
// resolved config, the project-root store, and (once a session exists)
// the run-scoped engine/scheduler/processor stack.
type app struct {
	ProjectRoot string
	Config      *config.Config
	Project     storage.ProjectStore

	Tickets   *tickets.Store
	Sectors   *sectors.Map
	Learnings *learnings.Store
	Dedup     *dedup.Memory
	Manager   *runstate.Manager
	Engine    *phase.Engine
	Scheduler *scheduler.Scheduler
	Processor *events.Processor
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// loadConfig resolves configuration from the default formula (if any)
// and the --formula flag, per internal/config's documented precedence.
func loadConfig() (*config.Config, error) {
	if flagFormula == "" {
		cfg := config.Default()
		if flagBaseDir != "" {
			cfg.BaseDir = flagBaseDir
		}
		cfg.Verbose = flagVerbose
		return cfg, nil
	}
	source, err := config.SourceForFormat("", flagFormula)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Resolve(flagFormula, source, nil)
	if err != nil {
		return nil, err
	}
	if flagBaseDir != "" {
		cfg.BaseDir = flagBaseDir
	}
	return cfg, nil
}

// newApp resolves config and opens the project-root store, creating
// .promptwheel/ if it doesn't exist yet.
func newApp() (*app, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getwd: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dir, err := config.EnsureProjectDir(root, cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	project := storage.NewFileProjectStorage(dir)
	if err := project.Init(); err != nil {
		return nil, err
	}
	return &app{ProjectRoot: root, Config: cfg, Project: project}, nil
}

// dataDir is the resolved .promptwheel directory for this project.
func (a *app) dataDir() string {
	return config.ProjectDir(a.ProjectRoot, a.Config.BaseDir)
}

type loopState struct {
	Phase types.Phase `json:"phase"`
	RunID string      `json:"run_id"`
}

// activeRunID reads loop-state.json to find the session a bare command
// (no explicit run ID) should act on.
func (a *app) activeRunID() (string, error) {
	var ls loopState
	if err := a.Project.ReadLoopState(&ls); err != nil {
		if os.IsNotExist(err) {
			return "", errNoActiveSession
		}
		return "", err
	}
	if ls.RunID == "" {
		return "", errNoActiveSession
	}
	return ls.RunID, nil
}

// openSession loads the active run plus every supporting store and
// assembles the phase engine, scheduler, and event processor bound to
// it, for commands that act on an in-progress session.
func (a *app) openSession() (*types.Run, error) {
	runID, err := a.activeRunID()
	if err != nil {
		return nil, err
	}
	return a.openRun(runID)
}

// openRun loads a specific run by ID, regardless of which run
// loop-state.json currently names; openSession calls it with the run
// loop-state.json names.
func (a *app) openRun(runID string) (*types.Run, error) {
	runDir := storage.NewRunDir(a.dataDir(), runID)
	store := storage.NewFileStorage(runDir)
	if err := store.Init(); err != nil {
		return nil, err
	}
	a.Manager = runstate.New(store, a.Project, nowMillis)
	run, err := a.Manager.Load()
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	ticketStore, err := tickets.Load(a.Project)
	if err != nil {
		return nil, err
	}
	sectorMap, err := sectors.Load(a.Project)
	if err != nil {
		return nil, err
	}
	learningsStore, err := learnings.Load(a.Project)
	if err != nil {
		return nil, err
	}
	dedupMem, err := dedup.Load(a.Project, a.Config.Dedup)
	if err != nil {
		return nil, err
	}

	a.Tickets = ticketStore
	a.Sectors = sectorMap
	a.Learnings = learningsStore
	a.Dedup = dedupMem

	base := prompts{app: a}
	a.Engine = phase.New(ticketStore, a.Manager.Log(), &runBuilder{base}, a.Config.Parallel)
	a.Scheduler = scheduler.New(a.Engine, ticketStore, &workerBuilder{base}, a.Config.Parallel)
	a.Processor = &events.Processor{
		Tickets:     ticketStore,
		Pipeline:    proposals.New(a.Config, dedupMem),
		Log:         a.Manager.Log(),
		Project:     a.Project,
		Config:      a.Config,
		ProjectRoot: a.ProjectRoot,
		NewID:       newID,
		NowMillis:   nowMillis,
	}
	return run, nil
}

// saveSupportingStores persists sectors/learnings/dedup/tickets after a
// command mutates any of them; the run record itself is saved by the
// runstate manager on every Mutate call.
func (a *app) saveSupportingStores() error {
	if err := a.Tickets.Save(); err != nil {
		return err
	}
	if err := a.Sectors.Save(); err != nil {
		return err
	}
	if err := a.Learnings.Save(); err != nil {
		return err
	}
	if err := a.Dedup.Save(); err != nil {
		return err
	}
	return nil
}

// ingestEvent processes one event against the open session's run,
// persisting the mutation and supporting stores atomically with it.
func (a *app) ingestEvent(eventType types.EventType, payload map[string]any) (events.Result, error) {
	var result events.Result
	err := a.Manager.Mutate(func(run *types.Run) error {
		r, err := a.Processor.Process(run, eventType, payload)
		result = r
		return err
	})
	if err != nil {
		return result, err
	}
	return result, a.saveSupportingStores()
}

var idCounter int

// newID mints a short, time-ordered identifier for tickets and runs.
func newID() string {
	idCounter++
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), idCounter)
}
