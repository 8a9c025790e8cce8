package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestProjectStorage(t *testing.T) *FileProjectStorage {
	t.Helper()
	ps := NewFileProjectStorage(filepath.Join(t.TempDir(), ".promptwheel"))
	if err := ps.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return ps
}

func TestProjectLoopState(t *testing.T) {
	ps := newTestProjectStorage(t)

	if err := ps.WriteLoopState(&fakeState{Phase: "PLAN", Step: 3}); err != nil {
		t.Fatalf("WriteLoopState: %v", err)
	}
	var got fakeState
	if err := ps.ReadLoopState(&got); err != nil {
		t.Fatalf("ReadLoopState: %v", err)
	}
	if got.Phase != "PLAN" || got.Step != 3 {
		t.Errorf("got %+v, want Phase=PLAN Step=3", got)
	}

	if err := ps.RemoveLoopState(); err != nil {
		t.Fatalf("RemoveLoopState: %v", err)
	}
	if err := ps.ReadLoopState(&got); !os.IsNotExist(err) {
		t.Fatalf("expected os.IsNotExist after remove, got %v", err)
	}
}

func TestProjectJSON(t *testing.T) {
	ps := newTestProjectStorage(t)

	if err := ps.WriteJSON("sectors.json", map[string]int{"count": 4}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var got map[string]int
	if err := ps.ReadJSON("sectors.json", &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got["count"] != 4 {
		t.Errorf("got %v, want count=4", got)
	}
}

func TestProjectNDJSON(t *testing.T) {
	ps := newTestProjectStorage(t)

	for _, v := range []fakeEvent{{Type: "a"}, {Type: "b"}} {
		if err := ps.AppendNDJSON("history.ndjson", v); err != nil {
			t.Fatalf("AppendNDJSON: %v", err)
		}
	}

	var seen []string
	err := ps.ReadNDJSON("history.ndjson", func(line []byte) error {
		seen = append(seen, string(line))
		return nil
	})
	if err != nil {
		t.Fatalf("ReadNDJSON: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("got %d lines, want 2", len(seen))
	}
}

func TestProjectNDJSONMissingFileIsEmpty(t *testing.T) {
	ps := newTestProjectStorage(t)
	var seen []string
	err := ps.ReadNDJSON("error-ledger.ndjson", func(line []byte) error {
		seen = append(seen, string(line))
		return nil
	})
	if err != nil {
		t.Fatalf("ReadNDJSON on missing file: %v", err)
	}
	if len(seen) != 0 {
		t.Errorf("got %d lines, want 0", len(seen))
	}
}

func TestProjectWakeMetricsIsOneShot(t *testing.T) {
	ps := newTestProjectStorage(t)

	if err := ps.WriteWakeMetrics(map[string]int{"cycles": 2}); err != nil {
		t.Fatalf("WriteWakeMetrics: %v", err)
	}

	var got map[string]int
	if err := ps.ReadAndClearWakeMetrics(&got); err != nil {
		t.Fatalf("ReadAndClearWakeMetrics: %v", err)
	}
	if got["cycles"] != 2 {
		t.Errorf("got %v, want cycles=2", got)
	}

	if err := ps.ReadAndClearWakeMetrics(&got); !os.IsNotExist(err) {
		t.Fatalf("expected os.IsNotExist on second read, got %v", err)
	}
}

func TestProjectTrajectories(t *testing.T) {
	ps := newTestProjectStorage(t)

	type plan struct {
		Name string `yaml:"name"`
	}

	if err := ps.WriteTrajectory("refactor-auth", plan{Name: "refactor-auth"}); err != nil {
		t.Fatalf("WriteTrajectory: %v", err)
	}
	if err := ps.WriteTrajectory("harden-api", plan{Name: "harden-api"}); err != nil {
		t.Fatalf("WriteTrajectory: %v", err)
	}

	names, err := ps.ListTrajectories()
	if err != nil {
		t.Fatalf("ListTrajectories: %v", err)
	}
	if len(names) != 2 || names[0] != "harden-api" || names[1] != "refactor-auth" {
		t.Errorf("got %v, want sorted [harden-api refactor-auth]", names)
	}

	var got plan
	if err := ps.ReadTrajectory("refactor-auth", &got); err != nil {
		t.Fatalf("ReadTrajectory: %v", err)
	}
	if got.Name != "refactor-auth" {
		t.Errorf("got %+v, want Name=refactor-auth", got)
	}
}
