package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// LoopStateFile is the whole-file, project-root marker a host
	// stop-hook and the daemon consult between cycles.
	LoopStateFile = "loop-state.json"

	// WakeMetricsFile is written once per daemon wake and consumed (then
	// deleted) by the next wake's adaptive-interval calculation.
	WakeMetricsFile = "daemon-wake-metrics.json"

	// TrajectoriesDir holds one YAML plan per file.
	TrajectoriesDir = "trajectories"
)

// FileProjectStorage implements ProjectStore on the local filesystem,
// rooted at a project's base directory (typically <project>/.promptwheel).
type FileProjectStorage struct {
	// BaseDir is the project-root persistence directory.
	BaseDir string

	mu sync.Mutex
}

// NewFileProjectStorage creates a file-backed ProjectStore rooted at baseDir.
func NewFileProjectStorage(baseDir string) *FileProjectStorage {
	return &FileProjectStorage{BaseDir: baseDir}
}

// Init creates the project base directory structure.
func (ps *FileProjectStorage) Init() error {
	dirs := []string{ps.BaseDir, filepath.Join(ps.BaseDir, TrajectoriesDir), filepath.Join(ps.BaseDir, "runs")}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (ps *FileProjectStorage) path(name string) string {
	return filepath.Join(ps.BaseDir, name)
}

// WriteLoopState atomically overwrites loop-state.json.
func (ps *FileProjectStorage) WriteLoopState(v any) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return atomicWriteJSON(ps.path(LoopStateFile), v)
}

// ReadLoopState decodes loop-state.json into dst.
func (ps *FileProjectStorage) ReadLoopState(dst any) error {
	return readJSONFile(ps.path(LoopStateFile), dst)
}

// RemoveLoopState deletes loop-state.json; a missing file is not an error.
func (ps *FileProjectStorage) RemoveLoopState() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	err := os.Remove(ps.path(LoopStateFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WriteJSON atomically overwrites a named project-root JSON file.
func (ps *FileProjectStorage) WriteJSON(name string, v any) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return atomicWriteJSON(ps.path(name), v)
}

// ReadJSON decodes a named project-root JSON file into dst.
func (ps *FileProjectStorage) ReadJSON(name string, dst any) error {
	return readJSONFile(ps.path(name), dst)
}

// AppendNDJSON appends one JSON line to a named append-only log.
func (ps *FileProjectStorage) AppendNDJSON(name string, v any) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return appendJSONL(ps.path(name), v)
}

// ReadNDJSON decodes every line of a named append-only log, in order.
func (ps *FileProjectStorage) ReadNDJSON(name string, fn func(line []byte) error) (err error) {
	f, err := os.Open(ps.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		if err := fn(cp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// WriteWakeMetrics atomically overwrites daemon-wake-metrics.json.
func (ps *FileProjectStorage) WriteWakeMetrics(v any) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return atomicWriteJSON(ps.path(WakeMetricsFile), v)
}

// ReadAndClearWakeMetrics decodes daemon-wake-metrics.json and deletes it.
func (ps *FileProjectStorage) ReadAndClearWakeMetrics(dst any) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	path := ps.path(WakeMetricsFile)
	if err := readJSONFile(path, dst); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ListTrajectories returns the base names of every trajectory plan.
func (ps *FileProjectStorage) ListTrajectories() ([]string, error) {
	dir := filepath.Join(ps.BaseDir, TrajectoriesDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
			names = append(names, strings.TrimSuffix(name, ext))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (ps *FileProjectStorage) trajectoryPath(name string) string {
	return filepath.Join(ps.BaseDir, TrajectoriesDir, name+".yaml")
}

// WriteTrajectory atomically overwrites trajectories/<name>.yaml.
func (ps *FileProjectStorage) WriteTrajectory(name string, v any) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return atomicWrite(ps.trajectoryPath(name), func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }() //nolint:errcheck // best-effort on write path
		return enc.Encode(v)
	})
}

// ReadTrajectory decodes trajectories/<name>.yaml into dst.
func (ps *FileProjectStorage) ReadTrajectory(name string, dst any) error {
	data, err := os.ReadFile(ps.trajectoryPath(name))
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, dst)
}

// Close releases any resources held by FileProjectStorage (none).
func (ps *FileProjectStorage) Close() error {
	return nil
}
