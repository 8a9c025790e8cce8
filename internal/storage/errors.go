package storage

import "errors"

// Sentinel errors for the storage package. Using sentinels instead of
// ad-hoc fmt.Errorf lets callers match with errors.Is.
var (
	// ErrRunDirRequired names a FileStorage with no run directory
	// configured. No function in this package returns it.
	ErrRunDirRequired = errors.New("storage: run directory is required")

	// ErrUnknownArtifact names an artifact filename that does not match
	// the <step>-<kind>.json naming convention. No function in this
	// package returns it: ListArtifacts skips such files.
	ErrUnknownArtifact = errors.New("storage: unrecognized artifact filename")
)
