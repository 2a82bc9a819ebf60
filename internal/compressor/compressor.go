package compressor

import (
	"fmt"

	"tile-compressor-go/internal/tile"
)

// CompressionParams defines parameters for one tile compression run.
type CompressionParams struct {
	InputDir   string
	OutputDir  string
	Size       tile.Size
	Expected   int
	Quality    int
	Filter     string // resample filter name, see tile.ParseFilter
	Extensions []string // tile.DefaultExtensions when empty
}

// FileResult is the outcome of converting a single source file. A successful
// result carries its destination index; a failed one carries the reason and
// an Index of -1.
type FileResult struct {
	Source string
	Dest   string
	Index  int
	Err    error
}

// OK reports whether the file produced a tile.
func (r FileResult) OK() bool {
	return r.Err == nil
}

// Summary accumulates the results of a run.
type Summary struct {
	Produced int
	Expected int
	Results  []FileResult
}

// Missing returns how many tiles short of Expected the run finished, or 0.
func (s *Summary) Missing() int {
	if s.Produced >= s.Expected {
		return 0
	}
	return s.Expected - s.Produced
}

// Failed returns the results that did not produce a tile.
func (s *Summary) Failed() []FileResult {
	var failed []FileResult
	for _, r := range s.Results {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}

// FilesystemError is a fatal error listing or creating a directory. It aborts
// the whole run.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// EventKind identifies a progress event.
type EventKind string

const (
	EventTileCreated EventKind = "tile_created"
	EventTileFailed  EventKind = "tile_failed"
)

// Event is a per-file progress notification.
type Event struct {
	Kind   EventKind
	Source string
	Dest   string
	Index  int
	Err    error
}

// ProgressFunc receives progress events in processing order.
type ProgressFunc func(Event)

// Compressor defines the interface for tile compression.
type Compressor interface {
	// Compress converts every accepted image in params.InputDir into a
	// densely numbered tile in params.OutputDir. Per-file failures are
	// reported in the Summary; only filesystem failures return an error.
	Compress(params CompressionParams) (*Summary, error)
}
