package runner

import (
	"fmt"

	"github.com/scmtiles/scmtiles/internal/grid"
)

// State is a position in the per-cell run state machine.
type State int

const (
	StateInit State = iota
	StateStaged
	StateExecuted
	StateVerified
	StateArchived
	StateFailed
	StateCleaned
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStaged:
		return "staged"
	case StateExecuted:
		return "executed"
	case StateVerified:
		return "verified"
	case StateArchived:
		return "archived"
	case StateFailed:
		return "failed"
	case StateCleaned:
		return "cleaned"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FailureKind distinguishes which stage of the state machine failed.
type FailureKind int

const (
	FailStage FailureKind = iota
	FailExec
	FailVerify
	FailArchive
)

// String implements fmt.Stringer.
func (k FailureKind) String() string {
	switch k {
	case FailStage:
		return "stage"
	case FailExec:
		return "execute"
	case FailVerify:
		return "verify"
	case FailArchive:
		return "archive"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// RunError is a cell run failure tagged with the stage that produced it.
type RunError struct {
	Kind FailureKind
	Err  error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap supports errors.Is/As on the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

func failed(kind FailureKind, err error) *RunError {
	return &RunError{Kind: kind, Err: err}
}

// ArchiveRecord describes where a failed run's working directory and
// captured process output were preserved.
type ArchiveRecord struct {
	Dir    string
	Stdout string
	Stderr string
}

// RunResult is the outcome of one cell run. On success Outputs holds the
// archived file paths; on failure Err carries the tagged cause and, if
// archive retention is enabled, Archive points at the preserved run
// directory.
type RunResult struct {
	Cell    grid.Cell
	Outputs []string
	Err     error
	Archive *ArchiveRecord
}

// Failed reports whether the cell run produced no archived outputs.
func (r RunResult) Failed() bool {
	return r.Err != nil
}

// TileResult is the per-cell outcome of every cell in one tile.
type TileResult struct {
	Tile  *grid.Tile
	Cells []RunResult
}

// Succeeded counts the cells that archived outputs.
func (t *TileResult) Succeeded() int {
	n := 0
	for _, c := range t.Cells {
		if !c.Failed() {
			n++
		}
	}
	return n
}
