package engine

import (
	"errors"
	"fmt"

	"github.com/hupe1980/bkdgo/model"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed engine.
	ErrClosed = errors.New("engine closed")

	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDimensionMismatch is returned when a point or an explicitly
	// configured dimensionality disagrees with the index.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrBackpressure is returned when too many frozen buffers wait for a merge.
	ErrBackpressure = errors.New("backpressure: too many buffers awaiting merge")

	// ErrMergeIO is returned when a merge fails to produce its replacement segment.
	ErrMergeIO = errors.New("merge I/O failure")
)

// DimensionError reports a dimensionality mismatch. It matches
// ErrDimensionMismatch.
type DimensionError struct {
	Expected int
	Actual   int
	What     string
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: %s has %d dimensions, index has %d", ErrDimensionMismatch, e.What, e.Actual, e.Expected)
}

// Is reports ErrDimensionMismatch as a match.
func (e *DimensionError) Is(target error) bool { return target == ErrDimensionMismatch }

// MergeStage names the step of a merge that failed.
type MergeStage uint8

const (
	// MergeStageRead covers the memory reservation and reading of the inputs.
	MergeStageRead MergeStage = iota
	// MergeStageBuild covers the bulk load of the surviving entries.
	MergeStageBuild
	// MergeStageWrite covers writing and reopening the replacement segment.
	MergeStageWrite
	// MergeStageCommit covers saving the manifest that names the replacement.
	MergeStageCommit
)

func (s MergeStage) String() string {
	switch s {
	case MergeStageRead:
		return "read"
	case MergeStageBuild:
		return "build"
	case MergeStageWrite:
		return "write"
	case MergeStageCommit:
		return "commit"
	default:
		return fmt.Sprintf("MergeStage(%d)", uint8(s))
	}
}

// MergeError describes a failed merge and unwraps to the underlying cause.
// It matches ErrMergeIO only when the replacement segment or its manifest
// could not be written.
type MergeError struct {
	SegmentID   model.SegmentID
	TargetLevel int
	Stage       MergeStage
	Err         error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge into level %d (segment %d) failed during %s: %v", e.TargetLevel, e.SegmentID, e.Stage, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// Is reports ErrMergeIO as a match for write and commit failures.
func (e *MergeError) Is(target error) bool {
	return target == ErrMergeIO && (e.Stage == MergeStageWrite || e.Stage == MergeStageCommit)
}
