package bkdgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/bkdgo/internal/engine"
	"github.com/hupe1980/bkdgo/internal/manifest"
	"github.com/hupe1980/bkdgo/internal/segment"
	"github.com/hupe1980/bkdgo/model"
)

var (
	// ErrDuplicatePoint is returned by Add when an entry with the same
	// point already exists.
	ErrDuplicatePoint = errors.New("duplicate point")

	// ErrNotFound is returned by Remove when no live entry carries the value.
	ErrNotFound = errors.New("not found")

	// ErrInvalidQueryBox is returned for boxes with min > max on some axis
	// or the wrong number of axes.
	ErrInvalidQueryBox = model.ErrInvalidBox

	// ErrCorruptBlock is returned when persisted data fails its integrity
	// or format checks.
	ErrCorruptBlock = segment.ErrCorruptBlock

	// ErrMergeIO is returned when a merge could not write its replacement
	// segment. The previous state is kept and the merge is retried.
	ErrMergeIO = engine.ErrMergeIO

	// ErrClosed is returned by operations on a closed index.
	ErrClosed = engine.ErrClosed

	// ErrInvalidArgument is returned for invalid configuration.
	ErrInvalidArgument = engine.ErrInvalidArgument

	// ErrBackpressure is returned when inserts outpace merges.
	ErrBackpressure = engine.ErrBackpressure

	// ErrIncompatibleFormat is returned when the stored manifest was written
	// by an unsupported format version.
	ErrIncompatibleFormat = manifest.ErrIncompatibleVersion
)

// CorruptBlockError locates a corrupt block.
type CorruptBlockError = segment.CorruptBlockError

// MergeError describes a failed merge. It matches ErrMergeIO when the
// replacement segment or manifest could not be written.
type MergeError = engine.MergeError

// MergeStage names the failing step of a merge.
type MergeStage = engine.MergeStage

// Merge stages reported by MergeError.
const (
	MergeStageRead   = engine.MergeStageRead
	MergeStageBuild  = engine.MergeStageBuild
	MergeStageWrite  = engine.MergeStageWrite
	MergeStageCommit = engine.MergeStageCommit
)

// ErrDimensionMismatch indicates a point or configuration whose
// dimensionality differs from the index.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var de *engine.DimensionError
	if errors.As(err, &de) {
		return &ErrDimensionMismatch{Expected: de.Expected, Actual: de.Actual, cause: err}
	}
	if errors.Is(err, manifest.ErrCorrupt) {
		return fmt.Errorf("%w: %w", ErrCorruptBlock, err)
	}
	return err
}
