package segment

import (
	"errors"
	"fmt"

	"github.com/hupe1980/bkdgo/model"
)

var (
	// ErrCorruptBlock is returned when persisted data fails an integrity or format check.
	ErrCorruptBlock = errors.New("segment: corrupt block")

	// ErrInvalidOptions is returned for unusable build parameters.
	ErrInvalidOptions = errors.New("segment: invalid options")

	// ErrDuplicatePoint is returned by Build when the input holds equal points
	// that cannot be separated.
	ErrDuplicatePoint = errors.New("segment: duplicate point")

	// ErrClosed is returned when reading from a closed segment.
	ErrClosed = errors.New("segment: closed")
)

// CorruptBlockError describes where corruption was detected.
type CorruptBlockError struct {
	Segment model.SegmentID
	// Address is the block address, or NoAddress for non-page sections.
	Address Address
	Reason  string
}

func (e *CorruptBlockError) Error() string {
	if e.Address == NoAddress {
		return fmt.Sprintf("segment %d: corrupt block: %s", e.Segment, e.Reason)
	}
	return fmt.Sprintf("segment %d: corrupt block %d: %s", e.Segment, e.Address, e.Reason)
}

func (e *CorruptBlockError) Unwrap() error { return ErrCorruptBlock }

func corruptf(seg model.SegmentID, addr Address, format string, args ...any) error {
	return &CorruptBlockError{Segment: seg, Address: addr, Reason: fmt.Sprintf(format, args...)}
}
