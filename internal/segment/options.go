package segment

import (
	"fmt"
	"math"

	"github.com/hupe1980/bkdgo/internal/compress"
)

// SplitPolicy selects the partitioning axis of an inner block.
type SplitPolicy uint8

const (
	// RoundRobin cycles through axes by depth. Tree shape does not depend on
	// the data distribution.
	RoundRobin SplitPolicy = iota
	// MaxSpread picks the axis with the largest coordinate range.
	MaxSpread
)

func (p SplitPolicy) String() string {
	switch p {
	case RoundRobin:
		return "round-robin"
	case MaxSpread:
		return "max-spread"
	default:
		return fmt.Sprintf("SplitPolicy(%d)", uint8(p))
	}
}

const (
	// MaxDims is the largest supported dimensionality.
	MaxDims = 1024
	// MaxLeafCapacity bounds B so the page count fits the header.
	MaxLeafCapacity = math.MaxUint16
	// MaxFanout bounds F so the child count fits the header.
	MaxFanout = math.MaxUint16

	DefaultLeafCapacity = 128
	DefaultFanout       = 16
	DefaultBloomFPR     = 0.01

	pageAlign = 512
)

// Options are the bulk-load parameters of a segment.
type Options struct {
	Dims         int
	LeafCapacity int // B
	Fanout       int // F
	SplitPolicy  SplitPolicy
	Compression  compress.Type
	// BloomFPR is the target false-positive rate of the point filter.
	BloomFPR float64
}

// DefaultOptions returns the recommended parameters for dims dimensions.
func DefaultOptions(dims int) Options {
	return Options{
		Dims:         dims,
		LeafCapacity: DefaultLeafCapacity,
		Fanout:       DefaultFanout,
		SplitPolicy:  RoundRobin,
		Compression:  compress.LZ4,
		BloomFPR:     DefaultBloomFPR,
	}
}

// Validate checks the parameters.
func (o Options) Validate() error {
	switch {
	case o.Dims < 1 || o.Dims > MaxDims:
		return fmt.Errorf("%w: dims %d out of range [1, %d]", ErrInvalidOptions, o.Dims, MaxDims)
	case o.LeafCapacity < 1 || o.LeafCapacity > MaxLeafCapacity:
		return fmt.Errorf("%w: leaf capacity %d out of range [1, %d]", ErrInvalidOptions, o.LeafCapacity, MaxLeafCapacity)
	case o.Fanout < 2 || o.Fanout > MaxFanout:
		return fmt.Errorf("%w: fanout %d out of range [2, %d]", ErrInvalidOptions, o.Fanout, MaxFanout)
	case o.SplitPolicy > MaxSpread:
		return fmt.Errorf("%w: unknown split policy %d", ErrInvalidOptions, o.SplitPolicy)
	case !o.Compression.Valid():
		return fmt.Errorf("%w: unknown compression %d", ErrInvalidOptions, o.Compression)
	}
	return nil
}

// PageSize returns the fixed size of every persisted block.
func (o Options) PageSize() int {
	return PageSize(o.Dims, o.LeafCapacity, o.Fanout)
}

// PageSize returns the page size that fits a full leaf of leafCap points in
// dims dimensions or a full inner block of fanout children, rounded up to 512.
func PageSize(dims, leafCap, fanout int) int {
	leaf := leafCap * leafEntrySize(dims)
	inner := (fanout-1)*splitSize + fanout*childSize
	n := pageHeaderSize + max(leaf, inner)
	return (n + pageAlign - 1) / pageAlign * pageAlign
}
