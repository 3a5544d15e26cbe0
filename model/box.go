package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBox is returned by Box.Validate for malformed bounds.
var ErrInvalidBox = errors.New("invalid box")

// Range is an inclusive interval [Min, Max] on one axis.
type Range struct {
	Min int64
	Max int64
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v int64) bool {
	return v >= r.Min && v <= r.Max
}

// Intersects reports whether two ranges overlap.
func (r Range) Intersects(o Range) bool {
	return r.Min <= o.Max && o.Min <= r.Max
}

// Box is an axis-aligned, inclusive query box: one Range per dimension.
type Box []Range

// NewBox builds a box from parallel min/max corner points.
func NewBox(lo, hi Point) Box {
	b := make(Box, len(lo))
	for i := range lo {
		b[i] = Range{Min: lo[i], Max: hi[i]}
	}
	return b
}

// FullBox returns the box covering the whole coordinate space in k dimensions.
func FullBox(k int) Box {
	b := make(Box, k)
	for i := range b {
		b[i] = Range{Min: math.MinInt64, Max: math.MaxInt64}
	}
	return b
}

// Dims returns the dimensionality of the box.
func (b Box) Dims() int { return len(b) }

// Validate checks that the box has k dimensions and that no axis has Min > Max.
func (b Box) Validate(k int) error {
	if len(b) != k {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalidBox, k, len(b))
	}
	for axis, r := range b {
		if r.Min > r.Max {
			return fmt.Errorf("%w: axis %d has min %d > max %d", ErrInvalidBox, axis, r.Min, r.Max)
		}
	}
	return nil
}

// Contains reports whether every coordinate of p lies within the box.
func (b Box) Contains(p Point) bool {
	if len(p) != len(b) {
		return false
	}
	for i, r := range b {
		if !r.Contains(p[i]) {
			return false
		}
	}
	return true
}

// Intersects reports whether the two boxes overlap on every axis.
func (b Box) Intersects(o Box) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if !b[i].Intersects(o[i]) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the box.
func (b Box) Clone() Box {
	if b == nil {
		return nil
	}
	c := make(Box, len(b))
	copy(c, b)
	return c
}

// Extend grows the box to include p. A nil box becomes the degenerate box at p.
func (b Box) Extend(p Point) Box {
	if b == nil {
		b = make(Box, len(p))
		for i, c := range p {
			b[i] = Range{Min: c, Max: c}
		}
		return b
	}
	for i, c := range p {
		if c < b[i].Min {
			b[i].Min = c
		}
		if c > b[i].Max {
			b[i].Max = c
		}
	}
	return b
}

// BoundingBox returns the smallest box containing all entries, or nil if there are none.
func BoundingBox(entries []Entry) Box {
	var b Box
	for _, e := range entries {
		b = b.Extend(e.Point)
	}
	return b
}
