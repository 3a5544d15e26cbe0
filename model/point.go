package model

import (
	"fmt"
	"strings"
)

// SegmentID is the unique identifier for a segment within an engine.
type SegmentID uint64

// Value is the opaque identifier attached to a point at insertion time.
type Value uint64

// Point is an ordered tuple of integer coordinates.
type Point []int64

// Dims returns the dimensionality of the point.
func (p Point) Dims() int { return len(p) }

// Equal reports whether p and o are component-wise equal.
func (p Point) Equal(o Point) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Compare orders points lexicographically by coordinate.
func (p Point) Compare(o Point) int {
	n := min(len(p), len(o))
	for i := 0; i < n; i++ {
		switch {
		case p[i] < o[i]:
			return -1
		case p[i] > o[i]:
			return 1
		}
	}
	switch {
	case len(p) < len(o):
		return -1
	case len(p) > len(o):
		return 1
	}
	return 0
}

// Clone returns a copy of the point.
func (p Point) Clone() Point {
	if p == nil {
		return nil
	}
	c := make(Point, len(p))
	copy(c, p)
	return c
}

// String returns a string representation of the Point.
func (p Point) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, c := range p {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", c)
	}
	sb.WriteByte(')')
	return sb.String()
}

// Entry is a point with its attached value.
type Entry struct {
	Point Point
	Value Value
}

// String returns a string representation of the Entry.
func (e Entry) String() string {
	return fmt.Sprintf("%s=%d", e.Point, e.Value)
}
