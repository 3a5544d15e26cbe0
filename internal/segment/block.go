package segment

import (
	"math"

	"github.com/hupe1980/bkdgo/model"
)

// Address identifies a block within a segment.
type Address uint32

// NoAddress marks the absence of a block.
const NoAddress Address = math.MaxUint32

// Kind tags the block variant.
type Kind uint8

const (
	KindLeaf  Kind = 1
	KindInner Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindInner:
		return "inner"
	default:
		return "unknown"
	}
}

// Split is a partition boundary: points with coordinate < Threshold on Axis
// belong to the lower child.
type Split struct {
	Axis      int
	Threshold int64
}

// Block is either a leaf (Points/Values) or an inner block (Splits/Children).
// Child i of an inner block holds the points p with
// Splits[i-1].Threshold <= p[axis] < Splits[i].Threshold.
type Block struct {
	Kind     Kind
	Splits   []Split
	Children []Address
	Points   []model.Point
	Values   []model.Value
}

// IsLeaf reports whether b is a leaf block.
func (b *Block) IsLeaf() bool { return b.Kind == KindLeaf }

// ChildIntersects reports whether child i can hold points inside box.
func (b *Block) ChildIntersects(i int, box model.Box) bool {
	if i > 0 {
		s := b.Splits[i-1]
		if box[s.Axis].Max < s.Threshold {
			return false
		}
	}
	if i < len(b.Splits) {
		s := b.Splits[i]
		if box[s.Axis].Min >= s.Threshold {
			return false
		}
	}
	return true
}

// indexOfValue returns the leaf slot holding v, or -1.
func (b *Block) indexOfValue(v model.Value) int {
	for i, x := range b.Values {
		if x == v {
			return i
		}
	}
	return -1
}

// indexOfPoint returns the leaf slot holding p, or -1.
func (b *Block) indexOfPoint(p model.Point) int {
	for i, x := range b.Points {
		if x.Equal(p) {
			return i
		}
	}
	return -1
}

// childFor returns the index of the child whose range contains p.
func (b *Block) childFor(p model.Point) int {
	i := 0
	for i < len(b.Splits) && p[b.Splits[i].Axis] >= b.Splits[i].Threshold {
		i++
	}
	return i
}
