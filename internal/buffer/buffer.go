package buffer

import (
	"github.com/hupe1980/bkdgo/model"
)

// Status is the outcome of Insert.
type Status int

const (
	// Inserted means the point was stored.
	Inserted Status = iota
	// Duplicate means an equal point is already present; nothing changed.
	Duplicate
	// Full means the descent would exceed the slot bound; nothing changed.
	Full
)

func (s Status) String() string {
	switch s {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// DefaultSlotFactor bounds the slot array at DefaultSlotFactor*capacity.
const DefaultSlotFactor = 8

// Buffer is an implicit array kd-tree with a fixed point capacity.
type Buffer struct {
	id       model.SegmentID
	dims     int
	capacity int
	maxSlots int

	points []model.Point
	values []model.Value
	count  int

	byValue   map[model.Value]int
	slotLimit bool
}

// New creates an empty buffer for points of the given dimensionality.
func New(id model.SegmentID, dims, capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		id:       id,
		dims:     dims,
		capacity: capacity,
		maxSlots: DefaultSlotFactor * capacity,
		points:   make([]model.Point, 0, capacity),
		values:   make([]model.Value, 0, capacity),
		byValue:  make(map[model.Value]int, capacity),
	}
}

// ID returns the identifier the engine assigned to this buffer.
func (b *Buffer) ID() model.SegmentID { return b.id }

// Dims returns the dimensionality.
func (b *Buffer) Dims() int { return b.dims }

// Capacity returns the configured point capacity.
func (b *Buffer) Capacity() int { return b.capacity }

// Len returns the number of stored points.
func (b *Buffer) Len() int { return b.count }

// Slots returns the current length of the slot array.
func (b *Buffer) Slots() int { return len(b.points) }

// IsFull reports whether the buffer has reached capacity or its slot bound.
func (b *Buffer) IsFull() bool {
	return b.count >= b.capacity || b.slotLimit
}

// Insert places p with value v.
func (b *Buffer) Insert(p model.Point, v model.Value) Status {
	st := b.insert(p, v, true)
	if st == Full {
		b.slotLimit = true
	}
	return st
}

func (b *Buffer) insert(p model.Point, v model.Value, bounded bool) Status {
	i, depth := 0, 0
	for i < len(b.points) && b.points[i] != nil {
		cur := b.points[i]
		if cur.Equal(p) {
			return Duplicate
		}
		axis := depth % b.dims
		if p[axis] < cur[axis] {
			i = 2*i + 1
		} else {
			i = 2*i + 2
		}
		depth++
	}

	if bounded && i >= b.maxSlots {
		return Full
	}
	if i >= len(b.points) {
		b.grow(i + 1)
	}
	b.points[i] = p.Clone()
	b.values[i] = v
	b.byValue[v] = i
	b.count++
	return Inserted
}

func (b *Buffer) grow(n int) {
	if n <= cap(b.points) {
		b.points = b.points[:n]
		b.values = b.values[:n]
		return
	}
	newCap := max(2*cap(b.points), n)
	points := make([]model.Point, n, newCap)
	values := make([]model.Value, n, newCap)
	copy(points, b.points)
	copy(values, b.values)
	b.points = points
	b.values = values
}

// Layout returns a copy of the slot array; empty slots are nil.
func (b *Buffer) Layout() []model.Point {
	out := make([]model.Point, len(b.points))
	copy(out, b.points)
	return out
}

// Lookup returns the value stored at p.
func (b *Buffer) Lookup(p model.Point) (model.Value, bool) {
	i, depth := 0, 0
	for i < len(b.points) && b.points[i] != nil {
		cur := b.points[i]
		if cur.Equal(p) {
			return b.values[i], true
		}
		axis := depth % b.dims
		if p[axis] < cur[axis] {
			i = 2*i + 1
		} else {
			i = 2*i + 2
		}
		depth++
	}
	return 0, false
}

// Contains reports whether p is stored.
func (b *Buffer) Contains(p model.Point) bool {
	_, ok := b.Lookup(p)
	return ok
}

// HasValue reports whether some point carries v.
func (b *Buffer) HasValue(v model.Value) bool {
	_, ok := b.byValue[v]
	return ok
}

// Range calls fn for every entry inside box, pruning subtrees that cannot
// intersect it. Iteration stops when fn returns false.
func (b *Buffer) Range(box model.Box, fn func(model.Entry) bool) {
	if b.count == 0 {
		return
	}

	type frame struct{ slot, depth int }
	stack := []frame{{0, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.slot >= len(b.points) || b.points[f.slot] == nil {
			continue
		}

		p := b.points[f.slot]
		if box.Contains(p) {
			if !fn(model.Entry{Point: p, Value: b.values[f.slot]}) {
				return
			}
		}

		axis := f.depth % b.dims
		if box[axis].Max >= p[axis] {
			stack = append(stack, frame{2*f.slot + 2, f.depth + 1})
		}
		if box[axis].Min < p[axis] {
			stack = append(stack, frame{2*f.slot + 1, f.depth + 1})
		}
	}
}

// Entries returns all entries in slot order.
func (b *Buffer) Entries() []model.Entry {
	out := make([]model.Entry, 0, b.count)
	for i, p := range b.points {
		if p != nil {
			out = append(out, model.Entry{Point: p, Value: b.values[i]})
		}
	}
	return out
}

// Remove deletes the point carrying v and rebuilds the tree from the
// remaining entries in slot order.
func (b *Buffer) Remove(v model.Value) bool {
	slot, ok := b.byValue[v]
	if !ok {
		return false
	}

	remaining := make([]model.Entry, 0, b.count-1)
	for i, p := range b.points {
		if p != nil && i != slot {
			remaining = append(remaining, model.Entry{Point: p, Value: b.values[i]})
		}
	}

	b.Reset()
	for _, e := range remaining {
		b.insert(e.Point, e.Value, false)
	}
	if len(b.points) > b.maxSlots {
		b.slotLimit = true
	}
	return true
}

// Reset empties the buffer and keeps its allocations.
func (b *Buffer) Reset() {
	clear(b.points)
	b.points = b.points[:0]
	b.values = b.values[:0]
	b.count = 0
	b.slotLimit = false
	clear(b.byValue)
}

// Clone returns a deep copy safe to read while the original keeps changing.
func (b *Buffer) Clone() *Buffer {
	c := &Buffer{
		id:        b.id,
		dims:      b.dims,
		capacity:  b.capacity,
		maxSlots:  b.maxSlots,
		points:    make([]model.Point, len(b.points)),
		values:    make([]model.Value, len(b.values)),
		count:     b.count,
		byValue:   make(map[model.Value]int, len(b.byValue)),
		slotLimit: b.slotLimit,
	}
	// Stored points are never mutated in place, so sharing them is safe.
	copy(c.points, b.points)
	copy(c.values, b.values)
	for v, i := range b.byValue {
		c.byValue[v] = i
	}
	return c
}

// MemoryUsage estimates the heap bytes held by the buffer.
func (b *Buffer) MemoryUsage() int64 {
	const sliceHeader = 24
	slots := int64(cap(b.points)) * (sliceHeader + 8)
	points := int64(b.count) * int64(8*b.dims)
	index := int64(len(b.byValue)) * 32
	return slots + points + index
}
