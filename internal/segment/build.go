package segment

import (
	"fmt"

	"github.com/hupe1980/bkdgo/model"
)

// Tree is a bulk-loaded segment held in memory, ready to be written.
// Blocks are indexed by address; children always precede their parent, so
// the root is the last block.
type Tree struct {
	opts   Options
	blocks []Block
	root   Address
	count  int
	bbox   model.Box
}

// Options returns the parameters the tree was built with.
func (t *Tree) Options() Options { return t.opts }

// Blocks returns the blocks indexed by address.
func (t *Tree) Blocks() []Block { return t.blocks }

// Root returns the root address.
func (t *Tree) Root() Address { return t.root }

// Count returns the number of points.
func (t *Tree) Count() int { return t.count }

// BBox returns the bounding box of all points, or nil for an empty tree.
func (t *Tree) BBox() model.Box { return t.bbox }

// Block returns the block at addr.
func (t *Tree) Block(addr Address) (*Block, error) {
	if int(addr) >= len(t.blocks) {
		return nil, fmt.Errorf("%w: address %d out of range", ErrCorruptBlock, addr)
	}
	return &t.blocks[addr], nil
}

// Build bulk loads entries into a tree. Points must be distinct and have
// opts.Dims coordinates. The entries slice is reordered in place.
func Build(entries []model.Entry, opts Options) (*Tree, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if len(e.Point) != opts.Dims {
			return nil, fmt.Errorf("%w: point %v has %d dimensions, want %d", ErrInvalidOptions, e.Point, len(e.Point), opts.Dims)
		}
	}

	b := &builder{opts: opts}
	if len(entries) > 0 {
		b.blocks = make([]Block, 0, estimateBlocks(len(entries), opts))
	}
	root, err := b.build(entries, 0)
	if err != nil {
		return nil, err
	}

	return &Tree{
		opts:   opts,
		blocks: b.blocks,
		root:   root,
		count:  len(entries),
		bbox:   model.BoundingBox(entries),
	}, nil
}

func estimateBlocks(n int, opts Options) int {
	leaves := (n + opts.LeafCapacity - 1) / opts.LeafCapacity
	return leaves + leaves/(opts.Fanout-1) + 1
}

type builder struct {
	opts   Options
	blocks []Block
}

func (b *builder) emit(blk Block) Address {
	b.blocks = append(b.blocks, blk)
	return Address(len(b.blocks) - 1)
}

func (b *builder) build(entries []model.Entry, depth int) (Address, error) {
	if len(entries) <= b.opts.LeafCapacity {
		return b.emit(newLeaf(entries)), nil
	}

	axis, ok := b.chooseAxis(entries, depth)
	if !ok {
		return NoAddress, fmt.Errorf("%w: %d copies of %v", ErrDuplicatePoint, len(entries), entries[0].Point)
	}

	splits, bounds := partition(entries, axis, b.opts.Fanout)

	children := make([]Address, 0, len(bounds)+1)
	start := 0
	for _, end := range append(bounds, len(entries)) {
		addr, err := b.build(entries[start:end], depth+1)
		if err != nil {
			return NoAddress, err
		}
		children = append(children, addr)
		start = end
	}

	return b.emit(Block{Kind: KindInner, Splits: splits, Children: children}), nil
}

func newLeaf(entries []model.Entry) Block {
	blk := Block{
		Kind:   KindLeaf,
		Points: make([]model.Point, len(entries)),
		Values: make([]model.Value, len(entries)),
	}
	for i, e := range entries {
		blk.Points[i] = e.Point
		blk.Values[i] = e.Value
	}
	return blk
}

// chooseAxis returns a splitting axis on which the entries are not all equal.
func (b *builder) chooseAxis(entries []model.Entry, depth int) (int, bool) {
	k := b.opts.Dims
	if b.opts.SplitPolicy == MaxSpread {
		best, bestSpread := -1, uint64(0)
		for axis := 0; axis < k; axis++ {
			lo, hi := axisBounds(entries, axis)
			if spread := uint64(hi - lo); hi > lo && spread > bestSpread {
				best, bestSpread = axis, spread
			}
		}
		return best, best >= 0
	}

	for i := 0; i < k; i++ {
		axis := (depth + i) % k
		if lo, hi := axisBounds(entries, axis); lo < hi {
			return axis, true
		}
	}
	return -1, false
}

func axisBounds(entries []model.Entry, axis int) (lo, hi int64) {
	lo, hi = entries[0].Point[axis], entries[0].Point[axis]
	for _, e := range entries[1:] {
		c := e.Point[axis]
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	return lo, hi
}
