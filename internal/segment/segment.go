package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync/atomic"

	"github.com/hupe1980/bkdgo/blobstore"
	"github.com/hupe1980/bkdgo/internal/cache"
	"github.com/hupe1980/bkdgo/internal/hash"
	"github.com/hupe1980/bkdgo/model"
)

// Segment is a read-only handle to a persisted tree. It is safe for
// concurrent use.
type Segment struct {
	id    model.SegmentID
	blob  blobstore.Blob
	data  []byte
	meta  *meta
	bloom *BloomFilter
	cache cache.BlockCache

	closed atomic.Bool
}

// Option configures a Segment.
type Option func(*Segment)

// WithBlockCache caches verified pages and decoded value chunks.
func WithBlockCache(c cache.BlockCache) Option {
	return func(s *Segment) { s.cache = c }
}

// Open reads the footer, meta section and bloom filter of blob. The segment
// takes ownership of blob and closes it on Close.
func Open(ctx context.Context, id model.SegmentID, blob blobstore.Blob, opts ...Option) (*Segment, error) {
	s := &Segment{id: id, blob: blob}
	for _, opt := range opts {
		opt(s)
	}
	if m, ok := blob.(blobstore.Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		s.data = data
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Segment) load(ctx context.Context) error {
	size := s.blob.Size()
	if size < footerSize {
		return corruptf(s.id, NoAddress, "blob of %d bytes is shorter than the footer", size)
	}

	fbuf, err := s.readAt(ctx, size-footerSize, footerSize)
	if err != nil {
		return err
	}
	f, err := decodeFooter(fbuf)
	if err != nil {
		return corruptf(s.id, NoAddress, "footer: %v", err)
	}
	if f.metaOffset+uint64(f.metaLen)+footerSize != uint64(size) {
		return corruptf(s.id, NoAddress, "meta [%d, +%d) does not end at footer", f.metaOffset, f.metaLen)
	}

	mbuf, err := s.readAt(ctx, int64(f.metaOffset), int(f.metaLen))
	if err != nil {
		return err
	}
	if crc := hash.CRC32C(mbuf); crc != f.metaCRC {
		return corruptf(s.id, NoAddress, "meta checksum mismatch: stored %08x, computed %08x", f.metaCRC, crc)
	}
	m, err := decodeMeta(mbuf)
	if err != nil {
		return corruptf(s.id, NoAddress, "meta: %v", err)
	}
	if m.id != s.id {
		return corruptf(s.id, NoAddress, "blob belongs to segment %d", m.id)
	}

	pagesEnd := uint64(m.blockCount) * uint64(m.pageSize)
	if pagesEnd > m.bloomOffset || m.bloomOffset+uint64(m.bloomLen) > f.metaOffset {
		return corruptf(s.id, NoAddress, "section offsets overlap")
	}
	for i, c := range m.chunks {
		if c.offset < pagesEnd || c.offset+uint64(c.length) > m.bloomOffset {
			return corruptf(s.id, NoAddress, "value chunk %d outside its section", i)
		}
	}

	bbuf, err := s.readAt(ctx, int64(m.bloomOffset), int(m.bloomLen))
	if err != nil {
		return err
	}
	if crc := hash.CRC32C(bbuf); crc != m.bloomCRC {
		return corruptf(s.id, NoAddress, "bloom checksum mismatch")
	}
	bloom := &BloomFilter{}
	if err := bloom.UnmarshalBinary(bbuf); err != nil {
		return corruptf(s.id, NoAddress, "bloom: %v", err)
	}

	s.meta = m
	s.bloom = bloom
	return nil
}

// readAt returns n bytes at off. Short blobs are reported as corruption.
func (s *Segment) readAt(ctx context.Context, off int64, n int) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.data != nil {
		if off < 0 || off+int64(n) > int64(len(s.data)) {
			return nil, corruptf(s.id, NoAddress, "read [%d, +%d) beyond blob of %d bytes", off, n, len(s.data))
		}
		return s.data[off : off+int64(n)], nil
	}

	buf := make([]byte, n)
	read, err := s.blob.ReadAt(ctx, buf, off)
	if read == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, corruptf(s.id, NoAddress, "truncated read at %d: got %d of %d bytes", off, read, n)
	}
	return nil, err
}

// ID returns the segment identifier.
func (s *Segment) ID() model.SegmentID { return s.id }

// Count returns the number of points.
func (s *Segment) Count() int { return int(s.meta.count) }

// Dims returns the dimensionality.
func (s *Segment) Dims() int { return s.meta.dims }

// BBox returns the bounding box of all points, or nil if the segment is empty.
func (s *Segment) BBox() model.Box { return s.meta.bbox }

// Root returns the root block address.
func (s *Segment) Root() Address { return s.meta.root }

// BlockCount returns the number of pages.
func (s *Segment) BlockCount() int { return int(s.meta.blockCount) }

// PageSize returns the fixed page size.
func (s *Segment) PageSize() int { return s.meta.pageSize }

// Size returns the blob size in bytes.
func (s *Segment) Size() int64 { return s.blob.Size() }

// Options returns the parameters the segment was built with.
func (s *Segment) Options() Options {
	return Options{
		Dims:         s.meta.dims,
		LeafCapacity: s.meta.leafCap,
		Fanout:       s.meta.fanout,
		SplitPolicy:  s.meta.splitPolicy,
		Compression:  s.meta.compression,
	}
}

// Close releases the blob.
func (s *Segment) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.data = nil
	return s.blob.Close()
}

func (s *Segment) page(ctx context.Context, addr Address) ([]byte, error) {
	if addr >= Address(s.meta.blockCount) {
		return nil, corruptf(s.id, addr, "address beyond %d blocks", s.meta.blockCount)
	}
	key := cache.Key{Kind: cache.KindPage, SegmentID: s.id, Offset: uint64(addr)}
	if s.cache != nil {
		if b, ok := s.cache.Get(ctx, key); ok {
			return b, nil
		}
	}

	raw, err := s.readAt(ctx, int64(addr)*int64(s.meta.pageSize), s.meta.pageSize)
	if err != nil {
		var cbe *CorruptBlockError
		if errors.As(err, &cbe) {
			cbe.Address = addr
		}
		return nil, err
	}
	if err := verifyPage(raw); err != nil {
		return nil, corruptf(s.id, addr, "%v", err)
	}
	if s.cache != nil {
		cp := make([]byte, len(raw))
		copy(cp, raw)
		s.cache.Set(ctx, key, cp)
		return cp, nil
	}
	return raw, nil
}

// ReadBlock loads and decodes the block at addr.
func (s *Segment) ReadBlock(ctx context.Context, addr Address) (*Block, error) {
	raw, err := s.page(ctx, addr)
	if err != nil {
		return nil, err
	}
	blk, err := decodePage(raw, s.meta.dims)
	if err != nil {
		return nil, corruptf(s.id, addr, "%v", err)
	}
	if blk.IsLeaf() && len(blk.Points) > s.meta.leafCap {
		return nil, corruptf(s.id, addr, "leaf holds %d points, capacity %d", len(blk.Points), s.meta.leafCap)
	}
	if !blk.IsLeaf() {
		if len(blk.Children) > s.meta.fanout {
			return nil, corruptf(s.id, addr, "inner block has %d children, fanout %d", len(blk.Children), s.meta.fanout)
		}
		// Children are written before their parent.
		for _, child := range blk.Children {
			if child >= addr {
				return nil, corruptf(s.id, addr, "child address %d not below parent", child)
			}
		}
	}
	return blk, nil
}

// RangeQuery lazily yields every entry inside box. Blocks are read only when
// the traversal reaches them, and each call starts a fresh traversal. The
// first error ends the sequence.
func (s *Segment) RangeQuery(ctx context.Context, box model.Box) iter.Seq2[model.Entry, error] {
	return func(yield func(model.Entry, error) bool) {
		if s.meta.count == 0 || !s.meta.bbox.Intersects(box) {
			return
		}

		stack := []Address{s.meta.root}
		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				yield(model.Entry{}, err)
				return
			}
			addr := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			blk, err := s.ReadBlock(ctx, addr)
			if err != nil {
				yield(model.Entry{}, err)
				return
			}

			if blk.IsLeaf() {
				for i, p := range blk.Points {
					if box.Contains(p) {
						if !yield(model.Entry{Point: p, Value: blk.Values[i]}, nil) {
							return
						}
					}
				}
				continue
			}
			// Reverse push keeps children in ascending order.
			for i := len(blk.Children) - 1; i >= 0; i-- {
				if blk.ChildIntersects(i, box) {
					stack = append(stack, blk.Children[i])
				}
			}
		}
	}
}

// Scan yields every entry of the segment.
func (s *Segment) Scan(ctx context.Context) iter.Seq2[model.Entry, error] {
	return s.RangeQuery(ctx, model.FullBox(s.meta.dims))
}

// MayContain consults the bounding box and bloom filter.
func (s *Segment) MayContain(p model.Point) bool {
	if len(p) != s.meta.dims || s.meta.count == 0 || !s.meta.bbox.Contains(p) {
		return false
	}
	return s.bloom.MayContain(p)
}

// Get returns the value stored at p.
func (s *Segment) Get(ctx context.Context, p model.Point) (model.Value, bool, error) {
	if !s.MayContain(p) {
		return 0, false, nil
	}

	addr := s.meta.root
	for depth := 0; ; depth++ {
		if depth > int(s.meta.blockCount) {
			return 0, false, corruptf(s.id, addr, "cycle in block graph")
		}
		blk, err := s.ReadBlock(ctx, addr)
		if err != nil {
			return 0, false, err
		}
		if blk.IsLeaf() {
			if i := blk.indexOfPoint(p); i >= 0 {
				return blk.Values[i], true, nil
			}
			return 0, false, nil
		}
		addr = blk.Children[blk.childFor(p)]
	}
}

// FindValue returns the point carrying v via the value index.
func (s *Segment) FindValue(ctx context.Context, v model.Value) (model.Point, bool, error) {
	ci := findChunk(s.meta.chunks, v)
	if ci < 0 {
		return nil, false, nil
	}
	raw, err := s.valueChunk(ctx, ci)
	if err != nil {
		return nil, false, err
	}
	leaf, ok := searchValueChunk(raw, v)
	if !ok {
		return nil, false, nil
	}

	blk, err := s.ReadBlock(ctx, leaf)
	if err != nil {
		return nil, false, err
	}
	i := -1
	if blk.IsLeaf() {
		i = blk.indexOfValue(v)
	}
	if i < 0 {
		return nil, false, corruptf(s.id, leaf, "value index points to a block without value %d", v)
	}
	return blk.Points[i], true, nil
}

func (s *Segment) valueChunk(ctx context.Context, i int) ([]byte, error) {
	key := cache.Key{Kind: cache.KindValueChunk, SegmentID: s.id, Offset: uint64(i)}
	if s.cache != nil {
		if b, ok := s.cache.Get(ctx, key); ok {
			return b, nil
		}
	}

	ref := s.meta.chunks[i]
	block, err := s.readAt(ctx, int64(ref.offset), int(ref.length))
	if err != nil {
		return nil, err
	}
	if crc := hash.CRC32C(block); crc != ref.crc {
		return nil, corruptf(s.id, NoAddress, "value chunk %d checksum mismatch", i)
	}
	raw, err := decodeValueChunk(block, s.meta.compression)
	if err != nil {
		return nil, corruptf(s.id, NoAddress, "value chunk %d: %v", i, err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, raw)
	}
	return raw, nil
}

// Validate walks every block and checks the structural invariants.
func (s *Segment) Validate(ctx context.Context) error {
	if err := validateTree(ctx, s.id, s.ReadBlock, treeShape{
		root:       s.meta.root,
		blockCount: int(s.meta.blockCount),
		count:      int(s.meta.count),
		dims:       s.meta.dims,
		leafCap:    s.meta.leafCap,
		fanout:     s.meta.fanout,
		bbox:       s.meta.bbox,
	}); err != nil {
		return err
	}

	// Every value must round-trip through the value index.
	seen := 0
	for ci := range s.meta.chunks {
		raw, err := s.valueChunk(ctx, ci)
		if err != nil {
			return err
		}
		seen += len(raw) / valueRecordSize
	}
	if seen != int(s.meta.count) {
		return corruptf(s.id, NoAddress, "value index holds %d records for %d points", seen, s.meta.count)
	}
	return nil
}

func (s *Segment) String() string {
	return fmt.Sprintf("segment(%d, points=%d, blocks=%d)", s.id, s.meta.count, s.meta.blockCount)
}
