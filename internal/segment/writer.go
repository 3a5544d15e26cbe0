package segment

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/bkdgo/internal/hash"
	"github.com/hupe1980/bkdgo/model"
)

// Info summarizes a written segment.
type Info struct {
	ID         model.SegmentID
	Count      int
	BlockCount int
	Root       Address
	PageSize   int
	Size       int64
	BBox       model.Box
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Write serializes tree as segment id to w.
func Write(ctx context.Context, w io.Writer, id model.SegmentID, tree *Tree) (Info, error) {
	opts := tree.opts
	pageSize := opts.PageSize()

	bw := bufio.NewWriterSize(w, max(pageSize, 64*1024))
	cw := &countingWriter{w: bw}

	page := make([]byte, pageSize)
	for addr := range tree.blocks {
		if addr%64 == 0 {
			if err := ctx.Err(); err != nil {
				return Info{}, err
			}
		}
		clear(page)
		if err := encodePage(page, &tree.blocks[addr], opts.Dims); err != nil {
			return Info{}, fmt.Errorf("segment %d: block %d: %w", id, addr, err)
		}
		if _, err := cw.Write(page); err != nil {
			return Info{}, err
		}
	}

	records := collectValueRecords(tree.blocks)
	chunkData, chunks, err := encodeValueChunks(records, opts.Compression, uint64(cw.n))
	if err != nil {
		return Info{}, fmt.Errorf("segment %d: value index: %w", id, err)
	}
	if _, err := cw.Write(chunkData); err != nil {
		return Info{}, err
	}

	bloom := NewBloomFilter(tree.count, opts.BloomFPR)
	for i := range tree.blocks {
		for _, p := range tree.blocks[i].Points {
			bloom.Add(p)
		}
	}
	bloomData, err := bloom.MarshalBinary()
	if err != nil {
		return Info{}, fmt.Errorf("segment %d: bloom filter: %w", id, err)
	}
	bloomOffset := uint64(cw.n)
	if _, err := cw.Write(bloomData); err != nil {
		return Info{}, err
	}

	m := &meta{
		id:          id,
		dims:        opts.Dims,
		leafCap:     opts.LeafCapacity,
		fanout:      opts.Fanout,
		pageSize:    pageSize,
		blockCount:  uint32(len(tree.blocks)),
		root:        tree.root,
		count:       uint64(tree.count),
		compression: opts.Compression,
		splitPolicy: opts.SplitPolicy,
		bbox:        tree.bbox,
		chunks:      chunks,
		bloomOffset: bloomOffset,
		bloomLen:    uint32(len(bloomData)),
		bloomCRC:    hash.CRC32C(bloomData),
	}
	metaData := m.encode()
	metaOffset := uint64(cw.n)
	if _, err := cw.Write(metaData); err != nil {
		return Info{}, err
	}
	f := footer{metaOffset: metaOffset, metaLen: uint32(len(metaData)), metaCRC: hash.CRC32C(metaData)}
	if _, err := cw.Write(f.encode()); err != nil {
		return Info{}, err
	}
	if err := bw.Flush(); err != nil {
		return Info{}, err
	}

	return Info{
		ID:         id,
		Count:      tree.count,
		BlockCount: len(tree.blocks),
		Root:       tree.root,
		PageSize:   pageSize,
		Size:       cw.n,
		BBox:       tree.bbox,
	}, nil
}
