package cache

import (
	"context"

	"github.com/hupe1980/bkdgo/model"
)

// Kind separates key spaces within one cache.
type Kind uint8

const (
	KindUnknown    Kind = iota
	KindPage            // verified segment page
	KindValueChunk      // decompressed value-index chunk
)

// Key identifies a cached block. Keys must be stable for the lifetime of a segment.
type Key struct {
	Kind      Kind
	SegmentID model.SegmentID
	// Offset is a logical block identifier (page address or chunk index).
	Offset uint64
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	Get(ctx context.Context, key Key) ([]byte, bool)
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	Stats() (hits, misses int64)
}
