package bkdgo

import (
	"github.com/hupe1980/bkdgo/internal/compress"
	"github.com/hupe1980/bkdgo/internal/segment"
	"github.com/hupe1980/bkdgo/model"
)

type (
	// Point is a k-dimensional point.
	Point = model.Point
	// Value is the payload stored with a point.
	Value = model.Value
	// Entry is a point with its value.
	Entry = model.Entry
	// Range is a closed interval on one axis.
	Range = model.Range
	// Box is an axis-aligned query box, one Range per axis.
	Box = model.Box
)

// NewBox returns the box spanning lo and hi.
func NewBox(lo, hi Point) Box { return model.NewBox(lo, hi) }

// FullBox returns the box covering the whole k-dimensional space.
func FullBox(k int) Box { return model.FullBox(k) }

// SplitPolicy selects the split axis of inner segment blocks.
type SplitPolicy = segment.SplitPolicy

const (
	// RoundRobin cycles through the axes by depth.
	RoundRobin = segment.RoundRobin
	// MaxSpread splits on the axis with the widest coordinate range.
	MaxSpread = segment.MaxSpread
)

// Compression selects the codec of value-index chunks and tombstone files.
type Compression = compress.Type

const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)
