// Package segment implements the immutable, block-addressed KDB tree that
// holds every point that left the write buffer.
//
// A segment is bulk loaded once from an in-memory point set (Build), written
// to a blob (Write) and then only read (Open). Blocks are either leaves, which
// store up to LeafCapacity points with their values, or inner blocks, which
// partition their points into at most Fanout children along one axis.
//
// # Blob Layout
//
//	+-------------------+  offset 0
//	| page 0            |  PageSize bytes each, address * PageSize
//	| page 1            |
//	| ...               |
//	+-------------------+
//	| value index       |  compressed chunks of (value, leaf address)
//	+-------------------+
//	| bloom filter      |  point membership
//	+-------------------+
//	| meta              |  dimensions, root, bbox, chunk directory
//	+-------------------+
//	| footer (32 bytes) |  meta offset/len/crc, magic, version
//	+-------------------+
//
// Every page carries a CRC32C. A page that fails its checksum, declares an
// impossible shape or lies beyond the block count is reported as
// ErrCorruptBlock; it is never treated as empty.
package segment
