// Package hash provides the checksums and hashes used by the on-disk formats.
//
// # CRC32-Castagnoli (CRC32C)
//
// Every segment page, segment footer and tombstone file is protected by a
// CRC32C checksum. Go's crc32 package uses SSE4.2 / ARM CRC instructions when
// available.
//
//	checksum := hash.CRC32C(page[4:])
//
// # Point hashing
//
// PointHash derives two 64-bit hashes from a point for double hashing in the
// segment bloom filter. The hash is stable across processes and platforms
// because bloom filters are persisted.
package hash
