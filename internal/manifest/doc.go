// Package manifest persists the level layout of an index atomically.
//
// # Overview
//
// A manifest records the index configuration (dimensions, buffer capacity,
// leaf capacity, fanout, growth factor, split policy, compression) and, for
// every occupied level, the segment that lives there. A level missing from
// the manifest is empty. The MERGING state is never persisted: a merge that
// did not commit leaves no trace in the manifest.
//
// # Binary Format
//
//	Header (16 bytes):
//	  Magic    (4 bytes) - 0x42444B4D ("BDKM")
//	  Version  (4 bytes) - Format version (currently 1)
//	  Checksum (4 bytes) - CRC32C of payload
//	  Length   (4 bytes) - Payload length in bytes
//
//	Payload:
//	  ID, CreatedAt, IndexID (16 bytes), configuration
//	  NextSegmentID
//	  NumLevels (4 bytes) + LevelInfo[]
//	  Tombstones.Path (string)
//
// Strings are length-prefixed (2-byte length + bytes).
//
// # Atomic Protocol
//
//  1. Write the manifest blob to MANIFEST-NNNNNN.bin
//  2. Point CURRENT at the new file
//
// CURRENT is replaced atomically by every blob store (rename on local disk,
// strongly consistent overwrite or DynamoDB conditional write on S3), so a
// reader sees either the previous or the new manifest.
//
// All Store methods are safe for concurrent use.
package manifest
