// Package blobstore is the storage abstraction for segments, manifests and
// tombstone files.
//
// Every persisted artifact of an index is a named, immutable blob. Segments
// are streamed through Create and become visible on Close; manifests and the
// CURRENT pointer are written with Put, which must be atomic. Implementations
// must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local directory, temp-file + rename writes, mmap reads
//   - MemoryStore: in-process map, for tests and ephemeral indexes
//   - s3.Store / s3.DDBCommitStore: Amazon S3, optionally with DynamoDB commits
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Open must return an error satisfying errors.Is(err, ErrNotFound) for a
// missing blob; Delete of a missing blob is not an error.
package blobstore
