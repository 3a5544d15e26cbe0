// Package bkdgo provides an embedded, log-structured index of
// multidimensional integer points.
//
// Each entry pairs a k-dimensional point of int64 coordinates with a uint64
// value. Exact-coordinate duplicates are rejected, values can be deleted,
// and axis-aligned range queries return every live entry inside a box.
//
// # Architecture
//
// New points go to an in-memory buffer organised as an implicit kd-tree.
// When the buffer fills up it is frozen and bulk loaded into an immutable,
// block-addressed KDB tree segment. Segments live in levels of geometrically
// growing capacity and are merged in a cascade, much like a binary counter,
// so every point is rewritten O(log n) times. Deletes are recorded as
// tombstones and purged when a merge rewrites the segment holding them.
//
// Queries run over a snapshot: a merge that completes while a cursor is
// open does not change what the cursor yields.
//
// # Quick Start
//
//	ctx := context.Background()
//	ix, err := bkdgo.Open(ctx, bkdgo.Local("./data"),
//	    bkdgo.WithDims(3),
//	    bkdgo.WithBufferCapacity(8192),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ix.Close(ctx)
//
//	inserted, err := ix.Insert(ctx, bkdgo.Point{10, 20, 30}, 42)
//
//	for e, err := range ix.Range(ctx, bkdgo.NewBox(bkdgo.Point{0, 0, 0}, bkdgo.Point{50, 50, 50})) {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(e.Point, e.Value)
//	}
//
// # Storage Backends
//
// Local stores segments as files (optionally memory mapped), InMemory keeps
// everything on the heap, and Remote accepts any blobstore.BlobStore such as
// the S3 and MinIO stores in blobstore/s3 and blobstore/minio:
//
//	store, err := s3.New(ctx, "my-bucket", s3.WithPrefix("points/"))
//	ix, err := bkdgo.Open(ctx, bkdgo.Remote(store))
//
// # Errors
//
// Duplicate inserts and deletes of unknown values are ordinary outcomes
// (Insert and Delete return false). Add and Remove turn them into
// ErrDuplicatePoint and ErrNotFound. Invalid query boxes fail with
// ErrInvalidQueryBox before any I/O, corrupt pages with ErrCorruptBlock and
// failed merges with ErrMergeIO; a failed merge keeps the previous state and
// is retried by the next flush.
package bkdgo
