// Package s3 stores index blobs in Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("indexes/points/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//	idx, err := bkdgo.Open(ctx, bkdgo.Remote(store), bkdgo.WithDimensions(3))
//
// Segments are streamed through the multipart uploader, pages are fetched
// with ranged GETs, and small blobs (manifests, tombstones) are written with
// a single PutObject carrying a CRC32C checksum.
//
// S3 overwrites are strongly consistent, but two writers racing on CURRENT
// would silently lose a commit. DDBCommitStore routes the CURRENT pointer
// through a DynamoDB conditional write instead, turning a lost race into
// ErrConcurrentModification.
package s3
