// Package minio stores index blobs in MinIO or any other S3-compatible
// object store (Ceph, Garage, SeaweedFS) through the MinIO client.
//
//	store, err := minio.Dial("localhost:9000", "minioadmin", "minioadmin", "points", minio.WithPrefix("idx/"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := store.EnsureBucket(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	idx, err := bkdgo.Open(ctx, bkdgo.Remote(store))
//
// Unlike package s3 it needs no AWS configuration, which keeps air-gapped
// deployments simple.
package minio
