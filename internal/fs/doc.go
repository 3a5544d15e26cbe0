// Package fs abstracts the local file system used by blobstore.LocalStore so
// that segment writes, manifest swaps and directory syncs can be failed on
// purpose in tests.
//
//   - [LocalFS]: production implementation backed by the os package
//   - [FaultyFS]: wraps another FileSystem and injects write, sync or close failures
//
// Tests inject a FaultyFS to simulate an I/O failure in the middle of a merge:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("segment-", fs.Fault{FailAfterBytes: 4096})
//	store := blobstore.NewLocalStore(dir, blobstore.WithFileSystem(ffs))
//
// Operations take no context.Context: local syscalls are not interruptible.
package fs
