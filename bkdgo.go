package bkdgo

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/hupe1980/bkdgo/blobstore"
	"github.com/hupe1980/bkdgo/internal/engine"
)

// Backend selects where an index stores its blobs.
type Backend interface {
	store(o options) (blobstore.BlobStore, error)
}

type backendFunc func(o options) (blobstore.BlobStore, error)

func (f backendFunc) store(o options) (blobstore.BlobStore, error) { return f(o) }

// Local stores the index as files in dir.
func Local(dir string) Backend {
	return backendFunc(func(o options) (blobstore.BlobStore, error) {
		if dir == "" {
			return nil, fmt.Errorf("%w: empty directory", ErrInvalidArgument)
		}
		return blobstore.NewLocalStore(dir, blobstore.WithMmap(o.mmap)), nil
	})
}

// Remote stores the index in an existing blob store, e.g. S3 or MinIO.
func Remote(store blobstore.BlobStore) Backend {
	return backendFunc(func(options) (blobstore.BlobStore, error) {
		if store == nil {
			return nil, fmt.Errorf("%w: nil blob store", ErrInvalidArgument)
		}
		return store, nil
	})
}

// InMemory keeps the index on the heap. Its content is lost on Close.
func InMemory() Backend {
	return backendFunc(func(options) (blobstore.BlobStore, error) {
		return blobstore.NewMemoryStore(), nil
	})
}

// Index is a multidimensional point index. It is safe for concurrent use.
type Index struct {
	eng     *engine.Engine
	logger  *Logger
	metrics MetricsCollector
}

// Open opens the index stored in backend, creating it if it does not exist.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Index, error) {
	o := applyOptions(opts)
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidArgument)
	}
	store, err := backend.store(o)
	if err != nil {
		return nil, err
	}

	eng, err := engine.Open(ctx, store, o.cfg, o.engineOptions()...)
	if err != nil {
		return nil, translateError(err)
	}
	return &Index{
		eng:     eng,
		logger:  o.logger.WithDims(eng.Dims()),
		metrics: o.metricsCollector,
	}, nil
}

// Dims returns the number of dimensions.
func (ix *Index) Dims() int { return ix.eng.Dims() }

// Insert adds (p, v). It returns false without error when an entry with
// the same point already exists.
func (ix *Index) Insert(ctx context.Context, p Point, v Value) (bool, error) {
	start := time.Now()
	ok, err := ix.eng.Insert(ctx, p, v)
	err = translateError(err)
	ix.metrics.RecordInsert(time.Since(start), err == nil && !ok, err)
	ix.logger.LogInsert(ctx, v, ok, err)
	return ok, err
}

// Add is like Insert but reports a duplicate point as ErrDuplicatePoint.
func (ix *Index) Add(ctx context.Context, p Point, v Value) error {
	ok, err := ix.Insert(ctx, p, v)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePoint, p)
	}
	return nil
}

// Delete removes every live entry carrying v and reports whether one was found.
func (ix *Index) Delete(ctx context.Context, v Value) (bool, error) {
	start := time.Now()
	found, err := ix.eng.Delete(ctx, v)
	err = translateError(err)
	ix.metrics.RecordDelete(time.Since(start), found, err)
	ix.logger.LogDelete(ctx, v, found, err)
	return found, err
}

// Remove is like Delete but reports a missing value as ErrNotFound.
func (ix *Index) Remove(ctx context.Context, v Value) error {
	found, err := ix.Delete(ctx, v)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: value %d", ErrNotFound, v)
	}
	return nil
}

// Cursor iterates the results of a query over the snapshot taken when the
// query was issued. It may be iterated repeatedly and must be closed.
type Cursor struct {
	c *engine.Cursor
}

// All yields every live entry inside the query box. Iteration stops at
// the first error.
func (c *Cursor) All(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for e, err := range c.c.All(ctx) {
			if !yield(e, translateError(err)) || err != nil {
				return
			}
		}
	}
}

// Collect returns all results.
func (c *Cursor) Collect(ctx context.Context) ([]Entry, error) {
	out, err := c.c.Collect(ctx)
	return out, translateError(err)
}

// Close releases the snapshot.
func (c *Cursor) Close() error { return c.c.Close() }

// Query returns a cursor over every live entry inside box. Invalid boxes
// fail with ErrInvalidQueryBox before any I/O.
func (ix *Index) Query(ctx context.Context, box Box) (*Cursor, error) {
	c, err := ix.eng.Query(ctx, box)
	if err != nil {
		err = translateError(err)
		ix.logger.LogQuery(ctx, box, 0, err)
		return nil, err
	}
	return &Cursor{c: c}, nil
}

// Range is a single-pass form of Query that releases its snapshot when
// iteration ends.
func (ix *Index) Range(ctx context.Context, box Box) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		c, err := ix.Query(ctx, box)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		defer c.Close()
		for e, err := range c.All(ctx) {
			if !yield(e, err) {
				return
			}
		}
	}
}

// QueryAll returns every live entry inside box.
func (ix *Index) QueryAll(ctx context.Context, box Box) ([]Entry, error) {
	c, err := ix.Query(ctx, box)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	out, err := c.Collect(ctx)
	ix.logger.LogQuery(ctx, box, len(out), err)
	return out, err
}

// Len returns the number of live entries.
func (ix *Index) Len() int { return ix.eng.Count() }

// Count returns the number of live entries inside box.
func (ix *Index) Count(ctx context.Context, box Box) (int, error) {
	n, err := ix.eng.CountBox(ctx, box)
	return n, translateError(err)
}

// Flush writes the in-memory buffer to a segment and completes all pending
// merges. After a failed merge (ErrMergeIO) Flush retries it.
func (ix *Index) Flush(ctx context.Context) error {
	start := time.Now()
	err := translateError(ix.eng.Flush(ctx))
	ix.logger.LogFlush(ctx, time.Since(start), err)
	return err
}

// Check verifies the structure and checksums of every segment.
func (ix *Index) Check(ctx context.Context) error {
	return translateError(ix.eng.Check(ctx))
}

// LevelStats describes one level.
type LevelStats = engine.LevelStats

// LevelState is the lifecycle state of a level.
type LevelState = engine.LevelState

const (
	LevelEmpty    = engine.LevelEmpty
	LevelOccupied = engine.LevelOccupied
	LevelMerging  = engine.LevelMerging
)

// Stats is a point-in-time summary of an index.
type Stats = engine.Stats

// Stats returns a summary of buffers, levels and merges.
func (ix *Index) Stats() Stats { return ix.eng.Stats() }

// Close flushes the buffer, waits for background merges and releases all
// resources. Open cursors stay valid until closed.
func (ix *Index) Close(ctx context.Context) error {
	return translateError(ix.eng.Close(ctx))
}
