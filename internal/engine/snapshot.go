package engine

import (
	"context"
	"iter"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/bkdgo/internal/buffer"
	"github.com/hupe1980/bkdgo/model"
)

type bufferView struct {
	buf  *buffer.Buffer
	dead *roaring64.Bitmap
}

type segmentView struct {
	level int
	seg   *RefCountedSegment
	dead  *roaring64.Bitmap
}

// snapshot is a consistent, immutable view of the index.
type snapshot struct {
	active   *buffer.Buffer
	frozen   []bufferView // newest first
	segments []segmentView
	released atomic.Bool
}

func (s *snapshot) release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	for _, v := range s.segments {
		v.seg.DecRef()
	}
}

func isDead(dead *roaring64.Bitmap, v model.Value) bool {
	return dead != nil && dead.Contains(uint64(v))
}

// Cursor iterates the results of a range query over a fixed snapshot.
// Iteration may be stopped and restarted; every pass observes the same
// entries. A Cursor must be closed to release its segments.
type Cursor struct {
	snap    *snapshot
	box     model.Box
	metrics MetricsObserver
	closed  atomic.Bool
}

// Box returns the query box.
func (c *Cursor) Box() model.Box { return c.box }

// All yields every live entry inside the box: the active buffer first,
// then frozen buffers newest first, then levels in ascending order.
func (c *Cursor) All(ctx context.Context) iter.Seq2[model.Entry, error] {
	return func(yield func(model.Entry, error) bool) {
		if c.closed.Load() {
			yield(model.Entry{}, ErrClosed)
			return
		}
		start := time.Now()
		results := 0
		var qerr error
		defer func() { c.metrics.OnQuery(time.Since(start), results, qerr) }()

		stopped := false
		emit := func(e model.Entry) bool {
			results++
			if !yield(e, nil) {
				stopped = true
				return false
			}
			return true
		}

		c.snap.active.Range(c.box, emit)
		if stopped {
			return
		}
		for _, v := range c.snap.frozen {
			v.buf.Range(c.box, func(e model.Entry) bool {
				if isDead(v.dead, e.Value) {
					return true
				}
				return emit(e)
			})
			if stopped {
				return
			}
		}
		for _, v := range c.snap.segments {
			if !v.seg.BBox().Intersects(c.box) {
				continue
			}
			for e, err := range v.seg.RangeQuery(ctx, c.box) {
				if err != nil {
					qerr = err
					yield(model.Entry{}, err)
					return
				}
				if isDead(v.dead, e.Value) {
					continue
				}
				if !emit(e) {
					return
				}
			}
		}
	}
}

// Collect drains the cursor into a slice.
func (c *Cursor) Collect(ctx context.Context) ([]model.Entry, error) {
	var out []model.Entry
	for e, err := range c.All(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Close releases the snapshot. It is idempotent.
func (c *Cursor) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.snap.release()
	}
	return nil
}
