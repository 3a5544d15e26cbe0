package engine

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/bkdgo/internal/segment"
)

// RefCountedSegment keeps a segment open while the level table or any
// snapshot still references it.
type RefCountedSegment struct {
	*segment.Segment

	refs    atomic.Int64
	once    sync.Once
	onClose func()
}

// NewRefCountedSegment wraps seg with an initial reference count of 1.
func NewRefCountedSegment(seg *segment.Segment) *RefCountedSegment {
	rs := &RefCountedSegment{Segment: seg}
	rs.refs.Store(1)
	return rs
}

// SetOnClose registers a callback run after the segment is closed.
func (s *RefCountedSegment) SetOnClose(fn func()) {
	s.onClose = fn
}

// IncRef adds a reference.
func (s *RefCountedSegment) IncRef() {
	s.refs.Add(1)
}

// DecRef drops a reference and closes the segment when none remain.
func (s *RefCountedSegment) DecRef() {
	if s.refs.Add(-1) > 0 {
		return
	}
	s.once.Do(func() {
		_ = s.Segment.Close()
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// Refs returns the current reference count.
func (s *RefCountedSegment) Refs() int64 {
	return s.refs.Load()
}
