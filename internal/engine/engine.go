package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/bkdgo/blobstore"
	"github.com/hupe1980/bkdgo/internal/buffer"
	"github.com/hupe1980/bkdgo/internal/cache"
	"github.com/hupe1980/bkdgo/internal/manifest"
	"github.com/hupe1980/bkdgo/internal/resource"
	"github.com/hupe1980/bkdgo/internal/segment"
	"github.com/hupe1980/bkdgo/model"
)

const (
	// DefaultBlockCacheBytes is the default capacity of the block cache.
	DefaultBlockCacheBytes = 64 << 20

	segmentPrefix   = "segment-"
	tombstonePrefix = "tombstones-"

	openConcurrency = 4
)

func segmentFileName(id model.SegmentID) string {
	return fmt.Sprintf("%s%06d.kdb", segmentPrefix, id)
}

func tombstoneFileName(version uint64) string {
	return fmt.Sprintf("%s%06d.bin", tombstonePrefix, version)
}

// Engine is the LSM index over buffers and leveled segments. All methods
// are safe for concurrent use.
type Engine struct {
	store     blobstore.BlobStore
	manifests *manifest.Store
	cfg       Config
	segOpts   segment.Options

	mu         sync.RWMutex
	active     *buffer.Buffer
	activeView atomic.Pointer[buffer.Buffer]
	frozen     []*buffer.Buffer // oldest first
	levels     []*level
	tombstones map[model.SegmentID]*Tombstones
	manifest   *manifest.Manifest
	nextID     model.SegmentID
	tombDirty  bool
	lastErr    error
	// closing rejects writes once Close has started; closed also rejects reads.
	closing bool
	closed  bool

	// mergeMu serializes merges and state persistence.
	mergeMu sync.Mutex

	merges       atomic.Uint64
	failedMerges atomic.Uint64

	logger          *slog.Logger
	rc              *resource.Controller
	metrics         MetricsObserver
	cache           *cache.LRUBlockCache
	blockCacheBytes int64
	background      bool
	maxFrozen       int
	retryMin        time.Duration
	retryMax        time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	mergeCh   chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open opens the index stored in store, creating it when no manifest
// exists. For a new index zero Config fields take their defaults. For an
// existing index the stored configuration wins; a non-zero cfg.Dims that
// disagrees with it fails with ErrDimensionMismatch.
func Open(ctx context.Context, store blobstore.BlobStore, cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:           store,
		manifests:       manifest.NewStore(store),
		tombstones:      make(map[model.SegmentID]*Tombstones),
		logger:          slog.New(slog.DiscardHandler),
		metrics:         NoopMetricsObserver{},
		blockCacheBytes: DefaultBlockCacheBytes,
		maxFrozen:       DefaultMaxFrozen,
		retryMin:        50 * time.Millisecond,
		retryMax:        5 * time.Second,
		mergeCh:         make(chan struct{}, 1),
		closeCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rc == nil {
		e.rc = resource.NewController(resource.Config{})
	}
	if e.blockCacheBytes > 0 {
		e.cache = cache.NewLRUBlockCache(e.blockCacheBytes, e.rc)
	}

	m, err := e.manifests.Load(ctx)
	switch {
	case err == nil:
		stored := configFromManifest(m.Config)
		if cfg.Dims != 0 && cfg.Dims != stored.Dims {
			return nil, &DimensionError{Expected: stored.Dims, Actual: cfg.Dims, What: "requested configuration"}
		}
		e.warnConfigDrift(cfg, stored)
		e.cfg = stored
	case errors.Is(err, manifest.ErrNotFound):
		e.cfg = cfg.withDefaults()
		if err := e.cfg.Validate(); err != nil {
			return nil, err
		}
		m = manifest.New(e.cfg.toManifest())
		if err := e.manifests.Save(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to create manifest: %w", err)
		}
		e.logger.Info("created index", "index_id", m.IndexID, "dims", e.cfg.Dims)
	default:
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	e.segOpts = e.cfg.segmentOptions()
	e.manifest = m
	e.nextID = m.NextSegmentID

	if err := e.loadLevels(ctx); err != nil {
		return nil, err
	}
	if err := e.loadTombstones(ctx); err != nil {
		e.releaseSegmentsLocked()
		return nil, err
	}
	e.active = buffer.New(e.allocIDLocked(), e.cfg.Dims, e.cfg.BufferCapacity)
	e.removeOrphans(ctx)

	e.ctx, e.cancel = context.WithCancel(context.Background())
	if e.background {
		e.wg.Add(1)
		goSafe(e.logger, "merge", e.runMergeLoop)
	}

	e.logger.Info("loaded levels", "index_id", m.IndexID, "manifest", m.ID, "levels", len(e.levels))
	return e, nil
}

func (e *Engine) warnConfigDrift(req, stored Config) {
	type field struct {
		name      string
		req, have int
	}
	for _, f := range []field{
		{"buffer_capacity", req.BufferCapacity, stored.BufferCapacity},
		{"leaf_capacity", req.LeafCapacity, stored.LeafCapacity},
		{"fanout", req.Fanout, stored.Fanout},
		{"growth_factor", req.GrowthFactor, stored.GrowthFactor},
	} {
		if f.req != 0 && f.req != f.have {
			e.logger.Warn("ignoring configuration of existing index", "field", f.name, "requested", f.req, "stored", f.have)
		}
	}
}

func (e *Engine) loadLevels(ctx context.Context) error {
	infos := e.manifest.Levels
	segs := make([]*RefCountedSegment, len(infos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(openConcurrency)
	for i, li := range infos {
		g.Go(func() error {
			seg, err := e.openSegment(gctx, li.SegmentID, li.Path)
			if err != nil {
				return fmt.Errorf("level %d: %w", li.Level, err)
			}
			segs[i] = seg
			if uint64(seg.Count()) != li.PointCount {
				return fmt.Errorf("level %d: %w: segment %d holds %d points, manifest says %d",
					li.Level, segment.ErrCorruptBlock, li.SegmentID, seg.Count(), li.PointCount)
			}
			if uint32(seg.Root()) != li.Root {
				return fmt.Errorf("level %d: %w: segment %d has root %d, manifest says %d",
					li.Level, segment.ErrCorruptBlock, li.SegmentID, seg.Root(), li.Root)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range segs {
			if s != nil {
				s.DecRef()
			}
		}
		return err
	}

	for i, li := range infos {
		for len(e.levels) <= li.Level {
			e.levels = append(e.levels, &level{})
		}
		e.levels[li.Level].seg = segs[i]
		e.levels[li.Level].state = LevelOccupied
	}
	return nil
}

func (e *Engine) loadTombstones(ctx context.Context) error {
	path := e.manifest.Tombstones.Path
	if path == "" {
		return nil
	}
	data, err := blobstore.ReadFile(ctx, e.store, path)
	if err != nil {
		return fmt.Errorf("failed to read tombstones: %w", err)
	}
	sets, err := decodeTombstones(data)
	if err != nil {
		return err
	}
	live := make(map[model.SegmentID]bool)
	for _, lv := range e.levels {
		if lv.seg != nil {
			live[lv.seg.ID()] = true
		}
	}
	for id, t := range sets {
		if live[id] {
			e.tombstones[id] = t
		}
	}
	return nil
}

// removeOrphans deletes blobs no manifest references: outputs of merges
// that failed before their commit and state of superseded manifests.
func (e *Engine) removeOrphans(ctx context.Context) {
	referenced := map[string]bool{e.manifest.Tombstones.Path: true}
	for _, li := range e.manifest.Levels {
		referenced[li.Path] = true
	}
	for _, prefix := range []string{segmentPrefix, tombstonePrefix} {
		names, err := e.store.List(ctx, prefix)
		if err != nil {
			e.logger.Warn("failed to list blobs", "prefix", prefix, "error", err)
			continue
		}
		for _, name := range names {
			if referenced[name] {
				continue
			}
			if err := e.store.Delete(ctx, name); err != nil {
				e.logger.Warn("failed to delete orphan blob", "name", name, "error", err)
				continue
			}
			e.logger.Info("orphan blob removed", "name", name)
		}
	}
	if err := e.manifests.Prune(ctx, e.manifest.ID); err != nil {
		e.logger.Warn("failed to prune manifests", "error", err)
	}
}

func (e *Engine) openSegment(ctx context.Context, id model.SegmentID, name string) (*RefCountedSegment, error) {
	blob, err := e.store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment %d: %w", id, err)
	}
	var opts []segment.Option
	if e.cache != nil {
		opts = append(opts, segment.WithBlockCache(e.cache))
	}
	seg, err := segment.Open(ctx, id, blob, opts...)
	if err != nil {
		_ = blob.Close()
		return nil, err
	}
	if seg.Dims() != e.cfg.Dims {
		_ = seg.Close()
		return nil, &DimensionError{Expected: e.cfg.Dims, Actual: seg.Dims(), What: fmt.Sprintf("segment %d", id)}
	}
	return NewRefCountedSegment(seg), nil
}

// retire drops the level table's reference to seg. The blob is deleted once
// the last snapshot holding the segment is closed.
func (e *Engine) retire(seg *RefCountedSegment) {
	id := seg.ID()
	seg.SetOnClose(func() {
		if err := e.store.Delete(context.Background(), segmentFileName(id)); err != nil {
			e.logger.Warn("failed to delete segment blob", "segment", id, "error", err)
		}
		if e.cache != nil {
			e.cache.Invalidate(func(k cache.Key) bool { return k.SegmentID == id })
		}
	})
	seg.DecRef()
}

func (e *Engine) allocIDLocked() model.SegmentID {
	id := e.nextID
	e.nextID++
	return id
}

func (e *Engine) checkPoint(p model.Point) error {
	if len(p) != e.cfg.Dims {
		return &DimensionError{Expected: e.cfg.Dims, Actual: len(p), What: "point"}
	}
	return nil
}

func (e *Engine) deadLocked(id model.SegmentID, v model.Value) bool {
	t := e.tombstones[id]
	return t != nil && t.Contains(v)
}

func (e *Engine) tombstonesLocked(id model.SegmentID) *Tombstones {
	t := e.tombstones[id]
	if t == nil {
		t = NewTombstones()
		e.tombstones[id] = t
	}
	return t
}

func (e *Engine) deadSnapshotLocked(id model.SegmentID) *roaring64.Bitmap {
	if t := e.tombstones[id]; t != nil && t.Len() > 0 {
		return t.Snapshot()
	}
	return nil
}

func (e *Engine) liveCountLocked(id model.SegmentID, n int) int {
	if t := e.tombstones[id]; t != nil {
		n -= t.Len()
	}
	return n
}

// Insert adds (p, v). It reports false without error when a live entry with
// the same point already exists.
func (e *Engine) Insert(ctx context.Context, p model.Point, v model.Value) (bool, error) {
	if err := e.checkPoint(p); err != nil {
		return false, err
	}

	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return false, ErrClosed
	}
	dup, err := e.containsLocked(ctx, p)
	if err != nil || dup {
		e.mu.Unlock()
		return false, err
	}

	rotated := false
	if e.active.IsFull() {
		if err := e.rotateLocked(); err != nil {
			e.mu.Unlock()
			return false, err
		}
		rotated = true
	}
	if e.active.Insert(p, v) == buffer.Full {
		if err := e.rotateLocked(); err != nil {
			e.mu.Unlock()
			return false, err
		}
		rotated = true
		e.active.Insert(p, v)
	}
	e.activeView.Store(nil)
	if e.active.IsFull() && e.rotateLocked() == nil {
		rotated = true
	}
	e.mu.Unlock()

	if rotated {
		e.triggerMerge(ctx)
	}
	return true, nil
}

func (e *Engine) containsLocked(ctx context.Context, p model.Point) (bool, error) {
	if e.active.Contains(p) {
		return true, nil
	}
	for i := len(e.frozen) - 1; i >= 0; i-- {
		fb := e.frozen[i]
		if v, ok := fb.Lookup(p); ok && !e.deadLocked(fb.ID(), v) {
			return true, nil
		}
	}
	for _, lv := range e.levels {
		if lv.seg == nil || !lv.seg.MayContain(p) {
			continue
		}
		v, ok, err := lv.seg.Get(ctx, p)
		if err != nil {
			return false, err
		}
		if ok && !e.deadLocked(lv.seg.ID(), v) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) rotateLocked() error {
	if len(e.frozen) >= e.maxFrozen {
		return ErrBackpressure
	}
	e.frozen = append(e.frozen, e.active)
	e.active = buffer.New(e.allocIDLocked(), e.cfg.Dims, e.cfg.BufferCapacity)
	e.activeView.Store(nil)
	e.metrics.OnQueueDepth("frozen_buffers", len(e.frozen))
	return nil
}

func (e *Engine) triggerMerge(ctx context.Context) {
	if e.background {
		select {
		case e.mergeCh <- struct{}{}:
		default:
		}
		return
	}
	// Failures are recorded and logged; the frozen buffer stays queryable
	// and the merge is retried on the next trigger or Flush.
	_ = e.drain(ctx)
}

// Delete removes every live entry carrying v and reports whether any was
// found.
func (e *Engine) Delete(ctx context.Context, v model.Value) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return false, ErrClosed
	}

	found := false
	if e.active.Remove(v) {
		e.activeView.Store(nil)
		found = true
	}
	for _, fb := range e.frozen {
		if fb.HasValue(v) && e.tombstonesLocked(fb.ID()).Add(v) {
			found = true
		}
	}
	for _, lv := range e.levels {
		if lv.seg == nil {
			continue
		}
		_, ok, err := lv.seg.FindValue(ctx, v)
		if err != nil {
			return found, err
		}
		if ok && e.tombstonesLocked(lv.seg.ID()).Add(v) {
			e.tombDirty = true
			found = true
		}
	}
	return found, nil
}

// Query returns a cursor over every live entry inside box as of now.
func (e *Engine) Query(ctx context.Context, box model.Box) (*Cursor, error) {
	if err := box.Validate(e.cfg.Dims); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return &Cursor{snap: e.snapshotLocked(), box: box.Clone(), metrics: e.metrics}, nil
}

func (e *Engine) snapshotLocked() *snapshot {
	view := e.activeView.Load()
	if view == nil {
		view = e.active.Clone()
		e.activeView.CompareAndSwap(nil, view)
	}
	snap := &snapshot{active: view}
	for i := len(e.frozen) - 1; i >= 0; i-- {
		fb := e.frozen[i]
		snap.frozen = append(snap.frozen, bufferView{buf: fb, dead: e.deadSnapshotLocked(fb.ID())})
	}
	for l, lv := range e.levels {
		if lv.seg == nil {
			continue
		}
		lv.seg.IncRef()
		snap.segments = append(snap.segments, segmentView{level: l, seg: lv.seg, dead: e.deadSnapshotLocked(lv.seg.ID())})
	}
	return snap
}

// Count returns the number of live entries.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := e.active.Len()
	for _, fb := range e.frozen {
		n += e.liveCountLocked(fb.ID(), fb.Len())
	}
	for _, lv := range e.levels {
		if lv.seg != nil {
			n += e.liveCountLocked(lv.seg.ID(), lv.seg.Count())
		}
	}
	return n
}

// CountBox returns the number of live entries inside box.
func (e *Engine) CountBox(ctx context.Context, box model.Box) (int, error) {
	c, err := e.Query(ctx, box)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	n := 0
	for _, err := range c.All(ctx) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// Dims returns the dimensionality of the index.
func (e *Engine) Dims() int { return e.cfg.Dims }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Flush freezes the active buffer and merges every frozen buffer into the
// levels. It also persists pending tombstones. A failed merge is returned
// as a *MergeError and leaves the prior state intact.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()
	return e.flush(ctx)
}

func (e *Engine) flush(ctx context.Context) error {
	e.logger.Debug("flush started")
	for {
		e.mu.Lock()
		pending := e.active.Len() > 0
		if pending && e.rotateLocked() == nil {
			pending = false
		}
		e.mu.Unlock()

		if err := e.drain(ctx); err != nil {
			return err
		}
		if !pending {
			break
		}
	}
	return e.persistTombstones(ctx)
}

func (e *Engine) persistTombstones(ctx context.Context) error {
	e.mergeMu.Lock()
	defer e.mergeMu.Unlock()
	e.mu.Lock()
	if !e.tombDirty {
		e.mu.Unlock()
		return nil
	}
	next := e.manifest.Clone()
	cleanup, err := e.saveManifestLocked(ctx, next, e.tombstones)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.cleanup(ctx, cleanup)
	return nil
}

// saveManifestLocked writes the tombstone sets and saves next as the new
// current manifest. It returns blobs superseded by the save.
func (e *Engine) saveManifestLocked(ctx context.Context, next *manifest.Manifest, sets map[model.SegmentID]*Tombstones) ([]string, error) {
	next.NextSegmentID = e.nextID
	next.Tombstones.Path = ""

	data, err := encodeTombstones(sets, e.cfg.Compression)
	if err != nil {
		return nil, err
	}
	hasSets := false
	for _, t := range sets {
		if t.Len() > 0 {
			hasSets = true
			break
		}
	}
	if hasSets {
		name := tombstoneFileName(e.manifest.ID + 1)
		if err := e.store.Put(ctx, name, data); err != nil {
			return nil, fmt.Errorf("failed to write tombstones: %w", err)
		}
		next.Tombstones.Path = name
	}
	if err := e.manifests.Save(ctx, next); err != nil {
		if next.Tombstones.Path != "" {
			_ = e.store.Delete(ctx, next.Tombstones.Path)
		}
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}

	var superseded []string
	if old := e.manifest.Tombstones.Path; old != "" && old != next.Tombstones.Path {
		superseded = append(superseded, old)
	}
	e.manifest = next
	e.tombDirty = false
	e.logger.Debug("manifest updated", "manifest", next.ID, "levels", len(next.Levels))
	return superseded, nil
}

func (e *Engine) cleanup(ctx context.Context, names []string) {
	for _, name := range names {
		if err := e.store.Delete(ctx, name); err != nil {
			e.logger.Warn("failed to delete superseded blob", "name", name, "error", err)
		}
	}
	e.mu.RLock()
	current := e.manifest.ID
	e.mu.RUnlock()
	if err := e.manifests.Prune(ctx, current); err != nil {
		e.logger.Warn("failed to prune manifests", "error", err)
	}
}

// Check verifies the structure of every segment.
func (e *Engine) Check(ctx context.Context) error {
	e.mu.RLock()
	snap := e.snapshotLocked()
	e.mu.RUnlock()
	defer snap.release()

	for _, v := range snap.segments {
		if err := v.seg.Validate(ctx); err != nil {
			return fmt.Errorf("level %d: %w", v.level, err)
		}
	}
	return nil
}

func (e *Engine) runMergeLoop() {
	defer e.wg.Done()

	var delay time.Duration
	for {
		var retry <-chan time.Time
		var timer *time.Timer
		if delay > 0 {
			timer = time.NewTimer(delay)
			retry = timer.C
		}
		select {
		case <-e.closeCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-e.mergeCh:
		case <-retry:
		}
		if timer != nil {
			timer.Stop()
		}

		if err := e.rc.AcquireBackground(e.ctx); err != nil {
			return
		}
		err := e.drain(e.ctx)
		e.rc.ReleaseBackground()

		switch {
		case err == nil:
			delay = 0
		case e.ctx.Err() != nil:
			return
		case delay == 0:
			delay = e.retryMin
		default:
			delay = min(2*delay, e.retryMax)
		}
	}
}

// Close stops background work, flushes the buffers and releases all
// segments. Writes are rejected from the moment Close starts. Cursors
// opened before Close stay valid until closed.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return nil
	}
	e.closing = true
	e.mu.Unlock()

	e.closeOnce.Do(func() { close(e.closeCh) })
	e.wg.Wait()

	err := e.flush(ctx)
	if err != nil {
		e.logger.Error("flush on close failed; unmerged buffers are lost", "error", err)
	}

	e.mergeMu.Lock()
	e.mu.Lock()
	e.closed = true
	e.releaseSegmentsLocked()
	e.mu.Unlock()
	e.mergeMu.Unlock()

	e.cancel()
	return err
}

func (e *Engine) releaseSegmentsLocked() {
	for _, lv := range e.levels {
		if lv.seg != nil {
			lv.seg.DecRef()
			lv.seg = nil
		}
	}
}

// String describes the level table.
func (e *Engine) String() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var sb strings.Builder
	fmt.Fprintf(&sb, "buffer=%d/%d frozen=%d", e.active.Len(), e.cfg.BufferCapacity, len(e.frozen))
	for l, lv := range e.levels {
		n := 0
		if lv.seg != nil {
			n = lv.seg.Count()
		}
		fmt.Fprintf(&sb, " L%d[%s %d/%d]", l, lv.state, n, e.cfg.LevelCapacity(l))
	}
	return sb.String()
}
