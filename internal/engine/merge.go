package engine

import (
	"context"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/bkdgo/internal/buffer"
	"github.com/hupe1980/bkdgo/internal/manifest"
	"github.com/hupe1980/bkdgo/internal/resource"
	"github.com/hupe1980/bkdgo/internal/segment"
	"github.com/hupe1980/bkdgo/model"
)

type mergeInput struct {
	id    model.SegmentID
	level int // -1 for the frozen buffer
	buf   *buffer.Buffer
	seg   *RefCountedSegment
	dead  *roaring64.Bitmap
}

type mergePlan struct {
	// inputs are ordered newest first.
	inputs []mergeInput
	// marked are the levels switched to MERGING.
	marked []int
	target int
	outID  model.SegmentID
	live   int
}

func (p *mergePlan) touches(l int) bool {
	return slices.Contains(p.marked, l)
}

// planMergeLocked picks the oldest frozen buffer and the smallest target
// level whose capacity holds it together with every occupied level up to
// and including the target.
func (e *Engine) planMergeLocked() (*mergePlan, bool) {
	if len(e.frozen) == 0 {
		return nil, false
	}
	fb := e.frozen[0]
	p := &mergePlan{outID: e.allocIDLocked()}
	p.inputs = append(p.inputs, mergeInput{id: fb.ID(), level: -1, buf: fb, dead: e.deadSnapshotLocked(fb.ID())})
	total := e.liveCountLocked(fb.ID(), fb.Len())

	for l := 0; ; l++ {
		if l == len(e.levels) {
			e.levels = append(e.levels, &level{})
		}
		lv := e.levels[l]
		if lv.seg != nil {
			id := lv.seg.ID()
			p.inputs = append(p.inputs, mergeInput{id: id, level: l, seg: lv.seg, dead: e.deadSnapshotLocked(id)})
			p.marked = append(p.marked, l)
			total += e.liveCountLocked(id, lv.seg.Count())
		}
		if total <= e.cfg.LevelCapacity(l) {
			p.target = l
			if lv.seg == nil {
				p.marked = append(p.marked, l)
			}
			break
		}
	}
	for _, l := range p.marked {
		e.levels[l].beginMerge()
	}
	p.live = total
	return p, true
}

func (e *Engine) abortMergeLocked(p *mergePlan) {
	for _, l := range p.marked {
		e.levels[l].abortMerge()
	}
	e.trimLevelsLocked()
}

func (e *Engine) trimLevelsLocked() {
	for n := len(e.levels); n > 0; n-- {
		lv := e.levels[n-1]
		if lv.state != LevelEmpty || lv.seg != nil {
			break
		}
		e.levels = e.levels[:n-1]
	}
}

// drain merges frozen buffers until none remain or a merge fails.
func (e *Engine) drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := e.mergeOnce(ctx)
		if err != nil || !ok {
			return err
		}
	}
}

func (e *Engine) mergeOnce(ctx context.Context) (bool, error) {
	e.mergeMu.Lock()
	defer e.mergeMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false, nil
	}
	p, ok := e.planMergeLocked()
	e.mu.Unlock()
	if !ok {
		return false, nil
	}

	start := time.Now()
	e.logger.Debug("merge started", "target_level", p.target, "inputs", len(p.inputs), "points", p.live)
	out, info, stage, err := e.executeMerge(ctx, p)

	var superseded []string
	e.mu.Lock()
	if err == nil {
		stage = MergeStageCommit
		superseded, err = e.commitMergeLocked(ctx, p, out, info)
	}
	if err != nil {
		e.abortMergeLocked(p)
		merr := &MergeError{SegmentID: p.outID, TargetLevel: p.target, Stage: stage, Err: err}
		e.lastErr = merr
		e.mu.Unlock()

		if out != nil {
			e.retire(out)
		}
		e.failedMerges.Add(1)
		e.metrics.OnMerge(time.Since(start), p.target, len(p.inputs), 0, merr)
		e.logger.Warn("merge failed", "target_level", p.target, "segment", p.outID, "stage", stage, "error", err)
		return false, merr
	}
	e.lastErr = nil
	depth := len(e.frozen)
	e.mu.Unlock()

	e.merges.Add(1)
	e.metrics.OnMerge(time.Since(start), p.target, len(p.inputs), info.Count, nil)
	e.metrics.OnQueueDepth("frozen_buffers", depth)
	e.logger.Info("merge completed", "target_level", p.target, "inputs", len(p.inputs),
		"points", info.Count, "bytes", info.Size, "duration", time.Since(start))

	e.cleanup(ctx, superseded)
	return true, nil
}

func entryBytes(dims int) int64 {
	return int64(48 + 8*dims)
}

// executeMerge reads every input, drops deleted and shadowed entries and
// writes the survivors as a new segment. It returns a nil segment when
// nothing survives. On error the stage names the failing step.
func (e *Engine) executeMerge(ctx context.Context, p *mergePlan) (*RefCountedSegment, segment.Info, MergeStage, error) {
	reserved := int64(max(p.live, 0)) * entryBytes(e.cfg.Dims)
	if err := e.rc.AcquireMemory(reserved); err != nil {
		return nil, segment.Info{}, MergeStageRead, err
	}
	defer e.rc.ReleaseMemory(reserved)

	parts := make([][]model.Entry, len(p.inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range p.inputs {
		g.Go(func() error {
			if in.buf != nil {
				for _, en := range in.buf.Entries() {
					if !isDead(in.dead, en.Value) {
						parts[i] = append(parts[i], en)
					}
				}
				return nil
			}
			part := make([]model.Entry, 0, in.seg.Count())
			for en, err := range in.seg.Scan(gctx) {
				if err != nil {
					return err
				}
				if !isDead(in.dead, en.Value) {
					part = append(part, en)
				}
			}
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, segment.Info{}, MergeStageRead, err
	}
	entries := slices.Concat(parts...)
	entries = dedupeNewest(entries)
	if len(entries) == 0 {
		return nil, segment.Info{}, MergeStageWrite, nil
	}

	tree, err := segment.Build(entries, e.segOpts)
	if err != nil {
		return nil, segment.Info{}, MergeStageBuild, err
	}
	out, info, err := e.writeSegment(ctx, p.outID, tree)
	return out, info, MergeStageWrite, err
}

// dedupeNewest keeps the first entry of every point. Callers pass entries
// ordered newest source first.
func dedupeNewest(entries []model.Entry) []model.Entry {
	slices.SortStableFunc(entries, func(a, b model.Entry) int {
		return a.Point.Compare(b.Point)
	})
	return slices.CompactFunc(entries, func(a, b model.Entry) bool {
		return a.Point.Equal(b.Point)
	})
}

func (e *Engine) writeSegment(ctx context.Context, id model.SegmentID, tree *segment.Tree) (*RefCountedSegment, segment.Info, error) {
	name := segmentFileName(id)
	w, err := e.store.Create(ctx, name)
	if err != nil {
		return nil, segment.Info{}, err
	}
	info, err := segment.Write(ctx, resource.NewRateLimitedWriter(ctx, w, e.rc), id, tree)
	if err == nil {
		err = w.Sync()
	}
	if err != nil {
		_ = w.Abort()
		return nil, segment.Info{}, err
	}
	if err := w.Close(); err != nil {
		_ = e.store.Delete(ctx, name)
		return nil, segment.Info{}, err
	}
	e.metrics.OnThroughput("merge_write", info.Size)

	seg, err := e.openSegment(ctx, id, name)
	if err != nil {
		_ = e.store.Delete(ctx, name)
		return nil, segment.Info{}, err
	}
	return seg, info, nil
}

// commitMergeLocked saves a manifest naming out and swaps the level table.
// Nothing changes if the save fails.
func (e *Engine) commitMergeLocked(ctx context.Context, p *mergePlan, out *RefCountedSegment, info segment.Info) ([]string, error) {
	// Values deleted while the merge ran are still in out.
	var late *Tombstones
	if out != nil {
		for _, in := range p.inputs {
			t := e.tombstones[in.id]
			if t == nil {
				continue
			}
			for _, v := range t.Since(in.dead) {
				_, ok, err := out.FindValue(ctx, v)
				if err != nil {
					return nil, err
				}
				if ok {
					if late == nil {
						late = NewTombstones()
					}
					late.Add(v)
				}
			}
		}
	}

	sets := make(map[model.SegmentID]*Tombstones, len(e.tombstones))
	for id, t := range e.tombstones {
		sets[id] = t
	}
	for _, in := range p.inputs {
		delete(sets, in.id)
	}
	if late != nil {
		sets[out.ID()] = late
	}

	next := e.manifest.Clone()
	levels := next.Levels[:0]
	for _, li := range next.Levels {
		if !p.touches(li.Level) {
			levels = append(levels, li)
		}
	}
	if out != nil {
		levels = append(levels, manifest.LevelInfo{
			Level:      p.target,
			SegmentID:  out.ID(),
			Path:       segmentFileName(out.ID()),
			Root:       uint32(info.Root),
			PointCount: uint64(info.Count),
			Size:       info.Size,
			BBox:       info.BBox,
		})
	}
	slices.SortFunc(levels, func(a, b manifest.LevelInfo) int { return a.Level - b.Level })
	next.Levels = levels

	superseded, err := e.saveManifestLocked(ctx, next, sets)
	if err != nil {
		return nil, err
	}

	for _, in := range p.inputs {
		delete(e.tombstones, in.id)
		if in.seg == nil {
			continue
		}
		lv := e.levels[in.level]
		lv.seg = nil
		lv.state = LevelEmpty
		e.retire(in.seg)
	}
	tgt := e.levels[p.target]
	if out != nil {
		tgt.seg = out
		tgt.state = LevelOccupied
		if late != nil {
			e.tombstones[out.ID()] = late
		}
	} else {
		tgt.state = LevelEmpty
	}
	e.frozen = e.frozen[1:]
	e.trimLevelsLocked()
	return superseded, nil
}

// LevelStats describes one level.
type LevelStats struct {
	Level     int
	State     LevelState
	SegmentID model.SegmentID
	Points    int
	Deleted   int
	Capacity  int
	SizeBytes int64
	Blocks    int
}

// Stats is a point-in-time summary of the engine.
type Stats struct {
	Dims           int
	BufferPoints   int
	BufferCapacity int
	FrozenBuffers  int
	FrozenPoints   int
	Levels         []LevelStats
	LivePoints     int
	Merges         uint64
	FailedMerges   uint64
	LastMergeError error
	CacheHits      int64
	CacheMisses    int64
	MemoryUsage    int64
	MemoryLimit    int64
	BytesWritten   int64
}

// Stats returns a summary of the current state.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Stats{
		Dims:           e.cfg.Dims,
		BufferPoints:   e.active.Len(),
		BufferCapacity: e.cfg.BufferCapacity,
		FrozenBuffers:  len(e.frozen),
		Merges:         e.merges.Load(),
		FailedMerges:   e.failedMerges.Load(),
		LastMergeError: e.lastErr,
		MemoryUsage:    e.rc.MemoryUsage(),
		MemoryLimit:    e.rc.MemoryLimit(),
		BytesWritten:   e.rc.IOBytes(),
	}
	st.LivePoints = st.BufferPoints
	for _, fb := range e.frozen {
		n := e.liveCountLocked(fb.ID(), fb.Len())
		st.FrozenPoints += n
		st.LivePoints += n
	}
	for l, lv := range e.levels {
		ls := LevelStats{Level: l, State: lv.state, Capacity: e.cfg.LevelCapacity(l)}
		if lv.seg != nil {
			ls.SegmentID = lv.seg.ID()
			ls.Points = lv.seg.Count()
			if t := e.tombstones[lv.seg.ID()]; t != nil {
				ls.Deleted = t.Len()
			}
			ls.SizeBytes = lv.seg.Size()
			ls.Blocks = lv.seg.BlockCount()
			st.LivePoints += ls.Points - ls.Deleted
		}
		st.Levels = append(st.Levels, ls)
	}
	if e.cache != nil {
		st.CacheHits, st.CacheMisses = e.cache.Stats()
	}
	return st
}
