package engine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/bkdgo/internal/compress"
	"github.com/hupe1980/bkdgo/internal/hash"
	"github.com/hupe1980/bkdgo/model"
)

// Tombstones is the set of deleted values of one source (a segment or a
// frozen buffer). It is safe for concurrent use.
type Tombstones struct {
	mu   sync.RWMutex
	bm   *roaring64.Bitmap
	snap *roaring64.Bitmap
}

// NewTombstones returns an empty set.
func NewTombstones() *Tombstones {
	return &Tombstones{bm: roaring64.New()}
}

// Add marks v deleted and reports whether it was newly added.
func (t *Tombstones) Add(v model.Value) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.bm.CheckedAdd(uint64(v)) {
		return false
	}
	t.snap = nil
	return true
}

// Contains reports whether v is deleted.
func (t *Tombstones) Contains(v model.Value) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bm.Contains(uint64(v))
}

// Len returns the number of deleted values.
func (t *Tombstones) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int(t.bm.GetCardinality())
}

// Snapshot returns an immutable copy. Copies are shared until the next Add.
func (t *Tombstones) Snapshot() *roaring64.Bitmap {
	t.mu.RLock()
	if s := t.snap; s != nil {
		t.mu.RUnlock()
		return s
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap == nil {
		t.snap = t.bm.Clone()
	}
	return t.snap
}

// Since returns the values added after base was taken.
func (t *Tombstones) Since(base *roaring64.Bitmap) []model.Value {
	t.mu.RLock()
	diff := t.bm.Clone()
	t.mu.RUnlock()
	if base != nil {
		diff.AndNot(base)
	}
	out := make([]model.Value, 0, diff.GetCardinality())
	it := diff.Iterator()
	for it.HasNext() {
		out = append(out, model.Value(it.Next()))
	}
	return out
}

const (
	tombstoneMagic   = 0x42444B54 // "BDKT"
	tombstoneVersion = 1
	tombstoneHeader  = 16
)

var errCorruptTombstones = errors.New("corrupt tombstone file")

// encodeTombstones serializes the non-empty sets.
//
//	magic u32 | version u16 | compression u8 | reserved u8 | len u32 | crc32c u32 | payload
func encodeTombstones(sets map[model.SegmentID]*Tombstones, ct compress.Type) ([]byte, error) {
	ids := make([]model.SegmentID, 0, len(sets))
	for id, t := range sets {
		if t.Len() > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var raw bytes.Buffer
	_ = binary.Write(&raw, binary.LittleEndian, uint32(len(ids)))
	for _, id := range ids {
		var bm bytes.Buffer
		if _, err := sets[id].Snapshot().WriteTo(&bm); err != nil {
			return nil, err
		}
		_ = binary.Write(&raw, binary.LittleEndian, uint64(id))
		_ = binary.Write(&raw, binary.LittleEndian, uint32(bm.Len()))
		raw.Write(bm.Bytes())
	}

	payload, err := compress.Encode(ct, raw.Bytes())
	if err != nil {
		return nil, err
	}
	out := make([]byte, tombstoneHeader, tombstoneHeader+len(payload))
	binary.LittleEndian.PutUint32(out[0:], tombstoneMagic)
	binary.LittleEndian.PutUint16(out[4:], tombstoneVersion)
	out[6] = byte(ct)
	binary.LittleEndian.PutUint32(out[8:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[12:], hash.CRC32C(payload))
	return append(out, payload...), nil
}

func decodeTombstones(data []byte) (map[model.SegmentID]*Tombstones, error) {
	if len(data) < tombstoneHeader || binary.LittleEndian.Uint32(data[0:]) != tombstoneMagic {
		return nil, fmt.Errorf("%w: bad header", errCorruptTombstones)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != tombstoneVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errCorruptTombstones, v)
	}
	ct := compress.Type(data[6])
	n := int(binary.LittleEndian.Uint32(data[8:]))
	payload := data[tombstoneHeader:]
	if len(payload) != n || hash.CRC32C(payload) != binary.LittleEndian.Uint32(data[12:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", errCorruptTombstones)
	}
	raw, err := compress.Decode(ct, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptTombstones, err)
	}

	r := bytes.NewReader(raw)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptTombstones, err)
	}
	sets := make(map[model.SegmentID]*Tombstones, count)
	for i := uint32(0); i < count; i++ {
		var id uint64
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptTombstones, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptTombstones, err)
		}
		if int64(size) > int64(r.Len()) {
			return nil, fmt.Errorf("%w: truncated set", errCorruptTombstones)
		}
		buf := make([]byte, size)
		_, _ = r.Read(buf)
		t := NewTombstones()
		if _, err := t.bm.ReadFrom(bytes.NewReader(buf)); err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptTombstones, err)
		}
		sets[model.SegmentID(id)] = t
	}
	return sets, nil
}
