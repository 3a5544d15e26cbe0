package segment

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/bkdgo/internal/compress"
	"github.com/hupe1980/bkdgo/model"
)

const (
	footerSize    = 32
	footerMagic   = 0x42444B31 // "BDK1"
	formatVersion = 1
)

var errShortMeta = errors.New("meta section truncated")

// meta describes a persisted segment.
type meta struct {
	id          model.SegmentID
	dims        int
	leafCap     int
	fanout      int
	pageSize    int
	blockCount  uint32
	root        Address
	count       uint64
	compression compress.Type
	splitPolicy SplitPolicy
	bbox        model.Box
	chunks      []chunkRef
	bloomOffset uint64
	bloomLen    uint32
	bloomCRC    uint32
}

func (m *meta) encode() []byte {
	buf := make([]byte, 0, 64+16*m.dims+24*len(m.chunks))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.dims))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.leafCap))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.fanout))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.pageSize))
	buf = binary.LittleEndian.AppendUint32(buf, m.blockCount)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.root))
	buf = binary.LittleEndian.AppendUint64(buf, m.count)
	buf = append(buf, byte(m.compression), byte(m.splitPolicy))
	if m.bbox != nil {
		buf = append(buf, 1)
		for _, r := range m.bbox {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Min))
			buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Max))
		}
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.chunks)))
	for _, c := range m.chunks {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(c.first))
		buf = binary.LittleEndian.AppendUint64(buf, c.offset)
		buf = binary.LittleEndian.AppendUint32(buf, c.length)
		buf = binary.LittleEndian.AppendUint32(buf, c.crc)
	}
	buf = binary.LittleEndian.AppendUint64(buf, m.bloomOffset)
	buf = binary.LittleEndian.AppendUint32(buf, m.bloomLen)
	buf = binary.LittleEndian.AppendUint32(buf, m.bloomCRC)
	return buf
}

type metaReader struct {
	buf []byte
	err error
}

func (r *metaReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = errShortMeta
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *metaReader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *metaReader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *metaReader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func decodeMeta(buf []byte) (*meta, error) {
	r := &metaReader{buf: buf}
	m := &meta{
		id:         model.SegmentID(r.u64()),
		dims:       int(r.u32()),
		leafCap:    int(r.u32()),
		fanout:     int(r.u32()),
		pageSize:   int(r.u32()),
		blockCount: r.u32(),
		root:       Address(r.u32()),
		count:      r.u64(),
	}
	m.compression = compress.Type(r.u8())
	m.splitPolicy = SplitPolicy(r.u8())
	if r.err == nil && (m.dims < 1 || m.dims > MaxDims) {
		return nil, fmt.Errorf("dimensions %d out of range", m.dims)
	}
	if r.u8() == 1 {
		m.bbox = make(model.Box, m.dims)
		for i := range m.bbox {
			m.bbox[i] = model.Range{Min: int64(r.u64()), Max: int64(r.u64())}
		}
	}
	n := r.u32()
	if r.err == nil && uint64(n)*24 > uint64(len(r.buf)) {
		return nil, fmt.Errorf("chunk directory of %d entries exceeds meta", n)
	}
	m.chunks = make([]chunkRef, n)
	for i := range m.chunks {
		m.chunks[i] = chunkRef{
			first:  model.Value(r.u64()),
			offset: r.u64(),
			length: r.u32(),
			crc:    r.u32(),
		}
	}
	m.bloomOffset = r.u64()
	m.bloomLen = r.u32()
	m.bloomCRC = r.u32()
	if r.err != nil {
		return nil, r.err
	}

	switch {
	case !m.compression.Valid():
		return nil, fmt.Errorf("unknown compression %d", m.compression)
	case m.pageSize != PageSize(m.dims, m.leafCap, m.fanout):
		return nil, fmt.Errorf("page size %d does not match layout", m.pageSize)
	case m.blockCount == 0 || m.root >= Address(m.blockCount):
		return nil, fmt.Errorf("root %d outside %d blocks", m.root, m.blockCount)
	}
	return m, nil
}

type footer struct {
	metaOffset uint64
	metaLen    uint32
	metaCRC    uint32
}

func (f footer) encode() []byte {
	buf := make([]byte, footerSize)
	binary.LittleEndian.PutUint64(buf[0:], f.metaOffset)
	binary.LittleEndian.PutUint32(buf[8:], f.metaLen)
	binary.LittleEndian.PutUint32(buf[12:], f.metaCRC)
	binary.LittleEndian.PutUint32(buf[16:], footerMagic)
	binary.LittleEndian.PutUint32(buf[20:], formatVersion)
	return buf
}

func decodeFooter(buf []byte) (footer, error) {
	if len(buf) != footerSize {
		return footer{}, fmt.Errorf("footer of %d bytes", len(buf))
	}
	if magic := binary.LittleEndian.Uint32(buf[16:]); magic != footerMagic {
		return footer{}, fmt.Errorf("bad magic %08x", magic)
	}
	if v := binary.LittleEndian.Uint32(buf[20:]); v != formatVersion {
		return footer{}, fmt.Errorf("unsupported format version %d", v)
	}
	return footer{
		metaOffset: binary.LittleEndian.Uint64(buf[0:]),
		metaLen:    binary.LittleEndian.Uint32(buf[8:]),
		metaCRC:    binary.LittleEndian.Uint32(buf[12:]),
	}, nil
}
