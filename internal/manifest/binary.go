package manifest

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/bkdgo/internal/hash"
	"github.com/hupe1980/bkdgo/model"
)

const (
	binaryMagic   = 0x42444B4D // "BDKM"
	binaryVersion = 1
	maxPayload    = 64 << 20
	maxDims       = 1 << 16
)

// WriteBinary writes the manifest in binary format.
// Format:
// Magic (4 bytes)
// Version (4 bytes)
// Checksum (4 bytes) - CRC32C of payload
// PayloadLength (4 bytes)
// Payload:
//
//	ID (8 bytes)
//	CreatedAt (8 bytes) - UnixNano
//	IndexID (16 bytes)
//	Dims, BufferCapacity, LeafCapacity, Fanout, GrowthFactor (4 bytes each)
//	SplitPolicy (1 byte), Compression (1 byte)
//	NextSegmentID (8 bytes)
//	NumLevels (4 bytes)
//	Levels...
//	  Level (4 bytes)
//	  SegmentID (8 bytes)
//	  Root (4 bytes) - root block address
//	  PointCount (8 bytes)
//	  Size (8 bytes)
//	  HasBBox (1 byte) + Dims * (Min, Max) (8 bytes each)
//	  Path (string)
//	Tombstones.Path (string)
func (m *Manifest) WriteBinary(w io.Writer) error {
	pb := newPayloadBuffer(make([]byte, 0, 96+len(m.Levels)*(64+16*m.Config.Dims)))

	pb.writeUint64(m.ID)
	pb.writeUint64(uint64(m.CreatedAt.UnixNano()))
	pb.writeBytes(m.IndexID[:])
	pb.writeUint32(uint32(m.Config.Dims))
	pb.writeUint32(uint32(m.Config.BufferCapacity))
	pb.writeUint32(uint32(m.Config.LeafCapacity))
	pb.writeUint32(uint32(m.Config.Fanout))
	pb.writeUint32(uint32(m.Config.GrowthFactor))
	pb.writeUint8(m.Config.SplitPolicy)
	pb.writeUint8(m.Config.Compression)
	pb.writeUint64(uint64(m.NextSegmentID))

	pb.writeUint32(uint32(len(m.Levels)))
	for _, l := range m.Levels {
		pb.writeUint32(uint32(l.Level))
		pb.writeUint64(uint64(l.SegmentID))
		pb.writeUint32(l.Root)
		pb.writeUint64(l.PointCount)
		pb.writeUint64(uint64(l.Size))
		if l.BBox != nil {
			if len(l.BBox) != m.Config.Dims {
				return fmt.Errorf("level %d: bbox has %d dimensions, want %d", l.Level, len(l.BBox), m.Config.Dims)
			}
			pb.writeUint8(1)
			for _, r := range l.BBox {
				pb.writeUint64(uint64(r.Min))
				pb.writeUint64(uint64(r.Max))
			}
		} else {
			pb.writeUint8(0)
		}
		pb.writeString(l.Path)
	}
	pb.writeString(m.Tombstones.Path)

	if pb.err != nil {
		return pb.err
	}

	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:], binaryMagic)
	binary.LittleEndian.PutUint32(header[4:], binaryVersion)
	binary.LittleEndian.PutUint32(header[8:], hash.CRC32C(pb.buf))
	binary.LittleEndian.PutUint32(header[12:], uint32(len(pb.buf)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pb.buf)
	return err
}

// ReadBinary reads a manifest written by WriteBinary.
func ReadBinary(r io.Reader) (*Manifest, error) {
	header := make([]byte, 16)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}

	if magic := binary.LittleEndian.Uint32(header[0:]); magic != binaryMagic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, magic)
	}
	version := binary.LittleEndian.Uint32(header[4:])
	if version != binaryVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, version)
	}
	checksum := binary.LittleEndian.Uint32(header[8:])
	length := binary.LittleEndian.Uint32(header[12:])
	if length > maxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrCorrupt, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrCorrupt, err)
	}
	if hash.CRC32C(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	pb := newPayloadBuffer(payload)
	m := &Manifest{Version: int(version)}

	m.ID = pb.readUint64()
	m.CreatedAt = time.Unix(0, int64(pb.readUint64()))
	copy(m.IndexID[:], pb.readBytes(16))
	m.Config.Dims = int(pb.readUint32())
	m.Config.BufferCapacity = int(pb.readUint32())
	m.Config.LeafCapacity = int(pb.readUint32())
	m.Config.Fanout = int(pb.readUint32())
	m.Config.GrowthFactor = int(pb.readUint32())
	m.Config.SplitPolicy = pb.readUint8()
	m.Config.Compression = pb.readUint8()
	m.NextSegmentID = model.SegmentID(pb.readUint64())
	if pb.err == nil && (m.Config.Dims < 1 || m.Config.Dims > maxDims) {
		return nil, fmt.Errorf("%w: %d dimensions", ErrCorrupt, m.Config.Dims)
	}

	numLevels := pb.readUint32()
	if pb.err == nil && int(numLevels) > len(payload) {
		return nil, fmt.Errorf("%w: %d levels", ErrCorrupt, numLevels)
	}
	m.Levels = make([]LevelInfo, numLevels)
	for i := range m.Levels {
		l := &m.Levels[i]
		l.Level = int(pb.readUint32())
		l.SegmentID = model.SegmentID(pb.readUint64())
		l.Root = pb.readUint32()
		l.PointCount = pb.readUint64()
		l.Size = int64(pb.readUint64())
		if pb.readUint8() == 1 {
			l.BBox = make(model.Box, m.Config.Dims)
			for j := range l.BBox {
				l.BBox[j] = model.Range{Min: int64(pb.readUint64()), Max: int64(pb.readUint64())}
			}
		}
		l.Path = pb.readString()
	}
	m.Tombstones.Path = pb.readString()

	if pb.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
	}
	return m, nil
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeUint8(v uint8) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, v)
}

func (p *payloadBuffer) writeBytes(b []byte) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, b...)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > 65535 {
		p.err = fmt.Errorf("string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) readBytes(n int) []byte {
	if p.err != nil {
		return nil
	}
	if p.pos+n > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return nil
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b
}

func (p *payloadBuffer) readUint64() uint64 {
	if b := p.readBytes(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (p *payloadBuffer) readUint32() uint32 {
	if b := p.readBytes(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (p *payloadBuffer) readUint8() uint8 {
	if b := p.readBytes(1); b != nil {
		return b[0]
	}
	return 0
}

func (p *payloadBuffer) readString() string {
	l := p.readLen16()
	if b := p.readBytes(l); b != nil {
		return string(b)
	}
	return ""
}

func (p *payloadBuffer) readLen16() int {
	if b := p.readBytes(2); b != nil {
		return int(binary.LittleEndian.Uint16(b))
	}
	return 0
}
