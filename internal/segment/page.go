package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/bkdgo/internal/hash"
	"github.com/hupe1980/bkdgo/model"
)

// Page layout (little endian):
//
//	crc32c     u32  over bytes [4, 12+payloadLen)
//	kind       u8
//	reserved   u8
//	count      u16  leaf: points, inner: children
//	payloadLen u32
//	payload
//	zero padding up to PageSize
//
// Leaf payload: count * (dims * i64 coordinates, u64 value).
// Inner payload: (count-1) * (u16 axis, i64 threshold), then count * u32 child.
const (
	pageHeaderSize = 12
	splitSize      = 2 + 8
	childSize      = 4
)

func leafEntrySize(dims int) int { return dims*8 + 8 }

// encodePage serializes blk into page, which must be zeroed and PageSize long.
func encodePage(page []byte, blk *Block, dims int) error {
	var count, payloadLen int
	payload := page[pageHeaderSize:]

	switch blk.Kind {
	case KindLeaf:
		count = len(blk.Points)
		payloadLen = count * leafEntrySize(dims)
		if payloadLen > len(payload) {
			return fmt.Errorf("%w: leaf with %d points exceeds page size %d", ErrInvalidOptions, count, len(page))
		}
		off := 0
		for i, p := range blk.Points {
			for _, c := range p {
				binary.LittleEndian.PutUint64(payload[off:], uint64(c))
				off += 8
			}
			binary.LittleEndian.PutUint64(payload[off:], uint64(blk.Values[i]))
			off += 8
		}
	case KindInner:
		count = len(blk.Children)
		payloadLen = len(blk.Splits)*splitSize + count*childSize
		if payloadLen > len(payload) {
			return fmt.Errorf("%w: inner block with %d children exceeds page size %d", ErrInvalidOptions, count, len(page))
		}
		off := 0
		for _, s := range blk.Splits {
			binary.LittleEndian.PutUint16(payload[off:], uint16(s.Axis))
			binary.LittleEndian.PutUint64(payload[off+2:], uint64(s.Threshold))
			off += splitSize
		}
		for _, c := range blk.Children {
			binary.LittleEndian.PutUint32(payload[off:], uint32(c))
			off += childSize
		}
	default:
		return fmt.Errorf("%w: unknown block kind %d", ErrInvalidOptions, blk.Kind)
	}

	page[4] = byte(blk.Kind)
	binary.LittleEndian.PutUint16(page[6:], uint16(count))
	binary.LittleEndian.PutUint32(page[8:], uint32(payloadLen))
	binary.LittleEndian.PutUint32(page[0:], hash.CRC32C(page[4:pageHeaderSize+payloadLen]))
	return nil
}

// verifyPage checks the header and checksum of a raw page.
func verifyPage(page []byte) error {
	if len(page) < pageHeaderSize {
		return fmt.Errorf("truncated page: %d bytes", len(page))
	}
	payloadLen := int(binary.LittleEndian.Uint32(page[8:]))
	if payloadLen > len(page)-pageHeaderSize {
		return fmt.Errorf("payload length %d exceeds page size %d", payloadLen, len(page))
	}
	want := binary.LittleEndian.Uint32(page[0:])
	if got := hash.CRC32C(page[4 : pageHeaderSize+payloadLen]); got != want {
		return fmt.Errorf("checksum mismatch: stored %08x, computed %08x", want, got)
	}
	return nil
}

// decodePage parses a verified page.
func decodePage(page []byte, dims int) (*Block, error) {
	kind := Kind(page[4])
	count := int(binary.LittleEndian.Uint16(page[6:]))
	payloadLen := int(binary.LittleEndian.Uint32(page[8:]))
	payload := page[pageHeaderSize : pageHeaderSize+payloadLen]

	switch kind {
	case KindLeaf:
		if payloadLen != count*leafEntrySize(dims) {
			return nil, fmt.Errorf("leaf payload %d bytes for %d points", payloadLen, count)
		}
		blk := &Block{
			Kind:   KindLeaf,
			Points: make([]model.Point, count),
			Values: make([]model.Value, count),
		}
		coords := make([]int64, count*dims)
		off := 0
		for i := 0; i < count; i++ {
			p := model.Point(coords[i*dims : (i+1)*dims : (i+1)*dims])
			for j := range p {
				p[j] = int64(binary.LittleEndian.Uint64(payload[off:]))
				off += 8
			}
			blk.Points[i] = p
			blk.Values[i] = model.Value(binary.LittleEndian.Uint64(payload[off:]))
			off += 8
		}
		return blk, nil

	case KindInner:
		if count < 2 {
			return nil, fmt.Errorf("inner block with %d children", count)
		}
		if payloadLen != (count-1)*splitSize+count*childSize {
			return nil, fmt.Errorf("inner payload %d bytes for %d children", payloadLen, count)
		}
		blk := &Block{
			Kind:     KindInner,
			Splits:   make([]Split, count-1),
			Children: make([]Address, count),
		}
		off := 0
		for i := range blk.Splits {
			axis := int(binary.LittleEndian.Uint16(payload[off:]))
			if axis >= dims {
				return nil, fmt.Errorf("split axis %d out of range", axis)
			}
			blk.Splits[i] = Split{Axis: axis, Threshold: int64(binary.LittleEndian.Uint64(payload[off+2:]))}
			off += splitSize
		}
		for i := range blk.Children {
			blk.Children[i] = Address(binary.LittleEndian.Uint32(payload[off:]))
			off += childSize
		}
		return blk, nil

	default:
		return nil, fmt.Errorf("unknown block kind %d", kind)
	}
}
