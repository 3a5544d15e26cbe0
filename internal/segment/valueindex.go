package segment

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sort"

	"github.com/hupe1980/bkdgo/internal/compress"
	"github.com/hupe1980/bkdgo/internal/hash"
	"github.com/hupe1980/bkdgo/model"
)

const (
	valueRecordSize   = 12
	valueChunkRecords = 512
)

// valueRecord maps a value to the leaf holding its point.
type valueRecord struct {
	value model.Value
	leaf  Address
}

// chunkRef locates one compressed chunk of the value index.
type chunkRef struct {
	first  model.Value
	offset uint64
	length uint32
	crc    uint32
}

func collectValueRecords(blocks []Block) []valueRecord {
	var out []valueRecord
	for addr := range blocks {
		blk := &blocks[addr]
		if !blk.IsLeaf() {
			continue
		}
		for _, v := range blk.Values {
			out = append(out, valueRecord{value: v, leaf: Address(addr)})
		}
	}
	slices.SortFunc(out, func(a, b valueRecord) int {
		switch {
		case a.value < b.value:
			return -1
		case a.value > b.value:
			return 1
		}
		return 0
	})
	return out
}

// encodeValueChunks compresses records into chunks laid out from base.
func encodeValueChunks(records []valueRecord, comp compress.Type, base uint64) ([]byte, []chunkRef, error) {
	var (
		out  []byte
		refs []chunkRef
		raw  = make([]byte, 0, valueChunkRecords*valueRecordSize)
	)
	for start := 0; start < len(records); start += valueChunkRecords {
		end := min(start+valueChunkRecords, len(records))
		raw = raw[:0]
		for _, r := range records[start:end] {
			raw = binary.LittleEndian.AppendUint64(raw, uint64(r.value))
			raw = binary.LittleEndian.AppendUint32(raw, uint32(r.leaf))
		}
		block, err := compress.Encode(comp, raw)
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, chunkRef{
			first:  records[start].value,
			offset: base + uint64(len(out)),
			length: uint32(len(block)),
			crc:    hash.CRC32C(block),
		})
		out = append(out, block...)
	}
	return out, refs, nil
}

func decodeValueChunk(block []byte, comp compress.Type) ([]byte, error) {
	raw, err := compress.Decode(comp, block)
	if err != nil {
		return nil, err
	}
	if len(raw)%valueRecordSize != 0 {
		return nil, fmt.Errorf("value chunk of %d bytes", len(raw))
	}
	return raw, nil
}

// searchValueChunk binary searches a decoded chunk for v.
func searchValueChunk(raw []byte, v model.Value) (Address, bool) {
	n := len(raw) / valueRecordSize
	i := sort.Search(n, func(i int) bool {
		return model.Value(binary.LittleEndian.Uint64(raw[i*valueRecordSize:])) >= v
	})
	if i < n && model.Value(binary.LittleEndian.Uint64(raw[i*valueRecordSize:])) == v {
		return Address(binary.LittleEndian.Uint32(raw[i*valueRecordSize+8:])), true
	}
	return NoAddress, false
}

// findChunk returns the index of the only chunk that may hold v, or -1.
func findChunk(refs []chunkRef, v model.Value) int {
	i := sort.Search(len(refs), func(i int) bool { return refs[i].first > v })
	return i - 1
}
