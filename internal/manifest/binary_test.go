package manifest

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/bkdgo/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleManifest() *Manifest {
	return &Manifest{
		Version:   CurrentVersion,
		ID:        7,
		CreatedAt: time.Unix(0, 1700000000123456789),
		IndexID:   uuid.MustParse("5f1d7c0e-5a0b-4bd6-9b57-8a0f4b2c9d11"),
		Config: Config{
			Dims:           2,
			BufferCapacity: 4096,
			LeafCapacity:   128,
			Fanout:         16,
			GrowthFactor:   2,
			SplitPolicy:    1,
			Compression:    2,
		},
		NextSegmentID: 12,
		Levels: []LevelInfo{
			{Level: 0, SegmentID: 11, Path: "segment-000011.kdb", Root: 37, PointCount: 4096, Size: 1 << 20, BBox: model.Box{{Min: -5, Max: 5}, {Min: 0, Max: 9}}},
			{Level: 2, SegmentID: 9, Path: "segment-000009.kdb", Root: 1201, PointCount: 16000, Size: 4 << 20, BBox: model.Box{{Min: -50, Max: 50}, {Min: -1, Max: 90}}},
		},
		Tombstones: TombstoneInfo{Path: "tombstones-000007.bin"},
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	m := sampleManifest()

	var buf bytes.Buffer
	require.NoError(t, m.WriteBinary(&buf))

	got, err := ReadBinary(&buf)
	require.NoError(t, err)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
	got.CreatedAt = m.CreatedAt
	assert.Equal(t, m, got)
}

func TestBinaryEmptyLevels(t *testing.T) {
	m := New(Config{Dims: 3, BufferCapacity: 10, LeafCapacity: 4, Fanout: 4, GrowthFactor: 2})

	var buf bytes.Buffer
	require.NoError(t, m.WriteBinary(&buf))
	got, err := ReadBinary(&buf)
	require.NoError(t, err)
	assert.Empty(t, got.Levels)
	assert.Equal(t, m.IndexID, got.IndexID)
	assert.Equal(t, model.SegmentID(1), got.NextSegmentID)
}

func TestBinaryRejectsBBoxDimensionMismatch(t *testing.T) {
	m := sampleManifest()
	m.Levels[0].BBox = model.Box{{Min: 0, Max: 1}}
	assert.Error(t, m.WriteBinary(&bytes.Buffer{}))
}

func TestBinaryDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleManifest().WriteBinary(&buf))
	data := buf.Bytes()

	flipped := bytes.Clone(data)
	flipped[20] ^= 0x01
	_, err := ReadBinary(bytes.NewReader(flipped))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = ReadBinary(bytes.NewReader(data[:len(data)-3]))
	assert.ErrorIs(t, err, ErrCorrupt)

	badMagic := bytes.Clone(data)
	badMagic[0] ^= 0xff
	_, err = ReadBinary(bytes.NewReader(badMagic))
	assert.ErrorIs(t, err, ErrCorrupt)

	newer := bytes.Clone(data)
	binary.LittleEndian.PutUint32(newer[4:], 99)
	_, err = ReadBinary(bytes.NewReader(newer))
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}
