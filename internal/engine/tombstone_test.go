package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bkdgo/internal/compress"
	"github.com/hupe1980/bkdgo/model"
)

func TestTombstones(t *testing.T) {
	ts := NewTombstones()
	assert.True(t, ts.Add(3))
	assert.False(t, ts.Add(3))
	assert.True(t, ts.Contains(3))
	assert.False(t, ts.Contains(4))

	snap := ts.Snapshot()
	assert.Same(t, snap, ts.Snapshot())

	ts.Add(1 << 40)
	assert.False(t, snap.Contains(1<<40), "snapshot is immutable")
	assert.Equal(t, 2, ts.Len())
	assert.Equal(t, []model.Value{1 << 40}, ts.Since(snap))
	assert.Len(t, ts.Since(nil), 2)
}

func TestTombstoneEncoding(t *testing.T) {
	for _, ct := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
		t.Run(ct.String(), func(t *testing.T) {
			sets := map[model.SegmentID]*Tombstones{
				1: NewTombstones(),
				7: NewTombstones(),
				9: NewTombstones(),
			}
			for v := model.Value(0); v < 1000; v += 7 {
				sets[1].Add(v)
			}
			sets[7].Add(42)

			data, err := encodeTombstones(sets, ct)
			require.NoError(t, err)

			got, err := decodeTombstones(data)
			require.NoError(t, err)
			require.Len(t, got, 2, "empty sets are not stored")
			assert.Equal(t, sets[1].Len(), got[1].Len())
			assert.True(t, got[1].Contains(994))
			assert.True(t, got[7].Contains(42))

			data[len(data)-1] ^= 0xff
			_, err = decodeTombstones(data)
			assert.ErrorIs(t, err, errCorruptTombstones)
		})
	}
}

func TestDecodeTombstonesRejectsGarbage(t *testing.T) {
	_, err := decodeTombstones(nil)
	assert.ErrorIs(t, err, errCorruptTombstones)
	_, err = decodeTombstones([]byte("definitely not a tombstone file"))
	assert.ErrorIs(t, err, errCorruptTombstones)
}
