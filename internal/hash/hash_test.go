package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C_StreamingMatchesOneShot(t *testing.T) {
	data := []byte("block-addressed partition tree")

	h := NewCRC32C()
	_, _ = h.Write(data[:10])
	_, _ = h.Write(data[10:])

	assert.Equal(t, CRC32C(data), h.Sum32())
	assert.Equal(t, CRC32C(data), UpdateCRC32C(CRC32C(data[:10]), data[10:]))
}

func TestPointHash(t *testing.T) {
	a1, a2 := PointHash([]int64{1, 2})
	b1, b2 := PointHash([]int64{1, 2})
	c1, _ := PointHash([]int64{2, 1})

	assert.Equal(t, a1, b1)
	assert.Equal(t, a2, b2)
	assert.NotEqual(t, a1, c1)
	assert.Equal(t, uint64(1), a2&1)
}
