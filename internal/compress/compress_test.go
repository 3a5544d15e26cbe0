package compress

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	compressible := bytes.Repeat([]byte("value-index-chunk "), 256)

	random := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(random)

	for _, typ := range []Type{None, LZ4, ZSTD} {
		t.Run(typ.String(), func(t *testing.T) {
			for _, data := range [][]byte{compressible, random, {}} {
				enc, err := Encode(typ, data)
				require.NoError(t, err)

				dec, err := Decode(typ, enc)
				require.NoError(t, err)
				assert.Equal(t, len(data), len(dec))
				assert.True(t, bytes.Equal(data, dec))
			}
		})
	}
}

func TestEncode_ShrinksCompressibleData(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4}, 1024)

	for _, typ := range []Type{LZ4, ZSTD} {
		enc, err := Encode(typ, data)
		require.NoError(t, err)
		assert.Less(t, len(enc), len(data)/2, typ.String())
	}
}

func TestDecode_Corrupt(t *testing.T) {
	data := bytes.Repeat([]byte("abc"), 512)
	enc, err := Encode(LZ4, data)
	require.NoError(t, err)

	_, err = Decode(LZ4, enc[:4])
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode(LZ4, enc[:len(enc)-5])
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode(None, enc)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestType(t *testing.T) {
	assert.True(t, ZSTD.Valid())
	assert.False(t, Type(9).Valid())
	assert.Equal(t, "compress.Type(9)", Type(9).String())

	_, err := Encode(Type(9), []byte("x"))
	assert.Error(t, err)
}
