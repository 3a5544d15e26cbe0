package segment

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/hupe1980/bkdgo/internal/hash"
	"github.com/hupe1980/bkdgo/model"
)

var errCorruptBloom = errors.New("corrupted bloom filter")

// BloomFilter answers "definitely absent" for points not in the segment.
// It lets inserts skip the tree descent when checking for duplicates.
type BloomFilter struct {
	bits    []uint64
	numBits uint64
	k       uint32
	count   uint32
}

// BloomFilterSize computes the bit count and hash count for n elements at
// the given false-positive rate.
func BloomFilterSize(n int, fpr float64) (numBits uint64, k uint32) {
	if n <= 0 {
		n = 1
	}
	if fpr <= 0 || fpr >= 1 {
		fpr = DefaultBloomFPR
	}

	// m = -n*ln(p) / ln(2)^2, k = (m/n) * ln(2)
	m := float64(-n) * math.Log(fpr) / (math.Ln2 * math.Ln2)
	numBits = max((uint64(m)+63)/64*64, 64)
	k = uint32(math.Ceil(m / float64(n) * math.Ln2))
	return numBits, min(max(k, 1), 16)
}

// NewBloomFilter creates a filter sized for n points.
func NewBloomFilter(n int, fpr float64) *BloomFilter {
	numBits, k := BloomFilterSize(n, fpr)
	return &BloomFilter{bits: make([]uint64, numBits/64), numBits: numBits, k: k}
}

// Add inserts p.
func (bf *BloomFilter) Add(p model.Point) {
	h1, h2 := hash.PointHash(p)
	for i := uint32(0); i < bf.k; i++ {
		bit := (h1 + uint64(i)*h2) % bf.numBits
		bf.bits[bit/64] |= 1 << (bit % 64)
	}
	bf.count++
}

// MayContain returns false only if p was never added.
func (bf *BloomFilter) MayContain(p model.Point) bool {
	h1, h2 := hash.PointHash(p)
	for i := uint32(0); i < bf.k; i++ {
		bit := (h1 + uint64(i)*h2) % bf.numBits
		if bf.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of added points.
func (bf *BloomFilter) Count() uint32 { return bf.count }

// EstimatedFalsePositiveRate returns (1 - e^(-kn/m))^k.
func (bf *BloomFilter) EstimatedFalsePositiveRate() float64 {
	if bf.count == 0 {
		return 0
	}
	kn := float64(bf.k) * float64(bf.count)
	return math.Pow(1-math.Exp(-kn/float64(bf.numBits)), float64(bf.k))
}

// MarshalBinary encodes numBits u64 | k u32 | count u32 | words.
func (bf *BloomFilter) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16+8*len(bf.bits))
	binary.LittleEndian.PutUint64(buf[0:], bf.numBits)
	binary.LittleEndian.PutUint32(buf[8:], bf.k)
	binary.LittleEndian.PutUint32(buf[12:], bf.count)
	for i, w := range bf.bits {
		binary.LittleEndian.PutUint64(buf[16+8*i:], w)
	}
	return buf, nil
}

// UnmarshalBinary decodes the MarshalBinary format.
func (bf *BloomFilter) UnmarshalBinary(data []byte) error {
	if len(data) < 16 {
		return errCorruptBloom
	}
	numBits := binary.LittleEndian.Uint64(data[0:])
	k := binary.LittleEndian.Uint32(data[8:])
	if numBits < 64 || numBits%64 != 0 || k < 1 || k > 16 {
		return errCorruptBloom
	}
	if uint64(len(data)-16) != numBits/8 {
		return errCorruptBloom
	}
	bf.numBits = numBits
	bf.k = k
	bf.count = binary.LittleEndian.Uint32(data[12:])
	bf.bits = make([]uint64, numBits/64)
	for i := range bf.bits {
		bf.bits[i] = binary.LittleEndian.Uint64(data[16+8*i:])
	}
	return nil
}
