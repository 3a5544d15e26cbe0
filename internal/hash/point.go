package hash

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

// PointHash returns two independent 64-bit hashes of the coordinates.
// h2 is always odd.
func PointHash(coords []int64) (h1, h2 uint64) {
	h1 = fnvOffset
	h2 = fnvOffset ^ 0x5555555555555555
	for _, c := range coords {
		u := uint64(c)
		for i := 0; i < 8; i++ {
			h1 ^= (u >> (8 * i)) & 0xff
			h1 *= fnvPrime
		}
	}
	for j := len(coords) - 1; j >= 0; j-- {
		u := uint64(coords[j])
		for i := 7; i >= 0; i-- {
			h2 ^= (u >> (8 * i)) & 0xff
			h2 *= fnvPrime
		}
	}
	return h1, h2 | 1
}
