package testutil

import (
	"math/rand"
	"slices"
	"sync"

	"github.com/hupe1980/bkdgo/model"
)

// RNG encapsulates a seeded random number generator. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int64Range returns a pseudo-random number in [lo, hi].
func (r *RNG) Int64Range(lo, hi int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.rand.Int63n(hi-lo+1)
}

// Point returns a random point with coordinates in [lo, hi].
func (r *RNG) Point(dims int, lo, hi int64) model.Point {
	p := make(model.Point, dims)
	for i := range p {
		p[i] = r.Int64Range(lo, hi)
	}
	return p
}

// UniqueEntries returns n entries with distinct points in [lo, hi]^dims and
// values 1..n. The range must hold at least n points.
func (r *RNG) UniqueEntries(n, dims int, lo, hi int64) []model.Entry {
	seen := make(map[string]struct{}, n)
	out := make([]model.Entry, 0, n)
	for len(out) < n {
		p := r.Point(dims, lo, hi)
		key := p.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, model.Entry{Point: p, Value: model.Value(len(out) + 1)})
	}
	return out
}

// Box returns a random valid box inside [lo, hi]^dims.
func (r *RNG) Box(dims int, lo, hi int64) model.Box {
	b := make(model.Box, dims)
	for i := range b {
		a, c := r.Int64Range(lo, hi), r.Int64Range(lo, hi)
		if a > c {
			a, c = c, a
		}
		b[i] = model.Range{Min: a, Max: c}
	}
	return b
}

// Oracle is a brute-force point set used as ground truth.
type Oracle struct {
	entries map[string]model.Entry
}

// NewOracle returns an empty oracle.
func NewOracle() *Oracle {
	return &Oracle{entries: make(map[string]model.Entry)}
}

// Insert adds p unless an equal point exists. It reports whether p was added.
func (o *Oracle) Insert(p model.Point, v model.Value) bool {
	key := p.String()
	if _, ok := o.entries[key]; ok {
		return false
	}
	o.entries[key] = model.Entry{Point: p.Clone(), Value: v}
	return true
}

// Delete removes the entry carrying v.
func (o *Oracle) Delete(v model.Value) bool {
	for k, e := range o.entries {
		if e.Value == v {
			delete(o.entries, k)
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (o *Oracle) Len() int { return len(o.entries) }

// Query returns all entries inside box, sorted.
func (o *Oracle) Query(box model.Box) []model.Entry {
	var out []model.Entry
	for _, e := range o.entries {
		if box.Contains(e.Point) {
			out = append(out, e)
		}
	}
	SortEntries(out)
	return out
}

// SortEntries orders entries by point, then by value.
func SortEntries(entries []model.Entry) {
	slices.SortFunc(entries, func(a, b model.Entry) int {
		if c := a.Point.Compare(b.Point); c != 0 {
			return c
		}
		switch {
		case a.Value < b.Value:
			return -1
		case a.Value > b.Value:
			return 1
		}
		return 0
	})
}
