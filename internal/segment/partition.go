package segment

import (
	"cmp"
	"math/bits"
	"slices"

	"github.com/hupe1980/bkdgo/model"
)

// partition splits entries into at most fanout contiguous ranges along axis
// at quantile boundaries. It returns the thresholds and the start index of
// every range after the first. Entries must not all be equal on axis.
func partition(entries []model.Entry, axis, fanout int) ([]Split, []int) {
	n := len(entries)
	splits := make([]Split, 0, fanout-1)
	bounds := make([]int, 0, fanout-1)

	start := 0
	for i := 1; i < fanout; i++ {
		pos := i * n / fanout
		if pos <= start {
			continue
		}
		sub := entries[start:]
		selectKth(sub, pos-start, axis)
		t := sub[pos-start].Point[axis]
		lt := partitionLess(sub, axis, t)
		if lt == 0 {
			// Boundary falls into a run of equal coordinates already split off.
			continue
		}
		splits = append(splits, Split{Axis: axis, Threshold: t})
		start += lt
		bounds = append(bounds, start)
	}

	if len(splits) == 0 {
		// Skewed data: every quantile landed on the minimum. Split just above it.
		lo, _ := axisBounds(entries, axis)
		t := int64(0)
		found := false
		for _, e := range entries {
			c := e.Point[axis]
			if c > lo && (!found || c < t) {
				t, found = c, true
			}
		}
		lt := partitionLess(entries, axis, t)
		splits = append(splits, Split{Axis: axis, Threshold: t})
		bounds = append(bounds, lt)
	}
	return splits, bounds
}

// partitionLess moves entries with coordinate < t to the front and returns their count.
func partitionLess(entries []model.Entry, axis int, t int64) int {
	i := 0
	for j := range entries {
		if entries[j].Point[axis] < t {
			entries[i], entries[j] = entries[j], entries[i]
			i++
		}
	}
	return i
}

// selectKth reorders entries so that entries[k] holds the k-th smallest
// coordinate on axis. Quickselect with median-of-three pivots and a
// three-way partition; falls back to sorting when the pivot budget runs out.
func selectKth(entries []model.Entry, k, axis int) {
	lo, hi := 0, len(entries)-1
	budget := 2 * bits.Len(uint(len(entries)))

	for lo < hi {
		if budget == 0 {
			slices.SortFunc(entries[lo:hi+1], func(a, b model.Entry) int {
				return cmp.Compare(a.Point[axis], b.Point[axis])
			})
			return
		}
		budget--

		p := medianOfThree(entries, lo, hi, axis)
		lt, gt, i := lo, hi, lo
		for i <= gt {
			c := entries[i].Point[axis]
			switch {
			case c < p:
				entries[lt], entries[i] = entries[i], entries[lt]
				lt++
				i++
			case c > p:
				entries[i], entries[gt] = entries[gt], entries[i]
				gt--
			default:
				i++
			}
		}

		switch {
		case k < lt:
			hi = lt - 1
		case k > gt:
			lo = gt + 1
		default:
			return
		}
	}
}

func medianOfThree(entries []model.Entry, lo, hi, axis int) int64 {
	a := entries[lo].Point[axis]
	b := entries[lo+(hi-lo)/2].Point[axis]
	c := entries[hi].Point[axis]
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		b = a
	}
	return b
}
