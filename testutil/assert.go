package testutil

import (
	"slices"
	"testing"

	"github.com/hupe1980/bkdgo/model"
	"github.com/stretchr/testify/assert"
)

// AssertSameEntries checks that got and want hold the same entries in any order.
func AssertSameEntries(t testing.TB, want, got []model.Entry, msgAndArgs ...any) bool {
	t.Helper()
	w := slices.Clone(want)
	g := slices.Clone(got)
	SortEntries(w)
	SortEntries(g)
	if len(w) == 0 && len(g) == 0 {
		return true
	}
	return assert.Equal(t, w, g, msgAndArgs...)
}
