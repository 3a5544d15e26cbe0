package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoint_EqualAndCompare(t *testing.T) {
	a := Point{1, 2}
	b := Point{1, 3}

	assert.True(t, a.Equal(Point{1, 2}))
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(Point{1}))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a.Clone()))
	assert.Equal(t, "(1, 2)", a.String())
}

func TestPoint_CloneIsIndependent(t *testing.T) {
	a := Point{7, 8}
	c := a.Clone()
	c[0] = 99
	assert.Equal(t, int64(7), a[0])
}

func TestBox_Validate(t *testing.T) {
	tests := []struct {
		name    string
		box     Box
		k       int
		wantErr bool
	}{
		{"valid", Box{{0, 10}, {-5, 5}}, 2, false},
		{"degenerate", Box{{3, 3}, {4, 4}}, 2, false},
		{"min greater than max", Box{{0, 10}, {6, 5}}, 2, true},
		{"wrong dims", Box{{0, 10}}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.box.Validate(tt.k)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidBox)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestBox_ContainsAndIntersects(t *testing.T) {
	b := NewBox(Point{0, 0}, Point{10, 10})

	assert.True(t, b.Contains(Point{0, 10}))
	assert.True(t, b.Contains(Point{5, 5}))
	assert.False(t, b.Contains(Point{11, 5}))
	assert.False(t, b.Contains(Point{5}))

	assert.True(t, b.Intersects(NewBox(Point{10, 10}, Point{20, 20})))
	assert.False(t, b.Intersects(NewBox(Point{11, 0}, Point{20, 20})))

	full := FullBox(2)
	assert.True(t, full.Contains(Point{math.MinInt64, math.MaxInt64}))
}

func TestBoundingBox(t *testing.T) {
	assert.Nil(t, BoundingBox(nil))

	bb := BoundingBox([]Entry{
		{Point: Point{3, -1}, Value: 1},
		{Point: Point{-2, 4}, Value: 2},
		{Point: Point{0, 0}, Value: 3},
	})
	assert.Equal(t, Box{{-2, 3}, {-1, 4}}, bb)
}
