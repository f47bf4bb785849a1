package domain

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegion(t *testing.T) {
	square := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}

	t.Run("polygon", func(t *testing.T) {
		r, err := NewRegion("Square", square)
		require.NoError(t, err)
		assert.Equal(t, "Square", r.Name)
	})

	t.Run("multipolygon", func(t *testing.T) {
		_, err := NewRegion("Islands", orb.MultiPolygon{square})
		assert.NoError(t, err)
	})

	t.Run("rejects non-areal geometry", func(t *testing.T) {
		_, err := NewRegion("Point", orb.Point{1, 1})
		assert.Error(t, err)
		_, err = NewRegion("Nil", nil)
		assert.Error(t, err)
		_, err = NewRegion("Open", orb.Polygon{{{0, 0}, {1, 1}}})
		assert.Error(t, err)
		_, err = NewRegion("Empty", orb.MultiPolygon{})
		assert.Error(t, err)
	})
}

func TestRegion_Contains(t *testing.T) {
	// 10x10 square with a 4x4 hole in the middle.
	r, err := NewRegion("Ring", orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{3, 3}, {7, 3}, {7, 7}, {3, 7}, {3, 3}},
	})
	require.NoError(t, err)

	assert.True(t, r.Contains(orb.Point{1, 1}))
	assert.False(t, r.Contains(orb.Point{5, 5}), "hole excluded")
	assert.False(t, r.Contains(orb.Point{11, 5}))
}

func TestRegion_BoundAndCentroid(t *testing.T) {
	r, err := NewRegion("Rect", orb.Polygon{{{0, 0}, {20, 0}, {20, 10}, {0, 10}, {0, 0}}})
	require.NoError(t, err)

	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{20, 10}}, r.Bound())
	c := r.Centroid()
	assert.InDelta(t, 10.0, c[0], 1e-9)
	assert.InDelta(t, 5.0, c[1], 1e-9)
}
