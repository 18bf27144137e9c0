package quadrature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/sweeptower/pkg/errors"
)

func TestNewProductCounts(t *testing.T) {
	tests := []struct {
		dim, az, polar int
		want           int
	}{
		{2, 1, 1, 4},
		{2, 3, 2, 24},
		{3, 2, 1, 16},
		{3, 2, 3, 48},
	}
	for _, tt := range tests {
		set, err := NewProduct(tt.dim, tt.az, tt.polar)
		require.NoError(t, err)
		assert.Equal(t, tt.want, set.Len(), "NewProduct(%d,%d,%d)", tt.dim, tt.az, tt.polar)
	}
}

func TestDirectionsAreUnitAndWeighted(t *testing.T) {
	set, err := NewProduct(3, 3, 2)
	require.NoError(t, err)

	var total float64
	for i, d := range set.Directions {
		assert.Equal(t, i, d.Index)
		assert.NoError(t, errors.ValidateDirection(d.Omega.X, d.Omega.Y, d.Omega.Z), "direction %d", i)
		sx, sy, sz := octantSigns(d.Octant)
		assert.True(t, d.Omega.X*sx > 0 && d.Omega.Y*sy > 0 && d.Omega.Z*sz > 0,
			"direction %d %v not in octant %d", i, d.Omega, d.Octant)
		total += d.Weight
	}
	assert.InDelta(t, 1, total, 1e-12)
}

func TestNewProductRejectsBadInput(t *testing.T) {
	for _, args := range [][3]int{{1, 1, 1}, {2, 0, 1}, {3, 1, 0}} {
		_, err := NewProduct(args[0], args[1], args[2])
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "NewProduct%v: err = %v", args, err)
	}
}

func TestGroup(t *testing.T) {
	set, err := NewProduct(2, 3, 1)
	require.NoError(t, err)
	groups, err := set.Group(2)
	require.NoError(t, err)

	// 4 quadrants x (2 + 1)
	require.Len(t, groups, 8)
	seen := make(map[int]bool)
	for _, g := range groups {
		assert.NotEmpty(t, g.Angles)
		assert.LessOrEqual(t, len(g.Angles), 2)
		for _, a := range g.Angles {
			assert.False(t, seen[a], "angle %d in two groups", a)
			seen[a] = true
			assert.Equal(t, g.Octant, set.Directions[a].Octant, "angle %d", a)
		}
		assert.InDelta(t, 1, g.Representative.Norm(), 1e-12)
	}
	assert.Len(t, seen, set.Len())

	_, err = set.Group(0)
	assert.Error(t, err)
}
