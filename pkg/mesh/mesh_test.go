package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/sweeptower/pkg/errors"
)

func TestNewSlabPartitions(t *testing.T) {
	g, err := NewSlab(4, 2)
	require.NoError(t, err)
	require.Equal(t, 4, g.NumCells())

	p1, err := g.Partition(1)
	require.NoError(t, err)
	assert.Equal(t, 2, p1.NumLocalCells())
	assert.Equal(t, 2, p1.LocalCell(0).GlobalID)
	assert.False(t, p1.IsLocal(1))
	assert.True(t, p1.IsLocal(3))
	assert.Equal(t, 0, p1.PartitionOf(0))

	idx, ok := p1.LocalIndex(3)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	_, ok = p1.LocalIndex(0)
	assert.False(t, ok, "global 0 lives on partition 0")
}

func TestNewSlabInvalid(t *testing.T) {
	_, err := NewSlab(0, 1)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "err = %v", err)
	_, err = NewSlab(2, 3)
	assert.Error(t, err)
}

func TestOrthoGridNeighbors(t *testing.T) {
	g, err := NewOrthoGrid(3, 2, 3, 2)
	require.NoError(t, err)
	require.Equal(t, 6, g.NumPartitions())

	// Every interior face has a twin with the same vertex set and the
	// opposite normal.
	for gid := range g.NumCells() {
		c := g.Cell(gid)
		for fi := range c.Faces {
			f := &c.Faces[fi]
			if !f.HasNeighbor {
				continue
			}
			nb := g.Cell(f.NeighborID)
			found := false
			for nfi := range nb.Faces {
				nf := &nb.Faces[nfi]
				if nf.HasNeighbor && nf.NeighborID == gid && nf.VertexKey() == f.VertexKey() {
					assert.InDelta(t, 0, nf.Normal.Add(f.Normal).Norm(), 1e-12, "cell %d face %d", gid, fi)
					found = true
				}
			}
			assert.True(t, found, "cell %d face %d: no twin on neighbor %d", gid, fi, f.NeighborID)
		}
	}
}

func TestTwinFace(t *testing.T) {
	g, err := NewNotch()
	require.NoError(t, err)
	m, _ := g.Partition(0)

	nb, face, ok, err := TwinFace(m, 0, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [2]int{1, 3}, [2]int{nb, face})

	_, _, ok, err = TwinFace(m, 0, 0)
	assert.NoError(t, err)
	assert.False(t, ok, "boundary face has no twin")

	_, _, _, err = TwinFace(m, 0, 42)
	assert.True(t, errors.Is(err, errors.ErrCodeCellOutOfRange), "err = %v", err)
}

func TestVertexKeyOrderIndependent(t *testing.T) {
	a := Face{VertexIDs: []int{3, 1, 2}}
	b := Face{VertexIDs: []int{2, 3, 1}}
	assert.Equal(t, a.VertexKey(), b.VertexKey())
	assert.Equal(t, 3, a.NumDOFs())
}

func TestNewGlobalRejectsBadNeighbor(t *testing.T) {
	cells := []*Cell{{GlobalID: 0, Faces: []Face{{VertexIDs: []int{0}, HasNeighbor: true, NeighborID: 9}}}}
	_, err := NewGlobal(cells, 1)
	assert.True(t, errors.Is(err, errors.ErrCodeCellOutOfRange), "err = %v", err)
}

func TestNotchTwins(t *testing.T) {
	for _, tt := range []struct {
		name  string
		build func() (*Global, error)
		parts int
	}{
		{"local", NewNotch, 1},
		{"split", NewSplitNotch, 2},
	} {
		t.Run(tt.name, func(t *testing.T) {
			g, err := tt.build()
			require.NoError(t, err)
			require.Equal(t, tt.parts, g.NumPartitions())
			assert.Equal(t, tt.parts-1, g.Cell(1).PartitionID)

			// Each shared wall of the square matches a wall of the U.
			sq, u := g.Cell(1), g.Cell(0)
			for _, f := range sq.Faces {
				if !f.HasNeighbor {
					continue
				}
				found := false
				for _, uf := range u.Faces {
					if uf.HasNeighbor && uf.VertexKey() == f.VertexKey() {
						found = uf.Normal.Dot(f.Normal) == -1
					}
				}
				assert.True(t, found, "face %v has no opposing twin", f.VertexIDs)
			}
		})
	}
}
