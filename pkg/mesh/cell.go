package mesh

import (
	"slices"
	"strconv"
	"strings"
)

// CellType tags the geometric variant of a cell.
type CellType int

const (
	// CellSlab is a 1-D line segment with two point faces.
	CellSlab CellType = iota
	// CellPolygon is a 2-D polygon whose faces are edges.
	CellPolygon
	// CellPolyhedron is a 3-D polyhedron whose faces are polygons.
	CellPolyhedron
)

func (t CellType) String() string {
	switch t {
	case CellSlab:
		return "slab"
	case CellPolygon:
		return "polygon"
	case CellPolyhedron:
		return "polyhedron"
	default:
		return "unknown"
	}
}

// Face is one face of a cell. The normal points out of the owning cell.
type Face struct {
	VertexIDs   []int
	Normal      Vector3
	Centroid    Vector3
	Area        float64
	HasNeighbor bool
	NeighborID  int // global id of the cell across the face, valid when HasNeighbor
}

// NumDOFs returns the number of face degrees of freedom. With a linear
// nodal basis there is one DOF per face vertex.
func (f *Face) NumDOFs() int { return len(f.VertexIDs) }

// VertexKey returns a canonical key for the face's vertex set, independent
// of vertex order. Two faces describe the same geometric face exactly when
// their keys match.
func (f *Face) VertexKey() string {
	ids := slices.Clone(f.VertexIDs)
	slices.Sort(ids)
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}

// Cell is a mesh cell. The zero value is not usable.
type Cell struct {
	GlobalID    int
	LocalID     int
	PartitionID int
	Type        CellType
	Centroid    Vector3
	Faces       []Face
}

// MaxFaceDOFs returns the largest face DOF count of the cell.
func (c *Cell) MaxFaceDOFs() int {
	m := 0
	for i := range c.Faces {
		m = max(m, c.Faces[i].NumDOFs())
	}
	return m
}
