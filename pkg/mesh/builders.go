package mesh

import "github.com/matzehuels/sweeptower/pkg/errors"

// NewSlab builds a 1-D chain of n slab cells on [0,1], split into
// contiguous blocks over the given number of partitions. Cell i has vertex
// ids i and i+1; face 0 points in -x and face 1 in +x.
func NewSlab(n, partitions int) (*Global, error) {
	if n <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "slab needs at least one cell, got %d", n)
	}
	if partitions <= 0 || partitions > n {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "cannot split %d slab cells over %d partitions", n, partitions)
	}
	h := 1.0 / float64(n)
	cells := make([]*Cell, n)
	for i := range n {
		x0, x1 := float64(i)*h, float64(i+1)*h
		left := Face{
			VertexIDs: []int{i},
			Normal:    Vec(-1, 0, 0),
			Centroid:  Vec(x0, 0, 0),
			Area:      1,
		}
		if i > 0 {
			left.HasNeighbor, left.NeighborID = true, i-1
		}
		right := Face{
			VertexIDs: []int{i + 1},
			Normal:    Vec(1, 0, 0),
			Centroid:  Vec(x1, 0, 0),
			Area:      1,
		}
		if i < n-1 {
			right.HasNeighbor, right.NeighborID = true, i+1
		}
		cells[i] = &Cell{
			GlobalID:    i,
			PartitionID: i * partitions / n,
			Type:        CellSlab,
			Centroid:    Vec((x0+x1)/2, 0, 0),
			Faces:       []Face{left, right},
		}
	}
	return NewGlobal(cells, partitions)
}

// NewOrthoGrid builds an nx×ny grid of unit-square quadrilaterals on
// [0,1]² decomposed into px×py rectangular partition blocks. Cell (i,j)
// has global id j*nx+i and partition (j*py/ny)*px + i*px/nx. Faces are
// ordered left, right, bottom, top.
func NewOrthoGrid(nx, ny, px, py int) (*Global, error) {
	if nx <= 0 || ny <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "grid dimensions must be positive, got %dx%d", nx, ny)
	}
	if px <= 0 || py <= 0 || px > nx || py > ny {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "cannot split %dx%d grid into %dx%d blocks", nx, ny, px, py)
	}
	dx, dy := 1.0/float64(nx), 1.0/float64(ny)
	vid := func(i, j int) int { return j*(nx+1) + i }
	gid := func(i, j int) int { return j*nx + i }

	cells := make([]*Cell, nx*ny)
	for j := range ny {
		for i := range nx {
			x0, x1 := float64(i)*dx, float64(i+1)*dx
			y0, y1 := float64(j)*dy, float64(j+1)*dy
			xm, ym := (x0+x1)/2, (y0+y1)/2

			faces := []Face{
				{VertexIDs: []int{vid(i, j+1), vid(i, j)}, Normal: Vec(-1, 0, 0), Centroid: Vec(x0, ym, 0), Area: dy},
				{VertexIDs: []int{vid(i+1, j), vid(i+1, j+1)}, Normal: Vec(1, 0, 0), Centroid: Vec(x1, ym, 0), Area: dy},
				{VertexIDs: []int{vid(i, j), vid(i+1, j)}, Normal: Vec(0, -1, 0), Centroid: Vec(xm, y0, 0), Area: dx},
				{VertexIDs: []int{vid(i+1, j+1), vid(i, j+1)}, Normal: Vec(0, 1, 0), Centroid: Vec(xm, y1, 0), Area: dx},
			}
			if i > 0 {
				faces[0].HasNeighbor, faces[0].NeighborID = true, gid(i-1, j)
			}
			if i < nx-1 {
				faces[1].HasNeighbor, faces[1].NeighborID = true, gid(i+1, j)
			}
			if j > 0 {
				faces[2].HasNeighbor, faces[2].NeighborID = true, gid(i, j-1)
			}
			if j < ny-1 {
				faces[3].HasNeighbor, faces[3].NeighborID = true, gid(i, j+1)
			}

			cells[gid(i, j)] = &Cell{
				GlobalID:    gid(i, j),
				PartitionID: (j*py/ny)*px + i*px/nx,
				Type:        CellPolygon,
				Centroid:    Vec(xm, ym, 0),
				Faces:       faces,
			}
		}
	}
	return NewGlobal(cells, px*py)
}

// NewNotch builds two interlocking polygons on a single partition: a
// U-shaped cell 0 spanning [0,3]×[0,2] with a [1,2]×[1,2] notch, and a
// square cell 1 filling the notch. For any direction with a nonzero x
// component the two cells depend on each other through the notch walls.
func NewNotch() (*Global, error) { return notch(1) }

// NewSplitNotch is NewNotch with cell 1 moved to a second partition, so
// the cycle runs between partitions instead of inside one.
func NewSplitNotch() (*Global, error) { return notch(2) }

func notch(partitions int) (*Global, error) {
	// Vertex layout:
	//   7(0,2)   6(1,2)  3(2,2)   2(3,2)
	//            5(1,1)  4(2,1)
	//   0(0,0)                    1(3,0)
	u := &Cell{
		GlobalID: 0,
		Type:     CellPolygon,
		Centroid: Vec(1.5, 0.8, 0),
		Faces: []Face{
			{VertexIDs: []int{0, 1}, Normal: Vec(0, -1, 0), Centroid: Vec(1.5, 0, 0), Area: 3},
			{VertexIDs: []int{1, 2}, Normal: Vec(1, 0, 0), Centroid: Vec(3, 1, 0), Area: 2},
			{VertexIDs: []int{2, 3}, Normal: Vec(0, 1, 0), Centroid: Vec(2.5, 2, 0), Area: 1},
			{VertexIDs: []int{3, 4}, Normal: Vec(-1, 0, 0), Centroid: Vec(2, 1.5, 0), Area: 1, HasNeighbor: true, NeighborID: 1},
			{VertexIDs: []int{4, 5}, Normal: Vec(0, 1, 0), Centroid: Vec(1.5, 1, 0), Area: 1, HasNeighbor: true, NeighborID: 1},
			{VertexIDs: []int{5, 6}, Normal: Vec(1, 0, 0), Centroid: Vec(1, 1.5, 0), Area: 1, HasNeighbor: true, NeighborID: 1},
			{VertexIDs: []int{6, 7}, Normal: Vec(0, 1, 0), Centroid: Vec(0.5, 2, 0), Area: 1},
			{VertexIDs: []int{7, 0}, Normal: Vec(-1, 0, 0), Centroid: Vec(0, 1, 0), Area: 2},
		},
	}
	sq := &Cell{
		GlobalID:    1,
		PartitionID: partitions - 1,
		Type:        CellPolygon,
		Centroid:    Vec(1.5, 1.5, 0),
		Faces: []Face{
			{VertexIDs: []int{5, 4}, Normal: Vec(0, -1, 0), Centroid: Vec(1.5, 1, 0), Area: 1, HasNeighbor: true, NeighborID: 0},
			{VertexIDs: []int{4, 3}, Normal: Vec(1, 0, 0), Centroid: Vec(2, 1.5, 0), Area: 1, HasNeighbor: true, NeighborID: 0},
			{VertexIDs: []int{3, 6}, Normal: Vec(0, 1, 0), Centroid: Vec(1.5, 2, 0), Area: 1},
			{VertexIDs: []int{6, 5}, Normal: Vec(-1, 0, 0), Centroid: Vec(1, 1.5, 0), Area: 1, HasNeighbor: true, NeighborID: 0},
		},
	}
	return NewGlobal([]*Cell{u, sq}, partitions)
}
