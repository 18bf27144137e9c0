package mesh

import (
	"fmt"
	"slices"

	"github.com/matzehuels/sweeptower/pkg/errors"
)

// Mesh is the partition-local view of the global mesh.
//
// Implementations are read-only after construction; the scheduler may call
// them from the partition's single goroutine without synchronization.
type Mesh interface {
	// Partition returns the id of the partition this view belongs to.
	Partition() int
	// NumPartitions returns the number of partitions of the global mesh.
	NumPartitions() int
	// NumLocalCells returns the number of cells owned by this partition.
	NumLocalCells() int
	// LocalCell returns the cell with the given local index.
	LocalCell(local int) *Cell
	// LocalIndex maps a global id to a local index.
	LocalIndex(globalID int) (int, bool)
	// IsLocal reports whether the cell with the given global id is owned
	// by this partition.
	IsLocal(globalID int) bool
	// PartitionOf returns the partition that owns a global id.
	PartitionOf(globalID int) int
}

// TwinFace returns the face of the local neighbor across face f of the cell
// with local index cell: the neighbor face that points back at cell and
// covers the same vertex set. ok is false for boundary faces and faces
// whose neighbor is not local.
func TwinFace(m Mesh, cell, f int) (neighbor, face int, ok bool, err error) {
	c := m.LocalCell(cell)
	if f < 0 || f >= len(c.Faces) {
		return 0, 0, false, errors.New(errors.ErrCodeCellOutOfRange, "face %d out of range for cell %d", f, c.GlobalID)
	}
	cf := &c.Faces[f]
	if !cf.HasNeighbor {
		return 0, 0, false, nil
	}
	nb, local := m.LocalIndex(cf.NeighborID)
	if !local {
		return 0, 0, false, nil
	}
	key := cf.VertexKey()
	nc := m.LocalCell(nb)
	for i := range nc.Faces {
		nf := &nc.Faces[i]
		if nf.HasNeighbor && nf.NeighborID == c.GlobalID && nf.VertexKey() == key {
			return nb, i, true, nil
		}
	}
	return 0, 0, false, errors.New(errors.ErrCodeFaceMatchFailed,
		"cell %d face %d: no matching face on neighbor %d", c.GlobalID, f, cf.NeighborID)
}

// Global holds every cell of a mesh together with its partition
// assignment. It is intended for meshes small enough to replicate on every
// partition.
type Global struct {
	cells      []*Cell // indexed by global id
	partitions int
	local      [][]int // partition -> global ids in local order
}

// NewGlobal builds a Global from cells indexed by global id. Each cell's
// PartitionID must lie in [0, partitions); LocalID is assigned here in
// global-id order within each partition.
func NewGlobal(cells []*Cell, partitions int) (*Global, error) {
	if partitions <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "partition count must be positive, got %d", partitions)
	}
	g := &Global{
		cells:      cells,
		partitions: partitions,
		local:      make([][]int, partitions),
	}
	for gid, c := range cells {
		if c.GlobalID != gid {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "cell at index %d has global id %d", gid, c.GlobalID)
		}
		if c.PartitionID < 0 || c.PartitionID >= partitions {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "cell %d assigned to partition %d of %d", gid, c.PartitionID, partitions)
		}
		for fi := range c.Faces {
			f := &c.Faces[fi]
			if f.HasNeighbor && (f.NeighborID < 0 || f.NeighborID >= len(cells)) {
				return nil, errors.New(errors.ErrCodeCellOutOfRange, "cell %d face %d references unknown neighbor %d", gid, fi, f.NeighborID)
			}
		}
		c.LocalID = len(g.local[c.PartitionID])
		g.local[c.PartitionID] = append(g.local[c.PartitionID], gid)
	}
	return g, nil
}

// NumCells returns the global cell count.
func (g *Global) NumCells() int { return len(g.cells) }

// NumPartitions returns the number of partitions.
func (g *Global) NumPartitions() int { return g.partitions }

// Cell returns the cell with the given global id.
func (g *Global) Cell(globalID int) *Cell { return g.cells[globalID] }

// Partition returns the view of partition p.
func (g *Global) Partition(p int) (Mesh, error) {
	if p < 0 || p >= g.partitions {
		return nil, fmt.Errorf("partition %d out of range [0,%d)", p, g.partitions)
	}
	return &partitionView{global: g, id: p}, nil
}

type partitionView struct {
	global *Global
	id     int
}

func (v *partitionView) Partition() int     { return v.id }
func (v *partitionView) NumPartitions() int { return v.global.partitions }
func (v *partitionView) NumLocalCells() int { return len(v.global.local[v.id]) }

func (v *partitionView) LocalCell(local int) *Cell {
	return v.global.cells[v.global.local[v.id][local]]
}

func (v *partitionView) LocalIndex(globalID int) (int, bool) {
	if !v.IsLocal(globalID) {
		return 0, false
	}
	return v.global.cells[globalID].LocalID, true
}

func (v *partitionView) IsLocal(globalID int) bool {
	return globalID >= 0 && globalID < len(v.global.cells) && v.global.cells[globalID].PartitionID == v.id
}

func (v *partitionView) PartitionOf(globalID int) int {
	return v.global.cells[globalID].PartitionID
}

// LocalGlobalIDs returns the global ids of partition p in local order.
func (g *Global) LocalGlobalIDs(p int) []int { return slices.Clone(g.local[p]) }
