package spds

import (
	"github.com/matzehuels/sweeptower/pkg/cache"
	"github.com/matzehuels/sweeptower/pkg/mesh"
)

type cellPrint struct {
	G int           `json:"g"`
	T mesh.CellType `json:"t"`
	F []facePrint   `json:"f"`
}

type facePrint struct {
	V []int      `json:"v"`
	N [3]float64 `json:"n"`
	A float64    `json:"a"`
	B int        `json:"b"` // neighbor gid, -1 on the boundary
	P int        `json:"p"` // neighbor partition, -1 on the boundary
}

// Fingerprint hashes the geometry and connectivity of the partition's
// cells. Two meshes with equal fingerprints produce equal sweep plans.
func Fingerprint(m mesh.Mesh) (string, error) {
	cells := make([]cellPrint, m.NumLocalCells())
	for i := range cells {
		c := m.LocalCell(i)
		cp := cellPrint{G: c.GlobalID, T: c.Type, F: make([]facePrint, len(c.Faces))}
		for fi, f := range c.Faces {
			fp := facePrint{V: f.VertexIDs, N: [3]float64{f.Normal.X, f.Normal.Y, f.Normal.Z}, A: f.Area, B: -1, P: -1}
			if f.HasNeighbor {
				fp.B = f.NeighborID
				fp.P = m.PartitionOf(f.NeighborID)
			}
			cp.F[fi] = fp
		}
		cells[i] = cp
	}
	return cache.HashJSON(struct {
		Partition  int         `json:"partition"`
		Partitions int         `json:"partitions"`
		Cells      []cellPrint `json:"cells"`
	}{m.Partition(), m.NumPartitions(), cells})
}
