package spds

import (
	"math"
	"slices"

	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/mesh"
)

// DefaultTolerance separates parallel faces from incoming and outgoing ones.
const DefaultTolerance = 1e-12

// FaceOrientation classifies a face relative to a direction.
type FaceOrientation int

const (
	Parallel FaceOrientation = iota
	Incoming
	Outgoing
)

func (o FaceOrientation) String() string {
	switch o {
	case Incoming:
		return "incoming"
	case Outgoing:
		return "outgoing"
	default:
		return "parallel"
	}
}

// mirror returns the orientation seen from the other side of a face.
func (o FaceOrientation) mirror() FaceOrientation {
	switch o {
	case Incoming:
		return Outgoing
	case Outgoing:
		return Incoming
	default:
		return Parallel
	}
}

// Successor is a weighted downwind neighbor within the partition.
type Successor struct {
	Cell   int // local index
	Weight float64
}

// Relationships is the result of [AnalyzeCellRelationships].
type Relationships struct {
	// Orientations is indexed by local cell, then face.
	Orientations [][]FaceOrientation
	// Successors lists each cell's local downwind neighbors sorted by cell.
	// Weights of several faces shared with the same neighbor are summed.
	Successors [][]Successor
	// LocationDependencies are the partitions feeding this one, sorted.
	LocationDependencies []int
	// LocationSuccessors are the partitions fed by this one, sorted.
	LocationSuccessors []int
	// DependencyWeights sums area*|cos| over incoming non-local faces per
	// upstream partition.
	DependencyWeights map[int]float64
}

// Orientation returns the classification of face f of local cell c.
func (r *Relationships) Orientation(c, f int) FaceOrientation { return r.Orientations[c][f] }

// Classify returns the orientation of a face with the given outward
// normal. |omega . n| <= tol counts as parallel.
func Classify(omega, normal mesh.Vector3, tol float64) FaceOrientation {
	d := omega.Dot(normal)
	switch {
	case d > tol:
		return Outgoing
	case d < -tol:
		return Incoming
	default:
		return Parallel
	}
}

// AnalyzeCellRelationships classifies every face of the partition's cells
// for direction omega.
//
// A face shared by two local cells is classified once, by the cell with
// the smaller global id; the mirrored result is written to the twin face
// on the neighbor.
func AnalyzeCellRelationships(m mesh.Mesh, omega mesh.Vector3, tol float64) (*Relationships, error) {
	if err := errors.ValidateDirection(omega.X, omega.Y, omega.Z); err != nil {
		return nil, err
	}
	if tol < 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "tolerance must not be negative, got %g", tol)
	}

	n := m.NumLocalCells()
	rel := &Relationships{
		Orientations:      make([][]FaceOrientation, n),
		Successors:        make([][]Successor, n),
		DependencyWeights: make(map[int]float64),
	}
	for c := range n {
		rel.Orientations[c] = make([]FaceOrientation, len(m.LocalCell(c).Faces))
	}

	weights := make([]map[int]float64, n)
	addEdge := func(from, to int, w float64) {
		if weights[from] == nil {
			weights[from] = make(map[int]float64)
		}
		weights[from][to] += w
	}
	deps := make(map[int]bool)
	succs := make(map[int]bool)

	for c := range n {
		cell := m.LocalCell(c)
		for fi := range cell.Faces {
			face := &cell.Faces[fi]
			if face.HasNeighbor && m.IsLocal(face.NeighborID) && face.NeighborID < cell.GlobalID {
				continue // owned by the neighbor
			}
			orient := Classify(omega, face.Normal, tol)
			rel.Orientations[c][fi] = orient

			if !face.HasNeighbor {
				continue
			}
			weight := face.Area * math.Abs(omega.Dot(face.Normal))

			if !m.IsLocal(face.NeighborID) {
				part := m.PartitionOf(face.NeighborID)
				switch orient {
				case Outgoing:
					succs[part] = true
				case Incoming:
					deps[part] = true
					rel.DependencyWeights[part] += weight
				}
				continue
			}

			nb, nf, ok, err := mesh.TwinFace(m, c, fi)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.New(errors.ErrCodeFaceMatchFailed,
					"cell %d face %d: local neighbor %d has no twin face", cell.GlobalID, fi, face.NeighborID)
			}
			if err := errors.ValidateCellIndex(nb, n); err != nil {
				return nil, err
			}
			rel.Orientations[nb][nf] = orient.mirror()

			switch orient {
			case Outgoing:
				addEdge(c, nb, weight)
			case Incoming:
				addEdge(nb, c, weight)
			}
		}
	}

	for c, ws := range weights {
		for to, w := range ws {
			rel.Successors[c] = append(rel.Successors[c], Successor{Cell: to, Weight: w})
		}
		slices.SortFunc(rel.Successors[c], func(a, b Successor) int { return a.Cell - b.Cell })
	}
	rel.LocationDependencies = sortedKeys(deps)
	rel.LocationSuccessors = sortedKeys(succs)
	return rel, nil
}

func sortedKeys(m map[int]bool) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
