// Package quadrature builds discrete-ordinates direction sets and groups
// them into angle sets that share one sweep ordering.
//
// Directions are generated per octant (per quadrant in two dimensions) so
// every direction in a group has the same component signs. On meshes whose
// faces are aligned with the axes this guarantees the group's
// representative direction induces the same upwind/downwind relations as
// each member direction.
package quadrature

import (
	"fmt"
	"math"

	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/mesh"
)

// Direction is one discrete ordinate.
type Direction struct {
	Index  int
	Octant int
	Omega  mesh.Vector3
	Weight float64
}

// Set is an ordered list of directions whose weights sum to one.
type Set struct {
	Dimension  int
	Directions []Direction
}

// Group is a set of direction indices swept together.
type Group struct {
	Octant         int
	Angles         []int
	Representative mesh.Vector3
}

// NewProduct builds a product quadrature with azimuthal angles per octant
// and polar levels per hemisphere. In two dimensions only the four
// upper-hemisphere octants are generated (the lower ones are mirror
// images with identical in-plane sweeps).
func NewProduct(dim, azimuthal, polar int) (*Set, error) {
	if dim != 2 && dim != 3 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "dimension must be 2 or 3, got %d", dim)
	}
	if err := errors.ValidatePositive("azimuthal", azimuthal); err != nil {
		return nil, err
	}
	if err := errors.ValidatePositive("polar", polar); err != nil {
		return nil, err
	}

	octants := 8
	if dim == 2 {
		octants = 4
	}
	total := octants * azimuthal * polar
	weight := 1.0 / float64(total)

	set := &Set{Dimension: dim, Directions: make([]Direction, 0, total)}
	for o := range octants {
		sx, sy, sz := octantSigns(o)
		for p := range polar {
			mu := (float64(p) + 0.5) / float64(polar)
			if dim == 2 {
				// Keep in-plane weight: polar cosines sit strictly inside (0,1).
				mu = (float64(p) + 0.5) / float64(polar+1)
			}
			sinTheta := math.Sqrt(1 - mu*mu)
			for a := range azimuthal {
				phi := (float64(a) + 0.5) * (math.Pi / 2) / float64(azimuthal)
				omega := mesh.Vec(
					sx*sinTheta*math.Cos(phi),
					sy*sinTheta*math.Sin(phi),
					sz*mu,
				)
				set.Directions = append(set.Directions, Direction{
					Index:  len(set.Directions),
					Octant: o,
					Omega:  omega,
					Weight: weight,
				})
			}
		}
	}
	return set, nil
}

// octantSigns maps octant 0..7 to component signs; bit 0 flips x, bit 1
// flips y, bit 2 flips z.
func octantSigns(o int) (x, y, z float64) {
	x, y, z = 1, 1, 1
	if o&1 != 0 {
		x = -1
	}
	if o&2 != 0 {
		y = -1
	}
	if o&4 != 0 {
		z = -1
	}
	return x, y, z
}

// Len returns the number of directions.
func (s *Set) Len() int { return len(s.Directions) }

// Group splits the directions of each octant into consecutive groups of at
// most perSet angles. The representative direction is the normalized mean
// of the members.
func (s *Set) Group(perSet int) ([]Group, error) {
	if err := errors.ValidatePositive("angles per set", perSet); err != nil {
		return nil, err
	}
	byOctant := make(map[int][]int)
	var octants []int
	for _, d := range s.Directions {
		if _, seen := byOctant[d.Octant]; !seen {
			octants = append(octants, d.Octant)
		}
		byOctant[d.Octant] = append(byOctant[d.Octant], d.Index)
	}

	var groups []Group
	for _, o := range octants {
		idx := byOctant[o]
		for start := 0; start < len(idx); start += perSet {
			end := min(start+perSet, len(idx))
			members := append([]int(nil), idx[start:end]...)
			var sum mesh.Vector3
			for _, m := range members {
				sum = sum.Add(s.Directions[m].Omega)
			}
			groups = append(groups, Group{
				Octant:         o,
				Angles:         members,
				Representative: sum.Normalized(),
			})
		}
	}
	return groups, nil
}

// String describes the quadrature for logs.
func (s *Set) String() string {
	return fmt.Sprintf("product(dim=%d, directions=%d)", s.Dimension, len(s.Directions))
}
