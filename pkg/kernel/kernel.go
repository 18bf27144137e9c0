// Package kernel provides a manufactured sweep chunk for exercising the
// scheduler end to end.
//
// [Relaxation] assigns every cell, direction and group the value
//
//	psi = source + attenuation * mean(upwind face values)
//
// and writes psi to every outgoing face DOF. Boundary inflow is a
// constant. With attenuation below one the delayed data of cyclic meshes
// converges geometrically, which makes it a convenient stand-in for real
// transport physics.
package kernel

import (
	"context"

	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/fluds"
	"github.com/matzehuels/sweeptower/pkg/mesh"
	"github.com/matzehuels/sweeptower/pkg/spds"
	"github.com/matzehuels/sweeptower/pkg/sweep"
)

// Relaxation is a sweep.SweepChunk. One instance serves every angle set
// of a partition; it is not safe for concurrent use.
type Relaxation struct {
	Source      float64
	Attenuation float64
	Inflow      float64

	mesh       mesh.Mesh
	directions int
	groups     int
	values     [][]float64 // local cell -> direction*groups + group
}

// NewRelaxation creates a kernel for partition m with the given number of
// quadrature directions and groups.
func NewRelaxation(m mesh.Mesh, directions, groups int, source, attenuation float64) (*Relaxation, error) {
	if err := errors.ValidatePositive("directions", directions); err != nil {
		return nil, err
	}
	if err := errors.ValidatePositive("groups", groups); err != nil {
		return nil, err
	}
	r := &Relaxation{
		Source:      source,
		Attenuation: attenuation,
		mesh:        m,
		directions:  directions,
		groups:      groups,
		values:      make([][]float64, m.NumLocalCells()),
	}
	for c := range r.values {
		r.values[c] = make([]float64, directions*groups)
	}
	return r, nil
}

// Sweep implements sweep.SweepChunk.
func (r *Relaxation) Sweep(ctx context.Context, as *sweep.AngleSet) error {
	if as.Groups() != r.groups {
		return errors.New(errors.ErrCodeInvalidConfig, "kernel has %d groups, angle set %d has %d", r.groups, as.ID(), as.Groups())
	}
	plan := as.SPDS()
	layout := as.FLUDS()
	angles := as.Angles()
	for _, d := range angles {
		if d >= r.directions {
			return errors.New(errors.ErrCodeCellOutOfRange, "direction %d out of range [0,%d)", d, r.directions)
		}
	}

	for _, c := range plan.Order() {
		if err := ctx.Err(); err != nil {
			return err
		}
		cell := r.mesh.LocalCell(c)
		for a, dir := range angles {
			for g := range r.groups {
				sum, n := 0.0, 0
				for fi := range cell.Faces {
					if plan.Orientation(c, fi) != spds.Incoming {
						continue
					}
					ref := layout.Incoming(c, fi)
					for i := range cell.Faces[fi].NumDOFs() {
						if ref.Kind == fluds.Boundary {
							sum += r.Inflow
						} else {
							sum += as.Upwind(ref, i, a, g)
						}
						n++
					}
				}
				psi := r.Source
				if n > 0 {
					psi += r.Attenuation * sum / float64(n)
				}
				r.values[c][dir*r.groups+g] = psi

				for fi := range cell.Faces {
					if plan.Orientation(c, fi) != spds.Outgoing {
						continue
					}
					ref := layout.Outgoing(c, fi)
					for i := range cell.Faces[fi].NumDOFs() {
						as.SetDownwind(ref, i, a, g, psi)
					}
				}
			}
		}
	}
	return nil
}

// Value returns the last computed value of local cell c.
func (r *Relaxation) Value(c, direction, group int) float64 {
	return r.values[c][direction*r.groups+group]
}

// Values returns the last computed values keyed by global cell id.
func (r *Relaxation) Values() map[int][]float64 {
	out := make(map[int][]float64, len(r.values))
	for c, v := range r.values {
		out[r.mesh.LocalCell(c).GlobalID] = append([]float64(nil), v...)
	}
	return out
}

var _ sweep.SweepChunk = (*Relaxation)(nil)
