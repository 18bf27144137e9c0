package fluds

import (
	"context"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/sweeptower/pkg/comm"
	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/mesh"
	"github.com/matzehuels/sweeptower/pkg/spds"
)

// DefaultExchangeTag is the message tag of the boundary-face exchange.
// Sweep messages use tags from their own base upward, so it sits below the
// default sweep tag base.
const DefaultExchangeTag = 999

// BufferKind names the buffer a face reference points into.
type BufferKind int

const (
	// Boundary faces have no stored flux; the kernel applies its own
	// boundary condition.
	Boundary BufferKind = iota
	Local
	DelayedLocal
	Upstream
	DelayedUpstream
	Downstream
	DelayedDownstream
)

var kindNames = [...]string{"boundary", "local", "delayed-local", "upstream", "delayed-upstream", "downstream", "delayed-downstream"}

func (k BufferKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// FaceRef locates the flux of one face.
type FaceRef struct {
	Kind BufferKind
	// Index selects the partition buffer for Upstream, DelayedUpstream,
	// Downstream and DelayedDownstream.
	Index  int
	Offset int // first face DOF within the buffer
	DOFs   int
	// DOFMap is set on incoming faces: the consumer's face DOF i is stored
	// at producer face DOF DOFMap[i].
	DOFMap []int
}

// Dependency is one partition buffer: the partition on the other side and
// the number of face DOFs exchanged per sweep.
type Dependency struct {
	Partition int
	DOFs      int
}

// Options configures [New].
type Options struct {
	// ExchangeTag overrides DefaultExchangeTag.
	ExchangeTag int
	Logger      *log.Logger
}

// FLUDS is the flux layout for one SPDS. It is immutable after [New].
type FLUDS struct {
	spds        *spds.SPDS
	exchangeTag int
	slotDOFs    int
	slots       int

	delayedLocalDOFs int

	outgoing [][]FaceRef
	incoming [][]FaceRef

	upstream          []Dependency
	delayedUpstream   []Dependency
	downstream        []Dependency
	delayedDownstream []Dependency
}

// New computes the layout for s and exchanges boundary-face descriptions
// with neighboring partitions. Every rank must call New for its SPDS
// instances in the same order.
func New(ctx context.Context, s *spds.SPDS, c comm.Communicator, opts Options) (*FLUDS, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	tag := opts.ExchangeTag
	if tag == 0 {
		tag = DefaultExchangeTag
	}

	m := s.Mesh()
	n := m.NumLocalCells()
	f := &FLUDS{
		spds:        s,
		exchangeTag: tag,
		outgoing:    make([][]FaceRef, n),
		incoming:    make([][]FaceRef, n),
	}
	for ci := range n {
		cell := m.LocalCell(ci)
		f.slotDOFs = max(f.slotDOFs, cell.MaxFaceDOFs())
		f.outgoing[ci] = make([]FaceRef, len(cell.Faces))
		f.incoming[ci] = make([]FaceRef, len(cell.Faces))
	}
	f.upstream = newDependencies(s.Dependencies())
	f.delayedUpstream = newDependencies(s.DelayedDependencies())
	f.downstream = newDependencies(s.Successors())
	f.delayedDownstream = newDependencies(s.DelayedSuccessors())

	outbound, err := f.alpha()
	if err != nil {
		return nil, err
	}
	pending, err := f.beta()
	if err != nil {
		return nil, err
	}
	inbound, err := exchange(ctx, c, tag, outbound, s.LocationDependencies())
	if err != nil {
		return nil, err
	}
	if err := f.resolveNonLocal(pending, inbound); err != nil {
		return nil, err
	}

	logger.Debug("flux layout ready",
		"partition", m.Partition(),
		"slots", f.slots,
		"slot_dofs", f.slotDOFs,
		"delayed_local_dofs", f.delayedLocalDOFs,
		"upstream", len(f.upstream)+len(f.delayedUpstream),
		"downstream", len(f.downstream)+len(f.delayedDownstream))
	return f, nil
}

func newDependencies(parts []int) []Dependency {
	deps := make([]Dependency, len(parts))
	for i, p := range parts {
		deps[i] = Dependency{Partition: p}
	}
	return deps
}

func dependencyIndex(deps []Dependency, partition int) int {
	return slices.IndexFunc(deps, func(d Dependency) bool { return d.Partition == partition })
}

// alpha assigns storage to every outgoing face in sweep order and returns
// the descriptions of faces leaving the partition, keyed by destination.
func (f *FLUDS) alpha() (map[int][]boundaryFace, error) {
	s := f.spds
	m := s.Mesh()
	var lb lockBox
	held := make(map[[2]int]int) // producer (cell, face) -> slot
	outbound := make(map[int][]boundaryFace)

	for _, c := range s.Order() {
		cell := m.LocalCell(c)

		// Release before acquire: a cell reads all of its inputs before
		// writing outputs, so its own outputs may reuse the slots it frees.
		for fi := range cell.Faces {
			face := &cell.Faces[fi]
			if s.Orientation(c, fi) != spds.Incoming || !face.HasNeighbor || !m.IsLocal(face.NeighborID) {
				continue
			}
			nb, nf, err := twin(m, c, fi)
			if err != nil {
				return nil, err
			}
			if s.IsCyclic(nb, c) {
				continue
			}
			slot, ok := held[[2]int{nb, nf}]
			if !ok {
				return nil, errors.New(errors.ErrCodeLockboxMiss,
					"cell %d face %d: upwind cell %d face %d holds no slot", cell.GlobalID, fi, m.LocalCell(nb).GlobalID, nf)
			}
			if err := lb.release(slot); err != nil {
				return nil, err
			}
			delete(held, [2]int{nb, nf})
		}

		for fi := range cell.Faces {
			face := &cell.Faces[fi]
			if s.Orientation(c, fi) != spds.Outgoing || !face.HasNeighbor {
				continue
			}
			dofs := face.NumDOFs()

			if nb, local := m.LocalIndex(face.NeighborID); local {
				if s.IsCyclic(c, nb) {
					f.outgoing[c][fi] = FaceRef{Kind: DelayedLocal, Offset: f.delayedLocalDOFs, DOFs: dofs}
					f.delayedLocalDOFs += dofs
					continue
				}
				slot := lb.acquire()
				held[[2]int{c, fi}] = slot
				f.outgoing[c][fi] = FaceRef{Kind: Local, Offset: slot * f.slotDOFs, DOFs: dofs}
				continue
			}

			part := m.PartitionOf(face.NeighborID)
			kind, deps := Downstream, f.downstream
			idx := dependencyIndex(deps, part)
			if idx < 0 {
				kind, deps = DelayedDownstream, f.delayedDownstream
				idx = dependencyIndex(deps, part)
			}
			if idx < 0 {
				return nil, errors.New(errors.ErrCodeInternal,
					"cell %d face %d: partition %d is not a successor", cell.GlobalID, fi, part)
			}
			f.outgoing[c][fi] = FaceRef{Kind: kind, Index: idx, Offset: deps[idx].DOFs, DOFs: dofs}
			outbound[part] = append(outbound[part], boundaryFace{
				Sender:   cell.GlobalID,
				Receiver: face.NeighborID,
				Vertices: face.VertexIDs,
				DOFs:     dofs,
				Offset:   deps[idx].DOFs,
			})
			deps[idx].DOFs += dofs
		}
	}

	if len(held) != 0 {
		return nil, errors.New(errors.ErrCodeLockboxMiss, "%d lock-box slots never consumed", len(held))
	}
	f.slots = lb.size()
	return outbound, nil
}

type pendingFace struct {
	cell, face int
}

// beta resolves local incoming faces and returns the non-local ones.
func (f *FLUDS) beta() ([]pendingFace, error) {
	s := f.spds
	m := s.Mesh()
	var pending []pendingFace

	for _, c := range s.Order() {
		cell := m.LocalCell(c)
		for fi := range cell.Faces {
			face := &cell.Faces[fi]
			if s.Orientation(c, fi) != spds.Incoming || !face.HasNeighbor {
				continue
			}
			if !m.IsLocal(face.NeighborID) {
				pending = append(pending, pendingFace{cell: c, face: fi})
				continue
			}
			nb, nf, err := twin(m, c, fi)
			if err != nil {
				return nil, err
			}
			producer := f.outgoing[nb][nf]
			if producer.Kind != Local && producer.Kind != DelayedLocal {
				return nil, errors.New(errors.ErrCodeLockboxMiss,
					"cell %d face %d: upwind face has no local storage", cell.GlobalID, fi)
			}
			dofMap, err := mapDOFs(face.VertexIDs, m.LocalCell(nb).Faces[nf].VertexIDs)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeFaceMatchFailed, err, "cell %d face %d", cell.GlobalID, fi)
			}
			f.incoming[c][fi] = FaceRef{Kind: producer.Kind, Offset: producer.Offset, DOFs: face.NumDOFs(), DOFMap: dofMap}
		}
	}
	return pending, nil
}

func (f *FLUDS) resolveNonLocal(pending []pendingFace, inbound map[int]map[faceKey]boundaryFace) error {
	m := f.spds.Mesh()
	for part, faces := range inbound {
		total := 0
		for _, bf := range faces {
			total = max(total, bf.Offset+bf.DOFs)
		}
		if idx := dependencyIndex(f.upstream, part); idx >= 0 {
			f.upstream[idx].DOFs = total
		} else if idx := dependencyIndex(f.delayedUpstream, part); idx >= 0 {
			f.delayedUpstream[idx].DOFs = total
		}
	}

	for _, p := range pending {
		cell := m.LocalCell(p.cell)
		face := &cell.Faces[p.face]
		part := m.PartitionOf(face.NeighborID)

		kind, idx := Upstream, dependencyIndex(f.upstream, part)
		if idx < 0 {
			kind, idx = DelayedUpstream, dependencyIndex(f.delayedUpstream, part)
		}
		if idx < 0 {
			return errors.New(errors.ErrCodeInternal, "cell %d face %d: partition %d is not a dependency", cell.GlobalID, p.face, part)
		}

		bf, ok := inbound[part][faceKey{sender: face.NeighborID, receiver: cell.GlobalID, vertices: face.VertexKey()}]
		if !ok {
			return errors.New(errors.ErrCodeFaceMatchFailed,
				"cell %d face %d: partition %d sent no matching face", cell.GlobalID, p.face, part)
		}
		dofMap, err := mapDOFs(face.VertexIDs, bf.Vertices)
		if err != nil {
			return errors.Wrap(errors.ErrCodeFaceMatchFailed, err, "cell %d face %d", cell.GlobalID, p.face)
		}
		f.incoming[p.cell][p.face] = FaceRef{Kind: kind, Index: idx, Offset: bf.Offset, DOFs: face.NumDOFs(), DOFMap: dofMap}
	}
	return nil
}

func twin(m mesh.Mesh, c, fi int) (int, int, error) {
	nb, nf, ok, err := mesh.TwinFace(m, c, fi)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		cell := m.LocalCell(c)
		return 0, 0, errors.New(errors.ErrCodeFaceMatchFailed, "cell %d face %d has no local twin", cell.GlobalID, fi)
	}
	return nb, nf, nil
}

// mapDOFs matches consumer vertices to producer vertices.
func mapDOFs(consumer, producer []int) ([]int, error) {
	if len(consumer) != len(producer) {
		return nil, errors.New(errors.ErrCodeFaceMatchFailed, "face has %d vertices, upwind face has %d", len(consumer), len(producer))
	}
	out := make([]int, len(consumer))
	for i, v := range consumer {
		j := slices.Index(producer, v)
		if j < 0 {
			return nil, errors.New(errors.ErrCodeFaceMatchFailed, "vertex %d not on upwind face", v)
		}
		out[i] = j
	}
	return out, nil
}

// SPDS returns the plan this layout belongs to.
func (f *FLUDS) SPDS() *spds.SPDS { return f.spds }

// Outgoing returns where local cell c writes face fi. Faces that are not
// outgoing, or leave through the domain boundary, report Boundary.
func (f *FLUDS) Outgoing(c, fi int) FaceRef { return f.outgoing[c][fi] }

// Incoming returns where local cell c reads face fi. Faces that are not
// incoming, or enter through the domain boundary, report Boundary.
func (f *FLUDS) Incoming(c, fi int) FaceRef { return f.incoming[c][fi] }

// ExchangeTag returns the tag the boundary-face exchange was sent on.
// Sweep messages must use tags above it.
func (f *FLUDS) ExchangeTag() int { return f.exchangeTag }

// SlotCount returns the number of lock-box slots.
func (f *FLUDS) SlotCount() int { return f.slots }

// SlotDOFs returns the size of one lock-box slot in face DOFs.
func (f *FLUDS) SlotDOFs() int { return f.slotDOFs }

// LocalDOFs returns the lock-box size in face DOFs.
func (f *FLUDS) LocalDOFs() int { return f.slots * f.slotDOFs }

// DelayedLocalDOFs returns the delayed-local buffer size in face DOFs.
func (f *FLUDS) DelayedLocalDOFs() int { return f.delayedLocalDOFs }

// Upstream returns the regular upstream partition buffers, in
// SPDS.Dependencies order.
func (f *FLUDS) Upstream() []Dependency { return f.upstream }

// DelayedUpstream returns the delayed upstream partition buffers.
func (f *FLUDS) DelayedUpstream() []Dependency { return f.delayedUpstream }

// Downstream returns the regular downstream partition buffers, in
// SPDS.Successors order.
func (f *FLUDS) Downstream() []Dependency { return f.downstream }

// DelayedDownstream returns the delayed downstream partition buffers.
func (f *FLUDS) DelayedDownstream() []Dependency { return f.delayedDownstream }
