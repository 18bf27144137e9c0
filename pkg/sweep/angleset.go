package sweep

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/sweeptower/pkg/comm"
	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/fluds"
	"github.com/matzehuels/sweeptower/pkg/observability"
	"github.com/matzehuels/sweeptower/pkg/spds"
)

// Default message settings.
const (
	DefaultEagerLimit = comm.DefaultEagerLimit
	DefaultTagBase    = 1000
)

// SweepChunk performs the per-cell flux update of one sweep. It is called
// once per sweep with the angle set as context, after all upstream data
// has arrived, and must visit cells in as.SPDS().Order().
//
// For each cell it must read every incoming face before writing any
// outgoing face: a cell's outgoing faces may reuse the lock-box slots of
// its incoming ones.
type SweepChunk interface {
	Sweep(ctx context.Context, as *AngleSet) error
}

// SweepChunkFunc adapts a function to SweepChunk.
type SweepChunkFunc func(ctx context.Context, as *AngleSet) error

// Sweep calls f(ctx, as).
func (f SweepChunkFunc) Sweep(ctx context.Context, as *AngleSet) error { return f(ctx, as) }

// Options configures an AngleSet and its SweepBuffer.
type Options struct {
	// Groups is the number of energy groups; zero means one.
	Groups int
	// EagerLimit is the largest chunk in bytes; zero means DefaultEagerLimit.
	EagerLimit int
	// MaxMessages is the tag stride per angle set and message kind. Zero
	// means the angle count of the set. Every angle set on a communicator
	// must use the same value; NewScheduler checks this.
	MaxMessages int
	// TagBase is the first sweep tag; zero means DefaultTagBase.
	TagBase int
	// Hooks receives state and chunk events; nil uses the registered
	// observability.Sweep hooks.
	Hooks  observability.SweepHooks
	Logger *log.Logger
}

func sweepHooks(h observability.SweepHooks) observability.SweepHooks {
	if h != nil {
		return h
	}
	return observability.Sweep()
}

// AngleSet sweeps a group of directions that share one SPDS and FLUDS.
type AngleSet struct {
	id     int
	angles []int
	groups int
	layout *fluds.FLUDS
	chunk  SweepChunk
	hooks  observability.SweepHooks
	logger *log.Logger

	bufs     fluxBuffers
	buffer   *SweepBuffer
	executed bool
	state    Status
}

// NewAngleSet creates angle set number id for the given direction
// indices. The id must be the same on every rank, since it selects the
// message tags.
func NewAngleSet(id int, angles []int, layout *fluds.FLUDS, c comm.Communicator, chunk SweepChunk, opts Options) (*AngleSet, error) {
	if err := errors.ValidateAngleIndices(angles); err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "angle set number must not be negative, got %d", id)
	}
	if chunk == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "angle set %d has no sweep chunk", id)
	}
	if opts.Groups == 0 {
		opts.Groups = 1
	}
	if opts.EagerLimit == 0 {
		opts.EagerLimit = DefaultEagerLimit
	}
	if opts.TagBase == 0 {
		opts.TagBase = DefaultTagBase
	}
	if opts.MaxMessages == 0 {
		opts.MaxMessages = len(angles)
	}
	if err := errors.ValidatePositive("groups", opts.Groups); err != nil {
		return nil, err
	}
	if err := errors.ValidatePositive("eager limit", opts.EagerLimit); err != nil {
		return nil, err
	}
	if layout != nil && opts.TagBase <= layout.ExchangeTag() {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"tag base %d must be above the face exchange tag %d", opts.TagBase, layout.ExchangeTag())
	}
	if opts.MaxMessages < len(angles) {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"max messages %d is below the %d angles of angle set %d", opts.MaxMessages, len(angles), id)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	as := &AngleSet{
		id:     id,
		angles: append([]int(nil), angles...),
		groups: opts.Groups,
		layout: layout,
		chunk:  chunk,
		hooks:  opts.Hooks,
		logger: logger,
	}
	as.buffer = newSweepBuffer(c, layout, &as.bufs, len(angles), opts.Groups, opts, logger)
	return as, nil
}

// ID returns the angle set number.
func (as *AngleSet) ID() int { return as.id }

// Angles returns the direction indices of the set.
func (as *AngleSet) Angles() []int { return as.angles }

// NumAngles returns len(Angles()).
func (as *AngleSet) NumAngles() int { return len(as.angles) }

// Groups returns the number of energy groups.
func (as *AngleSet) Groups() int { return as.groups }

// SPDS returns the sweep plan.
func (as *AngleSet) SPDS() *spds.SPDS { return as.layout.SPDS() }

// FLUDS returns the flux layout.
func (as *AngleSet) FLUDS() *fluds.FLUDS { return as.layout }

// Buffer returns the angle set's SweepBuffer.
func (as *AngleSet) Buffer() *SweepBuffer { return as.buffer }

// State returns the status of the last Advance.
func (as *AngleSet) State() Status { return as.state }

// Advance moves the state machine as far as it can without waiting.
//
// Before execution it polls upstream data and returns Receiving until all
// of it is in. A ready set returns ReadyToExecute when held by perm;
// otherwise it runs the sweep chunk, starts the downstream sends, releases
// its local and upstream buffers and returns Finished. A finished set
// only drains its sends and keeps returning Finished until Reset.
func (as *AngleSet) Advance(ctx context.Context, perm Permission) (Status, error) {
	if as.executed {
		as.buffer.ClearDownstreamBuffers()
		return Finished, nil
	}

	if as.buffer.ReceiveUpstreamPsi(ctx, as.id) != ReadyToExecute {
		as.setState(ctx, Receiving)
		return Receiving, nil
	}
	if perm == HoldIfReady {
		as.setState(ctx, ReadyToExecute)
		return ReadyToExecute, nil
	}

	as.allocate()
	if err := as.chunk.Sweep(ctx, as); err != nil {
		return as.state, err
	}
	as.buffer.SendDownstreamPsi(as.id)
	as.bufs.local = nil
	as.bufs.upstream = nil
	as.executed = true
	as.buffer.ClearDownstreamBuffers()
	as.setState(ctx, Finished)
	return Finished, nil
}

// Reset prepares the angle set for another sweep. Outstanding sends must
// have completed.
func (as *AngleSet) Reset() {
	as.executed = false
	as.state = NotExecuted
	as.buffer.Reset()
}

func (as *AngleSet) setState(ctx context.Context, s Status) {
	if as.state == s {
		return
	}
	as.state = s
	part := as.layout.SPDS().Mesh().Partition()
	as.logger.Debug("angle set state", "partition", part, "angle_set", as.id, "state", s)
	sweepHooks(as.hooks).OnAngleSetState(ctx, part, as.id, s.String())
}

func (as *AngleSet) allocate() {
	stride := len(as.angles) * as.groups
	f := as.layout
	if as.bufs.local == nil {
		as.bufs.local = make([]float64, f.LocalDOFs()*stride)
	}
	if as.bufs.delayedLocal == nil {
		as.bufs.delayedLocal = make([]float64, f.DelayedLocalDOFs()*stride)
		as.bufs.delayedLocalOld = make([]float64, f.DelayedLocalDOFs()*stride)
	}
	as.buffer.ensureDelayedUpstream()
	as.bufs.downstream = make([][]float64, len(f.Downstream()))
	for i, d := range f.Downstream() {
		as.bufs.downstream[i] = make([]float64, d.DOFs*stride)
	}
	as.bufs.delayedDownstream = make([][]float64, len(f.DelayedDownstream()))
	for i, d := range f.DelayedDownstream() {
		as.bufs.delayedDownstream[i] = make([]float64, d.DOFs*stride)
	}
}

// index returns the position of (face DOF, angle, group) in a buffer.
func (as *AngleSet) index(dof, angle, group int) int {
	return (dof*len(as.angles)+angle)*as.groups + group
}

// Upwind reads incoming flux for face DOF i (in the reading cell's vertex
// order), local angle index a and group g. Delayed faces return the
// previous sweep's value; boundary faces return zero.
func (as *AngleSet) Upwind(ref fluds.FaceRef, i, a, g int) float64 {
	var buf []float64
	switch ref.Kind {
	case fluds.Local:
		buf = as.bufs.local
	case fluds.DelayedLocal:
		buf = as.bufs.delayedLocalOld
	case fluds.Upstream:
		buf = as.bufs.upstream[ref.Index]
	case fluds.DelayedUpstream:
		buf = as.bufs.delayedUpOld[ref.Index]
	default:
		return 0
	}
	return buf[as.index(ref.Offset+ref.DOFMap[i], a, g)]
}

// SetDownwind writes outgoing flux for face DOF i (in the writing cell's
// vertex order). Boundary faces are ignored.
func (as *AngleSet) SetDownwind(ref fluds.FaceRef, i, a, g int, v float64) {
	var buf []float64
	switch ref.Kind {
	case fluds.Local:
		buf = as.bufs.local
	case fluds.DelayedLocal:
		buf = as.bufs.delayedLocal
	case fluds.Downstream:
		buf = as.bufs.downstream[ref.Index]
	case fluds.DelayedDownstream:
		buf = as.bufs.delayedDownstream[ref.Index]
	default:
		return
	}
	buf[as.index(ref.Offset+i, a, g)] = v
}
