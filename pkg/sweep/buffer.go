package sweep

import (
	"context"
	"math"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/sweeptower/pkg/comm"
	"github.com/matzehuels/sweeptower/pkg/fluds"
	"github.com/matzehuels/sweeptower/pkg/observability"
)

// Message kinds folded into the tag.
const (
	kindRegular = 0
	kindDelayed = 1
)

// smallestNormal is the smallest positive normal float64. Values below it
// are left out of the relative-change norm.
const smallestNormal = 0x1p-1022

// fluxBuffers holds the angular flux of one angle set. Offsets from a
// fluds.FaceRef are scaled by stride = angles*groups.
type fluxBuffers struct {
	local             []float64
	delayedLocal      []float64
	delayedLocalOld   []float64
	upstream          [][]float64
	delayedUpstream   [][]float64
	delayedUpOld      [][]float64
	downstream        [][]float64
	delayedDownstream [][]float64
}

// SweepBuffer moves the flux of one angle set across partition
// boundaries. It references, and never owns, the angle set's buffers.
type SweepBuffer struct {
	comm        comm.Communicator
	layout      *fluds.FLUDS
	bufs        *fluxBuffers
	stride      int
	angles      int
	eagerLimit  int
	maxMessages int
	tagBase     int
	partition   int
	hooks       observability.SweepHooks
	logger      *log.Logger

	upstream          []ChunkTable
	delayedUpstream   []ChunkTable
	downstream        []ChunkTable
	delayedDownstream []ChunkTable

	received        [][]bool
	delayedReceived [][]bool
	upstreamReady   bool
	delayedReady    bool

	requests    []comm.Request
	doneSending bool
}

func newSweepBuffer(c comm.Communicator, layout *fluds.FLUDS, bufs *fluxBuffers, angles, groups int, opts Options, logger *log.Logger) *SweepBuffer {
	b := &SweepBuffer{
		comm:        c,
		layout:      layout,
		bufs:        bufs,
		stride:      angles * groups,
		angles:      angles,
		eagerLimit:  opts.EagerLimit,
		maxMessages: opts.MaxMessages,
		tagBase:     opts.TagBase,
		partition:   layout.SPDS().Mesh().Partition(),
		hooks:       opts.Hooks,
		logger:      logger,
		doneSending: true,
	}
	b.BuildMessageStructure()
	return b
}

// BuildMessageStructure computes the chunk tables of every dependency and
// successor, regular and delayed.
func (b *SweepBuffer) BuildMessageStructure() {
	build := func(deps []fluds.Dependency, delayed bool) []ChunkTable {
		tables := make([]ChunkTable, len(deps))
		for i, d := range deps {
			t := SplitChunks(d.DOFs*b.stride, b.angles, b.eagerLimit)
			t.Partition, t.Delayed = d.Partition, delayed
			if t.Count() > 1 || t.Total*bytesPerDouble > b.eagerLimit {
				b.logger.Debug("chunked dependency",
					"partition", b.partition,
					"peer", d.Partition,
					"delayed", delayed,
					"chunks", t.Count(),
					"bytes", t.Total*bytesPerDouble)
			}
			tables[i] = t
		}
		return tables
	}
	b.upstream = build(b.layout.Upstream(), false)
	b.delayedUpstream = build(b.layout.DelayedUpstream(), true)
	b.downstream = build(b.layout.Downstream(), false)
	b.delayedDownstream = build(b.layout.DelayedDownstream(), true)

	b.received = newFlags(b.upstream)
	b.delayedReceived = newFlags(b.delayedUpstream)
}

func newFlags(tables []ChunkTable) [][]bool {
	flags := make([][]bool, len(tables))
	for i, t := range tables {
		flags[i] = make([]bool, t.Count())
	}
	return flags
}

// Dependencies returns the chunk tables of upstream partitions, regular
// first, then delayed.
func (b *SweepBuffer) Dependencies() []ChunkTable {
	return append(append([]ChunkTable(nil), b.upstream...), b.delayedUpstream...)
}

// Successors returns the chunk tables of downstream partitions, regular
// first, then delayed.
func (b *SweepBuffer) Successors() []ChunkTable {
	return append(append([]ChunkTable(nil), b.downstream...), b.delayedDownstream...)
}

// DoneSending reports whether every send of the current sweep completed.
func (b *SweepBuffer) DoneSending() bool { return b.doneSending }

func (b *SweepBuffer) tag(angleSetNum, kind, chunk int) int {
	return b.tagBase + ((angleSetNum*2+kind)*b.maxMessages + chunk)
}

// ReceiveUpstreamPsi polls for the regular upstream chunks of this sweep.
// It returns ReadyToExecute once every chunk is in, Receiving otherwise.
// Once ready, further calls do no I/O.
func (b *SweepBuffer) ReceiveUpstreamPsi(ctx context.Context, angleSetNum int) Status {
	if b.upstreamReady {
		return ReadyToExecute
	}
	if len(b.bufs.upstream) != len(b.upstream) {
		b.bufs.upstream = make([][]float64, len(b.upstream))
	}
	if b.receive(ctx, angleSetNum, kindRegular, b.upstream, b.received, b.bufs.upstream) {
		b.upstreamReady = true
		return ReadyToExecute
	}
	return Receiving
}

// ReceiveDelayedData polls for the delayed chunks sent during this sweep,
// to be consumed in the next one.
func (b *SweepBuffer) ReceiveDelayedData(ctx context.Context, angleSetNum int) Status {
	if b.delayedReady {
		return ReadyToExecute
	}
	b.ensureDelayedUpstream()
	if b.receive(ctx, angleSetNum, kindDelayed, b.delayedUpstream, b.delayedReceived, b.bufs.delayedUpstream) {
		b.delayedReady = true
		return ReadyToExecute
	}
	return Receiving
}

func (b *SweepBuffer) ensureDelayedUpstream() {
	if b.bufs.delayedUpstream != nil || len(b.delayedUpstream) == 0 {
		return
	}
	b.bufs.delayedUpstream = make([][]float64, len(b.delayedUpstream))
	b.bufs.delayedUpOld = make([][]float64, len(b.delayedUpstream))
	for i, t := range b.delayedUpstream {
		b.bufs.delayedUpstream[i] = make([]float64, t.Total)
		b.bufs.delayedUpOld[i] = make([]float64, t.Total)
	}
}

func (b *SweepBuffer) receive(ctx context.Context, angleSetNum, kind int, tables []ChunkTable, received [][]bool, dst [][]float64) bool {
	hooks := sweepHooks(b.hooks)
	complete := true
	for i, t := range tables {
		src := b.comm.RankOf(t.Partition)
		for j := range t.Count() {
			if received[i][j] {
				continue
			}
			tag := b.tag(angleSetNum, kind, j)
			st, ok, err := b.comm.Iprobe(src, tag)
			if err != nil {
				b.logger.Warn("probe failed", "partition", b.partition, "angle_set", angleSetNum, "source", t.Partition, "chunk", j, "err", err)
				complete = false
				continue
			}
			if !ok {
				complete = false
				continue
			}
			data, err := b.comm.Recv(ctx, src, tag)
			if err != nil {
				b.logger.Warn("receive failed", "partition", b.partition, "angle_set", angleSetNum, "source", t.Partition, "chunk", j, "err", err)
				complete = false
				continue
			}
			lo, hi := t.span(j)
			if want := (hi - lo) * bytesPerDouble; len(data) != want {
				b.logger.Warn("chunk size mismatch",
					"partition", b.partition, "angle_set", angleSetNum, "source", t.Partition,
					"chunk", j, "bytes", len(data), "want", want)
			}
			if dst[i] == nil {
				dst[i] = make([]float64, t.Total)
			}
			decodeDoubles(dst[i][lo:hi], data)
			received[i][j] = true
			hooks.OnChunkReceived(ctx, b.partition, angleSetNum, t.Partition, j, st.Bytes)
		}
	}
	return complete
}

// SendDownstreamPsi starts non-blocking sends of every downstream chunk,
// regular and delayed.
func (b *SweepBuffer) SendDownstreamPsi(angleSetNum int) {
	b.doneSending = false
	b.send(angleSetNum, kindRegular, b.downstream, b.bufs.downstream)
	b.send(angleSetNum, kindDelayed, b.delayedDownstream, b.bufs.delayedDownstream)
}

func (b *SweepBuffer) send(angleSetNum, kind int, tables []ChunkTable, src [][]float64) {
	for i, t := range tables {
		dest := b.comm.RankOf(t.Partition)
		for j := range t.Count() {
			lo, hi := t.span(j)
			req, err := b.comm.Isend(dest, b.tag(angleSetNum, kind, j), encodeDoubles(src[i][lo:hi]))
			if err != nil {
				b.logger.Warn("send failed", "partition", b.partition, "angle_set", angleSetNum, "dest", t.Partition, "chunk", j, "err", err)
				continue
			}
			b.requests = append(b.requests, req)
		}
	}
}

// ClearDownstreamBuffers polls outstanding sends. When all are complete it
// frees the outgoing buffers and returns MessagesSent; until then it
// returns MessagesPending.
func (b *SweepBuffer) ClearDownstreamBuffers() Status {
	if b.doneSending {
		return MessagesSent
	}
	for len(b.requests) > 0 {
		done, err := b.requests[0].Test()
		if err != nil {
			b.logger.Warn("send completed with error", "partition", b.partition, "err", err)
		} else if !done {
			return MessagesPending
		}
		b.requests = b.requests[1:]
	}
	b.requests = nil
	b.bufs.downstream = nil
	b.bufs.delayedDownstream = nil
	b.doneSending = true
	return MessagesSent
}

// DelayedPsiNorm returns the largest relative change |new-old|/|new| over
// the delayed upstream buffers and the delayed local buffer since the
// last Reset. Entries with |new| below the smallest normal double are
// skipped.
func (b *SweepBuffer) DelayedPsiNorm() float64 {
	norm := 0.0
	for i := range b.bufs.delayedUpstream {
		norm = max(norm, relativeChange(b.bufs.delayedUpstream[i], b.bufs.delayedUpOld[i]))
	}
	return max(norm, relativeChange(b.bufs.delayedLocal, b.bufs.delayedLocalOld))
}

func relativeChange(cur, old []float64) float64 {
	norm := 0.0
	for k, v := range cur {
		if math.Abs(v) < smallestNormal {
			continue
		}
		prev := 0.0
		if k < len(old) {
			prev = old[k]
		}
		norm = max(norm, math.Abs(v-prev)/math.Abs(v))
	}
	return norm
}

// Reset prepares for the next sweep: received flags are cleared and the
// delayed buffers are snapshotted as the previous iterate. Buffer
// contents are kept and overwritten by the next sweep.
func (b *SweepBuffer) Reset() {
	for _, flags := range b.received {
		clear(flags)
	}
	for _, flags := range b.delayedReceived {
		clear(flags)
	}
	b.upstreamReady = false
	b.delayedReady = false

	b.ensureDelayedUpstream()
	for i := range b.bufs.delayedUpstream {
		copy(b.bufs.delayedUpOld[i], b.bufs.delayedUpstream[i])
	}
	if b.bufs.delayedLocal != nil {
		copy(b.bufs.delayedLocalOld, b.bufs.delayedLocal)
	}
}
