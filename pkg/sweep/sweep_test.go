package sweep_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/sweeptower/pkg/comm"
	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/fluds"
	"github.com/matzehuels/sweeptower/pkg/kernel"
	"github.com/matzehuels/sweeptower/pkg/mesh"
	"github.com/matzehuels/sweeptower/pkg/observability"
	"github.com/matzehuels/sweeptower/pkg/quadrature"
	"github.com/matzehuels/sweeptower/pkg/spds"
	"github.com/matzehuels/sweeptower/pkg/sweep"
)

const (
	source      = 1.0
	attenuation = 1e-3
)

type group struct {
	angles []int
	omega  mesh.Vector3
}

type rank struct {
	comm   comm.Communicator
	sets   []*sweep.AngleSet
	kernel *kernel.Relaxation
	sched  *sweep.Scheduler
}

func quiet() *log.Logger {
	return log.NewWithOptions(&bytes.Buffer{}, log.Options{Level: log.ErrorLevel})
}

// setup builds every partition of g in parallel and returns one rank per
// partition, ready to be driven.
func setup(t *testing.T, world *comm.World, g *mesh.Global, groups []group, directions int, opts sweep.Options) []*rank {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quiet()
	}
	ranks := make([]*rank, g.NumPartitions())
	eg, ctx := errgroup.WithContext(context.Background())
	for p := range g.NumPartitions() {
		eg.Go(func() error {
			m, err := g.Partition(p)
			if err != nil {
				return err
			}
			c := world.Comm(p)
			k, err := kernel.NewRelaxation(m, directions, max(opts.Groups, 1), source, attenuation)
			if err != nil {
				return err
			}
			r := &rank{comm: c, kernel: k}
			for id, grp := range groups {
				s, err := spds.New(ctx, m, grp.omega, c, spds.Options{AllowCycles: true, Logger: opts.Logger})
				if err != nil {
					return err
				}
				f, err := fluds.New(ctx, s, c, fluds.Options{Logger: opts.Logger})
				if err != nil {
					return err
				}
				as, err := sweep.NewAngleSet(id, grp.angles, f, c, k, opts)
				if err != nil {
					return err
				}
				r.sets = append(r.sets, as)
			}
			r.sched, err = sweep.NewScheduler(c, r.sets, sweep.SchedulerOptions{Logger: opts.Logger, Hooks: opts.Hooks})
			if err != nil {
				return err
			}
			ranks[p] = r
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	return ranks
}

// runAll runs fn for every rank on its own goroutine.
func runAll(t *testing.T, ranks []*rank, fn func(ctx context.Context, r *rank) error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	for _, r := range ranks {
		eg.Go(func() error { return fn(ctx, r) })
	}
	require.NoError(t, eg.Wait())
}

func TestScenarioTwoSlabPartitions(t *testing.T) {
	g, err := mesh.NewSlab(2, 2)
	require.NoError(t, err)
	world := comm.NewWorld(2)
	ranks := setup(t, world, g, []group{{angles: []int{0}, omega: mesh.Vec(1, 0, 0)}}, 1, sweep.Options{})
	ctx := context.Background()
	up, down := ranks[0].sets[0], ranks[1].sets[0]

	for _, as := range []*sweep.AngleSet{up, down} {
		as.Reset()
	}

	st, err := up.Advance(ctx, sweep.HoldIfReady)
	require.NoError(t, err)
	assert.Equal(t, sweep.ReadyToExecute, st, "no dependencies: ready immediately")

	for range 3 {
		st, err = down.Advance(ctx, sweep.ExecuteIfReady)
		require.NoError(t, err)
		assert.Equal(t, sweep.Receiving, st)
	}

	require.Len(t, up.Buffer().Successors(), 1)
	assert.Equal(t, 1, up.Buffer().Successors()[0].Count())

	st, err = up.Advance(ctx, sweep.ExecuteIfReady)
	require.NoError(t, err)
	assert.Equal(t, sweep.Finished, st)

	st, err = down.Advance(ctx, sweep.ExecuteIfReady)
	require.NoError(t, err)
	assert.Equal(t, sweep.Finished, st)

	for _, as := range []*sweep.AngleSet{up, down} {
		st, err = as.Advance(ctx, sweep.ExecuteIfReady)
		require.NoError(t, err)
		assert.Equal(t, sweep.Finished, st, "finished sets stay finished")
		assert.True(t, as.Buffer().DoneSending())
	}

	assert.Equal(t, source, ranks[0].kernel.Value(0, 0, 0))
	assert.InDelta(t, source+attenuation*source, ranks[1].kernel.Value(0, 0, 0), 1e-15)
	assert.Zero(t, world.Pending())
}

func TestScenarioNotchConverges(t *testing.T) {
	g, err := mesh.NewNotch()
	require.NoError(t, err)
	world := comm.NewWorld(1)
	ranks := setup(t, world, g, []group{{angles: []int{0}, omega: mesh.Vec(1, 0, 0)}}, 1, sweep.Options{})
	r := ranks[0]
	ctx := context.Background()

	assert.Len(t, r.sets[0].SPDS().LocalCyclicDependencies(), 1)

	require.NoError(t, r.sched.Sweep(ctx))
	assert.InDelta(t, 1.0, r.sched.DelayedPsiNorm(), 1e-12, "first sweep starts from zero delayed data")

	require.NoError(t, r.sched.Sweep(ctx))
	assert.Less(t, r.sched.DelayedPsiNorm(), 1e-2)
	assert.Equal(t, 2, r.sched.Sweeps())

	// psi1 = q + c*psi0_old, psi0 = q + c*psi1/2 (half of cell 0's inflow is boundary)
	psi1 := source + attenuation*(source+attenuation*source/2)
	psi0 := source + attenuation*psi1/2
	assert.InDelta(t, psi1, r.kernel.Value(1, 0, 0), 1e-15)
	assert.InDelta(t, psi0, r.kernel.Value(0, 0, 0), 1e-15)
}

func TestSplitNotchMatchesLocalNotch(t *testing.T) {
	groups := []group{{angles: []int{0}, omega: mesh.Vec(1, 0, 0)}}

	local, err := mesh.NewNotch()
	require.NoError(t, err)
	lr := setup(t, comm.NewWorld(1), local, groups, 1, sweep.Options{})
	runAll(t, lr, func(ctx context.Context, r *rank) error {
		for range 3 {
			if err := r.sched.Sweep(ctx); err != nil {
				return err
			}
		}
		return nil
	})

	split, err := mesh.NewSplitNotch()
	require.NoError(t, err)
	sr := setup(t, comm.NewWorld(2), split, groups, 1, sweep.Options{})
	runAll(t, sr, func(ctx context.Context, r *rank) error {
		for range 3 {
			if err := r.sched.Sweep(ctx); err != nil {
				return err
			}
		}
		return nil
	})

	want := lr[0].kernel.Values()
	got := sr[0].kernel.Values()
	for gid, v := range sr[1].kernel.Values() {
		got[gid] = v
	}
	assert.Equal(t, want, got)
}

func TestRunConverges(t *testing.T) {
	g, err := mesh.NewSplitNotch()
	require.NoError(t, err)
	ranks := setup(t, comm.NewWorld(2), g, []group{{angles: []int{0}, omega: mesh.Vec(1, 0, 0)}}, 1, sweep.Options{})

	results := make([]sweep.Result, len(ranks))
	runAll(t, ranks, func(ctx context.Context, r *rank) error {
		res, err := r.sched.Run(ctx, 10, 1e-12)
		results[r.comm.Rank()] = res
		return err
	})
	for _, res := range results {
		assert.True(t, res.Converged)
		assert.Less(t, res.Norm, 1e-12)
		assert.Equal(t, results[0].Sweeps, res.Sweeps, "ranks agree on the global norm")
		assert.Greater(t, res.Sweeps, 2)
	}
}

func TestAcyclicRunStopsAfterOneSweep(t *testing.T) {
	g, err := mesh.NewSlab(6, 3)
	require.NoError(t, err)
	ranks := setup(t, comm.NewWorld(3), g, []group{
		{angles: []int{0}, omega: mesh.Vec(1, 0, 0)},
		{angles: []int{1}, omega: mesh.Vec(-1, 0, 0)},
	}, 2, sweep.Options{})
	runAll(t, ranks, func(ctx context.Context, r *rank) error {
		res, err := r.sched.Run(ctx, 5, 1e-8)
		if err == nil && (res.Sweeps != 1 || !res.Converged) {
			t.Errorf("rank %d: %+v", r.comm.Rank(), res)
		}
		return err
	})
}

func TestGridPartitionsMatchSingleDomain(t *testing.T) {
	quad, err := quadrature.NewProduct(2, 2, 1)
	require.NoError(t, err)
	qgroups, err := quad.Group(2)
	require.NoError(t, err)
	var groups []group
	for _, qg := range qgroups {
		groups = append(groups, group{angles: qg.Angles, omega: qg.Representative})
	}
	opts := sweep.Options{Groups: 2, EagerLimit: 16}

	whole, err := mesh.NewOrthoGrid(4, 4, 1, 1)
	require.NoError(t, err)
	wr := setup(t, comm.NewWorld(1), whole, groups, quad.Len(), opts)
	runAll(t, wr, func(ctx context.Context, r *rank) error { return r.sched.Sweep(ctx) })

	split, err := mesh.NewOrthoGrid(4, 4, 2, 2)
	require.NoError(t, err)
	world := comm.NewWorld(4, comm.WithEagerLimit(16))
	sr := setup(t, world, split, groups, quad.Len(), opts)

	// 2 faces * 2 DOFs * 2 angles * 2 groups = 16 doubles; the eager limit
	// asks for 8 chunks, the angle count clamps it to 2.
	succ := sr[0].sets[0].Buffer().Successors()
	require.Len(t, succ, 2)
	assert.Equal(t, 2, succ[0].Count())

	runAll(t, sr, func(ctx context.Context, r *rank) error { return r.sched.Sweep(ctx) })

	want := wr[0].kernel.Values()
	got := make(map[int][]float64)
	for _, r := range sr {
		for gid, v := range r.kernel.Values() {
			got[gid] = v
		}
	}
	assert.Equal(t, want, got)
	assert.Zero(t, world.Pending())
}

func TestChunkSizeMismatchIsLoggedAndAccepted(t *testing.T) {
	g, err := mesh.NewSlab(2, 2)
	require.NoError(t, err)
	world := comm.NewWorld(2)
	var logs bytes.Buffer
	logger := log.NewWithOptions(&logs, log.Options{Level: log.WarnLevel})
	ranks := setup(t, world, g, []group{{angles: []int{0}, omega: mesh.Vec(1, 0, 0)}}, 1, sweep.Options{Logger: logger})
	down := ranks[1].sets[0]
	down.Reset()

	// Angle set 0, regular, chunk 0: the tag is the base.
	_, err = ranks[0].comm.Isend(1, sweep.DefaultTagBase, []byte{1, 2, 3})
	require.NoError(t, err)

	st := down.Buffer().ReceiveUpstreamPsi(context.Background(), 0)
	assert.Equal(t, sweep.ReadyToExecute, st)
	assert.Contains(t, logs.String(), "chunk size mismatch")

	logs.Reset()
	assert.Equal(t, sweep.ReadyToExecute, down.Buffer().ReceiveUpstreamPsi(context.Background(), 0))
	assert.Empty(t, logs.String(), "ready buffers do no further I/O")
}

func TestClearDownstreamBuffersWaitsForReceiver(t *testing.T) {
	g, err := mesh.NewSlab(2, 2)
	require.NoError(t, err)
	// Every send above 0 bytes waits for the receiver.
	world := comm.NewWorld(2, comm.WithEagerLimit(0))
	ranks := setup(t, world, g, []group{{angles: []int{0}, omega: mesh.Vec(1, 0, 0)}}, 1, sweep.Options{})
	ctx := context.Background()
	up, down := ranks[0].sets[0], ranks[1].sets[0]
	up.Reset()
	down.Reset()

	st, err := up.Advance(ctx, sweep.ExecuteIfReady)
	require.NoError(t, err)
	assert.Equal(t, sweep.Finished, st)
	assert.False(t, up.Buffer().DoneSending())
	assert.Equal(t, sweep.MessagesPending, up.Buffer().ClearDownstreamBuffers())
	assert.Equal(t, sweep.MessagesPending, up.Buffer().ClearDownstreamBuffers())

	st, err = down.Advance(ctx, sweep.ExecuteIfReady)
	require.NoError(t, err)
	assert.Equal(t, sweep.Finished, st)

	assert.Equal(t, sweep.MessagesSent, up.Buffer().ClearDownstreamBuffers())
	assert.Equal(t, sweep.MessagesSent, up.Buffer().ClearDownstreamBuffers())
	assert.True(t, up.Buffer().DoneSending())
}

func TestStalledSweepHonorsContext(t *testing.T) {
	g, err := mesh.NewSlab(2, 2)
	require.NoError(t, err)
	ranks := setup(t, comm.NewWorld(2), g, []group{{angles: []int{0}, omega: mesh.Vec(1, 0, 0)}}, 1, sweep.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = ranks[1].sched.Sweep(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, sweep.Receiving, ranks[1].sets[0].State())
}

func TestNewAngleSetValidation(t *testing.T) {
	g, err := mesh.NewSlab(2, 1)
	require.NoError(t, err)
	ranks := setup(t, comm.NewWorld(1), g, []group{{angles: []int{0, 1}, omega: mesh.Vec(1, 0, 0)}}, 2, sweep.Options{})
	layout := ranks[0].sets[0].FLUDS()
	c := ranks[0].comm
	k := ranks[0].kernel

	_, err = sweep.NewAngleSet(0, nil, layout, c, k, sweep.Options{})
	assert.True(t, errors.Is(err, errors.ErrCodeEmptyAngleSet), "err = %v", err)
	assert.True(t, errors.IsFatal(err))

	_, err = sweep.NewAngleSet(0, []int{0, 1}, layout, c, k, sweep.Options{MaxMessages: 1})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "err = %v", err)

	_, err = sweep.NewAngleSet(0, []int{0}, layout, c, nil, sweep.Options{})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "err = %v", err)

	// Sweep tags may not reach down to the face exchange tag.
	_, err = sweep.NewAngleSet(0, []int{0}, layout, c, k, sweep.Options{TagBase: layout.ExchangeTag()})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "err = %v", err)
	_, err = sweep.NewAngleSet(0, []int{0}, layout, c, k, sweep.Options{TagBase: 5})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "err = %v", err)
	_, err = sweep.NewAngleSet(0, []int{0}, layout, c, k, sweep.Options{TagBase: layout.ExchangeTag() + 1})
	assert.NoError(t, err)

	a, err := sweep.NewAngleSet(0, []int{0, 1}, layout, c, k, sweep.Options{})
	require.NoError(t, err)
	b, err := sweep.NewAngleSet(1, []int{0}, layout, c, k, sweep.Options{})
	require.NoError(t, err)
	_, err = sweep.NewScheduler(c, []*sweep.AngleSet{a, b}, sweep.SchedulerOptions{})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "mismatched tag stride: err = %v", err)

	_, err = sweep.NewScheduler(c, []*sweep.AngleSet{a, a}, sweep.SchedulerOptions{})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig), "duplicate id: err = %v", err)

	_, err = sweep.NewScheduler(c, nil, sweep.SchedulerOptions{})
	assert.True(t, errors.Is(err, errors.ErrCodeEmptyAngleSet))
}

func TestSweepChunkErrorStopsSweep(t *testing.T) {
	g, err := mesh.NewSlab(2, 1)
	require.NoError(t, err)
	ranks := setup(t, comm.NewWorld(1), g, []group{{angles: []int{0}, omega: mesh.Vec(1, 0, 0)}}, 1, sweep.Options{})
	boom := sweep.SweepChunkFunc(func(context.Context, *sweep.AngleSet) error { return assert.AnError })

	as, err := sweep.NewAngleSet(0, []int{0}, ranks[0].sets[0].FLUDS(), ranks[0].comm, boom, sweep.Options{Logger: quiet()})
	require.NoError(t, err)
	sched, err := sweep.NewScheduler(ranks[0].comm, []*sweep.AngleSet{as}, sweep.SchedulerOptions{Logger: quiet()})
	require.NoError(t, err)

	err = sched.Sweep(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, errors.Is(err, errors.ErrCodeInternal))
}

type sweepRecorder struct {
	observability.NoopSweepHooks
	mu     sync.Mutex
	chunks int
	sweeps map[int]int
}

func (r *sweepRecorder) OnChunkReceived(context.Context, int, int, int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks++
}

func (r *sweepRecorder) OnSweepComplete(_ context.Context, partition, n int, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps[partition] = n
}

func TestInjectedHooksSeeEveryPartition(t *testing.T) {
	g, err := mesh.NewSlab(4, 2)
	require.NoError(t, err)
	rec := &sweepRecorder{sweeps: make(map[int]int)}
	ranks := setup(t, comm.NewWorld(2), g, []group{{angles: []int{0}, omega: mesh.Vec(1, 0, 0)}}, 1,
		sweep.Options{Hooks: rec})

	runAll(t, ranks, func(ctx context.Context, r *rank) error {
		if err := r.sched.Sweep(ctx); err != nil {
			return err
		}
		return r.sched.Sweep(ctx)
	})
	assert.Equal(t, map[int]int{0: 2, 1: 2}, rec.sweeps)
	assert.Equal(t, 2, rec.chunks, "partition 1 receives one chunk per sweep")
}
