package cli

import (
	"context"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/sweeptower/pkg/cache"
	"github.com/matzehuels/sweeptower/pkg/comm"
	"github.com/matzehuels/sweeptower/pkg/config"
	"github.com/matzehuels/sweeptower/pkg/fluds"
	"github.com/matzehuels/sweeptower/pkg/kernel"
	"github.com/matzehuels/sweeptower/pkg/mesh"
	"github.com/matzehuels/sweeptower/pkg/observability"
	"github.com/matzehuels/sweeptower/pkg/quadrature"
	"github.com/matzehuels/sweeptower/pkg/spds"
	"github.com/matzehuels/sweeptower/pkg/sweep"
)

// problem is the built-in demo: an orthogonal grid swept with a 2-D
// product quadrature.
type problem struct {
	cfg    config.Config
	grid   *mesh.Global
	quad   *quadrature.Set
	groups []quadrature.Group

	// Event sinks for the run; nil falls back to the registered hooks.
	sweepHooks     observability.SweepHooks
	transportHooks observability.TransportHooks
}

func newProblem(cfg config.Config) (*problem, error) {
	p := cfg.Problem
	grid, err := mesh.NewOrthoGrid(p.NX, p.NY, p.PX, p.PY)
	if err != nil {
		return nil, err
	}
	quad, err := quadrature.NewProduct(2, p.AnglesPerOctant, 1)
	if err != nil {
		return nil, err
	}
	groups, err := quad.Group(p.AnglesPerSet)
	if err != nil {
		return nil, err
	}
	return &problem{cfg: cfg, grid: grid, quad: quad, groups: groups}, nil
}

// partitionRun is the sweep state of one partition.
type partitionRun struct {
	id     int
	mesh   mesh.Mesh
	plans  []*spds.SPDS
	sets   []*sweep.AngleSet
	kernel *kernel.Relaxation
	sched  *sweep.Scheduler
}

// maxMessages is the tag stride shared by all angle sets.
func (pr *problem) maxMessages() int {
	if n := pr.cfg.Sweep.MaxMessages; n > 0 {
		return n
	}
	n := 0
	for _, g := range pr.groups {
		n = max(n, len(g.Angles))
	}
	return n
}

// plan builds the SPDS of every angle set for partition p. All ranks of c
// must plan the same sets in the same order.
func (pr *problem) plan(ctx context.Context, p int, c comm.Communicator, store cache.Cache, logger *log.Logger, sets []int) (mesh.Mesh, []*spds.SPDS, error) {
	m, err := pr.grid.Partition(p)
	if err != nil {
		return nil, nil, err
	}
	opts := spds.Options{
		AllowCycles: pr.cfg.Sweep.AllowCycles,
		Tolerance:   pr.cfg.Sweep.Tolerance,
		Cache:       store,
		CacheTTL:    pr.cfg.Cache.TTL,
		Logger:      logger,
	}
	plans := make([]*spds.SPDS, 0, len(sets))
	for _, i := range sets {
		s, err := spds.New(ctx, m, pr.groups[i].Representative, c, opts)
		if err != nil {
			return nil, nil, err
		}
		plans = append(plans, s)
	}
	return m, plans, nil
}

// build plans partition p and assembles its angle sets and scheduler.
func (pr *problem) build(ctx context.Context, p int, c comm.Communicator, store cache.Cache, logger *log.Logger) (*partitionRun, error) {
	m, plans, err := pr.plan(ctx, p, c, store, logger, pr.allSets())
	if err != nil {
		return nil, err
	}
	k, err := kernel.NewRelaxation(m, pr.quad.Len(), pr.cfg.Problem.Groups, pr.cfg.Problem.Source, pr.cfg.Problem.Attenuation)
	if err != nil {
		return nil, err
	}
	run := &partitionRun{id: p, mesh: m, plans: plans, kernel: k}

	opts := sweep.Options{
		Groups:      pr.cfg.Problem.Groups,
		EagerLimit:  pr.cfg.Sweep.EagerLimit,
		MaxMessages: pr.maxMessages(),
		TagBase:     pr.cfg.Sweep.TagBase,
		Hooks:       pr.sweepHooks,
		Logger:      logger,
	}
	for i, s := range plans {
		layout, err := fluds.New(ctx, s, c, fluds.Options{Logger: logger})
		if err != nil {
			return nil, err
		}
		as, err := sweep.NewAngleSet(i, pr.groups[i].Angles, layout, c, k, opts)
		if err != nil {
			return nil, err
		}
		run.sets = append(run.sets, as)
	}
	run.sched, err = sweep.NewScheduler(c, run.sets, sweep.SchedulerOptions{Hooks: pr.sweepHooks, Logger: logger})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (pr *problem) allSets() []int {
	sets := make([]int, len(pr.groups))
	for i := range sets {
		sets[i] = i
	}
	return sets
}

// planLocal plans the given sets on every partition inside one process.
// The result is indexed by partition, then set.
func (pr *problem) planLocal(ctx context.Context, store cache.Cache, logger *log.Logger, sets []int) ([][]*spds.SPDS, error) {
	n := pr.grid.NumPartitions()
	world := comm.NewWorld(n, comm.WithEagerLimit(pr.cfg.Sweep.EagerLimit))
	out := make([][]*spds.SPDS, n)
	g, ctx := errgroup.WithContext(ctx)
	for p := range n {
		g.Go(func() error {
			_, plans, err := pr.plan(ctx, p, world.Comm(p), store, logger.With("partition", p), sets)
			out[p] = plans
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
