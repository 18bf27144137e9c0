package spds

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/sweeptower/pkg/cache"
	"github.com/matzehuels/sweeptower/pkg/comm"
	"github.com/matzehuels/sweeptower/pkg/dag"
	"github.com/matzehuels/sweeptower/pkg/dag/transform"
	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/mesh"
	"github.com/matzehuels/sweeptower/pkg/observability"
)

// Options configures [New].
type Options struct {
	// AllowCycles enables cycle removal. Without it a cyclic local or
	// partition graph is a CYCLIC_GRAPH error.
	AllowCycles bool
	// Tolerance for parallel faces; zero means DefaultTolerance.
	Tolerance float64

	// Cache stores the local ordering between runs. Nil disables caching.
	Cache    cache.Cache
	Keyer    cache.Keyer
	CacheTTL time.Duration

	// PlanHooks and CacheHooks receive planning events; nil uses the
	// registered observability hooks.
	PlanHooks  observability.PlanHooks
	CacheHooks observability.CacheHooks

	Logger *log.Logger
}

// SPDS is the per-direction sweep plan of one partition.
type SPDS struct {
	omega     mesh.Vector3
	mesh      mesh.Mesh
	rel       *Relationships
	order     []int
	position  []int
	cyclic    []dag.Edge
	cyclicSet map[[2]int]bool
	levels    []int
	width     int

	globalDeps   [][]int
	deps         []int
	succs        []int
	delayedDeps  []int
	delayedSuccs []int
}

// plan is the cached part of an SPDS.
type plan struct {
	Cells  int        `json:"cells"`
	Order  []int      `json:"order"`
	Cyclic []dag.Edge `json:"cyclic"`
	Levels []int      `json:"levels"`
}

type gathered struct {
	Partition int           `json:"partition"`
	Deps      []weightedDep `json:"deps"`
}

type weightedDep struct {
	Partition int     `json:"partition"`
	Weight    float64 `json:"weight"`
}

// New builds the SPDS of partition m for direction omega. Every rank of c
// must call New for the same directions in the same order, since it
// performs one all-gather.
func New(ctx context.Context, m mesh.Mesh, omega mesh.Vector3, c comm.Communicator, opts Options) (*SPDS, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	tol := opts.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}

	start := time.Now()
	hooks := opts.PlanHooks
	if hooks == nil {
		hooks = observability.Plan()
	}
	hooks.OnPlanStart(ctx, m.Partition(), [3]float64{omega.X, omega.Y, omega.Z})

	s, err := build(ctx, m, omega, c, opts, tol, logger)
	cyclic, cells := 0, m.NumLocalCells()
	if s != nil {
		cyclic = len(s.cyclic)
	}
	hooks.OnPlanComplete(ctx, m.Partition(), cells, cyclic, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	logger.Debug("sweep plan ready",
		"partition", m.Partition(),
		"omega", omega,
		"cells", cells,
		"cyclic", len(s.cyclic),
		"delayed_deps", len(s.delayedDeps),
		"width", s.width)
	return s, nil
}

func build(ctx context.Context, m mesh.Mesh, omega mesh.Vector3, c comm.Communicator, opts Options, tol float64, logger *log.Logger) (*SPDS, error) {
	rel, err := AnalyzeCellRelationships(m, omega, tol)
	if err != nil {
		return nil, err
	}

	p, err := localPlan(ctx, m, omega, rel, opts, tol, logger)
	if err != nil {
		return nil, err
	}

	s := &SPDS{
		omega:     omega,
		mesh:      m,
		rel:       rel,
		order:     p.Order,
		position:  dag.PosMap(p.Order),
		cyclic:    p.Cyclic,
		cyclicSet: make(map[[2]int]bool, len(p.Cyclic)),
		levels:    p.Levels,
	}
	for _, e := range p.Cyclic {
		s.cyclicSet[[2]int{e.From, e.To}] = true
	}
	s.width = s.liveFaceWidth()

	if err := s.exchangeDependencies(ctx, c, opts.AllowCycles); err != nil {
		return nil, err
	}
	return s, nil
}

// localPlan orders the local cells, consulting the cache first.
func localPlan(ctx context.Context, m mesh.Mesh, omega mesh.Vector3, rel *Relationships, opts Options, tol float64, logger *log.Logger) (*plan, error) {
	var key string
	cacheHooks := opts.CacheHooks
	if cacheHooks == nil {
		cacheHooks = observability.Cache()
	}
	if opts.Cache != nil {
		keyer := opts.Keyer
		if keyer == nil {
			keyer = cache.NewDefaultKeyer()
		}
		fp, err := Fingerprint(m)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "fingerprint mesh")
		}
		key = keyer.PlanKey(fp, cache.PlanKeyOpts{
			Omega:       [3]float64{omega.X, omega.Y, omega.Z},
			AllowCycles: opts.AllowCycles,
			Tolerance:   tol,
		})
		if p, ok := cachedPlan(ctx, opts.Cache, cacheHooks, key, m.NumLocalCells(), logger); ok {
			return p, nil
		}
	}

	p, err := computePlan(m.NumLocalCells(), rel, opts.AllowCycles)
	if err != nil {
		return nil, err
	}

	if opts.Cache != nil {
		data, err := json.Marshal(p)
		if err == nil {
			err = opts.Cache.Set(ctx, key, data, opts.CacheTTL)
		}
		if err != nil {
			logger.Warn("plan cache write failed", "partition", m.Partition(), "err", err)
		} else {
			cacheHooks.OnCacheSet(ctx, "plan", len(data))
		}
	}
	return p, nil
}

func cachedPlan(ctx context.Context, c cache.Cache, hooks observability.CacheHooks, key string, cells int, logger *log.Logger) (*plan, bool) {
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		logger.Warn("plan cache read failed", "err", err)
		return nil, false
	}
	if !ok {
		hooks.OnCacheMiss(ctx, "plan")
		return nil, false
	}
	var p plan
	if err := json.Unmarshal(data, &p); err != nil || p.Cells != cells || len(p.Order) != cells {
		hooks.OnCacheMiss(ctx, "plan")
		return nil, false
	}
	hooks.OnCacheHit(ctx, "plan")
	return &p, true
}

func computePlan(n int, rel *Relationships, allowCycles bool) (*plan, error) {
	g := dag.New(n)
	for from, succ := range rel.Successors {
		for _, s := range succ {
			if err := g.AddEdge(dag.Edge{From: from, To: s.Cell, Weight: s.Weight}); err != nil {
				return nil, errors.Wrap(errors.ErrCodeCellOutOfRange, err, "edge %d->%d", from, s.Cell)
			}
		}
	}

	var cyclic []dag.Edge
	if allowCycles {
		cyclic = transform.BreakCycles(g)
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCyclicGraph, err, "local cell graph is cyclic and cycles are not allowed")
	}
	levels, _ := transform.AssignLevels(g)
	return &plan{Cells: n, Order: order, Cyclic: cyclic, Levels: levels}, nil
}

// liveFaceWidth walks the sweep order and returns the largest number of
// local outgoing faces whose flux has been written but not yet read by
// every downwind cell. A cell reads its inputs before writing outputs.
func (s *SPDS) liveFaceWidth() int {
	live, peak := 0, 0
	for _, c := range s.order {
		cell := s.mesh.LocalCell(c)
		for fi, face := range cell.Faces {
			if !face.HasNeighbor {
				continue
			}
			nb, local := s.mesh.LocalIndex(face.NeighborID)
			if !local {
				continue
			}
			switch s.rel.Orientations[c][fi] {
			case Incoming:
				if !s.IsCyclic(nb, c) {
					live--
				}
			case Outgoing:
				if !s.IsCyclic(c, nb) {
					live++
				}
			}
		}
		peak = max(peak, live)
	}
	return peak
}

// exchangeDependencies all-gathers location dependencies and splits them
// into regular and delayed sets using the global partition graph.
func (s *SPDS) exchangeDependencies(ctx context.Context, c comm.Communicator, allowCycles bool) error {
	mine := gathered{Partition: s.mesh.Partition()}
	for _, p := range s.rel.LocationDependencies {
		mine.Deps = append(mine.Deps, weightedDep{Partition: p, Weight: s.rel.DependencyWeights[p]})
	}
	payload, err := json.Marshal(mine)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode dependencies")
	}
	all, err := c.AllGather(ctx, payload)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCommunication, err, "all-gather location dependencies")
	}

	np := s.mesh.NumPartitions()
	s.globalDeps = make([][]int, np)
	g := dag.New(np)
	for rank, raw := range all {
		var in gathered
		if err := json.Unmarshal(raw, &in); err != nil {
			return errors.Wrap(errors.ErrCodeCommunication, err, "decode dependencies from rank %d", rank)
		}
		if in.Partition < 0 || in.Partition >= np {
			return errors.New(errors.ErrCodeCellOutOfRange, "rank %d reported partition %d of %d", rank, in.Partition, np)
		}
		for _, d := range in.Deps {
			s.globalDeps[in.Partition] = append(s.globalDeps[in.Partition], d.Partition)
			if err := g.AddEdge(dag.Edge{From: d.Partition, To: in.Partition, Weight: d.Weight}); err != nil {
				return errors.Wrap(errors.ErrCodeCellOutOfRange, err, "partition edge %d->%d", d.Partition, in.Partition)
			}
		}
	}

	var delayed []dag.Edge
	if allowCycles {
		delayed = transform.BreakCycles(g)
	} else if err := g.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeCyclicGraph, err, "partition dependency graph is cyclic and cycles are not allowed")
	}

	self := s.mesh.Partition()
	delayedDeps := make(map[int]bool)
	delayedSuccs := make(map[int]bool)
	for _, e := range delayed {
		if e.To == self {
			delayedDeps[e.From] = true
		}
		if e.From == self {
			delayedSuccs[e.To] = true
		}
	}
	for _, p := range s.rel.LocationDependencies {
		if delayedDeps[p] {
			s.delayedDeps = append(s.delayedDeps, p)
		} else {
			s.deps = append(s.deps, p)
		}
	}
	for _, p := range s.rel.LocationSuccessors {
		if delayedSuccs[p] {
			s.delayedSuccs = append(s.delayedSuccs, p)
		} else {
			s.succs = append(s.succs, p)
		}
	}
	return nil
}

// Omega returns the sweep direction.
func (s *SPDS) Omega() mesh.Vector3 { return s.omega }

// Mesh returns the partition mesh the plan was built for.
func (s *SPDS) Mesh() mesh.Mesh { return s.mesh }

// Relationships returns the face classification.
func (s *SPDS) Relationships() *Relationships { return s.rel }

// Orientation returns the classification of face f of local cell c.
func (s *SPDS) Orientation(c, f int) FaceOrientation { return s.rel.Orientations[c][f] }

// Order returns local cell indices in sweep order. Callers must not modify
// the result.
func (s *SPDS) Order() []int { return s.order }

// Position returns the index of local cell c in Order.
func (s *SPDS) Position(c int) int { return s.position[c] }

// LocalCyclicDependencies returns the local edges removed to break cycles,
// sorted by (From, To). Data across these faces comes from the previous
// sweep.
func (s *SPDS) LocalCyclicDependencies() []dag.Edge { return s.cyclic }

// IsCyclic reports whether the local edge from->to was removed.
func (s *SPDS) IsCyclic(from, to int) bool { return s.cyclicSet[[2]int{from, to}] }

// Levels returns the sweep-plane level of each local cell.
func (s *SPDS) Levels() []int { return s.levels }

// WavefrontWidth returns the largest number of local face fluxes alive at
// once when cells are swept in [SPDS.Order]. It sizes the lock box.
func (s *SPDS) WavefrontWidth() int { return s.width }

// LocationDependencies returns every upstream partition, regular and delayed.
func (s *SPDS) LocationDependencies() []int { return s.rel.LocationDependencies }

// LocationSuccessors returns every downstream partition, regular and delayed.
func (s *SPDS) LocationSuccessors() []int { return s.rel.LocationSuccessors }

// Dependencies returns upstream partitions whose data is needed before
// this partition can sweep.
func (s *SPDS) Dependencies() []int { return s.deps }

// Successors returns downstream partitions fed within the same sweep.
func (s *SPDS) Successors() []int { return s.succs }

// DelayedDependencies returns upstream partitions whose data lags one sweep.
func (s *SPDS) DelayedDependencies() []int { return s.delayedDeps }

// DelayedSuccessors returns downstream partitions fed for the next sweep.
func (s *SPDS) DelayedSuccessors() []int { return s.delayedSuccs }

// GlobalDependencies returns every partition's location dependencies,
// indexed by partition.
func (s *SPDS) GlobalDependencies() [][]int {
	out := make([][]int, len(s.globalDeps))
	for i, d := range s.globalDeps {
		out[i] = slices.Clone(d)
	}
	return out
}
