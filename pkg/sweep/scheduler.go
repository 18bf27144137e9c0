package sweep

import (
	"context"
	"encoding/binary"
	"math"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/sweeptower/pkg/comm"
	"github.com/matzehuels/sweeptower/pkg/errors"
	"github.com/matzehuels/sweeptower/pkg/observability"
)

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Idle is slept when a polling round makes no progress. Zero yields
	// the processor instead.
	Idle time.Duration
	// Hooks receives sweep-complete events; nil uses the registered
	// observability.Sweep hooks.
	Hooks  observability.SweepHooks
	Logger *log.Logger
}

// Scheduler advances the angle sets of one partition round robin.
type Scheduler struct {
	comm   comm.Communicator
	sets   []*AngleSet
	idle   time.Duration
	hooks  observability.SweepHooks
	logger *log.Logger
	sweeps int
}

// NewScheduler creates a scheduler over sets, which must all live on the
// partition served by c and use the same message tag stride.
func NewScheduler(c comm.Communicator, sets []*AngleSet, opts SchedulerOptions) (*Scheduler, error) {
	if len(sets) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyAngleSet, "scheduler has no angle sets")
	}
	seen := make(map[int]bool, len(sets))
	stride := sets[0].buffer.maxMessages
	for _, as := range sets {
		if seen[as.id] {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "duplicate angle set number %d", as.id)
		}
		seen[as.id] = true
		if as.buffer.maxMessages != stride {
			return nil, errors.New(errors.ErrCodeInvalidConfig,
				"angle set %d uses max messages %d, others %d", as.id, as.buffer.maxMessages, stride)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{comm: c, sets: sets, idle: opts.Idle, hooks: opts.Hooks, logger: logger}, nil
}

// AngleSets returns the scheduled angle sets.
func (s *Scheduler) AngleSets() []*AngleSet { return s.sets }

// Sweeps returns the number of completed sweeps.
func (s *Scheduler) Sweeps() int { return s.sweeps }

// Sweep runs one full sweep: every angle set executes once, all sends
// complete and the delayed data for the next sweep has arrived.
func (s *Scheduler) Sweep(ctx context.Context) error {
	start := time.Now()
	part := s.partition()
	err := s.sweep(ctx)
	sweepHooks(s.hooks).OnSweepComplete(ctx, part, s.sweeps+1, time.Since(start), err)
	if err != nil {
		return err
	}
	s.sweeps++
	s.logger.Debug("sweep complete", "partition", part, "sweep", s.sweeps, "elapsed", time.Since(start).Round(time.Microsecond))
	return nil
}

func (s *Scheduler) sweep(ctx context.Context) error {
	for _, as := range s.sets {
		as.Reset()
	}

	states := make([]Status, len(s.sets))
	for {
		progress, finished := false, 0
		for i, as := range s.sets {
			st, err := as.Advance(ctx, ExecuteIfReady)
			if err != nil {
				if errors.GetCode(err) == "" {
					return errors.Wrap(errors.ErrCodeInternal, err, "sweep chunk of angle set %d", as.id)
				}
				return err
			}
			if st != states[i] {
				states[i], progress = st, true
			}
			if st == Finished {
				finished++
			}
		}
		if finished == len(s.sets) {
			break
		}
		if err := s.wait(ctx, progress); err != nil {
			return err
		}
	}

	for {
		settled := true
		for _, as := range s.sets {
			if as.buffer.ClearDownstreamBuffers() != MessagesSent {
				settled = false
			}
			if as.buffer.ReceiveDelayedData(ctx, as.id) != ReadyToExecute {
				settled = false
			}
		}
		if settled {
			return nil
		}
		if err := s.wait(ctx, false); err != nil {
			return err
		}
	}
}

func (s *Scheduler) wait(ctx context.Context, progress bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if progress {
		return nil
	}
	if s.idle > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.idle):
		}
		return nil
	}
	runtime.Gosched()
	return nil
}

func (s *Scheduler) partition() int {
	return s.sets[0].SPDS().Mesh().Partition()
}

// DelayedPsiNorm returns the largest delayed-data norm over all angle sets
// of this partition.
func (s *Scheduler) DelayedPsiNorm() float64 {
	norm := 0.0
	for _, as := range s.sets {
		norm = max(norm, as.buffer.DelayedPsiNorm())
	}
	return norm
}

// GlobalDelayedPsiNorm all-gathers DelayedPsiNorm and returns the maximum
// over every rank. All ranks must call it together.
func (s *Scheduler) GlobalDelayedPsiNorm(ctx context.Context) (float64, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(s.DelayedPsiNorm()))
	all, err := s.comm.AllGather(ctx, buf[:])
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeCommunication, err, "all-gather delayed norm")
	}
	norm := 0.0
	for rank, b := range all {
		if len(b) != 8 {
			return 0, errors.New(errors.ErrCodeCommunication, "rank %d sent %d-byte norm", rank, len(b))
		}
		norm = max(norm, math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
	return norm, nil
}

// Result summarizes Run.
type Result struct {
	Sweeps    int
	Norm      float64
	Converged bool
}

// Run sweeps until the global delayed norm drops below epsilon or
// maxSweeps is reached. A problem without delayed data converges after
// one sweep.
func (s *Scheduler) Run(ctx context.Context, maxSweeps int, epsilon float64) (Result, error) {
	var res Result
	for res.Sweeps < maxSweeps {
		if err := s.Sweep(ctx); err != nil {
			return res, err
		}
		res.Sweeps++
		norm, err := s.GlobalDelayedPsiNorm(ctx)
		if err != nil {
			return res, err
		}
		res.Norm = norm
		s.logger.Debug("sweep iteration", "partition", s.partition(), "iteration", res.Sweeps, "delayed_norm", norm)
		if norm < epsilon {
			res.Converged = true
			break
		}
	}
	return res, nil
}
