// Package pkg provides the core libraries for Sweeptower sweep scheduling.
//
// # Overview
//
// Sweeptower runs discrete-ordinates transport sweeps over a mesh split
// into partitions. For every direction the cells must be visited upwind
// to downwind, and partitions exchange the angular flux crossing their
// boundaries while the sweep is in flight. The pkg directory is organized
// into three areas:
//
//  1. Planning - [mesh], [quadrature], [dag], [spds] and [fluds] turn a
//     partition and a direction into a sweep order and a buffer layout.
//  2. Execution - [sweep] drives angle sets through a poll-based state
//     machine over a [comm] Communicator; [kernel] is a manufactured
//     per-cell solver for testing and demos.
//  3. Infrastructure - [cache], [config], [errors], [observability],
//     [render] and [buildinfo].
//
// # Architecture
//
// The data flow for one partition and one angle set:
//
//	mesh.Mesh + direction
//	         ↓
//	    [spds] (face classification, cycle breaking, topological order)
//	         ↓
//	    [fluds] (lock-box slots, boundary face exchange)
//	         ↓
//	    [sweep] AngleSet + SweepBuffer (chunked non-blocking messages)
//	         ↓
//	    [sweep] Scheduler (round robin, delayed-data convergence)
//
// # Quick Start
//
//	world := comm.NewWorld(1)
//	c := world.Comm(0)
//	m, _ := grid.Partition(0)
//
//	plan, _ := spds.New(ctx, m, omega, c, spds.Options{AllowCycles: true})
//	layout, _ := fluds.New(ctx, plan, c, fluds.Options{})
//	set, _ := sweep.NewAngleSet(0, []int{0}, layout, c, chunk, sweep.Options{})
//	sched, _ := sweep.NewScheduler(c, []*sweep.AngleSet{set}, sweep.SchedulerOptions{})
//	result, _ := sched.Run(ctx, 10, 1e-8)
//
// [mesh]: github.com/matzehuels/sweeptower/pkg/mesh
// [quadrature]: github.com/matzehuels/sweeptower/pkg/quadrature
// [dag]: github.com/matzehuels/sweeptower/pkg/dag
// [spds]: github.com/matzehuels/sweeptower/pkg/spds
// [fluds]: github.com/matzehuels/sweeptower/pkg/fluds
// [sweep]: github.com/matzehuels/sweeptower/pkg/sweep
// [comm]: github.com/matzehuels/sweeptower/pkg/comm
// [kernel]: github.com/matzehuels/sweeptower/pkg/kernel
// [cache]: github.com/matzehuels/sweeptower/pkg/cache
// [config]: github.com/matzehuels/sweeptower/pkg/config
// [errors]: github.com/matzehuels/sweeptower/pkg/errors
// [observability]: github.com/matzehuels/sweeptower/pkg/observability
// [render]: github.com/matzehuels/sweeptower/pkg/render
// [buildinfo]: github.com/matzehuels/sweeptower/pkg/buildinfo
package pkg
