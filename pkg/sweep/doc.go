// Package sweep runs transport sweeps for one mesh partition.
//
// An [AngleSet] groups directions that share one sweep plan and flux
// layout. It is driven by repeated calls to [AngleSet.Advance]; no call
// ever waits for a message. A [Scheduler] advances many angle sets round
// robin on a single goroutine so that sets still waiting for upstream data
// do not hold up those that can run.
//
// Each angle set owns a [SweepBuffer] that splits the flux crossing
// partition boundaries into chunks no larger than the eager limit and
// moves them with non-blocking sends and probes. Delayed (cyclic) data is
// sent together with regular data but consumed one sweep later; its
// relative change between sweeps, [SweepBuffer.DelayedPsiNorm], tells an
// outer iteration whether another sweep is needed.
//
// The per-cell physics is supplied by the caller as a [SweepChunk].
//
// # Receive faults
//
// A received chunk with an unexpected size, or a transport error while
// probing or receiving, is logged at warn level and the poll carries on.
// Chunks with a size mismatch count as received with whatever data fit.
// This keeps a sweep moving on a flaky transport at the price of possibly
// wrong flux values.
package sweep
