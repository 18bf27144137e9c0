// Package spds builds the sweep plane dependency structure for one
// discrete direction on one mesh partition.
//
// Construction runs in three steps:
//
//  1. [AnalyzeCellRelationships] classifies every local face as incoming,
//     outgoing or parallel and derives weighted cell-to-cell successors and
//     the partitions this one depends on or feeds.
//  2. The local successor graph is made acyclic with
//     [transform.BreakCycles] (when cycles are allowed) and sorted
//     topologically. Removed edges become local cyclic dependencies whose
//     data lags one sweep behind.
//  3. One all-gather shares every partition's dependencies. The resulting
//     partition graph goes through the same cycle removal, so every
//     partition agrees on which cross-partition dependencies are delayed.
//
// An [SPDS] is immutable after [New] returns.
//
// [transform.BreakCycles]: github.com/matzehuels/sweeptower/pkg/dag/transform.BreakCycles
package spds
