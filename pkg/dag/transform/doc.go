// Package transform provides transformations that turn a per-direction cell
// dependency graph into something a sweep can execute.
//
// # Cycle Removal
//
// On non-convex or skewed meshes two cells can each be upwind of the other
// for the same direction. [BreakCycles] repeatedly finds the strongly
// connected components of the graph (Tarjan's algorithm, via gonum) and
// removes the lightest edge inside every component that still has more
// than one vertex, until none are left. Removed edges are returned; the
// sweep later treats them as delayed dependencies whose values come from
// the previous iteration.
//
// Ties between equal weights are broken by (From, To) so that every
// partition running the same algorithm on the same input removes the same
// edges.
//
// # Levels
//
// [AssignLevels] places each vertex one level below its deepest parent
// (longest path from the sources). Cells on the same level are independent
// for the direction and form a sweep plane; the largest level is the
// wavefront width.
//
// # Nil Handling
//
// All functions panic if the graph is nil.
package transform
