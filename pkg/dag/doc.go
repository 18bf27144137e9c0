// Package dag provides the weighted directed graph that orders the cells of
// one partition for one sweep direction.
//
// # Overview
//
// Vertices are local cell indices 0..n-1. An edge u→v means cell u is
// upwind of cell v for the direction: v cannot be swept before u has
// produced the angular flux on their shared face(s). The edge weight is the
// sum over shared faces of face area × |omega·n|, a measure of how much
// flux the dependency carries. Cycle removal uses it to break the cheapest
// dependencies first.
//
// # Basic Usage
//
//	g := dag.New(3)
//	g.AddEdge(dag.Edge{From: 0, To: 1, Weight: 0.5})
//	g.AddEdge(dag.Edge{From: 1, To: 2, Weight: 0.5})
//	order, err := g.TopologicalSort() // [0 1 2]
//
// Adding an edge that already exists accumulates its weight, so callers
// can add one edge per shared face.
//
// # Ordering
//
// [DAG.TopologicalSort] is Kahn's algorithm with the smallest ready index
// taken first. The order is therefore a pure function of the edge set,
// which matters because neighboring partitions derive buffer layouts from
// it independently.
//
// # Concurrency
//
// DAG instances are not safe for concurrent use. A graph is built and
// consumed by one partition's goroutine.
//
// # Related Packages
//
// The [transform] subpackage removes cycles and assigns sweep-plane levels.
//
// [transform]: github.com/matzehuels/sweeptower/pkg/dag/transform
package dag
