// Package mesh describes the unstructured-mesh collaborator the sweep
// scheduler works against.
//
// # Overview
//
// The scheduler never owns geometry. It reads cells through the [Mesh]
// interface, refers to them by local index, and keeps nothing but indices in
// its own state. A [Cell] is a tagged variant ([CellSlab], [CellPolygon],
// [CellPolyhedron]); every variant exposes the same face capability set
// (vertex ids, outward normal, centroid, area, neighbor), so ordering and
// DOF-layout code is written once for all cell shapes.
//
// # Partitions
//
// A [Mesh] is the view one partition has of the global mesh: its local
// cells plus enough information about the neighbors of those cells to tell
// which partition owns them. [Global] holds every cell of a small mesh in
// memory and hands out per-partition views with [Global.Partition]; it
// backs the tests and the CLI driver.
//
// # Builders
//
// [NewSlab] builds a 1-D chain of slab cells, [NewOrthoGrid] a 2-D grid of
// quadrilaterals split into px×py blocks (a KBA-style decomposition), and
// [NewGlobal] accepts hand-built cells for shapes such as non-convex notches.
package mesh
