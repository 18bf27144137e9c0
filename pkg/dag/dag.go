package dag

import (
	"cmp"
	"container/heap"
	"errors"
	"slices"
)

var (
	// ErrUnknownSourceNode is returned by [DAG.AddEdge] when From is not a
	// vertex of the graph.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [DAG.AddEdge] when To is not a
	// vertex of the graph.
	ErrUnknownTargetNode = errors.New("unknown target node")

	// ErrNegativeWeight is returned by [DAG.AddEdge] for weights below zero.
	ErrNegativeWeight = errors.New("edge weight must not be negative")

	// ErrGraphHasCycle is returned by [DAG.Validate] and
	// [DAG.TopologicalSort] when a directed cycle exists.
	ErrGraphHasCycle = errors.New("graph contains a cycle")
)

// Edge is a weighted dependency From→To.
type Edge struct {
	From   int
	To     int
	Weight float64
}

// DAG is a weighted directed graph over vertices 0..n-1. Despite the name
// it may hold cycles until they are removed; [DAG.Validate] reports them.
//
// The zero value is not usable - use New.
type DAG struct {
	n        int
	weights  map[[2]int]float64
	outgoing [][]int // vertex -> children, insertion order
	incoming [][]int // vertex -> parents, insertion order
}

// New creates a graph with n vertices and no edges.
func New(n int) *DAG {
	return &DAG{
		n:        n,
		weights:  make(map[[2]int]float64),
		outgoing: make([][]int, n),
		incoming: make([][]int, n),
	}
}

// AddEdge adds e, or adds e.Weight to the existing edge with the same
// endpoints.
func (d *DAG) AddEdge(e Edge) error {
	if e.From < 0 || e.From >= d.n {
		return ErrUnknownSourceNode
	}
	if e.To < 0 || e.To >= d.n {
		return ErrUnknownTargetNode
	}
	if e.Weight < 0 {
		return ErrNegativeWeight
	}
	key := [2]int{e.From, e.To}
	if _, exists := d.weights[key]; exists {
		d.weights[key] += e.Weight
		return nil
	}
	d.weights[key] = e.Weight
	d.outgoing[e.From] = append(d.outgoing[e.From], e.To)
	d.incoming[e.To] = append(d.incoming[e.To], e.From)
	return nil
}

// RemoveEdge removes the edge from→to and reports whether it existed.
func (d *DAG) RemoveEdge(from, to int) bool {
	key := [2]int{from, to}
	if _, ok := d.weights[key]; !ok {
		return false
	}
	delete(d.weights, key)
	d.outgoing[from] = slices.DeleteFunc(d.outgoing[from], func(v int) bool { return v == to })
	d.incoming[to] = slices.DeleteFunc(d.incoming[to], func(v int) bool { return v == from })
	return true
}

// HasEdge reports whether from→to exists.
func (d *DAG) HasEdge(from, to int) bool {
	_, ok := d.weights[[2]int{from, to}]
	return ok
}

// Weight returns the weight of from→to, or 0 and false if absent.
func (d *DAG) Weight(from, to int) (float64, bool) {
	w, ok := d.weights[[2]int{from, to}]
	return w, ok
}

// Edges returns all edges sorted by (From, To).
func (d *DAG) Edges() []Edge {
	edges := make([]Edge, 0, len(d.weights))
	for k, w := range d.weights {
		edges = append(edges, Edge{From: k[0], To: k[1], Weight: w})
	}
	slices.SortFunc(edges, CompareEdges)
	return edges
}

// CompareEdges orders edges by (From, To).
func CompareEdges(a, b Edge) int {
	if c := cmp.Compare(a.From, b.From); c != 0 {
		return c
	}
	return cmp.Compare(a.To, b.To)
}

// NodeCount returns the number of vertices.
func (d *DAG) NodeCount() int { return d.n }

// EdgeCount returns the number of edges.
func (d *DAG) EdgeCount() int { return len(d.weights) }

// Children returns the downwind neighbors of v. The slice must not be
// modified.
func (d *DAG) Children(v int) []int { return d.outgoing[v] }

// Parents returns the upwind neighbors of v. The slice must not be
// modified.
func (d *DAG) Parents(v int) []int { return d.incoming[v] }

// OutDegree returns the number of outgoing edges of v.
func (d *DAG) OutDegree(v int) int { return len(d.outgoing[v]) }

// InDegree returns the number of incoming edges of v.
func (d *DAG) InDegree(v int) int { return len(d.incoming[v]) }

// Sources returns vertices without incoming edges in ascending order.
func (d *DAG) Sources() []int {
	var sources []int
	for v := range d.n {
		if len(d.incoming[v]) == 0 {
			sources = append(sources, v)
		}
	}
	return sources
}

// Sinks returns vertices without outgoing edges in ascending order.
func (d *DAG) Sinks() []int {
	var sinks []int
	for v := range d.n {
		if len(d.outgoing[v]) == 0 {
			sinks = append(sinks, v)
		}
	}
	return sinks
}

// Clone returns an independent copy of the graph.
func (d *DAG) Clone() *DAG {
	c := New(d.n)
	for _, e := range d.Edges() {
		_ = c.AddEdge(e)
	}
	return c
}

// Validate returns ErrGraphHasCycle if the graph has a directed cycle.
//
// Cycle detection runs in O(N+E) time using depth-first search.
func (d *DAG) Validate() error {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, d.n)
	var hasCycle bool

	var dfs func(v int)
	dfs = func(v int) {
		color[v] = gray
		for _, child := range d.outgoing[v] {
			switch color[child] {
			case white:
				dfs(child)
			case gray:
				hasCycle = true
			}
			if hasCycle {
				return
			}
		}
		color[v] = black
	}

	for v := range d.n {
		if color[v] == white {
			dfs(v)
			if hasCycle {
				return ErrGraphHasCycle
			}
		}
	}
	return nil
}

// TopologicalSort returns the vertices ordered so that every edge points
// forward. Among ready vertices the smallest index is emitted first.
// Returns ErrGraphHasCycle if some vertex can never become ready.
func (d *DAG) TopologicalSort() ([]int, error) {
	inDegree := make([]int, d.n)
	ready := &intHeap{}
	for v := range d.n {
		inDegree[v] = len(d.incoming[v])
		if inDegree[v] == 0 {
			heap.Push(ready, v)
		}
	}

	order := make([]int, 0, d.n)
	for ready.Len() > 0 {
		v := heap.Pop(ready).(int)
		order = append(order, v)
		for _, child := range d.outgoing[v] {
			inDegree[child]--
			if inDegree[child] == 0 {
				heap.Push(ready, child)
			}
		}
	}

	if len(order) != d.n {
		return nil, ErrGraphHasCycle
	}
	return order, nil
}

// PosMap maps each vertex of an ordering to its position.
func PosMap(order []int) []int {
	pos := make([]int, len(order))
	for i, v := range order {
		pos[v] = i
	}
	return pos
}

type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
