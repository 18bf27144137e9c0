package transform

import (
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/matzehuels/sweeptower/pkg/dag"
)

// BreakCycles removes edges until g is acyclic and returns the removed
// edges sorted by (From, To). Self-loops go first; afterwards each round
// drops the minimum-weight edge of every non-trivial strongly connected
// component. The union of the returned edges and the edges left in g is the
// original edge set.
func BreakCycles(g *dag.DAG) []dag.Edge {
	var removed []dag.Edge

	for v := range g.NodeCount() {
		if w, ok := g.Weight(v, v); ok {
			g.RemoveEdge(v, v)
			removed = append(removed, dag.Edge{From: v, To: v, Weight: w})
		}
	}

	for {
		progress := false
		for _, comp := range StronglyConnected(g) {
			if len(comp) < 2 {
				continue
			}
			e, ok := lightestEdge(g, comp)
			if !ok {
				continue
			}
			g.RemoveEdge(e.From, e.To)
			removed = append(removed, e)
			progress = true
		}
		if !progress {
			break
		}
	}

	slices.SortFunc(removed, dag.CompareEdges)
	return removed
}

// StronglyConnected returns the strongly connected components of g, each
// sorted ascending, ordered by their smallest vertex. Self-loops are
// ignored.
func StronglyConnected(g *dag.DAG) [][]int {
	dg := simple.NewDirectedGraph()
	for v := range g.NodeCount() {
		dg.AddNode(simple.Node(int64(v)))
	}
	for _, e := range g.Edges() {
		if e.From == e.To {
			continue
		}
		dg.SetEdge(dg.NewEdge(simple.Node(int64(e.From)), simple.Node(int64(e.To))))
	}

	var comps [][]int
	for _, nodes := range topo.TarjanSCC(dg) {
		comp := make([]int, len(nodes))
		for i, n := range nodes {
			comp[i] = int(n.ID())
		}
		slices.Sort(comp)
		comps = append(comps, comp)
	}
	slices.SortFunc(comps, func(a, b []int) int { return a[0] - b[0] })
	return comps
}

func lightestEdge(g *dag.DAG, comp []int) (dag.Edge, bool) {
	in := make(map[int]bool, len(comp))
	for _, v := range comp {
		in[v] = true
	}

	var best dag.Edge
	found := false
	for _, from := range comp {
		for _, to := range g.Children(from) {
			if !in[to] {
				continue
			}
			w, _ := g.Weight(from, to)
			e := dag.Edge{From: from, To: to, Weight: w}
			if !found || w < best.Weight || (w == best.Weight && dag.CompareEdges(e, best) < 0) {
				best, found = e, true
			}
		}
	}
	return best, found
}
