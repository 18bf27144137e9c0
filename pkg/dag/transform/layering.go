package transform

import "github.com/matzehuels/sweeptower/pkg/dag"

// AssignLevels computes sweep-plane levels for g.
//
// Each vertex is placed one level below the deepest of its parents, so
// sources sit at level 0 and every edge goes to a strictly larger level.
// width is the largest number of vertices sharing one level.
//
// # Cycles
//
// AssignLevels assumes the graph is acyclic. Vertices on a cycle never
// reach zero in-degree and keep level 0. Run [BreakCycles] first.
//
// # Performance
//
// Time complexity is O(V + E); space is O(V).
func AssignLevels(g *dag.DAG) (levels []int, width int) {
	n := g.NodeCount()
	inDegree := make([]int, n)
	levels = make([]int, n)
	queue := make([]int, 0, n)

	for v := range n {
		inDegree[v] = g.InDegree(v)
		if inDegree[v] == 0 {
			queue = append(queue, v)
		}
	}

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for _, child := range g.Children(curr) {
			if level := levels[curr] + 1; level > levels[child] {
				levels[child] = level
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	counts := make(map[int]int)
	for _, l := range levels {
		counts[l]++
		width = max(width, counts[l])
	}
	return levels, width
}
