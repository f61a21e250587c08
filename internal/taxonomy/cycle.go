package taxonomy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/chronicle/internal/ir"
)

// Cycle is a set of concepts that are transitively their own parents.
//
// A well-formed taxonomy is acyclic. Cycles are reported rather than
// rejected because they are data errors in the source terminology.
type Cycle struct {
	Path    []ir.Nid // child -> parent -> ... -> child
	Message string
}

// Cycles finds every is-a cycle in g using Tarjan's strongly connected
// components algorithm over child -> parent edges. Nodes are visited in
// nid order, so the result is deterministic.
func (g *Graph) Cycles() []Cycle {
	nodes := make([]ir.Nid, 0, len(g.parents))
	for child := range g.parents {
		nodes = append(nodes, child)
	}
	slices.Sort(nodes)

	var (
		index   = 0
		stack   []ir.Nid
		indices = make(map[ir.Nid]int)
		lowlink = make(map[ir.Nid]int)
		onStack = make(map[ir.Nid]bool)
		out     []Cycle
	)

	var strongConnect func(ir.Nid)
	strongConnect = func(v ir.Nid) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.parents[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var scc []ir.Nid
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		if len(scc) > 1 || slices.Contains(g.parents[v], v) {
			out = append(out, g.cycleOf(scc))
		}
	}

	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	slices.SortFunc(out, func(a, b Cycle) int { return int(a.Path[0]) - int(b.Path[0]) })
	return out
}

// cycleOf walks parent edges inside scc from its smallest nid until the
// walk returns to the start.
func (g *Graph) cycleOf(scc []ir.Nid) Cycle {
	slices.Sort(scc)
	start := scc[0]
	path := []ir.Nid{start}
	visited := map[ir.Nid]bool{}
	for cur := start; ; {
		visited[cur] = true
		var next ir.Nid
		for _, p := range g.parents[cur] {
			if slices.Contains(scc, p) && (!visited[p] || p == start) {
				next = p
				break
			}
		}
		if !next.IsSet() {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		cur = next
	}

	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = n.String()
	}
	return Cycle{Path: path, Message: fmt.Sprintf("is-a cycle: %s", strings.Join(parts, " -> "))}
}
