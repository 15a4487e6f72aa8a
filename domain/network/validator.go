package network

import "sort"

// Cycle is one loop of parent pointers found by Validate.
type Cycle struct {
	// Representative is the member with the smallest display name, then id.
	Representative *Node
	// Members starts at the representative and follows parent pointers.
	Members []*Node
}

// MemberIDs returns the ids of the cycle members in walk order.
func (c Cycle) MemberIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	return ids
}

// ValidationResult holds every multi-node cycle in the graph.
type ValidationResult struct {
	Cycles []Cycle
	Issues []Issue
}

const (
	unvisited = iota
	onStack
	done
)

// Validate runs a depth-first search over parent pointers from every
// unvisited node of the graph, not only from the roots produced by
// BuildTree. A pointer back into the current path closes a cycle; every
// node on it is flagged IsInCycle and one issue is emitted per cycle.
// Self-loops are left to BuildTree and are not reported again.
//
// Each node has at most one parent, so the search from a start node is a
// single path and the whole scan is linear in the number of nodes.
func Validate(g *Graph) ValidationResult {
	var result ValidationResult
	state := make(map[string]int, len(g.nodes))

	for _, n := range g.nodes {
		n.IsInCycle = false
	}

	for _, id := range g.order {
		if state[id] != unvisited {
			continue
		}

		var path []*Node
		cur := g.nodes[id]
		for cur != nil && state[cur.ID] == unvisited {
			state[cur.ID] = onStack
			path = append(path, cur)
			cur = g.parentOf(cur)
		}

		if cur != nil && state[cur.ID] == onStack {
			result.Cycles = append(result.Cycles, newCycle(g, path, cur))
		}

		for _, n := range path {
			state[n.ID] = done
		}
	}

	sort.Slice(result.Cycles, func(i, j int) bool {
		return less(result.Cycles[i].Representative, result.Cycles[j].Representative)
	})
	for _, c := range result.Cycles {
		issue := newIssue(c.Representative, IssueCycle)
		issue.CycleMembers = c.MemberIDs()
		result.Issues = append(result.Issues, issue)
	}
	return result
}

// newCycle collects the tail of path starting at entry, the node whose
// pointer closed the loop.
func newCycle(g *Graph, path []*Node, entry *Node) Cycle {
	start := 0
	for i, n := range path {
		if n == entry {
			start = i
			break
		}
	}

	rep := path[start]
	for _, n := range path[start:] {
		n.IsInCycle = true
		if less(n, rep) {
			rep = n
		}
	}

	members := []*Node{rep}
	for p := g.parentOf(rep); p != nil && p != rep; p = g.parentOf(p) {
		members = append(members, p)
	}
	return Cycle{Representative: rep, Members: members}
}
