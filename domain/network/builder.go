package network

import "sort"

// BuildResult is the raw output of BuildTree before cycle handling.
type BuildResult struct {
	Roots  []*Node
	Issues []Issue
}

// BuildTree classifies every node's parent pointer and links children to
// parents. Each node is classified on its own:
//
//   - no parent: root
//   - parent is itself: root, flagged HasSelfLoop
//   - parent not in the graph: root, flagged IsOrphan
//   - otherwise: child of its parent
//
// Nodes caught in a cycle of valid pointers never become roots here; that is
// left to Validate. Roots and every children list are sorted by display name
// then id.
func BuildTree(g *Graph) BuildResult {
	var result BuildResult

	for _, n := range g.nodes {
		n.Children = nil
		n.IsOrphan = false
		n.HasSelfLoop = false
		n.InvalidParentID = ""
	}

	for _, id := range g.order {
		n := g.nodes[id]
		pid := n.ParentKey()

		switch {
		case pid == "":
			result.Roots = append(result.Roots, n)
		case pid == n.ID:
			n.HasSelfLoop = true
			n.InvalidParentID = pid
			result.Roots = append(result.Roots, n)
			result.Issues = append(result.Issues, newIssue(n, IssueSelfLoop))
		default:
			parent, ok := g.nodes[pid]
			if !ok {
				n.IsOrphan = true
				n.InvalidParentID = pid
				result.Roots = append(result.Roots, n)
				result.Issues = append(result.Issues, newIssue(n, IssueOrphan))
				continue
			}
			parent.Children = append(parent.Children, n)
		}
	}

	sortNodes(result.Roots)
	for _, n := range g.nodes {
		sortNodes(n.Children)
	}
	return result
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return less(nodes[i], nodes[j])
	})
}
