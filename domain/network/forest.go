package network

import (
	"fmt"
	"sort"
)

// Forest is the validated, aggregated view of the network.
type Forest struct {
	Roots    []*Node          `json:"roots"`
	AllNodes map[string]*Node `json:"allNodes"`
	Issues   []Issue          `json:"issues"`
	Stats    Stats            `json:"stats"`
}

// Assemble runs the full pipeline over one snapshot: ingest, build,
// validate, break cycles, aggregate and compute stats.
//
// Each cycle is broken at its representative: the node is detached from its
// parent's children and promoted to root, keeping IsInCycle set. After this
// every active node appears exactly once in the forest.
func Assemble(agents []AgentRecord, leads []Lead) (*Forest, error) {
	g := NewGraph(agents, leads)
	built := BuildTree(g)
	validated := Validate(g)

	roots := built.Roots
	for _, c := range validated.Cycles {
		rep := c.Representative
		if parent := g.parentOf(rep); parent != nil {
			parent.removeChild(rep.ID)
			rep.InvalidParentID = parent.ID
		}
		roots = append(roots, rep)
	}
	sortNodes(roots)

	visited, err := Aggregate(roots)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate metrics: %w", err)
	}
	if visited != g.Len() {
		return nil, fmt.Errorf("forest covers %d of %d nodes: %w", visited, g.Len(), ErrUnresolvedCycle)
	}

	issues := append(built.Issues, validated.Issues...)
	sort.SliceStable(issues, func(i, j int) bool {
		return issueLess(issues[i], issues[j])
	})

	forest := &Forest{
		Roots:    roots,
		AllNodes: g.nodes,
		Issues:   issues,
	}
	if forest.Roots == nil {
		forest.Roots = []*Node{}
	}
	if forest.Issues == nil {
		forest.Issues = []Issue{}
	}
	forest.Stats = computeStats(g, forest.Roots, forest.Issues)
	return forest, nil
}

func computeStats(g *Graph, roots []*Node, issues []Issue) Stats {
	stats := Stats{
		TotalAgents:  g.Len(),
		AgentsByRole: make(map[Role]int),
		RootCount:    len(roots),
	}
	for _, n := range g.nodes {
		stats.AgentsByRole[n.Role]++
		stats.TotalDirectLeads += n.DirectLeadCount
	}
	for _, issue := range issues {
		switch issue.Type {
		case IssueOrphan:
			stats.OrphanCount++
		case IssueSelfLoop:
			stats.SelfLoopCount++
			stats.CycleCount++
		case IssueCycle:
			stats.CycleCount++
		}
	}
	return stats
}

// Node looks up a node by id.
func (f *Forest) Node(id string) (*Node, bool) {
	n, ok := f.AllNodes[id]
	return n, ok
}

// Walk visits the forest depth-first in display order.
func (f *Forest) Walk(fn func(n *Node, depth int)) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		fn(n, depth)
		for _, child := range n.Children {
			visit(child, depth+1)
		}
	}
	for _, root := range f.Roots {
		visit(root, 0)
	}
}

// OrphanIDs returns the ids of nodes whose parent could not be resolved.
func (f *Forest) OrphanIDs() []string {
	var ids []string
	for _, issue := range f.Issues {
		if issue.Type == IssueOrphan {
			ids = append(ids, issue.NodeID)
		}
	}
	return ids
}
