package network

import "strings"

// Graph is the arena of nodes for a single build, keyed by id.
// Edges are implicit: each node points at its parent by id, and children
// lists are filled in by BuildTree.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// NewGraph ingests a snapshot of agent records and leads.
// Inactive agents and records without an id are dropped. When the same id
// appears twice, the first record wins. Direct lead counts are computed here.
func NewGraph(agents []AgentRecord, leads []Lead) *Graph {
	g := &Graph{
		nodes: make(map[string]*Node, len(agents)),
		order: make([]string, 0, len(agents)),
	}

	for _, record := range agents {
		id := strings.TrimSpace(record.ID)
		if id == "" || !record.IsActive {
			continue
		}
		if _, exists := g.nodes[id]; exists {
			continue
		}
		record.ID = id
		g.nodes[id] = newNode(record)
		g.order = append(g.order, id)
	}

	g.countDirectLeads(leads)
	return g
}

func (g *Graph) countDirectLeads(leads []Lead) {
	byRefCode := make(map[string]*Node)
	for _, id := range g.order {
		n := g.nodes[id]
		if n.ReferralCode == nil {
			continue
		}
		code := strings.TrimSpace(*n.ReferralCode)
		if code == "" {
			continue
		}
		if _, taken := byRefCode[code]; !taken {
			byRefCode[code] = n
		}
	}

	for _, lead := range leads {
		if owner, ok := g.nodes[lead.AssignedTo()]; ok {
			owner.DirectLeadCount++
			continue
		}
		if owner, ok := byRefCode[lead.refCode()]; ok && lead.refCode() != "" {
			owner.DirectLeadCount++
		}
	}
}

// Len returns the number of active nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in ingestion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// parentOf resolves the parent pointer of n inside the graph. Self-loops
// and dangling pointers resolve to nil.
func (g *Graph) parentOf(n *Node) *Node {
	pid := n.ParentKey()
	if pid == "" || pid == n.ID {
		return nil
	}
	return g.nodes[pid]
}

// IsAncestor reports whether ancestorID is reachable from id by following
// parent pointers. The walk stops on any revisit, so it terminates on
// corrupted graphs.
func (g *Graph) IsAncestor(ancestorID, id string) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	seen := map[string]bool{n.ID: true}
	for p := g.parentOf(n); p != nil; p = g.parentOf(p) {
		if p.ID == ancestorID {
			return true
		}
		if seen[p.ID] {
			return false
		}
		seen[p.ID] = true
	}
	return false
}
