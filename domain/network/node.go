package network

// Node is the computed view of one active agent inside a single Graph.
// Nodes are owned by the Graph that created them and are never shared
// between builds.
type Node struct {
	AgentRecord

	DirectLeadCount    int     `json:"directLeadCount"`
	TotalLeadCount     int     `json:"totalLeadCount"`
	TotalDownlineCount int     `json:"totalDownlineCount"`
	Children           []*Node `json:"children"`

	IsOrphan        bool   `json:"isOrphan"`
	HasSelfLoop     bool   `json:"hasSelfLoop"`
	IsInCycle       bool   `json:"isInCycle"`
	InvalidParentID string `json:"invalidParentId,omitempty"`
}

func newNode(record AgentRecord) *Node {
	return &Node{AgentRecord: record.Normalized()}
}

// IsRootCandidate reports whether the node has no usable parent pointer.
func (n *Node) IsRootCandidate() bool {
	return n.ParentKey() == ""
}

// less orders nodes by display name, then id.
func less(a, b *Node) bool {
	if a.DisplayName != b.DisplayName {
		return a.DisplayName < b.DisplayName
	}
	return a.ID < b.ID
}

func (n *Node) removeChild(id string) bool {
	for i, child := range n.Children {
		if child.ID == id {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
	}
	return false
}
