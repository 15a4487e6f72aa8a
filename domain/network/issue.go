package network

// IssueType classifies a structural anomaly.
type IssueType string

const (
	IssueOrphan   IssueType = "orphan"
	IssueSelfLoop IssueType = "self-loop"
	IssueCycle    IssueType = "cycle"
)

// Issue is a diagnostic record. Issues never abort a build.
type Issue struct {
	NodeID          string    `json:"nodeId"`
	NodeName        string    `json:"nodeName"`
	Type            IssueType `json:"type"`
	InvalidParentID string    `json:"invalidParentId,omitempty"`
	CycleMembers    []string  `json:"cycleMembers,omitempty"`
}

func newIssue(n *Node, t IssueType) Issue {
	return Issue{
		NodeID:          n.ID,
		NodeName:        n.DisplayName,
		Type:            t,
		InvalidParentID: n.ParentKey(),
	}
}

var issueRank = map[IssueType]int{
	IssueOrphan:   0,
	IssueSelfLoop: 1,
	IssueCycle:    2,
}

func issueLess(a, b Issue) bool {
	if a.Type != b.Type {
		return issueRank[a.Type] < issueRank[b.Type]
	}
	if a.NodeName != b.NodeName {
		return a.NodeName < b.NodeName
	}
	return a.NodeID < b.NodeID
}

// Stats aggregates counts over a forest.
type Stats struct {
	TotalAgents      int          `json:"totalAgents"`
	AgentsByRole     map[Role]int `json:"agentsByRole"`
	TotalDirectLeads int          `json:"totalDirectLeads"`
	RootCount        int          `json:"rootCount"`
	OrphanCount      int          `json:"orphanCount"`
	SelfLoopCount    int          `json:"selfLoopCount"`
	// CycleCount includes self-loops.
	CycleCount int `json:"cycleCount"`
}

// HasIssues reports whether any structural anomaly was found.
func (s Stats) HasIssues() bool {
	return s.OrphanCount > 0 || s.CycleCount > 0
}
