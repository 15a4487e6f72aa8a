package handlers

import (
	"referralnet-backend/domain/network"
)

// ReparentRequest is the body of PUT /network/agents/{agentID}/parent.
// A null or blank parentId makes the agent a root.
type ReparentRequest struct {
	ParentID *string `json:"parentId" validate:"omitempty,max=128"`
}

// RepairOrphansRequest is the optional body of POST /network/repairs/orphans
type RepairOrphansRequest struct {
	IncludeSelfLoops bool `json:"includeSelfLoops"`
}

// AttributeLeadRequest is the body of POST /leads/{leadID}/attribution
type AttributeLeadRequest struct {
	AgentID string `json:"agentId" validate:"required,max=128"`
}

// AssignLeadsRequest is the body of POST /leads/assignments
type AssignLeadsRequest struct {
	Region  string   `json:"region" validate:"omitempty,max=64"`
	LeadIDs []string `json:"leadIds" validate:"omitempty,max=1000,dive,required,max=128"`
	DryRun  bool     `json:"dryRun"`
}

// NodeView is the agent part of a forest node
type NodeView struct {
	ID                 string       `json:"id"`
	DisplayName        string       `json:"displayName"`
	Role               network.Role `json:"role"`
	Region             string       `json:"region"`
	ParentID           *string      `json:"parentId"`
	CanRecruit         bool         `json:"canRecruit"`
	DirectLeadCount    int          `json:"directLeadCount"`
	TotalLeadCount     int          `json:"totalLeadCount"`
	TotalDownlineCount int          `json:"totalDownlineCount"`
	IsOrphan           bool         `json:"isOrphan"`
	HasSelfLoop        bool         `json:"hasSelfLoop"`
	IsInCycle          bool         `json:"isInCycle"`
	InvalidParentID    string       `json:"invalidParentId,omitempty"`
}

// TreeNode is a node with its subtree, used under roots
type TreeNode struct {
	NodeView
	Children []TreeNode `json:"children"`
}

// FlatNode is a node with child ids only, used under allNodes so each
// subtree is serialized once
type FlatNode struct {
	NodeView
	ChildIDs []string `json:"childIds"`
}

// ForestResponse is the body of GET /network/forest
type ForestResponse struct {
	Roots    []TreeNode          `json:"roots"`
	AllNodes map[string]FlatNode `json:"allNodes"`
	Issues   []network.Issue     `json:"issues"`
	Stats    network.Stats       `json:"stats"`
}

func newNodeView(n *network.Node) NodeView {
	return NodeView{
		ID:                 n.ID,
		DisplayName:        n.DisplayName,
		Role:               n.Role,
		Region:             n.Region,
		ParentID:           n.ParentID,
		CanRecruit:         n.CanRecruit,
		DirectLeadCount:    n.DirectLeadCount,
		TotalLeadCount:     n.TotalLeadCount,
		TotalDownlineCount: n.TotalDownlineCount,
		IsOrphan:           n.IsOrphan,
		HasSelfLoop:        n.HasSelfLoop,
		IsInCycle:          n.IsInCycle,
		InvalidParentID:    n.InvalidParentID,
	}
}

func newTreeNode(n *network.Node) TreeNode {
	children := make([]TreeNode, 0, len(n.Children))
	for _, child := range n.Children {
		children = append(children, newTreeNode(child))
	}
	return TreeNode{NodeView: newNodeView(n), Children: children}
}

// NewForestResponse flattens a forest for the wire
func NewForestResponse(forest *network.Forest) ForestResponse {
	resp := ForestResponse{
		Roots:    make([]TreeNode, 0, len(forest.Roots)),
		AllNodes: make(map[string]FlatNode, len(forest.AllNodes)),
		Issues:   forest.Issues,
		Stats:    forest.Stats,
	}
	for _, root := range forest.Roots {
		resp.Roots = append(resp.Roots, newTreeNode(root))
	}
	for id, n := range forest.AllNodes {
		childIDs := make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			childIDs = append(childIDs, child.ID)
		}
		resp.AllNodes[id] = FlatNode{NodeView: newNodeView(n), ChildIDs: childIDs}
	}
	return resp
}
