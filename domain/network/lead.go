package network

import (
	"strings"
	"time"
)

// Lead is a prospect record. The engine only reads leads, except for the
// assignment and attribution operations which set AssignedAgentID and VisibleTo.
type Lead struct {
	ID              string    `json:"id"`
	AssignedAgentID *string   `json:"assignedAgentId,omitempty"`
	RefCode         *string   `json:"refCode,omitempty"`
	Region          string    `json:"region"`
	VisibleTo       []string  `json:"visibleTo,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// AssignedTo returns the assigned agent id, or "" when unassigned.
func (l Lead) AssignedTo() string {
	if l.AssignedAgentID == nil {
		return ""
	}
	return strings.TrimSpace(*l.AssignedAgentID)
}

// IsAssigned reports whether the lead already has an owner.
func (l Lead) IsAssigned() bool {
	return l.AssignedTo() != ""
}

func (l Lead) refCode() string {
	if l.RefCode == nil {
		return ""
	}
	return strings.TrimSpace(*l.RefCode)
}
