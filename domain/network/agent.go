package network

import (
	"strings"
	"time"
)

// Role is the closed set of agent roles.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleTeamLead Role = "team_lead"
	RoleAdmin    Role = "admin"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleAgent, RoleTeamLead, RoleAdmin:
		return true
	}
	return false
}

// AgentRecord is the persisted shape of a recruiter.
type AgentRecord struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Role         Role      `json:"role"`
	Region       string    `json:"region"`
	IsActive     bool      `json:"isActive"`
	ParentID     *string   `json:"parentId,omitempty"`
	CanRecruit   bool      `json:"canRecruit"`
	ReferralCode *string   `json:"referralCode,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ParentKey returns the normalized parent id, or "" when the record has no parent.
func (r AgentRecord) ParentKey() string {
	if r.ParentID == nil {
		return ""
	}
	return strings.TrimSpace(*r.ParentID)
}

// HasBlankParent reports whether the parent is set to an empty or whitespace string.
// Such records are treated as roots but still need normalizing in the store.
func (r AgentRecord) HasBlankParent() bool {
	return r.ParentID != nil && strings.TrimSpace(*r.ParentID) == ""
}

// NormalizeParentID maps empty and whitespace-only ids to nil.
func NormalizeParentID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// Normalized returns a copy of the record with its parent id normalized.
func (r AgentRecord) Normalized() AgentRecord {
	r.ParentID = NormalizeParentID(r.ParentID)
	return r
}
