package events

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetEventID() string
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventID     string    `json:"event_id"`
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetEventID() string      { return e.EventID }
func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

func newBase(aggregateID, eventType string, timestamp time.Time) BaseEvent {
	return BaseEvent{
		EventID:     uuid.New().String(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Timestamp:   timestamp,
		Version:     1,
	}
}

// NetworkAggregateID identifies the referral network as a whole.
const NetworkAggregateID = "network"

// Event types
const (
	TypeAgentReparented      = "agent.reparented"
	TypeOrphanParentsCleared = "network.orphan_parents_cleared"
	TypeParentsNormalized    = "network.parents_normalized"
	TypeLeadsAssigned        = "leads.assigned"
	TypeLeadAttributed       = "lead.attributed"
)

// AgentReparented is raised when an agent is attached to a new recruiter
type AgentReparented struct {
	BaseEvent
	AgentID     string  `json:"agent_id"`
	OldParentID *string `json:"old_parent_id,omitempty"`
	NewParentID *string `json:"new_parent_id,omitempty"`
	ActorID     string  `json:"actor_id"`
}

// NewAgentReparented creates an AgentReparented event
func NewAgentReparented(agentID string, oldParent, newParent *string, actorID string, timestamp time.Time) AgentReparented {
	return AgentReparented{
		BaseEvent:   newBase(agentID, TypeAgentReparented, timestamp),
		AgentID:     agentID,
		OldParentID: oldParent,
		NewParentID: newParent,
		ActorID:     actorID,
	}
}

// OrphanParentsCleared is raised after an orphan repair batch
type OrphanParentsCleared struct {
	BaseEvent
	AgentIDs []string `json:"agent_ids"`
	Changed  int      `json:"changed"`
	Failed   int      `json:"failed"`
	ActorID  string   `json:"actor_id"`
}

// NewOrphanParentsCleared creates an OrphanParentsCleared event
func NewOrphanParentsCleared(agentIDs []string, changed, failed int, actorID string, timestamp time.Time) OrphanParentsCleared {
	return OrphanParentsCleared{
		BaseEvent: newBase(NetworkAggregateID, TypeOrphanParentsCleared, timestamp),
		AgentIDs:  agentIDs,
		Changed:   changed,
		Failed:    failed,
		ActorID:   actorID,
	}
}

// ParentsNormalized is raised after blank parent ids were rewritten to null
type ParentsNormalized struct {
	BaseEvent
	Changed int    `json:"changed"`
	Failed  int    `json:"failed"`
	ActorID string `json:"actor_id"`
}

// NewParentsNormalized creates a ParentsNormalized event
func NewParentsNormalized(changed, failed int, actorID string, timestamp time.Time) ParentsNormalized {
	return ParentsNormalized{
		BaseEvent: newBase(NetworkAggregateID, TypeParentsNormalized, timestamp),
		Changed:   changed,
		Failed:    failed,
		ActorID:   actorID,
	}
}

// LeadsAssigned is raised after a round-robin assignment run
type LeadsAssigned struct {
	BaseEvent
	Region        string         `json:"region,omitempty"`
	AssignedCount int            `json:"assigned_count"`
	FailedCount   int            `json:"failed_count"`
	PerAgent      map[string]int `json:"per_agent"`
	ActorID       string         `json:"actor_id"`
}

// NewLeadsAssigned creates a LeadsAssigned event
func NewLeadsAssigned(region string, assigned, failed int, perAgent map[string]int, actorID string, timestamp time.Time) LeadsAssigned {
	return LeadsAssigned{
		BaseEvent:     newBase(NetworkAggregateID, TypeLeadsAssigned, timestamp),
		Region:        region,
		AssignedCount: assigned,
		FailedCount:   failed,
		PerAgent:      perAgent,
		ActorID:       actorID,
	}
}

// LeadAttributed is raised when a lead is attributed to an agent and
// made visible to the agent's upline
type LeadAttributed struct {
	BaseEvent
	LeadID    string   `json:"lead_id"`
	AgentID   string   `json:"agent_id"`
	VisibleTo []string `json:"visible_to"`
	Truncated bool     `json:"truncated"`
}

// NewLeadAttributed creates a LeadAttributed event
func NewLeadAttributed(leadID, agentID string, visibleTo []string, truncated bool, timestamp time.Time) LeadAttributed {
	return LeadAttributed{
		BaseEvent: newBase(leadID, TypeLeadAttributed, timestamp),
		LeadID:    leadID,
		AgentID:   agentID,
		VisibleTo: visibleTo,
		Truncated: truncated,
	}
}
