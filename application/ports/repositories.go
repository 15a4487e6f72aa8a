package ports

import (
	"context"
	"time"

	"referralnet-backend/domain/events"
	"referralnet-backend/domain/network"
)

// AgentRepository defines the agent side of the node store.
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type AgentRepository interface {
	// ListAgents returns every agent record, active or not
	ListAgents(ctx context.Context) ([]network.AgentRecord, error)

	// GetAgent is a point lookup; a missing id wraps network.ErrAgentNotFound
	GetAgent(ctx context.Context, id string) (*network.AgentRecord, error)

	// UpdateParent sets one agent's parent; nil clears it
	UpdateParent(ctx context.Context, agentID string, parentID *string) error

	// ClearParents sets the parent of every listed agent to null.
	// Clearing an already-null parent is a no-op.
	ClearParents(ctx context.Context, agentIDs []string) (BatchResult, error)

	// NormalizeEmptyParents rewrites blank parent ids to null
	NormalizeEmptyParents(ctx context.Context) (BatchResult, error)
}

// LeadRepository defines the lead side of the node store
type LeadRepository interface {
	// ListLeads returns every lead
	ListLeads(ctx context.Context) ([]network.Lead, error)

	// ListUnassignedLeads returns leads without an owner; an empty region means all regions
	ListUnassignedLeads(ctx context.Context, region string) ([]network.Lead, error)

	// GetLead is a point lookup; a missing id wraps network.ErrLeadNotFound
	GetLead(ctx context.Context, id string) (*network.Lead, error)

	// AssignLead sets the lead owner, replacing any existing one
	AssignLead(ctx context.Context, leadID, agentID string) error

	// AssignUnassignedLead sets the owner only while the lead has none; an
	// owned lead wraps network.ErrLeadAlreadyAssigned
	AssignUnassignedLead(ctx context.Context, leadID, agentID string) error

	// SetLeadVisibility stores the upline the lead is visible to
	SetLeadVisibility(ctx context.Context, leadID string, agentIDs []string) error
}

// BatchFailure is one record a batch could not change
type BatchFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult reports what a batch write actually did
type BatchResult struct {
	Requested int            `json:"requested"`
	Changed   int            `json:"changed"`
	Failures  []BatchFailure `json:"failures"`
}

// Merge folds other into r
func (r *BatchResult) Merge(other BatchResult) {
	r.Requested += other.Requested
	r.Changed += other.Changed
	r.Failures = append(r.Failures, other.Failures...)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// Cache defines the interface for caching
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value in cache with TTL in seconds
	Set(ctx context.Context, key string, value interface{}, ttl int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values from cache
	Clear(ctx context.Context) error
}

// NetworkMetrics receives engine-level measurements
type NetworkMetrics interface {
	ObserveForest(duration time.Duration, stats network.Stats)
	ObserveAssignment(assigned, failed int)
	ObserveCache(hit bool)
}

// IntegrityPublisher pushes integrity counts to an external monitor
type IntegrityPublisher interface {
	PublishIntegrity(ctx context.Context, stats network.Stats) error
}

// CommandMetrics records command latency and outcome
type CommandMetrics interface {
	RecordCommandExecution(ctx context.Context, commandName string, duration time.Duration, err error)
}
