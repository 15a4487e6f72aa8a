package decorators

import (
	"context"
	"time"

	"referralnet-backend/application/ports"
	"referralnet-backend/domain/network"
	"referralnet-backend/pkg/observability"

	"go.opentelemetry.io/otel/attribute"
)

// StoreObserver receives one measurement per store call
type StoreObserver interface {
	ObserveStore(backend, operation string, duration time.Duration, err error)
}

type instrument struct {
	backend  string
	observer StoreObserver
	timeout  time.Duration
}

// track opens a span, bounds the call by the store timeout and returns the
// function that closes both and records the call
func (i instrument) track(ctx context.Context, operation string) (context.Context, func(error)) {
	cancel := context.CancelFunc(func() {})
	if i.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
	}
	ctx, span := observability.StartSpan(ctx, "store."+operation,
		attribute.String("store.backend", i.backend),
	)
	start := time.Now()
	return ctx, func(err error) {
		cancel()
		if i.observer != nil {
			i.observer.ObserveStore(i.backend, operation, time.Since(start), err)
		}
		observability.EndSpan(span, err)
	}
}

// InstrumentedAgentRepository measures every call to an agent repository
type InstrumentedAgentRepository struct {
	next ports.AgentRepository
	instrument
}

// NewInstrumentedAgentRepository wraps next
func NewInstrumentedAgentRepository(next ports.AgentRepository, backend string, observer StoreObserver) *InstrumentedAgentRepository {
	return &InstrumentedAgentRepository{next: next, instrument: instrument{backend: backend, observer: observer}}
}

// WithTimeout bounds every call by d; zero leaves calls unbounded
func (r *InstrumentedAgentRepository) WithTimeout(d time.Duration) *InstrumentedAgentRepository {
	r.timeout = d
	return r
}

func (r *InstrumentedAgentRepository) ListAgents(ctx context.Context) (agents []network.AgentRecord, err error) {
	ctx, done := r.track(ctx, "ListAgents")
	defer func() { done(err) }()
	return r.next.ListAgents(ctx)
}

func (r *InstrumentedAgentRepository) GetAgent(ctx context.Context, id string) (agent *network.AgentRecord, err error) {
	ctx, done := r.track(ctx, "GetAgent")
	defer func() { done(err) }()
	return r.next.GetAgent(ctx, id)
}

func (r *InstrumentedAgentRepository) UpdateParent(ctx context.Context, agentID string, parentID *string) (err error) {
	ctx, done := r.track(ctx, "UpdateParent")
	defer func() { done(err) }()
	return r.next.UpdateParent(ctx, agentID, parentID)
}

func (r *InstrumentedAgentRepository) ClearParents(ctx context.Context, agentIDs []string) (result ports.BatchResult, err error) {
	ctx, done := r.track(ctx, "ClearParents")
	defer func() { done(err) }()
	return r.next.ClearParents(ctx, agentIDs)
}

func (r *InstrumentedAgentRepository) NormalizeEmptyParents(ctx context.Context) (result ports.BatchResult, err error) {
	ctx, done := r.track(ctx, "NormalizeEmptyParents")
	defer func() { done(err) }()
	return r.next.NormalizeEmptyParents(ctx)
}

// InstrumentedLeadRepository measures every call to a lead repository
type InstrumentedLeadRepository struct {
	next ports.LeadRepository
	instrument
}

// NewInstrumentedLeadRepository wraps next
func NewInstrumentedLeadRepository(next ports.LeadRepository, backend string, observer StoreObserver) *InstrumentedLeadRepository {
	return &InstrumentedLeadRepository{next: next, instrument: instrument{backend: backend, observer: observer}}
}

// WithTimeout bounds every call by d; zero leaves calls unbounded
func (r *InstrumentedLeadRepository) WithTimeout(d time.Duration) *InstrumentedLeadRepository {
	r.timeout = d
	return r
}

func (r *InstrumentedLeadRepository) ListLeads(ctx context.Context) (leads []network.Lead, err error) {
	ctx, done := r.track(ctx, "ListLeads")
	defer func() { done(err) }()
	return r.next.ListLeads(ctx)
}

func (r *InstrumentedLeadRepository) ListUnassignedLeads(ctx context.Context, region string) (leads []network.Lead, err error) {
	ctx, done := r.track(ctx, "ListUnassignedLeads")
	defer func() { done(err) }()
	return r.next.ListUnassignedLeads(ctx, region)
}

func (r *InstrumentedLeadRepository) GetLead(ctx context.Context, id string) (lead *network.Lead, err error) {
	ctx, done := r.track(ctx, "GetLead")
	defer func() { done(err) }()
	return r.next.GetLead(ctx, id)
}

func (r *InstrumentedLeadRepository) AssignLead(ctx context.Context, leadID, agentID string) (err error) {
	ctx, done := r.track(ctx, "AssignLead")
	defer func() { done(err) }()
	return r.next.AssignLead(ctx, leadID, agentID)
}

func (r *InstrumentedLeadRepository) AssignUnassignedLead(ctx context.Context, leadID, agentID string) (err error) {
	ctx, done := r.track(ctx, "AssignUnassignedLead")
	defer func() { done(err) }()
	return r.next.AssignUnassignedLead(ctx, leadID, agentID)
}

func (r *InstrumentedLeadRepository) SetLeadVisibility(ctx context.Context, leadID string, agentIDs []string) (err error) {
	ctx, done := r.track(ctx, "SetLeadVisibility")
	defer func() { done(err) }()
	return r.next.SetLeadVisibility(ctx, leadID, agentIDs)
}

var (
	_ ports.AgentRepository = (*InstrumentedAgentRepository)(nil)
	_ ports.LeadRepository  = (*InstrumentedLeadRepository)(nil)
)
