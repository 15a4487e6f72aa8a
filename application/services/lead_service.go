package services

import (
	"context"
	"fmt"
	"time"

	"referralnet-backend/application/ports"
	"referralnet-backend/domain/assignment"
	domainconfig "referralnet-backend/domain/config"
	"referralnet-backend/domain/events"
	"referralnet-backend/domain/network"
	"referralnet-backend/pkg/auth"
	"referralnet-backend/pkg/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Attribution is the outcome of attributing a lead to an agent.
type Attribution struct {
	LeadID  string         `json:"leadId"`
	AgentID string         `json:"agentId"`
	Upline  network.Upline `json:"upline"`
}

// AssignmentRequest selects the leads a round-robin run considers.
type AssignmentRequest struct {
	Region  string
	LeadIDs []string
	DryRun  bool
}

// AssignmentOutcome carries the plan and, unless it was a dry run, the
// result of executing it.
type AssignmentOutcome struct {
	DryRun bool               `json:"dryRun"`
	Plan   assignment.Plan    `json:"plan"`
	Result *assignment.Result `json:"result,omitempty"`
}

// LeadService handles lead attribution, upline lookups and round-robin assignment.
type LeadService struct {
	agents    ports.AgentRepository
	leads     ports.LeadRepository
	resolver  *network.UplineResolver
	network   *NetworkService
	publisher ports.EventPublisher
	metrics   ports.NetworkMetrics
	config    *domainconfig.DomainConfig
	logger    *zap.Logger
}

// NewLeadService creates a new lead service
func NewLeadService(
	agents ports.AgentRepository,
	leads ports.LeadRepository,
	networkService *NetworkService,
	publisher ports.EventPublisher,
	metrics ports.NetworkMetrics,
	config *domainconfig.DomainConfig,
	logger *zap.Logger,
) *LeadService {
	if config == nil {
		config = domainconfig.DefaultDomainConfig()
	}
	return &LeadService{
		agents:    agents,
		leads:     leads,
		resolver:  network.NewUplineResolver(agents, config.MaxUplineDepth),
		network:   networkService,
		publisher: publisher,
		metrics:   metrics,
		config:    config,
		logger:    logger,
	}
}

// ResolveUpline walks the live store from agentID. It never fails.
func (s *LeadService) ResolveUpline(ctx context.Context, agentID string) network.Upline {
	ctx, span := observability.StartSpan(ctx, "lead.resolve_upline", attribute.String("agent.id", agentID))
	defer span.End()

	upline := s.resolver.Resolve(ctx, agentID)
	span.SetAttributes(
		attribute.Int("upline.length", len(upline.Ancestors)),
		attribute.String("upline.stop_reason", string(upline.StopReason)),
	)
	if upline.Truncated {
		s.logger.Warn("Upline truncated",
			zap.String("agentID", agentID),
			zap.String("reason", string(upline.StopReason)),
			zap.Int("length", len(upline.Ancestors)),
		)
	}
	return upline
}

// AttributeLead assigns leadID to agentID and makes it visible to the
// agent's upline.
func (s *LeadService) AttributeLead(ctx context.Context, leadID, agentID string) (*Attribution, error) {
	if _, err := s.leads.GetLead(ctx, leadID); err != nil {
		return nil, err
	}
	agent, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !agent.IsActive {
		return nil, fmt.Errorf("agent %s: %w", agentID, network.ErrAgentInactive)
	}

	upline := s.resolver.ResolveFrom(ctx, *agent)

	if err := s.leads.AssignLead(ctx, leadID, agentID); err != nil {
		return nil, fmt.Errorf("failed to assign lead %s: %w", leadID, err)
	}
	if err := s.leads.SetLeadVisibility(ctx, leadID, upline.VisibleTo()); err != nil {
		return nil, fmt.Errorf("failed to set visibility of lead %s: %w", leadID, err)
	}
	if s.network != nil {
		s.network.Invalidate(ctx)
	}

	publishBestEffort(ctx, s.publisher, s.logger,
		events.NewLeadAttributed(leadID, agentID, upline.VisibleTo(), upline.Truncated, time.Now()))

	s.logger.Info("Lead attributed",
		zap.String("leadID", leadID),
		zap.String("agentID", agentID),
		zap.Int("uplineLength", len(upline.Ancestors)),
		zap.Bool("truncated", upline.Truncated),
	)
	return &Attribution{LeadID: leadID, AgentID: agentID, Upline: upline}, nil
}

// AssignLeads distributes unassigned leads round-robin within each region.
// Individual write failures are reported in the result and do not stop
// the run.
func (s *LeadService) AssignLeads(ctx context.Context, req AssignmentRequest) (outcome *AssignmentOutcome, err error) {
	ctx, span := observability.StartSpan(ctx, "lead.assign", attribute.String("region", req.Region))
	defer func() { observability.EndSpan(span, err) }()

	pending, err := s.leads.ListUnassignedLeads(ctx, req.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned leads: %w", err)
	}
	pending = filterLeads(pending, req.LeadIDs)
	if s.config.MaxLeadsPerRun > 0 && len(pending) > s.config.MaxLeadsPerRun {
		pending = pending[:s.config.MaxLeadsPerRun]
	}

	records, err := s.agents.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	allLeads, err := s.leads.ListLeads(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}

	agents := assignment.EligibleAgents(records, allLeads, s.config.ExcludedAssignmentRoles...)
	plan := assignment.PlanRoundRobin(pending, agents)
	outcome = &AssignmentOutcome{DryRun: req.DryRun, Plan: plan}
	if req.DryRun {
		return outcome, nil
	}

	result := assignment.Execute(ctx, s.leads, plan)
	outcome.Result = &result

	if s.metrics != nil {
		s.metrics.ObserveAssignment(result.AssignedCount, len(result.Failures))
	}
	if result.AssignedCount > 0 && s.network != nil {
		s.network.Invalidate(ctx)
	}
	for _, f := range result.Failures {
		s.logger.Warn("Lead assignment failed", zap.String("leadID", f.LeadID), zap.String("reason", f.Reason))
	}

	publishBestEffort(ctx, s.publisher, s.logger, events.NewLeadsAssigned(
		req.Region, result.AssignedCount, len(result.Failures), result.AssignedThisRun, auth.ActorID(ctx), time.Now()))

	s.logger.Info("Lead assignment finished",
		zap.String("region", req.Region),
		zap.Int("assigned", result.AssignedCount),
		zap.Int("failed", len(result.Failures)),
		zap.Int("unassigned", len(result.Unassigned)),
	)
	return outcome, nil
}

func filterLeads(leads []network.Lead, ids []string) []network.Lead {
	if len(ids) == 0 {
		return leads
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := leads[:0:0]
	for _, l := range leads {
		if want[l.ID] {
			out = append(out, l)
		}
	}
	return out
}
