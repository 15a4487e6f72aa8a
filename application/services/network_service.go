package services

import (
	"context"
	"fmt"
	"time"

	"referralnet-backend/application/ports"
	domainconfig "referralnet-backend/domain/config"
	"referralnet-backend/domain/events"
	"referralnet-backend/domain/network"
	"referralnet-backend/pkg/auth"
	"referralnet-backend/pkg/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const forestCacheKey = "network:forest"

// IntegrityReport is the diagnostic view of the network.
type IntegrityReport struct {
	Issues    []network.Issue `json:"issues"`
	Stats     network.Stats   `json:"stats"`
	CheckedAt time.Time       `json:"checkedAt"`
}

// ReparentResult describes an applied parent change.
type ReparentResult struct {
	AgentID     string  `json:"agentId"`
	OldParentID *string `json:"oldParentId"`
	NewParentID *string `json:"newParentId"`
}

// NetworkService assembles the referral forest and applies structural repairs.
// Forests returned from the cache are shared and must be treated as read-only.
type NetworkService struct {
	agents    ports.AgentRepository
	leads     ports.LeadRepository
	cache     ports.Cache
	publisher ports.EventPublisher
	metrics   ports.NetworkMetrics
	integrity ports.IntegrityPublisher
	config    *domainconfig.DomainConfig
	logger    *zap.Logger
}

// NewNetworkService creates a new network service
func NewNetworkService(
	agents ports.AgentRepository,
	leads ports.LeadRepository,
	cache ports.Cache,
	publisher ports.EventPublisher,
	metrics ports.NetworkMetrics,
	integrity ports.IntegrityPublisher,
	config *domainconfig.DomainConfig,
	logger *zap.Logger,
) *NetworkService {
	if config == nil {
		config = domainconfig.DefaultDomainConfig()
	}
	return &NetworkService{
		agents:    agents,
		leads:     leads,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		integrity: integrity,
		config:    config,
		logger:    logger,
	}
}

// GetForest returns the assembled forest, served from cache when fresh.
func (s *NetworkService) GetForest(ctx context.Context) (*network.Forest, error) {
	if s.cache != nil && s.config.ForestCacheTTL > 0 {
		if cached, ok := s.cache.Get(ctx, forestCacheKey); ok {
			if forest, ok := cached.(*network.Forest); ok {
				s.observeCache(true)
				return forest, nil
			}
		}
		s.observeCache(false)
	}

	forest, err := s.assemble(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.config.ForestCacheTTL > 0 {
		ttl := int(s.config.ForestCacheTTL / time.Second)
		if ttl < 1 {
			ttl = 1
		}
		if err := s.cache.Set(ctx, forestCacheKey, forest, ttl); err != nil {
			s.logger.Warn("Failed to cache forest", zap.Error(err))
		}
	}
	return forest, nil
}

// assemble always reads a fresh snapshot from the store.
func (s *NetworkService) assemble(ctx context.Context) (forest *network.Forest, err error) {
	ctx, span := observability.StartSpan(ctx, "network.assemble")
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()

	agents, err := s.agents.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	leads, err := s.leads.ListLeads(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}

	forest, err = network.Assemble(agents, leads)
	if err != nil {
		return nil, err
	}

	duration := time.Since(start)
	span.SetAttributes(
		attribute.Int("network.agents", forest.Stats.TotalAgents),
		attribute.Int("network.orphans", forest.Stats.OrphanCount),
		attribute.Int("network.cycles", forest.Stats.CycleCount),
	)
	if s.metrics != nil {
		s.metrics.ObserveForest(duration, forest.Stats)
	}
	s.logger.Debug("Assembled forest",
		zap.Int("agents", forest.Stats.TotalAgents),
		zap.Int("roots", forest.Stats.RootCount),
		zap.Int("issues", len(forest.Issues)),
		zap.Duration("duration", duration),
	)
	return forest, nil
}

// IntegrityReport scans a fresh snapshot and pushes the counts to the
// external monitor. A monitor failure is logged, not returned.
func (s *NetworkService) IntegrityReport(ctx context.Context) (*IntegrityReport, error) {
	forest, err := s.assemble(ctx)
	if err != nil {
		return nil, err
	}

	if s.integrity != nil {
		if err := s.integrity.PublishIntegrity(ctx, forest.Stats); err != nil {
			s.logger.Warn("Failed to publish integrity metrics", zap.Error(err))
		}
	}
	if forest.Stats.HasIssues() {
		s.logger.Warn("Network integrity issues found",
			zap.Int("orphans", forest.Stats.OrphanCount),
			zap.Int("cycles", forest.Stats.CycleCount),
		)
	}

	return &IntegrityReport{
		Issues:    forest.Issues,
		Stats:     forest.Stats,
		CheckedAt: time.Now().UTC(),
	}, nil
}

// ReparentAgent attaches agentID below parentID, or makes it a root when
// parentID is nil or blank. The new parent must be an active agent allowed
// to recruit, and the move must not make the agent its own ancestor.
func (s *NetworkService) ReparentAgent(ctx context.Context, agentID string, parentID *string) (*ReparentResult, error) {
	parentID = network.NormalizeParentID(parentID)

	current, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if parentID != nil {
		if err := s.checkNewParent(ctx, agentID, *parentID); err != nil {
			return nil, err
		}
	}

	if err := s.agents.UpdateParent(ctx, agentID, parentID); err != nil {
		return nil, fmt.Errorf("failed to update parent of agent %s: %w", agentID, err)
	}
	s.invalidate(ctx)

	result := &ReparentResult{
		AgentID:     agentID,
		OldParentID: network.NormalizeParentID(current.ParentID),
		NewParentID: parentID,
	}
	s.publish(ctx, events.NewAgentReparented(agentID, result.OldParentID, parentID, auth.ActorID(ctx), time.Now()))

	s.logger.Info("Agent reparented",
		zap.String("agentID", agentID),
		zap.Stringp("oldParentID", result.OldParentID),
		zap.Stringp("newParentID", parentID),
	)
	return result, nil
}

func (s *NetworkService) checkNewParent(ctx context.Context, agentID, parentID string) error {
	if parentID == agentID {
		return network.ErrSelfParent
	}

	records, err := s.agents.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}

	var parent *network.AgentRecord
	for i := range records {
		if records[i].ID == parentID {
			parent = &records[i]
			break
		}
	}
	if parent == nil || !parent.IsActive {
		return fmt.Errorf("parent %s: %w", parentID, network.ErrParentInactive)
	}
	if s.config.RequireParentCanRecruit && !parent.CanRecruit {
		return fmt.Errorf("parent %s: %w", parentID, network.ErrParentCannotRecruit)
	}

	// Inactive agents still hold parent pointers in the store, so the
	// ancestry check considers every record.
	all := make([]network.AgentRecord, len(records))
	for i, r := range records {
		r.IsActive = true
		all[i] = r
	}
	if network.NewGraph(all, nil).IsAncestor(agentID, parentID) {
		return fmt.Errorf("agent %s below %s: %w", agentID, parentID, network.ErrWouldCreateCycle)
	}
	return nil
}

// RepairOrphans clears the parent of every orphan, and of self-looped agents
// when includeSelfLoops is set. Running it again finds nothing to change.
func (s *NetworkService) RepairOrphans(ctx context.Context, includeSelfLoops bool) (ports.BatchResult, error) {
	forest, err := s.assemble(ctx)
	if err != nil {
		return ports.BatchResult{}, err
	}

	var ids []string
	for _, issue := range forest.Issues {
		if issue.Type == network.IssueOrphan || (includeSelfLoops && issue.Type == network.IssueSelfLoop) {
			ids = append(ids, issue.NodeID)
		}
	}
	if len(ids) == 0 {
		return ports.BatchResult{Failures: []ports.BatchFailure{}}, nil
	}

	result, err := s.agents.ClearParents(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("failed to clear orphan parents: %w", err)
	}
	if result.Failures == nil {
		result.Failures = []ports.BatchFailure{}
	}
	s.invalidate(ctx)

	s.publish(ctx, events.NewOrphanParentsCleared(ids, result.Changed, len(result.Failures), auth.ActorID(ctx), time.Now()))
	s.logger.Info("Orphan repair finished",
		zap.Int("requested", result.Requested),
		zap.Int("changed", result.Changed),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

// NormalizeParents rewrites blank parent ids to null.
func (s *NetworkService) NormalizeParents(ctx context.Context) (ports.BatchResult, error) {
	result, err := s.agents.NormalizeEmptyParents(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to normalize parents: %w", err)
	}
	if result.Failures == nil {
		result.Failures = []ports.BatchFailure{}
	}
	if result.Changed > 0 {
		s.invalidate(ctx)
	}

	s.publish(ctx, events.NewParentsNormalized(result.Changed, len(result.Failures), auth.ActorID(ctx), time.Now()))
	s.logger.Info("Parent normalization finished",
		zap.Int("requested", result.Requested),
		zap.Int("changed", result.Changed),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

// Invalidate drops the cached forest.
func (s *NetworkService) Invalidate(ctx context.Context) {
	s.invalidate(ctx)
}

func (s *NetworkService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, forestCacheKey); err != nil {
		s.logger.Warn("Failed to invalidate forest cache", zap.Error(err))
	}
}

func (s *NetworkService) observeCache(hit bool) {
	if s.metrics != nil {
		s.metrics.ObserveCache(hit)
	}
}

func (s *NetworkService) publish(ctx context.Context, event events.DomainEvent) {
	publishBestEffort(ctx, s.publisher, s.logger, event)
}

func publishBestEffort(ctx context.Context, publisher ports.EventPublisher, logger *zap.Logger, event events.DomainEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish event",
			zap.String("eventType", event.GetEventType()),
			zap.String("aggregateID", event.GetAggregateID()),
			zap.Error(err),
		)
	}
}
