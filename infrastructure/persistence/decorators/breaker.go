// Package decorators wraps store adapters with a circuit breaker and with
// metrics and tracing.
package decorators

import (
	"context"
	"errors"
	"time"

	"referralnet-backend/application/ports"
	"referralnet-backend/domain/network"
	apperrors "referralnet-backend/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig holds configuration for a store circuit breaker
type BreakerConfig struct {
	Name        string
	MaxFailures uint32        // consecutive failures before opening
	MaxRequests uint32        // probes allowed while half-open
	Interval    time.Duration // closed-state count reset period
	Timeout     time.Duration // open period before probing
}

// DefaultBreakerConfig returns a default configuration for circuit breaker
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxFailures: 5,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
	}
}

// BreakerObserver receives breaker state transitions
type BreakerObserver interface {
	ObserveBreaker(name string, state int)
}

// isStoreFailure separates outages from answers. A missing record or a
// cancelled caller says nothing about store health.
func isStoreFailure(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, network.ErrAgentNotFound),
		errors.Is(err, network.ErrLeadNotFound),
		errors.Is(err, network.ErrLeadAlreadyAssigned),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// NewBreaker creates a circuit breaker that reports transitions to observer
func NewBreaker(config BreakerConfig, observer BreakerObserver, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if observer != nil {
				observer.ObserveBreaker(name, int(to))
			}
		},
		IsSuccessful: func(err error) bool {
			return !isStoreFailure(err)
		},
	})
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, apperrors.NewUnavailableError(cb.Name()).WithCode("CIRCUIT_OPEN").WithCause(err)
	}
	// Partial results such as batch reports travel with their error
	value, ok := result.(T)
	if !ok {
		return zero, err
	}
	return value, err
}

func executeErr(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := execute(cb, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// BreakerAgentRepository guards an agent repository with a circuit breaker
type BreakerAgentRepository struct {
	next ports.AgentRepository
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerAgentRepository wraps next
func NewBreakerAgentRepository(next ports.AgentRepository, cb *gobreaker.CircuitBreaker) *BreakerAgentRepository {
	return &BreakerAgentRepository{next: next, cb: cb}
}

func (r *BreakerAgentRepository) ListAgents(ctx context.Context) ([]network.AgentRecord, error) {
	return execute(r.cb, func() ([]network.AgentRecord, error) { return r.next.ListAgents(ctx) })
}

func (r *BreakerAgentRepository) GetAgent(ctx context.Context, id string) (*network.AgentRecord, error) {
	return execute(r.cb, func() (*network.AgentRecord, error) { return r.next.GetAgent(ctx, id) })
}

func (r *BreakerAgentRepository) UpdateParent(ctx context.Context, agentID string, parentID *string) error {
	return executeErr(r.cb, func() error { return r.next.UpdateParent(ctx, agentID, parentID) })
}

func (r *BreakerAgentRepository) ClearParents(ctx context.Context, agentIDs []string) (ports.BatchResult, error) {
	return execute(r.cb, func() (ports.BatchResult, error) { return r.next.ClearParents(ctx, agentIDs) })
}

func (r *BreakerAgentRepository) NormalizeEmptyParents(ctx context.Context) (ports.BatchResult, error) {
	return execute(r.cb, func() (ports.BatchResult, error) { return r.next.NormalizeEmptyParents(ctx) })
}

// BreakerLeadRepository guards a lead repository with a circuit breaker
type BreakerLeadRepository struct {
	next ports.LeadRepository
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerLeadRepository wraps next
func NewBreakerLeadRepository(next ports.LeadRepository, cb *gobreaker.CircuitBreaker) *BreakerLeadRepository {
	return &BreakerLeadRepository{next: next, cb: cb}
}

func (r *BreakerLeadRepository) ListLeads(ctx context.Context) ([]network.Lead, error) {
	return execute(r.cb, func() ([]network.Lead, error) { return r.next.ListLeads(ctx) })
}

func (r *BreakerLeadRepository) ListUnassignedLeads(ctx context.Context, region string) ([]network.Lead, error) {
	return execute(r.cb, func() ([]network.Lead, error) { return r.next.ListUnassignedLeads(ctx, region) })
}

func (r *BreakerLeadRepository) GetLead(ctx context.Context, id string) (*network.Lead, error) {
	return execute(r.cb, func() (*network.Lead, error) { return r.next.GetLead(ctx, id) })
}

func (r *BreakerLeadRepository) AssignLead(ctx context.Context, leadID, agentID string) error {
	return executeErr(r.cb, func() error { return r.next.AssignLead(ctx, leadID, agentID) })
}

func (r *BreakerLeadRepository) AssignUnassignedLead(ctx context.Context, leadID, agentID string) error {
	return executeErr(r.cb, func() error { return r.next.AssignUnassignedLead(ctx, leadID, agentID) })
}

func (r *BreakerLeadRepository) SetLeadVisibility(ctx context.Context, leadID string, agentIDs []string) error {
	return executeErr(r.cb, func() error { return r.next.SetLeadVisibility(ctx, leadID, agentIDs) })
}

var (
	_ ports.AgentRepository = (*BreakerAgentRepository)(nil)
	_ ports.LeadRepository  = (*BreakerLeadRepository)(nil)
)
