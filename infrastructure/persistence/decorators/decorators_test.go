package decorators

import (
	"context"
	"errors"
	"testing"
	"time"

	"referralnet-backend/domain/network"
	"referralnet-backend/infrastructure/persistence/memory"
	apperrors "referralnet-backend/pkg/errors"
	"referralnet-backend/pkg/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seededStore() *memory.Store {
	store := memory.NewStore()
	store.Seed([]network.AgentRecord{
		{ID: "a-1", DisplayName: "Ada", Role: network.RoleTeamLead, IsActive: true, CanRecruit: true},
		{ID: "a-2", DisplayName: "Bo", Role: network.RoleAgent, IsActive: true},
	}, []network.Lead{{ID: "l-1", Region: "EU"}})
	return store
}

func testBreakerConfig() BreakerConfig {
	cfg := DefaultBreakerConfig("test-store")
	cfg.MaxFailures = 2
	cfg.Timeout = time.Hour
	return cfg
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	store.SetFault(func(op, id string) error {
		if op == "UpdateParent" {
			return errors.New("connection reset")
		}
		return nil
	})
	collector := observability.NewCollector("test")
	cb := NewBreaker(testBreakerConfig(), collector, zap.NewNop())
	repo := NewBreakerAgentRepository(store, cb)
	parent := "a-1"

	require.Error(t, repo.UpdateParent(ctx, "a-2", &parent))
	require.Error(t, repo.UpdateParent(ctx, "a-2", &parent))

	err := repo.UpdateParent(ctx, "a-2", &parent)

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable))
	assert.Equal(t, "CIRCUIT_OPEN", apperrors.GetAppError(err).Code)
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.BreakerState.WithLabelValues("test-store")))

	_, err = repo.ListAgents(ctx)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable), "open breaker rejects reads too")
}

func TestBreaker_NotFoundDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	cb := NewBreaker(testBreakerConfig(), nil, zap.NewNop())
	repo := NewBreakerAgentRepository(seededStore(), cb)

	for i := 0; i < 5; i++ {
		_, err := repo.GetAgent(ctx, "ghost")
		require.ErrorIs(t, err, network.ErrAgentNotFound)
	}

	agent, err := repo.GetAgent(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", agent.DisplayName)
}

func TestBreaker_PassesPartialBatchResults(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	parent := "gone"
	require.NoError(t, store.UpdateParent(ctx, "a-2", &parent))
	cb := NewBreaker(testBreakerConfig(), nil, zap.NewNop())
	repo := NewBreakerAgentRepository(store, cb)

	result, err := repo.ClearParents(ctx, []string{"a-2", "ghost"})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Requested)
	assert.Equal(t, 1, result.Changed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "ghost", result.Failures[0].ID)
}

func TestBreakerLeadRepository(t *testing.T) {
	ctx := context.Background()
	cb := NewBreaker(testBreakerConfig(), nil, zap.NewNop())
	repo := NewBreakerLeadRepository(seededStore(), cb)

	require.NoError(t, repo.AssignLead(ctx, "l-1", "a-2"))

	lead, err := repo.GetLead(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, "a-2", lead.AssignedTo())

	unassigned, err := repo.ListUnassignedLeads(ctx, "EU")
	require.NoError(t, err)
	assert.Empty(t, unassigned)
}

func TestBreaker_AlreadyAssignedDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	cb := NewBreaker(testBreakerConfig(), nil, zap.NewNop())
	repo := NewBreakerLeadRepository(seededStore(), cb)

	require.NoError(t, repo.AssignUnassignedLead(ctx, "l-1", "a-1"))
	for i := 0; i < 5; i++ {
		require.ErrorIs(t, repo.AssignUnassignedLead(ctx, "l-1", "a-2"), network.ErrLeadAlreadyAssigned)
	}

	lead, err := repo.GetLead(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, "a-1", lead.AssignedTo())
}

func TestInstrumented_RecordsEveryCall(t *testing.T) {
	ctx := context.Background()
	collector := observability.NewCollector("test")
	store := seededStore()
	agents := NewInstrumentedAgentRepository(store, "memory", collector)
	leads := NewInstrumentedLeadRepository(store, "memory", collector)

	_, err := agents.ListAgents(ctx)
	require.NoError(t, err)
	_, err = agents.GetAgent(ctx, "ghost")
	require.Error(t, err)
	_, err = leads.ListLeads(ctx)
	require.NoError(t, err)
	require.NoError(t, leads.SetLeadVisibility(ctx, "l-1", []string{"a-1"}))

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.StoreOperations.WithLabelValues("memory", "ListAgents", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.StoreOperations.WithLabelValues("memory", "GetAgent", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.StoreOperations.WithLabelValues("memory", "ListLeads", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.StoreOperations.WithLabelValues("memory", "SetLeadVisibility", "success")))
}

// blockingAgents waits for the caller's deadline
type blockingAgents struct {
	*memory.Store
}

func (b blockingAgents) ListAgents(ctx context.Context) ([]network.AgentRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestInstrumented_TimeoutBoundsCall(t *testing.T) {
	collector := observability.NewCollector("test")
	agents := NewInstrumentedAgentRepository(blockingAgents{seededStore()}, "memory", collector).
		WithTimeout(10 * time.Millisecond)

	_, err := agents.ListAgents(context.Background())

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.StoreOperations.WithLabelValues("memory", "ListAgents", "error")))
}
