package supabase

import (
	"context"
	"fmt"

	"referralnet-backend/application/ports"
	"referralnet-backend/domain/network"
	apperrors "referralnet-backend/pkg/errors"

	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"
)

// AgentRepository implements ports.AgentRepository over PostgREST
type AgentRepository struct {
	db        Querier
	batchSize int
	logger    *zap.Logger
}

// NewAgentRepository creates a new AgentRepository
func NewAgentRepository(db Querier, batchSize int, logger *zap.Logger) *AgentRepository {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &AgentRepository{db: db, batchSize: batchSize, logger: logger}
}

// ListAgents returns every agent, oldest first
func (r *AgentRepository) ListAgents(ctx context.Context) ([]network.AgentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []agentRow
	_, err := r.db.From(agentsTable).
		Select("*", "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperrors.NewDatabaseError("ListAgents", err)
	}

	agents := make([]network.AgentRecord, 0, len(rows))
	for _, row := range rows {
		agents = append(agents, row.toRecord())
	}
	return agents, nil
}

// GetAgent looks up one agent
func (r *AgentRepository) GetAgent(ctx context.Context, id string) (*network.AgentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []agentRow
	_, err := r.db.From(agentsTable).
		Select("*", "", false).
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperrors.NewDatabaseError("GetAgent", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("agent %s: %w", id, network.ErrAgentNotFound)
	}
	record := rows[0].toRecord()
	return &record, nil
}

// UpdateParent sets one agent's parent; nil writes SQL null
func (r *AgentRepository) UpdateParent(ctx context.Context, agentID string, parentID *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var rows []agentRow
	_, err := r.db.From(agentsTable).
		Update(map[string]interface{}{"parent_id": parentID}, returnRows, "").
		Eq("id", agentID).
		ExecuteTo(&rows)
	if err != nil {
		return apperrors.NewDatabaseError("UpdateParent", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("agent %s: %w", agentID, network.ErrAgentNotFound)
	}
	return nil
}

// ClearParents nulls the parent of the listed agents in batches. Rows whose
// parent is already null are filtered out, so they are not counted as changed.
// Ids the update did not touch are looked up again to report missing agents.
func (r *AgentRepository) ClearParents(ctx context.Context, agentIDs []string) (ports.BatchResult, error) {
	result := ports.BatchResult{Requested: len(agentIDs)}
	for _, ids := range chunk(agentIDs, r.batchSize) {
		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, failAll(ids, err)...)
			continue
		}

		var rows []agentRow
		_, err := r.db.From(agentsTable).
			Update(map[string]interface{}{"parent_id": nil}, returnRows, "").
			Filter("id", "in", inList(ids)).
			Not("parent_id", "is", "null").
			ExecuteTo(&rows)
		if err != nil {
			r.logger.Warn("Parent clear batch failed", zap.Int("items", len(ids)), zap.Error(err))
			result.Failures = append(result.Failures, failAll(ids, err)...)
			continue
		}
		result.Changed += len(rows)

		untouched := without(ids, rows)
		if len(untouched) == 0 {
			continue
		}
		missing, err := r.missingAgents(untouched)
		if err != nil {
			r.logger.Warn("Parent clear lookup failed", zap.Int("items", len(untouched)), zap.Error(err))
			result.Failures = append(result.Failures, failAll(untouched, err)...)
			continue
		}
		for _, id := range missing {
			result.Failures = append(result.Failures, ports.BatchFailure{ID: id, Reason: network.ErrAgentNotFound.Error()})
		}
	}
	return result, nil
}

// missingAgents returns the ids with no agent row, in input order
func (r *AgentRepository) missingAgents(ids []string) ([]string, error) {
	var rows []agentRow
	_, err := r.db.From(agentsTable).
		Select("id", "", false).
		Filter("id", "in", inList(ids)).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperrors.NewDatabaseError("ClearParents", err)
	}
	return without(ids, rows), nil
}

func without(ids []string, rows []agentRow) []string {
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		seen[row.ID] = true
	}
	var out []string
	for _, id := range ids {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// NormalizeEmptyParents nulls blank parent ids. The update only matches rows
// whose parent still holds one of the blank values that were read.
func (r *AgentRepository) NormalizeEmptyParents(ctx context.Context) (ports.BatchResult, error) {
	agents, err := r.ListAgents(ctx)
	if err != nil {
		return ports.BatchResult{}, err
	}

	var ids []string
	blanks := map[string]bool{}
	for _, a := range agents {
		if isBlank(a.ParentID) {
			ids = append(ids, a.ID)
			blanks[*a.ParentID] = true
		}
	}

	result := ports.BatchResult{Requested: len(ids)}
	if len(ids) == 0 {
		return result, nil
	}
	values := make([]string, 0, len(blanks))
	for v := range blanks {
		values = append(values, v)
	}

	for _, batch := range chunk(ids, r.batchSize) {
		var rows []agentRow
		_, err := r.db.From(agentsTable).
			Update(map[string]interface{}{"parent_id": nil}, returnRows, "").
			Filter("id", "in", inList(batch)).
			Filter("parent_id", "in", inList(values)).
			ExecuteTo(&rows)
		if err != nil {
			result.Failures = append(result.Failures, failAll(batch, err)...)
			continue
		}
		result.Changed += len(rows)
	}
	return result, nil
}

func failAll(ids []string, err error) []ports.BatchFailure {
	failures := make([]ports.BatchFailure, 0, len(ids))
	for _, id := range ids {
		failures = append(failures, ports.BatchFailure{ID: id, Reason: err.Error()})
	}
	return failures
}

var _ ports.AgentRepository = (*AgentRepository)(nil)
