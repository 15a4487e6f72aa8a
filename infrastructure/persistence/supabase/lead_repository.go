package supabase

import (
	"context"
	"fmt"
	"strings"

	"referralnet-backend/application/ports"
	"referralnet-backend/domain/assignment"
	"referralnet-backend/domain/network"
	apperrors "referralnet-backend/pkg/errors"

	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"
)

// LeadRepository implements ports.LeadRepository over PostgREST
type LeadRepository struct {
	db     Querier
	logger *zap.Logger
}

// NewLeadRepository creates a new LeadRepository
func NewLeadRepository(db Querier, logger *zap.Logger) *LeadRepository {
	return &LeadRepository{db: db, logger: logger}
}

// ListLeads returns every lead, oldest first
func (r *LeadRepository) ListLeads(ctx context.Context) ([]network.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []leadRow
	_, err := r.db.From(leadsTable).
		Select("*", "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperrors.NewDatabaseError("ListLeads", err)
	}
	return toLeads(rows), nil
}

// ListUnassignedLeads returns leads without an owner, oldest first
func (r *LeadRepository) ListUnassignedLeads(ctx context.Context, region string) ([]network.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []leadRow
	_, err := r.db.From(leadsTable).
		Select("*", "", false).
		Or(`assigned_agent_id.is.null,assigned_agent_id.eq.""`, "").
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperrors.NewDatabaseError("ListUnassignedLeads", err)
	}

	want := assignment.NormalizeRegion(region)
	var out []network.Lead
	for _, lead := range toLeads(rows) {
		if lead.IsAssigned() {
			continue
		}
		if want != "" && assignment.NormalizeRegion(lead.Region) != want {
			continue
		}
		out = append(out, lead)
	}
	return out, nil
}

// GetLead looks up one lead
func (r *LeadRepository) GetLead(ctx context.Context, id string) (*network.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []leadRow
	_, err := r.db.From(leadsTable).
		Select("*", "", false).
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperrors.NewDatabaseError("GetLead", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("lead %s: %w", id, network.ErrLeadNotFound)
	}
	lead := rows[0].toLead()
	return &lead, nil
}

// AssignLead sets the lead owner, replacing any existing one
func (r *LeadRepository) AssignLead(ctx context.Context, leadID, agentID string) error {
	return r.update(ctx, "AssignLead", leadID, map[string]interface{}{
		"assigned_agent_id": strings.TrimSpace(agentID),
	})
}

// AssignUnassignedLead sets the lead owner only while the lead has none. No
// matching row means the lead is missing or owned; a whitespace owner counts
// as none and is replaced by a write conditioned on the exact stored value.
func (r *LeadRepository) AssignUnassignedLead(ctx context.Context, leadID, agentID string) error {
	values := map[string]interface{}{"assigned_agent_id": strings.TrimSpace(agentID)}

	landed, err := r.assignWhere(ctx, leadID, values, func(f *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return f.Or(`assigned_agent_id.is.null,assigned_agent_id.eq.""`, "")
	})
	if err != nil || landed {
		return err
	}

	current, err := r.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	if current.IsAssigned() {
		return fmt.Errorf("lead %s owned by %s: %w", leadID, current.AssignedTo(), network.ErrLeadAlreadyAssigned)
	}

	landed, err = r.assignWhere(ctx, leadID, values, func(f *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		if current.AssignedAgentID == nil {
			return f.Is("assigned_agent_id", "null")
		}
		return f.Eq("assigned_agent_id", *current.AssignedAgentID)
	})
	if err != nil || landed {
		return err
	}
	return fmt.Errorf("lead %s: %w", leadID, network.ErrLeadAlreadyAssigned)
}

func (r *LeadRepository) assignWhere(ctx context.Context, leadID string, values map[string]interface{}, cond func(*postgrest.FilterBuilder) *postgrest.FilterBuilder) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var rows []leadRow
	query := r.db.From(leadsTable).
		Update(values, returnRows, "").
		Eq("id", leadID)
	if _, err := cond(query).ExecuteTo(&rows); err != nil {
		r.logger.Error("Lead update failed", zap.String("operation", "AssignUnassignedLead"), zap.String("leadID", leadID), zap.Error(err))
		return false, apperrors.NewDatabaseError("AssignUnassignedLead", err)
	}
	return len(rows) > 0, nil
}

// SetLeadVisibility stores the upline the lead is visible to
func (r *LeadRepository) SetLeadVisibility(ctx context.Context, leadID string, agentIDs []string) error {
	if agentIDs == nil {
		agentIDs = []string{}
	}
	return r.update(ctx, "SetLeadVisibility", leadID, map[string]interface{}{
		"visible_to": agentIDs,
	})
}

func (r *LeadRepository) update(ctx context.Context, operation, leadID string, values map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var rows []leadRow
	_, err := r.db.From(leadsTable).
		Update(values, returnRows, "").
		Eq("id", leadID).
		ExecuteTo(&rows)
	if err != nil {
		r.logger.Error("Lead update failed", zap.String("operation", operation), zap.String("leadID", leadID), zap.Error(err))
		return apperrors.NewDatabaseError(operation, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("lead %s: %w", leadID, network.ErrLeadNotFound)
	}
	return nil
}

func toLeads(rows []leadRow) []network.Lead {
	leads := make([]network.Lead, 0, len(rows))
	for _, row := range rows {
		leads = append(leads, row.toLead())
	}
	return leads
}

var _ ports.LeadRepository = (*LeadRepository)(nil)
