// Package supabase stores agents and leads in Postgres tables served by a
// Supabase PostgREST endpoint.
package supabase

import (
	"fmt"
	"strings"
	"time"

	"referralnet-backend/domain/network"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const (
	agentsTable = "agents"
	leadsTable  = "leads"

	// returnRows asks PostgREST to echo the rows a write touched
	returnRows = "representation"
)

// Querier builds PostgREST queries. Both the Supabase client and a bare
// PostgREST client satisfy it.
type Querier interface {
	From(table string) *postgrest.QueryBuilder
}

// NewClient connects to a Supabase project with a service role key
func NewClient(url, key string) (*supa.Client, error) {
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return client, nil
}

// agentRow is the agents table layout
type agentRow struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	Region       string    `json:"region"`
	IsActive     bool      `json:"is_active"`
	ParentID     *string   `json:"parent_id"`
	CanRecruit   bool      `json:"can_recruit"`
	ReferralCode *string   `json:"referral_code"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r agentRow) toRecord() network.AgentRecord {
	return network.AgentRecord{
		ID:           r.ID,
		DisplayName:  r.DisplayName,
		Role:         network.Role(r.Role),
		Region:       r.Region,
		IsActive:     r.IsActive,
		ParentID:     r.ParentID,
		CanRecruit:   r.CanRecruit,
		ReferralCode: r.ReferralCode,
		CreatedAt:    r.CreatedAt,
	}
}

// leadRow is the leads table layout
type leadRow struct {
	ID              string    `json:"id"`
	AssignedAgentID *string   `json:"assigned_agent_id"`
	RefCode         *string   `json:"ref_code"`
	Region          string    `json:"region"`
	VisibleTo       []string  `json:"visible_to"`
	CreatedAt       time.Time `json:"created_at"`
}

func (r leadRow) toLead() network.Lead {
	return network.Lead{
		ID:              r.ID,
		AssignedAgentID: r.AssignedAgentID,
		RefCode:         r.RefCode,
		Region:          r.Region,
		VisibleTo:       r.VisibleTo,
		CreatedAt:       r.CreatedAt,
	}
}

// chunk splits ids into slices of at most size
func chunk(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func isBlank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) == ""
}

var inListEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// inList renders values as a PostgREST in.() operand. Every value is double
// quoted with embedded quotes and backslashes escaped.
func inList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, `"`+inListEscaper.Replace(v)+`"`)
	}
	return "(" + strings.Join(quoted, ",") + ")"
}
