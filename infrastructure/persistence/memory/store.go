// Package memory is an in-process node store used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"referralnet-backend/application/ports"
	"referralnet-backend/domain/assignment"
	"referralnet-backend/domain/network"
)

// FaultFunc lets tests fail individual writes. op is the method name.
type FaultFunc func(op, id string) error

// Store keeps agents and leads in maps guarded by a mutex. Reads return
// copies so callers never share state with the store.
type Store struct {
	mu     sync.RWMutex
	agents map[string]network.AgentRecord
	leads  map[string]network.Lead
	order  []string
	lorder []string
	fault  FaultFunc
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		agents: make(map[string]network.AgentRecord),
		leads:  make(map[string]network.Lead),
	}
}

// Seed loads records, keeping their order for listings.
func (s *Store) Seed(agents []network.AgentRecord, leads []network.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range agents {
		if _, exists := s.agents[a.ID]; !exists {
			s.order = append(s.order, a.ID)
		}
		s.agents[a.ID] = cloneAgent(a)
	}
	for _, l := range leads {
		if _, exists := s.leads[l.ID]; !exists {
			s.lorder = append(s.lorder, l.ID)
		}
		s.leads[l.ID] = cloneLead(l)
	}
}

// SetFault installs a write fault injector.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *Store) injected(op, id string) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op, id)
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneAgent(a network.AgentRecord) network.AgentRecord {
	a.ParentID = cloneString(a.ParentID)
	a.ReferralCode = cloneString(a.ReferralCode)
	return a
}

func cloneLead(l network.Lead) network.Lead {
	l.AssignedAgentID = cloneString(l.AssignedAgentID)
	l.RefCode = cloneString(l.RefCode)
	l.VisibleTo = append([]string(nil), l.VisibleTo...)
	return l
}

// ListAgents returns every agent in insertion order.
func (s *Store) ListAgents(ctx context.Context) ([]network.AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]network.AgentRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneAgent(s.agents[id]))
	}
	return out, nil
}

// GetAgent looks up one agent.
func (s *Store) GetAgent(ctx context.Context, id string) (*network.AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, network.ErrAgentNotFound)
	}
	a = cloneAgent(a)
	return &a, nil
}

// UpdateParent sets one agent's parent.
func (s *Store) UpdateParent(ctx context.Context, agentID string, parentID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, network.ErrAgentNotFound)
	}
	if err := s.injected("UpdateParent", agentID); err != nil {
		return fmt.Errorf("failed to update parent of agent %s: %w", agentID, err)
	}
	a.ParentID = cloneString(parentID)
	s.agents[agentID] = a
	return nil
}

// ClearParents nulls the parent of each listed agent, one record at a time.
func (s *Store) ClearParents(ctx context.Context, agentIDs []string) (ports.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := ports.BatchResult{Requested: len(agentIDs)}
	for _, id := range agentIDs {
		a, ok := s.agents[id]
		if !ok {
			result.Failures = append(result.Failures, ports.BatchFailure{ID: id, Reason: network.ErrAgentNotFound.Error()})
			continue
		}
		if a.ParentID == nil {
			continue
		}
		if err := s.injected("ClearParents", id); err != nil {
			result.Failures = append(result.Failures, ports.BatchFailure{ID: id, Reason: err.Error()})
			continue
		}
		a.ParentID = nil
		s.agents[id] = a
		result.Changed++
	}
	return result, nil
}

// NormalizeEmptyParents nulls blank parent ids.
func (s *Store) NormalizeEmptyParents(ctx context.Context) (ports.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result ports.BatchResult
	for _, id := range s.order {
		a := s.agents[id]
		if !a.HasBlankParent() {
			continue
		}
		result.Requested++
		if err := s.injected("NormalizeEmptyParents", id); err != nil {
			result.Failures = append(result.Failures, ports.BatchFailure{ID: id, Reason: err.Error()})
			continue
		}
		a.ParentID = nil
		s.agents[id] = a
		result.Changed++
	}
	return result, nil
}

// ListLeads returns every lead in insertion order.
func (s *Store) ListLeads(ctx context.Context) ([]network.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]network.Lead, 0, len(s.lorder))
	for _, id := range s.lorder {
		out = append(out, cloneLead(s.leads[id]))
	}
	return out, nil
}

// ListUnassignedLeads returns leads without an owner, oldest first.
func (s *Store) ListUnassignedLeads(ctx context.Context, region string) ([]network.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := assignment.NormalizeRegion(region)
	var out []network.Lead
	for _, id := range s.lorder {
		l := s.leads[id]
		if l.IsAssigned() {
			continue
		}
		if want != "" && assignment.NormalizeRegion(l.Region) != want {
			continue
		}
		out = append(out, cloneLead(l))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetLead looks up one lead.
func (s *Store) GetLead(ctx context.Context, id string) (*network.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leads[id]
	if !ok {
		return nil, fmt.Errorf("lead %s: %w", id, network.ErrLeadNotFound)
	}
	l = cloneLead(l)
	return &l, nil
}

// AssignLead sets the lead owner.
func (s *Store) AssignLead(ctx context.Context, leadID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leads[leadID]
	if !ok {
		return fmt.Errorf("lead %s: %w", leadID, network.ErrLeadNotFound)
	}
	if err := s.injected("AssignLead", leadID); err != nil {
		return fmt.Errorf("failed to assign lead %s: %w", leadID, err)
	}
	owner := strings.TrimSpace(agentID)
	l.AssignedAgentID = &owner
	s.leads[leadID] = l
	return nil
}

// AssignUnassignedLead sets the lead owner unless it already has one.
func (s *Store) AssignUnassignedLead(ctx context.Context, leadID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leads[leadID]
	if !ok {
		return fmt.Errorf("lead %s: %w", leadID, network.ErrLeadNotFound)
	}
	if l.IsAssigned() {
		return fmt.Errorf("lead %s owned by %s: %w", leadID, l.AssignedTo(), network.ErrLeadAlreadyAssigned)
	}
	if err := s.injected("AssignLead", leadID); err != nil {
		return fmt.Errorf("failed to assign lead %s: %w", leadID, err)
	}
	owner := strings.TrimSpace(agentID)
	l.AssignedAgentID = &owner
	s.leads[leadID] = l
	return nil
}

// SetLeadVisibility stores the lead's upline.
func (s *Store) SetLeadVisibility(ctx context.Context, leadID string, agentIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leads[leadID]
	if !ok {
		return fmt.Errorf("lead %s: %w", leadID, network.ErrLeadNotFound)
	}
	if err := s.injected("SetLeadVisibility", leadID); err != nil {
		return fmt.Errorf("failed to set visibility of lead %s: %w", leadID, err)
	}
	l.VisibleTo = append([]string(nil), agentIDs...)
	s.leads[leadID] = l
	return nil
}

var (
	_ ports.AgentRepository = (*Store)(nil)
	_ ports.LeadRepository  = (*Store)(nil)
)
