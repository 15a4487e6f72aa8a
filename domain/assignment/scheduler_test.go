package assignment_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"referralnet-backend/domain/assignment"
	"referralnet-backend/domain/network"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) AssignUnassignedLead(ctx context.Context, leadID, agentID string) error {
	args := m.Called(ctx, leadID, agentID)
	return args.Error(0)
}

func strPtr(s string) *string {
	return &s
}

func leadsIn(region string, n int) []network.Lead {
	leads := make([]network.Lead, 0, n)
	for i := 0; i < n; i++ {
		leads = append(leads, network.Lead{ID: fmt.Sprintf("%s-lead-%d", region, i), Region: region})
	}
	return leads
}

func TestPlanRoundRobin_LeastLoadedFirst(t *testing.T) {
	// Arrange
	agents := []assignment.Agent{
		{ID: "a", Region: "PY", CurrentCount: 0},
		{ID: "b", Region: "PY", CurrentCount: 0},
		{ID: "c", Region: "PY", CurrentCount: 2},
	}

	// Act
	plan := assignment.PlanRoundRobin(leadsIn("PY", 7), agents)

	// Assert
	perAgent := make(map[string]int)
	for _, a := range plan.Assignments {
		perAgent[a.AgentID]++
	}
	assert.Equal(t, map[string]int{"a": 3, "b": 2, "c": 2}, perAgent)
	assert.Equal(t, map[string]int{"a": 3, "b": 2, "c": 4}, plan.Counts)
	assert.Equal(t, "a", plan.Assignments[0].AgentID)
	assert.Equal(t, "b", plan.Assignments[1].AgentID)
	assert.Equal(t, "c", plan.Assignments[2].AgentID)
	assert.Empty(t, plan.Unassigned)
}

func TestPlanRoundRobin_RotationIsFixedForTheRun(t *testing.T) {
	agents := []assignment.Agent{
		{ID: "busy", Region: "PY", CurrentCount: 5},
		{ID: "idle", Region: "PY", CurrentCount: 0},
	}

	plan := assignment.PlanRoundRobin(leadsIn("PY", 4), agents)

	order := make([]string, 0, len(plan.Assignments))
	for _, a := range plan.Assignments {
		order = append(order, a.AgentID)
	}
	assert.Equal(t, []string{"idle", "busy", "idle", "busy"}, order)
	assert.Equal(t, map[string]int{"busy": 7, "idle": 2}, plan.Counts)
}

func TestPlanRoundRobin_RegionWithoutAgents(t *testing.T) {
	agents := []assignment.Agent{{ID: "a", Region: "PY"}}
	leads := append(leadsIn("PY", 2), leadsIn("AR", 3)...)

	plan := assignment.PlanRoundRobin(leads, agents)

	assert.Len(t, plan.Assignments, 2)
	assert.ElementsMatch(t, []string{"AR-lead-0", "AR-lead-1", "AR-lead-2"}, plan.Unassigned)
}

func TestPlanRoundRobin_RegionsNeverMix(t *testing.T) {
	agents := []assignment.Agent{
		{ID: "py", Region: "PY"},
		{ID: "ar", Region: " ar "},
	}
	leads := append(leadsIn("PY", 3), leadsIn("AR", 2)...)

	plan := assignment.PlanRoundRobin(leads, agents)

	for _, a := range plan.Assignments {
		if a.Region == "PY" {
			assert.Equal(t, "py", a.AgentID)
		} else {
			assert.Equal(t, "ar", a.AgentID)
		}
	}
	assert.Equal(t, 3, plan.Counts["py"])
	assert.Equal(t, 2, plan.Counts["ar"])
}

func TestPlanRoundRobin_SkipsAssignedLeads(t *testing.T) {
	leads := leadsIn("PY", 2)
	leads[0].AssignedAgentID = strPtr("someone")

	plan := assignment.PlanRoundRobin(leads, []assignment.Agent{{ID: "a", Region: "PY"}})

	require.Len(t, plan.Assignments, 1)
	assert.Equal(t, "PY-lead-1", plan.Assignments[0].LeadID)
}

func TestPlanRoundRobin_Fairness(t *testing.T) {
	for m := 1; m <= 6; m++ {
		for k := 0; k <= 25; k++ {
			agents := make([]assignment.Agent, m)
			for i := range agents {
				agents[i] = assignment.Agent{ID: fmt.Sprintf("agent-%d", i), Region: "PY", CurrentCount: 4}
			}

			plan := assignment.PlanRoundRobin(leadsIn("PY", k), agents)

			lo, hi := plan.Counts["agent-0"], plan.Counts["agent-0"]
			for _, a := range agents {
				c := plan.Counts[a.ID]
				lo = min(lo, c)
				hi = max(hi, c)
			}
			assert.LessOrEqual(t, hi-lo, 1, "m=%d k=%d", m, k)
			assert.Len(t, plan.Assignments, k)
		}
	}
}

func TestExecute_FailuresAreIsolated(t *testing.T) {
	// Arrange
	agents := []assignment.Agent{
		{ID: "a", Region: "PY"},
		{ID: "b", Region: "PY"},
	}
	plan := assignment.PlanRoundRobin(leadsIn("PY", 4), agents)

	writer := new(MockWriter)
	writer.On("AssignUnassignedLead", mock.Anything, "PY-lead-1", "b").Return(errors.New("throttled"))
	writer.On("AssignUnassignedLead", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// Act
	result := assignment.Execute(context.Background(), writer, plan)

	// Assert
	assert.Equal(t, 3, result.AssignedCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "PY-lead-1", result.Failures[0].LeadID)
	assert.Equal(t, "throttled", result.Failures[0].Reason)
	assert.Equal(t, 2, result.Counts["a"])
	assert.Equal(t, 1, result.Counts["b"])
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, result.AssignedThisRun)
	writer.AssertNumberOfCalls(t, "AssignUnassignedLead", 4)
}

func TestExecute_LeadClaimedSinceRead(t *testing.T) {
	// Arrange
	agents := []assignment.Agent{{ID: "b", Region: "PY"}}
	plan := assignment.PlanRoundRobin(leadsIn("PY", 2), agents)

	writer := new(MockWriter)
	writer.On("AssignUnassignedLead", mock.Anything, "PY-lead-0", "b").
		Return(fmt.Errorf("lead PY-lead-0 owned by a: %w", network.ErrLeadAlreadyAssigned))
	writer.On("AssignUnassignedLead", mock.Anything, "PY-lead-1", "b").Return(nil)

	// Act
	result := assignment.Execute(context.Background(), writer, plan)

	// Assert
	assert.Equal(t, 1, result.AssignedCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, assignment.Failure{LeadID: "PY-lead-0", Reason: assignment.ReasonAlreadyAssigned}, result.Failures[0])
	assert.Equal(t, 1, result.Counts["b"])
	assert.Equal(t, map[string]int{"b": 1}, result.AssignedThisRun)
}

func TestExecute_StaleSnapshotKeepsExistingOwner(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := newLeadStore(network.Lead{ID: "l-1", Region: "EU"})
	stale := store.snapshot()
	require.NoError(t, store.AssignUnassignedLead(ctx, "l-1", "agent-a"))

	// Act
	plan := assignment.PlanRoundRobin(stale, []assignment.Agent{{ID: "agent-b", Region: "EU"}})
	result := assignment.Execute(ctx, store, plan)

	// Assert
	assert.Equal(t, 0, result.AssignedCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, assignment.ReasonAlreadyAssigned, result.Failures[0].Reason)
	assert.Equal(t, 0, result.Counts["agent-b"])
	assert.Equal(t, "agent-a", store.owner("l-1"))
}

// leadStore is a minimal conditional writer over an in-memory map
type leadStore struct {
	leads map[string]network.Lead
}

func newLeadStore(leads ...network.Lead) *leadStore {
	s := &leadStore{leads: make(map[string]network.Lead)}
	for _, l := range leads {
		s.leads[l.ID] = l
	}
	return s
}

func (s *leadStore) snapshot() []network.Lead {
	out := make([]network.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		out = append(out, l)
	}
	return out
}

func (s *leadStore) owner(id string) string {
	return s.leads[id].AssignedTo()
}

func (s *leadStore) AssignUnassignedLead(ctx context.Context, leadID, agentID string) error {
	l := s.leads[leadID]
	if l.IsAssigned() {
		return network.ErrLeadAlreadyAssigned
	}
	l.AssignedAgentID = &agentID
	s.leads[leadID] = l
	return nil
}

func TestEligibleAgents(t *testing.T) {
	records := []network.AgentRecord{
		{ID: "a", Region: "py", IsActive: true, Role: network.RoleAgent},
		{ID: "b", Region: "PY", IsActive: false, Role: network.RoleAgent},
		{ID: "c", Region: "PY", IsActive: true, Role: network.RoleAdmin},
		{ID: "d", Region: "PY", IsActive: true, Role: network.RoleTeamLead},
	}
	leads := []network.Lead{
		{ID: "l1", AssignedAgentID: strPtr("a")},
		{ID: "l2", AssignedAgentID: strPtr("a")},
		{ID: "l3", AssignedAgentID: strPtr("d")},
		{ID: "l4"},
	}

	agents := assignment.EligibleAgents(records, leads, network.RoleAdmin)

	assert.Equal(t, []assignment.Agent{
		{ID: "a", Region: "PY", CurrentCount: 2},
		{ID: "d", Region: "PY", CurrentCount: 1},
	}, agents)
}
