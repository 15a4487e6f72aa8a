// Package assignment distributes unassigned leads across agents of the same
// region in round-robin order, least-loaded agents first.
package assignment

import (
	"context"
	"errors"
	"sort"
	"strings"

	"referralnet-backend/domain/network"
)

// Agent is an eligible assignee with its current load.
type Agent struct {
	ID           string `json:"id"`
	Region       string `json:"region"`
	CurrentCount int    `json:"currentCount"`
}

// Assignment pairs one lead with the agent chosen for it.
type Assignment struct {
	LeadID  string `json:"leadId"`
	AgentID string `json:"agentId"`
	Region  string `json:"region"`
}

// Plan is the pure outcome of round-robin distribution, before any write.
type Plan struct {
	Assignments []Assignment `json:"assignments"`
	// Unassigned lists leads whose region has no eligible agent.
	Unassigned []string `json:"unassigned"`
	// Counts holds each agent's load after the plan is applied.
	Counts map[string]int `json:"counts"`
}

// ReasonAlreadyAssigned marks a lead another writer claimed first
const ReasonAlreadyAssigned = "already assigned"

// Failure records one assignment that could not be persisted.
type Failure struct {
	LeadID string `json:"leadId"`
	Reason string `json:"reason"`
}

// Result is the outcome of executing a plan.
type Result struct {
	AssignedCount int            `json:"assignedCount"`
	Assignments   []Assignment   `json:"assignments"`
	Failures      []Failure      `json:"failures"`
	Unassigned    []string       `json:"unassigned"`
	Counts        map[string]int `json:"counts"`
	// AssignedThisRun counts successful assignments per agent in this run.
	AssignedThisRun map[string]int `json:"assignedThisRun"`
}

// Writer persists a single assignment. The write must not replace an owner
// set since the leads were read.
type Writer interface {
	AssignUnassignedLead(ctx context.Context, leadID, agentID string) error
}

// NormalizeRegion makes region keys comparable.
func NormalizeRegion(region string) string {
	return strings.ToUpper(strings.TrimSpace(region))
}

// EligibleAgents selects active agents whose role is not excluded and
// computes their current load from the assigned leads.
func EligibleAgents(records []network.AgentRecord, leads []network.Lead, excluded ...network.Role) []Agent {
	skip := make(map[network.Role]bool, len(excluded))
	for _, role := range excluded {
		skip[role] = true
	}

	load := make(map[string]int)
	for _, lead := range leads {
		if owner := lead.AssignedTo(); owner != "" {
			load[owner]++
		}
	}

	seen := make(map[string]bool)
	var agents []Agent
	for _, r := range records {
		if !r.IsActive || skip[r.Role] || r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		agents = append(agents, Agent{
			ID:           r.ID,
			Region:       NormalizeRegion(r.Region),
			CurrentCount: load[r.ID],
		})
	}
	return agents
}

// PlanRoundRobin partitions leads and agents by region. Within a region,
// agents are ordered by ascending current count, ties kept in enumeration
// order, and leads are handed out in rotation over that order. Leads that
// are already assigned are ignored.
func PlanRoundRobin(leads []network.Lead, agents []Agent) Plan {
	plan := Plan{
		Assignments: []Assignment{},
		Unassigned:  []string{},
		Counts:      make(map[string]int, len(agents)),
	}

	agentsByRegion := make(map[string][]Agent)
	for _, a := range agents {
		region := NormalizeRegion(a.Region)
		agentsByRegion[region] = append(agentsByRegion[region], a)
		plan.Counts[a.ID] = a.CurrentCount
	}

	leadsByRegion := make(map[string][]network.Lead)
	var regions []string
	for _, lead := range leads {
		if lead.IsAssigned() {
			continue
		}
		region := NormalizeRegion(lead.Region)
		if _, ok := leadsByRegion[region]; !ok {
			regions = append(regions, region)
		}
		leadsByRegion[region] = append(leadsByRegion[region], lead)
	}
	sort.Strings(regions)

	for _, region := range regions {
		regionLeads := leadsByRegion[region]
		pool := agentsByRegion[region]
		if len(pool) == 0 {
			for _, lead := range regionLeads {
				plan.Unassigned = append(plan.Unassigned, lead.ID)
			}
			continue
		}

		ordered := append([]Agent(nil), pool...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].CurrentCount < ordered[j].CurrentCount
		})

		for i, lead := range regionLeads {
			chosen := ordered[i%len(ordered)]
			plan.Assignments = append(plan.Assignments, Assignment{
				LeadID:  lead.ID,
				AgentID: chosen.ID,
				Region:  region,
			})
			plan.Counts[chosen.ID]++
		}
	}

	return plan
}

// Execute writes every planned assignment. A failed write, or a lead that
// gained an owner after it was read, is recorded and its count increment is
// reverted; the remaining assignments still run.
func Execute(ctx context.Context, writer Writer, plan Plan) Result {
	result := Result{
		Assignments:     []Assignment{},
		Failures:        []Failure{},
		Unassigned:      plan.Unassigned,
		Counts:          make(map[string]int, len(plan.Counts)),
		AssignedThisRun: make(map[string]int),
	}
	for id, count := range plan.Counts {
		result.Counts[id] = count
	}

	for _, a := range plan.Assignments {
		if err := writer.AssignUnassignedLead(ctx, a.LeadID, a.AgentID); err != nil {
			result.Counts[a.AgentID]--
			reason := err.Error()
			if errors.Is(err, network.ErrLeadAlreadyAssigned) {
				reason = ReasonAlreadyAssigned
			}
			result.Failures = append(result.Failures, Failure{LeadID: a.LeadID, Reason: reason})
			continue
		}
		result.AssignedCount++
		result.AssignedThisRun[a.AgentID]++
		result.Assignments = append(result.Assignments, a)
	}

	return result
}
