package cli

import (
	"fmt"
	"os"
	"time"

	"referralnet-backend/domain/network"
	"referralnet-backend/infrastructure/persistence/memory"

	"gopkg.in/yaml.v3"
)

// seedFile is a snapshot of the node store
type seedFile struct {
	Agents []seedAgent `yaml:"agents"`
	Leads  []seedLead  `yaml:"leads"`
}

type seedAgent struct {
	ID           string    `yaml:"id"`
	DisplayName  string    `yaml:"displayName"`
	Role         string    `yaml:"role"`
	Region       string    `yaml:"region"`
	IsActive     *bool     `yaml:"isActive"`
	ParentID     *string   `yaml:"parentId"`
	CanRecruit   bool      `yaml:"canRecruit"`
	ReferralCode *string   `yaml:"referralCode"`
	CreatedAt    time.Time `yaml:"createdAt"`
}

type seedLead struct {
	ID              string    `yaml:"id"`
	Region          string    `yaml:"region"`
	AssignedAgentID *string   `yaml:"assignedAgentId"`
	RefCode         *string   `yaml:"refCode"`
	CreatedAt       time.Time `yaml:"createdAt"`
}

// loadSeed reads a YAML snapshot into the memory store. Agents are active
// unless isActive is set to false.
func loadSeed(path string, store *memory.Store) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	agents := make([]network.AgentRecord, 0, len(seed.Agents))
	for _, a := range seed.Agents {
		role := network.Role(a.Role)
		if a.Role == "" {
			role = network.RoleAgent
		}
		if !role.IsValid() {
			return fmt.Errorf("seed agent %s has unknown role %q", a.ID, a.Role)
		}
		agents = append(agents, network.AgentRecord{
			ID:           a.ID,
			DisplayName:  a.DisplayName,
			Role:         role,
			Region:       a.Region,
			IsActive:     a.IsActive == nil || *a.IsActive,
			ParentID:     a.ParentID,
			CanRecruit:   a.CanRecruit,
			ReferralCode: a.ReferralCode,
			CreatedAt:    a.CreatedAt,
		})
	}

	leads := make([]network.Lead, 0, len(seed.Leads))
	for _, l := range seed.Leads {
		leads = append(leads, network.Lead{
			ID:              l.ID,
			Region:          l.Region,
			AssignedAgentID: l.AssignedAgentID,
			RefCode:         l.RefCode,
			CreatedAt:       l.CreatedAt,
		})
	}

	store.Seed(agents, leads)
	return nil
}
