package config

import (
	"time"

	"referralnet-backend/domain/network"
)

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Upline
	MaxUplineDepth int

	// Assignment
	ExcludedAssignmentRoles []network.Role
	MaxLeadsPerRun          int

	// Repairs
	RepairBatchSize int

	// Forest cache
	ForestCacheTTL time.Duration

	// Reparent policy
	RequireParentCanRecruit bool
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MaxUplineDepth:          network.DefaultUplineDepth,
		ExcludedAssignmentRoles: []network.Role{network.RoleAdmin},
		MaxLeadsPerRun:          1000,
		RepairBatchSize:         100,
		ForestCacheTTL:          30 * time.Second,
		RequireParentCanRecruit: true,
	}
}
