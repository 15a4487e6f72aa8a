package commands

import (
	"context"
	"fmt"

	"referralnet-backend/application/commands/bus"
	"referralnet-backend/application/ports"
	"referralnet-backend/application/services"
	"referralnet-backend/pkg/utils"

	"go.uber.org/zap"
)

// NetworkService is the part of the network service the structural commands need
type NetworkService interface {
	ReparentAgent(ctx context.Context, agentID string, parentID *string) (*services.ReparentResult, error)
	RepairOrphans(ctx context.Context, includeSelfLoops bool) (ports.BatchResult, error)
	NormalizeParents(ctx context.Context) (ports.BatchResult, error)
}

// ReparentAgentCommand moves an agent below a new parent. A nil or blank
// ParentID makes the agent a root.
type ReparentAgentCommand struct {
	AgentID  string  `json:"agentId" validate:"required,max=128"`
	ParentID *string `json:"parentId" validate:"omitempty,max=128"`
}

// Validate implements bus.Command
func (c ReparentAgentCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// RepairOrphansCommand clears dangling parent pointers
type RepairOrphansCommand struct {
	IncludeSelfLoops bool `json:"includeSelfLoops"`
}

// Validate implements bus.Command
func (c RepairOrphansCommand) Validate() error {
	return nil
}

// NormalizeParentsCommand rewrites blank parent ids to null
type NormalizeParentsCommand struct{}

// Validate implements bus.Command
func (c NormalizeParentsCommand) Validate() error {
	return nil
}

// ReparentAgentHandler handles ReparentAgentCommand
type ReparentAgentHandler struct {
	service NetworkService
	logger  *zap.Logger
}

// NewReparentAgentHandler creates a new handler instance
func NewReparentAgentHandler(service NetworkService, logger *zap.Logger) *ReparentAgentHandler {
	return &ReparentAgentHandler{service: service, logger: logger}
}

// Handle executes the reparent command
func (h *ReparentAgentHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(ReparentAgentCommand)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}
	return h.service.ReparentAgent(ctx, c.AgentID, c.ParentID)
}

// RepairOrphansHandler handles RepairOrphansCommand
type RepairOrphansHandler struct {
	service NetworkService
	logger  *zap.Logger
}

// NewRepairOrphansHandler creates a new handler instance
func NewRepairOrphansHandler(service NetworkService, logger *zap.Logger) *RepairOrphansHandler {
	return &RepairOrphansHandler{service: service, logger: logger}
}

// Handle executes the orphan repair
func (h *RepairOrphansHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(RepairOrphansCommand)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}
	result, err := h.service.RepairOrphans(ctx, c.IncludeSelfLoops)
	if err != nil {
		return nil, err
	}
	if len(result.Failures) > 0 {
		h.logger.Warn("Orphan repair left failures", zap.Int("failed", len(result.Failures)))
	}
	return result, nil
}

// NormalizeParentsHandler handles NormalizeParentsCommand
type NormalizeParentsHandler struct {
	service NetworkService
}

// NewNormalizeParentsHandler creates a new handler instance
func NewNormalizeParentsHandler(service NetworkService) *NormalizeParentsHandler {
	return &NormalizeParentsHandler{service: service}
}

// Handle executes the normalization
func (h *NormalizeParentsHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	if _, ok := cmd.(NormalizeParentsCommand); !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}
	return h.service.NormalizeParents(ctx)
}
