package commands

import (
	"context"
	"fmt"

	"referralnet-backend/application/commands/bus"
	"referralnet-backend/application/services"
	"referralnet-backend/pkg/utils"

	"go.uber.org/zap"
)

// LeadService is the part of the lead service the lead commands need
type LeadService interface {
	AttributeLead(ctx context.Context, leadID, agentID string) (*services.Attribution, error)
	AssignLeads(ctx context.Context, req services.AssignmentRequest) (*services.AssignmentOutcome, error)
}

// AttributeLeadCommand hands a lead to an agent and shares it with the upline
type AttributeLeadCommand struct {
	LeadID  string `json:"leadId" validate:"required,max=128"`
	AgentID string `json:"agentId" validate:"required,max=128"`
}

// Validate implements bus.Command
func (c AttributeLeadCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// AssignLeadsCommand runs round-robin assignment over unassigned leads.
// An empty Region covers every region; an empty LeadIDs covers every lead.
type AssignLeadsCommand struct {
	Region  string   `json:"region" validate:"omitempty,max=64"`
	LeadIDs []string `json:"leadIds" validate:"omitempty,max=1000,dive,required,max=128"`
	DryRun  bool     `json:"dryRun"`
}

// Validate implements bus.Command
func (c AssignLeadsCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// AttributeLeadHandler handles AttributeLeadCommand
type AttributeLeadHandler struct {
	service LeadService
}

// NewAttributeLeadHandler creates a new handler instance
func NewAttributeLeadHandler(service LeadService) *AttributeLeadHandler {
	return &AttributeLeadHandler{service: service}
}

// Handle executes the attribution
func (h *AttributeLeadHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(AttributeLeadCommand)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}
	return h.service.AttributeLead(ctx, c.LeadID, c.AgentID)
}

// AssignLeadsHandler handles AssignLeadsCommand
type AssignLeadsHandler struct {
	service LeadService
	logger  *zap.Logger
}

// NewAssignLeadsHandler creates a new handler instance
func NewAssignLeadsHandler(service LeadService, logger *zap.Logger) *AssignLeadsHandler {
	return &AssignLeadsHandler{service: service, logger: logger}
}

// Handle executes the assignment run
func (h *AssignLeadsHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(AssignLeadsCommand)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}
	outcome, err := h.service.AssignLeads(ctx, services.AssignmentRequest{
		Region:  c.Region,
		LeadIDs: c.LeadIDs,
		DryRun:  c.DryRun,
	})
	if err != nil {
		return nil, err
	}
	if outcome.DryRun {
		h.logger.Info("Assignment dry run planned",
			zap.Int("planned", len(outcome.Plan.Assignments)),
			zap.Int("unassigned", len(outcome.Plan.Unassigned)),
		)
	}
	return outcome, nil
}

// Register wires every command handler into the bus
func Register(b *bus.CommandBus, network NetworkService, leads LeadService, logger *zap.Logger) error {
	handlers := []struct {
		cmd     bus.Command
		handler bus.CommandHandler
	}{
		{ReparentAgentCommand{}, NewReparentAgentHandler(network, logger)},
		{RepairOrphansCommand{}, NewRepairOrphansHandler(network, logger)},
		{NormalizeParentsCommand{}, NewNormalizeParentsHandler(network)},
		{AttributeLeadCommand{}, NewAttributeLeadHandler(leads)},
		{AssignLeadsCommand{}, NewAssignLeadsHandler(leads, logger)},
	}
	for _, h := range handlers {
		if err := b.Register(h.cmd, h.handler); err != nil {
			return err
		}
	}
	return nil
}
