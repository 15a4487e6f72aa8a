package handlers

import (
	"net/http"

	"referralnet-backend/application/commands"
	"referralnet-backend/application/commands/bus"
	"referralnet-backend/pkg/common"
	apperrors "referralnet-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// LeadHandler serves lead attribution and round-robin assignment
type LeadHandler struct {
	commandBus *bus.CommandBus
	errors     *apperrors.ErrorHandler
	logger     *zap.Logger
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(commandBus *bus.CommandBus, errorHandler *apperrors.ErrorHandler, logger *zap.Logger) *LeadHandler {
	return &LeadHandler{
		commandBus: commandBus,
		errors:     errorHandler,
		logger:     logger,
	}
}

// AttributeLead handles POST /leads/{leadID}/attribution
func (h *LeadHandler) AttributeLead(w http.ResponseWriter, r *http.Request) {
	var req AttributeLeadRequest
	if err := decode(w, r, &req, false); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.AttributeLeadCommand{
		LeadID:  chi.URLParam(r, "leadID"),
		AgentID: req.AgentID,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondWithMeta(w, r, http.StatusOK, result)
}

// AssignLeads handles POST /leads/assignments
func (h *LeadHandler) AssignLeads(w http.ResponseWriter, r *http.Request) {
	var req AssignLeadsRequest
	if err := decode(w, r, &req, true); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.AssignLeadsCommand{
		Region:  req.Region,
		LeadIDs: req.LeadIDs,
		DryRun:  req.DryRun,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.logger.Info("Lead assignment run finished",
		zap.String("region", req.Region),
		zap.Bool("dryRun", req.DryRun),
	)
	common.RespondWithMeta(w, r, http.StatusOK, result)
}
