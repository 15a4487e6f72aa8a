package handlers

import (
	"fmt"
	"net/http"

	"referralnet-backend/application/commands"
	"referralnet-backend/application/commands/bus"
	"referralnet-backend/application/queries"
	querybus "referralnet-backend/application/queries/bus"
	"referralnet-backend/domain/network"
	"referralnet-backend/pkg/auth"
	"referralnet-backend/pkg/common"
	apperrors "referralnet-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NetworkHandler serves the forest, integrity and repair endpoints
type NetworkHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *apperrors.ErrorHandler
	logger     *zap.Logger
}

// NewNetworkHandler creates a new network handler
func NewNetworkHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errorHandler *apperrors.ErrorHandler, logger *zap.Logger) *NetworkHandler {
	return &NetworkHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		logger:     logger,
	}
}

// GetForest handles GET /network/forest
func (h *NetworkHandler) GetForest(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetForestQuery{})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	forest, ok := result.(*network.Forest)
	if !ok {
		h.errors.Handle(w, r, fmt.Errorf("unexpected forest result %T", result))
		return
	}
	common.RespondWithMeta(w, r, http.StatusOK, NewForestResponse(forest))
}

// GetIntegrity handles GET /network/integrity
func (h *NetworkHandler) GetIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.queryBus.Ask(r.Context(), queries.GetIntegrityReportQuery{})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondWithMeta(w, r, http.StatusOK, report)
}

// ReparentAgent handles PUT /network/agents/{agentID}/parent
func (h *NetworkHandler) ReparentAgent(w http.ResponseWriter, r *http.Request) {
	var req ReparentRequest
	if err := decode(w, r, &req, false); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	agentID := chi.URLParam(r, "agentID")
	result, err := h.commandBus.Send(r.Context(), commands.ReparentAgentCommand{
		AgentID:  agentID,
		ParentID: req.ParentID,
	})
	if err != nil {
		h.logger.Warn("Reparent rejected",
			zap.String("agentId", agentID),
			zap.String("actorId", auth.ActorID(r.Context())),
			zap.Error(err),
		)
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondWithMeta(w, r, http.StatusOK, result)
}

// RepairOrphans handles POST /network/repairs/orphans
func (h *NetworkHandler) RepairOrphans(w http.ResponseWriter, r *http.Request) {
	var req RepairOrphansRequest
	if err := decode(w, r, &req, true); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.RepairOrphansCommand{
		IncludeSelfLoops: req.IncludeSelfLoops,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondWithMeta(w, r, http.StatusOK, result)
}

// NormalizeParents handles POST /network/repairs/normalize-parents
func (h *NetworkHandler) NormalizeParents(w http.ResponseWriter, r *http.Request) {
	result, err := h.commandBus.Send(r.Context(), commands.NormalizeParentsCommand{})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondWithMeta(w, r, http.StatusOK, result)
}

// GetUpline handles GET /agents/{agentID}/upline
func (h *NetworkHandler) GetUpline(w http.ResponseWriter, r *http.Request) {
	upline, err := h.queryBus.Ask(r.Context(), queries.GetUplineQuery{
		AgentID: chi.URLParam(r, "agentID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondWithMeta(w, r, http.StatusOK, upline)
}
