package queries

import (
	"context"
	"fmt"

	"referralnet-backend/application/queries/bus"
	"referralnet-backend/application/services"
	"referralnet-backend/domain/network"
	"referralnet-backend/pkg/utils"
)

// ForestReader is the read side of the network service
type ForestReader interface {
	GetForest(ctx context.Context) (*network.Forest, error)
	IntegrityReport(ctx context.Context) (*services.IntegrityReport, error)
}

// UplineReader resolves an agent's upline against the live store
type UplineReader interface {
	ResolveUpline(ctx context.Context, agentID string) network.Upline
}

// GetForestQuery asks for the assembled referral forest
type GetForestQuery struct{}

// Validate implements bus.Query
func (q GetForestQuery) Validate() error { return nil }

// GetIntegrityReportQuery asks for a fresh structural diagnosis
type GetIntegrityReportQuery struct{}

// Validate implements bus.Query
func (q GetIntegrityReportQuery) Validate() error { return nil }

// GetUplineQuery asks for the ancestors of one agent
type GetUplineQuery struct {
	AgentID string `json:"agentId" validate:"required,max=128"`
}

// Validate implements bus.Query
func (q GetUplineQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// Register wires every query handler into the bus
func Register(b *bus.QueryBus, forests ForestReader, uplines UplineReader) error {
	if err := b.Register(GetForestQuery{}, bus.QueryHandlerFunc(func(ctx context.Context, q bus.Query) (interface{}, error) {
		return forests.GetForest(ctx)
	})); err != nil {
		return err
	}

	if err := b.Register(GetIntegrityReportQuery{}, bus.QueryHandlerFunc(func(ctx context.Context, q bus.Query) (interface{}, error) {
		return forests.IntegrityReport(ctx)
	})); err != nil {
		return err
	}

	return b.Register(GetUplineQuery{}, bus.QueryHandlerFunc(func(ctx context.Context, q bus.Query) (interface{}, error) {
		query, ok := q.(GetUplineQuery)
		if !ok {
			return nil, fmt.Errorf("unexpected query type %T", q)
		}
		return uplines.ResolveUpline(ctx, query.AgentID), nil
	}))
}
