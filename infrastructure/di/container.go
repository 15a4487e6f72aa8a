package di

import (
	"net/http"

	"referralnet-backend/application/commands/bus"
	querybus "referralnet-backend/application/queries/bus"
	"referralnet-backend/application/services"
	"referralnet-backend/infrastructure/config"
	"referralnet-backend/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config         *config.Config
	Logger         *zap.Logger
	Collector      *observability.Collector
	Tracer         *observability.TracerProvider
	Stores         *Stores
	NetworkService *services.NetworkService
	LeadService    *services.LeadService
	CommandBus     *bus.CommandBus
	QueryBus       *querybus.QueryBus
	Router         http.Handler
}
