//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"referralnet-backend/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideCollector,
	ProvideCloudWatchMetrics,
	ProvideTracing,
	ProvideStores,
	ProvideEventPublisher,
	ProvideInMemoryCache,
	ProvideNetworkService,
	ProvideLeadService,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideJWTValidator,
	ProvideErrorHandler,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
