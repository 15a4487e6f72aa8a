package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"referralnet-backend/application/commands"
	"referralnet-backend/application/commands/bus"
	"referralnet-backend/application/ports"
	"referralnet-backend/application/queries"
	querybus "referralnet-backend/application/queries/bus"
	"referralnet-backend/application/services"
	"referralnet-backend/infrastructure/config"
	"referralnet-backend/infrastructure/messaging/eventbridge"
	"referralnet-backend/infrastructure/persistence/decorators"
	"referralnet-backend/infrastructure/persistence/dynamodb"
	"referralnet-backend/infrastructure/persistence/memory"
	"referralnet-backend/infrastructure/persistence/supabase"
	"referralnet-backend/interfaces/http/rest"
	"referralnet-backend/pkg/auth"
	"referralnet-backend/pkg/errors"
	"referralnet-backend/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// developmentJWTSecret signs local tokens when JWT_SECRET is unset outside production
const developmentJWTSecret = "development-secret-change-in-production"

// Stores is the decorated node store selected by STORE_BACKEND
type Stores struct {
	Backend string
	Agents  ports.AgentRepository
	Leads   ports.LeadRepository
	Breaker *gobreaker.CircuitBreaker
	// Memory is set only for the memory backend, so tools can seed it
	Memory *memory.Store
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", cfg.Environment)), nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideCollector creates the Prometheus collector
func ProvideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(cfg.MetricsNamespace)
}

// ProvideCloudWatchMetrics creates the CloudWatch publisher. With CloudWatch
// disabled every call is a no-op.
func ProvideCloudWatchMetrics(awsCfg aws.Config, cfg *config.Config, logger *zap.Logger) *observability.CloudWatchMetrics {
	namespace := fmt.Sprintf("%s/%s", cfg.CloudWatchNamespace, cfg.Environment)
	if !cfg.EnableCloudWatch {
		return observability.NewCloudWatchMetrics(namespace, nil, logger)
	}
	return observability.NewCloudWatchMetrics(namespace, awscloudwatch.NewFromConfig(awsCfg), logger)
}

// ProvideTracing installs the OTLP tracer provider when tracing is enabled
func ProvideTracing(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	if !cfg.EnableTracing {
		return nil, func() {}, nil
	}

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: "referralnet",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRate:  cfg.TraceSampleRate,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

// ProvideStores builds the configured store adapters and wraps them with
// instrumentation and a shared circuit breaker
func ProvideStores(awsCfg aws.Config, cfg *config.Config, collector *observability.Collector, logger *zap.Logger) (*Stores, error) {
	stores := &Stores{Backend: cfg.StoreBackend}

	var agents ports.AgentRepository
	var leads ports.LeadRepository

	switch cfg.StoreBackend {
	case config.StoreDynamoDB:
		client := awsdynamodb.NewFromConfig(awsCfg)
		tables := dynamodb.Tables{
			Agents:      cfg.AgentsTable,
			Leads:       cfg.LeadsTable,
			RegionIndex: cfg.RegionIndex,
		}
		agents = dynamodb.NewAgentRepository(client, tables, cfg.RepairBatchSize, logger)
		leads = dynamodb.NewLeadRepository(client, tables, logger)
	case config.StoreSupabase:
		client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, err
		}
		agents = supabase.NewAgentRepository(client, cfg.RepairBatchSize, logger)
		leads = supabase.NewLeadRepository(client, logger)
	case config.StoreMemory:
		store := memory.NewStore()
		stores.Memory = store
		agents, leads = store, store
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	breakerCfg := decorators.DefaultBreakerConfig("store-" + cfg.StoreBackend)
	if cfg.BreakerMaxFailures > 0 {
		breakerCfg.MaxFailures = cfg.BreakerMaxFailures
	}
	if cfg.BreakerTimeout > 0 {
		breakerCfg.Timeout = cfg.BreakerTimeout
	}
	stores.Breaker = decorators.NewBreaker(breakerCfg, collector, logger)

	stores.Agents = decorators.NewBreakerAgentRepository(
		decorators.NewInstrumentedAgentRepository(agents, cfg.StoreBackend, collector).WithTimeout(cfg.StoreTimeout),
		stores.Breaker,
	)
	stores.Leads = decorators.NewBreakerLeadRepository(
		decorators.NewInstrumentedLeadRepository(leads, cfg.StoreBackend, collector).WithTimeout(cfg.StoreTimeout),
		stores.Breaker,
	)

	logger.Info("Node store ready", zap.String("backend", cfg.StoreBackend))
	return stores, nil
}

// ProvideEventPublisher publishes to EventBridge, or to the log when events
// are disabled
func ProvideEventPublisher(awsCfg aws.Config, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if !cfg.EnableEvents {
		return eventbridge.NewLogPublisher(logger)
	}
	return eventbridge.NewPublisher(
		awseventbridge.NewFromConfig(awsCfg),
		cfg.EventBusName,
		cfg.EventSource,
		logger,
	)
}

// ProvideInMemoryCache creates the forest cache
func ProvideInMemoryCache(cfg *config.Config) (*InMemoryCache, func()) {
	cache := NewInMemoryCache(cfg.ForestCacheTTL)
	return cache, cache.Close
}

// ProvideNetworkService creates the network service
func ProvideNetworkService(
	stores *Stores,
	cache *InMemoryCache,
	publisher ports.EventPublisher,
	collector *observability.Collector,
	cloudwatch *observability.CloudWatchMetrics,
	cfg *config.Config,
	logger *zap.Logger,
) *services.NetworkService {
	return services.NewNetworkService(
		stores.Agents,
		stores.Leads,
		cache,
		publisher,
		collector,
		cloudwatch,
		cfg.ToDomainConfig(),
		logger,
	)
}

// ProvideLeadService creates the lead service
func ProvideLeadService(
	stores *Stores,
	networkService *services.NetworkService,
	publisher ports.EventPublisher,
	collector *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) *services.LeadService {
	return services.NewLeadService(
		stores.Agents,
		stores.Leads,
		networkService,
		publisher,
		collector,
		cfg.ToDomainConfig(),
		logger,
	)
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(
	networkService *services.NetworkService,
	leadService *services.LeadService,
	cloudwatch *observability.CloudWatchMetrics,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(
		bus.LoggingMiddleware(logger),
		bus.MetricsMiddleware(cloudwatch),
	)
	if err := commands.Register(commandBus, networkService, leadService, logger); err != nil {
		return nil, fmt.Errorf("failed to register command handlers: %w", err)
	}
	return commandBus, nil
}

// ProvideQueryBus creates a query bus with registered handlers
func ProvideQueryBus(
	networkService *services.NetworkService,
	leadService *services.LeadService,
	collector *observability.Collector,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus(querybus.MetricsMiddleware(collector))
	if err := queries.Register(queryBus, networkService, leadService); err != nil {
		return nil, fmt.Errorf("failed to register query handlers: %w", err)
	}
	return queryBus, nil
}

// ProvideJWTValidator creates the bearer token validator
func ProvideJWTValidator(cfg *config.Config, logger *zap.Logger) (*auth.JWTValidator, error) {
	secret := cfg.JWTSecret
	if secret == "" && !cfg.IsProduction() {
		logger.Warn("JWT_SECRET not set, using the development secret")
		secret = developmentJWTSecret
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     secret,
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
	})
}

// ProvideErrorHandler creates the HTTP error handler
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *errors.ErrorHandler {
	return errors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideRouter builds the HTTP handler
func ProvideRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	validator *auth.JWTValidator,
	errorHandler *errors.ErrorHandler,
	collector *observability.Collector,
	stores *Stores,
	cfg *config.Config,
	logger *zap.Logger,
) http.Handler {
	return rest.NewRouter(rest.RouterConfig{
		CommandBus:     commandBus,
		QueryBus:       queryBus,
		Validator:      validator,
		ErrorHandler:   errorHandler,
		Metrics:        collector,
		Ready:          breakerReady(stores.Breaker),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableCORS:     cfg.EnableCORS,
		EnableMetrics:  cfg.EnableMetrics,
		Logger:         logger,
	}).Setup()
}

// breakerReady reports not ready while the store circuit is open
func breakerReady(cb *gobreaker.CircuitBreaker) func(context.Context) error {
	return func(ctx context.Context) error {
		if cb.State() == gobreaker.StateOpen {
			return errors.NewUnavailableError(cb.Name()).WithCode("CIRCUIT_OPEN")
		}
		return nil
	}
}
