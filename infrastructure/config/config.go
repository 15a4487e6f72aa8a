package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	domainconfig "referralnet-backend/domain/config"
	"referralnet-backend/domain/network"

	"gopkg.in/yaml.v3"
)

// Store backends
const (
	StoreDynamoDB = "dynamodb"
	StoreSupabase = "supabase"
	StoreMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"serverAddress"`
	Environment   string `yaml:"environment"`

	// Store selection
	StoreBackend string `yaml:"storeBackend"`

	// AWS configuration
	AWSRegion    string `yaml:"awsRegion"`
	AgentsTable  string `yaml:"agentsTable"`
	LeadsTable   string `yaml:"leadsTable"`
	RegionIndex  string `yaml:"regionIndex"` // GSI on leads by region
	EventBusName string `yaml:"eventBusName"`
	EventSource  string `yaml:"eventSource"`

	// Supabase configuration
	SupabaseURL string `yaml:"supabaseUrl"`
	SupabaseKey string `yaml:"-"`

	// Logging
	LogLevel string `yaml:"logLevel"`

	// Authentication
	JWTSecret   string `yaml:"-"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`

	// Observability
	MetricsNamespace    string  `yaml:"metricsNamespace"`
	CloudWatchNamespace string  `yaml:"cloudWatchNamespace"`
	OTLPEndpoint        string  `yaml:"otlpEndpoint"`
	TraceSampleRate     float64 `yaml:"traceSampleRate"`

	// Resilience
	BreakerMaxFailures uint32        `yaml:"breakerMaxFailures"`
	BreakerTimeout     time.Duration `yaml:"breakerTimeout"`
	StoreTimeout       time.Duration `yaml:"storeTimeout"`

	// Engine tunables
	MaxUplineDepth          int           `yaml:"maxUplineDepth"`
	ExcludedRoles           []string      `yaml:"excludedRoles"`
	MaxLeadsPerRun          int           `yaml:"maxLeadsPerRun"`
	RepairBatchSize         int           `yaml:"repairBatchSize"`
	ForestCacheTTL          time.Duration `yaml:"forestCacheTtl"`
	RequireParentCanRecruit bool          `yaml:"requireParentCanRecruit"`

	// CORS
	AllowedOrigins []string `yaml:"allowedOrigins"`

	// Feature flags
	EnableMetrics    bool `yaml:"enableMetrics"`
	EnableTracing    bool `yaml:"enableTracing"`
	EnableCORS       bool `yaml:"enableCORS"`
	EnableCloudWatch bool `yaml:"enableCloudWatch"`
	EnableEvents     bool `yaml:"enableEvents"`
}

// defaults returns the configuration used when neither a file nor the
// environment says otherwise
func defaults() *Config {
	domain := domainconfig.DefaultDomainConfig()
	excluded := make([]string, len(domain.ExcludedAssignmentRoles))
	for i, r := range domain.ExcludedAssignmentRoles {
		excluded[i] = string(r)
	}
	return &Config{
		ServerAddress:           ":8080",
		Environment:             "development",
		StoreBackend:            StoreDynamoDB,
		AWSRegion:               "us-west-2",
		AgentsTable:             "referralnet-agents",
		LeadsTable:              "referralnet-leads",
		RegionIndex:             "RegionIndex",
		EventBusName:            "referralnet-events",
		EventSource:             "referralnet.network",
		LogLevel:                "info",
		JWTIssuer:               "referralnet",
		MetricsNamespace:        "referralnet",
		CloudWatchNamespace:     "ReferralNet",
		TraceSampleRate:         0.1,
		BreakerMaxFailures:      5,
		BreakerTimeout:          30 * time.Second,
		StoreTimeout:            5 * time.Second,
		MaxUplineDepth:          domain.MaxUplineDepth,
		ExcludedRoles:           excluded,
		MaxLeadsPerRun:          domain.MaxLeadsPerRun,
		RepairBatchSize:         domain.RepairBatchSize,
		ForestCacheTTL:          domain.ForestCacheTTL,
		RequireParentCanRecruit: domain.RequireParentCanRecruit,
		AllowedOrigins:          []string{"*"},
		EnableMetrics:           true,
		EnableCORS:              true,
		EnableEvents:            true,
	}
}

// LoadConfig builds configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ServerAddress = getEnv("SERVER_ADDRESS", cfg.ServerAddress)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", cfg.StoreBackend))

	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.AgentsTable = getEnv("AGENTS_TABLE", cfg.AgentsTable)
	cfg.LeadsTable = getEnv("LEADS_TABLE", cfg.LeadsTable)
	cfg.RegionIndex = getEnv("REGION_INDEX", cfg.RegionIndex)
	cfg.EventBusName = getEnv("EVENT_BUS_NAME", cfg.EventBusName)
	cfg.EventSource = getEnv("EVENT_SOURCE", cfg.EventSource)

	cfg.SupabaseURL = getEnv("SUPABASE_URL", cfg.SupabaseURL)
	cfg.SupabaseKey = getEnv("SUPABASE_SERVICE_ROLE_KEY", getEnv("SUPABASE_KEY", cfg.SupabaseKey))

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTAudience = getEnv("JWT_AUDIENCE", cfg.JWTAudience)

	cfg.MetricsNamespace = getEnv("METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.CloudWatchNamespace = getEnv("CLOUDWATCH_NAMESPACE", cfg.CloudWatchNamespace)
	cfg.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.TraceSampleRate = getEnvFloat("TRACE_SAMPLE_RATE", cfg.TraceSampleRate)

	cfg.BreakerMaxFailures = uint32(getEnvInt("BREAKER_MAX_FAILURES", int(cfg.BreakerMaxFailures)))
	cfg.BreakerTimeout = getEnvDuration("BREAKER_TIMEOUT", cfg.BreakerTimeout)
	cfg.StoreTimeout = getEnvDuration("STORE_TIMEOUT", cfg.StoreTimeout)

	cfg.MaxUplineDepth = getEnvInt("MAX_UPLINE_DEPTH", cfg.MaxUplineDepth)
	cfg.ExcludedRoles = getEnvList("EXCLUDED_ASSIGNMENT_ROLES", cfg.ExcludedRoles)
	cfg.MaxLeadsPerRun = getEnvInt("MAX_LEADS_PER_RUN", cfg.MaxLeadsPerRun)
	cfg.RepairBatchSize = getEnvInt("REPAIR_BATCH_SIZE", cfg.RepairBatchSize)
	cfg.ForestCacheTTL = getEnvDuration("FOREST_CACHE_TTL", cfg.ForestCacheTTL)
	cfg.RequireParentCanRecruit = getEnvBool("REQUIRE_PARENT_CAN_RECRUIT", cfg.RequireParentCanRecruit)

	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", cfg.AllowedOrigins)

	cfg.EnableMetrics = getEnvBool("ENABLE_METRICS", cfg.EnableMetrics)
	cfg.EnableTracing = getEnvBool("ENABLE_TRACING", cfg.EnableTracing)
	cfg.EnableCORS = getEnvBool("ENABLE_CORS", cfg.EnableCORS)
	cfg.EnableCloudWatch = getEnvBool("ENABLE_CLOUDWATCH", cfg.EnableCloudWatch)
	cfg.EnableEvents = getEnvBool("ENABLE_EVENTS", cfg.EnableEvents)

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreDynamoDB:
		if c.AgentsTable == "" || c.LeadsTable == "" {
			return fmt.Errorf("AGENTS_TABLE and LEADS_TABLE are required for the dynamodb store")
		}
	case StoreSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for the supabase store")
		}
	case StoreMemory:
		if c.IsProduction() {
			return fmt.Errorf("the memory store cannot be used in production")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.MaxUplineDepth < 1 {
		return fmt.Errorf("MAX_UPLINE_DEPTH must be positive, got %d", c.MaxUplineDepth)
	}
	if c.RepairBatchSize < 1 || c.RepairBatchSize > 100 {
		return fmt.Errorf("REPAIR_BATCH_SIZE must be between 1 and 100, got %d", c.RepairBatchSize)
	}
	for _, r := range c.ExcludedRoles {
		if !network.Role(r).IsValid() {
			return fmt.Errorf("EXCLUDED_ASSIGNMENT_ROLES contains unknown role %q", r)
		}
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATE must be between 0 and 1, got %v", c.TraceSampleRate)
	}

	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.EnableEvents && c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}

	return nil
}

// ToDomainConfig extracts the engine tunables
func (c *Config) ToDomainConfig() *domainconfig.DomainConfig {
	domain := domainconfig.DefaultDomainConfig()
	domain.MaxUplineDepth = c.MaxUplineDepth
	domain.MaxLeadsPerRun = c.MaxLeadsPerRun
	domain.RepairBatchSize = c.RepairBatchSize
	domain.ForestCacheTTL = c.ForestCacheTTL
	domain.RequireParentCanRecruit = c.RequireParentCanRecruit
	domain.ExcludedAssignmentRoles = make([]network.Role, len(c.ExcludedRoles))
	for i, r := range c.ExcludedRoles {
		domain.ExcludedAssignmentRoles[i] = network.Role(r)
	}
	return domain
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("30s") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string, defaultValue []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
