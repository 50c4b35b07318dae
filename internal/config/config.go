package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_ENV"` specify the environment variable name.
// `default:""` provides a default value if the env var is not set.
// `required:"true"` makes an environment variable mandatory.
type Config struct {
	AppEnv      string `envconfig:"APP_ENV" default:"development"` // e.g., development, staging, production
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`      // e.g., debug, info, warn, error
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`     // json or text
	LogFile     string `envconfig:"LOG_FILE"`                      // empty means stdout
	StaticData  string `envconfig:"STATIC_DATA_PATH"`              // optional YAML overriding the embedded tables
	HttpServer  ServerConfig
	GrpcServer  GrpcServerConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Marketplace MarketplaceConfig
	Provider    ProviderConfig
	Inference   InferenceConfig
	Learning    LearningConfig
	Jobs        JobsConfig
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"90s"` // listings make several upstream calls
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
}

// GrpcServerConfig holds gRPC server-specific configurations.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// PostgresConfig holds PostgreSQL database connection details.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     string `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	DBName   string `envconfig:"POSTGRES_DBNAME" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// RedisConfig holds the job queue connection and stream settings.
type RedisConfig struct {
	Addr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password  string        `envconfig:"REDIS_PASSWORD"`
	Stream    string        `envconfig:"REDIS_JOB_STREAM" default:"listing:jobs:correlation"`
	Group     string        `envconfig:"REDIS_JOB_GROUP" default:"correlation-workers"`
	Consumer  string        `envconfig:"REDIS_JOB_CONSUMER"` // empty means a random consumer name
	ClaimIdle time.Duration `envconfig:"REDIS_JOB_CLAIM_IDLE" default:"5m"`
}

// MarketplaceConfig holds the taxonomy and inventory API settings.
type MarketplaceConfig struct {
	BaseURL             string        `envconfig:"MARKETPLACE_BASE_URL" required:"true"`
	AccessToken         string        `envconfig:"MARKETPLACE_ACCESS_TOKEN" required:"true"` // minted by the external OAuth refresh job
	MarketplaceID       string        `envconfig:"MARKETPLACE_ID" default:"EBAY_US"`
	CategoryTreeID      string        `envconfig:"MARKETPLACE_CATEGORY_TREE_ID" default:"0"`
	Currency            string        `envconfig:"MARKETPLACE_CURRENCY" default:"USD"`
	FulfillmentPolicyID string        `envconfig:"MARKETPLACE_FULFILLMENT_POLICY_ID"`
	PaymentPolicyID     string        `envconfig:"MARKETPLACE_PAYMENT_POLICY_ID"`
	ReturnPolicyID      string        `envconfig:"MARKETPLACE_RETURN_POLICY_ID"`
	MerchantLocationKey string        `envconfig:"MARKETPLACE_MERCHANT_LOCATION_KEY"`
	SKUPrefix           string        `envconfig:"MARKETPLACE_SKU_PREFIX" default:"LS"`
	Timeout             time.Duration `envconfig:"MARKETPLACE_TIMEOUT" default:"20s"`
}

// ProviderConfig holds the Product Data Provider client settings.
type ProviderConfig struct {
	BaseURL string        `envconfig:"PROVIDER_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"PROVIDER_API_KEY"`
	Timeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s"`
}

// InferenceConfig selects and configures the text generation backend.
type InferenceConfig struct {
	Provider string        `envconfig:"INFERENCE_PROVIDER" default:"openai"` // openai or gemini
	BaseURL  string        `envconfig:"INFERENCE_BASE_URL" default:"https://api.openai.com/v1"`
	APIKey   string        `envconfig:"INFERENCE_API_KEY"`
	Model    string        `envconfig:"INFERENCE_MODEL" default:"gpt-4o-mini"`
	Timeout  time.Duration `envconfig:"INFERENCE_TIMEOUT" default:"60s"`
}

// LearningConfig controls the aspect-miss review loop.
type LearningConfig struct {
	Enabled     bool   `envconfig:"LEARNING_ENABLED" default:"true"`
	Schedule    string `envconfig:"LEARNING_SCHEDULE" default:"@every 15m"`
	BatchSize   int    `envconfig:"LEARNING_BATCH_SIZE" default:"25"`
	MaxAttempts int    `envconfig:"LEARNING_MAX_ATTEMPTS" default:"3"`
}

// JobsConfig controls correlation workers and the stuck-job monitor.
type JobsConfig struct {
	WorkerEnabled     bool          `envconfig:"JOBS_WORKER_ENABLED" default:"true"`
	WorkerConcurrency int           `envconfig:"JOBS_WORKER_CONCURRENCY" default:"2"`
	MaxCandidates     int           `envconfig:"JOBS_MAX_CANDIDATES" default:"50"`
	MinScore          float64       `envconfig:"JOBS_MIN_SCORE" default:"0.35"`
	StuckAfter        time.Duration `envconfig:"JOBS_STUCK_AFTER" default:"30m"`
	MonitorInterval   time.Duration `envconfig:"JOBS_MONITOR_INTERVAL" default:"1m"`
}

// Load initializes the configuration from environment variables.
// It should be called once during application startup.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks constraints envconfig tags cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config: unsupported LOG_FORMAT %q (json or text)", c.LogFormat)
	}
	switch strings.ToLower(c.Inference.Provider) {
	case "openai", "gemini":
	default:
		return fmt.Errorf("config: unsupported INFERENCE_PROVIDER %q (openai or gemini)", c.Inference.Provider)
	}
	if strings.EqualFold(c.Inference.Provider, "gemini") && strings.TrimSpace(c.Inference.APIKey) == "" {
		return errors.New("config: INFERENCE_API_KEY is required for the gemini provider")
	}
	if c.Learning.BatchSize <= 0 {
		return errors.New("config: LEARNING_BATCH_SIZE must be > 0")
	}
	if c.Learning.MaxAttempts <= 0 {
		return errors.New("config: LEARNING_MAX_ATTEMPTS must be > 0")
	}
	if c.Jobs.WorkerConcurrency <= 0 {
		return errors.New("config: JOBS_WORKER_CONCURRENCY must be > 0")
	}
	if c.Jobs.MaxCandidates <= 0 {
		return errors.New("config: JOBS_MAX_CANDIDATES must be > 0")
	}
	if c.Jobs.MinScore < 0 || c.Jobs.MinScore > 1 {
		return errors.New("config: JOBS_MIN_SCORE must be between 0 and 1")
	}
	if len(c.Marketplace.SKUPrefix) > 10 {
		return errors.New("config: MARKETPLACE_SKU_PREFIX must be at most 10 characters")
	}
	return nil
}
