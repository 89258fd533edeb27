package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
)

// Config holds all configuration for ekaya-crm.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"`

	// Store selects the record store backend.
	Store StoreConfig `yaml:"store"`

	// Database configuration (PostgreSQL), used when Store.Type is "postgres".
	Database DatabaseConfig `yaml:"database"`

	// Redis is optional. When Host is set, batch locks are shared across instances.
	Redis RedisConfig `yaml:"redis"`

	// AI selects and configures the generative call gateway.
	AI AIConfig `yaml:"ai"`

	// Enrichment tunes the enrichment pipeline and batch runner.
	Enrichment EnrichmentConfig `yaml:"enrichment"`

	// Mail tunes bulk sending.
	Mail MailConfig `yaml:"mail"`

	// Credential encryption key for stored mail tokens.
	// Must be a 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"` // Secret - not in YAML
}

// StoreConfig selects the record store.
type StoreConfig struct {
	// Type is "memory" or "postgres".
	Type string `yaml:"type" env:"STORE_TYPE" env-default:"memory"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_crm"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AIConfig configures the generative call gateway.
type AIConfig struct {
	// Provider is "openai", "gemini" or "anthropic".
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:"gemini"`
	// BaseURL is used by the OpenAI-compatible provider only.
	BaseURL string `yaml:"base_url" env:"AI_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model   string `yaml:"model" env:"AI_MODEL" env-default:""`
	// SearchModel is the OpenAI-compatible model used when web search is requested.
	SearchModel string `yaml:"search_model" env:"AI_SEARCH_MODEL" env-default:"gpt-4o-search-preview"`
	APIKey      string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML

	// Timeout bounds one generative call.
	Timeout time.Duration `yaml:"timeout" env:"AI_TIMEOUT" env-default:"60s"`
	// MaxRetries for a failed call within one phase. Zero means fail fast to the fallback.
	MaxRetries int `yaml:"max_retries" env:"AI_MAX_RETRIES" env-default:"0"`
	// CircuitThreshold consecutive failures open the circuit for CircuitReset.
	CircuitThreshold int           `yaml:"circuit_threshold" env:"AI_CIRCUIT_THRESHOLD" env-default:"5"`
	CircuitReset     time.Duration `yaml:"circuit_reset" env:"AI_CIRCUIT_RESET" env-default:"30s"`
}

// EnrichmentConfig tunes the enrichment pipeline and batch runner.
type EnrichmentConfig struct {
	// MaxCandidateURLs caps the extraction fan-out per field.
	MaxCandidateURLs int `yaml:"max_candidate_urls" env:"ENRICH_MAX_URLS" env-default:"3"`
	// MaxConcurrentRows bounds row-level parallelism (1 = sequential, max 5).
	MaxConcurrentRows int `yaml:"max_concurrent_rows" env:"ENRICH_MAX_CONCURRENT_ROWS" env-default:"1"`
	// MaxGenerateCount caps the generate tool.
	MaxGenerateCount int `yaml:"max_generate_count" env:"ENRICH_MAX_GENERATE" env-default:"50"`
	// LockTTL bounds how long a table stays locked by a batch run.
	LockTTL time.Duration `yaml:"lock_ttl" env:"ENRICH_LOCK_TTL" env-default:"30m"`
}

// MailConfig tunes bulk sending.
type MailConfig struct {
	Enabled bool `yaml:"enabled" env:"MAIL_ENABLED" env-default:"false"`
	// SendDelay between recipients. Values below 200ms are raised to 200ms.
	SendDelay time.Duration `yaml:"send_delay" env:"MAIL_SEND_DELAY" env-default:"500ms"`
}

const configFile = "config.yaml"

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error: env and defaults are used.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(configFile); err == nil {
		if err := cleanenv.ReadConfig(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", configFile, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.normalize()

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// normalize lowercases enum-like settings and fills model defaults.
func (c *Config) normalize() {
	c.Store.Type = strings.ToLower(strings.TrimSpace(c.Store.Type))
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	if c.AI.Model == "" {
		c.AI.Model = DefaultModel(c.AI.Provider)
	}
	c.Database.Host = ResolveHostForDocker(c.Database.Host)
	c.Redis.Host = ResolveHostForDocker(c.Redis.Host)
	c.AI.BaseURL = ResolveURLForDocker(c.AI.BaseURL)
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o"
	case "anthropic":
		return "claude-sonnet-4-5-20250929"
	default:
		return "gemini-2.5-flash"
	}
}

// Validate checks the settings required at startup. Missing credentials are
// reported as *apperrors.ConfigurationError.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai", "gemini", "anthropic":
	default:
		return apperrors.NewConfigurationError("ai.provider", fmt.Sprintf("unsupported provider %q", c.AI.Provider))
	}
	if c.AI.APIKey == "" && !isLocalEndpoint(c.AI.BaseURL, c.AI.Provider) {
		return apperrors.NewConfigurationError("AI_API_KEY", "API key is required for provider "+c.AI.Provider)
	}

	switch c.Store.Type {
	case "memory":
	case "postgres":
		if c.Database.Database == "" {
			return apperrors.NewConfigurationError("database.database", "database name is required for the postgres store")
		}
	default:
		return apperrors.NewConfigurationError("store.type", fmt.Sprintf("unsupported store %q", c.Store.Type))
	}

	if c.Mail.Enabled && c.CredentialsKey == "" {
		return apperrors.NewConfigurationError("CREDENTIALS_KEY", "required when mail sending is enabled")
	}

	if c.Enrichment.MaxConcurrentRows < 1 || c.Enrichment.MaxConcurrentRows > 5 {
		return apperrors.NewConfigurationError("enrichment.max_concurrent_rows", "must be between 1 and 5")
	}
	return nil
}

// isLocalEndpoint allows keyless OpenAI-compatible servers on localhost (vLLM, Ollama).
func isLocalEndpoint(baseURL, provider string) bool {
	if provider != "openai" {
		return false
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "host.docker.internal"
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// Addr returns the Redis host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
