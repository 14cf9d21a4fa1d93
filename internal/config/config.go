// Package config loads every pipeline setting from the environment,
// one nested struct per concern. A `.env` file is honored in
// development via godotenv in the command entrypoints.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Env      Environment `envconfig:"ENV" default:"development"`
	LogLevel string      `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool        `envconfig:"DEBUG" default:"false"`

	// Application
	App AppConfig

	// Server
	Server ServerConfig

	// Database (optional coverage mirror)
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Temporal
	Temporal TemporalConfig

	// Claude AI
	Claude ClaudeConfig

	// Object storage (evidence uploads)
	Storage StorageConfig

	// Crawl
	Crawl CrawlConfig

	// Target authentication
	Auth AuthConfig

	// Planner
	Planner PlannerConfig

	// Executor
	Executor ExecutorConfig

	// Coverage registry
	Coverage CoverageConfig

	// Reports
	Report ReportConfig

	// Rate Limits
	RateLimits RateLimitConfig

	// Security
	Security SecurityConfig
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"qaengine"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"APP_LOG_LEVEL" default:"info"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxRequestSize  int64         `envconfig:"SERVER_MAX_REQUEST_SIZE" default:"10485760"` // 10MB
}

// DatabaseConfig holds PostgreSQL settings for the optional coverage
// mirror. The on-disk registry.json stays authoritative; Postgres is
// an indexed query surface for the API.
type DatabaseConfig struct {
	Enabled         bool          `envconfig:"DB_ENABLED" default:"false"`
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"qaengine"`
	Password        string        `envconfig:"DB_PASSWORD" default:""`
	Database        string        `envconfig:"DB_NAME" default:"qaengine"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"1m"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Enabled      bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Host         string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port         int           `envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `envconfig:"REDIS_PASSWORD" default:""`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REDIS_MIN_IDLE_CONNS" default:"5"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Addr returns Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TemporalConfig holds Temporal settings
type TemporalConfig struct {
	Host        string `envconfig:"TEMPORAL_HOST" default:"localhost"`
	Port        int    `envconfig:"TEMPORAL_PORT" default:"7233"`
	Namespace   string `envconfig:"TEMPORAL_NAMESPACE" default:"qaengine"`
	TaskQueue   string `envconfig:"TEMPORAL_TASK_QUEUE" default:"qaengine-tasks"`
	WorkerCount int    `envconfig:"TEMPORAL_WORKER_COUNT" default:"4"`
}

// Addr returns Temporal address
func (c TemporalConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Address returns Temporal address (alias for Addr)
func (c TemporalConfig) Address() string {
	return c.Addr()
}

// ClaudeConfig holds Claude AI settings. An empty API key disables the
// LLM client entirely: the planner falls back to its deterministic
// plan, the executor's recovery returns skip, and ai_evaluate fails
// with low confidence.
type ClaudeConfig struct {
	APIKey        string        `envconfig:"ANTHROPIC_API_KEY" default:""`
	Model         string        `envconfig:"CLAUDE_MODEL" default:"claude-sonnet-4-20250514"`
	MaxTokens     int           `envconfig:"CLAUDE_MAX_TOKENS" default:"8192"`
	Timeout       time.Duration `envconfig:"CLAUDE_TIMEOUT" default:"120s"`
	RateLimitRPM  int           `envconfig:"CLAUDE_RATE_LIMIT_RPM" default:"50"`
	CacheTTL      time.Duration `envconfig:"CLAUDE_CACHE_TTL" default:"24h"`
	CacheSize     int           `envconfig:"CLAUDE_CACHE_SIZE" default:"1000"`
	MaxRetries    int           `envconfig:"CLAUDE_MAX_RETRIES" default:"3"`
	EnableCaching bool          `envconfig:"CLAUDE_ENABLE_CACHING" default:"true"`
}

// Enabled reports whether an LLM client can be constructed at all.
func (c ClaudeConfig) Enabled() bool {
	return c.APIKey != ""
}

// StorageConfig holds object storage settings for evidence uploads.
type StorageConfig struct {
	Enabled        bool   `envconfig:"STORAGE_ENABLED" default:"false"`
	Type           string `envconfig:"STORAGE_TYPE" default:"minio"` // minio, s3
	Endpoint       string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKey      string `envconfig:"STORAGE_ACCESS_KEY" default:"minioadmin"`
	SecretKey      string `envconfig:"STORAGE_SECRET_KEY" default:"minioadmin"`
	Bucket         string `envconfig:"STORAGE_BUCKET" default:"qaengine"`
	Region         string `envconfig:"STORAGE_REGION" default:"us-east-1"`
	UseSSL         bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
	ScreenshotPath string `envconfig:"STORAGE_SCREENSHOT_PATH" default:"screenshots"`
	ReportPath     string `envconfig:"STORAGE_REPORT_PATH" default:"reports"`
	ArtifactPath   string `envconfig:"STORAGE_ARTIFACT_PATH" default:"artifacts"`
}

// CrawlConfig controls site discovery.
type CrawlConfig struct {
	TargetURL       string   `envconfig:"QA_TARGET_URL" default:""`
	MaxPages        int      `envconfig:"QA_MAX_PAGES" default:"30"`
	MaxDepth        int      `envconfig:"QA_MAX_DEPTH" default:"3"`
	IncludePatterns []string `envconfig:"QA_INCLUDE_PATTERNS" default:""`
	ExcludePatterns []string `envconfig:"QA_EXCLUDE_PATTERNS" default:""`
	LoginPath       string   `envconfig:"QA_LOGIN_PATH" default:"/login"`
	Headless        bool     `envconfig:"QA_HEADLESS" default:"true"`
	WorkDir         string   `envconfig:"QA_WORK_DIR" default:".qa-framework"`
}

// AuthConfig describes how to log into the target. Password may be
// written "env:NAME" and is resolved from the process environment at
// load time; a dangling reference is a fatal configuration error.
type AuthConfig struct {
	LoginURL         string `envconfig:"QA_AUTH_LOGIN_URL" default:""`
	Username         string `envconfig:"QA_AUTH_USERNAME" default:""`
	Password         string `envconfig:"QA_AUTH_PASSWORD" default:""`
	UsernameSelector string `envconfig:"QA_AUTH_USERNAME_SELECTOR" default:""`
	PasswordSelector string `envconfig:"QA_AUTH_PASSWORD_SELECTOR" default:""`
	SubmitSelector   string `envconfig:"QA_AUTH_SUBMIT_SELECTOR" default:""`
	SuccessIndicator string `envconfig:"QA_AUTH_SUCCESS_INDICATOR" default:""`
	AutoDetect       bool   `envconfig:"QA_AUTH_AUTO_DETECT" default:"true"`
	LLMFallback      bool   `envconfig:"QA_AUTH_LLM_FALLBACK" default:"true"`
}

// Configured reports whether any credentials were supplied at all.
func (c AuthConfig) Configured() bool {
	return c.Username != "" || c.Password != "" || c.LoginURL != ""
}

// PlannerConfig controls test-plan generation.
type PlannerConfig struct {
	Categories          []string `envconfig:"QA_PLAN_CATEGORIES" default:"functional,visual,security"`
	MaxTests            int      `envconfig:"QA_PLAN_MAX_TESTS" default:"50"`
	VisualDiffTolerance float64  `envconfig:"QA_VISUAL_DIFF_TOLERANCE" default:"0.05"`
	Viewports           []string `envconfig:"QA_PLAN_VIEWPORTS" default:"1920x1080"`
	Hints               []string `envconfig:"QA_PLAN_HINTS" default:""`
}

// ExecutorConfig controls plan execution.
type ExecutorConfig struct {
	MaxParallelContexts       int           `envconfig:"QA_MAX_PARALLEL_CONTEXTS" default:"3"`
	MaxExecutionTime          time.Duration `envconfig:"QA_MAX_EXECUTION_TIME" default:"30m"`
	AIMaxFallbackCallsPerTest int           `envconfig:"QA_AI_MAX_FALLBACK_CALLS_PER_TEST" default:"3"`
	SmartResolve              bool          `envconfig:"QA_SMART_RESOLVE" default:"true"`
	FlakeDetection            bool          `envconfig:"QA_FLAKE_DETECTION" default:"false"`
	RunsDir                   string        `envconfig:"QA_RUNS_DIR" default:"runs"`
}

// CoverageConfig controls registry retention and gap analysis.
type CoverageConfig struct {
	RetentionCap  int `envconfig:"QA_COVERAGE_RETENTION_CAP" default:"20"`
	StalenessDays int `envconfig:"QA_COVERAGE_STALENESS_DAYS" default:"7"`
}

// ReportConfig selects output formats.
type ReportConfig struct {
	Formats []string `envconfig:"QA_REPORT_FORMATS" default:"html,json"`
}

// RateLimitConfig holds API rate limiting settings
type RateLimitConfig struct {
	Enabled        bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMin int  `envconfig:"RATE_LIMIT_REQUESTS_PER_MIN" default:"60"`
	BurstSize      int  `envconfig:"RATE_LIMIT_BURST_SIZE" default:"10"`
}

// SecurityConfig holds control-surface security settings
type SecurityConfig struct {
	APIKeyHeader string `envconfig:"SECURITY_API_KEY_HEADER" default:"X-API-Key"`

	CORSEnabled        bool     `envconfig:"CORS_ENABLED" default:"true"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	TLSEnabled  bool   `envconfig:"TLS_ENABLED" default:"false"`
	TLSCertFile string `envconfig:"TLS_CERT_FILE" default:""`
	TLSKeyFile  string `envconfig:"TLS_KEY_FILE" default:""`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	if err := cfg.resolveSecretRefs(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// resolveSecretRefs expands "env:NAME" password fields from the
// process environment. An unset referenced variable is fatal at load.
func (c *Config) resolveSecretRefs() error {
	resolved, err := ResolveEnvRef(c.Auth.Password)
	if err != nil {
		return fmt.Errorf("auth password: %w", err)
	}
	c.Auth.Password = resolved

	resolved, err = ResolveEnvRef(c.Database.Password)
	if err != nil {
		return fmt.Errorf("database password: %w", err)
	}
	c.Database.Password = resolved

	return nil
}

// ResolveEnvRef resolves a possible "env:NAME" reference. Plain values
// pass through untouched.
func ResolveEnvRef(value string) (string, error) {
	name, ok := strings.CutPrefix(value, "env:")
	if !ok {
		return value, nil
	}
	resolved, found := os.LookupEnv(name)
	if !found {
		return "", fmt.Errorf("references unset environment variable %s", name)
	}
	return resolved, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errors []string

	if c.Crawl.MaxPages < 0 || c.Crawl.MaxDepth < 0 {
		errors = append(errors, "QA_MAX_PAGES and QA_MAX_DEPTH must be non-negative")
	}
	if c.Executor.MaxParallelContexts < 1 {
		errors = append(errors, "QA_MAX_PARALLEL_CONTEXTS must be at least 1")
	}
	if c.Planner.VisualDiffTolerance < 0 || c.Planner.VisualDiffTolerance > 1 {
		errors = append(errors, "QA_VISUAL_DIFF_TOLERANCE must be within [0, 1]")
	}
	if c.Database.Enabled && c.Database.Password == "" && c.Env != EnvDevelopment {
		errors = append(errors, "DB_PASSWORD is required when the coverage mirror is enabled outside development")
	}
	if c.Env == EnvProduction {
		if c.Security.TLSEnabled && (c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "") {
			errors = append(errors, "TLS_CERT_FILE and TLS_KEY_FILE are required when TLS is enabled")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// GetLogLevel returns the appropriate zap log level
func (c *Config) GetLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
