package config

import (
	"os"
	"testing"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	if got := cfg.DSN(); got != expected {
		t.Errorf("DSN() = %v, want %v", got, expected)
	}
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{
		Host: "redis.example.com",
		Port: 6380,
	}

	if got := cfg.Addr(); got != "redis.example.com:6380" {
		t.Errorf("Addr() = %v, want redis.example.com:6380", got)
	}
}

func TestTemporalConfig_Addr(t *testing.T) {
	cfg := TemporalConfig{
		Host: "temporal.example.com",
		Port: 7234,
	}

	if got := cfg.Addr(); got != "temporal.example.com:7234" {
		t.Errorf("Addr() = %v, want temporal.example.com:7234", got)
	}

	if got := cfg.Address(); got != cfg.Addr() {
		t.Errorf("Address() = %v, want %v", got, cfg.Addr())
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name     string
		env      Environment
		expected bool
	}{
		{name: "development", env: EnvDevelopment, expected: true},
		{name: "staging", env: EnvStaging, expected: false},
		{name: "production", env: EnvProduction, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Env: tt.env}
			if got := cfg.IsDevelopment(); got != tt.expected {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestConfig_GetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		debug    bool
		logLevel string
		expected string
	}{
		{name: "debug mode overrides", debug: true, logLevel: "info", expected: "debug"},
		{name: "normal mode uses log level", debug: false, logLevel: "warn", expected: "warn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Debug: tt.debug, LogLevel: tt.logLevel}
			if got := cfg.GetLogLevel(); got != tt.expected {
				t.Errorf("GetLogLevel() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestResolveEnvRef(t *testing.T) {
	t.Run("plain value passes through", func(t *testing.T) {
		got, err := ResolveEnvRef("hunter2")
		if err != nil {
			t.Fatalf("ResolveEnvRef() error = %v", err)
		}
		if got != "hunter2" {
			t.Errorf("ResolveEnvRef() = %v, want hunter2", got)
		}
	})

	t.Run("env reference resolves", func(t *testing.T) {
		os.Setenv("QA_TEST_SECRET", "resolved-secret")
		defer os.Unsetenv("QA_TEST_SECRET")

		got, err := ResolveEnvRef("env:QA_TEST_SECRET")
		if err != nil {
			t.Fatalf("ResolveEnvRef() error = %v", err)
		}
		if got != "resolved-secret" {
			t.Errorf("ResolveEnvRef() = %v, want resolved-secret", got)
		}
	})

	t.Run("dangling env reference is fatal", func(t *testing.T) {
		os.Unsetenv("QA_DEFINITELY_UNSET")
		if _, err := ResolveEnvRef("env:QA_DEFINITELY_UNSET"); err == nil {
			t.Error("ResolveEnvRef() should error on unset variable")
		}
	})

	t.Run("empty value passes through", func(t *testing.T) {
		got, err := ResolveEnvRef("")
		if err != nil || got != "" {
			t.Errorf("ResolveEnvRef(\"\") = %v, %v; want empty, nil", got, err)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:      EnvDevelopment,
			Executor: ExecutorConfig{MaxParallelContexts: 3},
			Planner:  PlannerConfig{VisualDiffTolerance: 0.05},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid development config", mutate: func(*Config) {}, wantErr: false},
		{
			name:    "no api key is fine: llm features degrade",
			mutate:  func(c *Config) { c.Claude.APIKey = "" },
			wantErr: false,
		},
		{
			name:    "negative max pages",
			mutate:  func(c *Config) { c.Crawl.MaxPages = -1 },
			wantErr: true,
		},
		{
			name:    "zero parallel contexts",
			mutate:  func(c *Config) { c.Executor.MaxParallelContexts = 0 },
			wantErr: true,
		},
		{
			name:    "tolerance above 1",
			mutate:  func(c *Config) { c.Planner.VisualDiffTolerance = 1.5 },
			wantErr: true,
		},
		{
			name: "mirror enabled without password outside development",
			mutate: func(c *Config) {
				c.Env = EnvStaging
				c.Database.Enabled = true
				c.Database.Password = ""
			},
			wantErr: true,
		},
		{
			name: "production TLS without cert",
			mutate: func(c *Config) {
				c.Env = EnvProduction
				c.Security.TLSEnabled = true
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClaudeConfig_Enabled(t *testing.T) {
	if (ClaudeConfig{}).Enabled() {
		t.Error("empty API key should disable the client")
	}
	if !(ClaudeConfig{APIKey: "sk-test"}).Enabled() {
		t.Error("non-empty API key should enable the client")
	}
}

func TestAuthConfig_Configured(t *testing.T) {
	if (AuthConfig{}).Configured() {
		t.Error("empty auth config should not report configured")
	}
	if !(AuthConfig{Username: "qa@example.com"}).Configured() {
		t.Error("auth config with username should report configured")
	}
}

func TestEnvironmentConstants(t *testing.T) {
	if EnvDevelopment != "development" {
		t.Errorf("EnvDevelopment = %v, want development", EnvDevelopment)
	}
	if EnvStaging != "staging" {
		t.Errorf("EnvStaging = %v, want staging", EnvStaging)
	}
	if EnvProduction != "production" {
		t.Errorf("EnvProduction = %v, want production", EnvProduction)
	}
}
