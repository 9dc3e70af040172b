package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for inkwell-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values. Secrets (passwords, API
// keys) must only come from environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3550"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (entity registry cache)
	Redis RedisConfig `yaml:"redis"`

	// Generative-text provider configuration
	AI AIConfig `yaml:"ai"`

	// Extraction pipeline tuning
	Extraction ExtractionConfig `yaml:"extraction"`

	// MigrationsPath points at the SQL migration directory.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"inkwell"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"inkwell_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis configuration for the entity registry.
// An empty host disables the registry cache; lookups then always fall
// through to the entity store.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AIConfig holds the generative-text provider configuration.
// Provider selects the client implementation: "openai" for any
// OpenAI-compatible endpoint, "anthropic" for the Anthropic API.
type AIConfig struct {
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`
	BaseURL  string `yaml:"base_url" env:"AI_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"AI_MODEL" env-default:"gpt-4o"`
	APIKey   string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML
}

// ExtractionConfig tunes the extraction pipeline.
type ExtractionConfig struct {
	// MinContentLength is the minimum entry length worth extracting from.
	// Shorter entries complete immediately with an empty result.
	MinContentLength int `yaml:"min_content_length" env:"EXTRACTION_MIN_CONTENT_LENGTH" env-default:"12"`
	// MaxConcurrent bounds parallel extraction runs in batch processing.
	MaxConcurrent int `yaml:"max_concurrent" env:"EXTRACTION_MAX_CONCURRENT" env-default:"4"`
	// Temperature for both extraction calls. Low by default: this is a
	// structured task, not creative writing.
	Temperature float64 `yaml:"temperature" env:"EXTRACTION_TEMPERATURE" env-default:"0.2"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When no config.yaml exists (containers, CI), configuration
// comes from environment variables alone.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// IsConfigured reports whether the registry cache is enabled.
func (c *RedisConfig) IsConfigured() bool {
	return c.Host != ""
}
