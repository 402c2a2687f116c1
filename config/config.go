package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// HTTP server configuration
	HTTP HTTPConfig

	// Anthropic upstream configuration
	Anthropic AnthropicConfig

	// Baseline probe run configuration
	Baseline BaselineConfig

	// Database configuration
	Database DatabaseConfig
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins string
}

// AnthropicConfig holds upstream Anthropic Messages API configuration.
// The API key itself is loaded by the keys package and is deliberately
// not part of Config, so dumping the configuration cannot expose it.
type AnthropicConfig struct {
	MessagesURL    string
	Version        string
	TimeoutSeconds int
}

// BaselineConfig holds baseline probe run configuration
type BaselineConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	ProbesPath  string // empty means use the embedded probe set
	OutputPath  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Host:               getEnvString("HOST", "127.0.0.1"),
			Port:               getEnvInt("PORT", 8000),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
		},
		Anthropic: AnthropicConfig{
			MessagesURL:    getEnvString("ANTHROPIC_MESSAGES_URL", "https://api.anthropic.com/v1/messages"),
			Version:        getEnvString("ANTHROPIC_VERSION", "2023-06-01"),
			TimeoutSeconds: getEnvInt("ANTHROPIC_TIMEOUT_SECONDS", 60),
		},
		Baseline: BaselineConfig{
			Model:       getEnvString("BASELINE_MODEL", "claude-3-5-sonnet-20241022"),
			MaxTokens:   getEnvInt("BASELINE_MAX_TOKENS", 300),
			Temperature: getEnvFloat("BASELINE_TEMPERATURE", 0.7),
			ProbesPath:  os.Getenv("BASELINE_PROBES_PATH"),
			OutputPath:  getEnvString("BASELINE_OUTPUT", "out/results.json"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Anthropic.MessagesURL == "" {
		return fmt.Errorf("ANTHROPIC_MESSAGES_URL must not be empty")
	}
	if c.Anthropic.TimeoutSeconds <= 0 {
		return fmt.Errorf("ANTHROPIC_TIMEOUT_SECONDS must be positive, got %d", c.Anthropic.TimeoutSeconds)
	}
	if c.Baseline.MaxTokens <= 0 {
		return fmt.Errorf("BASELINE_MAX_TOKENS must be positive, got %d", c.Baseline.MaxTokens)
	}
	if c.Baseline.Temperature < 0 || c.Baseline.Temperature > 2 {
		return fmt.Errorf("BASELINE_TEMPERATURE must be between 0 and 2, got %.2f", c.Baseline.Temperature)
	}
	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:               "127.0.0.1",
			Port:               8000,
			CORSAllowedOrigins: "*",
		},
		Anthropic: AnthropicConfig{
			MessagesURL:    "https://api.anthropic.com/v1/messages",
			Version:        "2023-06-01",
			TimeoutSeconds: 60,
		},
		Baseline: BaselineConfig{
			Model:       "claude-3-5-sonnet-20241022",
			MaxTokens:   300,
			Temperature: 0.7,
			OutputPath:  "out/results.json",
		},
		Database: DatabaseConfig{
			URL: "",
		},
	}
}
