// ABOUTME: Configuration loading and parsing for chowline
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chowline configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Assistant AssistantConfig `yaml:"assistant"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Imagery   ImageryConfig   `yaml:"imagery"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds the shared connection secret.
// Clients present it as the ?token= parameter when opening a websocket.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AssistantConfig holds settings for the AI completion service.
type AssistantConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	CacheFile string `yaml:"cache_file"` // persists the assistant id across restarts

	PollInterval    time.Duration `yaml:"-"`
	PollMaxAttempts int           `yaml:"poll_max_attempts"`

	// Raw string value for YAML unmarshaling
	PollIntervalRaw string `yaml:"poll_interval"`
}

// UpstreamConfig holds endpoints and keys for external collaborators.
type UpstreamConfig struct {
	Places    PlacesConfig    `yaml:"places"`
	Reviews   EndpointConfig  `yaml:"reviews"`
	WebSearch EndpointConfig  `yaml:"websearch"`
	Vision    VisionConfig    `yaml:"vision"`
}

// EndpointConfig is a base URL plus API key pair.
type EndpointConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// PlacesConfig holds the place-search provider configuration.
type PlacesConfig struct {
	BaseURL string  `yaml:"base_url"`
	APIKey  string  `yaml:"api_key"`
	RateRPS float64 `yaml:"rate_rps"` // request budget toward the provider, 0 = client default
}

// VisionConfig holds the image-description provider configuration.
// MicroModel describes images in batches; ProModel answers targeted queries.
type VisionConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	MicroModel string `yaml:"micro_model"`
	ProModel   string `yaml:"pro_model"`
}

// ImageryConfig holds the image batch analyzer configuration.
type ImageryConfig struct {
	Workers      int           `yaml:"workers"`
	BatchTimeout time.Duration `yaml:"-"`

	BatchTimeoutRaw string `yaml:"batch_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values that have sane defaults when left unset.
func (c *Config) applyDefaults() {
	if c.Assistant.PollInterval == 0 {
		c.Assistant.PollInterval = 750 * time.Millisecond
	}
	if c.Assistant.PollMaxAttempts == 0 {
		c.Assistant.PollMaxAttempts = 240
	}
	if c.Assistant.CacheFile == "" {
		c.Assistant.CacheFile = "assistant_cache.json"
	}
	if c.Imagery.Workers == 0 {
		c.Imagery.Workers = 5
	}
	if c.Imagery.BatchTimeout == 0 {
		c.Imagery.BatchTimeout = 2 * time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Auth.Token == "" {
		return fmt.Errorf("auth.token is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Assistant.Model == "" {
		return fmt.Errorf("assistant.model is required")
	}
	if c.Assistant.PollMaxAttempts < 1 {
		return fmt.Errorf("assistant.poll_max_attempts must be positive")
	}
	if c.Imagery.Workers < 1 {
		return fmt.Errorf("imagery.workers must be positive")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Assistant.PollIntervalRaw != "" {
		cfg.Assistant.PollInterval, err = time.ParseDuration(cfg.Assistant.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Assistant.PollIntervalRaw, err)
		}
	}

	if cfg.Imagery.BatchTimeoutRaw != "" {
		cfg.Imagery.BatchTimeout, err = time.ParseDuration(cfg.Imagery.BatchTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing batch_timeout %q: %w", cfg.Imagery.BatchTimeoutRaw, err)
		}
	}

	return nil
}
