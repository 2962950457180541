// ABOUTME: Configuration loading and parsing for boxdrop
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete boxdrop configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	SeedTutorial *bool `yaml:"seed_tutorial"` // default true
}

// DatabaseConfig holds content-store configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds the capability-token configuration.
// TokenSecret is the single trusted symmetric signing key; it is loaded once
// at startup and must never appear in logs or responses.
type AuthConfig struct {
	TokenSecret     string `yaml:"token_secret"`
	AutoIssuePublic *bool  `yaml:"auto_issue_public"` // default true

	TokenTTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TokenTTLRaw string `yaml:"token_ttl"`
}

// StorageConfig holds blob-store (S3/MinIO) configuration
type StorageConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Region      string `yaml:"region"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	ImageBucket string `yaml:"image_bucket"`
	FileBucket  string `yaml:"file_bucket"`

	SignTTL time.Duration `yaml:"-"`

	SignTTLRaw string `yaml:"sign_ttl"`
}

// RetentionConfig holds box expiry configuration
type RetentionConfig struct {
	Window        time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	WindowRaw        string `yaml:"window"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file leaves a value unset.
const (
	DefaultTokenTTL        = time.Hour
	DefaultSignTTL         = time.Hour
	DefaultRetentionWindow = 24 * time.Hour
)

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

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// A missing signing key is a fatal startup error, never a per-request one
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret is required")
	}

	if c.Storage.ImageBucket == "" {
		return fmt.Errorf("storage.image_bucket is required")
	}
	if c.Storage.FileBucket == "" {
		return fmt.Errorf("storage.file_bucket is required")
	}

	return nil
}

// AutoIssuePublicEnabled reports whether public boxes get a token minted
// automatically on first content read. Defaults to true.
func (c *Config) AutoIssuePublicEnabled() bool {
	if c.Auth.AutoIssuePublic == nil {
		return true
	}
	return *c.Auth.AutoIssuePublic
}

// SeedTutorialEnabled reports whether the demo tutorial box is created at
// server startup. Defaults to true.
func (c *Config) SeedTutorialEnabled() bool {
	if c.Server.SeedTutorial == nil {
		return true
	}
	return *c.Server.SeedTutorial
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	cfg.Auth.TokenTTL = DefaultTokenTTL
	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	cfg.Storage.SignTTL = DefaultSignTTL
	if cfg.Storage.SignTTLRaw != "" {
		cfg.Storage.SignTTL, err = time.ParseDuration(cfg.Storage.SignTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing sign_ttl %q: %w", cfg.Storage.SignTTLRaw, err)
		}
	}

	cfg.Retention.Window = DefaultRetentionWindow
	if cfg.Retention.WindowRaw != "" {
		cfg.Retention.Window, err = time.ParseDuration(cfg.Retention.WindowRaw)
		if err != nil {
			return fmt.Errorf("parsing retention window %q: %w", cfg.Retention.WindowRaw, err)
		}
	}

	if cfg.Retention.SweepIntervalRaw != "" {
		cfg.Retention.SweepInterval, err = time.ParseDuration(cfg.Retention.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Retention.SweepIntervalRaw, err)
		}
	}

	return nil
}
