// Package config loads gateway configuration from a YAML file with
// environment overrides, and watches the file for hot reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	// Host and Port bind the HTTP listener.
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// APIKeys lists accepted client keys. Empty means open access, which
	// is only sensible behind another auth layer.
	APIKeys []string `yaml:"api-keys" json:"api-keys"`

	Kiro      KiroConfig      `yaml:"kiro" json:"kiro"`
	RateLimit RateLimitConfig `yaml:"rate-limit" json:"rate-limit"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`

	// CatalogTTLSeconds ages the model catalog snapshot.
	CatalogTTLSeconds int `yaml:"catalog-ttl-seconds" json:"catalog-ttl-seconds"`
	// StreamIdleSeconds cuts a stream when the upstream goes quiet.
	StreamIdleSeconds int `yaml:"stream-idle-seconds" json:"stream-idle-seconds"`
}

// KiroConfig controls the upstream credential and endpoint.
type KiroConfig struct {
	// TokenFile is the credential JSON path.
	TokenFile string `yaml:"token-file" json:"token-file"`
	// ImportAmazonQ seeds the token file from the Amazon Q CLI database
	// when the file is missing.
	ImportAmazonQ bool `yaml:"import-amazon-q" json:"import-amazon-q"`
	// Endpoint overrides the upstream URL, for tests and regional moves.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	// GoogleClientID is the OAuth client for social-login refresh.
	GoogleClientID string `yaml:"google-client-id,omitempty" json:"google-client-id,omitempty"`
}

// RateLimitConfig bounds request rates per client IP.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	RPS     float64 `yaml:"rps" json:"rps"`
	Burst   int     `yaml:"burst" json:"burst"`
}

// LoggingConfig controls log level and optional file rotation.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File enables rotated file output next to stderr when set.
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max-size-mb,omitempty" json:"max-size-mb,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty" json:"max-backups,omitempty"`
	MaxAgeDays int    `yaml:"max-age-days,omitempty" json:"max-age-days,omitempty"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              8080,
		CatalogTTLSeconds: 3600,
		StreamIdleSeconds: 120,
		Kiro: KiroConfig{
			TokenFile: defaultTokenPath(),
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     10,
			Burst:   20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "kiro-token.json"
	}
	return home + "/.kirogate/token.json"
}

// Load reads the YAML file at path (missing file means defaults), applies a
// .env file if present, then applies environment overrides.
func Load(path string) (*Config, error) {
	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Run on defaults; the watcher still picks the file up when
			// it appears.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv maps KIROGATE_* variables over the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("KIROGATE_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("KIROGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("KIROGATE_API_KEYS"); v != "" {
		c.APIKeys = splitNonEmpty(v)
	}
	if v := os.Getenv("KIROGATE_TOKEN_FILE"); v != "" {
		c.Kiro.TokenFile = v
	}
	if v := os.Getenv("KIROGATE_KIRO_ENDPOINT"); v != "" {
		c.Kiro.Endpoint = v
	}
	if v := os.Getenv("KIROGATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func splitNonEmpty(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Kiro.TokenFile == "" {
		return fmt.Errorf("kiro token-file is required")
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate-limit rps must be positive when enabled")
	}
	if c.StreamIdleSeconds <= 0 {
		c.StreamIdleSeconds = 120
	}
	if c.CatalogTTLSeconds <= 0 {
		c.CatalogTTLSeconds = 3600
	}
	return nil
}

// CatalogTTL returns the catalog TTL as a duration.
func (c *Config) CatalogTTL() time.Duration {
	return time.Duration(c.CatalogTTLSeconds) * time.Second
}

// StreamIdle returns the stream idle cutoff as a duration.
func (c *Config) StreamIdle() time.Duration {
	return time.Duration(c.StreamIdleSeconds) * time.Second
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
