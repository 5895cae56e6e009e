// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mapmeter/mapmeter/domain/product"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig    `yaml:"server"`
	GoogleCloud  GoogleCloud     `yaml:"google_cloud"`
	Database     DatabaseConfig  `yaml:"database"`
	Products     []ProductConfig `yaml:"products"`
	IgnoredHosts []string        `yaml:"ignored_hosts"`
	Logging      LoggingConfig   `yaml:"logging"`
	Metrics      MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// GoogleCloud configures the connection to the monitoring backend.
type GoogleCloud struct {
	ProjectID       string        `yaml:"project_id"`
	APIKey          string        `yaml:"api_key,omitempty"`
	CredentialsFile string        `yaml:"credentials_file,omitempty"`
	Timeout         time.Duration `yaml:"timeout"`
	// IngestionLag is subtracted from "now" to form the query window end,
	// so counts the backend has not finished aggregating are not reported.
	IngestionLag time.Duration `yaml:"ingestion_lag"`
}

// DatabaseConfig configures the local counter store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ProductConfig configures one metered product. Order matters: hosts are
// classified first-match-wins in list order.
type ProductConfig struct {
	Name   string   `yaml:"name"`
	Labels []string `yaml:"labels"`
	Quota  int64    `yaml:"quota"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Environment variable names. Env values override file values, which lets
// Docker deployments run without a config file.
const (
	EnvProjectID       = "MAPMETER_PROJECT_ID"
	EnvCredentialsFile = "MAPMETER_CREDENTIALS_FILE"
	EnvDatabaseDSN     = "MAPMETER_DATABASE_DSN"
	EnvServerHost      = "MAPMETER_SERVER_HOST"
	EnvServerPort      = "MAPMETER_SERVER_PORT"
	EnvLogLevel        = "MAPMETER_LOG_LEVEL"
	EnvLogFormat       = "MAPMETER_LOG_FORMAT"
)

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv builds a configuration from environment variables alone.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback loads from the file when it exists, else from env.
func LoadWithFallback(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	return LoadFromEnv()
}

// HasEnvConfig reports whether enough environment configuration exists to
// run without a config file.
func HasEnvConfig() bool {
	return os.Getenv(EnvProjectID) != ""
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvProjectID); v != "" {
		cfg.GoogleCloud.ProjectID = v
	}
	if v := os.Getenv(EnvCredentialsFile); v != "" {
		cfg.GoogleCloud.CredentialsFile = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(EnvServerHost); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.GoogleCloud.Timeout == 0 {
		cfg.GoogleCloud.Timeout = 30 * time.Second
	}
	if cfg.GoogleCloud.IngestionLag == 0 {
		cfg.GoogleCloud.IngestionLag = 15 * time.Minute
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "mapmeter.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if len(cfg.Products) == 0 {
		for _, p := range product.Default().Products() {
			cfg.Products = append(cfg.Products, ProductConfig{
				Name:   p.Name,
				Labels: p.Labels,
				Quota:  p.Quota,
			})
		}
	}
	if len(cfg.IgnoredHosts) == 0 {
		cfg.IgnoredHosts = product.DefaultIgnoredHosts()
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", cfg.Server.Port)
	}
	seen := make(map[string]bool, len(cfg.Products))
	for i, p := range cfg.Products {
		if p.Name == "" {
			return fmt.Errorf("products[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate product %q", p.Name)
		}
		seen[p.Name] = true
		if len(p.Labels) == 0 {
			return fmt.Errorf("product %q has no labels", p.Name)
		}
		if p.Quota < 0 {
			return fmt.Errorf("product %q has negative quota %d", p.Name, p.Quota)
		}
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}
	return nil
}

// Catalog builds the immutable classification table from the configured
// products and ignore list.
func (c *Config) Catalog() product.Catalog {
	products := make([]product.Product, len(c.Products))
	for i, p := range c.Products {
		products[i] = product.Product{Name: p.Name, Labels: p.Labels, Quota: p.Quota}
	}
	return product.New(products, c.IgnoredHosts)
}
