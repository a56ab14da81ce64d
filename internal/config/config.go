package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/graphogm/internal/graph"
	"github.com/rohankatakam/graphogm/internal/hydrate"
	"github.com/rohankatakam/graphogm/internal/logging"
	"github.com/rohankatakam/graphogm/internal/query"
)

// EnvPrefix prefixes every environment key, e.g. GRAPHOGM_NEO4J_URI
const EnvPrefix = "GRAPHOGM"

// Config holds all configuration settings
type Config struct {
	Neo4j     Neo4jConfig     `mapstructure:"neo4j" yaml:"neo4j"`
	Hydration HydrationConfig `mapstructure:"hydration" yaml:"hydration"`
	Query     QueryConfig     `mapstructure:"query" yaml:"query"`
	Logging   logging.Config  `mapstructure:"logging" yaml:"logging"`

	// ModelsFile is the YAML model declarations file; empty runs unregistered
	ModelsFile string `mapstructure:"models_file" yaml:"models_file"`
}

type Neo4jConfig struct {
	URI      string `mapstructure:"uri" yaml:"uri" validate:"required,uri"`
	User     string `mapstructure:"user" yaml:"user" validate:"required"`
	Password string `mapstructure:"password" yaml:"password" validate:"required"`
	Database string `mapstructure:"database" yaml:"database"`

	MaxConnectionPoolSize        int           `mapstructure:"max_connection_pool_size" yaml:"max_connection_pool_size" validate:"gte=0"`
	ConnectionAcquisitionTimeout time.Duration `mapstructure:"connection_acquisition_timeout" yaml:"connection_acquisition_timeout" validate:"gte=0"`
	MaxConnectionLifetime        time.Duration `mapstructure:"max_connection_lifetime" yaml:"max_connection_lifetime" validate:"gte=0"`
	SocketConnectTimeout         time.Duration `mapstructure:"socket_connect_timeout" yaml:"socket_connect_timeout" validate:"gte=0"`
	MaxTransactionRetryTime      time.Duration `mapstructure:"max_transaction_retry_time" yaml:"max_transaction_retry_time" validate:"gte=0"`

	// Timeouts overrides the transaction timeout per operation name (find, count, ...)
	Timeouts map[string]time.Duration `mapstructure:"timeouts" yaml:"timeouts,omitempty" validate:"dive,gt=0"`
}

type HydrationConfig struct {
	MaxConcurrency int     `mapstructure:"max_concurrency" yaml:"max_concurrency" validate:"gte=1,lte=256"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gte=0"` // Sub-queries per second, 0 = unlimited
	Burst          int     `mapstructure:"burst" yaml:"burst" validate:"gte=0"`
}

type QueryConfig struct {
	PlanCacheSize int `mapstructure:"plan_cache_size" yaml:"plan_cache_size" validate:"gte=0"` // 0 disables the plan cache
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			URI:                          "neo4j://localhost:7687",
			User:                         "neo4j",
			Database:                     "neo4j",
			MaxConnectionPoolSize:        50,
			ConnectionAcquisitionTimeout: 60 * time.Second,
			MaxConnectionLifetime:        time.Hour,
			SocketConnectTimeout:         5 * time.Second,
			MaxTransactionRetryTime:      30 * time.Second,
		},
		Hydration: HydrationConfig{
			MaxConcurrency: hydrate.DefaultMaxConcurrency,
		},
		Query: QueryConfig{
			PlanCacheSize: query.DefaultPlanCacheSize,
		},
		Logging: logging.DefaultConfig(false),
	}
}

// setDefaults registers every leaf key so that environment variables bind to it
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("neo4j.uri", cfg.Neo4j.URI)
	v.SetDefault("neo4j.user", cfg.Neo4j.User)
	v.SetDefault("neo4j.password", cfg.Neo4j.Password)
	v.SetDefault("neo4j.database", cfg.Neo4j.Database)
	v.SetDefault("neo4j.max_connection_pool_size", cfg.Neo4j.MaxConnectionPoolSize)
	v.SetDefault("neo4j.connection_acquisition_timeout", cfg.Neo4j.ConnectionAcquisitionTimeout)
	v.SetDefault("neo4j.max_connection_lifetime", cfg.Neo4j.MaxConnectionLifetime)
	v.SetDefault("neo4j.socket_connect_timeout", cfg.Neo4j.SocketConnectTimeout)
	v.SetDefault("neo4j.max_transaction_retry_time", cfg.Neo4j.MaxTransactionRetryTime)

	v.SetDefault("hydration.max_concurrency", cfg.Hydration.MaxConcurrency)
	v.SetDefault("hydration.rate_limit", cfg.Hydration.RateLimit)
	v.SetDefault("hydration.burst", cfg.Hydration.Burst)

	v.SetDefault("query.plan_cache_size", cfg.Query.PlanCacheSize)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.OutputFile)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.json", cfg.Logging.JSONFormat)
	v.SetDefault("logging.add_source", cfg.Logging.AddSource)

	v.SetDefault("models_file", cfg.ModelsFile)
}

// Load loads configuration from path, or from the standard locations when path
// is empty. A missing config file is not an error.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("graphogm")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".graphogm"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.ModelsFile = expandPath(cfg.ModelsFile)
	cfg.Logging.OutputFile = expandPath(cfg.Logging.OutputFile)

	return cfg, nil
}

// applyEnvOverrides applies the conventional NEO4J_* variables, which take
// precedence over the prefixed ones
func applyEnvOverrides(cfg *Config) {
	cfg.Neo4j.URI = GetString("NEO4J_URI", cfg.Neo4j.URI)
	cfg.Neo4j.User = GetString("NEO4J_USER", cfg.Neo4j.User)
	cfg.Neo4j.Password = GetString("NEO4J_PASSWORD", cfg.Neo4j.Password)
	cfg.Neo4j.Database = GetString("NEO4J_DATABASE", cfg.Neo4j.Database)
	cfg.Neo4j.MaxConnectionPoolSize = GetInt("NEO4J_MAX_CONNECTION_POOL_SIZE", cfg.Neo4j.MaxConnectionPoolSize)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// ClientConfig returns the driver settings
func (c Neo4jConfig) ClientConfig() graph.ClientConfig {
	timeouts := make(map[string]time.Duration, len(c.Timeouts))
	for op, d := range c.Timeouts {
		timeouts[op] = d
	}
	return graph.ClientConfig{
		URI:                          c.URI,
		User:                         c.User,
		Password:                     c.Password,
		Database:                     c.Database,
		MaxConnectionPoolSize:        c.MaxConnectionPoolSize,
		ConnectionAcquisitionTimeout: c.ConnectionAcquisitionTimeout,
		MaxConnectionLifetime:        c.MaxConnectionLifetime,
		SocketConnectTimeout:         c.SocketConnectTimeout,
		MaxTransactionRetryTime:      c.MaxTransactionRetryTime,
		Timeouts:                     timeouts,
	}
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	out := *c
	if out.Neo4j.Password != "" {
		out.Neo4j.Password = "********"
	}
	return &out
}

// Marshal encodes the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
