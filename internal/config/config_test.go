package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/graphogm/internal/errors"
)

// inTempDir runs the test from an empty directory so no .env or config file leaks in
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	for _, key := range []string{"NEO4J_URI", "NEO4J_USER", "NEO4J_PASSWORD", "NEO4J_DATABASE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Neo4j.URI, cfg.Neo4j.URI)
	assert.Equal(t, 8, cfg.Hydration.MaxConcurrency)
	assert.Equal(t, 512, cfg.Query.PlanCacheSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "graphogm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
neo4j:
  uri: bolt://db:7687
  user: reader
  max_transaction_retry_time: 5s
  timeouts:
    find: 10s
hydration:
  max_concurrency: 4
  rate_limit: 50
query:
  plan_cache_size: 0
models_file: models.yaml
`), 0644))

	t.Setenv("GRAPHOGM_HYDRATION_BURST", "5")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("NEO4J_DATABASE", "people")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bolt://db:7687", cfg.Neo4j.URI)
	assert.Equal(t, "reader", cfg.Neo4j.User)
	assert.Equal(t, "secret", cfg.Neo4j.Password)
	assert.Equal(t, "people", cfg.Neo4j.Database)
	assert.Equal(t, 10*time.Second, cfg.Neo4j.Timeouts["find"])
	assert.Equal(t, 4, cfg.Hydration.MaxConcurrency)
	assert.Equal(t, 50.0, cfg.Hydration.RateLimit)
	assert.Equal(t, 5, cfg.Hydration.Burst)
	assert.Equal(t, 0, cfg.Query.PlanCacheSize)
	assert.Equal(t, "models.yaml", cfg.ModelsFile)

	client := cfg.Neo4j.ClientConfig()
	assert.Equal(t, "people", client.Database)
	assert.Equal(t, 10*time.Second, client.Timeouts["find"])
	assert.Equal(t, 5*time.Second, client.MaxTransactionRetryTime)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NEO4J_URI=neo4j://from-dotenv:7687\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "neo4j://from-dotenv:7687", cfg.Neo4j.URI)
}

func TestLoad_BadFile(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("neo4j: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		ctx     ValidationContext
		wantErr bool
	}{
		{"defaults offline", func(*Config) {}, ValidationContextOffline, false},
		{"missing password offline", func(c *Config) { c.Neo4j.Password = "" }, ValidationContextOffline, false},
		{"missing password for database", func(c *Config) { c.Neo4j.Password = "" }, ValidationContextDatabase, true},
		{"complete database", func(c *Config) { c.Neo4j.Password = "pw" }, ValidationContextDatabase, false},
		{"zero concurrency", func(c *Config) { c.Hydration.MaxConcurrency = 0 }, ValidationContextOffline, true},
		{"negative rate", func(c *Config) { c.Hydration.RateLimit = -1 }, ValidationContextOffline, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, ValidationContextOffline, true},
		{"zero timeout", func(c *Config) {
			c.Neo4j.Password = "pw"
			c.Neo4j.Timeouts = map[string]time.Duration{"find": 0}
		}, ValidationContextDatabase, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			result := cfg.Validate(tt.ctx)
			assert.Equal(t, tt.wantErr, result.HasErrors(), result.Error())
			if tt.wantErr {
				assert.True(t, errors.Is(result.Err(), errors.ErrConfig))
			} else {
				assert.NoError(t, result.Err())
			}
		})
	}
}

func TestRedactedAndSave(t *testing.T) {
	dir := inTempDir(t)
	cfg := Default()
	cfg.Neo4j.Password = "secret"

	redacted := cfg.Redacted()
	assert.Equal(t, "********", redacted.Neo4j.Password)
	assert.Equal(t, "secret", cfg.Neo4j.Password)

	path := filepath.Join(dir, "nested", "graphogm.yaml")
	require.NoError(t, redacted.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Neo4j.URI, loaded.Neo4j.URI)
	assert.Equal(t, cfg.Neo4j.SocketConnectTimeout, loaded.Neo4j.SocketConnectTimeout)
	assert.Equal(t, cfg.Hydration, loaded.Hydration)
}
