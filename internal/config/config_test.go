package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, v, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Pseudonym.RetryBudget)
	assert.Equal(t, 0.99999998, cfg.Pseudonym.DefaultSuccessProbability)
	assert.Equal(t, 10_000, cfg.Pseudonym.MaxBatchSize)
	assert.Equal(t, 10*time.Minute, cfg.AccessCache.TTL)
	assert.Equal(t, 3*time.Second, cfg.AccessCache.WaitTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.AccessCache.PollInterval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  port: 9090
pseudonym:
  retry_budget: 5
access_cache:
  wait_timeout: 1s
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("PSN_LOG_LEVEL", "debug")

	cfg, _, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Pseudonym.RetryBudget)
	assert.Equal(t, time.Second, cfg.AccessCache.WaitTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:      ServerConfig{Port: 8080},
			Pseudonym:   PseudonymConfig{RetryBudget: 3, DefaultSuccessProbability: 0.9, MinimumLength: 2, MaxBatchSize: 10},
			AccessCache: AccessCacheConfig{TTL: time.Minute, WaitTimeout: time.Second, PollInterval: 10 * time.Millisecond},
		}
	}
	require.NoError(t, valid().Validate())

	c := valid()
	c.Pseudonym.RetryBudget = 0
	assert.Error(t, c.Validate())

	c = valid()
	c.Pseudonym.DefaultSuccessProbability = 1
	assert.Error(t, c.Validate())

	c = valid()
	c.AccessCache.PollInterval = 2 * time.Second
	assert.Error(t, c.Validate())

	c = valid()
	c.Auth.Enabled = true
	assert.Error(t, c.Validate())

	c = valid()
	c.Auth.Enabled = true
	c.Auth.JWTSecret = "secret"
	assert.Error(t, c.Validate())
	c.Vault.Enabled = true
	assert.NoError(t, c.Validate())

	c = valid()
	c.Kafka.Enabled = true
	assert.Error(t, c.Validate())
}
