package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("TABLE_NAME", "")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "staging-player-management", cfg.DynamoDBTable)
	assert.Equal(t, "GSI1", cfg.GSI1IndexName)
	assert.Equal(t, "GSI2", cfg.GSI2IndexName)
	assert.Equal(t, 3, cfg.StorageMaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.StorageBaseDelay)
	assert.Equal(t, 25, cfg.BatchWriteSize)
	assert.True(t, cfg.CircuitBreakerEnabled)
	assert.False(t, cfg.CounterAtomicIncrement)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("TABLE_NAME", "players")
	t.Setenv("STORAGE_MAX_ATTEMPTS", "5")
	t.Setenv("STORAGE_MAX_DELAY", "2s")
	t.Setenv("COUNTER_ATOMIC_INCREMENT", "true")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "players", cfg.DynamoDBTable)
	assert.Equal(t, 5, cfg.StorageMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.StorageMaxDelay)
	assert.True(t, cfg.CounterAtomicIncrement)
}

func TestConfigFileOverlaysEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tableName: from-file\nbatchWriteSize: 10\nstorageBaseDelay: 20ms\n"), 0o600))
	t.Setenv("TABLE_NAME", "from-env")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.DynamoDBTable)
	assert.Equal(t, 10, cfg.BatchWriteSize)
	assert.Equal(t, 20*time.Millisecond, cfg.StorageBaseDelay)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:        "dev",
			DynamoDBTable:      "t",
			StorageMaxAttempts: 3,
			StorageMaxDelay:    time.Second,
			BatchWriteSize:     25,
			BatchGetSize:       100,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no table", func(c *Config) { c.DynamoDBTable = "" }},
		{"zero attempts", func(c *Config) { c.StorageMaxAttempts = 0 }},
		{"too many attempts", func(c *Config) { c.StorageMaxAttempts = 6 }},
		{"batch too large", func(c *Config) { c.BatchWriteSize = 26 }},
		{"batch get too large", func(c *Config) { c.BatchGetSize = 101 }},
		{"max below base", func(c *Config) { c.StorageBaseDelay = 2 * time.Second }},
		{"production without bus", func(c *Config) { c.Environment = "production" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
