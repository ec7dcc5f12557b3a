package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observatory-sec/observatory/internal/config"
)

func TestConfig_Validate_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		config config.Config
		errMsg string
	}{
		{
			name: "missing store driver",
			config: config.Config{
				StoreConnString: "postgres://test@localhost/test",
				GateCacheDriver: "memory",
			},
			errMsg: "STORE_DRIVER",
		},
		{
			name: "missing connection string",
			config: config.Config{
				StoreDriver:     "postgres",
				GateCacheDriver: "memory",
			},
			errMsg: "STORE_CONNECTION_STRING",
		},
		{
			name: "redis cache without address",
			config: config.Config{
				StoreDriver:     "memory",
				GateCacheDriver: "redis",
			},
			errMsg: "REDIS_ADDR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()

			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_Validate_MemoryStoreNeedsNoConnString(t *testing.T) {
	cfg := &config.Config{
		StoreDriver:     "memory",
		GateCacheDriver: "memory",
	}

	assert.NoError(t, cfg.Validate())
}

func TestConfig_Load_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("GATE_CACHE_DRIVER", "memory")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "nats://localhost:4222", cfg.NatsURL)
	assert.True(t, cfg.EnableEventPublishing)
	assert.Equal(t, "8080", cfg.HealthPort)
}

func TestConfig_Load_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("STORE_CONNECTION_STRING", "postgres://test@localhost/observatory")
	t.Setenv("GATE_CACHE_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ENABLE_EVENT_PUBLISHING", "false")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "postgres://test@localhost/observatory", cfg.StoreConnString)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.False(t, cfg.EnableEventPublishing)
}
