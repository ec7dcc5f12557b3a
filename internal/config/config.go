package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the observatory service.
type Config struct {
	// Store connection
	StoreDriver     string
	StoreConnString string

	// Event bus
	NatsURL               string
	EnableEventPublishing bool

	// Gate state cache
	GateCacheDriver string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	// Operational settings
	HealthPort string
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	// Try multiple .env locations
	envPaths := []string{
		".env",
		"../.env",
		"/app/.env", // Docker
	}

	envLoaded := false
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			log.Printf("Loaded config from: %s", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		log.Printf("No .env file found, using environment variables")
	}

	config := &Config{
		// Store (memory works without a connection string)
		StoreDriver:     getEnvOrDefault("STORE_DRIVER", "postgres"),
		StoreConnString: os.Getenv("STORE_CONNECTION_STRING"),

		// Event bus with defaults
		NatsURL:               getEnvOrDefault("NATS_URL", "nats://localhost:4222"),
		EnableEventPublishing: getEnvOrDefault("ENABLE_EVENT_PUBLISHING", "true") == "true",

		// Gate state cache with defaults
		GateCacheDriver: getEnvOrDefault("GATE_CACHE_DRIVER", "redis"),
		RedisAddr:       getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         parseIntOrDefault("REDIS_DB", 0),

		HealthPort: getEnvOrDefault("HEALTH_PORT", "8080"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.StoreDriver == "" {
		return fmt.Errorf("STORE_DRIVER is required")
	}

	if c.StoreDriver != "memory" && c.StoreConnString == "" {
		return fmt.Errorf("STORE_CONNECTION_STRING is required for driver %q", c.StoreDriver)
	}

	if c.GateCacheDriver == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	return nil
}

// Helper functions
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
