package testsupport

import (
	"fmt"
	"os"
	"testing"

	"newsdesk/internal/adapters/config"
)

// LoadRedisConfigFromEnv reads the Redis section for integration tests.
// Tests are skipped when TEST_REDIS_HOST is not set.
func LoadRedisConfigFromEnv(t *testing.T) config.RedisConfig {
	t.Helper()

	host := os.Getenv("TEST_REDIS_HOST")
	if host == "" {
		t.Skip("integration environment missing, set TEST_REDIS_HOST to run")
	}

	return config.RedisConfig{
		Enabled:  true,
		Host:     host,
		Port:     intValue("TEST_REDIS_PORT", 6379),
		Password: os.Getenv("TEST_REDIS_PASSWORD"),
		DB:       intValue("TEST_REDIS_DB", 15),
	}
}

func intValue(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		_, err := fmt.Sscanf(val, "%d", &parsed)
		if err == nil {
			return parsed
		}
	}

	return fallback
}
