package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig reads CB_DB_* overrides for the postgres breaker.
func DatabaseConfig() Config {
	return Config{
		FailureThreshold: envUint32("CB_DB_FAILURE_THRESHOLD", 5),
		SuccessThreshold: envUint32("CB_DB_SUCCESS_THRESHOLD", 2),
		HalfOpenRequests: envUint32("CB_DB_MAX_REQUESTS", 3),
		OpenTimeout:      envDuration("CB_DB_TIMEOUT", 30*time.Second),
		ResetInterval:    envDuration("CB_DB_INTERVAL", 60*time.Second),
	}
}

// RedisConfig reads CB_REDIS_* overrides for the cache breaker.
func RedisConfig() Config {
	return Config{
		FailureThreshold: envUint32("CB_REDIS_FAILURE_THRESHOLD", 3),
		SuccessThreshold: envUint32("CB_REDIS_SUCCESS_THRESHOLD", 2),
		HalfOpenRequests: envUint32("CB_REDIS_MAX_REQUESTS", 5),
		OpenTimeout:      envDuration("CB_REDIS_TIMEOUT", 15*time.Second),
		ResetInterval:    envDuration("CB_REDIS_INTERVAL", 30*time.Second),
	}
}

func envUint32(key string, def uint32) uint32 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint32(n)
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
