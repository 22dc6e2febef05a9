package config

import (
	"os"
	"strconv"
	"time"

	"tokenguard-service/internal/pkg/token"
)

type AppConfig struct {
	// Server
	HTTPAddr    string
	DatabaseURL string
	RedisAddr   string
	RedisPass   string

	// Access tokens
	Token token.Config

	// Sessions
	SessionTTL          time.Duration
	MaxSessionsPerOwner int

	// Revocation
	RevocationPolicy string

	// Cleanup
	CleanupInterval time.Duration
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8000"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:   getEnv("REDIS_PASS", ""),

		Token: token.Config{
			Secret:   getEnv("TOKEN_SECRET", ""),
			Issuer:   getEnv("TOKEN_ISSUER", "tokenguard"),
			Audience: getEnv("TOKEN_AUDIENCE", "tokenguard-api"),
			TTL:      getEnvDuration("TOKEN_TTL", 15*time.Minute),
		},

		SessionTTL:          getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		MaxSessionsPerOwner: getEnvInt("MAX_SESSIONS_PER_OWNER", 5),

		RevocationPolicy: getEnv("REVOCATION_FAILURE_POLICY", "fail_open"),

		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),
	}
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
