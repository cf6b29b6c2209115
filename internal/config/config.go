// Package config provides environment configuration for the flow engine.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT settings (admin API)
	JWTSecret string

	// Engine settings
	SessionTTL        time.Duration
	DedupWindow       time.Duration
	LockTTL           time.Duration
	APICallTimeout    time.Duration
	APIMaxRetries     int
	APIRetryWait      time.Duration
	DelayPollInterval time.Duration

	// Rate limiting (webhook)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Engine
		SessionTTL:        getDurationEnv("SESSION_TTL", time.Hour),
		DedupWindow:       getDurationEnv("DEDUP_WINDOW", 10*time.Minute),
		LockTTL:           getDurationEnv("LOCK_TTL", 30*time.Second),
		APICallTimeout:    getDurationEnv("API_CALL_TIMEOUT", 15*time.Second),
		APIMaxRetries:     getIntEnv("API_MAX_RETRIES", 2),
		APIRetryWait:      getDurationEnv("API_RETRY_WAIT", 500*time.Millisecond),
		DelayPollInterval: getDurationEnv("DELAY_POLL_INTERVAL", time.Second),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	// The conversation lock must outlive the longest legal event handling,
	// which is bounded by the apiCall retry budget. A shorter TTL would let
	// a second event for the same conversation run mid-call.
	if floor := cfg.apiCallBudget() + 5*time.Second; cfg.LockTTL < floor {
		cfg.LockTTL = floor
	}

	return cfg
}

// apiCallBudget is the worst-case wall time of one apiCall step: every
// attempt timing out plus the backoff waits between attempts.
func (c *Config) apiCallBudget() time.Duration {
	budget := time.Duration(c.APIMaxRetries+1) * c.APICallTimeout
	for i := 1; i <= c.APIMaxRetries; i++ {
		budget += time.Duration(i) * c.APIRetryWait
	}
	return budget
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
