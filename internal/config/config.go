// Package config provides environment configuration for the relay server.
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

	// Postgres settings
	PostgresURL string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Redis settings (credential cache; disabled when address is empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// JWT settings
	JWTSecret string

	// Provider settings
	ProviderBaseURL     string
	ProviderVerifyToken string

	// Message body encryption key (hex, 32 bytes)
	EncryptionKey string

	// Task queue
	QueueConcurrency int
	QueueTaskTimeout time.Duration
	QueueMaxRetries  int

	// Circuit breakers
	StorageBreakerFailures  int
	StorageBreakerTimeout   time.Duration
	StorageBreakerSuccesses int
	StorageBreakerReset     time.Duration
	APIBreakerFailures      int
	APIBreakerTimeout       time.Duration
	APIBreakerSuccesses     int
	APIBreakerReset         time.Duration

	// Webhook rate limiter (sliding window per bot+IP)
	WebhookLimitWindow   time.Duration
	WebhookLimitRequests int
	WebhookLimitBlock    time.Duration

	// General API rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Scheduler
	SchedulerInterval  time.Duration
	SchedulerBatchSize int

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Postgres
		PostgresURL: getEnv("POSTGRES_URL", "postgres://localhost:5432/relay?sslmode=disable"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisTTL:      getDurationEnv("REDIS_TTL", 10*time.Minute),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Provider
		ProviderBaseURL:     getEnv("PROVIDER_BASE_URL", "https://graph.facebook.com/v19.0"),
		ProviderVerifyToken: getEnv("PROVIDER_VERIFY_TOKEN", ""),

		// Encryption
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		// Task queue
		QueueConcurrency: getIntEnv("QUEUE_CONCURRENCY", 10),
		QueueTaskTimeout: getDurationEnv("QUEUE_TASK_TIMEOUT", 30*time.Second),
		QueueMaxRetries:  getIntEnv("QUEUE_MAX_RETRIES", 3),

		// Circuit breakers
		StorageBreakerFailures:  getIntEnv("STORAGE_BREAKER_FAILURES", 10),
		StorageBreakerTimeout:   getDurationEnv("STORAGE_BREAKER_TIMEOUT", 30*time.Second),
		StorageBreakerSuccesses: getIntEnv("STORAGE_BREAKER_SUCCESSES", 3),
		StorageBreakerReset:     getDurationEnv("STORAGE_BREAKER_RESET", 120*time.Second),
		APIBreakerFailures:      getIntEnv("API_BREAKER_FAILURES", 5),
		APIBreakerTimeout:       getDurationEnv("API_BREAKER_TIMEOUT", 60*time.Second),
		APIBreakerSuccesses:     getIntEnv("API_BREAKER_SUCCESSES", 2),
		APIBreakerReset:         getDurationEnv("API_BREAKER_RESET", 300*time.Second),

		// Webhook rate limiter
		WebhookLimitWindow:   getDurationEnv("WEBHOOK_LIMIT_WINDOW", time.Minute),
		WebhookLimitRequests: getIntEnv("WEBHOOK_LIMIT_REQUESTS", 200),
		WebhookLimitBlock:    getDurationEnv("WEBHOOK_LIMIT_BLOCK", 30*time.Second),

		// General API rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Scheduler
		SchedulerInterval:  getDurationEnv("SCHEDULER_INTERVAL", time.Minute),
		SchedulerBatchSize: getIntEnv("SCHEDULER_BATCH_SIZE", 100),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
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

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
