package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryStore bool

	// MemoryTenantsJSON seeds the in-process tenant store in memory mode.
	MemoryTenantsJSON string

	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	TenantCacheTTL time.Duration

	// Voice provider
	CallWebhookSecret string
	WebhookTimeout    time.Duration
	RetellAPIKey      string
	RetellBaseURL     string
	RetellTimeout     time.Duration
	RetellMaxRetries  int

	// Billing
	DefaultCostPerMinute float64

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	CallArchiveBucket   string

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	FollowUpDedupeTTL time.Duration

	OperatorJWTSecret string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		MemoryTenantsJSON: getEnv("MEMORY_TENANTS_JSON", ""),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		TenantCacheTTL: getEnvAsDuration("TENANT_CACHE_TTL", 5*time.Minute),

		CallWebhookSecret: getEnv("CALL_WEBHOOK_SECRET", ""),
		WebhookTimeout:    getEnvAsDuration("CALL_WEBHOOK_TIMEOUT", 25*time.Second),
		RetellAPIKey:      getEnv("RETELL_API_KEY", ""),
		RetellBaseURL:     strings.TrimRight(getEnv("RETELL_BASE_URL", "https://api.retellai.com"), "/"),
		RetellTimeout:     getEnvAsDuration("RETELL_TIMEOUT", 10*time.Second),
		RetellMaxRetries:  getEnvAsInt("RETELL_MAX_RETRIES", 1),

		DefaultCostPerMinute: getEnvAsFloat("CALL_COST_PER_MINUTE", 0.05),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		CallArchiveBucket:   getEnv("CALL_ARCHIVE_BUCKET", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "CRM Calls"),
		FollowUpDedupeTTL: getEnvAsDuration("FOLLOW_UP_DEDUPE_TTL", 7*24*time.Hour),

		OperatorJWTSecret: getEnv("OPERATOR_JWT_SECRET", ""),
	}
}

// MemoryMode reports whether stores should run in-process.
func (c *Config) MemoryMode() bool {
	return c.UseMemoryStore || strings.TrimSpace(c.DatabaseURL) == ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil && value >= 0 {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
