package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AuthJWTSecret string

	// ClinicTimezone anchors all day/weekend/working-window logic.
	ClinicTimezone string

	// OutboundTimeout bounds every call to push, email, and video providers.
	OutboundTimeout time.Duration

	// EmailProvider selects the transactional email backend: sendgrid, ses, or stub.
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	SESFromEmail        string
	SESFromName         string

	PushGatewayURL string
	PushServerKey  string

	VideoAPIBaseURL string
	VideoAPIKey     string
	VideoAppID      string
	VideoTokenTTL   time.Duration

	// LockTTL caps how long a slot or appointment advisory lock may be held.
	LockTTL time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		ClinicTimezone: getEnv("CLINIC_TIMEZONE", "Asia/Kolkata"),

		OutboundTimeout: getEnvAsDuration("OUTBOUND_TIMEOUT", 15*time.Second),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinicore"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESFromName:         getEnv("SES_FROM_NAME", "Clinicore"),

		PushGatewayURL: getEnv("PUSH_GATEWAY_URL", ""),
		PushServerKey:  getEnv("PUSH_SERVER_KEY", ""),

		VideoAPIBaseURL: getEnv("VIDEO_API_BASE_URL", ""),
		VideoAPIKey:     getEnv("VIDEO_API_KEY", ""),
		VideoAppID:      getEnv("VIDEO_APP_ID", ""),
		VideoTokenTTL:   getEnvAsDuration("VIDEO_TOKEN_TTL", 24*time.Hour),

		LockTTL: getEnvAsDuration("LOCK_TTL", 10*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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
