// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// EmailConfig provides settings for the SMTP email channel.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// SMSConfig provides settings for the SMS gateway channel.
type SMSConfig interface {
	GetSMSGatewayURL() string
	GetSMSGatewayAPIKey() string
	IsSMSEnabled() bool
}

// SchedulerConfig provides settings for the background scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetProcessDueInterval() time.Duration
	GetProcessDueBatchSize() int
}

// NurturingConfig provides settings for nurturing dispatch.
type NurturingConfig interface {
	GetDispatchTimeout() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	MigrationsDir       string
	JWTAccessSecret     string
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	EmailEnabled        bool
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	EmailFromName       string
	EmailFromAddress    string
	SMSGatewayURL       string
	SMSGatewayAPIKey    string
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	ProcessDueInterval  time.Duration
	ProcessDueBatchSize int
	DispatchTimeout     time.Duration
	SequenceSeedFile    string
}

// Load reads configuration from environment variables, loading a .env file
// first when present. Missing required values return an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		MigrationsDir:       getEnv("MIGRATIONS_DIR", "migrations"),
		JWTAccessSecret:     os.Getenv("JWT_ACCESS_SECRET"),
		CORSAllowAll:        getBoolEnv("CORS_ALLOW_ALL", false),
		CORSOrigins:         splitList(os.Getenv("CORS_ORIGINS")),
		CORSAllowCreds:      getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
		EmailEnabled:        getBoolEnv("EMAIL_ENABLED", false),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            getIntEnv("SMTP_PORT", 587),
		SMTPUsername:        os.Getenv("SMTP_USERNAME"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Closing"),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
		SMSGatewayURL:       os.Getenv("SMS_GATEWAY_URL"),
		SMSGatewayAPIKey:    os.Getenv("SMS_GATEWAY_API_KEY"),
		RedisURL:            os.Getenv("REDIS_URL"),
		RedisTLSInsecure:    getBoolEnv("REDIS_TLS_INSECURE", false),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:    getIntEnv("ASYNQ_CONCURRENCY", 10),
		ProcessDueInterval:  getDurationEnv("NURTURING_PROCESS_INTERVAL", 30*time.Second),
		ProcessDueBatchSize: getIntEnv("NURTURING_PROCESS_BATCH_SIZE", 50),
		DispatchTimeout:     getDurationEnv("NURTURING_DISPATCH_TIMEOUT", 10*time.Second),
		SequenceSeedFile:    os.Getenv("NURTURING_SEQUENCE_SEED_FILE"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}

	return cfg, nil
}

// =============================================================================
// Interface implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string       { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool     { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string  { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool   { return c.CORSAllowCreds }

func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

func (c *Config) GetSMSGatewayURL() string    { return c.SMSGatewayURL }
func (c *Config) GetSMSGatewayAPIKey() string { return c.SMSGatewayAPIKey }
func (c *Config) IsSMSEnabled() bool          { return c.SMSGatewayURL != "" }

func (c *Config) GetRedisURL() string                 { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool           { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string           { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int            { return c.AsynqConcurrency }
func (c *Config) GetProcessDueInterval() time.Duration { return c.ProcessDueInterval }
func (c *Config) GetProcessDueBatchSize() int         { return c.ProcessDueBatchSize }

func (c *Config) GetDispatchTimeout() time.Duration { return c.DispatchTimeout }

// =============================================================================
// Env helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitList(raw string) []string {
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
