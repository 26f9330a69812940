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

// EmailConfig provides settings for SMTP email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// ProcessorConfig provides settings for the external payment processor.
type ProcessorConfig interface {
	GetProcessorBaseURL() string
	GetProcessorAPIKey() string
	GetProcessorTimeout() time.Duration
	IsProcessorEnabled() bool
}

// WebhookConfig provides settings for inbound webhook authentication.
type WebhookConfig interface {
	GetPaymentWebhookKey() string
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketBookingConfirmations() string
	IsMinIOEnabled() bool
}

// SupplierAPIConfig provides settings for external booking providers.
type SupplierAPIConfig interface {
	GetSupplierEndpoints() map[string]string
	GetSupplierAPIKey(provider string) string
	GetSupplierCallTimeout() time.Duration
	GetSupplierPrepareTimeout() time.Duration
	GetSupplierRatePerMinute(provider string) int
}

// AppConfig provides application-level settings such as the front-end URL
// used in email deep links.
type AppConfig interface {
	GetAppBaseURL() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	JWTAccessSecret string
	CORSAllowAll    bool
	CORSOrigins     []string
	CORSAllowCreds  bool
	AppBaseURL      string

	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	ProcessorBaseURL string
	ProcessorAPIKey  string
	ProcessorTimeout time.Duration

	PaymentWebhookKey string

	MinIOEndpoint              string
	MinIOAccessKey             string
	MinIOSecretKey             string
	MinIOUseSSL                bool
	MinIOMaxFileSize           int64
	BucketBookingConfirmations string

	SupplierEndpoints      map[string]string
	SupplierAPIKeys        map[string]string
	SupplierCallTimeout    time.Duration
	SupplierPrepareTimeout time.Duration
	SupplierRatePerMinute  map[string]int
}

// Load reads configuration from the environment (and an optional .env file)
// and validates required settings.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true")

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:    corsAllowAll,
		CORSOrigins:     corsOrigins,
		CORSAllowCreds:  strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:      getEnv("APP_BASE_URL", "http://localhost:4200"),

		EmailEnabled:     emailEnabled,
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getIntEnv("SMTP_PORT", 587),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "TripDesk"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getIntEnv("ASYNQ_CONCURRENCY", 10),

		ProcessorBaseURL: getEnv("PROCESSOR_BASE_URL", ""),
		ProcessorAPIKey:  getEnv("PROCESSOR_API_KEY", ""),
		ProcessorTimeout: getDurationEnv("PROCESSOR_TIMEOUT", 10*time.Second),

		PaymentWebhookKey: getEnv("PAYMENT_WEBHOOK_KEY", ""),

		MinIOEndpoint:              getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:             getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:             getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:           getInt64Env("MINIO_MAX_FILE_SIZE", 10*1024*1024),
		BucketBookingConfirmations: getEnv("MINIO_BUCKET_BOOKING_CONFIRMATIONS", "booking-confirmations"),

		SupplierEndpoints:      parseKVList(getEnv("SUPPLIER_ENDPOINTS", "")),
		SupplierAPIKeys:        parseKVList(getEnv("SUPPLIER_API_KEYS", "")),
		SupplierCallTimeout:    getDurationEnv("SUPPLIER_CALL_TIMEOUT", 15*time.Second),
		SupplierPrepareTimeout: getDurationEnv("SUPPLIER_PREPARE_TIMEOUT", 8*time.Second),
		SupplierRatePerMinute:  parseKVIntList(getEnv("SUPPLIER_RATE_PER_MINUTE", "")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.PaymentWebhookKey == "" {
		return nil, fmt.Errorf("PAYMENT_WEBHOOK_KEY is required")
	}
	if emailEnabled && (cfg.SMTPHost == "" || cfg.EmailFromAddress == "") {
		return nil, fmt.Errorf("SMTP_HOST and EMAIL_FROM_ADDRESS are required when EMAIL_ENABLED is true")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

// =============================================================================
// Interface implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetAppBaseURL() string    { return c.AppBaseURL }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

func (c *Config) GetRedisURL() string      { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetProcessorBaseURL() string        { return c.ProcessorBaseURL }
func (c *Config) GetProcessorAPIKey() string         { return c.ProcessorAPIKey }
func (c *Config) GetProcessorTimeout() time.Duration { return c.ProcessorTimeout }
func (c *Config) IsProcessorEnabled() bool {
	return c.ProcessorBaseURL != "" && c.ProcessorAPIKey != ""
}

func (c *Config) GetPaymentWebhookKey() string { return c.PaymentWebhookKey }

func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64 {
	return c.MinIOMaxFileSize
}
func (c *Config) GetMinioBucketBookingConfirmations() string {
	return c.BucketBookingConfirmations
}
func (c *Config) IsMinIOEnabled() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

func (c *Config) GetSupplierEndpoints() map[string]string { return c.SupplierEndpoints }
func (c *Config) GetSupplierAPIKey(provider string) string {
	return c.SupplierAPIKeys[provider]
}
func (c *Config) GetSupplierCallTimeout() time.Duration    { return c.SupplierCallTimeout }
func (c *Config) GetSupplierPrepareTimeout() time.Duration { return c.SupplierPrepareTimeout }
func (c *Config) GetSupplierRatePerMinute(provider string) int {
	return c.SupplierRatePerMinute[provider]
}

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt64Env(key string, fallback int64) int64 {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getDurationEnv falls back on a missing or malformed value. Timeouts must
// never come out zero, since a zero http.Client timeout disables the bound.
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// parseKVList parses "key1=value1,key2=value2" pairs into a map.
// Used for per-provider endpoint and API key configuration.
func parseKVList(value string) map[string]string {
	result := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if key != "" && val != "" {
			result[key] = val
		}
	}
	return result
}

func parseKVIntList(value string) map[string]int {
	result := make(map[string]int)
	for key, raw := range parseKVList(value) {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			continue
		}
		result[key] = parsed
	}
	return result
}
