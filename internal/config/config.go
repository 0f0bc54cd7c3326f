// Package config provides application configuration management.
// It loads settings from environment variables (and an optional .env file)
// and provides defaults for the bot, backend client, delivery pipeline and
// optional integrations.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Data Configuration
	DataDir          string        // Data directory for SQLite databases
	RoleCacheTTL     time.Duration // How long backend role lookups are trusted
	HistoryRetention time.Duration // How long command history rows are kept

	// Metrics Authentication
	MetricsUsername string // Username for /metrics endpoint Basic Auth (default: "prometheus")
	MetricsPassword string // Password for /metrics endpoint Basic Auth (empty = no auth)

	// WebhookSecret authenticates backend push notifications (empty = no auth)
	WebhookSecret string

	// Error tracking and remote logs
	SentryDSN           string
	SentryEnvironment   string
	SentrySampleRate    float64
	BetterStackToken    string
	BetterStackEndpoint string
	BetterStackLevel    string

	Bot      BotConfig
	Backend  BackendConfig
	WhatsApp WhatsAppConfig
	LLM      LLMConfig
	R2       R2Config
}

// BackendConfig configures the e-commerce REST API client.
type BackendConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration // Per-attempt timeout
	MaxAttempts    int           // Total attempts including the first
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// WhatsAppConfig configures the multi-device session.
type WhatsAppConfig struct {
	LogLevel string // whatsmeow log level: DEBUG, INFO, WARN, ERROR
}

// LLMConfig configures the optional natural-language intent classifier.
type LLMConfig struct {
	GeminiAPIKey      string
	GeminiModel       string // Empty selects the package default
	GroqAPIKey        string
	GroqModel         string
	RateBurst         float64 // Per-user burst of classifier calls
	RateRefillPerHour float64 // Per-user refill per hour
}

// R2Config configures Cloudflare R2 uploads for database backups.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	BackupPrefix    string
	BackupKeep      int // Newest snapshots kept after each backup
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv(EnvPort, "3001"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, 30*time.Second),

		DataDir:          getEnv(EnvDataDir, getDefaultDataDir()),
		RoleCacheTTL:     getDurationEnv(EnvRoleCacheTTL, time.Hour),
		HistoryRetention: getDurationEnv(EnvHistoryRetention, 30*24*time.Hour),

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),
		WebhookSecret:   getEnv(EnvWebhookSecret, ""),

		SentryDSN:           getEnv(EnvSentryDSN, ""),
		SentryEnvironment:   getEnv(EnvSentryEnvironment, "production"),
		SentrySampleRate:    getFloatEnv(EnvSentrySampleRate, 1.0),
		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),
		BetterStackLevel:    getEnv(EnvBetterStackLevel, ""),

		Bot: loadBotConfig(),

		Backend: BackendConfig{
			BaseURL:        strings.TrimRight(getEnv(EnvAPIBaseURL, "http://localhost:5174"), "/"),
			APIKey:         getEnv(EnvAPIKey, ""),
			Timeout:        getDurationEnv(EnvAPITimeout, BackendRequest),
			MaxAttempts:    getIntEnv(EnvAPIMaxAttempts, 3),
			RetryBaseDelay: getDurationEnv(EnvAPIRetryBaseDelay, BackendRetryInitial),
			RetryMaxDelay:  getDurationEnv(EnvAPIRetryMaxDelay, BackendRetryMax),
		},

		WhatsApp: WhatsAppConfig{
			LogLevel: strings.ToUpper(getEnv(EnvWhatsAppLogLevel, "WARN")),
		},

		LLM: LLMConfig{
			GeminiAPIKey:      getEnv(EnvGeminiAPIKey, ""),
			GeminiModel:       getEnv(EnvGeminiModel, ""),
			GroqAPIKey:        getEnv(EnvGroqAPIKey, ""),
			GroqModel:         getEnv(EnvGroqModel, ""),
			RateBurst:         getFloatEnv(EnvLLMRateBurst, 10),
			RateRefillPerHour: getFloatEnv(EnvLLMRateRefillPerHour, 20),
		},

		R2: R2Config{
			AccountID:       getEnv(EnvR2AccountID, ""),
			AccessKeyID:     getEnv(EnvR2AccessKeyID, ""),
			SecretAccessKey: getEnv(EnvR2SecretAccessKey, ""),
			BucketName:      getEnv(EnvR2BucketName, ""),
			BackupPrefix:    getEnv(EnvR2BackupPrefix, "backups/"),
			BackupKeep:      getIntEnv(EnvR2BackupKeep, 14),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %v", c.ShutdownTimeout))
	}
	if c.RoleCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("ROLE_CACHE_TTL must be positive, got %v", c.RoleCacheTTL))
	}
	if c.HistoryRetention <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_RETENTION must be positive, got %v", c.HistoryRetention))
	}
	if c.SentrySampleRate < 0 || c.SentrySampleRate > 1 {
		errs = append(errs, fmt.Errorf("SENTRY_SAMPLE_RATE must be within [0,1], got %v", c.SentrySampleRate))
	}
	if err := c.Bot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bot config: %w", err))
	}
	if err := c.Backend.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("backend config: %w", err))
	}
	if c.R2.partiallyConfigured() {
		errs = append(errs, errors.New("R2 backups need R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY and R2_BUCKET_NAME together"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the backend client settings.
func (b BackendConfig) Validate() error {
	var errs []error
	u, err := url.Parse(b.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", b.BaseURL))
	}
	if b.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("API_TIMEOUT must be positive, got %v", b.Timeout))
	}
	if b.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("API_MAX_ATTEMPTS must be at least 1, got %d", b.MaxAttempts))
	}
	if b.RetryBaseDelay <= 0 || b.RetryMaxDelay < b.RetryBaseDelay {
		errs = append(errs, fmt.Errorf("API retry delays invalid: base=%v max=%v", b.RetryBaseDelay, b.RetryMaxDelay))
	}
	return errors.Join(errs...)
}

// Enabled reports whether all R2 credentials are present.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.SecretAccessKey != "" && r.BucketName != ""
}

func (r R2Config) partiallyConfigured() bool {
	anySet := r.AccountID != "" || r.AccessKeyID != "" || r.SecretAccessKey != "" || r.BucketName != ""
	return anySet && !r.Enabled()
}

// Endpoint returns the S3-compatible endpoint for the account.
func (r R2Config) Endpoint() string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.AccountID)
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated variable, dropping blanks.
func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

// SQLitePath returns the path of the bot's own database (history, caches, carts).
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "bot.db")
}

// SessionPath returns the path of the WhatsApp device store.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "whatsapp.db")
}

// HasLLMProvider returns true if at least one LLM provider is configured.
func (c *Config) HasLLMProvider() bool {
	return c.LLM.GeminiAPIKey != "" || c.LLM.GroqAPIKey != ""
}
