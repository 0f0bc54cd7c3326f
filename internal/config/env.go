// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort            = "PORT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
	EnvDataDir         = "DATA_DIR"

	// Bot identity and roles
	EnvBotPrefixes        = "BOT_PREFIXES"
	EnvBotFooter          = "BOT_FOOTER"
	EnvBotOwnerPhones     = "BOT_OWNER_PHONES"
	EnvBotOwnerPhone      = "BOT_OWNER_PHONE"
	EnvAdminPhone         = "ADMIN_PHONE"
	EnvAdminPhones        = "ADMIN_PHONES"
	EnvMerchantEscalation = "MERCHANT_ESCALATION"

	// Admission and dispatch
	EnvMessageRateLimit      = "MESSAGE_RATE_LIMIT"
	EnvMessageRateWindow     = "MESSAGE_RATE_WINDOW"
	EnvCommandTimeout        = "COMMAND_TIMEOUT"
	EnvCooldownSweepInterval = "COOLDOWN_SWEEP_INTERVAL"

	// Delivery
	EnvRetryQueueInterval    = "RETRY_QUEUE_INTERVAL"
	EnvRetryQueueMaxAttempts = "RETRY_QUEUE_MAX_ATTEMPTS"
	EnvRetryQueueCapacity    = "RETRY_QUEUE_CAPACITY"
	EnvSendRatePerSecond     = "SEND_RATE_PER_SECOND"
	EnvSendBurst             = "SEND_BURST"

	// Backend API
	EnvAPIBaseURL        = "API_BASE_URL"
	EnvAPIKey            = "API_KEY"
	EnvAPITimeout        = "API_TIMEOUT"
	EnvAPIMaxAttempts    = "API_MAX_ATTEMPTS"
	EnvAPIRetryBaseDelay = "API_RETRY_BASE_DELAY"
	EnvAPIRetryMaxDelay  = "API_RETRY_MAX_DELAY"

	// Storage
	EnvRoleCacheTTL     = "ROLE_CACHE_TTL"
	EnvHistoryRetention = "HISTORY_RETENTION"

	// WhatsApp
	EnvWhatsAppLogLevel = "WHATSAPP_LOG_LEVEL"

	// Webhook
	EnvWebhookSecret = "WEBHOOK_SECRET"

	// Metrics
	EnvMetricsUsername = "METRICS_USERNAME"
	EnvMetricsPassword = "METRICS_PASSWORD"

	// Observability
	EnvSentryDSN           = "SENTRY_DSN"
	EnvSentryEnvironment   = "SENTRY_ENVIRONMENT"
	EnvSentrySampleRate    = "SENTRY_SAMPLE_RATE"
	EnvBetterStackToken    = "BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "BETTERSTACK_ENDPOINT"
	EnvBetterStackLevel    = "BETTERSTACK_LEVEL"

	// LLM
	EnvGeminiAPIKey         = "GEMINI_API_KEY"
	EnvGeminiModel          = "GEMINI_MODEL"
	EnvGroqAPIKey           = "GROQ_API_KEY"
	EnvGroqModel            = "GROQ_MODEL"
	EnvLLMRateBurst         = "LLM_RATE_BURST"
	EnvLLMRateRefillPerHour = "LLM_RATE_REFILL_PER_HOUR"

	// R2 backups
	EnvR2AccountID       = "R2_ACCOUNT_ID"
	EnvR2AccessKeyID     = "R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "R2_SECRET_ACCESS_KEY"
	EnvR2BucketName      = "R2_BUCKET_NAME"
	EnvR2BackupPrefix    = "R2_BACKUP_PREFIX"
	EnvR2BackupKeep      = "R2_BACKUP_KEEP"
)
