package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Merchant escalation policies accepted by MERCHANT_ESCALATION.
const (
	MerchantEscalationStrict = "strict" // merchants only
	MerchantEscalationOwner  = "owner"  // merchants and the owner
	MerchantEscalationStaff  = "staff"  // merchants, the owner and admins
)

// DefaultPrefixes is the set of runes that start a command.
const DefaultPrefixes = "!#.$/~^"

// BotConfig centralizes command pipeline configuration.
type BotConfig struct {
	Prefixes           string   // Each rune is an accepted command prefix
	Footer             string   // Footer appended to interactive and fallback messages
	OwnerPhones        []string // Normalized owner phone numbers
	AdminPhones        []string // Normalized admin phone numbers
	MerchantEscalation string   // strict, owner or staff

	// Per-principal inbound message ceiling (sliding window)
	MessageRateLimit  int
	MessageRateWindow time.Duration

	CommandTimeout        time.Duration
	CooldownSweepInterval time.Duration

	// Delivery and retry queue
	RetryQueueInterval    time.Duration
	RetryQueueMaxAttempts int
	RetryQueueCapacity    int
	SendRatePerSecond     float64 // Outbound pacing across all chats
	SendBurst             float64
}

func loadBotConfig() BotConfig {
	owners := getListEnv(EnvBotOwnerPhones)
	if len(owners) == 0 {
		// Single-owner deployments set BOT_OWNER_PHONE or the older ADMIN_PHONE.
		if single := getEnv(EnvBotOwnerPhone, getEnv(EnvAdminPhone, "")); single != "" {
			owners = []string{single}
		}
	}

	return BotConfig{
		Prefixes:           getEnv(EnvBotPrefixes, DefaultPrefixes),
		Footer:             getEnv(EnvBotFooter, "Smart Bot"),
		OwnerPhones:        normalizePhones(owners),
		AdminPhones:        normalizePhones(getListEnv(EnvAdminPhones)),
		MerchantEscalation: strings.ToLower(getEnv(EnvMerchantEscalation, MerchantEscalationOwner)),

		MessageRateLimit:  getIntEnv(EnvMessageRateLimit, 5),
		MessageRateWindow: getDurationEnv(EnvMessageRateWindow, time.Minute),

		CommandTimeout:        getDurationEnv(EnvCommandTimeout, CommandHandling),
		CooldownSweepInterval: getDurationEnv(EnvCooldownSweepInterval, CooldownSweep),

		RetryQueueInterval:    getDurationEnv(EnvRetryQueueInterval, RetryQueueInterval),
		RetryQueueMaxAttempts: getIntEnv(EnvRetryQueueMaxAttempts, 3),
		RetryQueueCapacity:    getIntEnv(EnvRetryQueueCapacity, 1000),
		SendRatePerSecond:     getFloatEnv(EnvSendRatePerSecond, 5),
		SendBurst:             getFloatEnv(EnvSendBurst, 10),
	}
}

// Validate checks if the configuration is valid.
// Returns error describing validation failures.
func (c *BotConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Prefixes) == "" {
		errs = append(errs, errors.New("BOT_PREFIXES must contain at least one prefix"))
	}
	if strings.ContainsAny(c.Prefixes, " \t\r\n") {
		errs = append(errs, fmt.Errorf("BOT_PREFIXES cannot contain whitespace, got %q", c.Prefixes))
	}
	switch c.MerchantEscalation {
	case MerchantEscalationStrict, MerchantEscalationOwner, MerchantEscalationStaff:
	default:
		errs = append(errs, fmt.Errorf("MERCHANT_ESCALATION must be strict, owner or staff, got %q", c.MerchantEscalation))
	}
	if c.MessageRateLimit < 1 {
		errs = append(errs, fmt.Errorf("MESSAGE_RATE_LIMIT must be positive, got %d", c.MessageRateLimit))
	}
	if c.MessageRateWindow <= 0 {
		errs = append(errs, fmt.Errorf("MESSAGE_RATE_WINDOW must be positive, got %v", c.MessageRateWindow))
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("COMMAND_TIMEOUT must be positive, got %v", c.CommandTimeout))
	}
	if c.CooldownSweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("COOLDOWN_SWEEP_INTERVAL must be positive, got %v", c.CooldownSweepInterval))
	}
	if c.RetryQueueInterval <= 0 {
		errs = append(errs, fmt.Errorf("RETRY_QUEUE_INTERVAL must be positive, got %v", c.RetryQueueInterval))
	}
	if c.RetryQueueMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_QUEUE_MAX_ATTEMPTS must be positive, got %d", c.RetryQueueMaxAttempts))
	}
	if c.RetryQueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("RETRY_QUEUE_CAPACITY must be positive, got %d", c.RetryQueueCapacity))
	}
	if c.SendRatePerSecond <= 0 || c.SendBurst < 1 {
		errs = append(errs, fmt.Errorf("send pacing invalid: rate=%v burst=%v", c.SendRatePerSecond, c.SendBurst))
	}

	return errors.Join(errs...)
}

// normalizePhones keeps only digits so "+62 812-3456" matches WhatsApp's "628123456".
func normalizePhones(phones []string) []string {
	out := make([]string, 0, len(phones))
	for _, p := range phones {
		var b strings.Builder
		for _, r := range p {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			out = append(out, b.String())
		}
	}
	return out
}
