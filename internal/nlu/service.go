package nlu

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/garyellow/whatsapp-commerce-bot/internal/command"
	"github.com/garyellow/whatsapp-commerce-bot/internal/config"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
	"github.com/garyellow/whatsapp-commerce-bot/internal/ratelimit"
)

const (
	// classifyTimeout bounds one LLM round trip including retries.
	classifyTimeout = 8 * time.Second
	// Short chatter and pasted essays are not worth a model call.
	minLLMRunes = 3
	maxLLMRunes = 500
)

// Service detects intents: keyword table first, then the LLM chain.
type Service struct {
	llm     Classifier
	limiter *ratelimit.KeyedLimiter
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewService builds the classifier chain from config. Without API keys
// the service answers from the keyword table alone.
func NewService(ctx context.Context, cfg config.LLMConfig, m *metrics.Metrics, log *logger.Logger) (*Service, error) {
	gemini, err := NewGeminiClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		return nil, err
	}
	groq := NewGroqClassifier(cfg.GroqAPIKey, cfg.GroqModel, log)

	var llm Classifier
	if chain := NewChain(DefaultRetryConfig, log, gemini, groq); chain != nil {
		llm = chain
	}
	return newService(llm, cfg, m, log), nil
}

func newService(llm Classifier, cfg config.LLMConfig, m *metrics.Metrics, log *logger.Logger) *Service {
	s := &Service{llm: llm, metrics: m, log: log.WithModule("nlu")}
	if llm != nil {
		s.limiter = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
			Name:       "llm",
			Burst:      cfg.RateBurst,
			RefillRate: cfg.RateRefillPerHour / 3600,
			Metrics:    m,
		})
	}
	return s
}

// LLMEnabled reports whether a model classifier is configured.
func (s *Service) LLMEnabled() bool { return s != nil && s.llm != nil }

// Quota reports userID's remaining classifier allowance. ok is false when
// no model is configured.
func (s *Service) Quota(userID string) (u ratelimit.Usage, ok bool) {
	if !s.LLMEnabled() {
		return ratelimit.Usage{}, false
	}
	return s.limiter.Usage(userID), true
}

// Detect classifies text on behalf of userID. It never returns an error;
// LLM failures and rate limiting read as no match.
func (s *Service) Detect(ctx context.Context, userID, text string) (Result, bool) {
	if s == nil {
		return Result{}, false
	}
	if intent, ok := command.DetectIntent(text); ok {
		s.record(intent, SourceKeyword)
		return Result{Intent: intent, Source: SourceKeyword}, true
	}
	if s.llm == nil {
		return Result{}, false
	}
	if n := utf8.RuneCountInString(text); n < minLLMRunes || n > maxLLMRunes {
		return Result{}, false
	}
	if !s.limiter.Allow(userID) {
		s.log.WithField("user", userID).Debugf("LLM classification rate limited")
		return Result{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()
	res, err := s.llm.Classify(ctx, text)
	if err != nil {
		s.log.WithError(err).Warnf("LLM classification failed")
		return Result{}, false
	}
	if res.Intent == "" && res.Reply == "" {
		return Result{}, false
	}
	res.Source = SourceLLM
	s.record(res.Intent, SourceLLM)
	return res, true
}

func (s *Service) record(intent command.Intent, source string) {
	if s.metrics == nil {
		return
	}
	label := string(intent)
	if label == "" {
		label = directReply
	}
	s.metrics.RecordIntent(label, source)
}

// Close stops the limiter's cleanup loop.
func (s *Service) Close() {
	if s != nil && s.limiter != nil {
		s.limiter.Stop()
	}
}
