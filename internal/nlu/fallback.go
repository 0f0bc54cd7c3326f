package nlu

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
)

// RetryConfig bounds attempts against a single provider.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig keeps the worst case inside a chat-friendly budget.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:  2,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

// ErrNoClassifier is returned when no provider is configured.
var ErrNoClassifier = errors.New("no intent classifier configured")

// Chain tries classifiers in order. Each one is retried on transient
// errors; the chain moves on when ClassifyError says fallback.
type Chain struct {
	classifiers []Classifier
	retry       RetryConfig
	log         *logger.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewChain drops nil classifiers. It returns nil when none remain.
func NewChain(retry RetryConfig, log *logger.Logger, classifiers ...Classifier) *Chain {
	var kept []Classifier
	for _, c := range classifiers {
		if !isNil(c) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Chain{
		classifiers: kept,
		retry:       retry,
		log:         log.WithModule("nlu"),
		sleep:       sleepContext,
	}
}

// isNil catches typed nil pointers from the constructors.
func isNil(c Classifier) bool {
	switch v := c.(type) {
	case nil:
		return true
	case *GeminiClassifier:
		return v == nil
	case *OpenAIClassifier:
		return v == nil
	}
	return false
}

// Classify implements Classifier.
func (c *Chain) Classify(ctx context.Context, text string) (Result, error) {
	if c == nil {
		return Result{}, ErrNoClassifier
	}

	var lastErr error
	for i, cl := range c.classifiers {
		res, err := c.withRetry(ctx, cl, text)
		if err == nil {
			if i > 0 {
				c.log.WithField("provider", cl.Provider()).Infof("Fallback classifier answered")
			}
			return res, nil
		}
		lastErr = err
		action := ClassifyError(err)
		c.log.WithError(err).WithFields(map[string]any{
			"provider": cl.Provider(),
			"action":   action.String(),
		}).Warnf("Intent classifier failed")
		if action == ActionFail || ctx.Err() != nil {
			return Result{}, err
		}
	}
	return Result{}, fmt.Errorf("all classifiers failed: %w", lastErr)
}

func (c *Chain) withRetry(ctx context.Context, cl Classifier, text string) (Result, error) {
	var lastErr error
	for attempt := range c.retry.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := cl.Classify(ctx, text)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ClassifyError(err) != ActionRetry || attempt == c.retry.MaxAttempts-1 {
			break
		}
		if err := c.sleep(ctx, backoff(attempt+1, c.retry.InitialDelay, c.retry.MaxDelay)); err != nil {
			return Result{}, err
		}
	}
	return Result{}, lastErr
}

// Provider reports the primary provider.
func (c *Chain) Provider() Provider {
	if c == nil {
		return ""
	}
	return c.classifiers[0].Provider()
}

// backoff is exponential with full jitter, capped at maxDelay.
func backoff(attempt int, initial, maxDelay time.Duration) time.Duration {
	if initial <= 0 {
		return 0
	}
	d := initial << (attempt - 1)
	if d <= 0 || d > maxDelay {
		d = maxDelay
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
