package backend

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"net/http"
	"syscall"
	"time"
)

// retryableStatus lists HTTP statuses that are retried.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// permanentError stops retryWithBackoff immediately.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// retryWithBackoff calls fn up to attempts times. Between tries it waits
// initialDelay * 2^n with ±25% jitter, capped at maxDelay.
//
// With initialDelay=1s, maxDelay=8s, attempts=3:
//
//	try 1: immediate
//	try 2: ~1s (0.75s - 1.25s)
//	try 3: ~2s (1.5s - 2.5s)
//
// It returns the last error, unwrapped from permanentError, and whether the
// attempts were exhausted on retryable failures.
func retryWithBackoff(ctx context.Context, attempts int, initialDelay, maxDelay time.Duration, fn func(attempt int) error) (err error, exhausted bool) {
	attempts = max(attempts, 1)

	for attempt := range attempts {
		err = fn(attempt)
		if err == nil {
			return nil, false
		}

		var permErr *permanentError
		if errors.As(err, &permErr) {
			return permErr.Unwrap(), false
		}

		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(backoffDelay(attempt, initialDelay, maxDelay))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err(), false
		}
	}

	return err, true
}

func backoffDelay(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	delay := time.Duration(float64(initialDelay) * math.Pow(2, float64(attempt)))
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	halfDelay := int64(delay) / 2
	if halfDelay <= 0 {
		return delay
	}
	jitterBig, err := rand.Int(rand.Reader, big.NewInt(halfDelay))
	if err != nil {
		jitterBig = big.NewInt(0)
	}
	return delay - delay/4 + time.Duration(jitterBig.Int64())
}

// isRetryableTransportError reports connection refusals and timeouts.
func isRetryableTransportError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
