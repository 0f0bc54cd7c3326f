package nlu

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// Action is what a caller should do after a classifier error.
type Action int

const (
	// ActionRetry retries the same provider.
	ActionRetry Action = iota
	// ActionFallback moves on to the next provider.
	ActionFallback
	// ActionFail gives up.
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// ClassifyError maps a provider error to an Action. Status codes from the
// SDK error types win over message matching.
func ClassifyError(err error) Action {
	if err == nil || errors.Is(err, context.Canceled) {
		return ActionFail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ActionRetry
	}
	if code := statusCode(err); code > 0 {
		return classifyStatus(err, code)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "quota", "billing", "daily limit"):
		return ActionFallback
	case containsAny(msg, "rate limit", "too many requests", "resource_exhausted",
		"unavailable", "overloaded", "timeout", "connection"):
		return ActionRetry
	case containsAny(msg, "unknown function", "no function call", "no tool call", "empty response"):
		// The model misbehaved; another provider may do better.
		return ActionFallback
	case containsAny(msg, "invalid", "unauthorized", "forbidden", "not found"):
		return ActionFail
	}
	return ActionRetry
}

func statusCode(err error) int {
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr != nil {
		return gErrPtr.Code
	}
	return 0
}

func classifyStatus(err error, code int) Action {
	switch {
	case code == http.StatusTooManyRequests:
		if containsAny(strings.ToLower(err.Error()), "quota", "billing") {
			return ActionFallback
		}
		return ActionRetry
	case code == http.StatusRequestTimeout, code == http.StatusConflict, code >= 500:
		return ActionRetry
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusNotFound:
		// Bad key or model for this provider; the next one may be fine.
		return ActionFallback
	default:
		return ActionFail
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
