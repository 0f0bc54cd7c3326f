// Package ctxutil provides type-safe context value management for
// per-message tracing fields. Uses private key types to prevent collisions.
package ctxutil

import (
	"context"
)

type contextKey string

const (
	userIDKey    contextKey = "ctxutil.userID"
	chatIDKey    contextKey = "ctxutil.chatID"
	requestIDKey contextKey = "ctxutil.requestID"
	commandKey   contextKey = "ctxutil.command"
)

// WithUserID adds the sender's normalized phone number to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the user ID, or an empty string when absent.
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

// MustGetUserID retrieves the user ID from the context.
// Panics if the user ID is not found.
func MustGetUserID(ctx context.Context) string {
	userID := GetUserID(ctx)
	if userID == "" {
		panic("ctxutil: userID not found")
	}
	return userID
}

// WithChatID adds the conversation JID (private chat or group) to the context.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey, chatID)
}

// GetChatID returns the chat ID, or an empty string when absent.
func GetChatID(ctx context.Context) string {
	return stringValue(ctx, chatIDKey)
}

// WithRequestID adds a request ID to the context for log correlation.
// Inbound messages use the WhatsApp message ID; HTTP requests get a UUID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns the request ID and true if found, empty string and false otherwise.
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok
}

// WithCommand records the resolved command name being dispatched.
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, commandKey, command)
}

// GetCommand returns the command name, or an empty string when absent.
func GetCommand(ctx context.Context) string {
	return stringValue(ctx, commandKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// PreserveTracing creates a detached context that preserves tracing values.
// The new context is independent of the parent's cancellation and deadlines.
//
// Only tracing values are copied onto a fresh context.Background(), so the
// parent context is not retained (Go issue #64478).
//
// Use for async work that must outlive the parent, such as audit records
// and webhook notifications sent after the HTTP response.
func PreserveTracing(ctx context.Context) context.Context {
	newCtx := context.Background()

	if userID := GetUserID(ctx); userID != "" {
		newCtx = WithUserID(newCtx, userID)
	}
	if chatID := GetChatID(ctx); chatID != "" {
		newCtx = WithChatID(newCtx, chatID)
	}
	if requestID, ok := GetRequestID(ctx); ok && requestID != "" {
		newCtx = WithRequestID(newCtx, requestID)
	}
	if command := GetCommand(ctx); command != "" {
		newCtx = WithCommand(newCtx, command)
	}

	return newCtx
}
