package storage

import (
	"context"
	"time"
)

// HistoryRepository stores command dispatch records.
type HistoryRepository interface {
	SaveCommand(ctx context.Context, rec *CommandRecord) error
	RecentCommands(ctx context.Context, command string, limit int) ([]CommandRecord, error)
	CountCommandsSince(ctx context.Context, since time.Time) (int, error)
	DeleteCommandsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RoleRepository caches backend role lookups.
type RoleRepository interface {
	GetCachedRole(ctx context.Context, userID string, ttl time.Duration) (*CachedRole, error)
	SaveRole(ctx context.Context, role *CachedRole) error
	DeleteExpiredRoles(ctx context.Context, ttl time.Duration) (int64, error)
}

// CartRepository stores customer carts until checkout.
type CartRepository interface {
	AddCartItem(ctx context.Context, item *CartItem) error
	GetCart(ctx context.Context, userID string) ([]CartItem, error)
	RemoveCartItem(ctx context.Context, userID, productID string) error
	ClearCart(ctx context.Context, userID string) (int64, error)
}

// Compile-time interface checks.
var (
	_ HistoryRepository = (*DB)(nil)
	_ RoleRepository    = (*DB)(nil)
	_ CartRepository    = (*DB)(nil)
)
