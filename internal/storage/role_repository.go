package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
)

// GetCachedRole returns the cached lookup for userID if it is younger than
// ttl. Missing or expired rows return an error wrapping ErrNotFound.
func (db *DB) GetCachedRole(ctx context.Context, userID string, ttl time.Duration) (*CachedRole, error) {
	query := `
		SELECT user_id, role, name, merchant_id, cached_at
		FROM user_roles
		WHERE user_id = ? AND cached_at > ?
	`
	var (
		role     CachedRole
		cachedAt int64
	)
	err := db.reader.QueryRowContext(ctx, query, userID, time.Now().Add(-ttl).Unix()).
		Scan(&role.UserID, &role.Role, &role.Name, &role.MerchantID, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("role for %s: %w", userID, domerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query role: %w", err)
	}
	role.CachedAt = time.Unix(cachedAt, 0)
	return &role, nil
}

// SaveRole inserts or refreshes a cached lookup.
func (db *DB) SaveRole(ctx context.Context, role *CachedRole) error {
	query := `
		INSERT INTO user_roles (user_id, role, name, merchant_id, cached_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			role = excluded.role,
			name = excluded.name,
			merchant_id = excluded.merchant_id,
			cached_at = excluded.cached_at
	`
	if _, err := db.writer.ExecContext(ctx, query,
		role.UserID, role.Role, role.Name, role.MerchantID, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save role: %w", err)
	}
	return nil
}

// DeleteExpiredRoles removes lookups older than ttl.
func (db *DB) DeleteExpiredRoles(ctx context.Context, ttl time.Duration) (int64, error) {
	result, err := db.writer.ExecContext(ctx, `DELETE FROM user_roles WHERE cached_at <= ?`, time.Now().Add(-ttl).Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired roles: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
