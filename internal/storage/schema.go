package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates all tables and indexes.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if err := createCommandHistoryTable(ctx, db); err != nil {
		return err
	}
	if err := createUserRolesTable(ctx, db); err != nil {
		return err
	}
	return createCartsTable(ctx, db)
}

func createCommandHistoryTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS command_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		command TEXT NOT NULL,
		args TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_command_history_created_at ON command_history(created_at);
	CREATE INDEX IF NOT EXISTS idx_command_history_user ON command_history(user_id, created_at);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create command_history table: %w", err)
	}
	return nil
}

func createUserRolesTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS user_roles (
		user_id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		merchant_id TEXT NOT NULL DEFAULT '',
		cached_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_user_roles_cached_at ON user_roles(cached_at);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create user_roles table: %w", err)
	}
	return nil
}

func createCartsTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS cart_items (
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		name TEXT NOT NULL,
		merchant_id TEXT NOT NULL DEFAULT '',
		price REAL NOT NULL CHECK(price >= 0),
		quantity INTEGER NOT NULL CHECK(quantity > 0),
		added_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, product_id)
	);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create cart_items table: %w", err)
	}
	return nil
}
