package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SaveCommand appends a record to the command history.
func (db *DB) SaveCommand(ctx context.Context, rec *CommandRecord) error {
	query := `
		INSERT INTO command_history (user_id, chat_id, command, args, outcome, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	start := time.Now()
	result, err := db.writer.ExecContext(ctx, query,
		rec.UserID, rec.ChatID, rec.Command, rec.Args, rec.Outcome, rec.DurationMs, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save command: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		rec.ID = id
	}

	if duration := time.Since(start); duration > slowQueryThreshold {
		slog.WarnContext(ctx, "slow database operation",
			"operation", "SaveCommand",
			"duration_ms", duration.Milliseconds())
	}
	return nil
}

// RecentCommands returns the newest records first. A non-empty command
// filters by command name prefix.
func (db *DB) RecentCommands(ctx context.Context, command string, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, user_id, chat_id, command, args, outcome, duration_ms, created_at
		FROM command_history
	`
	args := []any{}
	if command = strings.TrimSpace(command); command != "" {
		query += ` WHERE command LIKE ? ESCAPE '\'`
		args = append(args, sanitizeSearchTerm(strings.ToLower(command))+"%")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query command history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []CommandRecord
	for rows.Next() {
		var (
			rec       CommandRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ChatID, &rec.Command, &rec.Args,
			&rec.Outcome, &rec.DurationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan command record: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate command history: %w", err)
	}
	return records, nil
}

// CountCommandsSince counts records created at or after since.
func (db *DB) CountCommandsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := db.reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM command_history WHERE created_at >= ?`, since.Unix()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count commands: %w", err)
	}
	return count, nil
}

// DeleteCommandsBefore removes records older than cutoff and returns how
// many were removed.
func (db *DB) DeleteCommandsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.writer.ExecContext(ctx, `DELETE FROM command_history WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old commands: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
