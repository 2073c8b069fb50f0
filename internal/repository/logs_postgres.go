package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"market_call/internal/domain"
	"market_call/pkg/logger"
)

// PostgresLogBackend stores session log entries durably. Unlike the memory
// ring it has no global cap; retention is handled by the database.
type PostgresLogBackend struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewPostgresLogBackend(db *pgxpool.Pool, log logger.Logger) *PostgresLogBackend {
	return &PostgresLogBackend{db: db, log: log}
}

func (b *PostgresLogBackend) SaveLog(ctx context.Context, entry domain.LogEntry) error {
	query := `
		INSERT INTO session_logs (room_id, event_time, level, event, user_id, metadata)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`

	_, err := b.db.Exec(ctx, query,
		entry.RoomID, entry.Timestamp, string(entry.Level),
		entry.Event, entry.UserID, entry.Metadata,
	)
	if err != nil {
		b.log.Error("Failed to save session log entry", "room_id", entry.RoomID, "error", err)
		return err
	}
	return nil
}

func (b *PostgresLogBackend) GetLogsByRoom(ctx context.Context, roomID string, opts LogQueryOptions) ([]domain.LogEntry, error) {
	query := `
		SELECT room_id, event_time, level, event, COALESCE(user_id, ''), metadata
		FROM session_logs
		WHERE room_id = $1
		ORDER BY event_time ASC
		OFFSET $2
	`
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	args := []any{roomID, offset}
	if opts.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, opts.Limit)
	}

	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		b.log.Error("Failed to query session logs", "room_id", roomID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var entry domain.LogEntry
		var level string
		if err := rows.Scan(&entry.RoomID, &entry.Timestamp, &level, &entry.Event, &entry.UserID, &entry.Metadata); err != nil {
			return nil, err
		}
		entry.Level = domain.LogLevel(level)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
