package service

import (
	"context"
	"time"

	"market_call/internal/domain"
	"market_call/internal/repository"
	"market_call/pkg/logger"
)

// SessionLog is the per-room append-only audit log. A failing backend never
// breaks the calling flow — the error is reported to the app logger only.
type SessionLog interface {
	Debug(ctx context.Context, roomID, event string, metadata map[string]any, userID string)
	Info(ctx context.Context, roomID, event string, metadata map[string]any, userID string)
	Warn(ctx context.Context, roomID, event string, metadata map[string]any, userID string)
	Error(ctx context.Context, roomID, event string, metadata map[string]any, userID string)
	GetLogsByRoom(ctx context.Context, roomID string, opts repository.LogQueryOptions) ([]domain.LogEntry, error)
}

type sessionLog struct {
	backend repository.LogBackend
	log     logger.Logger
}

func NewSessionLog(backend repository.LogBackend, log logger.Logger) SessionLog {
	return &sessionLog{backend: backend, log: log}
}

func (s *sessionLog) append(ctx context.Context, level domain.LogLevel, roomID, event string, metadata map[string]any, userID string) {
	entry := domain.LogEntry{
		RoomID:    roomID,
		Timestamp: time.Now(),
		Level:     level,
		Event:     event,
		UserID:    userID,
		Metadata:  metadata,
	}
	if err := s.backend.SaveLog(ctx, entry); err != nil {
		s.log.Error("Failed to append session log entry", "room_id", roomID, "event", event, "error", err)
	}
}

func (s *sessionLog) Debug(ctx context.Context, roomID, event string, metadata map[string]any, userID string) {
	s.append(ctx, domain.LogLevelDebug, roomID, event, metadata, userID)
}

func (s *sessionLog) Info(ctx context.Context, roomID, event string, metadata map[string]any, userID string) {
	s.append(ctx, domain.LogLevelInfo, roomID, event, metadata, userID)
}

func (s *sessionLog) Warn(ctx context.Context, roomID, event string, metadata map[string]any, userID string) {
	s.append(ctx, domain.LogLevelWarn, roomID, event, metadata, userID)
}

func (s *sessionLog) Error(ctx context.Context, roomID, event string, metadata map[string]any, userID string) {
	s.append(ctx, domain.LogLevelError, roomID, event, metadata, userID)
}

func (s *sessionLog) GetLogsByRoom(ctx context.Context, roomID string, opts repository.LogQueryOptions) ([]domain.LogEntry, error) {
	return s.backend.GetLogsByRoom(ctx, roomID, opts)
}
