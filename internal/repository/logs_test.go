package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"market_call/internal/domain"
)

func entry(roomID, event string) domain.LogEntry {
	return domain.LogEntry{RoomID: roomID, Level: domain.LogLevelInfo, Event: event}
}

func TestMemoryLogBackend_EvictsOldestWhenFull(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	backend := NewMemoryLogBackend(5)

	// Given 7 entries over a capacity of 5
	for i := 0; i < 7; i++ {
		req.NoError(backend.SaveLog(ctx, entry("room-1", fmt.Sprintf("event-%d", i))))
	}

	// Then the two oldest entries are gone and order is preserved
	req.Equal(5, backend.Len())
	logs, err := backend.GetLogsByRoom(ctx, "room-1", LogQueryOptions{})
	req.NoError(err)
	req.Len(logs, 5)
	req.Equal("event-2", logs[0].Event)
	req.Equal("event-6", logs[4].Event)
}

func TestMemoryLogBackend_DefaultCapacity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	backend := NewMemoryLogBackend(0)

	for i := 0; i < 10001; i++ {
		req.NoError(backend.SaveLog(ctx, entry("room-1", fmt.Sprintf("event-%d", i))))
	}

	req.Equal(10000, backend.Len())
	logs, err := backend.GetLogsByRoom(ctx, "room-1", LogQueryOptions{Limit: 1})
	req.NoError(err)
	req.Equal("event-1", logs[0].Event)
}

func TestMemoryLogBackend_EvictionIsGlobalAcrossRooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	backend := NewMemoryLogBackend(4)

	req.NoError(backend.SaveLog(ctx, entry("room-a", "a-0")))
	req.NoError(backend.SaveLog(ctx, entry("room-b", "b-0")))
	req.NoError(backend.SaveLog(ctx, entry("room-b", "b-1")))
	req.NoError(backend.SaveLog(ctx, entry("room-b", "b-2")))
	// Пятая запись выталкивает самую старую — из другой комнаты.
	req.NoError(backend.SaveLog(ctx, entry("room-b", "b-3")))

	logsA, err := backend.GetLogsByRoom(ctx, "room-a", LogQueryOptions{})
	req.NoError(err)
	req.Empty(logsA)

	logsB, err := backend.GetLogsByRoom(ctx, "room-b", LogQueryOptions{})
	req.NoError(err)
	req.Len(logsB, 4)
}

func TestMemoryLogBackend_LimitAndOffset(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	backend := NewMemoryLogBackend(100)

	for i := 0; i < 10; i++ {
		req.NoError(backend.SaveLog(ctx, entry("room-1", fmt.Sprintf("event-%d", i))))
	}

	logs, err := backend.GetLogsByRoom(ctx, "room-1", LogQueryOptions{Limit: 3, Offset: 4})
	req.NoError(err)
	req.Len(logs, 3)
	req.Equal("event-4", logs[0].Event)
	req.Equal("event-6", logs[2].Event)

	// Limit 0 means no limit
	logs, err = backend.GetLogsByRoom(ctx, "room-1", LogQueryOptions{Offset: 8})
	req.NoError(err)
	req.Len(logs, 2)

	// Offset beyond the log is empty, not an error
	logs, err = backend.GetLogsByRoom(ctx, "room-1", LogQueryOptions{Offset: 50})
	req.NoError(err)
	req.Empty(logs)
}

func TestMemoryLogBackend_NegativeLimitAndOffset(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	backend := NewMemoryLogBackend(100)

	for i := 0; i < 3; i++ {
		req.NoError(backend.SaveLog(ctx, entry("room-1", fmt.Sprintf("event-%d", i))))
	}

	// Query options come straight off the HTTP query string: negative
	// values behave like zero.
	logs, err := backend.GetLogsByRoom(ctx, "room-1", LogQueryOptions{Offset: -1})
	req.NoError(err)
	req.Len(logs, 3)

	logs, err = backend.GetLogsByRoom(ctx, "room-1", LogQueryOptions{Limit: -5, Offset: -10})
	req.NoError(err)
	req.Len(logs, 3)
}

func TestMemoryLogBackend_FiltersByRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	backend := NewMemoryLogBackend(100)

	req.NoError(backend.SaveLog(ctx, entry("room-a", "a-0")))
	req.NoError(backend.SaveLog(ctx, entry("room-b", "b-0")))
	req.NoError(backend.SaveLog(ctx, entry("room-a", "a-1")))

	logs, err := backend.GetLogsByRoom(ctx, "room-a", LogQueryOptions{})
	req.NoError(err)
	req.Len(logs, 2)
	req.Equal("a-0", logs[0].Event)
	req.Equal("a-1", logs[1].Event)
}
