package repository

import (
	"context"
	"sync"

	"market_call/internal/domain"
)

type LogQueryOptions struct {
	// Limit of 0 means no limit.
	Limit  int
	Offset int
}

// LogBackend is the pluggable storage behind the session log.
type LogBackend interface {
	SaveLog(ctx context.Context, entry domain.LogEntry) error
	GetLogsByRoom(ctx context.Context, roomID string, opts LogQueryOptions) ([]domain.LogEntry, error)
}

const defaultLogCapacity = 10000

// MemoryLogBackend keeps entries in a single global ring buffer. The cap is
// shared across all rooms, so a busy room can evict a quiet room's history.
type MemoryLogBackend struct {
	mu   sync.Mutex
	buf  []domain.LogEntry
	head int
	cap  int
}

func NewMemoryLogBackend(capacity int) *MemoryLogBackend {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &MemoryLogBackend{cap: capacity}
}

func (b *MemoryLogBackend) SaveLog(ctx context.Context, entry domain.LogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) < b.cap {
		b.buf = append(b.buf, entry)
		return nil
	}
	// Full: overwrite the oldest entry.
	b.buf[b.head] = entry
	b.head = (b.head + 1) % b.cap
	return nil
}

func (b *MemoryLogBackend) GetLogsByRoom(ctx context.Context, roomID string, opts LogQueryOptions) ([]domain.LogEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []domain.LogEntry
	for i := 0; i < len(b.buf); i++ {
		entry := b.buf[(b.head+i)%len(b.buf)]
		if entry.RoomID == roomID {
			matched = append(matched, entry)
		}
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// Len reports how many entries are currently retained across all rooms.
func (b *MemoryLogBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
