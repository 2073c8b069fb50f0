package transporttest

import (
	"context"
	"sync"

	"github.com/livekit/protocol/livekit"

	"market_call/internal/transport"
	"market_call/pkg/errors"
)

// RoomService is an in-memory transport.RoomService that records every call
// and supports scriptable failures.
type RoomService struct {
	CreateErr error
	UpdateErr error
	DeleteErr error

	mu      sync.Mutex
	rooms   map[string]*livekit.Room
	Created []string
	Deleted []string
	// MetadataWrites keeps every UpdateRoomMetadata payload per room, in
	// call order.
	MetadataWrites map[string][]string
}

func NewRoomService() *RoomService {
	return &RoomService{
		rooms:          make(map[string]*livekit.Room),
		MetadataWrites: make(map[string][]string),
	}
}

func (s *RoomService) CreateRoom(ctx context.Context, name string, opts transport.RoomOptions) (*livekit.Room, error) {
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room := &livekit.Room{
		Name:            name,
		Metadata:        opts.Metadata,
		MaxParticipants: uint32(opts.MaxParticipants),
	}
	s.rooms[name] = room
	s.Created = append(s.Created, name)
	return room, nil
}

func (s *RoomService) GetRoom(ctx context.Context, name string) (*livekit.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[name]
	if !ok {
		return nil, errors.ErrRoomNotFound
	}
	return room, nil
}

func (s *RoomService) UpdateRoomMetadata(ctx context.Context, name, metadata string) (*livekit.Room, error) {
	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[name]
	if !ok {
		return nil, errors.ErrRoomNotFound
	}
	room.Metadata = metadata
	s.MetadataWrites[name] = append(s.MetadataWrites[name], metadata)
	return room, nil
}

func (s *RoomService) DeleteRoom(ctx context.Context, name string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, name)
	s.Deleted = append(s.Deleted, name)
	return nil
}

func (s *RoomService) ListRooms(ctx context.Context) ([]*livekit.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*livekit.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room)
	}
	return out, nil
}

func (s *RoomService) RemoveParticipant(ctx context.Context, roomName, identity string) error {
	return nil
}

func (s *RoomService) MuteTrack(ctx context.Context, roomName, identity, trackSID string, muted bool) error {
	return nil
}

func (s *RoomService) SendData(ctx context.Context, roomName string, data []byte, opts transport.DataPublishOptions) error {
	return nil
}
