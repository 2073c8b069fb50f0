package transport

import (
	"context"
	"time"

	"github.com/livekit/protocol/livekit"
)

// Контракты конференц-транспорта. Сервер оркестрации работает только через
// эти интерфейсы — медиа, сигналинг и ICE остаются на стороне провайдера.

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

type ConnectionQuality string

const (
	QualityExcellent ConnectionQuality = "excellent"
	QualityGood      ConnectionQuality = "good"
	QualityPoor      ConnectionQuality = "poor"
	QualityLost      ConnectionQuality = "lost"
)

// TrackPublication is a single published media track inside a room.
type TrackPublication interface {
	SID() string
	Kind() TrackKind
	IsMuted() bool
}

// FrameSource is implemented by video publications that can produce an
// encoded still frame of the current picture. Used by video moderation.
type FrameSource interface {
	CaptureFrame(ctx context.Context) ([]byte, error)
}

// Participant is a live occupant of a transport room.
type Participant interface {
	Identity() string
	// Metadata is the raw identity metadata string the participant joined
	// with (JSON with userId/role for tracked participants).
	Metadata() string
	IsLocal() bool
	Publications() []TrackPublication
}

// DataPublishOptions controls how a data payload is published to the room.
// Moderation and payment related traffic goes over the reliable kind only.
type DataPublishOptions struct {
	Kind livekit.DataPacket_Kind
	// DestinationIdentities is advisory: the transport broadcasts to the
	// whole room and receivers filter themselves.
	DestinationIdentities []string
}

// Room is a live handle to a transport room. Callback registration is
// additive: every registered callback fires, in registration order.
type Room interface {
	Name() string
	LocalParticipant() Participant
	RemoteParticipants() []Participant

	PublishData(ctx context.Context, data []byte, opts DataPublishOptions) error
	RemoveParticipant(ctx context.Context, identity string) error
	MuteTrack(ctx context.Context, identity, trackSID string, muted bool) error

	OnParticipantJoined(fn func(Participant))
	OnParticipantLeft(fn func(Participant))
	OnConnectionQualityChanged(fn func(Participant, ConnectionQuality))
	OnTrackPublished(fn func(Participant, TrackPublication))
	OnTrackMuted(fn func(Participant, TrackPublication))
	OnTrackUnmuted(fn func(Participant, TrackPublication))
	OnTrackEnded(fn func(Participant, TrackPublication))
	OnDataReceived(fn func(data []byte, sender Participant))
}

type RoomOptions struct {
	EmptyTimeout    time.Duration
	MaxParticipants int
	Metadata        string
}

// RoomService is the server-side control surface of the conferencing
// provider: room CRUD plus the enforcement primitives.
type RoomService interface {
	CreateRoom(ctx context.Context, name string, opts RoomOptions) (*livekit.Room, error)
	GetRoom(ctx context.Context, name string) (*livekit.Room, error)
	UpdateRoomMetadata(ctx context.Context, name, metadata string) (*livekit.Room, error)
	DeleteRoom(ctx context.Context, name string) error
	ListRooms(ctx context.Context) ([]*livekit.Room, error)
	RemoveParticipant(ctx context.Context, roomName, identity string) error
	MuteTrack(ctx context.Context, roomName, identity, trackSID string, muted bool) error
	SendData(ctx context.Context, roomName string, data []byte, opts DataPublishOptions) error
}
