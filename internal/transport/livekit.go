package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"

	"market_call/pkg/errors"
	"market_call/pkg/logger"
)

// LiveKitRoomService реализует RoomService поверх twirp-клиента LiveKit.
// Каждый запрос подписывается коротким админ-токеном.
type LiveKitRoomService struct {
	client    livekit.RoomService
	apiKey    string
	apiSecret string
	log       logger.Logger
}

func NewLiveKitRoomService(hostURL, apiKey, apiSecret string, log logger.Logger) *LiveKitRoomService {
	httpClient := &http.Client{
		Timeout: 15 * time.Second,
		Transport: &signingTransport{
			apiKey:    apiKey,
			apiSecret: apiSecret,
			base:      http.DefaultTransport,
		},
	}

	return &LiveKitRoomService{
		client:    livekit.NewRoomServiceProtobufClient(toHTTPURL(hostURL), httpClient),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		log:       log,
	}
}

func (s *LiveKitRoomService) CreateRoom(ctx context.Context, name string, opts RoomOptions) (*livekit.Room, error) {
	room, err := s.client.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            name,
		EmptyTimeout:    uint32(opts.EmptyTimeout.Seconds()),
		MaxParticipants: uint32(opts.MaxParticipants),
		Metadata:        opts.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create room %q: %w", name, err)
	}
	return room, nil
}

// GetRoom ищет комнату через ListRooms — отдельного RPC у LiveKit нет.
func (s *LiveKitRoomService) GetRoom(ctx context.Context, name string) (*livekit.Room, error) {
	resp, err := s.client.ListRooms(ctx, &livekit.ListRoomsRequest{Names: []string{name}})
	if err != nil {
		return nil, fmt.Errorf("get room %q: %w", name, err)
	}
	if len(resp.Rooms) == 0 {
		return nil, errors.ErrRoomNotFound
	}
	return resp.Rooms[0], nil
}

func (s *LiveKitRoomService) UpdateRoomMetadata(ctx context.Context, name, metadata string) (*livekit.Room, error) {
	room, err := s.client.UpdateRoomMetadata(ctx, &livekit.UpdateRoomMetadataRequest{
		Room:     name,
		Metadata: metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("update room metadata %q: %w", name, err)
	}
	return room, nil
}

func (s *LiveKitRoomService) DeleteRoom(ctx context.Context, name string) error {
	if _, err := s.client.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: name}); err != nil {
		return fmt.Errorf("delete room %q: %w", name, err)
	}
	return nil
}

func (s *LiveKitRoomService) ListRooms(ctx context.Context) ([]*livekit.Room, error) {
	resp, err := s.client.ListRooms(ctx, &livekit.ListRoomsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return resp.Rooms, nil
}

func (s *LiveKitRoomService) RemoveParticipant(ctx context.Context, roomName, identity string) error {
	_, err := s.client.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     roomName,
		Identity: identity,
	})
	if err != nil {
		return fmt.Errorf("remove participant %q from %q: %w", identity, roomName, err)
	}
	return nil
}

func (s *LiveKitRoomService) MuteTrack(ctx context.Context, roomName, identity, trackSID string, muted bool) error {
	_, err := s.client.MutePublishedTrack(ctx, &livekit.MuteRoomTrackRequest{
		Room:     roomName,
		Identity: identity,
		TrackSid: trackSID,
		Muted:    muted,
	})
	if err != nil {
		return fmt.Errorf("mute track %q of %q: %w", trackSID, identity, err)
	}
	return nil
}

func (s *LiveKitRoomService) SendData(ctx context.Context, roomName string, data []byte, opts DataPublishOptions) error {
	_, err := s.client.SendData(ctx, &livekit.SendDataRequest{
		Room:                  roomName,
		Data:                  data,
		Kind:                  opts.Kind,
		DestinationIdentities: opts.DestinationIdentities,
	})
	if err != nil {
		return fmt.Errorf("send data to %q: %w", roomName, err)
	}
	return nil
}

// signingTransport подставляет свежий админ-токен в каждый запрос.
type signingTransport struct {
	apiKey    string
	apiSecret string
	base      http.RoundTripper
}

func (t *signingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	at := auth.NewAccessToken(t.apiKey, t.apiSecret)
	grant := &auth.VideoGrant{
		RoomCreate: true,
		RoomList:   true,
		RoomAdmin:  true,
	}
	token, err := at.AddGrant(grant).SetValidFor(10 * time.Minute).ToJWT()
	if err != nil {
		return nil, fmt.Errorf("sign admin token: %w", err)
	}

	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(req)
}

// toHTTPURL приводит ws:// адреса LiveKit к http:// для twirp.
func toHTTPURL(url string) string {
	if strings.HasPrefix(url, "ws://") {
		return "http://" + strings.TrimPrefix(url, "ws://")
	}
	if strings.HasPrefix(url, "wss://") {
		return "https://" + strings.TrimPrefix(url, "wss://")
	}
	return url
}
