package service

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"market_call/internal/config"
	"market_call/internal/domain"
	"market_call/internal/repository"
	"market_call/internal/transport"
	"market_call/internal/transport/transporttest"
	"market_call/pkg/errors"
	"market_call/pkg/logger"
)

const (
	testAPIKey    = "test-api-key"
	testAPISecret = "test-api-secret-test-api-secret-xx"
)

func newTestAudit(t *testing.T) SessionLog {
	t.Helper()
	return NewSessionLog(repository.NewMemoryLogBackend(1000), logger.New("error"))
}

func newTestRegistry(t *testing.T, svc *transporttest.RoomService) *SessionRegistry {
	t.Helper()
	cfg := config.LiveKitConfig{
		URL:       "ws://localhost:7880",
		APIKey:    testAPIKey,
		APISecret: testAPISecret,
		TokenTTL:  time.Hour,
	}
	return NewSessionRegistry(svc, cfg, newTestAudit(t), logger.New("error"))
}

func TestSessionRegistry_CreateRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := transporttest.NewRoomService()
	registry := newTestRegistry(t, svc)

	roomID, err := registry.CreateRoom(ctx, domain.SessionMetadata{
		MarketplaceID: "mp-1",
		Category:      "electronics",
	}, transport.RoomOptions{})
	req.NoError(err)
	req.NotEmpty(roomID)

	// One create, then one metadata write flipping the status to ACTIVE
	req.Equal([]string{roomID}, svc.Created)
	room, err := svc.GetRoom(ctx, roomID)
	req.NoError(err)
	created, err := domain.DecodeSessionMetadata(svc.MetadataWrites[roomID][0])
	req.NoError(err)
	req.Equal(domain.SessionStatusActive, created.Status)
	req.Equal("mp-1", created.MarketplaceID)
	req.Equal(room.Metadata, svc.MetadataWrites[roomID][0])

	// Locally the session flipped to ACTIVE once the transport acked
	session := registry.GetSession(roomID)
	req.NotNil(session)
	req.Equal(domain.SessionStatusActive, session.Status())
}

func TestSessionRegistry_CreateRoomTransportFailure(t *testing.T) {
	req := require.New(t)
	svc := transporttest.NewRoomService()
	svc.CreateErr = stderrors.New("transport down")
	registry := newTestRegistry(t, svc)

	_, err := registry.CreateRoom(context.Background(), domain.SessionMetadata{MarketplaceID: "mp-1"}, transport.RoomOptions{})
	req.Error(err)
	// Никакого retry и никакой локальной сессии — ошибка уходит наружу.
	req.Empty(svc.Created)
}

func TestSessionRegistry_UpdateRoomMetadata(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := transporttest.NewRoomService()
	registry := newTestRegistry(t, svc)

	roomID, err := registry.CreateRoom(ctx, domain.SessionMetadata{
		MarketplaceID: "mp-1",
		Category:      "electronics",
	}, transport.RoomOptions{})
	req.NoError(err)

	category := "fashion"
	req.NoError(registry.UpdateRoomMetadata(ctx, roomID, domain.MetadataPatch{
		Category: &category,
		Extra:    map[string]string{"promo": "yes"},
	}))

	room, err := svc.GetRoom(ctx, roomID)
	req.NoError(err)
	updated, err := domain.DecodeSessionMetadata(room.Metadata)
	req.NoError(err)
	req.Equal("fashion", updated.Category)
	req.Equal("mp-1", updated.MarketplaceID)
	req.Equal("yes", updated.Extra["promo"])

	req.ErrorIs(registry.UpdateRoomMetadata(ctx, "no-such-room", domain.MetadataPatch{}), errors.ErrRoomNotFound)
}

func TestSessionRegistry_MetadataPatchPreservesStatus(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := transporttest.NewRoomService()
	registry := newTestRegistry(t, svc)

	roomID, err := registry.CreateRoom(ctx, domain.SessionMetadata{MarketplaceID: "mp-1"}, transport.RoomOptions{})
	req.NoError(err)
	session := registry.GetSession(roomID)

	// Session went IDLE but the transport copy still says ACTIVE
	req.NoError(session.SetStatus(domain.SessionStatusIdle))

	category := "fashion"
	req.NoError(registry.UpdateRoomMetadata(ctx, roomID, domain.MetadataPatch{Category: &category}))

	// A plain metadata patch must not resurrect the session
	req.Equal(domain.SessionStatusIdle, session.Status())
	req.Equal(domain.SessionStatusIdle, session.Metadata().Status)

	room, err := svc.GetRoom(ctx, roomID)
	req.NoError(err)
	written, err := domain.DecodeSessionMetadata(room.Metadata)
	req.NoError(err)
	req.Equal(domain.SessionStatusIdle, written.Status)
	req.Equal("fashion", written.Category)
}

func TestSessionRegistry_EndRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := transporttest.NewRoomService()
	registry := newTestRegistry(t, svc)

	roomID, err := registry.CreateRoom(ctx, domain.SessionMetadata{MarketplaceID: "mp-1"}, transport.RoomOptions{})
	req.NoError(err)
	session := registry.GetSession(roomID)

	req.NoError(registry.EndRoom(ctx, roomID, "call finished"))
	req.Equal([]string{roomID}, svc.Deleted)
	req.Equal(domain.SessionStatusEnded, session.Status())
	req.Nil(registry.GetSession(roomID))

	req.ErrorIs(registry.EndRoom(ctx, roomID, "again"), errors.ErrRoomNotFound)
}

func TestSessionRegistry_IdleFlipOnEmptyRoom(t *testing.T) {
	req := require.New(t)
	svc := transporttest.NewRoomService()
	registry := newTestRegistry(t, svc)
	registry.IdleTimeout = 30 * time.Millisecond

	var idleCount atomic.Int32
	registry.OnSessionIdle(func(*domain.Session) { idleCount.Add(1) })

	room := transporttest.NewRoom("room-1")
	session := registry.TrackRoom(room, domain.SessionMetadata{MarketplaceID: "mp-1", Status: domain.SessionStatusActive})

	time.Sleep(60 * time.Millisecond)
	req.Equal(domain.SessionStatusIdle, session.Status())
	req.Equal(int32(1), idleCount.Load())

	// A join flips the session back to ACTIVE
	joined := transporttest.NewParticipant("u1", `{"userId":"u1","role":"BUYER"}`)
	room.SimulateJoin(joined)
	req.Equal(domain.SessionStatusActive, session.Status())

	// The last leave rearms the idle timer
	room.SimulateLeave(joined)
	time.Sleep(60 * time.Millisecond)
	req.Equal(domain.SessionStatusIdle, session.Status())
	req.Equal(int32(2), idleCount.Load())
}

func TestSessionRegistry_JoinCancelsIdleTimer(t *testing.T) {
	req := require.New(t)
	svc := transporttest.NewRoomService()
	registry := newTestRegistry(t, svc)
	registry.IdleTimeout = 50 * time.Millisecond

	room := transporttest.NewRoom("room-1")
	session := registry.TrackRoom(room, domain.SessionMetadata{MarketplaceID: "mp-1", Status: domain.SessionStatusActive})

	time.Sleep(10 * time.Millisecond)
	room.SimulateJoin(transporttest.NewParticipant("u1", `{"userId":"u1","role":"BUYER"}`))

	time.Sleep(100 * time.Millisecond)
	req.Equal(domain.SessionStatusActive, session.Status())
}

func parseToken(t *testing.T, token string) jwt.MapClaims {
	t.Helper()
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, stderrors.New("unexpected signing method")
		}
		return []byte(testAPISecret), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	return parsed.Claims.(jwt.MapClaims)
}

func TestSessionRegistry_CreateTokenGrants(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(t, transporttest.NewRoomService())

	token, err := registry.CreateToken(TokenOptions{
		UserID: "u1",
		Name:   "Alice",
		Role:   domain.RoleBuyer,
		RoomID: "room-1",
	})
	req.NoError(err)

	claims := parseToken(t, token)
	req.Equal("u1", claims["sub"])

	video := claims["video"].(map[string]any)
	req.Equal(true, video["roomJoin"])
	req.Equal("room-1", video["room"])
	req.Equal(true, video["canPublish"])
	req.Equal(true, video["canSubscribe"])
	req.Equal(true, video["canPublishData"])
	_, hasAdmin := video["roomAdmin"]
	req.False(hasAdmin)

	// Identity metadata carries userId and role for the tracker
	req.Contains(claims["metadata"], `"userId":"u1"`)
	req.Contains(claims["metadata"], `"role":"BUYER"`)
}

func TestSessionRegistry_AdminTokenCarriesRoomAdmin(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(t, transporttest.NewRoomService())

	token, err := registry.CreateToken(TokenOptions{
		UserID: "mod-1",
		Role:   domain.RoleAdmin,
		RoomID: "room-1",
	})
	req.NoError(err)

	video := parseToken(t, token)["video"].(map[string]any)
	req.Equal(true, video["roomAdmin"])
}

func TestSessionRegistry_MarketplaceRolesShareGrants(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(t, transporttest.NewRoomService())

	grants := make([]map[string]any, 0, 3)
	for _, role := range []domain.Role{domain.RoleBuyer, domain.RoleSeller, domain.RoleDelivery} {
		token, err := registry.CreateToken(TokenOptions{UserID: "u1", Role: role, RoomID: "room-1"})
		req.NoError(err)
		grants = append(grants, parseToken(t, token)["video"].(map[string]any))
	}
	req.Equal(grants[0], grants[1])
	req.Equal(grants[1], grants[2])
}

func TestSessionRegistry_CreateTokenValidation(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(t, transporttest.NewRoomService())

	_, err := registry.CreateToken(TokenOptions{Role: domain.RoleBuyer, RoomID: "room-1"})
	req.ErrorIs(err, errors.ErrBadRequest)

	_, err = registry.CreateToken(TokenOptions{UserID: "u1", Role: domain.RoleBuyer})
	req.ErrorIs(err, errors.ErrBadRequest)
}
