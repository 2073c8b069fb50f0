package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"

	"market_call/internal/config"
	"market_call/internal/domain"
	"market_call/internal/transport"
	"market_call/pkg/errors"
	"market_call/pkg/logger"
)

const defaultIdleTimeout = 60 * time.Second

type TokenOptions struct {
	UserID   string
	Name     string
	Role     domain.Role
	RoomID   string
	TTL      time.Duration
	Metadata map[string]any
}

// SessionRegistry owns the Session entities: room creation, metadata,
// lifecycle, token issuance and idle detection.
type SessionRegistry struct {
	transport transport.RoomService
	cfg       config.LiveKitConfig
	audit     SessionLog
	log       logger.Logger

	// IdleTimeout is how long a session may sit at zero participants
	// before flipping to IDLE.
	IdleTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*domain.Session
	onIdle   []func(*domain.Session)
}

func NewSessionRegistry(transportSvc transport.RoomService, cfg config.LiveKitConfig, audit SessionLog, log logger.Logger) *SessionRegistry {
	return &SessionRegistry{
		transport:   transportSvc,
		cfg:         cfg,
		audit:       audit,
		log:         log,
		IdleTimeout: defaultIdleTimeout,
		sessions:    make(map[string]*domain.Session),
	}
}

// OnSessionIdle registers a hook fired when a session flips to IDLE.
func (r *SessionRegistry) OnSessionIdle(fn func(*domain.Session)) {
	r.mu.Lock()
	r.onIdle = append(r.onIdle, fn)
	r.mu.Unlock()
}

// CreateRoom creates the physical room on the transport with CREATING
// metadata and flips the session to ACTIVE once the transport acknowledged.
// Transport failures are logged and returned as-is — no retry.
func (r *SessionRegistry) CreateRoom(ctx context.Context, metadata domain.SessionMetadata, opts transport.RoomOptions) (string, error) {
	roomID := uuid.New().String()
	metadata.Status = domain.SessionStatusCreating
	metadata.CreatedAt = time.Now()

	encoded, err := metadata.Encode()
	if err != nil {
		return "", err
	}
	opts.Metadata = encoded

	if _, err := r.transport.CreateRoom(ctx, roomID, opts); err != nil {
		r.audit.Error(ctx, roomID, domain.AuditRoomCreated, map[string]any{"error": err.Error()}, "")
		r.log.Error("Failed to create transport room", "room_id", roomID, "error", err)
		return "", err
	}

	session := domain.NewSession(roomID, metadata)
	// Транспорт подтвердил — комната активна.
	if err := session.SetStatus(domain.SessionStatusActive); err != nil {
		return "", err
	}
	if err := r.writeMetadata(ctx, session); err != nil {
		r.audit.Error(ctx, roomID, domain.AuditRoomCreated, map[string]any{"error": err.Error()}, "")
		return "", err
	}

	r.mu.Lock()
	r.sessions[roomID] = session
	r.mu.Unlock()

	r.audit.Info(ctx, roomID, domain.AuditRoomCreated, map[string]any{
		"marketplace_id": metadata.MarketplaceID,
		"category":       metadata.Category,
	}, "")
	return roomID, nil
}

// UpdateRoomMetadata is a read-modify-write against the transport,
// serialized per room by the session lock. It is not a transaction.
func (r *SessionRegistry) UpdateRoomMetadata(ctx context.Context, roomID string, patch domain.MetadataPatch) error {
	session := r.GetSession(roomID)
	if session == nil {
		return errors.ErrRoomNotFound
	}
	if session.Status() == domain.SessionStatusEnded {
		return errors.ErrSessionEnded
	}

	done := session.BeginMetadataUpdate()
	defer done()

	room, err := r.transport.GetRoom(ctx, roomID)
	if err != nil {
		r.audit.Error(ctx, roomID, domain.AuditRoomMetadataUpdated, map[string]any{"error": err.Error()}, "")
		r.log.Error("Failed to read room metadata", "room_id", roomID, "error", err)
		return err
	}

	metadata, err := domain.DecodeSessionMetadata(room.Metadata)
	if err != nil {
		r.log.Warn("Room metadata is not valid JSON, starting fresh", "room_id", roomID, "error", err)
		metadata = session.Metadata()
	}
	metadata.Apply(patch)
	// Статус комнаты живёт в session, копия транспорта может отставать
	// (IDLE-переход на транспорт не пишется). Патч статус не трогает.
	metadata.Status = session.Status()

	if err := session.SetMetadata(metadata); err != nil {
		return err
	}
	if err := r.writeMetadata(ctx, session); err != nil {
		r.audit.Error(ctx, roomID, domain.AuditRoomMetadataUpdated, map[string]any{"error": err.Error()}, "")
		return err
	}

	r.audit.Info(ctx, roomID, domain.AuditRoomMetadataUpdated, nil, "")
	return nil
}

// EndRoom ends the session, deletes the transport room and drops the
// session from the registry. ENDED is terminal.
func (r *SessionRegistry) EndRoom(ctx context.Context, roomID, reason string) error {
	session := r.GetSession(roomID)
	if session == nil {
		return errors.ErrRoomNotFound
	}

	if err := session.SetStatus(domain.SessionStatusEnded); err != nil {
		return err
	}
	session.StopIdleTimer()

	if err := r.transport.DeleteRoom(ctx, roomID); err != nil {
		r.audit.Error(ctx, roomID, domain.AuditRoomEnded, map[string]any{"error": err.Error()}, "")
		r.log.Error("Failed to delete transport room", "room_id", roomID, "error", err)
		return err
	}

	r.mu.Lock()
	delete(r.sessions, roomID)
	r.mu.Unlock()

	r.audit.Info(ctx, roomID, domain.AuditRoomEnded, map[string]any{"reason": reason}, "")
	return nil
}

// TrackRoom wraps a live transport room handle and registers idle
// detection: every drop to zero participants (re)arms the idle timer, any
// join cancels it.
func (r *SessionRegistry) TrackRoom(room transport.Room, metadata domain.SessionMetadata) *domain.Session {
	roomID := room.Name()

	r.mu.Lock()
	session, ok := r.sessions[roomID]
	if !ok {
		if metadata.Status == "" {
			metadata.Status = domain.SessionStatusActive
		}
		if metadata.CreatedAt.IsZero() {
			metadata.CreatedAt = time.Now()
		}
		session = domain.NewSession(roomID, metadata)
		r.sessions[roomID] = session
	}
	r.mu.Unlock()

	session.BindRoom(room)

	room.OnParticipantJoined(func(p transport.Participant) {
		session.StopIdleTimer()
		if session.Status() == domain.SessionStatusIdle {
			if err := session.SetStatus(domain.SessionStatusActive); err == nil {
				r.audit.Info(context.Background(), roomID, domain.AuditSessionActive, nil, p.Identity())
			}
		}
	})
	room.OnParticipantLeft(func(p transport.Participant) {
		if len(room.RemoteParticipants()) == 0 {
			r.armIdle(session)
		}
	})

	if len(room.RemoteParticipants()) == 0 {
		r.armIdle(session)
	}
	return session
}

func (r *SessionRegistry) armIdle(session *domain.Session) {
	session.ArmIdleTimer(r.IdleTimeout, func() {
		room := session.Room()
		if room != nil && len(room.RemoteParticipants()) > 0 {
			return
		}
		if err := session.SetStatus(domain.SessionStatusIdle); err != nil {
			return
		}
		r.audit.Info(context.Background(), session.ID, domain.AuditSessionIdle, nil, "")

		r.mu.RLock()
		hooks := append([]func(*domain.Session){}, r.onIdle...)
		r.mu.RUnlock()
		for _, fn := range hooks {
			fn(session)
		}
	})
}

// CreateToken issues a signed access token with role-based grants. ADMIN
// gets room-admin on top of the full media grants; the three marketplace
// roles currently share identical grants.
func (r *SessionRegistry) CreateToken(opts TokenOptions) (string, error) {
	if opts.UserID == "" || opts.RoomID == "" {
		return "", errors.ErrBadRequest
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = r.cfg.TokenTTL
	}

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     opts.RoomID,
	}
	yes := true
	grant.CanPublish = &yes
	grant.CanSubscribe = &yes
	grant.CanPublishData = &yes
	if opts.Role == domain.RoleAdmin {
		grant.RoomAdmin = true
	}

	// Identity metadata travels inside the token so ParticipantManager can
	// parse userId/role on join.
	identityMeta := map[string]any{
		"userId": opts.UserID,
		"role":   string(opts.Role),
	}
	for k, v := range opts.Metadata {
		identityMeta[k] = v
	}
	rawMeta, err := json.Marshal(identityMeta)
	if err != nil {
		return "", err
	}

	at := auth.NewAccessToken(r.cfg.APIKey, r.cfg.APISecret)
	at.AddGrant(grant).
		SetIdentity(opts.UserID).
		SetName(opts.Name).
		SetMetadata(string(rawMeta)).
		SetValidFor(ttl)

	token, err := at.ToJWT()
	if err != nil {
		r.audit.Error(context.Background(), opts.RoomID, domain.AuditTokenIssued, map[string]any{"error": err.Error()}, opts.UserID)
		r.log.Error("Failed to sign access token", "room_id", opts.RoomID, "user_id", opts.UserID, "error", err)
		return "", err
	}

	r.audit.Info(context.Background(), opts.RoomID, domain.AuditTokenIssued, map[string]any{"role": string(opts.Role)}, opts.UserID)
	return token, nil
}

func (r *SessionRegistry) GetSession(roomID string) *domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[roomID]
}

func (r *SessionRegistry) ListRooms(ctx context.Context) ([]*livekit.Room, error) {
	rooms, err := r.transport.ListRooms(ctx)
	if err != nil {
		r.log.Error("Failed to list transport rooms", "error", err)
		return nil, err
	}
	return rooms, nil
}

func (r *SessionRegistry) writeMetadata(ctx context.Context, session *domain.Session) error {
	encoded, err := session.Metadata().Encode()
	if err != nil {
		return err
	}
	if _, err := r.transport.UpdateRoomMetadata(ctx, session.RoomName, encoded); err != nil {
		r.log.Error("Failed to write room metadata", "room_id", session.ID, "error", err)
		return err
	}
	return nil
}
