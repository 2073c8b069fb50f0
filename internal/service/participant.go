package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/samber/lo"

	"market_call/internal/domain"
	"market_call/internal/transport"
	"market_call/pkg/errors"
	"market_call/pkg/logger"
)

const (
	defaultInactivityCheck = 5 * time.Minute
	defaultInactivityIdle  = 10 * time.Minute
)

// identityMetadata is what a tracked participant must carry in its transport
// metadata. Anything less and the participant stays untracked.
type identityMetadata struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Name   string `json:"name,omitempty"`
}

// ParticipantManager tracks participants inside sessions, monitors their
// activity and applies enforcement actions.
type ParticipantManager struct {
	audit SessionLog
	log   logger.Logger

	InactivityCheck time.Duration
	InactivityIdle  time.Duration

	mu         sync.RWMutex
	onInactive []func(*domain.Session, *domain.Participant)
	onBanned   []func(*domain.Session, *domain.Participant, string)
}

func NewParticipantManager(audit SessionLog, log logger.Logger) *ParticipantManager {
	return &ParticipantManager{
		audit:           audit,
		log:             log,
		InactivityCheck: defaultInactivityCheck,
		InactivityIdle:  defaultInactivityIdle,
	}
}

// OnParticipantInactive registers an informational hook; inactivity is never
// auto-enforced.
func (m *ParticipantManager) OnParticipantInactive(fn func(*domain.Session, *domain.Participant)) {
	m.mu.Lock()
	m.onInactive = append(m.onInactive, fn)
	m.mu.Unlock()
}

// OnParticipantBanned registers the cross-cutting hook fired on BAN, for
// marketplace-wide enforcement.
func (m *ParticipantManager) OnParticipantBanned(fn func(*domain.Session, *domain.Participant, string)) {
	m.mu.Lock()
	m.onBanned = append(m.onBanned, fn)
	m.mu.Unlock()
}

// TrackParticipant parses the identity metadata and registers the
// participant in the session. Invalid metadata rejects the participant — it
// stays untracked and receives no monitoring or enforcement.
func (m *ParticipantManager) TrackParticipant(ctx context.Context, session *domain.Session, handle transport.Participant) (*domain.Participant, error) {
	var meta identityMetadata
	if err := json.Unmarshal([]byte(handle.Metadata()), &meta); err != nil || meta.UserID == "" || meta.Role == "" {
		m.audit.Warn(ctx, session.ID, domain.AuditParticipantRejected, map[string]any{"identity": handle.Identity()}, "")
		return nil, errors.ErrInvalidIdentity
	}
	role, err := domain.ParseRole(meta.Role)
	if err != nil {
		m.audit.Warn(ctx, session.ID, domain.AuditParticipantRejected, map[string]any{"identity": handle.Identity(), "role": meta.Role}, "")
		return nil, errors.ErrInvalidIdentity
	}

	p := domain.NewParticipant(meta.UserID, role, meta.Name, handle)
	if err := session.AddParticipant(p); err != nil {
		return nil, err
	}

	m.wireSubscriptions(session, p)

	p.StartInactivityMonitor(m.InactivityCheck, m.InactivityIdle, func() {
		m.audit.Info(context.Background(), session.ID, domain.AuditParticipantInactive, map[string]any{
			"inactive_since": p.LastActive(),
		}, p.ID)
		m.mu.RLock()
		hooks := append([]func(*domain.Session, *domain.Participant){}, m.onInactive...)
		m.mu.RUnlock()
		for _, fn := range hooks {
			fn(session, p)
		}
	})

	m.audit.Info(ctx, session.ID, domain.AuditParticipantTracked, map[string]any{"role": string(role)}, p.ID)
	return p, nil
}

func (m *ParticipantManager) wireSubscriptions(session *domain.Session, p *domain.Participant) {
	room := session.Room()
	if room == nil {
		return
	}
	identity := p.Handle.Identity()

	room.OnConnectionQualityChanged(func(tp transport.Participant, q transport.ConnectionQuality) {
		if tp.Identity() != identity {
			return
		}
		p.SetConnectionQuality(q)
		p.Touch()
		m.audit.Debug(context.Background(), session.ID, domain.AuditConnectionQuality, map[string]any{"quality": string(q)}, p.ID)
	})
	room.OnTrackMuted(func(tp transport.Participant, pub transport.TrackPublication) {
		if tp.Identity() != identity {
			return
		}
		p.Touch()
		m.audit.Debug(context.Background(), session.ID, domain.AuditTrackMuted, map[string]any{"track_sid": pub.SID()}, p.ID)
	})
	room.OnTrackUnmuted(func(tp transport.Participant, pub transport.TrackPublication) {
		if tp.Identity() != identity {
			return
		}
		p.Touch()
		m.audit.Debug(context.Background(), session.ID, domain.AuditTrackUnmuted, map[string]any{"track_sid": pub.SID()}, p.ID)
	})
	room.OnParticipantLeft(func(tp transport.Participant) {
		if tp.Identity() != identity {
			return
		}
		m.HandleParticipantDisconnect(session, p)
	})
}

// UpdateUserActivity resets the participant's inactivity clock.
func (m *ParticipantManager) UpdateUserActivity(session *domain.Session, participantID string) {
	if p := session.Participant(participantID); p != nil {
		p.Touch()
	}
}

// ModerateUser applies an enforcement action. Transport failures are logged
// and reported as false; permission flips applied before a failure are kept
// (documented last-writer-wins, no rollback).
func (m *ParticipantManager) ModerateUser(ctx context.Context, session *domain.Session, p *domain.Participant, action domain.ModerationAction, reason string) bool {
	switch action {
	case domain.ActionWarning:
		p.AddViolation(action.ViolationType(), reason)
		m.audit.Info(ctx, session.ID, domain.AuditModerationApplied, map[string]any{"action": string(action), "reason": reason}, p.ID)
		return true

	case domain.ActionMuteAudio, domain.ActionDisableVideo:
		return m.muteMedia(ctx, session, p, action, reason)

	case domain.ActionKick, domain.ActionBan:
		return m.remove(ctx, session, p, action, reason)
	}

	m.log.Warn("Unknown moderation action", "action", string(action))
	return false
}

func (m *ParticipantManager) muteMedia(ctx context.Context, session *domain.Session, p *domain.Participant, action domain.ModerationAction, reason string) bool {
	kind := transport.TrackKindAudio
	if action == domain.ActionDisableVideo {
		kind = transport.TrackKindVideo
	}

	// Permission flips first; a later transport failure does not roll
	// them back.
	p.SetPermissions(func(perms *domain.Permissions) {
		if action == domain.ActionMuteAudio {
			perms.CanPublishAudio = false
		} else {
			perms.CanPublishVideo = false
		}
	})

	room := session.Room()
	if room == nil {
		m.audit.Error(ctx, session.ID, domain.AuditModerationFailed, map[string]any{"action": string(action), "error": "no live room handle"}, p.ID)
		return false
	}

	pub := m.findPublication(p.Handle, kind)
	if pub == nil {
		// Ничего не опубликовано — права уже сняты, нарушение фиксируем.
		m.log.Warn("No live publication to mute", "room_id", session.ID, "user_id", p.ID, "kind", string(kind))
	} else if err := room.MuteTrack(ctx, p.Handle.Identity(), pub.SID(), true); err != nil {
		m.audit.Error(ctx, session.ID, domain.AuditModerationFailed, map[string]any{"action": string(action), "error": err.Error()}, p.ID)
		m.log.Error("Failed to mute track", "room_id", session.ID, "user_id", p.ID, "error", err)
		return false
	}

	p.AddViolation(action.ViolationType(), reason)
	m.audit.Info(ctx, session.ID, domain.AuditModerationApplied, map[string]any{"action": string(action), "reason": reason}, p.ID)
	return true
}

func (m *ParticipantManager) remove(ctx context.Context, session *domain.Session, p *domain.Participant, action domain.ModerationAction, reason string) bool {
	// Locally published participants cannot kick themselves: fail closed
	// without contacting the transport.
	if p.Handle.IsLocal() {
		m.audit.Warn(ctx, session.ID, domain.AuditModerationFailed, map[string]any{"action": string(action), "error": "local participant"}, p.ID)
		return false
	}

	room := session.Room()
	if room == nil {
		m.audit.Error(ctx, session.ID, domain.AuditModerationFailed, map[string]any{"action": string(action), "error": "no live room handle"}, p.ID)
		return false
	}

	if err := room.RemoveParticipant(ctx, p.Handle.Identity()); err != nil {
		m.audit.Error(ctx, session.ID, domain.AuditModerationFailed, map[string]any{"action": string(action), "error": err.Error()}, p.ID)
		m.log.Error("Failed to remove participant", "room_id", session.ID, "user_id", p.ID, "error", err)
		return false
	}

	p.AddViolation(action.ViolationType(), reason)
	m.audit.Info(ctx, session.ID, domain.AuditModerationApplied, map[string]any{"action": string(action), "reason": reason}, p.ID)

	if action == domain.ActionBan {
		m.audit.Info(ctx, session.ID, domain.AuditUserBanned, map[string]any{"reason": reason}, p.ID)
		m.mu.RLock()
		hooks := append([]func(*domain.Session, *domain.Participant, string){}, m.onBanned...)
		m.mu.RUnlock()
		for _, fn := range hooks {
			fn(session, p, reason)
		}
	}
	return true
}

func (m *ParticipantManager) findPublication(handle transport.Participant, kind transport.TrackKind) transport.TrackPublication {
	for _, pub := range handle.Publications() {
		if pub.Kind() == kind && !pub.IsMuted() {
			return pub
		}
	}
	return nil
}

func (m *ParticipantManager) GetUsersByRole(session *domain.Session, role domain.Role) []*domain.Participant {
	return lo.Filter(session.Participants(), func(p *domain.Participant, _ int) bool {
		return p.Role == role
	})
}

func (m *ParticipantManager) GetUser(session *domain.Session, userID string) *domain.Participant {
	return session.Participant(userID)
}

// HandleParticipantDisconnect removes the participant from the session and
// from inactivity tracking.
func (m *ParticipantManager) HandleParticipantDisconnect(session *domain.Session, p *domain.Participant) {
	p.StopInactivityMonitor()
	session.RemoveParticipant(p.ID)
	m.audit.Info(context.Background(), session.ID, domain.AuditParticipantDisconnected, map[string]any{
		"session_duration": time.Since(p.JoinedAt).String(),
	}, p.ID)
}
