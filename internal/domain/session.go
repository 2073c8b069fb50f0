package domain

import (
	"encoding/json"
	"sync"
	"time"

	"market_call/internal/transport"
	"market_call/pkg/errors"
)

type SessionStatus string

const (
	SessionStatusCreating SessionStatus = "CREATING"
	SessionStatusActive   SessionStatus = "ACTIVE"
	SessionStatusIdle     SessionStatus = "IDLE"
	SessionStatusEnded    SessionStatus = "ENDED"
	SessionStatusError    SessionStatus = "ERROR"
)

// Допустимые переходы статуса. ENDED терминален.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusCreating: {SessionStatusActive, SessionStatusError},
	SessionStatusActive:   {SessionStatusIdle, SessionStatusEnded, SessionStatusError},
	SessionStatusIdle:     {SessionStatusActive, SessionStatusEnded, SessionStatusError},
	SessionStatusError:    {SessionStatusEnded},
	SessionStatusEnded:    {},
}

func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SessionMetadata is the room metadata record stored on the transport side
// as JSON and mirrored locally.
type SessionMetadata struct {
	MarketplaceID string            `json:"marketplaceId"`
	Category      string            `json:"category,omitempty"`
	Status        SessionStatus     `json:"status"`
	CreatedAt     time.Time         `json:"createdAt"`
	Moderation    *ModerationConfig `json:"moderation,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

func (m SessionMetadata) Encode() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func DecodeSessionMetadata(raw string) (SessionMetadata, error) {
	var m SessionMetadata
	if raw == "" {
		return m, nil
	}
	err := json.Unmarshal([]byte(raw), &m)
	return m, err
}

// MetadataPatch is a partial update merged over the current metadata.
type MetadataPatch struct {
	Category   *string           `json:"category,omitempty"`
	Moderation *ModerationConfig `json:"moderation,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

func (m *SessionMetadata) Apply(patch MetadataPatch) {
	if patch.Category != nil {
		m.Category = *patch.Category
	}
	if patch.Moderation != nil {
		m.Moderation = patch.Moderation
	}
	if len(patch.Extra) > 0 {
		if m.Extra == nil {
			m.Extra = make(map[string]string, len(patch.Extra))
		}
		for k, v := range patch.Extra {
			m.Extra[k] = v
		}
	}
}

// Session is one live marketplace call: the transport room plus the tracked
// participants and the session's own timers.
//
// The original runtime was a single event loop; here the session state is
// shared between goroutines, so participants, status and metadata are
// guarded by one mutex.
type Session struct {
	ID       string
	RoomName string

	mu           sync.Mutex
	metadata     SessionMetadata
	participants map[string]*Participant
	room         transport.Room
	idleTimer    *time.Timer

	// rmwMu serializes read-modify-write cycles of the room metadata
	// against the transport copy. Held across the whole cycle, not just the
	// local write.
	rmwMu sync.Mutex
}

func NewSession(id string, metadata SessionMetadata) *Session {
	return &Session{
		ID:           id,
		RoomName:     id,
		metadata:     metadata,
		participants: make(map[string]*Participant),
	}
}

func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata.Status
}

// SetStatus validates the transition; once ENDED no further change is
// accepted.
func (s *Session) SetStatus(next SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStatusLocked(next)
}

func (s *Session) setStatusLocked(next SessionStatus) error {
	if s.metadata.Status == SessionStatusEnded {
		return errors.ErrSessionEnded
	}
	if !s.metadata.Status.CanTransitionTo(next) {
		return errors.ErrInvalidTransition
	}
	s.metadata.Status = next
	return nil
}

// BeginMetadataUpdate opens a serialized metadata read-modify-write cycle.
// The returned func closes it.
func (s *Session) BeginMetadataUpdate() func() {
	s.rmwMu.Lock()
	return s.rmwMu.Unlock
}

func (s *Session) Metadata() SessionMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata
}

func (s *Session) SetMetadata(m SessionMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metadata.Status == SessionStatusEnded {
		return errors.ErrSessionEnded
	}
	s.metadata = m
	return nil
}

func (s *Session) ModerationConfig() *ModerationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata.Moderation
}

func (s *Session) Room() transport.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) BindRoom(room transport.Room) {
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
}

func (s *Session) AddParticipant(p *Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metadata.Status == SessionStatusEnded {
		return errors.ErrSessionEnded
	}
	s.participants[p.ID] = p
	return nil
}

func (s *Session) RemoveParticipant(id string) {
	s.mu.Lock()
	delete(s.participants, id)
	s.mu.Unlock()
}

func (s *Session) Participant(id string) *Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participants[id]
}

func (s *Session) Participants() []*Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	return out
}

func (s *Session) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// ArmIdleTimer (re)arms the single idle timer owned by the session. A
// previous pending timer is always cancelled first.
func (s *Session) ArmIdleTimer(d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(d, fire)
}

func (s *Session) StopIdleTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}
