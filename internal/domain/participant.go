package domain

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"market_call/internal/transport"
)

type Role string

const (
	RoleBuyer    Role = "BUYER"
	RoleSeller   Role = "SELLER"
	RoleDelivery Role = "DELIVERY"
	RoleAdmin    Role = "ADMIN"
)

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToUpper(raw)) {
	case RoleBuyer:
		return RoleBuyer, nil
	case RoleSeller:
		return RoleSeller, nil
	case RoleDelivery:
		return RoleDelivery, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Permissions are the application-level publish flags for a participant.
// Enforcement flips them to false; they are never flipped back automatically.
type Permissions struct {
	CanPublishAudio bool `json:"canPublishAudio"`
	CanPublishVideo bool `json:"canPublishVideo"`
	CanPublishData  bool `json:"canPublishData"`
	CanSubscribe    bool `json:"canSubscribe"`
}

func DefaultPermissions() Permissions {
	return Permissions{
		CanPublishAudio: true,
		CanPublishVideo: true,
		CanPublishData:  true,
		CanSubscribe:    true,
	}
}

// Violation is a timestamped enforcement record attached to a participant.
type Violation struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// Participant is a tracked occupant of a session. Untracked transport
// participants (no valid identity metadata) never get one of these.
type Participant struct {
	ID       string
	Role     Role
	Name     string
	JoinedAt time.Time

	// Handle is the live transport-side participant.
	Handle transport.Participant

	mu                sync.Mutex
	permissions       Permissions
	connectionQuality transport.ConnectionQuality
	violations        []Violation

	lastActive      time.Time
	inactivityTimer *time.Timer
	checkInterval   time.Duration
	idleAfter       time.Duration
	onInactive      func()
}

func NewParticipant(id string, role Role, name string, handle transport.Participant) *Participant {
	return &Participant{
		ID:          id,
		Role:        role,
		Name:        name,
		JoinedAt:    time.Now(),
		Handle:      handle,
		permissions: DefaultPermissions(),
		lastActive:  time.Now(),
	}
}

func (p *Participant) Permissions() Permissions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permissions
}

func (p *Participant) SetPermissions(fn func(*Permissions)) {
	p.mu.Lock()
	fn(&p.permissions)
	p.mu.Unlock()
}

func (p *Participant) ConnectionQuality() transport.ConnectionQuality {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectionQuality
}

func (p *Participant) SetConnectionQuality(q transport.ConnectionQuality) {
	p.mu.Lock()
	p.connectionQuality = q
	p.mu.Unlock()
}

func (p *Participant) AddViolation(violationType, details string) {
	p.mu.Lock()
	p.violations = append(p.violations, Violation{
		Type:      violationType,
		Timestamp: time.Now(),
		Details:   details,
	})
	p.mu.Unlock()
}

func (p *Participant) Violations() []Violation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Violation, len(p.violations))
	copy(out, p.violations)
	return out
}

func (p *Participant) LastActive() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActive
}

// StartInactivityMonitor arms the participant-owned inactivity check. The
// check fires checkInterval after the last activity refresh; if total
// inactivity has reached idleAfter the onInactive hook runs (informational
// only), otherwise the check rearms.
func (p *Participant) StartInactivityMonitor(checkInterval, idleAfter time.Duration, onInactive func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActive = time.Now()
	p.checkInterval = checkInterval
	p.idleAfter = idleAfter
	p.onInactive = onInactive
	p.armInactivityLocked()
}

// Touch refreshes the activity clock and resets the pending check.
func (p *Participant) Touch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActive = time.Now()
	if p.inactivityTimer != nil {
		p.armInactivityLocked()
	}
}

func (p *Participant) StopInactivityMonitor() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inactivityTimer != nil {
		p.inactivityTimer.Stop()
		p.inactivityTimer = nil
	}
	p.onInactive = nil
}

func (p *Participant) armInactivityLocked() {
	if p.inactivityTimer != nil {
		p.inactivityTimer.Stop()
	}
	p.inactivityTimer = time.AfterFunc(p.checkInterval, p.inactivityFired)
}

func (p *Participant) inactivityFired() {
	p.mu.Lock()
	if p.inactivityTimer == nil || p.onInactive == nil {
		p.mu.Unlock()
		return
	}
	if time.Since(p.lastActive) >= p.idleAfter {
		fire := p.onInactive
		p.armInactivityLocked()
		p.mu.Unlock()
		fire()
		return
	}
	p.armInactivityLocked()
	p.mu.Unlock()
}
