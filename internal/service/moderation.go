package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"market_call/internal/domain"
	"market_call/internal/transport"
	"market_call/pkg/errors"
	"market_call/pkg/logger"
)

const defaultSampleInterval = 5 * time.Second

// ModerationPipeline runs registered content providers over session traffic
// and drives enforcement through the participant manager.
type ModerationPipeline struct {
	participants *ParticipantManager
	bus          *EventBus
	audit        SessionLog
	log          logger.Logger

	// SampleInterval is how often video publications are sampled.
	SampleInterval time.Duration

	mu        sync.RWMutex
	providers []domain.ModerationProvider
	byName    map[string]domain.ModerationProvider
	onResult  []func(*domain.Session, *domain.Participant, domain.ModerationResult)
	watchers  map[string]*sessionWatcher
}

type sessionWatcher struct {
	unsubscribe func()

	mu       sync.Mutex
	samplers map[string]chan struct{}
}

func NewModerationPipeline(participants *ParticipantManager, bus *EventBus, audit SessionLog, log logger.Logger) *ModerationPipeline {
	return &ModerationPipeline{
		participants:   participants,
		bus:            bus,
		audit:          audit,
		log:            log,
		SampleInterval: defaultSampleInterval,
		byName:         make(map[string]domain.ModerationProvider),
		watchers:       make(map[string]*sessionWatcher),
	}
}

// RegisterProvider adds a provider to the ordered chain. Inspection stops at
// the first provider that flags.
func (p *ModerationPipeline) RegisterProvider(provider domain.ModerationProvider) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byName[provider.Name()]; exists {
		return errors.ErrProviderRegistered
	}
	p.byName[provider.Name()] = provider
	p.providers = append(p.providers, provider)
	return nil
}

// OnResult registers a local hook fired for every flagged inspection.
func (p *ModerationPipeline) OnResult(fn func(*domain.Session, *domain.Participant, domain.ModerationResult)) {
	p.mu.Lock()
	p.onResult = append(p.onResult, fn)
	p.mu.Unlock()
}

// Watch subscribes the pipeline to a session: bus traffic is inspected for
// text, video publications are sampled. Audio is accepted in the config but
// has no inspection path.
func (p *ModerationPipeline) Watch(session *domain.Session) {
	watcher := &sessionWatcher{samplers: make(map[string]chan struct{})}

	watcher.unsubscribe = p.bus.SubscribeAll(func(s *domain.Session, env domain.CustomEventEnvelope) {
		if s != session {
			return
		}
		p.inspectText(session, env)
	})

	if room := session.Room(); room != nil {
		room.OnTrackPublished(func(tp transport.Participant, pub transport.TrackPublication) {
			if pub.Kind() != transport.TrackKindVideo {
				return
			}
			p.startSampler(session, watcher, tp, pub)
		})
		room.OnTrackEnded(func(tp transport.Participant, pub transport.TrackPublication) {
			watcher.stopSampler(pub.SID())
		})
		for _, tp := range room.RemoteParticipants() {
			for _, pub := range tp.Publications() {
				if pub.Kind() == transport.TrackKindVideo {
					p.startSampler(session, watcher, tp, pub)
				}
			}
		}
	}

	p.mu.Lock()
	p.watchers[session.ID] = watcher
	p.mu.Unlock()
}

// Unwatch tears the session's subscription and samplers down.
func (p *ModerationPipeline) Unwatch(session *domain.Session) {
	p.mu.Lock()
	watcher := p.watchers[session.ID]
	delete(p.watchers, session.ID)
	p.mu.Unlock()
	if watcher == nil {
		return
	}
	if watcher.unsubscribe != nil {
		watcher.unsubscribe()
	}
	watcher.stopAll()
}

func (p *ModerationPipeline) inspectText(session *domain.Session, env domain.CustomEventEnvelope) {
	cfg := session.ModerationConfig()
	if cfg == nil || !cfg.Enabled || !cfg.TextModeration {
		return
	}

	text := ExtractText(env.Payload)
	if text == "" {
		return
	}

	participant := p.participants.GetUser(session, env.SenderID)
	if participant == nil {
		p.log.Debug("Skipping moderation for untracked sender", "room_id", session.ID, "sender_id", env.SenderID)
		return
	}

	ctx := context.Background()
	for _, provider := range p.selectProviders(cfg, domain.CapabilityText) {
		result, err := provider.CheckText(ctx, text)
		if err != nil {
			p.audit.Warn(ctx, session.ID, domain.AuditModerationFailed, map[string]any{
				"provider": provider.Name(), "error": err.Error(),
			}, env.SenderID)
			continue
		}
		if result.Flagged {
			p.enforce(ctx, session, participant, provider.Name(), result)
			return
		}
	}
}

func (p *ModerationPipeline) inspectFrame(session *domain.Session, participant *domain.Participant, frame []byte) {
	cfg := session.ModerationConfig()
	if cfg == nil || !cfg.Enabled || !cfg.VideoModeration {
		return
	}

	ctx := context.Background()
	for _, provider := range p.selectProviders(cfg, domain.CapabilityVideo) {
		result, err := provider.CheckVideo(ctx, frame)
		if err != nil {
			p.audit.Warn(ctx, session.ID, domain.AuditModerationFailed, map[string]any{
				"provider": provider.Name(), "error": err.Error(),
			}, participant.ID)
			continue
		}
		if result.Flagged {
			p.enforce(ctx, session, participant, provider.Name(), result)
			return
		}
	}
}

func (p *ModerationPipeline) enforce(ctx context.Context, session *domain.Session, participant *domain.Participant, providerName string, result domain.ModerationResult) {
	action := result.ActionRecommended
	if action == "" {
		action = domain.ActionWarning
	}

	p.audit.Warn(ctx, session.ID, domain.AuditModerationFlagged, map[string]any{
		"provider": providerName,
		"action":   string(action),
		"severity": result.Severity,
		"reason":   result.Reason,
	}, participant.ID)

	applied := p.participants.ModerateUser(ctx, session, participant, action, result.Reason)

	p.bus.SendEvent(ctx, session, domain.EventModerationAction, "system", map[string]any{
		"userId":   participant.ID,
		"action":   string(action),
		"applied":  applied,
		"reason":   result.Reason,
		"provider": providerName,
	}, participant.ID)

	p.mu.RLock()
	hooks := append([]func(*domain.Session, *domain.Participant, domain.ModerationResult){}, p.onResult...)
	p.mu.RUnlock()
	for _, fn := range hooks {
		fn(session, participant, result)
	}
}

// selectProviders returns the ordered providers matching the capability,
// narrowed to cfg.Providers when the session names a subset.
func (p *ModerationPipeline) selectProviders(cfg *domain.ModerationConfig, capability domain.Capability) []domain.ModerationProvider {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []domain.ModerationProvider
	for _, provider := range p.providers {
		if !provider.Capabilities().Has(capability) {
			continue
		}
		if len(cfg.Providers) > 0 && !containsName(cfg.Providers, provider.Name()) {
			continue
		}
		out = append(out, provider)
	}
	return out
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (p *ModerationPipeline) startSampler(session *domain.Session, watcher *sessionWatcher, tp transport.Participant, pub transport.TrackPublication) {
	source, ok := pub.(transport.FrameSource)
	if !ok {
		p.log.Debug("Video publication has no frame source", "room_id", session.ID, "track_sid", pub.SID())
		return
	}

	stop := make(chan struct{})
	watcher.mu.Lock()
	if _, exists := watcher.samplers[pub.SID()]; exists {
		watcher.mu.Unlock()
		close(stop)
		return
	}
	watcher.samplers[pub.SID()] = stop
	watcher.mu.Unlock()

	identity := tp.Identity()
	go func() {
		ticker := time.NewTicker(p.SampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				participant := p.participants.GetUser(session, identity)
				if participant == nil {
					continue
				}
				frame, err := source.CaptureFrame(context.Background())
				if err != nil {
					p.log.Warn("Frame capture failed", "room_id", session.ID, "track_sid", pub.SID(), "error", err)
					continue
				}
				if len(frame) == 0 {
					continue
				}
				p.inspectFrame(session, participant, frame)
			}
		}
	}()
}

func (w *sessionWatcher) stopSampler(sid string) {
	w.mu.Lock()
	stop := w.samplers[sid]
	delete(w.samplers, sid)
	w.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (w *sessionWatcher) stopAll() {
	w.mu.Lock()
	for sid, stop := range w.samplers {
		close(stop)
		delete(w.samplers, sid)
	}
	w.mu.Unlock()
}

// ExtractText pulls the moderatable text out of an event payload using the
// ordered heuristic: a message/text/comment field, then a raw string
// payload, then the concatenation of every string-valued field.
func ExtractText(payload any) string {
	switch v := payload.(type) {
	case string:
		return v
	case map[string]any:
		for _, key := range []string{"message", "text", "comment"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}
		// Last resort: every string field, in key order for determinism.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			if s, ok := v[k].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
