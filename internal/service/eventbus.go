package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/livekit/protocol/livekit"

	"market_call/internal/domain"
	"market_call/internal/transport"
	"market_call/pkg/logger"
)

// EventHandler processes one decoded envelope in the context of a session.
type EventHandler func(session *domain.Session, env domain.CustomEventEnvelope)

type handlerEntry struct {
	fn EventHandler
}

// EventBus encodes and decodes the custom event envelope over the
// transport's reliable data channel and fans envelopes out to handlers.
//
// Dispatch order for each inbound envelope: the handlers registered for its
// exact type, in registration order, each failure isolated; then every
// generic any-event subscriber; then the generic per-type subscribers.
type EventBus struct {
	audit SessionLog
	log   logger.Logger

	mu       sync.RWMutex
	handlers map[domain.CustomEventType][]*handlerEntry
	anySubs  []*handlerEntry
	typeSubs map[domain.CustomEventType][]*handlerEntry
}

func NewEventBus(audit SessionLog, log logger.Logger) *EventBus {
	return &EventBus{
		audit:    audit,
		log:      log,
		handlers: make(map[domain.CustomEventType][]*handlerEntry),
		typeSubs: make(map[domain.CustomEventType][]*handlerEntry),
	}
}

// Bind attaches the bus to a live session: inbound data channel bytes are
// decoded and dispatched with that session as context.
func (b *EventBus) Bind(session *domain.Session) {
	room := session.Room()
	if room == nil {
		b.log.Warn("Cannot bind event bus, session has no live room", "room_id", session.ID)
		return
	}
	room.OnDataReceived(func(data []byte, sender transport.Participant) {
		b.HandleIncoming(session, data, sender)
	})
}

// Register adds a typed handler. The returned func unregisters it;
// unregistering during a dispatch pass does not affect that pass.
func (b *EventBus) Register(t domain.CustomEventType, fn EventHandler) func() {
	entry := &handlerEntry{fn: fn}
	b.mu.Lock()
	b.handlers[t] = append(b.handlers[t], entry)
	b.mu.Unlock()
	return func() { b.unregister(entry) }
}

// SubscribeAll adds a generic subscriber receiving every valid envelope.
// This is how the moderation pipeline observes traffic.
func (b *EventBus) SubscribeAll(fn EventHandler) func() {
	entry := &handlerEntry{fn: fn}
	b.mu.Lock()
	b.anySubs = append(b.anySubs, entry)
	b.mu.Unlock()
	return func() { b.unregister(entry) }
}

// SubscribeType adds a generic per-type subscriber, fired after the typed
// handlers and the any-event subscribers.
func (b *EventBus) SubscribeType(t domain.CustomEventType, fn EventHandler) func() {
	entry := &handlerEntry{fn: fn}
	b.mu.Lock()
	b.typeSubs[t] = append(b.typeSubs[t], entry)
	b.mu.Unlock()
	return func() { b.unregister(entry) }
}

func (b *EventBus) unregister(target *handlerEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t, entries := range b.handlers {
		b.handlers[t] = dropEntry(entries, target)
	}
	b.anySubs = dropEntry(b.anySubs, target)
	for t, entries := range b.typeSubs {
		b.typeSubs[t] = dropEntry(entries, target)
	}
}

func dropEntry(entries []*handlerEntry, target *handlerEntry) []*handlerEntry {
	for i, e := range entries {
		if e == target {
			return append(entries[:i:i], entries[i+1:]...)
		}
	}
	return entries
}

// HandleIncoming is the inbound path: bytes off the data channel to handler
// dispatch. Malformed or unknown input is dropped with a warning, never
// propagated.
func (b *EventBus) HandleIncoming(session *domain.Session, data []byte, sender transport.Participant) {
	var env domain.CustomEventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.audit.Warn(context.Background(), session.ID, domain.AuditEventDropped, map[string]any{"error": err.Error()}, "")
		b.log.Warn("Dropping malformed event payload", "room_id", session.ID, "error", err)
		return
	}
	if !env.Type.Valid() {
		b.audit.Warn(context.Background(), session.ID, domain.AuditEventDropped, map[string]any{"type": string(env.Type)}, "")
		b.log.Warn("Dropping event of unknown type", "room_id", session.ID, "type", string(env.Type))
		return
	}

	// Receiver stamps what the sender omitted.
	if env.SenderID == "" && sender != nil {
		env.SenderID = sender.Identity()
	}
	if env.Timestamp == 0 {
		env.Timestamp = domain.NowMillis()
	}

	b.mu.RLock()
	typed := append([]*handlerEntry{}, b.handlers[env.Type]...)
	anySubs := append([]*handlerEntry{}, b.anySubs...)
	typeSubs := append([]*handlerEntry{}, b.typeSubs[env.Type]...)
	b.mu.RUnlock()

	for _, entry := range typed {
		b.dispatch(session, env, entry)
	}
	for _, entry := range anySubs {
		b.dispatch(session, env, entry)
	}
	for _, entry := range typeSubs {
		b.dispatch(session, env, entry)
	}
}

// dispatch isolates one handler invocation: a panic is recovered and logged
// and the remaining handlers still run.
func (b *EventBus) dispatch(session *domain.Session, env domain.CustomEventEnvelope, entry *handlerEntry) {
	defer func() {
		if r := recover(); r != nil {
			b.audit.Error(context.Background(), session.ID, domain.AuditEventHandlerFailed, map[string]any{
				"type":  string(env.Type),
				"panic": r,
			}, env.SenderID)
			b.log.Error("Event handler panicked", "room_id", session.ID, "type", string(env.Type), "panic", r)
		}
	}()
	entry.fn(session, env)
}

// SendEvent builds an envelope and broadcasts it over the reliable channel.
// targetID is carried as a hint only — the transport broadcasts to everyone
// and receivers self-filter. Failures are swallowed into a false return.
func (b *EventBus) SendEvent(ctx context.Context, session *domain.Session, t domain.CustomEventType, senderID string, payload any, targetID string) bool {
	room := session.Room()
	if room == nil {
		b.log.Warn("Cannot send event, session has no live room", "room_id", session.ID, "type", string(t))
		return false
	}

	env := domain.CustomEventEnvelope{
		Type:      t,
		SenderID:  senderID,
		Timestamp: domain.NowMillis(),
		TargetID:  targetID,
		Payload:   payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		b.log.Error("Failed to encode event envelope", "room_id", session.ID, "type", string(t), "error", err)
		return false
	}

	err = room.PublishData(ctx, data, transport.DataPublishOptions{
		Kind: livekit.DataPacket_RELIABLE,
	})
	if err != nil {
		b.audit.Error(ctx, session.ID, domain.AuditEventSendFailed, map[string]any{"type": string(t), "error": err.Error()}, senderID)
		b.log.Error("Failed to publish event", "room_id", session.ID, "type", string(t), "error", err)
		return false
	}

	b.audit.Debug(ctx, session.ID, domain.AuditEventSent, map[string]any{"type": string(t)}, senderID)
	return true
}

// Типизированные конструкторы — только форма payload, без новой семантики.

func (b *EventBus) SendInviteDelivery(ctx context.Context, session *domain.Session, senderID, deliveryUserID string) bool {
	return b.SendEvent(ctx, session, domain.EventInviteDelivery, senderID, map[string]any{
		"deliveryUserId": deliveryUserID,
	}, deliveryUserID)
}

func (b *EventBus) SendProductShowcase(ctx context.Context, session *domain.Session, senderID, productID, title string) bool {
	return b.SendEvent(ctx, session, domain.EventProductShowcase, senderID, map[string]any{
		"productId": productID,
		"title":     title,
	}, "")
}

func (b *EventBus) SendPaymentInitiated(ctx context.Context, session *domain.Session, senderID, orderID string, amount float64) bool {
	return b.SendEvent(ctx, session, domain.EventPaymentInitiated, senderID, map[string]any{
		"orderId": orderID,
		"amount":  amount,
	}, "")
}

func (b *EventBus) SendPaymentCompleted(ctx context.Context, session *domain.Session, senderID, orderID string) bool {
	return b.SendEvent(ctx, session, domain.EventPaymentCompleted, senderID, map[string]any{
		"orderId": orderID,
	}, "")
}

func (b *EventBus) SendCallEnding(ctx context.Context, session *domain.Session, senderID, reason string) bool {
	return b.SendEvent(ctx, session, domain.EventCallEnding, senderID, map[string]any{
		"reason": reason,
	}, "")
}
