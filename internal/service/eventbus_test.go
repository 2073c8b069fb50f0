package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/require"

	"market_call/internal/domain"
	"market_call/internal/transport/transporttest"
	"market_call/pkg/logger"
)

func newTestBus(t *testing.T) *EventBus {
	t.Helper()
	return NewEventBus(newTestAudit(t), logger.New("error"))
}

func marshalEnvelope(t *testing.T, env domain.CustomEventEnvelope) []byte {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

func TestEventBus_IncomingStampsSenderAndTimestamp(t *testing.T) {
	req := require.New(t)
	bus := newTestBus(t)
	session, room := newTrackedSession(t)
	bus.Bind(session)

	var got domain.CustomEventEnvelope
	bus.Register(domain.EventChatMessage, func(s *domain.Session, env domain.CustomEventEnvelope) {
		got = env
	})

	room.SimulateData(marshalEnvelope(t, domain.CustomEventEnvelope{
		Type:    domain.EventChatMessage,
		Payload: map[string]any{"message": "hello"},
	}), transporttest.NewParticipant("u1", ""))

	req.Equal(domain.EventChatMessage, got.Type)
	req.Equal("u1", got.SenderID)
	req.NotZero(got.Timestamp)
	payload, ok := got.PayloadMap()
	req.True(ok)
	req.Equal("hello", payload["message"])
}

func TestEventBus_DropsMalformedAndUnknown(t *testing.T) {
	req := require.New(t)
	bus := newTestBus(t)
	session, room := newTrackedSession(t)
	bus.Bind(session)

	var calls int
	bus.SubscribeAll(func(*domain.Session, domain.CustomEventEnvelope) { calls++ })

	sender := transporttest.NewParticipant("u1", "")
	room.SimulateData([]byte("{not json"), sender)
	room.SimulateData(marshalEnvelope(t, domain.CustomEventEnvelope{Type: "TOTALLY_MADE_UP"}), sender)
	room.SimulateData([]byte(`{}`), sender)

	req.Zero(calls)
}

func TestEventBus_DispatchOrder(t *testing.T) {
	req := require.New(t)
	bus := newTestBus(t)
	session, _ := newTrackedSession(t)

	var order []string
	record := func(name string) EventHandler {
		return func(*domain.Session, domain.CustomEventEnvelope) { order = append(order, name) }
	}

	// Typed handlers in registration order, then any-subscribers, then
	// per-type subscribers.
	bus.SubscribeType(domain.EventChatMessage, record("type-sub"))
	bus.Register(domain.EventChatMessage, record("typed-1"))
	bus.SubscribeAll(record("any"))
	bus.Register(domain.EventChatMessage, record("typed-2"))

	bus.HandleIncoming(session, marshalEnvelope(t, domain.CustomEventEnvelope{
		Type: domain.EventChatMessage,
	}), transporttest.NewParticipant("u1", ""))

	req.Equal([]string{"typed-1", "typed-2", "any", "type-sub"}, order)
}

func TestEventBus_PanicIsolation(t *testing.T) {
	req := require.New(t)
	bus := newTestBus(t)
	session, _ := newTrackedSession(t)

	var survived bool
	bus.Register(domain.EventChatMessage, func(*domain.Session, domain.CustomEventEnvelope) {
		panic("handler bug")
	})
	bus.Register(domain.EventChatMessage, func(*domain.Session, domain.CustomEventEnvelope) {
		survived = true
	})

	req.NotPanics(func() {
		bus.HandleIncoming(session, marshalEnvelope(t, domain.CustomEventEnvelope{
			Type: domain.EventChatMessage,
		}), transporttest.NewParticipant("u1", ""))
	})
	req.True(survived)
}

func TestEventBus_UnregisterDuringDispatch(t *testing.T) {
	req := require.New(t)
	bus := newTestBus(t)
	session, _ := newTrackedSession(t)

	var secondCalls int
	var unregisterSecond func()
	bus.Register(domain.EventChatMessage, func(*domain.Session, domain.CustomEventEnvelope) {
		unregisterSecond()
	})
	unregisterSecond = bus.Register(domain.EventChatMessage, func(*domain.Session, domain.CustomEventEnvelope) {
		secondCalls++
	})

	deliver := func() {
		bus.HandleIncoming(session, marshalEnvelope(t, domain.CustomEventEnvelope{
			Type: domain.EventChatMessage,
		}), transporttest.NewParticipant("u1", ""))
	}

	// Снятие хендлера не влияет на уже идущий проход.
	deliver()
	req.Equal(1, secondCalls)

	deliver()
	req.Equal(1, secondCalls)
}

func TestEventBus_SendEventPublishesReliable(t *testing.T) {
	req := require.New(t)
	bus := newTestBus(t)
	session, room := newTrackedSession(t)

	ok := bus.SendEvent(context.Background(), session, domain.EventProductShowcase, "seller-1",
		map[string]any{"productId": "p-1"}, "")
	req.True(ok)
	req.Len(room.Published, 1)
	req.Equal(livekit.DataPacket_RELIABLE, room.PubOpts[0].Kind)
	req.Empty(room.PubOpts[0].DestinationIdentities)

	var env domain.CustomEventEnvelope
	req.NoError(json.Unmarshal(room.Published[0], &env))
	req.Equal(domain.EventProductShowcase, env.Type)
	req.Equal("seller-1", env.SenderID)
	req.NotZero(env.Timestamp)
	payload, ok := env.PayloadMap()
	req.True(ok)
	req.Equal("p-1", payload["productId"])
}

func TestEventBus_SendEventFailure(t *testing.T) {
	req := require.New(t)
	bus := newTestBus(t)
	session, room := newTrackedSession(t)
	room.PublishErr = stderrors.New("transport down")

	req.False(bus.SendEvent(context.Background(), session, domain.EventCallEnding, "system", nil, ""))

	// No live room handle at all
	detached := domain.NewSession("room-2", domain.SessionMetadata{Status: domain.SessionStatusActive})
	req.False(bus.SendEvent(context.Background(), detached, domain.EventCallEnding, "system", nil, ""))
}

func TestEventBus_TargetIDIsAdvisory(t *testing.T) {
	req := require.New(t)
	bus := newTestBus(t)
	session, room := newTrackedSession(t)

	req.True(bus.SendInviteDelivery(context.Background(), session, "seller-1", "courier-1"))

	// Broadcast to the whole room: the target travels inside the envelope,
	// not as a destination filter.
	req.Empty(room.PubOpts[0].DestinationIdentities)
	var env domain.CustomEventEnvelope
	req.NoError(json.Unmarshal(room.Published[0], &env))
	req.Equal("courier-1", env.TargetID)
	payload, ok := env.PayloadMap()
	req.True(ok)
	req.Equal("courier-1", payload["deliveryUserId"])
}
