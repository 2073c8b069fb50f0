package domain

import "time"

// CustomEventType enumerates the application-level events exchanged over the
// transport's reliable data channel.
type CustomEventType string

const (
	EventChatMessage        CustomEventType = "CHAT_MESSAGE"
	EventInviteDelivery     CustomEventType = "INVITE_DELIVERY"
	EventDeliveryAccepted   CustomEventType = "DELIVERY_ACCEPTED"
	EventProductShowcase    CustomEventType = "PRODUCT_SHOWCASE"
	EventPaymentInitiated   CustomEventType = "PAYMENT_INITIATED"
	EventPaymentCompleted   CustomEventType = "PAYMENT_COMPLETED"
	EventOrderConfirmed     CustomEventType = "ORDER_CONFIRMED"
	EventModerationAction   CustomEventType = "MODERATION_ACTION"
	EventParticipantWarning CustomEventType = "PARTICIPANT_WARNING"
	EventCallEnding         CustomEventType = "CALL_ENDING"
)

var knownEventTypes = map[CustomEventType]struct{}{
	EventChatMessage:        {},
	EventInviteDelivery:     {},
	EventDeliveryAccepted:   {},
	EventProductShowcase:    {},
	EventPaymentInitiated:   {},
	EventPaymentCompleted:   {},
	EventOrderConfirmed:     {},
	EventModerationAction:   {},
	EventParticipantWarning: {},
	EventCallEnding:         {},
}

func (t CustomEventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// CustomEventEnvelope is the wire format layered over the reliable data
// channel, transmitted as UTF-8 JSON. After ingestion SenderID and Timestamp
// are always present: the receiver stamps them if the sender omitted them.
type CustomEventEnvelope struct {
	Type     CustomEventType `json:"type"`
	SenderID string          `json:"senderId,omitempty"`
	// Timestamp is unix milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`
	// TargetID is advisory only: the transport broadcasts every event to the
	// whole room and receivers filter on it themselves.
	TargetID string `json:"targetId,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// PayloadMap returns the payload as a map when it is one.
func (e CustomEventEnvelope) PayloadMap() (map[string]any, bool) {
	m, ok := e.Payload.(map[string]any)
	return m, ok
}

func NowMillis() int64 {
	return time.Now().UnixMilli()
}
