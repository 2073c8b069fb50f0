package domain

import "time"

type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

const (
	AuditRoomCreated         = "ROOM_CREATED"
	AuditRoomMetadataUpdated = "ROOM_METADATA_UPDATED"
	AuditRoomEnded           = "ROOM_ENDED"
	AuditSessionIdle         = "SESSION_IDLE"
	AuditSessionActive       = "SESSION_ACTIVE"
	AuditTokenIssued         = "TOKEN_ISSUED"

	AuditParticipantTracked      = "PARTICIPANT_TRACKED"
	AuditParticipantRejected     = "PARTICIPANT_REJECTED"
	AuditParticipantDisconnected = "PARTICIPANT_DISCONNECTED"
	AuditParticipantInactive     = "PARTICIPANT_INACTIVE"
	AuditConnectionQuality       = "CONNECTION_QUALITY_CHANGED"
	AuditTrackMuted              = "TRACK_MUTED"
	AuditTrackUnmuted            = "TRACK_UNMUTED"

	AuditModerationApplied = "MODERATION_APPLIED"
	AuditModerationFailed  = "MODERATION_FAILED"
	AuditModerationFlagged = "MODERATION_FLAGGED"
	AuditUserBanned        = "USER_BANNED"

	AuditEventSent          = "EVENT_SENT"
	AuditEventSendFailed    = "EVENT_SEND_FAILED"
	AuditEventDropped       = "EVENT_DROPPED"
	AuditEventHandlerFailed = "EVENT_HANDLER_FAILED"
)

// LogEntry is one append-only audit record scoped to a room.
type LogEntry struct {
	RoomID    string         `json:"room_id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Event     string         `json:"event"`
	UserID    string         `json:"user_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
