package domain

import (
	"context"
	"strings"
)

type ModerationAction string

const (
	ActionWarning      ModerationAction = "WARNING"
	ActionMuteAudio    ModerationAction = "MUTE_AUDIO"
	ActionDisableVideo ModerationAction = "DISABLE_VIDEO"
	ActionKick         ModerationAction = "KICK"
	ActionBan          ModerationAction = "BAN"
)

// ViolationType is the record type appended to a participant when the
// action is applied.
func (a ModerationAction) ViolationType() string {
	return strings.ToLower(string(a))
}

// ModerationResult is what a provider returns for a piece of content.
type ModerationResult struct {
	Flagged           bool               `json:"flagged"`
	Categories        map[string]float64 `json:"categories,omitempty"`
	Severity          float64            `json:"severity,omitempty"`
	ActionRecommended ModerationAction   `json:"actionRecommended,omitempty"`
	Reason            string             `json:"reason,omitempty"`
}

// Capability declares which content kinds a provider can inspect. Callers
// consult the bitset instead of probing for optional methods.
type Capability uint8

const (
	CapabilityText Capability = 1 << iota
	CapabilityAudio
	CapabilityVideo
)

func (c Capability) Has(flag Capability) bool {
	return c&flag == flag
}

// ModerationProvider is a pluggable content inspection backend. A provider
// only has to implement the checks its Capabilities advertise; the rest may
// return ErrUnsupportedCheck.
type ModerationProvider interface {
	Name() string
	Capabilities() Capability
	CheckText(ctx context.Context, text string) (ModerationResult, error)
	CheckAudio(ctx context.Context, data []byte) (ModerationResult, error)
	CheckVideo(ctx context.Context, data []byte) (ModerationResult, error)
}

// ModerationConfig gates the pipeline per session. Enabled=false is a hard
// gate regardless of the per-kind flags. AudioModeration round-trips through
// the config but has no inspection path yet.
type ModerationConfig struct {
	Enabled         bool     `json:"enabled"`
	TextModeration  bool     `json:"textModeration"`
	AudioModeration bool     `json:"audioModeration"`
	VideoModeration bool     `json:"videoModeration"`
	Providers       []string `json:"providers,omitempty"`
}
