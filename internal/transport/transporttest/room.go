// Package transporttest provides scriptable in-memory implementations of the
// transport contracts for tests.
package transporttest

import (
	"context"
	"sync"

	"market_call/internal/transport"
)

type Publication struct {
	TrackSID  string
	TrackKind transport.TrackKind
	Muted     bool
}

func (p *Publication) SID() string               { return p.TrackSID }
func (p *Publication) Kind() transport.TrackKind { return p.TrackKind }
func (p *Publication) IsMuted() bool             { return p.Muted }

// FramePublication is a video publication that also serves still frames.
type FramePublication struct {
	Publication
	Frames   [][]byte
	FrameErr error

	mu   sync.Mutex
	next int
}

func (p *FramePublication) CaptureFrame(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FrameErr != nil {
		return nil, p.FrameErr
	}
	if len(p.Frames) == 0 {
		return nil, nil
	}
	frame := p.Frames[p.next%len(p.Frames)]
	p.next++
	return frame, nil
}

type Participant struct {
	ID    string
	Meta  string
	Local bool

	mu   sync.Mutex
	pubs []transport.TrackPublication
}

func NewParticipant(identity, metadata string) *Participant {
	return &Participant{ID: identity, Meta: metadata}
}

func (p *Participant) Identity() string { return p.ID }
func (p *Participant) Metadata() string { return p.Meta }
func (p *Participant) IsLocal() bool    { return p.Local }

func (p *Participant) Publications() []transport.TrackPublication {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]transport.TrackPublication, len(p.pubs))
	copy(out, p.pubs)
	return out
}

func (p *Participant) AddPublication(pub transport.TrackPublication) {
	p.mu.Lock()
	p.pubs = append(p.pubs, pub)
	p.mu.Unlock()
}

type MuteCall struct {
	Identity string
	TrackSID string
	Muted    bool
}

// Room records every transport call and lets tests simulate room events.
type Room struct {
	RoomName string
	Local    *Participant

	// scriptable failures
	PublishErr error
	RemoveErr  error
	MuteErr    error

	mu      sync.Mutex
	remotes map[string]*Participant

	Published [][]byte
	PubOpts   []transport.DataPublishOptions
	Removed   []string
	Mutes     []MuteCall

	joined    []func(transport.Participant)
	left      []func(transport.Participant)
	quality   []func(transport.Participant, transport.ConnectionQuality)
	published []func(transport.Participant, transport.TrackPublication)
	muted     []func(transport.Participant, transport.TrackPublication)
	unmuted   []func(transport.Participant, transport.TrackPublication)
	ended     []func(transport.Participant, transport.TrackPublication)
	data      []func([]byte, transport.Participant)
}

func NewRoom(name string) *Room {
	return &Room{
		RoomName: name,
		Local:    &Participant{ID: "local", Local: true},
		remotes:  make(map[string]*Participant),
	}
}

func (r *Room) Name() string { return r.RoomName }

func (r *Room) LocalParticipant() transport.Participant { return r.Local }

func (r *Room) RemoteParticipants() []transport.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]transport.Participant, 0, len(r.remotes))
	for _, p := range r.remotes {
		out = append(out, p)
	}
	return out
}

func (r *Room) PublishData(ctx context.Context, data []byte, opts transport.DataPublishOptions) error {
	if r.PublishErr != nil {
		return r.PublishErr
	}
	r.mu.Lock()
	r.Published = append(r.Published, data)
	r.PubOpts = append(r.PubOpts, opts)
	r.mu.Unlock()
	return nil
}

func (r *Room) RemoveParticipant(ctx context.Context, identity string) error {
	if r.RemoveErr != nil {
		return r.RemoveErr
	}
	r.mu.Lock()
	r.Removed = append(r.Removed, identity)
	r.mu.Unlock()
	return nil
}

func (r *Room) MuteTrack(ctx context.Context, identity, trackSID string, muted bool) error {
	if r.MuteErr != nil {
		return r.MuteErr
	}
	r.mu.Lock()
	r.Mutes = append(r.Mutes, MuteCall{Identity: identity, TrackSID: trackSID, Muted: muted})
	r.mu.Unlock()
	return nil
}

func (r *Room) OnParticipantJoined(fn func(transport.Participant)) {
	r.mu.Lock()
	r.joined = append(r.joined, fn)
	r.mu.Unlock()
}

func (r *Room) OnParticipantLeft(fn func(transport.Participant)) {
	r.mu.Lock()
	r.left = append(r.left, fn)
	r.mu.Unlock()
}

func (r *Room) OnConnectionQualityChanged(fn func(transport.Participant, transport.ConnectionQuality)) {
	r.mu.Lock()
	r.quality = append(r.quality, fn)
	r.mu.Unlock()
}

func (r *Room) OnTrackPublished(fn func(transport.Participant, transport.TrackPublication)) {
	r.mu.Lock()
	r.published = append(r.published, fn)
	r.mu.Unlock()
}

func (r *Room) OnTrackMuted(fn func(transport.Participant, transport.TrackPublication)) {
	r.mu.Lock()
	r.muted = append(r.muted, fn)
	r.mu.Unlock()
}

func (r *Room) OnTrackUnmuted(fn func(transport.Participant, transport.TrackPublication)) {
	r.mu.Lock()
	r.unmuted = append(r.unmuted, fn)
	r.mu.Unlock()
}

func (r *Room) OnTrackEnded(fn func(transport.Participant, transport.TrackPublication)) {
	r.mu.Lock()
	r.ended = append(r.ended, fn)
	r.mu.Unlock()
}

func (r *Room) OnDataReceived(fn func([]byte, transport.Participant)) {
	r.mu.Lock()
	r.data = append(r.data, fn)
	r.mu.Unlock()
}

// SimulateJoin registers the participant and fires joined callbacks.
func (r *Room) SimulateJoin(p *Participant) {
	r.mu.Lock()
	r.remotes[p.ID] = p
	fns := append([]func(transport.Participant){}, r.joined...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (r *Room) SimulateLeave(p *Participant) {
	r.mu.Lock()
	delete(r.remotes, p.ID)
	fns := append([]func(transport.Participant){}, r.left...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (r *Room) SimulateQuality(p *Participant, q transport.ConnectionQuality) {
	r.mu.Lock()
	fns := append([]func(transport.Participant, transport.ConnectionQuality){}, r.quality...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(p, q)
	}
}

func (r *Room) SimulateTrackPublished(p *Participant, pub transport.TrackPublication) {
	r.mu.Lock()
	fns := append([]func(transport.Participant, transport.TrackPublication){}, r.published...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(p, pub)
	}
}

func (r *Room) SimulateTrackEnded(p *Participant, pub transport.TrackPublication) {
	r.mu.Lock()
	fns := append([]func(transport.Participant, transport.TrackPublication){}, r.ended...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(p, pub)
	}
}

func (r *Room) SimulateData(data []byte, sender *Participant) {
	r.mu.Lock()
	fns := append([]func([]byte, transport.Participant){}, r.data...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(data, sender)
	}
}
