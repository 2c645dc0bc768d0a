package session

import (
	"context"

	"go.uber.org/multierr"
)

// Participant identifies one session member. Identity is the stable opaque
// key; Name is the human-readable display name used in transcripts.
type Participant struct {
	Identity string
	Name     string
}

// AudioTrack is a lazy, non-restartable sequence of PCM16 audio frames from
// one participant. ReadFrame blocks until the next frame, the context is
// cancelled, or the track ends (io.EOF).
type AudioTrack interface {
	ReadFrame(ctx context.Context) ([]byte, error)
}

// EventKind classifies room events delivered to the manager
type EventKind int

const (
	// EventParticipantJoined fires when a participant connects
	EventParticipantJoined EventKind = iota
	// EventParticipantLeft fires when a participant disconnects
	EventParticipantLeft
	// EventTrackSubscribed fires when a participant's audio track becomes available
	EventTrackSubscribed
	// EventTrackUnsubscribed fires when a participant's audio track goes away
	EventTrackUnsubscribed
)

// RoomEvent is one membership or track notification from the transport
// layer. Track is set only for EventTrackSubscribed.
type RoomEvent struct {
	Kind        EventKind
	Participant Participant
	Track       AudioTrack
}

// ActiveTrack pairs a participant with their already-published audio track,
// for pipelines that must exist before any event arrives
type ActiveTrack struct {
	Participant Participant
	Track       AudioTrack
}

// RoomSource is the transport-layer capability the manager consumes: a
// snapshot of currently publishing participants plus a stream of room
// events. The events channel is closed when the room connection ends.
type RoomSource interface {
	ActiveTracks() []ActiveTrack
	Events() <-chan RoomEvent
}

// Publisher is the reliable broadcast capability: publish delivers an opaque
// payload to all current session members, best-effort ordered per sender.
// Failures are non-fatal to the caller.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Publishers fans one payload out to several broadcast capabilities (the
// room data channel and the websocket hub, typically). Every publisher is
// attempted; failures are aggregated.
type Publishers []Publisher

// Publish implements Publisher
func (p Publishers) Publish(ctx context.Context, payload []byte) error {
	var result error
	for _, pub := range p {
		result = multierr.Append(result, pub.Publish(ctx, payload))
	}
	return result
}
