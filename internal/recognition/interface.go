package recognition

import (
	"context"
)

// Stream is one live recognition stream bound to a single speaker. Audio
// frames go in, transcript events come out. The events channel is closed
// when the stream ends, whether by Close or by an upstream error.
type Stream interface {
	// SendAudio forwards a PCM16 frame to the recognizer
	SendAudio(ctx context.Context, pcm []byte) error
	// Events returns the stream of recognition events
	Events() <-chan Event
	// Close releases the stream. Safe to call more than once.
	Close() error
}

// Engine opens recognition streams. One engine serves many speakers; each
// speaker gets its own stream.
type Engine interface {
	OpenStream(ctx context.Context, speakerID string) (Stream, error)
}

// Ensure the realtime engine implements the interface
var _ Engine = (*RealtimeEngine)(nil)
