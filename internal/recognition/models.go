package recognition

import (
	"time"
)

// Event type classifications emitted by a Stream. Delta events are interim
// hypotheses that may still be revised; completed events are final.
const (
	EventDelta     = "delta"
	EventCompleted = "completed"
)

// Event represents a single recognition output event
type Event struct {
	Type      string    // "delta" or "completed"
	Text      string    // The recognized text
	Timestamp time.Time // When the event was received
}

// Final reports whether the event is a finalized, non-revisable transcript
func (e Event) Final() bool {
	return e.Type == EventCompleted
}

// Config represents the configuration for the recognition engine
type Config struct {
	APIKey            string
	Model             string
	Language          string
	SampleRate        int
	ChunkMs           int
	TurnDetectionType string
	VADThreshold      float64
	SilenceDurationMs int
	TimeoutSeconds    int
}
