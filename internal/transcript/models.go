package transcript

import (
	"encoding/json"
	"strings"
	"time"
)

// Line is one finalized transcript line. Immutable once constructed; the
// text is always non-empty and trimmed.
type Line struct {
	SessionID       string `json:"session_id"`
	SpeakerIdentity string `json:"speaker_identity"`
	SpeakerName     string `json:"speaker_name"`
	Text            string `json:"text"`
	TimestampMs     int64  `json:"timestamp_ms"`
}

// NewLine constructs a Line from recognized text, trimming surrounding
// whitespace. Returns ok=false when nothing remains after trimming; such
// events must not be committed or broadcast.
func NewLine(sessionID, speakerIdentity, speakerName, text string, timestampMs int64) (Line, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Line{}, false
	}

	return Line{
		SessionID:       sessionID,
		SpeakerIdentity: speakerIdentity,
		SpeakerName:     speakerName,
		Text:            trimmed,
		TimestampMs:     timestampMs,
	}, true
}

// Time returns the line timestamp as a wall-clock time
func (l Line) Time() time.Time {
	return time.UnixMilli(l.TimestampMs).UTC()
}

// broadcastMessage is the wire format published to session members
type broadcastMessage struct {
	Type            string `json:"type"`
	SpeakerIdentity string `json:"speaker_identity"`
	SpeakerName     string `json:"speaker_name"`
	Text            string `json:"text"`
	Timestamp       int64  `json:"timestamp"`
	IsFinal         bool   `json:"is_final"`
}

// BroadcastPayload renders the line as the JSON payload published to all
// session members over the data channel
func (l Line) BroadcastPayload() ([]byte, error) {
	return json.Marshal(broadcastMessage{
		Type:            "transcript",
		SpeakerIdentity: l.SpeakerIdentity,
		SpeakerName:     l.SpeakerName,
		Text:            l.Text,
		Timestamp:       l.TimestampMs,
		IsFinal:         true,
	})
}
