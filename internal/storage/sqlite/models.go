package sqlite

import "time"

// TranscriptRecord represents one stored transcript line
type TranscriptRecord struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	SpeakerIdentity string    `json:"speaker_identity"`
	SpeakerName     string    `json:"speaker_name"`
	Text            string    `json:"text"`
	TimestampMs     int64     `json:"timestamp_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// SessionSummary represents the per-session aggregate exposed by the API
type SessionSummary struct {
	SessionID string `json:"session_id"`
	LineCount int    `json:"line_count"`
	FirstMs   int64  `json:"first_timestamp_ms"`
	LastMs    int64  `json:"last_timestamp_ms"`
}
