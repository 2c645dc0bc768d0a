package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Snapshot is the replayable JSON export of a full session transcript
type Snapshot struct {
	SessionID       string          `json:"session_id"`
	ExportTimestamp int64           `json:"export_timestamp"`
	ExportDate      string          `json:"export_date"`
	EntryCount      int             `json:"entry_count"`
	Entries         []SnapshotEntry `json:"entries"`
}

// SnapshotEntry is one transcript line in the snapshot, in commit order
type SnapshotEntry struct {
	SpeakerIdentity string `json:"speaker_identity"`
	SpeakerName     string `json:"speaker_name"`
	Text            string `json:"text"`
	Timestamp       int64  `json:"timestamp"`
	IsFinal         bool   `json:"is_final"`
}

// WriteSnapshot serializes the session transcript to a JSON document
func WriteSnapshot(path, sessionID string, exportedAt time.Time, lines []Line) error {
	entries := make([]SnapshotEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, SnapshotEntry{
			SpeakerIdentity: line.SpeakerIdentity,
			SpeakerName:     line.SpeakerName,
			Text:            line.Text,
			Timestamp:       line.TimestampMs,
			IsFinal:         true,
		})
	}

	snapshot := Snapshot{
		SessionID:       sessionID,
		ExportTimestamp: exportedAt.UnixMilli(),
		ExportDate:      exportedAt.UTC().Format(time.RFC3339),
		EntryCount:      len(entries),
		Entries:         entries,
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	return nil
}
