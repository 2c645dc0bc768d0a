package transcript

import (
	"fmt"
	"os"
	"time"
)

// TextLog is the append-only human-readable transcript file for one session.
// Header lines begin with '#', entries are written in commit order, and a
// footer records the entry count and end time.
type TextLog struct {
	file *os.File
	path string
}

// NewTextLog creates the log file and writes the session header
func NewTextLog(path, sessionID string, startedAt time.Time) (*TextLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create text log: %w", err)
	}

	header := fmt.Sprintf("# Session transcript\n# Session: %s\n# Started: %s\n#\n",
		sessionID, startedAt.UTC().Format(time.RFC3339))
	if _, err := file.WriteString(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write text log header: %w", err)
	}

	return &TextLog{file: file, path: path}, nil
}

// Path returns the log file path
func (t *TextLog) Path() string {
	return t.path
}

// Append writes one transcript line in commit order
func (t *TextLog) Append(line Line) error {
	entry := fmt.Sprintf("[%s] %s: %s\n",
		line.Time().Format("15:04:05"), line.SpeakerName, line.Text)
	if _, err := t.file.WriteString(entry); err != nil {
		return fmt.Errorf("failed to append to text log: %w", err)
	}
	return nil
}

// CloseWithFooter writes the closing footer and closes the file
func (t *TextLog) CloseWithFooter(entryCount int, endedAt time.Time) error {
	footer := fmt.Sprintf("#\n# Entries: %d\n# Ended: %s\n",
		entryCount, endedAt.UTC().Format(time.RFC3339))
	if _, err := t.file.WriteString(footer); err != nil {
		t.file.Close()
		return fmt.Errorf("failed to write text log footer: %w", err)
	}
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("failed to close text log: %w", err)
	}
	return nil
}
