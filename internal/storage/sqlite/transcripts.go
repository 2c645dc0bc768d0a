package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roomscribe/roomscribe/internal/transcript"
	"github.com/roomscribe/roomscribe/pkg/logger"
)

// TranscriptStorage handles storage of transcript lines
type TranscriptStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewTranscriptStorage creates a new SQLite transcript storage
func NewTranscriptStorage(db *sql.DB, logger *logger.Logger) (*TranscriptStorage, error) {
	storage := &TranscriptStorage{
		db:     db,
		logger: logger.Named("sqlite-transcripts"),
	}

	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize transcript storage: %w", err)
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *TranscriptStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			speaker_identity TEXT NOT NULL,
			speaker_name TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcripts table: %w", err)
	}

	// The hot lookup path is session + time range
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_transcripts_session_time ON transcripts(session_id, timestamp_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_speaker ON transcripts(speaker_identity)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create transcript index: %w", err)
		}
	}

	return nil
}

// StoreTranscript stores a transcript record and returns its assigned ID
func (s *TranscriptStorage) StoreTranscript(ctx context.Context, record *TranscriptRecord) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts
		(session_id, speaker_identity, speaker_name, text, timestamp_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.SessionID,
		record.SpeakerIdentity,
		record.SpeakerName,
		record.Text,
		record.TimestampMs,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transcript: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// InsertLine implements transcript.IndexSink. Creation time is assigned
// here, at insert.
func (s *TranscriptStorage) InsertLine(ctx context.Context, line transcript.Line) error {
	_, err := s.StoreTranscript(ctx, &TranscriptRecord{
		SessionID:       line.SessionID,
		SpeakerIdentity: line.SpeakerIdentity,
		SpeakerName:     line.SpeakerName,
		Text:            line.Text,
		TimestampMs:     line.TimestampMs,
		CreatedAt:       time.Now().UTC(),
	})
	return err
}

// GetBySession returns transcript lines for a session in insertion order
func (s *TranscriptStorage) GetBySession(ctx context.Context, sessionID string, limit int) ([]*TranscriptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, speaker_identity, speaker_name, text, timestamp_ms, created_at
		FROM transcripts
		WHERE session_id = ?
		ORDER BY id ASC
		LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts by session: %w", err)
	}
	defer rows.Close()

	return s.scanTranscriptRows(rows)
}

// GetBySessionTimeRange returns transcript lines for a session within
// [startMs, endMs], ordered by timestamp
func (s *TranscriptStorage) GetBySessionTimeRange(ctx context.Context, sessionID string, startMs, endMs int64) ([]*TranscriptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, speaker_identity, speaker_name, text, timestamp_ms, created_at
		FROM transcripts
		WHERE session_id = ? AND timestamp_ms BETWEEN ? AND ?
		ORDER BY timestamp_ms ASC`,
		sessionID, startMs, endMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts by time range: %w", err)
	}
	defer rows.Close()

	return s.scanTranscriptRows(rows)
}

// CountBySession returns the number of stored lines for a session
func (s *TranscriptStorage) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transcripts WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transcripts: %w", err)
	}
	return count, nil
}

// ListSessions returns per-session aggregates across the whole store
func (s *TranscriptStorage) ListSessions(ctx context.Context, limit int) ([]*SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MIN(timestamp_ms), MAX(timestamp_ms)
		FROM transcripts
		GROUP BY session_id
		ORDER BY MAX(timestamp_ms) DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionSummary
	for rows.Next() {
		var summary SessionSummary
		if err := rows.Scan(&summary.SessionID, &summary.LineCount, &summary.FirstMs, &summary.LastMs); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		sessions = append(sessions, &summary)
	}

	return sessions, rows.Err()
}

// scanTranscriptRows scans database rows into TranscriptRecord structs
func (s *TranscriptStorage) scanTranscriptRows(rows *sql.Rows) ([]*TranscriptRecord, error) {
	var records []*TranscriptRecord
	for rows.Next() {
		var record TranscriptRecord
		var createdAt string

		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.SpeakerIdentity,
			&record.SpeakerName,
			&record.Text,
			&record.TimestampMs,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}

		parsed, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		record.CreatedAt = parsed

		records = append(records, &record)
	}

	return records, rows.Err()
}
