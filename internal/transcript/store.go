package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/roomscribe/roomscribe/pkg/logger"
)

// IndexSink is the durable indexed store for transcript lines. Implemented
// by the sqlite storage; injected so the store stays testable.
type IndexSink interface {
	InsertLine(ctx context.Context, line Line) error
}

// Store fans each committed transcript line out to three independent sinks:
// the session text log, the indexed durable store, and an in-memory buffer
// that backs the end-of-session snapshot. Sinks are best-effort; one sink's
// failure never blocks the others.
type Store struct {
	sessionID string
	startedAt time.Time
	dir       string
	textLog   *TextLog
	index     IndexSink
	logger    *logger.Logger

	mu        sync.Mutex
	entries   []Line
	finalized bool

	now func() time.Time
}

// NewStore creates the per-session storage directory, opens the text log,
// and binds the indexed sink. Must be called before any pipeline starts.
func NewStore(rootDir, sessionID string, index IndexSink, log *logger.Logger) (*Store, error) {
	now := time.Now().UTC()

	dir := filepath.Join(rootDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	logPath := filepath.Join(dir, fmt.Sprintf("transcript_%s.log", now.Format("20060102_150405")))
	textLog, err := NewTextLog(logPath, sessionID, now)
	if err != nil {
		return nil, err
	}

	return &Store{
		sessionID: sessionID,
		startedAt: now,
		dir:       dir,
		textLog:   textLog,
		index:     index,
		logger:    log.Named("transcript-store").With(logger.String("session_id", sessionID)),
		now:       time.Now,
	}, nil
}

// SessionID returns the session this store belongs to
func (s *Store) SessionID() string {
	return s.sessionID
}

// LogPath returns the text log file path
func (s *Store) LogPath() string {
	return s.textLog.Path()
}

// SnapshotPath returns the path the snapshot will be written to on Finalize
func (s *Store) SnapshotPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("transcript_%s.json", s.startedAt.Format("20060102_150405")))
}

// Commit writes one line to every sink. Each sink is attempted regardless
// of the others' outcomes; failures are logged and aggregated in the
// returned error, which callers may treat as informational.
func (s *Store) Commit(ctx context.Context, line Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		s.logger.Warn("Commit after finalize dropped",
			logger.String("speaker", line.SpeakerIdentity))
		return fmt.Errorf("store already finalized")
	}

	var result error

	if err := s.textLog.Append(line); err != nil {
		s.logger.Error("Text log append failed", logger.Error(err))
		result = multierr.Append(result, err)
	}

	if err := s.index.InsertLine(ctx, line); err != nil {
		s.logger.Error("Indexed store insert failed", logger.Error(err))
		result = multierr.Append(result, err)
	}

	// The in-memory buffer is the snapshot's source of truth and always
	// receives the line, even when both file sinks fail
	s.entries = append(s.entries, line)

	return result
}

// Count returns the number of committed lines
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Lines returns a copy of the committed lines in commit order
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Line, len(s.entries))
	copy(out, s.entries)
	return out
}

// Finalize writes the text log footer and exports the snapshot. Called
// exactly once, after every pipeline for the session has stopped; later
// calls are warn-level no-ops.
func (s *Store) Finalize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		s.logger.Warn("Finalize called more than once")
		return nil
	}
	s.finalized = true

	endedAt := s.now().UTC()
	var result error

	if err := s.textLog.CloseWithFooter(len(s.entries), endedAt); err != nil {
		s.logger.Error("Failed to close text log", logger.Error(err))
		result = multierr.Append(result, err)
	}

	if err := WriteSnapshot(s.SnapshotPath(), s.sessionID, endedAt, s.entries); err != nil {
		s.logger.Error("Failed to write snapshot", logger.Error(err))
		result = multierr.Append(result, err)
	}

	s.logger.Info("Session transcript finalized",
		logger.Int("entries", len(s.entries)),
		logger.Time("ended_at", endedAt))

	return result
}
