package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/roomscribe/roomscribe/internal/recognition"
	"github.com/roomscribe/roomscribe/internal/transcript"
	"github.com/roomscribe/roomscribe/pkg/logger"
)

// Manager owns every transcription pipeline for one session. It reacts to
// room events from a single dispatch goroutine, so the pipeline map is
// never mutated from two places at once. At most one pipeline exists per
// participant identity, and only the manager that registered a pipeline
// ever stops it.
type Manager struct {
	sessionID string
	room      RoomSource
	engine    recognition.Engine
	store     *transcript.Store
	publisher Publisher
	logger    *logger.Logger

	mu        sync.Mutex
	pipelines map[string]*Pipeline

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started  bool
	shutdown bool

	// now is passed through to pipelines; swappable for tests
	now func() time.Time
}

// NewManager creates a pipeline manager for one session
func NewManager(
	sessionID string,
	room RoomSource,
	engine recognition.Engine,
	store *transcript.Store,
	publisher Publisher,
	log *logger.Logger,
) *Manager {
	return &Manager{
		sessionID: sessionID,
		room:      room,
		engine:    engine,
		store:     store,
		publisher: publisher,
		logger:    log.Named("pipeline-mgr").With(logger.String("session_id", sessionID)),
		pipelines: make(map[string]*Pipeline),
		now:       time.Now,
	}
}

// Start creates pipelines for every participant already publishing audio,
// then begins consuming room events. The pre-existing pipelines are running
// before Start returns.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		m.logger.Warn("Manager already started")
		return
	}
	m.started = true
	m.mu.Unlock()

	m.ctx, m.cancel = context.WithCancel(ctx)

	for _, active := range m.room.ActiveTracks() {
		m.handleTrackSubscribed(active.Participant, active.Track)
	}

	m.wg.Add(1)
	go m.dispatchLoop()

	m.logger.Info("Pipeline manager started", logger.Int("pipelines", m.pipelineCount()))
}

// dispatchLoop is the single consumer of the room event inbox
func (m *Manager) dispatchLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-m.room.Events():
			if !ok {
				m.logger.Info("Room event stream closed")
				return
			}
			m.dispatch(event)
		}
	}
}

func (m *Manager) dispatch(event RoomEvent) {
	switch event.Kind {
	case EventParticipantJoined:
		// A pipeline is created once the participant's audio track shows up
		m.logger.Info("Participant joined",
			logger.String("participant", event.Participant.Identity))
	case EventTrackSubscribed:
		m.handleTrackSubscribed(event.Participant, event.Track)
	case EventTrackUnsubscribed:
		m.removePipeline(event.Participant.Identity, "track unsubscribed")
	case EventParticipantLeft:
		m.removePipeline(event.Participant.Identity, "participant left")
	}
}

// handleTrackSubscribed opens a recognition stream and starts a pipeline
// for the participant. Re-entrant creation is a warn-level no-op; a failed
// stream open leaves the participant without a pipeline until the next
// track event, degraded but never fatal.
func (m *Manager) handleTrackSubscribed(participant Participant, track AudioTrack) {
	m.mu.Lock()
	_, exists := m.pipelines[participant.Identity]
	m.mu.Unlock()

	if exists {
		m.logger.Warn("Pipeline already exists for participant",
			logger.String("participant", participant.Identity))
		return
	}

	stream, err := m.engine.OpenStream(m.ctx, participant.Identity)
	if err != nil {
		m.logger.Error("Failed to open recognition stream; participant will not be transcribed",
			logger.String("participant", participant.Identity),
			logger.Error(err))
		return
	}

	pipeline := newPipeline(m.sessionID, participant, track, stream, m.store, m.publisher, m.logger)
	pipeline.now = m.now

	m.mu.Lock()
	m.pipelines[participant.Identity] = pipeline
	m.mu.Unlock()

	pipeline.Start()
}

// removePipeline takes the pipeline out of the map first, so concurrent
// lookups never observe one mid-teardown, then stops it. Removing an
// unknown participant is a no-op.
func (m *Manager) removePipeline(identity, reason string) {
	m.mu.Lock()
	pipeline, ok := m.pipelines[identity]
	if ok {
		delete(m.pipelines, identity)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("No pipeline to remove",
			logger.String("participant", identity),
			logger.String("reason", reason))
		return
	}

	m.logger.Info("Removing pipeline",
		logger.String("participant", identity),
		logger.String("reason", reason))

	if err := pipeline.Stop(); err != nil {
		m.logger.Error("Pipeline stop failed",
			logger.String("participant", identity),
			logger.Error(err))
	}
}

// Shutdown stops event dispatch and tears down every remaining pipeline.
// Each stop is attempted independently; one failure never prevents the
// rest. The aggregated error is returned for logging.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		m.logger.Warn("Shutdown called more than once")
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	if !started {
		return nil
	}

	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	remaining := make(map[string]*Pipeline, len(m.pipelines))
	for identity, pipeline := range m.pipelines {
		remaining[identity] = pipeline
	}
	m.pipelines = make(map[string]*Pipeline)
	m.mu.Unlock()

	var result error
	for identity, pipeline := range remaining {
		if err := pipeline.Stop(); err != nil {
			m.logger.Error("Pipeline stop failed during shutdown",
				logger.String("participant", identity),
				logger.Error(err))
			result = multierr.Append(result, err)
		}
	}

	m.logger.Info("Pipeline manager shut down", logger.Int("stopped", len(remaining)))
	return result
}

// PipelineCount returns the number of live pipelines
func (m *Manager) PipelineCount() int {
	return m.pipelineCount()
}

// HasPipeline reports whether a pipeline exists for the given identity
func (m *Manager) HasPipeline(identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pipelines[identity]
	return ok
}

func (m *Manager) pipelineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pipelines)
}
