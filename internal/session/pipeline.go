package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/roomscribe/roomscribe/internal/recognition"
	"github.com/roomscribe/roomscribe/internal/transcript"
	"github.com/roomscribe/roomscribe/pkg/logger"
)

// Pipeline is the per-participant transcription unit: one audio-forwarding
// goroutine and one transcript-consuming goroutine bound to a single
// recognition stream. Owned exclusively by the Manager that registered it.
type Pipeline struct {
	sessionID   string
	participant Participant
	track       AudioTrack
	stream      recognition.Stream
	store       *transcript.Store
	publisher   Publisher
	logger      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	// now is swappable for tests; transcript timestamps come from here
	now func() time.Time
}

// newPipeline binds one participant's track to one recognition stream
func newPipeline(
	sessionID string,
	participant Participant,
	track AudioTrack,
	stream recognition.Stream,
	store *transcript.Store,
	publisher Publisher,
	log *logger.Logger,
) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		sessionID:   sessionID,
		participant: participant,
		track:       track,
		stream:      stream,
		store:       store,
		publisher:   publisher,
		logger:      log.Named("pipeline").With(logger.String("participant", participant.Identity)),
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
	}
}

// Start launches both pipeline tasks. Calling Start on a started pipeline
// is a no-op.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		p.logger.Warn("Pipeline already started")
		return
	}
	p.started = true

	p.wg.Add(2)
	go p.forwardAudio()
	go p.consumeEvents()

	p.logger.Info("Pipeline started")
}

// Stop cancels both tasks, waits for them to finish, then releases the
// recognition stream. Calling Stop on a stopped (or never started)
// pipeline is a no-op.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.logger.Debug("Pipeline already stopped")
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	if err := p.stream.Close(); err != nil {
		p.logger.Warn("Failed to close recognition stream", logger.Error(err))
		return err
	}

	p.logger.Info("Pipeline stopped")
	return nil
}

// Running reports whether the pipeline has started and not yet stopped
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.stopped
}

// forwardAudio pumps track frames into the recognition stream until the
// track ends or the pipeline is cancelled. Send failures are transient
// (network or codec hiccups) and do not terminate the task.
func (p *Pipeline) forwardAudio() {
	defer p.wg.Done()

	for {
		frame, err := p.track.ReadFrame(p.ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			case errors.Is(err, io.EOF):
				p.logger.Debug("Audio track ended")
			default:
				p.logger.Warn("Audio track read failed", logger.Error(err))
			}
			return
		}

		if p.ctx.Err() != nil {
			return
		}

		if err := p.stream.SendAudio(p.ctx, frame); err != nil {
			p.logger.Warn("Failed to forward audio frame", logger.Error(err))
		}
	}
}

// consumeEvents drains the recognition stream, committing and broadcasting
// every finalized event. Interim events inform the recognizer's own state
// machine only and are dropped here; a completed event supersedes all
// earlier deltas for its utterance.
func (p *Pipeline) consumeEvents() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case event, ok := <-p.stream.Events():
			if !ok {
				p.logger.Debug("Recognition event stream ended")
				return
			}
			if !event.Final() {
				continue
			}
			p.handleFinal(event)
		}
	}
}

// handleFinal turns one finalized recognition event into a committed,
// broadcast transcript line. The store and the broadcast are independent
// emission paths; a failure in one never suppresses the other.
func (p *Pipeline) handleFinal(event recognition.Event) {
	line, ok := transcript.NewLine(
		p.sessionID,
		p.participant.Identity,
		p.participant.Name,
		event.Text,
		p.now().UnixMilli(),
	)
	if !ok {
		p.logger.Debug("Dropping empty finalized transcript")
		return
	}

	if err := p.store.Commit(p.ctx, line); err != nil {
		p.logger.Error("Transcript commit reported sink failures", logger.Error(err))
	}

	payload, err := line.BroadcastPayload()
	if err != nil {
		p.logger.Error("Failed to encode broadcast payload", logger.Error(err))
		return
	}
	if err := p.publisher.Publish(p.ctx, payload); err != nil {
		p.logger.Warn("Failed to broadcast transcript", logger.Error(err))
	}

	p.logger.Debug("Transcript line emitted",
		logger.String("text", line.Text),
		logger.Int64("timestamp_ms", line.TimestampMs))
}
