package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomscribe/roomscribe/internal/recognition"
	"github.com/roomscribe/roomscribe/internal/transcript"
	"github.com/roomscribe/roomscribe/pkg/logger"
)

// fakeTrack serves queued frames, then blocks until the context ends or the
// track is closed (io.EOF)
type fakeTrack struct {
	frames chan []byte
}

func newFakeTrack() *fakeTrack {
	return &fakeTrack{frames: make(chan []byte, 16)}
}

func (f *fakeTrack) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-f.frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	}
}

// fakeStream records forwarded audio and lets tests inject recognition events
type fakeStream struct {
	mu       sync.Mutex
	sent     [][]byte
	sendErr  error
	events   chan recognition.Event
	closed   int
	closeErr error
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan recognition.Event, 16)}
}

func (f *fakeStream) SendAudio(_ context.Context, pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, pcm)
	return nil
}

func (f *fakeStream) Events() <-chan recognition.Event {
	return f.events
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func (f *fakeStream) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeStream) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakePublisher records broadcast payloads
type fakePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) published() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.payloads))
	copy(out, f.payloads)
	return out
}

// failingSink rejects every insert, standing in for a broken database
type failingSink struct{}

func (failingSink) InsertLine(context.Context, transcript.Line) error {
	return errors.New("insert failed")
}

type nopSink struct{}

func (nopSink) InsertLine(context.Context, transcript.Line) error { return nil }

func newPipelineStore(t *testing.T, sink transcript.IndexSink) *transcript.Store {
	t.Helper()
	store, err := transcript.NewStore(t.TempDir(), "room-1", sink, logger.NewNop())
	require.NoError(t, err)
	return store
}

func startTestPipeline(t *testing.T, stream *fakeStream, store *transcript.Store, publisher Publisher) (*Pipeline, *fakeTrack) {
	t.Helper()
	track := newFakeTrack()
	p := newPipeline("room-1", Participant{Identity: "alice", Name: "Alice"},
		track, stream, store, publisher, logger.NewNop())
	p.now = func() time.Time { return time.UnixMilli(1000) }
	p.Start()
	t.Cleanup(func() { _ = p.Stop() })
	return p, track
}

func completed(text string) recognition.Event {
	return recognition.Event{Type: recognition.EventCompleted, Text: text, Timestamp: time.Now()}
}

func TestPipelineEmitsFinalizedTranscript(t *testing.T) {
	stream := newFakeStream()
	store := newPipelineStore(t, nopSink{})
	publisher := &fakePublisher{}
	startTestPipeline(t, stream, store, publisher)

	stream.events <- recognition.Event{Type: recognition.EventDelta, Text: "hel"}
	stream.events <- completed("  hello world  ")

	require.Eventually(t, func() bool { return store.Count() == 1 },
		time.Second, 10*time.Millisecond)

	lines := store.Lines()
	assert.Equal(t, "hello world", lines[0].Text)
	assert.Equal(t, "alice", lines[0].SpeakerIdentity)
	assert.Equal(t, int64(1000), lines[0].TimestampMs)

	payloads := publisher.published()
	require.Len(t, payloads, 1)
	assert.JSONEq(t, `{
		"type": "transcript",
		"speaker_identity": "alice",
		"speaker_name": "Alice",
		"text": "hello world",
		"timestamp": 1000,
		"is_final": true
	}`, string(payloads[0]))
}

func TestPipelineDropsInterimAndEmptyEvents(t *testing.T) {
	stream := newFakeStream()
	store := newPipelineStore(t, nopSink{})
	publisher := &fakePublisher{}
	startTestPipeline(t, stream, store, publisher)

	stream.events <- recognition.Event{Type: recognition.EventDelta, Text: "partial"}
	stream.events <- completed("   \t ")
	stream.events <- completed("kept")

	require.Eventually(t, func() bool { return store.Count() == 1 },
		time.Second, 10*time.Millisecond)

	assert.Equal(t, "kept", store.Lines()[0].Text)
	require.Len(t, publisher.published(), 1)
}

func TestPipelinePreservesEventOrder(t *testing.T) {
	stream := newFakeStream()
	store := newPipelineStore(t, nopSink{})
	publisher := &fakePublisher{}
	startTestPipeline(t, stream, store, publisher)

	stream.events <- completed("first")
	stream.events <- completed("second")
	stream.events <- completed("third")

	require.Eventually(t, func() bool { return store.Count() == 3 },
		time.Second, 10*time.Millisecond)

	lines := store.Lines()
	assert.Equal(t, "first", lines[0].Text)
	assert.Equal(t, "second", lines[1].Text)
	assert.Equal(t, "third", lines[2].Text)
}

func TestPipelineBroadcastFailureDoesNotBlockStore(t *testing.T) {
	stream := newFakeStream()
	store := newPipelineStore(t, nopSink{})
	publisher := &fakePublisher{err: errors.New("room disconnected")}
	startTestPipeline(t, stream, store, publisher)

	stream.events <- completed("stored anyway")
	stream.events <- completed("and this one")

	require.Eventually(t, func() bool { return store.Count() == 2 },
		time.Second, 10*time.Millisecond)
}

func TestPipelineStoreFailureDoesNotBlockBroadcast(t *testing.T) {
	stream := newFakeStream()
	store := newPipelineStore(t, failingSink{})
	publisher := &fakePublisher{}
	startTestPipeline(t, stream, store, publisher)

	stream.events <- completed("broadcast anyway")

	require.Eventually(t, func() bool { return len(publisher.published()) == 1 },
		time.Second, 10*time.Millisecond)
	// buffer keeps the line even though the indexed sink failed
	assert.Equal(t, 1, store.Count())
}

func TestPipelineForwardsAudioFrames(t *testing.T) {
	stream := newFakeStream()
	store := newPipelineStore(t, nopSink{})
	_, track := startTestPipeline(t, stream, store, &fakePublisher{})

	track.frames <- []byte{1, 2, 3, 4}
	track.frames <- []byte{5, 6, 7, 8}

	require.Eventually(t, func() bool { return stream.sentCount() == 2 },
		time.Second, 10*time.Millisecond)
}

func TestPipelineStopIsIdempotent(t *testing.T) {
	stream := newFakeStream()
	store := newPipelineStore(t, nopSink{})
	track := newFakeTrack()
	p := newPipeline("room-1", Participant{Identity: "alice", Name: "Alice"},
		track, stream, store, &fakePublisher{}, logger.NewNop())
	p.Start()
	require.True(t, p.Running())

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
	assert.Equal(t, 1, stream.closeCount())
	assert.False(t, p.Running())
}

func TestPipelineStopsWhenTrackEnds(t *testing.T) {
	stream := newFakeStream()
	store := newPipelineStore(t, nopSink{})
	p, track := startTestPipeline(t, stream, store, &fakePublisher{})

	close(track.frames)
	close(stream.events)

	// both goroutines see the end of their inputs; Stop must not hang
	done := make(chan error, 1)
	go func() { done <- p.Stop() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop after its inputs ended")
	}
}
