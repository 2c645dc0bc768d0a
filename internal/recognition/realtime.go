package recognition

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomscribe/roomscribe/internal/audio"
	"github.com/roomscribe/roomscribe/pkg/logger"
)

const realtimeURL = "wss://api.openai.com/v1/realtime?intent=transcription"

// RealtimeEngine opens transcription streams against the OpenAI realtime API.
// Note: the OpenAI Go SDK does not cover the realtime websocket surface, so
// the session protocol is spoken directly.
type RealtimeEngine struct {
	config Config
	logger *logger.Logger

	// url is overridable in tests
	url string
}

// NewRealtimeEngine creates a new realtime recognition engine
func NewRealtimeEngine(config Config, logger *logger.Logger) *RealtimeEngine {
	if config.APIKey == "" {
		logger.Warn("OpenAI API key is empty - recognition streams will fail to open")
	}

	return &RealtimeEngine{
		config: config,
		logger: logger.Named("recognition"),
		url:    realtimeURL,
	}
}

// sessionUpdate configures a freshly opened transcription session
type sessionUpdate struct {
	Type    string         `json:"type"`
	Session sessionPayload `json:"session"`
}

type sessionPayload struct {
	InputAudioFormat        string               `json:"input_audio_format"`
	InputAudioTranscription transcriptionConfig  `json:"input_audio_transcription"`
	TurnDetection           *turnDetectionConfig `json:"turn_detection,omitempty"`
}

type transcriptionConfig struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

type turnDetectionConfig struct {
	Type              string   `json:"type"`
	Threshold         *float64 `json:"threshold,omitempty"`
	SilenceDurationMs *int     `json:"silence_duration_ms,omitempty"`
}

// serverEvent is the subset of realtime server messages the stream cares about
type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// appendEvent carries one base64 audio chunk to the recognizer
type appendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// OpenStream dials a new realtime transcription session for one speaker
func (e *RealtimeEngine) OpenStream(ctx context.Context, speakerID string) (Stream, error) {
	if e.config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required to open a recognition stream")
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+e.config.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(e.config.TimeoutSeconds) * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, e.url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial realtime API (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial realtime API: %w", err)
	}

	update := sessionUpdate{
		Type: "transcription_session.update",
		Session: sessionPayload{
			InputAudioFormat: "pcm16",
			InputAudioTranscription: transcriptionConfig{
				Model:    e.config.Model,
				Language: e.config.Language,
			},
		},
	}

	// Turn detection is what decides when an utterance is finalized; "none"
	// leaves it to the server default
	if e.config.TurnDetectionType != "" && e.config.TurnDetectionType != "none" {
		td := &turnDetectionConfig{Type: e.config.TurnDetectionType}
		if e.config.VADThreshold > 0 {
			td.Threshold = &e.config.VADThreshold
		}
		if e.config.SilenceDurationMs > 0 {
			td.SilenceDurationMs = &e.config.SilenceDurationMs
		}
		update.Session.TurnDetection = td
	}

	if err := conn.WriteJSON(update); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure transcription session: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &realtimeStream{
		conn:    conn,
		events:  make(chan Event, 16),
		chunker: audio.NewChunker(e.config.SampleRate, 1, e.config.ChunkMs),
		ctx:     streamCtx,
		cancel:  cancel,
		logger:  e.logger.With(logger.String("speaker", speakerID)),
	}

	s.wg.Add(1)
	go s.readLoop()

	e.logger.Info("Opened recognition stream",
		logger.String("speaker", speakerID),
		logger.String("model", e.config.Model))

	return s, nil
}

// realtimeStream is one live websocket transcription session
type realtimeStream struct {
	conn    *websocket.Conn
	events  chan Event
	chunker *audio.Chunker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// SendAudio rebuffers the frame and ships complete chunks to the recognizer
func (s *realtimeStream) SendAudio(ctx context.Context, pcm []byte) error {
	chunks, err := s.chunker.Push(pcm)
	if err != nil {
		return fmt.Errorf("failed to chunk audio: %w", err)
	}

	for _, chunk := range chunks {
		msg := appendEvent{
			Type:  "input_audio_buffer.append",
			Audio: base64.StdEncoding.EncodeToString(chunk),
		}

		s.writeMu.Lock()
		err := s.conn.WriteJSON(msg)
		s.writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
	}

	return nil
}

// Events returns the stream of recognition events
func (s *realtimeStream) Events() <-chan Event {
	return s.events
}

// Close tears down the websocket and waits for the read loop to drain
func (s *realtimeStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.conn.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

// readLoop receives server events until the connection dies or Close is called
func (s *realtimeStream) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("Recognition stream read failed", logger.Error(err))
			}
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("Failed to parse recognition event", logger.Error(err))
			continue
		}

		switch ev.Type {
		case "conversation.item.input_audio_transcription.delta":
			s.emit(Event{Type: EventDelta, Text: ev.Delta, Timestamp: time.Now().UTC()})
		case "conversation.item.input_audio_transcription.completed":
			s.emit(Event{Type: EventCompleted, Text: ev.Transcript, Timestamp: time.Now().UTC()})
		case "error":
			s.logger.Warn("Recognition API error",
				logger.String("error_type", ev.Error.Type),
				logger.String("message", ev.Error.Message))
		default:
			// Session lifecycle and buffer acks are not interesting here
		}
	}
}

func (s *realtimeStream) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}
