// Package room adapts a LiveKit room into the session layer's transport
// capabilities: a stream of membership/track events, per-participant audio
// frame sequences, and reliable data publication to all members.
package room

import (
	"context"
	"fmt"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/roomscribe/roomscribe/internal/session"
	"github.com/roomscribe/roomscribe/pkg/logger"
)

// Options configures the room connection
type Options struct {
	URL           string
	APIKey        string
	APISecret     string
	RoomName      string
	AgentIdentity string
	AgentName     string
	SampleRate    int
}

// Room is a connected LiveKit room. It implements session.RoomSource and
// session.Publisher.
type Room struct {
	opts   Options
	logger *logger.Logger

	lkroom *lksdk.Room
	events chan session.RoomEvent
	done   chan struct{}

	closeOnce sync.Once

	mu     sync.Mutex
	tracks map[string]session.ActiveTrack
}

var (
	_ session.RoomSource = (*Room)(nil)
	_ session.Publisher  = (*Room)(nil)
)

// Connect joins the configured room as a hidden agent participant. Track
// subscriptions begin immediately, so callers should consume ActiveTracks
// and Events promptly after connecting.
func Connect(opts Options, log *logger.Logger) (*Room, error) {
	r := &Room{
		opts:   opts,
		logger: log.Named("room").With(logger.String("room", opts.RoomName)),
		events: make(chan session.RoomEvent, 64),
		done:   make(chan struct{}),
		tracks: make(map[string]session.ActiveTrack),
	}

	callback := &lksdk.RoomCallback{
		OnParticipantConnected:    r.onParticipantConnected,
		OnParticipantDisconnected: r.onParticipantDisconnected,
		OnDisconnected:            r.onDisconnected,
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed:   r.onTrackSubscribed,
			OnTrackUnsubscribed: r.onTrackUnsubscribed,
		},
	}

	lkroom, err := lksdk.ConnectToRoom(opts.URL, lksdk.ConnectInfo{
		APIKey:              opts.APIKey,
		APISecret:           opts.APISecret,
		RoomName:            opts.RoomName,
		ParticipantIdentity: opts.AgentIdentity,
		ParticipantName:     opts.AgentName,
	}, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to room: %w", err)
	}

	r.lkroom = lkroom
	r.logger.Info("Connected to room",
		logger.String("identity", opts.AgentIdentity),
		logger.Int("remote_participants", len(lkroom.GetRemoteParticipants())))

	return r, nil
}

// Name returns the room name, which doubles as the session identifier
func (r *Room) Name() string {
	return r.opts.RoomName
}

// ActiveTracks returns the currently subscribed audio tracks
func (r *Room) ActiveTracks() []session.ActiveTrack {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := make([]session.ActiveTrack, 0, len(r.tracks))
	for _, t := range r.tracks {
		active = append(active, t)
	}
	return active
}

// Events returns the room event stream
func (r *Room) Events() <-chan session.RoomEvent {
	return r.events
}

// Done is closed when the room connection has ended, whether by Disconnect
// or by the server dropping us
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Publish delivers the payload reliably to all current room members
func (r *Room) Publish(ctx context.Context, payload []byte) error {
	err := r.lkroom.LocalParticipant.PublishDataPacket(
		lksdk.UserData(payload),
		lksdk.WithDataPublishReliable(true),
	)
	if err != nil {
		return fmt.Errorf("failed to publish data packet: %w", err)
	}
	return nil
}

// Disconnect leaves the room and ends the event stream
func (r *Room) Disconnect() {
	r.lkroom.Disconnect()
	r.closeOnce.Do(func() { close(r.done) })
}

func (r *Room) onParticipantConnected(rp *lksdk.RemoteParticipant) {
	r.emit(session.RoomEvent{
		Kind:        session.EventParticipantJoined,
		Participant: remoteParticipant(rp),
	})
}

func (r *Room) onParticipantDisconnected(rp *lksdk.RemoteParticipant) {
	r.mu.Lock()
	delete(r.tracks, rp.Identity())
	r.mu.Unlock()

	r.emit(session.RoomEvent{
		Kind:        session.EventParticipantLeft,
		Participant: remoteParticipant(rp),
	})
}

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	// Screen-share audio and other non-microphone sources are not speech
	if pub.Source() != livekit.TrackSource_MICROPHONE {
		r.logger.Debug("Ignoring non-microphone audio track",
			logger.String("participant", rp.Identity()),
			logger.String("source", pub.Source().String()))
		return
	}

	participant := remoteParticipant(rp)
	reader, err := newOpusTrack(participant.Identity, track, r.opts.SampleRate, r.logger)
	if err != nil {
		r.logger.Error("Failed to create track reader",
			logger.String("participant", participant.Identity),
			logger.Error(err))
		return
	}

	r.mu.Lock()
	r.tracks[participant.Identity] = session.ActiveTrack{Participant: participant, Track: reader}
	r.mu.Unlock()

	r.logger.Info("Audio track subscribed",
		logger.String("participant", participant.Identity),
		logger.String("mime_type", track.Codec().MimeType))

	r.emit(session.RoomEvent{
		Kind:        session.EventTrackSubscribed,
		Participant: participant,
		Track:       reader,
	})
}

func (r *Room) onTrackUnsubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}

	r.mu.Lock()
	delete(r.tracks, rp.Identity())
	r.mu.Unlock()

	r.emit(session.RoomEvent{
		Kind:        session.EventTrackUnsubscribed,
		Participant: remoteParticipant(rp),
	})
}

func (r *Room) onDisconnected() {
	r.logger.Info("Room disconnected")
	r.closeOnce.Do(func() { close(r.done) })
}

// emit forwards one event. The channel is buffered and the session manager
// drains it continuously; once the room has ended, events are dropped.
func (r *Room) emit(event session.RoomEvent) {
	select {
	case r.events <- event:
	case <-r.done:
	}
}

func remoteParticipant(rp *lksdk.RemoteParticipant) session.Participant {
	name := rp.Name()
	if name == "" {
		name = rp.Identity()
	}
	return session.Participant{Identity: rp.Identity(), Name: name}
}
