package room

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/roomscribe/roomscribe/pkg/logger"
)

// maxOpusFrameMs bounds the decode buffer; Opus frames top out at 120ms
const maxOpusFrameMs = 120

// opusTrack adapts a remote LiveKit audio track into a PCM16 frame
// sequence. RTP packets are read, Opus payloads decoded directly at the
// target sample rate, and the samples handed out as little-endian bytes.
type opusTrack struct {
	participantID string
	track         *webrtc.TrackRemote
	decoder       *opus.Decoder
	logger        *logger.Logger

	// Reused across reads; ReadFrame is never called concurrently
	rtpBuf    []byte
	rtpPacket *rtp.Packet
	pcmBuf    []int16
}

// newOpusTrack creates a frame reader decoding at the given sample rate
func newOpusTrack(participantID string, track *webrtc.TrackRemote, sampleRate int, log *logger.Logger) (*opusTrack, error) {
	decoder, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &opusTrack{
		participantID: participantID,
		track:         track,
		decoder:       decoder,
		logger:        log.Named("track").With(logger.String("participant", participantID)),
		rtpBuf:        make([]byte, 1500),
		rtpPacket:     &rtp.Packet{},
		pcmBuf:        make([]int16, sampleRate*maxOpusFrameMs/1000),
	}, nil
}

// ReadFrame blocks until the next decoded PCM16 frame. Returns io.EOF when
// the track ends; malformed packets and decode errors are skipped.
func (t *opusTrack) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// The SDK closes the track on unsubscribe or room disconnect,
		// which unblocks this read with io.EOF
		n, _, err := t.track.Read(t.rtpBuf)
		if err != nil {
			return nil, err
		}

		if err := t.rtpPacket.Unmarshal(t.rtpBuf[:n]); err != nil {
			t.logger.Warn("Failed to unmarshal RTP packet", logger.Error(err))
			continue
		}

		payload := t.rtpPacket.Payload
		if len(payload) == 0 {
			continue // DTX
		}

		sampleCount, err := t.decoder.Decode(payload, t.pcmBuf)
		if err != nil {
			t.logger.Warn("Failed to decode opus payload", logger.Error(err))
			continue
		}
		if sampleCount == 0 {
			continue
		}

		frame := make([]byte, sampleCount*2)
		for i, sample := range t.pcmBuf[:sampleCount] {
			binary.LittleEndian.PutUint16(frame[i*2:], uint16(sample))
		}

		return frame, nil
	}
}
