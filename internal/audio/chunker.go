package audio

import (
	"bytes"
	"fmt"
)

// Chunker rebuffers an incoming PCM16 stream into fixed-duration chunks.
// Frames arriving from a track rarely match the chunk size a recognizer
// wants, so the chunker accumulates and re-slices.
type Chunker struct {
	sampleRate  int
	channels    int
	chunkSizeMs int
	buffer      *bytes.Buffer
	bytesPerMs  int
}

// NewChunker creates a new audio chunker for PCM16 input
func NewChunker(sampleRate, channels, chunkSizeMs int) *Chunker {
	// PCM16: two bytes per sample
	bytesPerMs := (sampleRate * channels * 2) / 1000

	return &Chunker{
		sampleRate:  sampleRate,
		channels:    channels,
		chunkSizeMs: chunkSizeMs,
		buffer:      bytes.NewBuffer(nil),
		bytesPerMs:  bytesPerMs,
	}
}

// Push adds audio data and returns every complete chunk now available.
// Leftover bytes stay buffered for the next call.
func (c *Chunker) Push(data []byte) ([][]byte, error) {
	if _, err := c.buffer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}

	chunkSizeBytes := c.chunkSizeMs * c.bytesPerMs

	var chunks [][]byte
	for c.buffer.Len() >= chunkSizeBytes {
		chunk := make([]byte, chunkSizeBytes)
		n, err := c.buffer.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to read from buffer: %w", err)
		}
		if n < chunkSizeBytes {
			chunk = chunk[:n]
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// Pending returns the number of buffered bytes not yet emitted
func (c *Chunker) Pending() int {
	return c.buffer.Len()
}

// Reset discards any buffered audio
func (c *Chunker) Reset() {
	c.buffer.Reset()
}
