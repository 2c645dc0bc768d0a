package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 24kHz mono PCM16: 48 bytes per millisecond
const testBytesPerMs = 48

func TestChunkerEmitsFixedSizeChunks(t *testing.T) {
	chunker := NewChunker(24000, 1, 100)
	chunkBytes := 100 * testBytesPerMs

	chunks, err := chunker.Push(make([]byte, chunkBytes*2))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], chunkBytes)
	assert.Len(t, chunks[1], chunkBytes)
	assert.Equal(t, 0, chunker.Pending())
}

func TestChunkerBuffersPartialInput(t *testing.T) {
	chunker := NewChunker(24000, 1, 100)
	chunkBytes := 100 * testBytesPerMs

	chunks, err := chunker.Push(make([]byte, chunkBytes/2))
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, chunkBytes/2, chunker.Pending())

	// the second half completes one chunk
	chunks, err = chunker.Push(make([]byte, chunkBytes/2))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunker.Pending())
}

func TestChunkerCarriesRemainderAcrossPushes(t *testing.T) {
	chunker := NewChunker(24000, 1, 100)
	chunkBytes := 100 * testBytesPerMs

	chunks, err := chunker.Push(make([]byte, chunkBytes+7))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 7, chunker.Pending())
}

func TestChunkerPreservesByteOrder(t *testing.T) {
	chunker := NewChunker(1000, 1, 2)
	// 1kHz mono PCM16 at 2ms -> 4-byte chunks

	chunks, err := chunker.Push([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, []byte{1, 2, 3, 4}, chunks[0])
	assert.Equal(t, []byte{5, 6, 7, 8}, chunks[1])
	assert.Equal(t, 1, chunker.Pending())
}

func TestChunkerReset(t *testing.T) {
	chunker := NewChunker(24000, 1, 100)

	_, err := chunker.Push(make([]byte, 100))
	require.NoError(t, err)
	require.Positive(t, chunker.Pending())

	chunker.Reset()
	assert.Equal(t, 0, chunker.Pending())
}
