package summary

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomscribe/roomscribe/internal/transcript"
	"github.com/roomscribe/roomscribe/pkg/logger"
)

func transcriptLines(t *testing.T) []transcript.Line {
	t.Helper()
	var lines []transcript.Line
	for _, entry := range []struct {
		identity, name, text string
		ts                   int64
	}{
		{"alice", "Alice", "we should ship on friday", 1000},
		{"bob", "Bob", "agreed, I will prepare the release", 2000},
	} {
		line, ok := transcript.NewLine("room-1", entry.identity, entry.name, entry.text, entry.ts)
		require.True(t, ok)
		lines = append(lines, line)
	}
	return lines
}

func TestSummarizeSendsTranscriptAndReturnsSummary(t *testing.T) {
	var requestBody map[string]interface{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &requestBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-test",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "Alice and Bob agreed to ship on Friday."},
				"finish_reason": "stop"
			}]
		}`))
	}))
	defer ts.Close()

	s := NewSummarizer(Config{
		Enabled:        true,
		Model:          "gpt-4o-mini",
		APIKey:         "sk-test",
		TimeoutSeconds: 5,
	}, logger.NewNop(), option.WithBaseURL(ts.URL+"/v1"))

	text, err := s.Summarize(context.Background(), "room-1", transcriptLines(t))
	require.NoError(t, err)
	assert.Equal(t, "Alice and Bob agreed to ship on Friday.", text)

	assert.Equal(t, "gpt-4o-mini", requestBody["model"])
	messages := requestBody["messages"].([]interface{})
	require.Len(t, messages, 2)
	user := messages[1].(map[string]interface{})
	assert.Contains(t, user["content"], "Alice: we should ship on friday")
	assert.Contains(t, user["content"], "Bob: agreed, I will prepare the release")
}

func TestSummarizeRejectsEmptyTranscript(t *testing.T) {
	s := NewSummarizer(Config{Model: "gpt-4o-mini", APIKey: "sk-test", TimeoutSeconds: 5}, logger.NewNop())
	_, err := s.Summarize(context.Background(), "room-1", nil)
	require.Error(t, err)
}

func TestWriteSummary(t *testing.T) {
	s := NewSummarizer(Config{}, logger.NewNop())
	path := filepath.Join(t.TempDir(), "summary.md")

	require.NoError(t, s.WriteSummary(path, "the summary"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "the summary", string(content))
}
