package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomscribe/roomscribe/internal/config"
	"github.com/roomscribe/roomscribe/internal/storage/sqlite"
	"github.com/roomscribe/roomscribe/internal/transcript"
	"github.com/roomscribe/roomscribe/internal/websocket"
	"github.com/roomscribe/roomscribe/pkg/logger"
)

func newTestRouter(t *testing.T) (http.Handler, *sqlite.TranscriptStorage) {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	transcripts, err := sqlite.NewTranscriptStorage(db, logger.NewNop())
	require.NoError(t, err)

	wsServer := websocket.NewServer(nil, logger.NewNop())
	t.Cleanup(wsServer.Close)

	cfg := &config.Config{}
	router := NewRouter(transcripts, wsServer, cfg, logger.NewNop())
	return router.Routes(), transcripts
}

func seedLine(t *testing.T, storage *sqlite.TranscriptStorage, sessionID, identity, text string, timestampMs int64) {
	t.Helper()
	line, ok := transcript.NewLine(sessionID, identity, identity, text, timestampMs)
	require.True(t, ok)
	require.NoError(t, storage.InsertLine(context.Background(), line))
}

func doGET(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetHealth(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := doGET(t, handler, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestListSessions(t *testing.T) {
	handler, storage := newTestRouter(t)

	seedLine(t, storage, "room-1", "alice", "hello", 1000)
	seedLine(t, storage, "room-2", "bob", "hi", 2000)

	rec := doGET(t, handler, "/api/v1/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])
}

func TestGetSessionTranscripts(t *testing.T) {
	handler, storage := newTestRouter(t)

	seedLine(t, storage, "room-1", "alice", "first", 1000)
	seedLine(t, storage, "room-1", "bob", "second", 2000)
	seedLine(t, storage, "room-2", "carol", "elsewhere", 1500)

	rec := doGET(t, handler, "/api/v1/sessions/room-1/transcripts")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "room-1", body["session_id"])
	assert.Equal(t, float64(2), body["count"])

	records, ok := body["transcripts"].([]interface{})
	require.True(t, ok)
	require.Len(t, records, 2)
	first := records[0].(map[string]interface{})
	assert.Equal(t, "first", first["text"])
	assert.Equal(t, "alice", first["speaker_identity"])
}

func TestGetSessionTranscriptsUnknownSessionIsEmpty(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := doGET(t, handler, "/api/v1/sessions/nope/transcripts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestGetSessionTranscriptsByTimeRange(t *testing.T) {
	handler, storage := newTestRouter(t)

	seedLine(t, storage, "room-1", "alice", "early", 500)
	seedLine(t, storage, "room-1", "alice", "in range", 1500)
	seedLine(t, storage, "room-1", "alice", "late", 3000)

	rec := doGET(t, handler, "/api/v1/sessions/room-1/transcripts/time-range?from=1000&to=2000")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(1000), body["from"])
	assert.Equal(t, float64(2000), body["to"])
}

func TestTimeRangeRejectsBadParams(t *testing.T) {
	handler, _ := newTestRouter(t)

	rec := doGET(t, handler, "/api/v1/sessions/room-1/transcripts/time-range?from=abc&to=2000")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "from")

	rec = doGET(t, handler, "/api/v1/sessions/room-1/transcripts/time-range?from=1000")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "to")
}

func TestQueryIntFallsBack(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=abc", nil)
	assert.Equal(t, 50, queryInt(req, "limit", 50))

	req = httptest.NewRequest(http.MethodGet, "/?limit=-3", nil)
	assert.Equal(t, 50, queryInt(req, "limit", 50))

	req = httptest.NewRequest(http.MethodGet, "/?limit=7", nil)
	assert.Equal(t, 7, queryInt(req, "limit", 7))
}
