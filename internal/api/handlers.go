package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roomscribe/roomscribe/internal/storage/sqlite"
	"github.com/roomscribe/roomscribe/internal/websocket"
	"github.com/roomscribe/roomscribe/pkg/logger"
)

const (
	defaultTranscriptLimit = 500
	defaultSessionLimit    = 50
)

// Handler serves the transcript read path
type Handler struct {
	transcripts *sqlite.TranscriptStorage
	wsServer    *websocket.Server
	logger      *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(transcripts *sqlite.TranscriptStorage, wsServer *websocket.Server, logger *logger.Logger) *Handler {
	return &Handler{
		transcripts: transcripts,
		wsServer:    wsServer,
		logger:      logger.Named("api-handler"),
	}
}

// GetHealth returns service liveness
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListSessions returns per-session aggregates
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultSessionLimit)

	sessions, err := h.transcripts.ListSessions(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list sessions", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSessionTranscripts returns a session's transcript lines in commit order
func (h *Handler) GetSessionTranscripts(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", defaultTranscriptLimit)

	records, err := h.transcripts.GetBySession(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("Failed to query transcripts",
			logger.String("session_id", sessionID),
			logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to query transcripts")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":  sessionID,
		"transcripts": records,
		"count":       len(records),
	})
}

// GetSessionTranscriptsByTimeRange returns a session's lines within
// [from, to] milliseconds
func (h *Handler) GetSessionTranscriptsByTimeRange(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	from, err := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid 'from' parameter")
		return
	}
	to, err := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid 'to' parameter")
		return
	}

	records, err := h.transcripts.GetBySessionTimeRange(r.Context(), sessionID, from, to)
	if err != nil {
		h.logger.Error("Failed to query transcripts by time range",
			logger.String("session_id", sessionID),
			logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to query transcripts")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":  sessionID,
		"from":        from,
		"to":          to,
		"transcripts": records,
		"count":       len(records),
	})
}

// HandleWebSocket upgrades the connection and attaches it to the broadcast hub
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleWS(w, r)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
