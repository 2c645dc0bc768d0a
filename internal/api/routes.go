package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roomscribe/roomscribe/internal/config"
	"github.com/roomscribe/roomscribe/internal/storage/sqlite"
	"github.com/roomscribe/roomscribe/internal/websocket"
	"github.com/roomscribe/roomscribe/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(transcripts *sqlite.TranscriptStorage, wsServer *websocket.Server, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(transcripts, wsServer, logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/health", r.handler.GetHealth)

		// Transcript read path
		router.Get("/sessions", r.handler.ListSessions)
		router.Get("/sessions/{id}/transcripts", r.handler.GetSessionTranscripts)
		router.Get("/sessions/{id}/transcripts/time-range", r.handler.GetSessionTranscriptsByTimeRange)

		// Live transcript fan-out
		router.Get("/ws", r.handler.HandleWebSocket)
	})

	return router
}
