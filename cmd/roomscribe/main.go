package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/roomscribe/roomscribe/internal/api"
	"github.com/roomscribe/roomscribe/internal/config"
	"github.com/roomscribe/roomscribe/internal/recognition"
	"github.com/roomscribe/roomscribe/internal/room"
	"github.com/roomscribe/roomscribe/internal/session"
	"github.com/roomscribe/roomscribe/internal/storage/sqlite"
	"github.com/roomscribe/roomscribe/internal/summary"
	"github.com/roomscribe/roomscribe/internal/transcript"
	"github.com/roomscribe/roomscribe/internal/websocket"
	"github.com/roomscribe/roomscribe/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("Service failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("Starting roomscribe",
		logger.String("room", cfg.Room.RoomName),
		logger.String("storage_root", cfg.Storage.RootDir))

	if err := cfg.EnsureStorageDirs(); err != nil {
		return err
	}

	// Shared durable store; one physical database, many logical sessions
	db, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	transcripts, err := sqlite.NewTranscriptStorage(db, log)
	if err != nil {
		return err
	}

	// Broadcast hub plus read-path API
	wsServer := websocket.NewServer(cfg.Server.CORSAllowedOrigins, log)
	defer wsServer.Close()

	router := api.NewRouter(transcripts, wsServer, cfg, log)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", logger.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", logger.Error(err))
		}
	}()

	// Session wiring. The room name is the session identifier; the store
	// must exist before any pipeline starts.
	lkRoom, err := room.Connect(room.Options{
		URL:           cfg.Room.URL,
		APIKey:        cfg.Room.APIKey,
		APISecret:     cfg.Room.APISecret,
		RoomName:      cfg.Room.RoomName,
		AgentIdentity: cfg.Room.AgentIdentity,
		AgentName:     cfg.Room.AgentName,
		SampleRate:    cfg.Recognition.SampleRate,
	}, log)
	if err != nil {
		return err
	}

	sessionID := cfg.Room.RoomName
	store, err := transcript.NewStore(cfg.Storage.RootDir, sessionID, transcripts, log)
	if err != nil {
		lkRoom.Disconnect()
		return err
	}

	engine := recognition.NewRealtimeEngine(recognition.Config{
		APIKey:            cfg.Recognition.OpenAIAPIKey,
		Model:             cfg.Recognition.Model,
		Language:          cfg.Recognition.Language,
		SampleRate:        cfg.Recognition.SampleRate,
		ChunkMs:           cfg.Recognition.ChunkMs,
		TurnDetectionType: cfg.Recognition.TurnDetectionType,
		VADThreshold:      cfg.Recognition.VADThreshold,
		SilenceDurationMs: cfg.Recognition.SilenceDurationMs,
		TimeoutSeconds:    cfg.Recognition.TimeoutSeconds,
	}, log)

	publisher := session.Publishers{lkRoom, wsServer}
	manager := session.NewManager(sessionID, lkRoom, engine, store, publisher, log)
	manager.Start(context.Background())

	// Run until a signal arrives or the room connection ends
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", logger.String("signal", sig.String()))
	case <-lkRoom.Done():
		log.Info("Room connection ended")
	}

	// Teardown order matters: pipelines first so the transcript buffer is
	// complete and stable, then finalize, then the optional summary.
	if err := manager.Shutdown(); err != nil {
		log.Error("Pipeline shutdown reported errors", logger.Error(err))
	}
	if err := store.Finalize(context.Background()); err != nil {
		log.Error("Transcript finalize reported errors", logger.Error(err))
	}

	if cfg.Summary.Enabled {
		summarizer := summary.NewSummarizer(summary.Config{
			Enabled:        true,
			Model:          cfg.Summary.Model,
			APIKey:         cfg.Recognition.OpenAIAPIKey,
			TimeoutSeconds: cfg.Summary.TimeoutSeconds,
		}, log)

		text, err := summarizer.Summarize(context.Background(), sessionID, store.Lines())
		if err != nil {
			log.Warn("Session summary failed", logger.Error(err))
		} else {
			path := filepath.Join(filepath.Dir(store.LogPath()), "summary.md")
			if err := summarizer.WriteSummary(path, text); err != nil {
				log.Warn("Failed to write summary", logger.Error(err))
			} else {
				log.Info("Session summary written", logger.String("path", path))
			}
		}
	}

	lkRoom.Disconnect()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", logger.Error(err))
	}

	log.Info("Shutdown complete")
	return nil
}
