package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level service configuration
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Room        RoomConfig        `toml:"room"`
	Recognition RecognitionConfig `toml:"recognition"`
	Summary     SummaryConfig     `toml:"summary"`
	Logging     LoggingConfig     `toml:"logging"`
}

// ServerConfig represents the HTTP/WebSocket server configuration
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"`
}

// StorageConfig represents the persistence configuration. All per-session
// artifacts (text log, snapshot, summary) live under RootDir; the sqlite
// database is shared across sessions.
type StorageConfig struct {
	RootDir    string `toml:"root_dir"`
	SQLitePath string `toml:"sqlite_path"`
}

// RoomConfig represents the LiveKit room connection configuration
type RoomConfig struct {
	URL           string `toml:"url"`
	APIKey        string `toml:"api_key"`
	APISecret     string `toml:"api_secret"`
	RoomName      string `toml:"room_name"`
	AgentIdentity string `toml:"agent_identity"`
	AgentName     string `toml:"agent_name"`
}

// RecognitionConfig represents the speech recognition configuration
type RecognitionConfig struct {
	OpenAIAPIKey      string  `toml:"openai_api_key"`
	Model             string  `toml:"model"`
	Language          string  `toml:"language"`
	SampleRate        int     `toml:"sample_rate"`
	ChunkMs           int     `toml:"chunk_ms"`
	TurnDetectionType string  `toml:"turn_detection_type"`
	VADThreshold      float64 `toml:"vad_threshold"`
	SilenceDurationMs int     `toml:"silence_duration_ms"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// SummaryConfig represents the optional end-of-session summary configuration
type SummaryConfig struct {
	Enabled        bool   `toml:"enabled"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads the configuration from a TOML file, applies defaults and
// environment overrides for secrets, and validates required fields
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	// Secrets may come from the environment instead of the config file
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Recognition.OpenAIAPIKey = v
	}
	if v := os.Getenv("LIVEKIT_URL"); v != "" {
		cfg.Room.URL = v
	}
	if v := os.Getenv("LIVEKIT_API_KEY"); v != "" {
		cfg.Room.APIKey = v
	}
	if v := os.Getenv("LIVEKIT_API_SECRET"); v != "" {
		cfg.Room.APISecret = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeoutSecs:  30,
			WriteTimeoutSecs: 30,
		},
		Storage: StorageConfig{
			RootDir:    "data/sessions",
			SQLitePath: "data/transcripts.db",
		},
		Room: RoomConfig{
			AgentIdentity: "roomscribe-agent",
			AgentName:     "Roomscribe",
		},
		Recognition: RecognitionConfig{
			Model:             "gpt-4o-mini-transcribe",
			Language:          "en",
			SampleRate:        24000,
			ChunkMs:           100,
			TurnDetectionType: "server_vad",
			SilenceDurationMs: 500,
			TimeoutSeconds:    30,
		},
		Summary: SummaryConfig{
			Enabled:        false,
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func (c *Config) validate() error {
	if c.Room.URL == "" {
		return fmt.Errorf("room.url is required (or set LIVEKIT_URL)")
	}
	if c.Room.APIKey == "" {
		return fmt.Errorf("room.api_key is required (or set LIVEKIT_API_KEY)")
	}
	if c.Room.APISecret == "" {
		return fmt.Errorf("room.api_secret is required (or set LIVEKIT_API_SECRET)")
	}
	if c.Room.RoomName == "" {
		return fmt.Errorf("room.room_name is required")
	}
	if c.Recognition.OpenAIAPIKey == "" {
		return fmt.Errorf("recognition.openai_api_key is required (or set OPENAI_API_KEY)")
	}
	if c.Storage.RootDir == "" {
		return fmt.Errorf("storage.root_dir is required")
	}
	if c.Recognition.ChunkMs <= 0 {
		return fmt.Errorf("recognition.chunk_ms must be positive")
	}
	return nil
}

// EnsureStorageDirs creates the storage root and the sqlite parent directory
func (c *Config) EnsureStorageDirs() error {
	if err := os.MkdirAll(c.Storage.RootDir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}
	if dir := filepath.Dir(c.Storage.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}
	return nil
}
