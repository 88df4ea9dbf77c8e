package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the desktop app and the server.
type Config struct {
	Gemini   GeminiConfig
	Deepgram DeepgramConfig
	Audio    AudioConfig
	Rules    RulesConfig
	Session  SessionConfig
	Storage  StorageConfig
	Catalog  CatalogConfig
	Server   ServerConfig
}

type GeminiConfig struct {
	APIKey      string
	APIBaseURL  string
	APIVersion  string
	Model       string
	MaxAttempts int
	Timeout     time.Duration
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	Endpointing int
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type RulesConfig struct {
	Path      string
	PassLimit int
}

type SessionConfig struct {
	MinimumAnswerLength int
	TickInterval        time.Duration
	ChunkSize           int
	StreamingGrace      time.Duration
	VoiceAutoSubmit     bool
}

// StorageConfig selects the answer store: "file", "memory" or "postgres".
type StorageConfig struct {
	Driver string
	Path   string
}

type CatalogConfig struct {
	Path string
}

// ServerConfig holds the hosted API settings. AuthStore is "mongo",
// "postgres" or "memory".
type ServerConfig struct {
	Port          string
	AllowedOrigin string
	JWTSecret     string
	TokenTTL      time.Duration
	AuthStore     string
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string
	SweepSchedule string
	IdleTimeout   time.Duration
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := filepath.Join(home, ".config", "prepdeck")

	cfg := Config{
		Gemini: GeminiConfig{
			APIKey: firstNonEmpty(
				os.Getenv("GEMINI_API_KEY"),
				os.Getenv("GEMINI_KEY"),
				os.Getenv("VITE_GEMINI_API_KEY"),
			),
			APIBaseURL:  envOrDefault("GEMINI_API_BASE", "https://generativelanguage.googleapis.com"),
			APIVersion:  envOrDefault("GEMINI_API_VERSION", "v1beta"),
			Model:       strings.TrimSpace(os.Getenv("GEMINI_MODEL")),
			MaxAttempts: envOrDefaultInt("GEMINI_MAX_ATTEMPTS", 5),
			Timeout:     time.Duration(envOrDefaultInt("GEMINI_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    envOrDefault("DEEPGRAM_LANGUAGE", "en-US"),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
			Endpointing: envOrDefaultInt("DEEPGRAM_ENDPOINTING_MS", 0),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("PREP_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("PREP_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("PREP_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("PREP_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("PREP_CHANNELS", 1),
		},
		Rules: RulesConfig{
			Path:      envOrDefault("PREP_RULES_FILE", filepath.Join(configDir, "vocabulary.rules")),
			PassLimit: envOrDefaultInt("PREP_RULE_PASS_LIMIT", 30),
		},
		Session: SessionConfig{
			MinimumAnswerLength: envOrDefaultInt("PREP_MIN_ANSWER_LENGTH", 10),
			TickInterval:        time.Duration(envOrDefaultInt("PREP_TICK_MS", 1000)) * time.Millisecond,
			ChunkSize:           envOrDefaultInt("PREP_AUDIO_CHUNK_SIZE", 4096),
			StreamingGrace:      time.Duration(firstNonNegativeInt("PREP_STREAMING_GRACE_MS", "DEEPGRAM_STREAMING_GRACE_MS", 1000)) * time.Millisecond,
			VoiceAutoSubmit:     envOrDefaultBool("PREP_VOICE_AUTO_SUBMIT", false),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(envOrDefault("PREP_STORAGE_DRIVER", "file")),
			Path:   envOrDefault("PREP_STORE_FILE", filepath.Join(configDir, "store.json")),
		},
		Catalog: CatalogConfig{
			Path: strings.TrimSpace(os.Getenv("PREP_CATALOG_FILE")),
		},
		Server: ServerConfig{
			Port:          envOrDefault("PORT", "4000"),
			AllowedOrigin: envOrDefault("ALLOWED_ORIGIN", "http://localhost:5173"),
			JWTSecret:     strings.TrimSpace(os.Getenv("JWT_SECRET")),
			TokenTTL:      time.Duration(envOrDefaultInt("JWT_TTL_HOURS", 72)) * time.Hour,
			AuthStore:     strings.ToLower(envOrDefault("AUTH_STORE", "memory")),
			MongoURI:      firstNonEmpty(os.Getenv("MONGO_URI"), os.Getenv("MONGODB_URI")),
			MongoDatabase: envOrDefault("MONGO_DB", "prepdeck"),
			DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
			SweepSchedule: envOrDefault("PREP_SWEEP_SCHEDULE", "@every 1m"),
			IdleTimeout:   time.Duration(envOrDefaultInt("PREP_IDLE_TIMEOUT_MINUTES", 30)) * time.Minute,
		},
	}

	if cfg.Gemini.MaxAttempts <= 0 {
		cfg.Gemini.MaxAttempts = 5
	}
	if cfg.Gemini.Timeout <= 0 {
		cfg.Gemini.Timeout = 60 * time.Second
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Rules.PassLimit <= 0 {
		cfg.Rules.PassLimit = 30
	}
	if cfg.Session.MinimumAnswerLength <= 0 {
		cfg.Session.MinimumAnswerLength = 10
	}
	if cfg.Session.TickInterval <= 0 {
		cfg.Session.TickInterval = time.Second
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Server.TokenTTL <= 0 {
		cfg.Server.TokenTTL = 72 * time.Hour
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 30 * time.Minute
	}

	return cfg, nil
}

// Validate checks the settings the hosted server cannot run without.
func (c ServerConfig) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.AuthStore {
	case "memory":
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo auth store")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres auth store")
		}
	default:
		return errors.New("AUTH_STORE must be one of memory, mongo or postgres")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func firstNonNegativeInt(primary string, secondary string, fallback int) int {
	for _, key := range []string{primary, secondary} {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
