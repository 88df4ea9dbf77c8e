package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"GEMINI_API_KEY", "GEMINI_KEY", "VITE_GEMINI_API_KEY", "PREP_RULES_FILE", "PREP_STORE_FILE",
		"PREP_STORAGE_DRIVER", "PORT", "ALLOWED_ORIGIN", "AUTH_STORE", "PREP_CATALOG_FILE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Gemini.APIKey != "" || cfg.Gemini.APIVersion != "v1beta" || cfg.Gemini.MaxAttempts != 5 {
		t.Fatalf("unexpected gemini defaults: %+v", cfg.Gemini)
	}
	if cfg.Deepgram.Model != "nova-2" || cfg.Deepgram.Language != "en-US" || !cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram defaults: %+v", cfg.Deepgram)
	}
	if cfg.Rules.Path != filepath.Join(home, ".config", "prepdeck", "vocabulary.rules") {
		t.Fatalf("unexpected rules path: %q", cfg.Rules.Path)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != filepath.Join(home, ".config", "prepdeck", "store.json") {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Session.MinimumAnswerLength != 10 || cfg.Session.TickInterval != time.Second {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Server.Port != "4000" || cfg.Server.AllowedOrigin != "http://localhost:5173" || cfg.Server.AuthStore != "memory" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Catalog.Path != "" {
		t.Fatalf("expected embedded catalog by default, got %q", cfg.Catalog.Path)
	}
}

func TestLoadGeminiKeyFallbackOrder(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GEMINI_KEY", "")
	t.Setenv("VITE_GEMINI_API_KEY", "vite-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Gemini.APIKey != "vite-key" {
		t.Fatalf("expected vite fallback, got %q", cfg.Gemini.APIKey)
	}

	t.Setenv("GEMINI_KEY", "proxy-key")
	cfg, _ = Load()
	if cfg.Gemini.APIKey != "proxy-key" {
		t.Fatalf("expected proxy key to win over vite key, got %q", cfg.Gemini.APIKey)
	}

	t.Setenv("GEMINI_API_KEY", "primary")
	cfg, _ = Load()
	if cfg.Gemini.APIKey != "primary" {
		t.Fatalf("expected primary key, got %q", cfg.Gemini.APIKey)
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	home := t.TempDir()
	rules := filepath.Join(home, "my.rules")

	t.Setenv("HOME", home)
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("DEEPGRAM_MODEL", "nova-3")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "false")
	t.Setenv("DEEPGRAM_ENDPOINTING_MS", "300")
	t.Setenv("PREP_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("PREP_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("PREP_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("PREP_SAMPLE_RATE", "22050")
	t.Setenv("PREP_RULES_FILE", rules)
	t.Setenv("PREP_RULE_PASS_LIMIT", "42")
	t.Setenv("PREP_MIN_ANSWER_LENGTH", "20")
	t.Setenv("PREP_TICK_MS", "250")
	t.Setenv("PREP_AUDIO_CHUNK_SIZE", "512")
	t.Setenv("PREP_STREAMING_GRACE_MS", "25")
	t.Setenv("PREP_VOICE_AUTO_SUBMIT", "yes")
	t.Setenv("PREP_STORAGE_DRIVER", "Postgres")
	t.Setenv("PREP_CATALOG_FILE", "/tmp/catalog.yaml")
	t.Setenv("PORT", "8080")
	t.Setenv("AUTH_STORE", "mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_TTL_HOURS", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Deepgram.APIKey != "dg-key" || cfg.Deepgram.Model != "nova-3" || cfg.Deepgram.SmartFormat || cfg.Deepgram.Endpointing != 300 {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Audio.RecorderCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "mic0" || cfg.Audio.SampleRate != 22050 {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Rules.Path != rules || cfg.Rules.PassLimit != 42 {
		t.Fatalf("unexpected rules config: %+v", cfg.Rules)
	}
	want := SessionConfig{
		MinimumAnswerLength: 20,
		TickInterval:        250 * time.Millisecond,
		ChunkSize:           512,
		StreamingGrace:      25 * time.Millisecond,
		VoiceAutoSubmit:     true,
	}
	if cfg.Session != want {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Catalog.Path != "/tmp/catalog.yaml" {
		t.Fatalf("unexpected storage/catalog config: %+v %+v", cfg.Storage, cfg.Catalog)
	}
	if cfg.Server.Port != "8080" || cfg.Server.AuthStore != "mongo" || cfg.Server.MongoURI != "mongodb://localhost:27017" || cfg.Server.TokenTTL != time.Hour {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
}

func TestLoadInvalidNumericValuesFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PREP_SAMPLE_RATE", "bad")
	t.Setenv("PREP_CHANNELS", "-1")
	t.Setenv("PREP_RULE_PASS_LIMIT", "0")
	t.Setenv("PREP_AUDIO_CHUNK_SIZE", "5")
	t.Setenv("PREP_STREAMING_GRACE_MS", "bad")
	t.Setenv("PREP_MIN_ANSWER_LENGTH", "-3")
	t.Setenv("PREP_TICK_MS", "0")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "not-bool")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio fallback: %+v", cfg.Audio)
	}
	if cfg.Rules.PassLimit != 30 {
		t.Fatalf("expected default pass limit, got %d", cfg.Rules.PassLimit)
	}
	if cfg.Session.ChunkSize != 4096 || cfg.Session.StreamingGrace != time.Second {
		t.Fatalf("unexpected session fallback: %+v", cfg.Session)
	}
	if cfg.Session.MinimumAnswerLength != 10 || cfg.Session.TickInterval != time.Second {
		t.Fatalf("unexpected interview fallback: %+v", cfg.Session)
	}
	if !cfg.Deepgram.SmartFormat {
		t.Fatalf("expected smart format default")
	}
}

func TestServerConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{name: "memory", cfg: ServerConfig{JWTSecret: "s", AuthStore: "memory"}},
		{name: "missing secret", cfg: ServerConfig{AuthStore: "memory"}, wantErr: true},
		{name: "mongo without uri", cfg: ServerConfig{JWTSecret: "s", AuthStore: "mongo"}, wantErr: true},
		{name: "mongo", cfg: ServerConfig{JWTSecret: "s", AuthStore: "mongo", MongoURI: "mongodb://x"}},
		{name: "postgres without url", cfg: ServerConfig{JWTSecret: "s", AuthStore: "postgres"}, wantErr: true},
		{name: "unknown store", cfg: ServerConfig{JWTSecret: "s", AuthStore: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
