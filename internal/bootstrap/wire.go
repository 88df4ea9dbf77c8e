package bootstrap

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"prepdeck/internal/audio"
	"prepdeck/internal/catalog"
	"prepdeck/internal/config"
	"prepdeck/internal/metrics"
	"prepdeck/internal/ports"
	"prepdeck/internal/providers/deepgram"
	"prepdeck/internal/providers/gemini"
	"prepdeck/internal/rules"
	"prepdeck/internal/storage"
	"prepdeck/internal/usecase"
)

// Sink receives everything the desktop UI shows.
type Sink interface {
	ports.EventSink
	ports.TranscriptSink
}

// Services is the assembled runtime graph.
type Services struct {
	Interview *usecase.Interview
	Captures  *usecase.CaptureController
	Voice     *usecase.VoiceInput
	Practice  *usecase.PracticeCoach
	Answers   *storage.AnswerStore
	Catalog   *catalog.Catalog
	Oracle    *gemini.Client
	Metrics   *metrics.Metrics
	Config    config.Config

	closers []func() error
}

// Close releases database handles opened by Build.
func (s Services) Close() error {
	var first error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build wires all backend dependencies for the desktop runtime.
func Build(sink Sink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return Services{}, err
	}
	normalizer, err := rules.New(cfg.Rules.Path, cfg.Rules.PassLimit)
	if err != nil {
		return Services{}, err
	}
	pg := &postgresConn{dsn: cfg.Server.DatabaseURL}
	kv, err := openKeyValueStore(cfg, pg)
	if err != nil {
		return Services{}, err
	}

	oracle := newOracle(cfg)
	counters := metrics.NewMetrics()
	answers := storage.NewAnswerStore(kv, "")

	interview := usecase.NewInterview(cat, oracle, answers, sink, counters, interviewConfig(cfg))
	captures := usecase.NewCaptureController(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		deepgram.NewProvider(deepgram.Config{
			APIKey:           cfg.Deepgram.APIKey,
			APIBaseURL:       cfg.Deepgram.APIBaseURL,
			Model:            cfg.Deepgram.Model,
			Language:         cfg.Deepgram.Language,
			SmartFormat:      cfg.Deepgram.SmartFormat,
			Endpointing:      cfg.Deepgram.Endpointing,
			EndOnSpeechFinal: true,
		}),
		normalizer,
		sink,
		counters,
		captureConfig(cfg),
	)

	return Services{
		Interview: interview,
		Captures:  captures,
		Voice:     usecase.NewVoiceInput(captures, interview, sink, sink, cfg.Session.VoiceAutoSubmit),
		Practice:  usecase.NewPracticeCoach(captures, sink),
		Answers:   answers,
		Catalog:   cat,
		Oracle:    oracle,
		Metrics:   counters,
		Config:    cfg,
		closers:   pg.closers(),
	}, nil
}

func interviewConfig(cfg config.Config) usecase.InterviewConfig {
	return usecase.InterviewConfig{
		MinimumAnswerLength: cfg.Session.MinimumAnswerLength,
		TickInterval:        cfg.Session.TickInterval,
	}
}

func captureConfig(cfg config.Config) usecase.CaptureConfig {
	return usecase.CaptureConfig{
		Audio: ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		Streaming: ports.StreamingConfig{
			SampleRate:     cfg.Audio.SampleRate,
			Channels:       cfg.Audio.Channels,
			Encoding:       "linear16",
			InterimResults: true,
			Keywords:       []string{"JavaScript", "TypeScript", "Kubernetes", "PostgreSQL"},
		},
		ChunkSize:      cfg.Session.ChunkSize,
		StreamingGrace: cfg.Session.StreamingGrace,
	}
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default()
	}
	return catalog.Load(cfg.Catalog.Path)
}

func newOracle(cfg config.Config) *gemini.Client {
	return gemini.NewClient(gemini.Config{
		APIKey:      cfg.Gemini.APIKey,
		APIBaseURL:  cfg.Gemini.APIBaseURL,
		APIVersion:  cfg.Gemini.APIVersion,
		Model:       cfg.Gemini.Model,
		Timeout:     cfg.Gemini.Timeout,
		MaxAttempts: cfg.Gemini.MaxAttempts,
	})
}

// openKeyValueStore picks the answer store backend from the storage driver.
func openKeyValueStore(cfg config.Config, pg *postgresConn) (ports.KeyValueStore, error) {
	switch cfg.Storage.Driver {
	case "", "file":
		return storage.NewFileStore(cfg.Storage.Path)
	case "memory":
		return storage.NewMemoryStore(), nil
	case "postgres":
		db, err := pg.open()
		if err != nil {
			return nil, err
		}
		return storage.NewGormStore(db)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// postgresConn opens one gorm handle on first use and shares it between the
// answer store and the user store.
type postgresConn struct {
	dsn string
	db  *gorm.DB
}

func (p *postgresConn) open() (*gorm.DB, error) {
	if p.db != nil {
		return p.db, nil
	}
	if p.dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for postgres storage")
	}
	db, err := gorm.Open(postgres.Open(p.dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	log.Println("bootstrap: connected to postgres")
	p.db = db
	return db, nil
}

// gormConfig translates driver errors so unique violations surface as
// gorm.ErrDuplicatedKey.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}
}

func (p *postgresConn) closers() []func() error {
	if p.db == nil {
		return nil
	}
	return []func() error{func() error {
		sqlDB, err := p.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}}
}
