package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"prepdeck/internal/auth"
	"prepdeck/internal/config"
	"prepdeck/internal/metrics"
	"prepdeck/internal/ports"
	"prepdeck/internal/server"
	"prepdeck/internal/storage"
	"prepdeck/internal/usecase"
)

const connectTimeout = 10 * time.Second

// ServerRuntime is the assembled hosted API.
type ServerRuntime struct {
	App    *fiber.App
	Hosted *server.Hosted
	Config config.Config

	closers []func() error
}

// Close stops the sweeper, ends hosted sessions and releases connections.
func (r *ServerRuntime) Close() error {
	r.Hosted.Shutdown()
	var first error
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BuildServer wires the hosted API from the environment.
func BuildServer(ctx context.Context) (*ServerRuntime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Server.Validate(); err != nil {
		return nil, err
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	pg := &postgresConn{dsn: cfg.Server.DatabaseURL}
	runtime := &ServerRuntime{Config: cfg}
	fail := func(err error) (*ServerRuntime, error) {
		runtime.closers = append(runtime.closers, pg.closers()...)
		for _, closeFn := range runtime.closers {
			_ = closeFn()
		}
		return nil, err
	}

	users, err := openUserStore(ctx, cfg, pg, runtime)
	if err != nil {
		return fail(err)
	}
	kv, err := openKeyValueStore(cfg, pg)
	if err != nil {
		return fail(err)
	}

	oracle := newOracle(cfg)
	counters := metrics.NewMetrics()
	answers := func(owner string) ports.AnswerRepository {
		return storage.NewAnswerStore(kv, owner)
	}
	hosted := server.NewHosted(func(sink ports.EventSink, repo ports.AnswerRepository) *usecase.Interview {
		return usecase.NewInterview(cat, oracle, repo, sink, counters, interviewConfig(cfg))
	}, answers, cfg.Server.IdleTimeout)
	if err := hosted.StartSweeper(cfg.Server.SweepSchedule); err != nil {
		return fail(fmt.Errorf("invalid sweep schedule %q: %w", cfg.Server.SweepSchedule, err))
	}

	runtime.closers = append(runtime.closers, pg.closers()...)
	runtime.Hosted = hosted
	runtime.App = server.New(server.Deps{
		Auth:    auth.NewService(users, cfg.Server.JWTSecret, cfg.Server.TokenTTL),
		Oracle:  oracle,
		Hosted:  hosted,
		Catalog: cat,
		Metrics: counters,
		Answers: answers,
		Options: server.Options{AllowedOrigin: cfg.Server.AllowedOrigin},
	})
	if !oracle.Configured() {
		log.Println("bootstrap: GEMINI_KEY not configured, /api/eval will fail")
	}
	return runtime, nil
}

func openUserStore(ctx context.Context, cfg config.Config, pg *postgresConn, runtime *ServerRuntime) (auth.UserStore, error) {
	switch cfg.Server.AuthStore {
	case "memory":
		log.Println("bootstrap: using in-memory accounts, they are lost on restart")
		return auth.NewMemoryStore(), nil
	case "mongo":
		dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		client, err := auth.ConnectMongo(dialCtx, cfg.Server.MongoURI)
		if err != nil {
			return nil, err
		}
		runtime.closers = append(runtime.closers, func() error {
			return client.Disconnect(context.Background())
		})
		return auth.NewMongoStore(dialCtx, client.Database(cfg.Server.MongoDatabase))
	case "postgres":
		db, err := pg.open()
		if err != nil {
			return nil, err
		}
		return auth.NewGormStore(db)
	default:
		return nil, fmt.Errorf("unknown auth store %q", cfg.Server.AuthStore)
	}
}
