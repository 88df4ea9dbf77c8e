// Package server exposes the hosted HTTP API: accounts, the AI proxy, hosted
// interviews with a websocket event stream, and saved answers.
package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jwtware "github.com/gofiber/jwt/v3"

	"prepdeck/internal/auth"
	"prepdeck/internal/catalog"
	"prepdeck/internal/domain"
	"prepdeck/internal/metrics"
	"prepdeck/internal/ports"
	"prepdeck/internal/usecase"
)

// Completer sends raw prompts to the language model.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	AllowedOrigin string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	// DisableLogger silences the request log, e.g. in tests.
	DisableLogger bool
}

type Deps struct {
	Auth    *auth.Service
	Oracle  Completer
	Hosted  *Hosted
	Catalog *catalog.Catalog
	Metrics *metrics.Metrics
	// Answers returns the answer repository scoped to one account.
	Answers func(owner string) ports.AnswerRepository
	Options Options
}

func New(deps Deps) *fiber.App {
	opts := deps.Options
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "http://localhost:5173"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 90 * time.Second
	}

	app := fiber.New(fiber.Config{
		AppName:               "Prepdeck",
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: opts.AllowedOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(recover.New())
	if !opts.DisableLogger {
		app.Use(logger.New(logger.Config{
			TimeFormat: "2006-01-02 15:04:05",
			Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	h := &handlers{deps: deps}
	protected := jwtware.New(jwtware.Config{
		SigningKey:   deps.Auth.Secret(),
		Claims:       &auth.Claims{},
		ErrorHandler: jwtError,
	})

	api := app.Group("/api")
	api.Get("/test", h.test)
	api.Get("/health", h.health)
	api.Post("/eval", h.eval)
	api.Get("/metrics", h.metrics)

	api.Get("/catalog/companies", h.companies)
	api.Get("/catalog/companies/:id", h.company)
	api.Post("/catalog/companies/:id/aptitude/:index", h.checkAptitude)

	authGroup := api.Group("/auth")
	authGroup.Post("/signup", h.signup)
	authGroup.Post("/register", h.signup)
	authGroup.Post("/login", h.login)
	authGroup.Get("/me", protected, h.me)

	interviews := api.Group("/interviews", protected)
	interviews.Post("", h.startInterview)
	interviews.Get("/:id", h.interviewStatus)
	interviews.Post("/:id/pause", h.interviewAction(func(i *usecase.Interview) error { return i.Pause() }))
	interviews.Post("/:id/resume", h.interviewAction(func(i *usecase.Interview) error { return i.Resume() }))
	interviews.Post("/:id/next", h.interviewAction(func(i *usecase.Interview) error { return i.NextQuestion() }))
	interviews.Post("/:id/skip", h.interviewAction(func(i *usecase.Interview) error { return i.Skip() }))
	interviews.Post("/:id/advance", h.interviewAction(func(i *usecase.Interview) error { return i.AdvanceRound() }))
	interviews.Post("/:id/end", h.endInterview)
	interviews.Post("/:id/answers", h.submitAnswer)
	interviews.Post("/:id/followup", h.followUp)

	answers := api.Group("/answers", protected)
	answers.Get("", h.listAnswers)
	answers.Delete("/:key", h.deleteAnswer)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if !isWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	app.Get("/ws/interviews/:id", h.authorizeStream, streamInterview())

	return app
}

// errorHandler renders every failure as {"message": ...}. Account and
// proxy errors keep the wording clients already match on.
func errorHandler(c *fiber.Ctx, err error) error {
	code, message := classify(err)
	if code >= fiber.StatusInternalServerError {
		log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
	}
	return c.Status(code).JSON(fiber.Map{"message": message})
}

func classify(err error) (int, string) {
	var fe *fiber.Error
	var upstream *domain.UpstreamError
	switch {
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	case errors.Is(err, auth.ErrEmailTaken):
		return fiber.StatusBadRequest, "Email already exists"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return fiber.StatusBadRequest, "Invalid email or password"
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, ErrSessionNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, auth.ErrInvalidToken):
		return fiber.StatusUnauthorized, "Invalid or expired JWT"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConfiguration):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, usecase.ErrSessionActive),
		errors.Is(err, usecase.ErrNotInRound),
		errors.Is(err, usecase.ErrAnswerRequired):
		return fiber.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrMissingCredential):
		return fiber.StatusInternalServerError, "Server proxy misconfigured: GEMINI_KEY is required"
	case errors.As(err, &upstream):
		return upstream.Status, upstream.Body
	default:
		return fiber.StatusInternalServerError, err.Error()
	}
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Missing or malformed JWT"})
	}
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid or expired JWT"})
}

type handlers struct {
	deps Deps
}
