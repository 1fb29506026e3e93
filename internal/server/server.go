package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"

	_ "github.com/mr-karan/certwatch/docs"
	"github.com/mr-karan/certwatch/internal/config"
	"github.com/mr-karan/certwatch/internal/core"
	"github.com/mr-karan/certwatch/internal/expiry"
	"github.com/mr-karan/certwatch/internal/notifier"
	"github.com/mr-karan/certwatch/pkg/models"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping() error
}

// Options holds everything the HTTP server needs.
type Options struct {
	Config        config.ServerConfig
	Notifications config.NotificationsConfig
	Runner        notifier.Runner
	History       core.HistoryLister
	Upcoming      core.UpcomingLister
	Thresholds    expiry.ThresholdSet
	Health        HealthChecker
	// SMTPConfigured is reported on /meta.
	SMTPConfigured bool
	Logger         *slog.Logger
	Version        string
	Now            func() time.Time
}

// Server is the certwatch HTTP API.
type Server struct {
	app            *fiber.App
	config         config.ServerConfig
	notifications  config.NotificationsConfig
	runner         notifier.Runner
	history        core.HistoryLister
	upcoming       core.UpcomingLister
	thresholds     expiry.ThresholdSet
	health         HealthChecker
	smtpConfigured bool
	log            *slog.Logger
	version        string
	now            func() time.Time
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		config:         opts.Config,
		notifications:  opts.Notifications,
		runner:         opts.Runner,
		history:        opts.History,
		upcoming:       opts.Upcoming,
		thresholds:     opts.Thresholds,
		health:         opts.Health,
		smtpConfigured: opts.SMTPConfigured,
		log:            log.With("component", "server"),
		version:        opts.Version,
		now:            now,
	}

	timeout := opts.Config.HTTPServerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "certwatch",
		ReadTimeout:           timeout,
		WriteTimeout:          timeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(s.requestLogger())

	s.app.Get("/metrics", s.handleMetrics)
	s.app.Get("/api/docs/*", swagger.HandlerDefault)

	api := s.app.Group("/api/v1")
	api.Get("/health", s.handleHealth)
	api.Get("/meta", s.handleGetMeta)

	notifications := api.Group("/notifications")
	notifications.Get("/check", s.handleCheckNotifications)
	notifications.Get("/history", s.handleListHistory)
	notifications.Get("/upcoming", s.handleListUpcoming)

	admin := api.Group("/admin")
	admin.Post("/notifications/send", s.handleSendNotifications)

	s.app.Use(func(c *fiber.Ctx) error {
		return SendErrorWithType(c, fiber.StatusNotFound, "Route not found", models.NotFoundErrorType)
	})
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start blocks serving HTTP on the configured address.
func (s *Server) Start() error {
	s.log.Info("starting http server", "address", s.config.Address)
	return s.app.Listen(s.config.Address)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error("unhandled request error", "path", c.Path(), "error", err)
		return SendErrorWithType(c, code, "Internal server error", models.GeneralErrorType)
	}
	return SendErrorWithType(c, code, err.Error(), models.GeneralErrorType)
}
