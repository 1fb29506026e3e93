package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"github.com/mr-karan/certwatch/internal/config"
	"github.com/mr-karan/certwatch/internal/contacts"
	"github.com/mr-karan/certwatch/internal/expiry"
	"github.com/mr-karan/certwatch/internal/notifier"
	"github.com/mr-karan/certwatch/internal/server"
	"github.com/mr-karan/certwatch/internal/sqlite"
	"github.com/mr-karan/certwatch/pkg/logger"
)

// App represents the core application context, holding dependencies and configuration.
type App struct {
	Config     *config.Config
	SQLite     *sqlite.DB
	Logger     *slog.Logger
	Dispatcher *notifier.Dispatcher
	Scheduler  *notifier.Scheduler
	Metrics    *notifier.Metrics
	server     *server.Server
	Version    string
}

// Options contains configuration needed when creating a new App instance.
type Options struct {
	ConfigPath string
	Version    string
	// Logger overrides the default stderr logger.
	Logger *slog.Logger
}

// New loads configuration and creates an App. Nothing is opened yet.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.New(cfg.Logging.Level == "debug")
	}

	return &App{
		Config:  cfg,
		Logger:  log,
		Version: opts.Version,
	}, nil
}

// Initialize opens the database and wires the notification pipeline and the
// HTTP server. The scheduler is started here when enabled.
func (a *App) Initialize(ctx context.Context) error {
	var err error

	a.SQLite, err = sqlite.New(sqlite.Options{
		Config: a.Config.SQLite,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sqlite: %w", err)
	}

	n := a.Config.Notifications
	smtpCfg := a.Config.SMTP

	sender := notifier.NewEmailSender(notifier.EmailSenderOptions{
		Host:          smtpCfg.Host,
		Port:          smtpCfg.Port,
		Username:      smtpCfg.Username,
		Password:      smtpCfg.Password,
		From:          smtpCfg.From,
		ReplyTo:       smtpCfg.ReplyTo,
		Security:      smtpCfg.Security,
		Timeout:       smtpCfg.Timeout,
		SkipTLSVerify: smtpCfg.TLSInsecureSkipVerify,
		Logger:        a.Logger,
	})
	if !sender.Configured() {
		// Runs still happen; every send is recorded as failed until SMTP is set.
		a.Logger.Warn("smtp is not configured, notifications will fail to send")
	}

	tiers := contacts.TierTable{
		Alert3MinDays: n.Tiers.Alert3MinDays,
		Alert2MinDays: n.Tiers.Alert2MinDays,
		Alert1MinDays: n.Tiers.Alert1MinDays,
	}
	thresholds := expiry.NewThresholdSet(n.Thresholds...)
	finder := expiry.NewFinder(a.SQLite, n.LookaheadDays)

	a.Metrics = notifier.NewMetrics()
	metrics.RegisterSet(a.Metrics.Set())

	a.Dispatcher = notifier.NewDispatcher(notifier.Options{
		History:    a.SQLite,
		Finder:     finder,
		Contacts:   contacts.NewResolver(a.SQLite, tiers, a.Logger),
		Sender:     sender,
		Thresholds: thresholds,
		Composer: notifier.Composer{
			UrgentWithinDays: n.UrgentWithinDays,
			BaseURL:          a.Config.Server.FrontendURL,
		},
		SendTimeout: n.SendTimeout,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
	})

	if n.Enabled {
		a.Scheduler = notifier.NewScheduler(a.schedulerOptions())
	} else {
		a.Logger.Info("notification scheduler disabled, runs only on demand")
	}

	a.server = server.New(server.Options{
		Config:         a.Config.Server,
		Notifications:  n,
		Runner:         a.Dispatcher,
		History:        a.SQLite,
		Upcoming:       finder,
		Thresholds:     thresholds,
		Health:         a.SQLite,
		SMTPConfigured: sender.Configured(),
		Logger:         a.Logger,
		Version:        a.Version,
	})

	if a.Scheduler != nil {
		a.Scheduler.Start(ctx)
	}

	return nil
}

func (a *App) schedulerOptions() notifier.SchedulerOptions {
	n := a.Config.Notifications
	opts := notifier.SchedulerOptions{
		Runner:     a.Dispatcher,
		Interval:   n.Interval,
		RunOnStart: n.RunOnStart,
		Logger:     a.Logger,
	}
	if n.Lease.Enabled {
		id := n.Lease.InstanceID
		if id == "" {
			id = uuid.NewString()
		}
		opts.Lease = a.SQLite
		opts.LeaseName = notifier.DefaultLeaseName
		opts.LeaseTTL = n.Lease.TTL
		opts.InstanceID = id
		a.Logger.Info("scheduler lease enabled", "instance_id", id, "ttl", n.Lease.TTL)
	}
	return opts
}

// Start begins the application's main execution loop (starts the HTTP server).
func (a *App) Start() error {
	if a.server == nil {
		return fmt.Errorf("server not initialized")
	}
	a.Logger.Info("starting server", "version", a.Version)
	return a.server.Start()
}

// Shutdown gracefully stops all application components with timeouts.
//
//nolint:contextcheck // Shutdown receives its own context from caller (e.g., signal handler)
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	serverCtx, serverCancel := context.WithTimeout(ctx, 5*time.Second)
	defer serverCancel()

	// Stop the scheduler first so no new run starts while the server drains.
	if a.Scheduler != nil {
		a.Logger.Info("stopping notification scheduler")
		a.Scheduler.Stop()
	}

	if a.server != nil {
		a.Logger.Info("shutting down HTTP server")

		serverDone := make(chan error, 1)
		go func() {
			serverDone <- a.server.Shutdown(serverCtx)
		}()

		select {
		case err := <-serverDone:
			if err != nil {
				a.Logger.Error("error shutting down server", "error", err)
			} else {
				a.Logger.Info("HTTP server shut down successfully")
			}
		case <-serverCtx.Done():
			a.Logger.Warn("timeout shutting down HTTP server, continuing")
		}
	}

	if a.Metrics != nil {
		metrics.UnregisterSet(a.Metrics.Set(), true)
	}

	if a.SQLite != nil {
		a.Logger.Info("closing SQLite connection")
		if err := a.SQLite.Close(); err != nil {
			a.Logger.Error("error closing SQLite", "error", err)
		} else {
			a.Logger.Info("SQLite connection closed successfully")
		}
	}

	a.Logger.Info("application shutdown complete")
	return nil
}
