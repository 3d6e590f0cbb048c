// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slotwave/slotwave/internal/appointments"
	appointmentspostgres "github.com/slotwave/slotwave/internal/appointments/postgres"
	"github.com/slotwave/slotwave/internal/config"
	"github.com/slotwave/slotwave/internal/notifications"
	"github.com/slotwave/slotwave/internal/notifications/email"
	notificationspostgres "github.com/slotwave/slotwave/internal/notifications/postgres"
	"github.com/slotwave/slotwave/internal/pkg/clock"
	"github.com/slotwave/slotwave/internal/pkg/ctxlog"
	"github.com/slotwave/slotwave/internal/pkg/httputil"
	"github.com/slotwave/slotwave/internal/pkg/metrics"
	"github.com/slotwave/slotwave/internal/pkg/postgres"
	"github.com/slotwave/slotwave/internal/version"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc

	worker    *notifications.Worker
	scheduler *notifications.ReminderScheduler
	notifier  *appointments.Notifier
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: backgroundCancel,
	}

	go app.collectDBMetrics(backgroundCtx)

	router, err := app.setup(backgroundCtx)
	if err != nil {
		db.Close()
		backgroundCancel()
		return nil, fmt.Errorf("setup application: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.metricsCancel()

	// Stop the periodic tasks before the servers so in-flight batches
	// finish against a live pool.
	if a.worker != nil {
		a.worker.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Worker returns the delivery worker. Used in tests; nil when notifications
// are disabled.
func (a *App) Worker() *notifications.Worker {
	return a.worker
}

// Scheduler returns the reminder scheduler. Used in tests; nil when
// notifications are disabled.
func (a *App) Scheduler() *notifications.ReminderScheduler {
	return a.scheduler
}

// Notifier returns the lifecycle notifier consumed by the booking CRUD
// handlers.
func (a *App) Notifier() *appointments.Notifier {
	return a.notifier
}

func (a *App) setup(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	jobsRepo := notificationspostgres.NewRepository(a.db)
	apptRepo := appointmentspostgres.NewRepository(a.db)
	clk := clock.NewRealClock()

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create notification renderer: %w", err)
	}

	queue := notifications.NewService(jobsRepo, renderer, clk)
	queueHandler := notifications.NewHandler(queue)

	slog.Info("notifications configured",
		"enabled", a.config.Notifications.Enabled,
		"email_enabled", a.config.Notifications.Email.Enabled,
	)

	if a.config.Notifications.Enabled {
		sender, err := email.NewSender(email.Config{
			Enabled:        a.config.Notifications.Email.Enabled,
			SMTPHost:       a.config.Notifications.Email.SMTPHost,
			SMTPPort:       a.config.Notifications.Email.SMTPPort,
			SMTPUser:       a.config.Notifications.Email.SMTPUser,
			SMTPPassword:   a.config.Notifications.Email.SMTPPassword,
			FromName:       a.config.Notifications.Email.FromName,
			FromAddress:    a.config.Notifications.Email.FromAddress,
			SendsPerSecond: a.config.Notifications.Email.SendsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("create email sender: %w", err)
		}

		if !a.config.Notifications.Email.Enabled {
			slog.Warn("email sender is disabled: notifications will be marked sent without delivery")
		}

		a.worker = notifications.NewWorker(notifications.WorkerConfig{
			BatchSize:    a.config.Notifications.Worker.BatchSize,
			PollInterval: a.config.Notifications.Worker.PollInterval,
			SendTimeout:  a.config.Notifications.Worker.SendTimeout,
		}, queue, sender, apptRepo, apptRepo)
		a.worker.Start(ctx)

		a.scheduler = notifications.NewReminderScheduler(notifications.SchedulerConfig{
			PollInterval: a.config.Notifications.Scheduler.PollInterval,
			SendTimeout:  a.config.Notifications.Scheduler.SendTimeout,
			DedupTTL:     a.config.Notifications.Scheduler.DedupTTL,
		}, apptRepo, apptRepo, renderer, sender, clk)
		a.scheduler.Start(ctx)
	}

	a.notifier = appointments.NewNotifier(queue, clk, a.config.Notifications.RatingBaseURL)

	r.Route("/api", func(r chi.Router) {
		queueHandler.RegisterRoutes(r)
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
