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

	"github.com/bissquit/itsm-garden/internal/config"
	"github.com/bissquit/itsm-garden/internal/jira"
	"github.com/bissquit/itsm-garden/internal/notifications"
	"github.com/bissquit/itsm-garden/internal/notifications/mattermost"
	"github.com/bissquit/itsm-garden/internal/pkg/ctxlog"
	"github.com/bissquit/itsm-garden/internal/pkg/httputil"
	"github.com/bissquit/itsm-garden/internal/pkg/metrics"
	"github.com/bissquit/itsm-garden/internal/pkg/postgres"
	"github.com/bissquit/itsm-garden/internal/scheduler"
	"github.com/bissquit/itsm-garden/internal/servicedesk"
	servicedeskpostgres "github.com/bissquit/itsm-garden/internal/servicedesk/postgres"
	"github.com/bissquit/itsm-garden/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	service       *servicedesk.Service
	scheduler     *scheduler.Scheduler
}

// New creates a new application instance: it connects to the database,
// applies migrations and wires the service desk with its optional JIRA
// import, notifications and schedule.
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

	if cfg.Database.MigrationsDir != "" {
		if err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	if err := app.setupService(); err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup service: %w", err)
	}

	if err := app.setupScheduler(); err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup scheduler: %w", err)
	}

	go app.collectDBMetrics(metricsCtx)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
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

// Run starts the scheduler and the HTTP servers. It blocks until the API
// server stops.
func (a *App) Run() error {
	if a.scheduler != nil {
		a.scheduler.Start()
	}

	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.String(),
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops the scheduler, then both servers, then closes the pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.metricsCancel()

	var errs []error
	var mu sync.Mutex

	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	var wg sync.WaitGroup
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

func (a *App) setupService() error {
	engine, err := a.config.Automation.Engine()
	if err != nil {
		return fmt.Errorf("build automation engine: %w", err)
	}

	opts := []servicedesk.Option{
		servicedesk.WithPatternOptions(a.config.Automation.PatternOptions()),
	}

	slog.Info("notifications configured", "enabled", a.config.Notifications.Enabled())
	if a.config.Notifications.Enabled() {
		renderer, err := notifications.NewRenderer()
		if err != nil {
			return fmt.Errorf("create notification renderer: %w", err)
		}
		sender := mattermost.NewSender(mattermost.Config{
			Username: a.config.Notifications.Username,
			Channel:  a.config.Notifications.Channel,
			Timeout:  a.config.Notifications.Timeout,
		})
		dispatcher := notifications.NewDispatcher(renderer, sender, notifications.Config{
			Target: a.config.Notifications.MattermostWebhookURL,
		})
		opts = append(opts, servicedesk.WithNotifier(dispatcher))
	}

	repo := servicedeskpostgres.NewRepository(a.db)
	a.service = servicedesk.NewService(repo, engine, opts...)
	return nil
}

func (a *App) setupScheduler() error {
	if a.config.Automation.Schedule == "" {
		slog.Info("scheduled automation disabled")
		return nil
	}

	var tasks []scheduler.Task

	slog.Info("jira import configured", "enabled", a.config.Jira.Enabled())
	if a.config.Jira.Enabled() {
		client, err := jira.NewClient(jira.Config{
			BaseURL:   a.config.Jira.BaseURL,
			User:      a.config.Jira.User,
			Token:     a.config.Jira.Token,
			PageSize:  a.config.Jira.PageSize,
			RateLimit: a.config.Jira.RateLimit,
			Timeout:   a.config.Jira.Timeout,
		})
		if err != nil {
			return fmt.Errorf("create jira client: %w", err)
		}
		syncer := jira.NewSyncer(client, a.service, a.config.Jira.JQL)
		tasks = append(tasks, scheduler.Task{
			Name: "jira_sync",
			Run: func(ctx context.Context) error {
				_, err := syncer.Sync(ctx)
				return err
			},
		})
	}

	tasks = append(tasks, scheduler.Task{
		Name: "automation",
		Run: func(ctx context.Context) error {
			_, err := a.service.RunAutomation(ctx)
			return err
		},
	})

	s, err := scheduler.New(a.config.Automation.Schedule, tasks...)
	if err != nil {
		return err
	}
	a.scheduler = s
	return nil
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	handler := servicedesk.NewHandler(a.service)
	r.Route("/api/v1", handler.RegisterRoutes)

	return r
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
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
	httputil.JSON(w, http.StatusOK, version.Get())
}

// initLogger builds the process logger. Unknown levels fall back to info;
// debug adds source locations.
func initLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", "itsm")
}
