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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"moodle-herald/internal/config"
	"moodle-herald/internal/domain"
	"moodle-herald/internal/history"
	historypostgres "moodle-herald/internal/history/postgres"
	"moodle-herald/internal/markdown"
	"moodle-herald/internal/moodle"
	"moodle-herald/internal/notifications"
	"moodle-herald/internal/notifications/discord"
	"moodle-herald/internal/notifications/pushbullet"
	"moodle-herald/internal/pkg/ctxlog"
	"moodle-herald/internal/pkg/httputil"
	"moodle-herald/internal/pkg/postgres"
	"moodle-herald/internal/poller"
	"moodle-herald/internal/summary"
	"moodle-herald/internal/version"
)

// App represents the application instance: the poll loop plus the
// operational HTTP surface (health, version, metrics, journal).
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	poller        *poller.Poller
	pollerCancel  context.CancelFunc
}

// New creates a new application instance. Login against Moodle happens
// here: rejected credentials abort startup instead of entering the retry
// loop.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	client := moodle.NewClient(moodle.Config{
		URL:       cfg.Moodle.URL,
		Username:  cfg.Moodle.Username,
		Password:  cfg.Moodle.Password,
		RateLimit: cfg.Moodle.RateLimit,
	})

	loginCtx, loginCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer loginCancel()
	if err := client.Login(loginCtx); err != nil {
		return nil, fmt.Errorf("moodle login: %w", err)
	}
	logger.Info("logged in to moodle", "url", cfg.Moodle.URL, "user_id", client.UserID())

	discordSender, err := discord.NewSender(discord.Config{
		Enabled:      cfg.Discord.Enabled,
		WebhookURL:   cfg.Discord.WebhookURL,
		BotName:      cfg.Discord.BotName,
		ThumbnailURL: cfg.Discord.ThumbnailURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create discord sender: %w", err)
	}

	pushbulletSender, err := pushbullet.NewSender(pushbullet.Config{
		Enabled: cfg.Pushbullet.Enabled,
		APIKey:  cfg.Pushbullet.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create pushbullet sender: %w", err)
	}

	if !cfg.Discord.Enabled && !cfg.Pushbullet.Enabled {
		logger.Warn("no delivery channel enabled: notifications will be detected but not delivered")
	}

	defaultSender := domain.SenderIdentity{
		FullName:        cfg.Dispatch.DefaultSender.FullName,
		ProfileImageURL: cfg.Dispatch.DefaultSender.ProfileImageURL,
	}
	dispatcher := notifications.NewDispatcher(client, defaultSender, discordSender, pushbulletSender)

	summarizer, err := summary.NewSummarizer(summary.Config{
		Enabled:      cfg.Summary.Enabled,
		APIKey:       cfg.Summary.APIKey,
		Model:        cfg.Summary.Model,
		SystemPrompt: cfg.Summary.SystemPrompt,
		MaxTokens:    cfg.Summary.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create summarizer: %w", err)
	}

	app := &App{
		config: cfg,
		logger: logger,
	}

	var journal poller.Journal
	if cfg.History.Enabled {
		connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.History.ConnectTimeout)
		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.History.DatabaseURL,
			MaxOpenConns:    cfg.History.MaxOpenConns,
			ConnectTimeout:  cfg.History.ConnectTimeout,
			ConnectAttempts: cfg.History.ConnectAttempts,
		})
		connectCancel()
		if err != nil {
			return nil, fmt.Errorf("connect to journal database: %w", err)
		}

		if err := historypostgres.Migrate(cfg.History.DatabaseURL); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate journal database: %w", err)
		}

		prometheus.MustRegister(historypostgres.NewPoolCollector(db))

		app.db = db
		journal = historypostgres.NewRepository(db)
	}

	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	app.pollerCancel = pollerCancel
	app.poller = poller.New(poller.Config{
		Interval:       cfg.Poll.Interval,
		RetryBase:      cfg.Poll.RetryBase,
		RetryIncrement: cfg.Poll.RetryIncrement,
	}, client, dispatcher, markdown.Convert, summarizer, journal)
	app.poller.Start(pollerCtx)

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

// Run starts the HTTP servers. The poll loop is already running.
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

// Shutdown gracefully shuts down the application. The poll loop stops
// first so no delivery is cut off mid-dispatch by a closing journal pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.pollerCancel()
	a.poller.Stop()

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

	if a.db != nil {
		a.db.Close()
	}

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter() *chi.Mux {
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

	if a.config.History.Enabled {
		journalHandler := history.NewHandler(historypostgres.NewRepository(a.db))
		r.Route("/api/v1", func(r chi.Router) {
			journalHandler.RegisterRoutes(r)
		})
	}

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		httputil.Text(w, http.StatusOK, "OK")
		return
	}

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
