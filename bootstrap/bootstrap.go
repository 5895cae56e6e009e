// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mapmeter/mapmeter/adapters/clock"
	apihttp "github.com/mapmeter/mapmeter/adapters/http"
	"github.com/mapmeter/mapmeter/adapters/metrics"
	"github.com/mapmeter/mapmeter/adapters/monitoring"
	"github.com/mapmeter/mapmeter/adapters/sqlite"
	"github.com/mapmeter/mapmeter/app"
	"github.com/mapmeter/mapmeter/config"
	"github.com/mapmeter/mapmeter/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Holder     *config.Holder
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	Reports *app.ReportService
	Ledger  *app.LedgerService
}

// New creates and initializes the application from an already-loaded
// configuration (env-only deployments, tests).
func New(cfg *config.Config) (*App, error) {
	return build(config.NewStaticHolder(cfg))
}

// NewWithHotReload creates the application with config file watching.
func NewWithHotReload(path string) (*App, error) {
	logger := NewLogger(nil)
	holder, err := config.NewHolder(path, logger)
	if err != nil {
		return nil, err
	}

	a, err := build(holder)
	if err != nil {
		return nil, err
	}
	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("hot reload unavailable")
	}
	return a, nil
}

func build(holder *config.Holder) (*App, error) {
	cfg := holder.Get()
	logger := NewLogger(cfg)

	logger.Info().Msg("initializing mapmeter")

	a := &App{
		Logger: logger,
		Holder: holder,
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.DB = db
	logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	// The metric source is optional: without a project id the report
	// endpoint rejects requests, but bumps and the local summary work.
	var source ports.MetricSource
	if cfg.GoogleCloud.ProjectID != "" {
		src, err := monitoring.New(context.Background(), monitoring.Config{
			ProjectID:       cfg.GoogleCloud.ProjectID,
			CredentialsFile: cfg.GoogleCloud.CredentialsFile,
		}, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init monitoring client: %w", err)
		}
		source = src
		logger.Info().Str("project_id", cfg.GoogleCloud.ProjectID).Msg("monitoring client initialized")
	} else {
		logger.Warn().Msg("no project id configured, remote usage reports disabled")
	}

	var names []string
	for _, p := range cfg.Products {
		names = append(names, p.Name)
	}
	store := sqlite.NewCounterStore(db, names)

	clk := clock.Real{}
	a.Reports = app.NewReportService(holder, source, clk, logger, a.Metrics)
	a.Ledger = app.NewLedgerService(store, holder, clk, logger, a.Metrics)

	handler := apihttp.New(apihttp.Config{
		Reports: a.Reports,
		Ledger:  a.Ledger,
		Logger:  logger,
	})

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(metricsPath),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

// Run starts the HTTP server and blocks until a shutdown signal or a
// server error.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the server and releases resources.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}
	if a.Holder != nil {
		a.Holder.Stop()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// NewLogger builds the process logger. cfg may be nil during early
// startup; env vars win over config either way.
func NewLogger(cfg *config.Config) zerolog.Logger {
	levelStr := os.Getenv(config.EnvLogLevel)
	if levelStr == "" && cfg != nil {
		levelStr = cfg.Logging.Level
	}
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	format := os.Getenv(config.EnvLogFormat)
	if format == "" && cfg != nil {
		format = cfg.Logging.Format
	}
	if format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
