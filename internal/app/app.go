package app

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"asqlite"
	"asqlite/internal/adapter/httpapi"
	"asqlite/internal/adapter/maintenance"
	"asqlite/internal/config"
	"asqlite/internal/platform/logger"
	"asqlite/internal/platform/migrate"
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "asqlited",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.log.Info("starting", "db", a.cfg.DB.Path, "addr", a.cfg.HTTP.Addr)
	defer func() { _ = logger.Close(a.log) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.DB.MigrationsPath != "" {
		if err := migrate.Apply(a.cfg.DB.Path, a.cfg.DB.MigrationsPath); err != nil {
			return err
		}
		a.log.Info("migrations applied", "path", a.cfg.DB.MigrationsPath)
	}

	opts := asqlite.DefaultOptions()
	opts.BusyTimeout = a.cfg.DB.BusyTimeout
	opts.Logger = a.log.With("component", "asqlite")

	conn, err := asqlite.ConnectWithOptions(ctx, a.cfg.DB.Path, opts)
	if err != nil {
		return err
	}
	// Соединение закрывается последним: сначала останавливаем все,
	// что через него работает.
	defer func() { _ = conn.Close() }()

	runner := maintenance.New(conn, a.log.With("component", "maintenance"))
	if a.cfg.Maintenance.CheckpointSchedule != "" {
		if err := runner.Schedule(a.cfg.Maintenance.CheckpointSchedule); err != nil {
			return err
		}
	}
	runner.Start()
	defer runner.Stop()

	handler := httpapi.New(conn, a.log.With("component", "httpapi"))
	srv := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: handler.Router()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("server", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
