// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

// Package app wires configuration, storage, services, the HTTP API, and the
// background sync sweep into a runnable process.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veliq/timegrid/internal/api"
	"github.com/veliq/timegrid/internal/api/handlers"
	"github.com/veliq/timegrid/internal/availability"
	"github.com/veliq/timegrid/internal/pkg/logger"
	"github.com/veliq/timegrid/internal/recurrence"
	"github.com/veliq/timegrid/internal/repository/postgres"
	"github.com/veliq/timegrid/internal/scheduler"
	"github.com/veliq/timegrid/internal/services/calendar"
	"github.com/veliq/timegrid/internal/services/overview"
)

// Application holds the assembled process state.
type Application struct {
	Config *Config
	Logger *logger.Logger
	DB     *postgres.DB

	server  *api.Server
	sweeper *scheduler.Scheduler
}

// Run builds the application from configuration and blocks until a shutdown
// signal arrives.
func Run(cfgFile string) error {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting timegrid",
		"version", Version,
		"commit", Commit,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.DB.Close()

	if err := app.Start(ctx); err != nil {
		return err
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return app.Shutdown(shutdownCtx)
}

// New connects storage, runs migrations, and assembles services, the HTTP
// server, and the sync sweep.
func New(ctx context.Context, cfg *Config, log *logger.Logger) (*Application, error) {
	// Database
	log.Info("connecting to database", "url", maskURL(cfg.Database.URL))
	db, err := postgres.New(ctx, cfg.Database.URL, postgres.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("running database migrations")
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Repositories
	eventRepo := postgres.NewEventRepository(db)
	focusRepo := postgres.NewFocusRepository(db)
	integrationRepo := postgres.NewIntegrationRepository(db)
	settingsRepo := postgres.NewSettingsRepository(db)

	// Services
	calendarSvc := calendar.NewService(eventRepo, focusRepo, integrationRepo, settingsRepo, log)
	gateway := availability.NewGateway(log)
	aggregator := availability.NewAggregator(gateway, integrationRepo, log, nil)
	expansionCache := recurrence.NewCache(cfg.Cache.ExpansionTTL, cfg.Cache.ExpansionCapacity, nil)
	overviewSvc := overview.NewService(eventRepo, focusRepo, integrationRepo, settingsRepo,
		aggregator, expansionCache, log, nil)

	// HTTP server
	routerCfg := api.DefaultRouterConfig(cfg.Security.JWTSecret)
	routerCfg.RateLimitPerMinute = cfg.Server.RateLimitPerMin
	routerCfg.RequestTimeout = cfg.Server.RequestTimeout
	routerCfg.EnableDebugLogging = cfg.Server.DebugLogging
	if len(cfg.Security.CORSAllowedOrigins) > 0 {
		routerCfg.CORSConfig.AllowedOrigins = cfg.Security.CORSAllowedOrigins
	}

	srv := api.NewServer(api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		HTTPSPort:       cfg.Server.HTTPSPort,
		TLSCert:         tlsCertPath(cfg),
		TLSKey:          tlsKeyPath(cfg),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		MaxHeaderBytes:  int(parseSize(cfg.Server.MaxRequestSize, 1<<20)),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RouterConfig:    routerCfg,
		Version:         Version,
		Commit:          Commit,
		BuildTime:       BuildTime,
		Logger:          log.Named("http"),
	})
	srv.Handlers().Calendar = handlers.NewCalendarHandler(calendarSvc, overviewSvc, log)
	srv.RegisterDatabaseHealth(db.Ping)
	srv.Setup()

	// Background availability sweep
	var sweeper *scheduler.Scheduler
	if cfg.Sync.Enabled {
		sweeper = scheduler.New(integrationRepo, aggregator, &scheduler.Config{
			Schedule:      cfg.Sync.Schedule,
			HorizonMonths: cfg.Sync.HorizonMonths,
			SweepTimeout:  cfg.Sync.SweepTimeout,
		}, log)
	}

	return &Application{
		Config:  cfg,
		Logger:  log,
		DB:      db,
		server:  srv,
		sweeper: sweeper,
	}, nil
}

// Start launches the HTTP server and the sync sweep.
func (a *Application) Start(ctx context.Context) error {
	if a.sweeper != nil {
		if err := a.sweeper.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sync sweep: %w", err)
		}
	}

	errCh := a.server.StartAsync()
	a.Logger.Info("server started",
		"addr", fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port),
		"tls", a.Config.Server.TLS.Enabled,
	)

	// Surface synchronous startup failures (bad port, TLS files missing)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-time.After(250 * time.Millisecond):
	}
	return nil
}

// Shutdown stops the sweep and drains the HTTP server.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down")

	if a.sweeper != nil {
		if err := a.sweeper.Stop(); err != nil {
			a.Logger.Error("failed to stop sync sweep", "error", err)
		}
	}

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.Logger.Info("shutdown complete")
	return nil
}

// Server exposes the HTTP server, mainly for tests.
func (a *Application) Server() *api.Server {
	return a.server
}

func tlsCertPath(cfg *Config) string {
	if !cfg.Server.TLS.Enabled {
		return ""
	}
	return cfg.Server.TLS.CertFile
}

func tlsKeyPath(cfg *Config) string {
	if !cfg.Server.TLS.Enabled {
		return ""
	}
	return cfg.Server.TLS.KeyFile
}
