// Package main is the entry point for the leveraged accumulation simulator.
// It serves backtests, Monte Carlo simulations, and the instrument catalog
// over HTTP, keeping return histories warm through scheduled cache refreshes.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/minghan/leversim/internal/clientdata"
	"github.com/minghan/leversim/internal/clients/yahoo"
	"github.com/minghan/leversim/internal/config"
	"github.com/minghan/leversim/internal/database"
	"github.com/minghan/leversim/internal/modules/advisor"
	advisorhandlers "github.com/minghan/leversim/internal/modules/advisor/handlers"
	backtesthandlers "github.com/minghan/leversim/internal/modules/backtest/handlers"
	"github.com/minghan/leversim/internal/modules/etf"
	etfhandlers "github.com/minghan/leversim/internal/modules/etf/handlers"
	"github.com/minghan/leversim/internal/modules/historical"
	montecarlohandlers "github.com/minghan/leversim/internal/modules/montecarlo/handlers"
	"github.com/minghan/leversim/internal/modules/portfolio"
	"github.com/minghan/leversim/internal/scheduler"
	"github.com/minghan/leversim/internal/server"
	"github.com/minghan/leversim/pkg/logger"
)

const version = "1.0.0"

// cleanupSchedule runs the cache cleanup shortly after midnight.
const cleanupSchedule = "0 15 0 * * *"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("version", version).
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Bool("dev_mode", cfg.DevMode).
		Msg("Starting leversim")

	// Cache database holds fetched return histories and backtest results.
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	if err := cacheDB.InitSchema(clientdata.Schema); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache schema")
	}

	cacheRepo := clientdata.NewRepository(cacheDB.Conn())

	// Clients and services.
	catalog := etf.DefaultCatalog()
	yahooClient := yahoo.NewClient(cacheRepo, time.Duration(cfg.CacheTTLHours)*time.Hour, log)
	historicalSvc := historical.NewService(yahooClient, catalog, log)
	portfolioSvc := portfolio.NewService(catalog, log)
	advisorSvc := advisor.NewService(portfolioSvc, log)

	// Background jobs.
	sched := scheduler.New(log)
	refreshJob := historical.NewRefreshJob(yahooClient, catalog, log)
	if err := sched.AddJob(cfg.RefreshSchedule, refreshJob); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.RefreshSchedule).Msg("Failed to register refresh job")
	}
	cleanupJob := clientdata.NewCleanupJob(cacheRepo, log)
	if err := sched.AddJob(cleanupSchedule, cleanupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cleanup job")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server.
	srv := server.New(server.Config{
		Log:     log,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Handlers: server.Handlers{
			Backtest:   backtesthandlers.NewHandler(portfolioSvc, historicalSvc, cacheRepo, log),
			MonteCarlo: montecarlohandlers.NewHandler(portfolioSvc, log),
			ETF:        etfhandlers.NewHandler(catalog, historicalSvc, log),
			Advisor:    advisorhandlers.NewHandler(advisorSvc, log),
			System:     server.NewSystemHandlers(log, cfg.DataDir, version),
		},
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server stopped unexpectedly")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
