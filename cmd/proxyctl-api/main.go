package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edvin/proxyctl/internal/api"
	"github.com/edvin/proxyctl/internal/command"
	"github.com/edvin/proxyctl/internal/config"
	"github.com/edvin/proxyctl/internal/core"
	"github.com/edvin/proxyctl/internal/db"
	"github.com/edvin/proxyctl/internal/logging"
	"github.com/edvin/proxyctl/internal/metrics"
)

func main() {
	migrateFlag := flag.Bool("migrate", true, "Run database migrations before starting")
	reconcileFlag := flag.Bool("reconcile", false, "Reconcile every domain's config against its certificate material at startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer conn.Close()

	if *migrateFlag {
		logger.Info().Str("driver", cfg.DatabaseDriver).Msg("running database migrations")
		if err := db.RunMigrations(conn, cfg.DatabaseDriver); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}
	if err := metrics.RegisterDB(conn, cfg.ServiceName); err != nil {
		logger.Warn().Err(err).Msg("failed to register database metrics")
	}

	runner := metrics.Runner{Next: command.NewExecRunner(logger)}
	deps, err := core.DepsFromConfig(cfg, logger, runner)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build collaborators")
	}
	services := core.NewServices(conn, deps)

	if *reconcileFlag {
		res, err := services.Proxy.Reconcile(logger.WithContext(ctx))
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("startup reconcile failed")
		case !res.Success:
			logger.Warn().Str("error", res.Error).Msg("startup reconcile finished with errors")
		default:
			logger.Info().Str("message", res.Message).Msg("startup reconcile finished")
		}
	}

	srv := api.NewServer(logger, conn, services, cfg)

	// Certificate issuance blocks for up to the certbot timeout.
	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.CertbotTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting proxyctl API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
