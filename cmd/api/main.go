// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recoverkit/ingest-gateway/internal/auth"
	"github.com/recoverkit/ingest-gateway/internal/config"
	"github.com/recoverkit/ingest-gateway/internal/idempotency"
	"github.com/recoverkit/ingest-gateway/internal/logging"
	"github.com/recoverkit/ingest-gateway/internal/notifier"
	"github.com/recoverkit/ingest-gateway/internal/persistence/postgres"
	"github.com/recoverkit/ingest-gateway/internal/repository"
	"github.com/recoverkit/ingest-gateway/internal/task"
	httptransport "github.com/recoverkit/ingest-gateway/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema bootstrap failed: %v", err)
		}
	}

	resolver, err := auth.NewJWTResolver(cfg.JWTSecret, logger)
	if err != nil {
		log.Fatalf("auth resolver init failed: %v", err)
	}

	var broadcast notifier.Notifier = notifier.Nop{}
	if cfg.NATSURL != "" {
		conn, err := notifier.Connect(cfg.NATSURL)
		if err != nil {
			// Broadcasts are best-effort; a missing broker degrades,
			// never blocks startup.
			logger.Warn("nats connect failed, broadcasts disabled",
				"url", cfg.NATSURL,
				"error", err,
			)
		} else {
			defer conn.Close()
			broadcast = notifier.NewNATSNotifier(conn, logger)
		}
	}

	tasks := task.NewRunner(logger)
	eventRepo := repository.NewEventRepository(pool, logger)
	journeyRepo := repository.NewJourneyRepository(pool, logger)
	auditRepo := repository.NewAuditRepository(pool, logger)

	handler := httptransport.NewRouter(httptransport.Deps{
		EventRepo:             eventRepo,
		JourneyRepo:           journeyRepo,
		AuditRepo:             auditRepo,
		Health:                postgres.NewSchemaHealthChecker(pool),
		Resolver:              resolver,
		Cache:                 idempotency.New(cfg.IdempotencyTTL, cfg.IdempotencyHighWater),
		Notifier:              broadcast,
		Tasks:                 tasks,
		Logger:                logger,
		StrictSecondaryWrites: cfg.StrictSecondaryWrites,
		Version:               Version,
		Commit:                Commit,
		BuildDate:             BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("gateway listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := tasks.Close(shutdownCtx); err != nil {
		logger.Warn("detached tasks still running at shutdown", "error", err)
	}
}
