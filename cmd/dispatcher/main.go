// Dispatcher server for a two-node medication-dispensing cell — persists
// clinician queues, routes them to the actuator nodes over MQTT, joins the
// nodes' completion reports, and serves the ward HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pillcell/dispatcher/pkg/api"
	"github.com/pillcell/dispatcher/pkg/broker"
	"github.com/pillcell/dispatcher/pkg/config"
	"github.com/pillcell/dispatcher/pkg/database"
	"github.com/pillcell/dispatcher/pkg/dispatch"
	"github.com/pillcell/dispatcher/pkg/services"
	"github.com/pillcell/dispatcher/pkg/store"
	"github.com/pillcell/dispatcher/pkg/version"
)

func main() {
	// Load .env when present; container deployments inject the
	// environment directly and have no file.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.Default()
	logger.Info("Starting dispatcher",
		"version", version.Full(),
		"http_port", cfg.HTTP.Port,
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"topic_root", cfg.Broker.TopicRoot,
		"db_path", cfg.Database.Path)

	ctx := context.Background()

	// 1. Database (applies embedded migrations)
	dbClient, err := database.NewClient(ctx, cfg.Database.Path)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logger.Error("Error closing database", "error", err)
		}
	}()
	logger.Info("Database ready", "path", cfg.Database.Path)

	// 2. Dispatch core over a swappable publisher: until the broker link
	// is up, dispatch commands fall into the logging no-op.
	st := store.New(dbClient)
	topics := broker.NewTopics(cfg.Broker.TopicRoot)
	publisher := broker.NewSwappable(broker.NewNoopPublisher(logger))

	tracker := dispatch.NewTracker(st, cfg.Dispatch, logger)
	dispatcher := dispatch.NewDispatcher(st, publisher, topics, tracker, logger)
	joiner := dispatch.NewJoiner(st, tracker, dispatcher, logger)
	consumer := dispatch.NewConsumer(st, tracker, joiner, dispatcher, logger)

	// 3. Broker connection. On failure the cell keeps accepting queues;
	// dispatch resumes when the process restarts with the broker back.
	mq, err := broker.Connect(broker.Options{
		Host:           cfg.Broker.Host,
		Port:           cfg.Broker.Port,
		ClientID:       cfg.Broker.ClientID,
		Topics:         topics,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		OnMessage:      consumer.OnMessage,
		Logger:         logger,
	})
	if err != nil {
		logger.Warn("Broker unreachable, continuing with no-op publisher", "error", err)
	} else {
		publisher.Swap(mq)
		defer mq.Close()
	}

	// 4. Services and the collaborator HTTP API
	queueService := services.NewQueueService(st, dispatcher, logger)
	pillService := services.NewPillService(st, logger)
	patientService := services.NewPatientService(st, logger)
	dashboardService := services.NewDashboardService(st, tracker, logger)

	httpServer := api.NewServer(dbClient, publisher,
		queueService, pillService, patientService, dashboardService, logger)

	// 5. Readiness watchdog (also fires the one-shot startup dispatch)
	watchdogCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	watchdog := dispatch.NewWatchdog(st, tracker, dispatcher, cfg.Dispatch, logger)
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		watchdog.Run(watchdogCtx)
	}()

	// 6. HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTP.Port
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info("Dispatcher started")

	// 7. Wait for a shutdown signal or a server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("HTTP server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: stop the watchdog, drain HTTP, then the
	// deferred closes disconnect the broker and the database.
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Dispatch.GracefulShutdownTimeout)
	defer cancel()

	stopWatchdog()
	select {
	case <-watchdogDone:
		logger.Info("Watchdog stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("Watchdog did not stop before the shutdown deadline")
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
}
