package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/m7moud/notification-queue/internal/api"
	"github.com/m7moud/notification-queue/internal/config"
	"github.com/m7moud/notification-queue/internal/logging"
	"github.com/m7moud/notification-queue/internal/notification"
	"github.com/m7moud/notification-queue/internal/queue"
	"github.com/m7moud/notification-queue/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create logger")
	}
	logger.Info("Starting notification queue service...")

	registry := queue.NewManager[json.RawMessage](queue.WithLogger(logger))
	notifications := notification.NewService(registry,
		notification.WithQueueName(cfg.Notifications.Queue),
		notification.WithPollLimit(cfg.Notifications.PollLimit),
		notification.WithLogger(logger),
	)

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		queue.NewCollector(registry, "notification"),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	queueServer := queue.NewQueueServer(cfg.Server.QueueAddr, registry, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.NewRouter(notifications, registry, metrics, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return errors.Wrap(queueServer.Start(ctx), "queue server error")
	})

	g.Go(func() error {
		logger.WithField("addr", cfg.Server.HTTPAddr).Info("HTTP API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server error")
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return errors.Wrap(httpServer.Shutdown(shutdownCtx), "http server shutdown")
	})

	if cfg.ReplayConfig.InputFile != "" {
		replay := worker.NewReplayWorker(notifications, cfg.ReplayConfig, logger)
		g.Go(func() error {
			err := replay.Start(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return errors.Wrap(err, "replay worker error")
			}
			return nil
		})
	}

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received signal, shutting down...")
		cancel()
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down...")
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Service failed, shutting down...")
		os.Exit(1)
	}

	logger.Info("Service shut down")
}
