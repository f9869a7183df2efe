package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/m7moud/notification-queue/internal/config"
	"github.com/m7moud/notification-queue/internal/logging"
	"github.com/m7moud/notification-queue/internal/queue"
	"github.com/m7moud/notification-queue/internal/worker"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create logger")
	}
	if cfg.ArchiveConfig.Queue == "" {
		cfg.ArchiveConfig.Queue = cfg.Notifications.Queue
	}
	logger.WithFields(logrus.Fields{
		"queue_addr": cfg.Server.QueueAddr,
		"queue":      cfg.ArchiveConfig.Queue,
		"output":     cfg.ArchiveConfig.OutputFile,
	}).Info("Starting queue archiver...")

	client, err := queue.NewQueueClient(cfg.Server.QueueAddr)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to queue server")
	}
	defer client.Close()

	archiver, err := worker.NewArchiveWorker(client, cfg.ArchiveConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create archive worker")
	}
	defer archiver.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := archiver.Start(ctx); err != nil {
			return errors.Wrap(err, "archive worker error")
		}
		return nil
	})

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received signal, shutting down...")
		cancel()
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down worker...")
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Worker failed, shutting down...")
	} else {
		logger.WithFields(logrus.Fields(archiver.GetStats())).Info("Worker completed successfully.")
	}
}
