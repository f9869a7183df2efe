package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/m7moud/notification-queue/internal/queue"
)

// ArchiveConfig holds configuration for the queue archiver
type ArchiveConfig struct {
	Queue         string
	OutputFile    string
	BatchSize     int
	FlushInterval time.Duration
	PollInterval  time.Duration
	AppendMode    bool
}

// ArchivedMessage is one line of the archive file
type ArchivedMessage struct {
	queue.Message[json.RawMessage]
	Queue      string    `json:"queue"`
	RunID      string    `json:"run_id"`
	ArchivedAt time.Time `json:"archived_at"`
}

// ArchiveWorker drains a queue and appends its messages to a JSONL file
type ArchiveWorker struct {
	config    ArchiveConfig
	queue     queue.QueueService
	logger    logrus.FieldLogger
	runID     string
	written   atomic.Int64
	running   atomic.Bool
	file      *os.File
	closeOnce sync.Once
	closeErr  error
}

// NewArchiveWorker creates a new archive worker
func NewArchiveWorker(q queue.QueueService, config ArchiveConfig, logger logrus.FieldLogger) (*ArchiveWorker, error) {
	if config.Queue == "" {
		return nil, fmt.Errorf("archive queue is required")
	}

	flags := os.O_CREATE | os.O_WRONLY
	if config.AppendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(config.OutputFile, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	runID := uuid.NewString()
	return &ArchiveWorker{
		config: config,
		queue:  q,
		logger: logger.WithFields(logrus.Fields{
			"component": "archive",
			"queue":     config.Queue,
			"run_id":    runID,
		}),
		runID: runID,
		file:  file,
	}, nil
}

// Start drains the queue until ctx is cancelled. Pending messages are flushed
// before it returns.
func (w *ArchiveWorker) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("worker already running")
	}
	defer w.running.Store(false)

	batch := make([]queue.Message[json.RawMessage], 0, w.config.BatchSize)
	flushTicker := time.NewTicker(w.config.FlushInterval)
	defer flushTicker.Stop()
	poll := time.NewTimer(0)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("context cancelled, stopping archiver")
			return w.flushBatch(batch)

		case <-flushTicker.C:
			if err := w.flushBatch(batch); err != nil {
				return fmt.Errorf("failed to flush batch: %w", err)
			}
			batch = batch[:0]

		case <-poll.C:
			var err error
			batch, err = w.drain(ctx, batch)
			if err != nil {
				if flushErr := w.flushBatch(batch); flushErr != nil {
					w.logger.WithError(flushErr).Error("failed to flush pending batch")
				}
				return err
			}
			poll.Reset(w.config.PollInterval)
		}
	}
}

// drain receives until the queue is empty, flushing whenever the batch fills.
func (w *ArchiveWorker) drain(ctx context.Context, batch []queue.Message[json.RawMessage]) ([]queue.Message[json.RawMessage], error) {
	for ctx.Err() == nil {
		msg, err := w.queue.Receive(ctx, w.config.Queue)
		if errors.Is(err, queue.ErrQueueNotFound) {
			w.logger.Debug("queue does not exist yet")
			return batch, nil
		}
		if errors.Is(err, queue.ErrClientBroken) {
			return batch, errors.Wrap(err, "queue connection lost")
		}
		if err != nil {
			if ctx.Err() != nil {
				return batch, nil
			}
			w.logger.WithError(err).Error("failed to receive from queue")
			return batch, nil
		}
		if msg == nil {
			return batch, nil
		}

		batch = append(batch, *msg)

		if len(batch) >= w.config.BatchSize {
			if err := w.flushBatch(batch); err != nil {
				return batch, fmt.Errorf("failed to flush batch: %w", err)
			}
			batch = batch[:0]
		}
	}
	return batch, nil
}

func (w *ArchiveWorker) flushBatch(batch []queue.Message[json.RawMessage]) error {
	if len(batch) == 0 {
		return nil
	}

	encoder := json.NewEncoder(w.file)
	now := time.Now()
	for _, msg := range batch {
		line := ArchivedMessage{
			Message:    msg,
			Queue:      w.config.Queue,
			RunID:      w.runID,
			ArchivedAt: now,
		}
		if err := encoder.Encode(line); err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}

		w.written.Add(1)
		w.logger.WithFields(logrus.Fields{
			"id":     msg.ID,
			"label":  msg.Label,
			"length": len(msg.Body),
		}).Debug("archived message")
	}

	if err := w.file.Sync(); err != nil {
		w.logger.WithError(err).Warn("failed to sync file to disk")
	}

	w.logger.WithFields(logrus.Fields{
		"batch_size": len(batch),
		"total":      w.written.Load(),
	}).Info("flushed batch to file")

	return nil
}

// GetStats returns worker statistics
func (w *ArchiveWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"written":        w.written.Load(),
		"queue":          w.config.Queue,
		"output_file":    w.config.OutputFile,
		"batch_size":     w.config.BatchSize,
		"flush_interval": w.config.FlushInterval.String(),
		"append_mode":    w.config.AppendMode,
		"run_id":         w.runID,
		"is_running":     w.running.Load(),
	}
}

// Close closes the output file. The queue client is owned by the caller.
func (w *ArchiveWorker) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.file.Close()
	})
	return w.closeErr
}

// IsRunning returns true if the worker is running
func (w *ArchiveWorker) IsRunning() bool {
	return w.running.Load()
}
