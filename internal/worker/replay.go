package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/m7moud/notification-queue/internal/notification"
)

// ReplayConfig holds configuration for the event replay worker
type ReplayConfig struct {
	InputFile  string
	BatchSize  int
	BufferSize int
}

// Event is one line of a replay file
type Event struct {
	Category   string `json:"category"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Operation  string `json:"operation"`
	ActorUser  string `json:"actor_user"`
}

// Notifier publishes entity-change notifications
type Notifier interface {
	SendNotification(ctx context.Context, category, entityID, entityName string, op notification.Operation, actorUser string) error
}

// ReplayWorker reads entity-change events from a JSONL file and publishes
// them as notifications
type ReplayWorker struct {
	config    ReplayConfig
	notifier  Notifier
	logger    logrus.FieldLogger
	processed atomic.Int64
	skipped   atomic.Int64
	running   atomic.Bool
}

type pendingEvent struct {
	line  int
	event Event
	op    notification.Operation
}

// NewReplayWorker creates a new replay worker
func NewReplayWorker(notifier Notifier, config ReplayConfig, logger logrus.FieldLogger) *ReplayWorker {
	return &ReplayWorker{
		config:   config,
		notifier: notifier,
		logger:   logger.WithField("component", "replay"),
	}
}

// Start reads the input file and publishes every valid event. Malformed lines
// are skipped.
func (w *ReplayWorker) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("worker already running")
	}
	defer w.running.Store(false)

	file, err := os.Open(w.config.InputFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, w.config.BufferSize)
	scanner.Buffer(buf, w.config.BufferSize)

	lineNum := 0
	batch := make([]pendingEvent, 0, w.config.BatchSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			w.logger.Info("context cancelled, stopping replay")
			return ctx.Err()
		default:
		}

		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		pending, err := parseEvent(line)
		if err != nil {
			w.skipped.Add(1)
			w.logger.WithError(err).WithField("line", lineNum).Warn("skipping malformed event")
			continue
		}
		pending.line = lineNum
		batch = append(batch, pending)

		if len(batch) >= w.config.BatchSize {
			if err := w.processBatch(ctx, batch); err != nil {
				return fmt.Errorf("failed to process batch: %w", err)
			}
			batch = batch[:0]
		}
	}

	if err := w.processBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to flush final batch: %w", err)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"processed": w.processed.Load(),
		"skipped":   w.skipped.Load(),
		"file":      w.config.InputFile,
	}).Info("event replay completed")

	return nil
}

func parseEvent(line string) (pendingEvent, error) {
	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return pendingEvent{}, err
	}

	op, err := notification.ParseOperation(ev.Operation)
	if err != nil {
		return pendingEvent{}, err
	}
	if ev.EntityName == "" {
		return pendingEvent{}, fmt.Errorf("entity_name is required")
	}
	if ev.Category == "" {
		ev.Category = ev.EntityName
	}
	if ev.EntityID == "" {
		ev.EntityID = uuid.NewString()
	}

	return pendingEvent{event: ev, op: op}, nil
}

func (w *ReplayWorker) processBatch(ctx context.Context, batch []pendingEvent) error {
	for _, p := range batch {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev := p.event
		if err := w.notifier.SendNotification(ctx, ev.Category, ev.EntityID, ev.EntityName, p.op, ev.ActorUser); err != nil {
			return fmt.Errorf("failed to send event on line %d: %w", p.line, err)
		}
		w.processed.Add(1)

		w.logger.WithFields(logrus.Fields{
			"line":      p.line,
			"entity":    ev.EntityName,
			"entity_id": ev.EntityID,
			"operation": p.op,
		}).Debug("replayed event")
	}
	return nil
}

// GetStats returns worker statistics
func (w *ReplayWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"processed":   w.processed.Load(),
		"skipped":     w.skipped.Load(),
		"input_file":  w.config.InputFile,
		"batch_size":  w.config.BatchSize,
		"buffer_size": w.config.BufferSize,
		"is_running":  w.running.Load(),
	}
}

// IsRunning returns true if the worker is running
func (w *ReplayWorker) IsRunning() bool {
	return w.running.Load()
}
