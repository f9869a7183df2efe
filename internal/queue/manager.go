package queue

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/m7moud/notification-queue/internal/logging"
)

// Manager is the name -> queue directory. It is constructed once at process
// start and passed to every component that needs queues.
type Manager[T any] struct {
	queues map[string]*MessageQueue[T]
	logger logrus.FieldLogger
	now    func() time.Time
	mu     sync.RWMutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	logger logrus.FieldLogger
	now    func() time.Time
}

// WithLogger sets the logger used for queue lifecycle events.
func WithLogger(logger logrus.FieldLogger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithClock overrides the enqueue timestamp source.
func WithClock(now func() time.Time) ManagerOption {
	return func(o *managerOptions) {
		o.now = now
	}
}

// NewManager creates an empty registry.
func NewManager[T any](opts ...ManagerOption) *Manager[T] {
	o := managerOptions{
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Manager[T]{
		queues: make(map[string]*MessageQueue[T]),
		logger: o.logger,
		now:    o.now,
	}
}

// Create returns the queue registered under name, creating it when absent.
// Creating an existing name is a no-op that returns the existing queue.
func (m *Manager[T]) Create(name string) (*MessageQueue[T], error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[name]; ok {
		return q, nil
	}

	q := newMessageQueue[T](name, m.now)
	m.queues[name] = q

	m.logger.WithField("queue", name).Debug("queue created")
	return q, nil
}

// Delete removes the queue and all of its buffered messages.
func (m *Manager[T]) Delete(name string) error {
	m.mu.Lock()
	q, ok := m.queues[name]
	if ok {
		delete(m.queues, name)
	}
	m.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrQueueNotFound, "delete %q", name)
	}

	dropped := q.markDeleted()
	m.logger.WithFields(logrus.Fields{
		"queue":   name,
		"dropped": dropped,
	}).Debug("queue deleted")
	return nil
}

// GetQueue looks up a queue by name.
func (m *Manager[T]) GetQueue(name string) (*MessageQueue[T], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.queues[name]
	if !ok {
		return nil, errors.Wrapf(ErrQueueNotFound, "get %q", name)
	}
	return q, nil
}

// Exists reports whether name is registered.
func (m *Manager[T]) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.queues[name]
	return ok
}

// GetAllQueueNames returns a sorted snapshot of the registered names.
func (m *Manager[T]) GetAllQueueNames() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.queues))
	for name := range m.queues {
		names = append(names, name)
	}
	m.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Send resolves name and appends a message to it.
func (m *Manager[T]) Send(name string, body T, label string) (Message[T], error) {
	q, err := m.GetQueue(name)
	if err != nil {
		return Message[T]{}, err
	}
	return q.Send(body, label)
}

// Receive resolves name and pops its head. ok is false when the queue is empty.
func (m *Manager[T]) Receive(name string) (msg Message[T], ok bool, err error) {
	q, err := m.GetQueue(name)
	if err != nil {
		return Message[T]{}, false, err
	}
	msg, ok = q.Receive()
	return msg, ok, nil
}

// Stats returns per-queue statistics ordered by name.
func (m *Manager[T]) Stats() []QueueStats {
	m.mu.RLock()
	queues := make([]*MessageQueue[T], 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.RUnlock()

	stats := make([]QueueStats, 0, len(queues))
	for _, q := range queues {
		stats = append(stats, q.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " \t\r\n") {
		return errors.Wrapf(ErrInvalidQueueName, "%q", name)
	}
	return nil
}
