package notification

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/m7moud/notification-queue/internal/logging"
	"github.com/m7moud/notification-queue/internal/queue"
)

const (
	// DefaultQueueName is the well-known queue notifications travel through.
	DefaultQueueName = "Notifications"

	// DefaultPollLimit caps how many notifications one poll may drain.
	DefaultPollLimit = 10
)

// Service publishes entity-change notifications onto the notification queue,
// consumes them, and tracks their read state.
type Service struct {
	registry  *queue.Manager[json.RawMessage]
	queueName string
	store     Store
	logger    logrus.FieldLogger
	now       func() time.Time
	pollLimit int
	nextID    atomic.Int64
}

// Option configures a Service.
type Option func(*Service)

// WithQueueName overrides DefaultQueueName.
func WithQueueName(name string) Option {
	return func(s *Service) {
		s.queueName = name
	}
}

// WithStore replaces the in-memory read-state store.
func WithStore(store Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithLogger sets the service logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithPollLimit overrides DefaultPollLimit.
func WithPollLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.pollLimit = limit
		}
	}
}

// NewService creates a notification service on top of registry.
func NewService(registry *queue.Manager[json.RawMessage], opts ...Option) *Service {
	s := &Service{
		registry:  registry,
		queueName: DefaultQueueName,
		store:     NewMemoryStore(),
		logger:    logging.Discard(),
		now:       time.Now,
		pollLimit: DefaultPollLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "notifications")
	return s
}

// QueueName returns the name of the notification queue.
func (s *Service) QueueName() string {
	return s.queueName
}

// PollLimit returns the default cap used by ReceiveNotifications.
func (s *Service) PollLimit() int {
	return s.pollLimit
}

// SendNotification records an entity change on the notification queue. The
// queue is created on first use.
func (s *Service) SendNotification(ctx context.Context, category, entityID, entityName string, op Operation, actorUser string) error {
	if !op.Valid() {
		return errors.Wrapf(ErrInvalidOperation, "%q", op)
	}
	if actorUser == "" {
		actorUser = DefaultActor
	}

	n := Notification{
		ID:         s.nextID.Add(1),
		Category:   category,
		EntityID:   entityID,
		EntityName: entityName,
		Operation:  op,
		ActorUser:  actorUser,
		Timestamp:  s.now(),
	}

	body, err := json.Marshal(n)
	if err != nil {
		return &SerializationError{Op: "encode", Err: err}
	}

	q, err := s.registry.Create(s.queueName)
	if err != nil {
		return errors.Wrap(err, "resolve notification queue")
	}

	msg, err := q.Send(body, n.Title())
	if err != nil {
		return errors.Wrap(err, "send notification")
	}

	s.logger.WithFields(logrus.Fields{
		"id":         n.ID,
		"message_id": msg.ID,
		"category":   n.Category,
		"entity":     n.EntityName,
		"operation":  n.Operation,
		"actor":      n.ActorUser,
	}).Debug("notification sent")
	return nil
}

// ReceiveNotification consumes the oldest pending notification. It returns
// nil, nil when nothing is pending.
func (s *Service) ReceiveNotification(ctx context.Context) (*Notification, error) {
	q, err := s.registry.GetQueue(s.queueName)
	if errors.Is(err, queue.ErrQueueNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	msg, ok := q.Receive()
	if !ok {
		return nil, nil
	}

	var n Notification
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		// the message is consumed either way; report it so it is not lost silently
		s.logger.WithError(err).WithFields(logrus.Fields{
			"message_id": msg.ID,
			"label":      msg.Label,
		}).Warn("dropping undecodable notification")
		return nil, &SerializationError{Op: "decode", MessageID: msg.ID, Err: err}
	}

	if err := s.store.Save(ctx, n); err != nil {
		return nil, errors.Wrapf(err, "track notification %d", n.ID)
	}
	return &n, nil
}

// ReceiveNotifications drains up to max pending notifications, stopping at
// the first empty receive. A max of zero or less uses the poll limit.
func (s *Service) ReceiveNotifications(ctx context.Context, max int) ([]Notification, error) {
	if max <= 0 {
		max = s.pollLimit
	}

	notifications := make([]Notification, 0)
	for len(notifications) < max {
		if err := ctx.Err(); err != nil {
			return notifications, err
		}

		n, err := s.ReceiveNotification(ctx)
		if err != nil {
			return notifications, err
		}
		if n == nil {
			break
		}
		notifications = append(notifications, *n)
	}
	return notifications, nil
}

// MarkAsRead flags a previously received notification as read. Unknown ids
// return ErrUnknownNotificationID.
func (s *Service) MarkAsRead(ctx context.Context, id int64) error {
	if err := s.store.MarkRead(ctx, id, s.now()); err != nil {
		return err
	}

	s.logger.WithField("id", id).Debug("notification marked as read")
	return nil
}

// Get returns a received notification by id.
func (s *Service) Get(ctx context.Context, id int64) (*Notification, error) {
	return s.store.Get(ctx, id)
}

// ListReceived returns received notifications, newest first.
func (s *Service) ListReceived(ctx context.Context, opts ListOptions) ([]Notification, error) {
	return s.store.List(ctx, opts)
}

// CountUnread returns how many received notifications are still unread.
func (s *Service) CountUnread(ctx context.Context) (int, error) {
	return s.store.CountUnread(ctx)
}

// Pending returns the number of notifications waiting on the queue.
func (s *Service) Pending() int {
	q, err := s.registry.GetQueue(s.queueName)
	if err != nil {
		return 0
	}
	return q.Count()
}
