package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Store keeps notifications after they have left the delivery queue so that
// their read state can be tracked.
type Store interface {
	// Save records a received notification.
	Save(ctx context.Context, n Notification) error

	// Get returns a copy of the notification with the given id.
	Get(ctx context.Context, id int64) (*Notification, error)

	// List returns notifications, newest first.
	List(ctx context.Context, opts ListOptions) ([]Notification, error)

	// MarkRead flags the notification as read.
	MarkRead(ctx context.Context, id int64, at time.Time) error

	// CountUnread returns the number of unread notifications.
	CountUnread(ctx context.Context) (int, error)
}

// ListOptions filters and paginates List.
type ListOptions struct {
	Limit      int  // 0 = no limit
	Offset     int
	OnlyUnread bool
	Category   string
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	items map[int64]Notification
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[int64]Notification),
	}
}

func (s *MemoryStore) Save(ctx context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[n.ID]; ok && existing.IsRead && !n.IsRead {
		// never un-read a notification
		n.IsRead = true
		n.ReadAt = existing.ReadAt
	}
	s.items[n.ID] = n
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.items[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNotificationID, "%d", id)
	}
	return &n, nil
}

func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	filtered := make([]Notification, 0, len(s.items))
	for _, n := range s.items {
		if opts.OnlyUnread && n.IsRead {
			continue
		}
		if opts.Category != "" && n.Category != opts.Category {
			continue
		}
		filtered = append(filtered, n)
	}
	s.mu.RUnlock()

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].ID > filtered[j].ID
	})

	start := max(opts.Offset, 0)
	if start > len(filtered) {
		return []Notification{}, nil
	}
	end := len(filtered)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return filtered[start:end], nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[id]
	if !ok {
		return errors.Wrapf(ErrUnknownNotificationID, "%d", id)
	}
	n.MarkAsRead(at)
	s.items[id] = n
	return nil
}

func (s *MemoryStore) CountUnread(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.items {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}
