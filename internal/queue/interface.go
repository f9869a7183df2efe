package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Message represents a single message in a queue
type Message[T any] struct {
	ID        uint64    `json:"id"`
	Label     string    `json:"label,omitempty"`
	Body      T         `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// QueueStats is a point-in-time view of one queue
type QueueStats struct {
	Name     string `json:"name"`
	Count    int    `json:"count"`
	Sent     uint64 `json:"sent"`
	Received uint64 `json:"received"`
}

// QueueService defines the interface for remote queue operations
type QueueService interface {
	Create(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
	Send(ctx context.Context, name string, body json.RawMessage, label string) (uint64, error)
	// Receive returns nil, nil when the queue is empty.
	Receive(ctx context.Context, name string) (*Message[json.RawMessage], error)
	Count(ctx context.Context, name string) (int, error)
	List(ctx context.Context) ([]QueueStats, error)
	Close() error
}
