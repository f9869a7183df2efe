package queue

import "github.com/pkg/errors"

var (
	// ErrQueueNotFound is returned when a queue name is absent from the registry.
	ErrQueueNotFound = errors.New("queue not found")

	// ErrInvalidQueueName is returned for empty names or names containing whitespace.
	ErrInvalidQueueName = errors.New("invalid queue name")
)
