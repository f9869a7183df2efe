package queue

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MessageQueue is a named, unbounded FIFO buffer. All methods are safe for
// concurrent use and none of them block waiting for data.
type MessageQueue[T any] struct {
	name     string
	messages []Message[T]
	nextID   uint64
	sent     uint64
	received uint64
	deleted  bool
	now      func() time.Time
	mu       sync.Mutex
}

func newMessageQueue[T any](name string, now func() time.Time) *MessageQueue[T] {
	return &MessageQueue[T]{
		name:     name,
		messages: make([]Message[T], 0),
		now:      now,
	}
}

// Name returns the registry key of the queue.
func (mq *MessageQueue[T]) Name() string {
	return mq.name
}

// Send appends a message at the tail and returns the stored envelope.
// It fails only when the queue has been deleted from its registry.
func (mq *MessageQueue[T]) Send(body T, label string) (Message[T], error) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.deleted {
		return Message[T]{}, errors.Wrapf(ErrQueueNotFound, "queue %q was deleted", mq.name)
	}

	mq.nextID++
	msg := Message[T]{
		ID:        mq.nextID,
		Label:     label,
		Body:      body,
		Timestamp: mq.now(),
	}
	mq.messages = append(mq.messages, msg)
	mq.sent++
	return msg, nil
}

// Receive removes and returns the oldest message. The boolean is false when
// the queue holds nothing.
func (mq *MessageQueue[T]) Receive() (Message[T], bool) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if len(mq.messages) == 0 {
		return Message[T]{}, false
	}

	msg := mq.messages[0]
	mq.messages[0] = Message[T]{}
	mq.messages = mq.messages[1:]
	mq.received++
	return msg, true
}

// Peek returns the oldest message without removing it.
func (mq *MessageQueue[T]) Peek() (Message[T], bool) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if len(mq.messages) == 0 {
		return Message[T]{}, false
	}
	return mq.messages[0], true
}

// Count returns the number of buffered messages at the time of the call.
func (mq *MessageQueue[T]) Count() int {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return len(mq.messages)
}

// Purge drops every buffered message and reports how many were dropped.
func (mq *MessageQueue[T]) Purge() int {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	n := len(mq.messages)
	mq.messages = make([]Message[T], 0)
	return n
}

// Stats returns depth and lifetime counters.
func (mq *MessageQueue[T]) Stats() QueueStats {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	return QueueStats{
		Name:     mq.name,
		Count:    len(mq.messages),
		Sent:     mq.sent,
		Received: mq.received,
	}
}

// markDeleted detaches the queue from its registry: buffered messages are
// dropped and later sends through stale handles fail.
func (mq *MessageQueue[T]) markDeleted() int {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	n := len(mq.messages)
	mq.messages = nil
	mq.deleted = true
	return n
}
