package notification

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownNotificationID is returned when no received notification has the id.
	ErrUnknownNotificationID = errors.New("unknown notification id")

	// ErrInvalidOperation is returned for operations outside CREATE, UPDATE and DELETE.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrSerialization matches every SerializationError.
	ErrSerialization = errors.New("notification serialization failed")
)

// SerializationError reports a notification that could not be encoded into,
// or decoded from, a message body.
type SerializationError struct {
	Op        string // "encode" or "decode"
	MessageID uint64
	Err       error
}

func (e *SerializationError) Error() string {
	if e.MessageID != 0 {
		return fmt.Sprintf("%s notification (message %d): %v", e.Op, e.MessageID, e.Err)
	}
	return fmt.Sprintf("%s notification: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}
