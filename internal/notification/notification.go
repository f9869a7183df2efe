package notification

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Operation classifies the entity change behind a notification.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// DefaultActor is recorded when a change has no authenticated user.
const DefaultActor = "System"

// ParseOperation parses an operation name, ignoring case.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToUpper(strings.TrimSpace(s)))
	if !op.Valid() {
		return "", errors.Wrapf(ErrInvalidOperation, "%q", s)
	}
	return op, nil
}

// Valid reports whether o is one of the known operations.
func (o Operation) Valid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

func (o Operation) String() string {
	return string(o)
}

// pastTense is used in message labels.
func (o Operation) pastTense() string {
	switch o {
	case OperationCreate:
		return "created"
	case OperationUpdate:
		return "updated"
	case OperationDelete:
		return "deleted"
	}
	return strings.ToLower(string(o))
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	op, err := ParseOperation(s)
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// Notification is an entity-change event delivered to the admin feed.
type Notification struct {
	ID         int64      `json:"id"`
	Category   string     `json:"category"`
	EntityID   string     `json:"entity_id"`
	EntityName string     `json:"entity_name"`
	Operation  Operation  `json:"operation"`
	ActorUser  string     `json:"actor_user"`
	Timestamp  time.Time  `json:"timestamp"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

// Title is a one-line summary, used as the queue message label.
func (n *Notification) Title() string {
	return fmt.Sprintf("%s %s", n.EntityName, n.Operation.pastTense())
}

// MarkAsRead flags the notification as read. Read notifications keep their
// original ReadAt.
func (n *Notification) MarkAsRead(at time.Time) {
	if n.IsRead {
		return
	}
	n.IsRead = true
	n.ReadAt = &at
}
