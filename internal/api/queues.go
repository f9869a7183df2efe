package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const selfTestQueue = "TestBasicQueue"

func (h *Handler) queueStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()

	var status strings.Builder
	status.WriteString("Queue Status:\n")
	for _, s := range stats {
		fmt.Fprintf(&status, "- %s: %d messages\n", s.Name, s.Count)
	}
	if len(stats) == 0 {
		status.WriteString("No queues found\n")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"queues":  stats,
		"message": status.String(),
	})
}

// basicQueueTest exercises create, send, receive and delete on a scratch queue
// private to the request.
func (h *Handler) basicQueueTest(w http.ResponseWriter, r *http.Request) {
	received, err := h.runBasicQueueTest()
	if err != nil {
		h.logger.WithError(err).Error("error in basic queue test")
		writeFailure(w, http.StatusInternalServerError, "Error in basic queue test: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  fmt.Sprintf("Basic queue test completed. Received: '%s' and '%s'", received[0], received[1]),
		"received": received,
	})
}

func (h *Handler) runBasicQueueTest() ([]json.RawMessage, error) {
	name := selfTestQueue + "-" + uuid.NewString()
	q, err := h.registry.Create(name)
	if err != nil {
		return nil, err
	}
	defer h.registry.Delete(name)

	second, err := json.Marshal(map[string]any{
		"TestData":  "JSON Object",
		"Timestamp": h.now(),
	})
	if err != nil {
		return nil, err
	}

	if _, err := q.Send(json.RawMessage(`"Hello World!"`), "Test Message 1"); err != nil {
		return nil, err
	}
	if _, err := q.Send(second, "Test Message 2"); err != nil {
		return nil, err
	}

	received := make([]json.RawMessage, 0, 2)
	for range 2 {
		msg, ok := q.Receive()
		if !ok {
			return nil, errors.Errorf("queue %q drained early", name)
		}
		received = append(received, msg.Body)
	}
	return received, nil
}
