package queue

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrClientBroken is returned once a client has lost track of the reply
// stream. The connection is closed and the client must be replaced.
var ErrClientBroken = errors.New("queue client connection broken")

// QueueClient talks to a QueueServer over a single TCP connection. Calls are
// serialized, so a client may be shared between goroutines. A failed write or
// read closes the connection and every later call fails with ErrClientBroken.
type QueueClient struct {
	conn   net.Conn
	writer *bufio.Writer
	reader *bufio.Reader
	broken error
	mu     sync.Mutex
}

var _ QueueService = (*QueueClient)(nil)

// NewQueueClient dials the queue server at addr.
func NewQueueClient(addr string) (*QueueClient, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &QueueClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}, nil
}

func (qc *QueueClient) Create(ctx context.Context, name string) error {
	response, err := qc.roundTrip(ctx, "CREATE "+name)
	if err != nil {
		return err
	}
	if response != replyOK {
		return serverError(name, response)
	}
	return nil
}

func (qc *QueueClient) Delete(ctx context.Context, name string) error {
	response, err := qc.roundTrip(ctx, "DELETE "+name)
	if err != nil {
		return err
	}
	if response != replyOK {
		return serverError(name, response)
	}
	return nil
}

func (qc *QueueClient) Send(ctx context.Context, name string, body json.RawMessage, label string) (uint64, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return 0, fmt.Errorf("failed to encode message body: %w", err)
	}

	command := "SEND " + name
	if label != "" {
		command += " " + strings.ReplaceAll(label, "\n", " ")
	}

	response, err := qc.roundTrip(ctx, command, compact.String())
	if err != nil {
		return 0, err
	}

	idText, ok := strings.CutPrefix(response, replyOK+" ")
	if !ok {
		return 0, serverError(name, response)
	}
	id, err := strconv.ParseUint(idText, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q: %w", idText, err)
	}
	return id, nil
}

func (qc *QueueClient) Receive(ctx context.Context, name string) (*Message[json.RawMessage], error) {
	response, err := qc.roundTrip(ctx, "RECV "+name)
	if err != nil {
		return nil, err
	}

	switch {
	case response == replyEmpty:
		return nil, nil // Queue is empty
	case !strings.HasPrefix(response, "{"):
		return nil, serverError(name, response)
	}

	var msg Message[json.RawMessage]
	if err := json.Unmarshal([]byte(response), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

func (qc *QueueClient) Count(ctx context.Context, name string) (int, error) {
	response, err := qc.roundTrip(ctx, "COUNT "+name)
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(response)
	if err != nil {
		return 0, serverError(name, response)
	}
	return n, nil
}

func (qc *QueueClient) List(ctx context.Context) ([]QueueStats, error) {
	response, err := qc.roundTrip(ctx, "LIST")
	if err != nil {
		return nil, err
	}

	var stats []QueueStats
	if err := json.Unmarshal([]byte(response), &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue list: %w", err)
	}
	return stats, nil
}

func (qc *QueueClient) Close() error {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	if qc.broken != nil {
		return nil
	}
	qc.broken = errors.Wrap(ErrClientBroken, "client closed")
	return qc.conn.Close()
}

// roundTrip writes lines and reads a single reply line.
func (qc *QueueClient) roundTrip(ctx context.Context, lines ...string) (string, error) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	if qc.broken != nil {
		return "", qc.broken
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	deadline, _ := ctx.Deadline()
	if err := qc.conn.SetDeadline(deadline); err != nil {
		return "", qc.fail(err)
	}
	defer qc.conn.SetDeadline(time.Time{})

	for _, line := range lines {
		if _, err := qc.writer.WriteString(line + "\n"); err != nil {
			return "", qc.fail(err)
		}
	}
	if err := qc.writer.Flush(); err != nil {
		return "", qc.fail(err)
	}

	response, err := qc.reader.ReadString('\n')
	if err != nil {
		return "", qc.fail(err)
	}
	return strings.TrimSpace(response), nil
}

// fail closes the connection so a late reply can never be read as the answer
// to a later command. qc.mu must be held.
func (qc *QueueClient) fail(err error) error {
	qc.broken = errors.Wrap(ErrClientBroken, err.Error())
	_ = qc.conn.Close()
	return err
}

func serverError(name, response string) error {
	if response == replyNotFound {
		return errors.Wrapf(ErrQueueNotFound, "queue %q", name)
	}
	return fmt.Errorf("server error: %s", response)
}
