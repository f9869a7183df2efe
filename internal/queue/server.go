package queue

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Protocol replies.
const (
	replyOK             = "OK"
	replyEmpty          = "EMPTY"
	replyNotFound       = "NOT_FOUND"
	replyError          = "ERROR"
	replyUnknownCommand = "UNKNOWN_COMMAND"
)

// QueueServer exposes a registry over a line-oriented TCP protocol.
type QueueServer struct {
	registry *Manager[json.RawMessage]
	addr     string
	logger   logrus.FieldLogger
}

// NewQueueServer creates a server for registry listening on addr.
func NewQueueServer(addr string, registry *Manager[json.RawMessage], logger logrus.FieldLogger) *QueueServer {
	return &QueueServer{
		registry: registry,
		addr:     addr,
		logger:   logger.WithField("component", "queue-server"),
	}
}

// Start listens on the configured address and serves until ctx is done.
func (qs *QueueServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", qs.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return qs.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. The listener is closed
// on return.
func (qs *QueueServer) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	qs.logger.WithFields(logrus.Fields{
		"address": ln.Addr().String(),
	}).Info("Queue service listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			qs.logger.WithError(err).Warn("accept error")
			continue
		}

		go qs.handleConnection(ctx, conn)
	}
}

func (qs *QueueServer) handleConnection(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				qs.logger.WithError(err).Debug("read error")
			}
			return
		}

		cmd, args := splitCommand(strings.TrimRight(line, "\r\n"))
		switch cmd {
		case "CREATE":
			qs.handleCreate(args, writer)
		case "DELETE":
			qs.handleDelete(args, writer)
		case "SEND":
			if !qs.handleSend(args, reader, writer) {
				return
			}
		case "RECV":
			qs.handleReceive(args, writer)
		case "COUNT":
			qs.handleCount(args, writer)
		case "LIST":
			qs.handleList(writer)
		default:
			reply(writer, replyUnknownCommand)
		}
	}
}

func (qs *QueueServer) handleCreate(args string, writer *bufio.Writer) {
	name, _ := splitCommand(args)
	if _, err := qs.registry.Create(name); err != nil {
		reply(writer, replyError+" "+err.Error())
		return
	}
	reply(writer, replyOK)
}

func (qs *QueueServer) handleDelete(args string, writer *bufio.Writer) {
	name, _ := splitCommand(args)
	if err := qs.registry.Delete(name); err != nil {
		reply(writer, errorReply(err))
		return
	}
	reply(writer, replyOK)
}

// handleSend reads the body line that follows SEND. It reports false when the
// connection can no longer be read.
func (qs *QueueServer) handleSend(args string, reader *bufio.Reader, writer *bufio.Writer) bool {
	name, label := splitCommand(args)

	body, err := reader.ReadString('\n')
	if err != nil {
		qs.logger.WithError(err).Debug("failed to read message body")
		reply(writer, replyError+" missing body")
		return false
	}
	body = strings.TrimRight(body, "\r\n")

	if !json.Valid([]byte(body)) {
		reply(writer, replyError+" body is not valid JSON")
		return true
	}

	msg, err := qs.registry.Send(name, json.RawMessage(body), label)
	if err != nil {
		reply(writer, errorReply(err))
		return true
	}

	qs.logger.WithFields(logrus.Fields{
		"queue":  name,
		"id":     msg.ID,
		"length": len(body),
	}).Debug("message sent")
	reply(writer, fmt.Sprintf("%s %d", replyOK, msg.ID))
	return true
}

func (qs *QueueServer) handleReceive(args string, writer *bufio.Writer) {
	name, _ := splitCommand(args)
	msg, ok, err := qs.registry.Receive(name)
	if err != nil {
		reply(writer, errorReply(err))
		return
	}
	if !ok {
		reply(writer, replyEmpty)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		reply(writer, replyError+" "+err.Error())
		return
	}
	reply(writer, string(data))
}

func (qs *QueueServer) handleCount(args string, writer *bufio.Writer) {
	name, _ := splitCommand(args)
	q, err := qs.registry.GetQueue(name)
	if err != nil {
		reply(writer, errorReply(err))
		return
	}
	reply(writer, fmt.Sprintf("%d", q.Count()))
}

func (qs *QueueServer) handleList(writer *bufio.Writer) {
	data, err := json.Marshal(qs.registry.Stats())
	if err != nil {
		reply(writer, replyError+" "+err.Error())
		return
	}
	reply(writer, string(data))
}

func splitCommand(line string) (string, string) {
	line = strings.TrimLeft(line, " ")
	cmd, rest, _ := strings.Cut(line, " ")
	return cmd, rest
}

func errorReply(err error) string {
	if errors.Is(err, ErrQueueNotFound) {
		return replyNotFound
	}
	return replyError + " " + err.Error()
}

func reply(writer *bufio.Writer, line string) {
	writer.WriteString(line + "\n")
	writer.Flush()
}
