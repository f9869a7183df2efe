package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/m7moud/notification-queue/internal/queue"
)

type flags struct {
	addr    string
	timeout time.Duration
	label   string
	max     int
}

func newApp(out io.Writer) *cli.Command {
	f := &flags{}

	return &cli.Command{
		Name:      "queuectl",
		Usage:     "Inspect and drive a running queue server",
		UsageText: "queuectl [global options] command [command options]",
		Description: `queuectl speaks the line protocol of the queue server.

Examples:
  queuectl create Orders
  queuectl send Orders '{"id":1}' --label "new order"
  queuectl recv Orders --max 5
  queuectl ls`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Aliases:     []string{"a"},
				Usage:       "queue server address",
				Sources:     cli.EnvVars("QUEUE_ADDR"),
				Value:       "localhost:8080",
				Destination: &f.addr,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "per-command timeout",
				Value:       5 * time.Second,
				Destination: &f.timeout,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a queue",
				UsageText: "queuectl create <name>",
				Action: withClient(f, func(ctx context.Context, c *cli.Command, client *queue.QueueClient) error {
					name, err := nameArg(c)
					if err != nil {
						return err
					}
					if err := client.Create(ctx, name); err != nil {
						return errors.Wrapf(err, "create %s", name)
					}
					fmt.Fprintln(out, "OK")
					return nil
				}),
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a queue and drop its messages",
				UsageText: "queuectl delete <name>",
				Action: withClient(f, func(ctx context.Context, c *cli.Command, client *queue.QueueClient) error {
					name, err := nameArg(c)
					if err != nil {
						return err
					}
					if err := client.Delete(ctx, name); err != nil {
						return errors.Wrapf(err, "delete %s", name)
					}
					fmt.Fprintln(out, "OK")
					return nil
				}),
			},
			{
				Name:      "send",
				Usage:     "Send a message",
				UsageText: "queuectl send <name> <body> [--label <label>]",
				Description: `Sends body to the named queue. A body that is not valid JSON
is sent as a JSON string.`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "label",
						Aliases:     []string{"l"},
						Usage:       "message label",
						Destination: &f.label,
					},
				},
				Action: withClient(f, func(ctx context.Context, c *cli.Command, client *queue.QueueClient) error {
					name, err := nameArg(c)
					if err != nil {
						return err
					}
					if c.Args().Len() < 2 {
						return fmt.Errorf("message body is required")
					}
					body, err := encodeBody(strings.Join(c.Args().Slice()[1:], " "))
					if err != nil {
						return err
					}
					id, err := client.Send(ctx, name, body, f.label)
					if err != nil {
						return errors.Wrapf(err, "send to %s", name)
					}
					fmt.Fprintf(out, "OK %d\n", id)
					return nil
				}),
			},
			{
				Name:      "recv",
				Usage:     "Receive messages as JSON lines",
				UsageText: "queuectl recv <name> [--max <n>]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:        "max",
						Aliases:     []string{"n"},
						Usage:       "maximum number of messages to receive",
						Value:       1,
						Destination: &f.max,
					},
				},
				Action: withClient(f, func(ctx context.Context, c *cli.Command, client *queue.QueueClient) error {
					name, err := nameArg(c)
					if err != nil {
						return err
					}
					encoder := json.NewEncoder(out)
					for range max(f.max, 1) {
						msg, err := client.Receive(ctx, name)
						if err != nil {
							return errors.Wrapf(err, "receive from %s", name)
						}
						if msg == nil {
							break
						}
						if err := encoder.Encode(msg); err != nil {
							return err
						}
					}
					return nil
				}),
			},
			{
				Name:      "count",
				Usage:     "Print the number of pending messages",
				UsageText: "queuectl count <name>",
				Action: withClient(f, func(ctx context.Context, c *cli.Command, client *queue.QueueClient) error {
					name, err := nameArg(c)
					if err != nil {
						return err
					}
					n, err := client.Count(ctx, name)
					if err != nil {
						return errors.Wrapf(err, "count %s", name)
					}
					fmt.Fprintln(out, n)
					return nil
				}),
			},
			{
				Name:    "ls",
				Aliases: []string{"list"},
				Usage:   "List queues with their depth and counters",
				Action: withClient(f, func(ctx context.Context, c *cli.Command, client *queue.QueueClient) error {
					stats, err := client.List(ctx)
					if err != nil {
						return errors.Wrap(err, "list queues")
					}
					for _, s := range stats {
						fmt.Fprintf(out, "%s\t%d\tsent=%d\treceived=%d\n", s.Name, s.Count, s.Sent, s.Received)
					}
					return nil
				}),
			},
		},
	}
}

type clientAction func(ctx context.Context, c *cli.Command, client *queue.QueueClient) error

// withClient dials the server for the duration of one command.
func withClient(f *flags, action clientAction) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		client, err := queue.NewQueueClient(f.addr)
		if err != nil {
			return errors.Wrapf(err, "connect to %s", f.addr)
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		return action(ctx, c, client)
	}
}

func nameArg(c *cli.Command) (string, error) {
	name := c.Args().First()
	if name == "" {
		return "", fmt.Errorf("queue name is required")
	}
	return name, nil
}

func encodeBody(raw string) (json.RawMessage, error) {
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw), nil
	}
	return json.Marshal(raw)
}
