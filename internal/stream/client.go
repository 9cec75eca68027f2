// Package stream wraps the NATS JetStream connection shared by both services.
//
// It owns the stream topology (a single durable AUDIT stream), JSON publishing,
// and durable subscriptions. Connections reconnect forever; saga correctness
// relies on the stream's at-least-once delivery, not connection stability.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Client is a JetStream-enabled NATS connection.
type Client struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *slog.Logger
}

// Connect dials the NATS server. The connection retries forever with the
// given wait between attempts, both at startup and after a drop; in-flight
// sagas ride out short broker outages via their own ack timeout.
func Connect(url string, reconnectWait time.Duration, logger *slog.Logger) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("stream: connect %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("stream: jetstream context: %w", err)
	}

	return &Client{nc: nc, js: js, logger: logger}, nil
}

// EnsureStream creates the AUDIT stream if it does not exist, or updates its
// configuration if it does. Safe to call from both services at startup.
func (c *Client) EnsureStream() error {
	cfg := &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{StreamSubjects},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    StreamMaxAge,
	}

	_, err := c.js.AddStream(cfg)
	if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		_, err = c.js.UpdateStream(cfg)
	}
	if err != nil {
		return fmt.Errorf("stream: ensure stream %s: %w", StreamName, err)
	}
	c.logger.Info("stream ready", "stream", StreamName, "subjects", StreamSubjects)
	return nil
}

// Publish marshals v as JSON and publishes it to the stream, waiting for the
// JetStream persistence acknowledgement.
func (c *Client) Publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stream: marshal %s payload: %w", subject, err)
	}
	if _, err := c.js.Publish(subject, data); err != nil {
		return fmt.Errorf("stream: publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe creates a durable push subscription delivering new messages to
// handler. Used for the low-latency ack path; acks are manual.
func (c *Client) Subscribe(subject, durable string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.js.Subscribe(subject, handler,
		nats.Durable(durable),
		nats.ManualAck(),
		nats.DeliverNew(),
		nats.BindStream(StreamName),
	)
	if err != nil {
		return nil, fmt.Errorf("stream: subscribe %s (%s): %w", subject, durable, err)
	}
	return sub, nil
}

// PullSubscribe creates a durable pull subscription for batch processing.
func (c *Client) PullSubscribe(subject, durable string) (*nats.Subscription, error) {
	sub, err := c.js.PullSubscribe(subject, durable, nats.BindStream(StreamName))
	if err != nil {
		return nil, fmt.Errorf("stream: pull subscribe %s (%s): %w", subject, durable, err)
	}
	return sub, nil
}

// Connected reports whether the underlying connection is currently up.
func (c *Client) Connected() bool {
	return c.nc.IsConnected()
}

// Drain flushes pending messages and subscriptions, then closes the
// connection. Used during graceful shutdown.
func (c *Client) Drain() error {
	if err := c.nc.Drain(); err != nil {
		return fmt.Errorf("stream: drain: %w", err)
	}
	return nil
}

// Close terminates the connection immediately.
func (c *Client) Close() {
	c.nc.Close()
}
