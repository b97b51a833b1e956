// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/fty/metric-compute/pkg/log"
)

// Handler processes one inbound message. The server loop (spec §4.3) treats
// every subject the same way: decode, route to the aggregation map, log and
// drop on any framing error.
type Handler func(subject string, data []byte)

// Client wraps a bus connection with subscription bookkeeping. It is safe
// for concurrent use.
type Client struct {
	conn          *nats.Conn
	subscriptions []*nats.Subscription
	mu            sync.Mutex
}

// Connect dials the bus at cfg.Address and identifies itself as
// cfg.Identity (spec §6). A bus connect failure is a startup failure (spec
// §7: "Startup failure ... log fatal, exit non-zero") — the caller decides
// how to react; Connect itself only returns the error.
func Connect(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("bus: address is required")
	}

	opts := []nats.Option{nats.Name(cfg.Identity)}

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}

	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("bus: disconnected: %s", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("bus: reconnected to %s", nc.ConnectedUrl())
	}))
	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		log.Errorf("bus: error: %s", err)
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect: %w", err)
	}

	log.Infof("bus: connected to %s as %q", cfg.Address, cfg.Identity)
	return &Client{conn: nc, subscriptions: make([]*nats.Subscription, 0)}, nil
}

// Subscribe consumes every message on subject (spec §6: pattern ".*" on the
// asset stream translates to the bus's own wildcard, e.g. ">").
func (c *Client) Subscribe(subject string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("bus: subscribe to %q: %w", subject, err)
	}
	c.subscriptions = append(c.subscriptions, sub)
	log.Infof("bus: subscribed to %q", subject)
	return nil
}

// Publish sends data to subject. A publish failure is logged by the caller
// and the metric is lost (spec §7: "Bus send failure ... continue; metric
// is lost (no retry queue)").
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("bus: publish to %q: %w", subject, err)
	}
	return nil
}

// Request sends data to subject and waits for a reply, bounded by ctx.
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("bus: request to %q: %w", subject, err)
	}
	return msg.Data, nil
}

// Flush blocks until all buffered publishes have been sent.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

// IsConnected reports whether the underlying connection is up.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close unsubscribes everything and closes the connection (spec §5
// "Cancellation": "bus/SHM clients closed").
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnf("bus: unsubscribe failed: %s", err)
		}
	}
	c.subscriptions = nil

	if c.conn != nil {
		c.conn.Close()
		log.Info("bus: connection closed")
	}
}
