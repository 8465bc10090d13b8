// Package bus wraps the external NATS connection with the queue-group
// consumer and retrying publisher the engine needs.
package bus

import (
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Handler processes one raw message. It never returns an error to the
// caller in a way that blocks the subscription: the handler counts its own
// failures (Router does), and Consumer only recovers and logs a panicking
// handler, per spec's "never propagate" error policy for intake.
type Handler func(subject string, data []byte)

// Consumer subscribes to a single subject with a queue group so that N
// replicas cooperatively receive each message exactly once across the
// group, per the mandatory queue-group contract.
type Consumer struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	logger  *zap.Logger
	subject string
	group   string
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	URL     string
	Subject string
	Group   string
}

// NewConsumer dials the bus and returns an unsubscribed Consumer. Connect
// retries and reconnection are handled by the underlying nats.go client
// via nats.ReconnectWait/nats.MaxReconnects, matching the "reconnect with
// backoff, auto-resubscribe" failure policy.
func NewConsumer(cfg ConsumerConfig, logger *zap.Logger) (*Consumer, error) {
	logger = logger.Named("bus.consumer")

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("bus disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("bus reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		conn:    conn,
		logger:  logger,
		subject: cfg.Subject,
		group:   cfg.Group,
	}, nil
}

// Run subscribes with the queue group and processes messages one at a
// time, in delivery order, handing each to handle synchronously before
// pulling the next: the single-threaded cooperative dispatch model.
// Run blocks until stop is closed.
func (c *Consumer) Run(handle Handler, stop <-chan struct{}) error {
	msgs := make(chan *nats.Msg, 1)

	sub, err := c.conn.QueueSubscribe(c.subject, c.group, func(m *nats.Msg) {
		msgs <- m
	})
	if err != nil {
		return err
	}
	c.sub = sub

	c.logger.Info("subscribed",
		zap.String("subject", c.subject),
		zap.String("group", c.group),
	)

	for {
		select {
		case <-stop:
			return c.sub.Unsubscribe()
		case m := <-msgs:
			c.dispatchSafely(handle, m)
		}
	}
}

// dispatchSafely recovers a panicking handler at the dispatch boundary and
// keeps the consume loop alive, per the "unrecoverable panic caught at the
// dispatch boundary" error policy.
func (c *Consumer) dispatchSafely(handle Handler, m *nats.Msg) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic recovered in dispatch",
				zap.String("subject", m.Subject),
				zap.Any("panic", r),
			)
		}
	}()
	handle(m.Subject, m.Data)
}

// Conn exposes the underlying NATS connection so a Publisher can share it,
// since nats.Conn is safe for concurrent use across goroutines.
func (c *Consumer) Conn() *nats.Conn {
	return c.conn
}

// Close unsubscribes and closes the connection.
func (c *Consumer) Close() {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	c.conn.Close()
}
