package bus

import (
	"encoding/json"

	"github.com/atlas-desktop/signal-engine/pkg/utils"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher publishes JSON-encoded messages to a single outbound subject
// with bounded retry and exponential backoff. Fire-and-forget from the
// caller's viewpoint: Publish never blocks past the retry budget.
type Publisher struct {
	conn    *nats.Conn
	subject string
	retry   utils.RetryConfig
	logger  *zap.Logger
}

// NewPublisher builds a Publisher over an existing connection (typically
// shared with the Consumer's, since nats.Conn is safe for concurrent use).
func NewPublisher(conn *nats.Conn, subject string, logger *zap.Logger) *Publisher {
	return &Publisher{
		conn:    conn,
		subject: subject,
		retry:   utils.DefaultRetryConfig(),
		logger:  logger.Named("bus.publisher"),
	}
}

// Publish marshals v to JSON and publishes it, retrying with exponential
// backoff on transient failure. Returns the final error if every attempt
// failed; the caller increments its own publish-error counter in that
// case, since the publisher itself has no metrics dependency.
func (p *Publisher) Publish(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = utils.Retry(p.retry, func() (struct{}, error) {
		return struct{}{}, p.conn.Publish(p.subject, data)
	})
	if err != nil {
		p.logger.Error("publish failed after retries",
			zap.String("subject", p.subject),
			zap.Error(err),
		)
	}
	return err
}
