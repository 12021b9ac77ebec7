package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of *amqp091.Channel the queue transport uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// QueueTransport publishes rendered messages as JSON onto per-channel queues
// for downstream workers (WhatsApp gateway, SMS provider, mailer).
type QueueTransport struct {
	publisher Publisher
	exchange  string
	queues    map[types.Channel]string
	logger    types.Logger
}

// QueueConfig wires a QueueTransport.
type QueueConfig struct {
	Publisher Publisher
	// Exchange defaults to the AMQP default exchange.
	Exchange string
	// Queues maps channels to routing keys.
	Queues map[types.Channel]string
	Logger types.Logger
}

// NewQueueTransport constructs the AMQP transport.
func NewQueueTransport(cfg QueueConfig) (*QueueTransport, error) {
	if cfg.Publisher == nil {
		return nil, errors.New("notify: amqp publisher required")
	}
	if len(cfg.Queues) == 0 {
		return nil, errors.New("notify: at least one queue required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &QueueTransport{
		publisher: cfg.Publisher,
		exchange:  cfg.Exchange,
		queues:    cfg.Queues,
		logger:    logger,
	}, nil
}

// Send implements Transport.
func (t *QueueTransport) Send(ctx context.Context, msg Message) error {
	queue, ok := t.queues[msg.Channel]
	if !ok {
		return fmt.Errorf("notify: no queue configured for channel %q", msg.Channel)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Headers: amqp091.Table{
			"message_type":     "JSON",
			"requeue_strategy": "DROP",
			"channel":          string(msg.Channel),
		},
	}
	if err := t.publisher.PublishWithContext(ctx, t.exchange, queue, false, false, publishing); err != nil {
		t.logger.Error("notify: publish failed", err, "queue", queue)
		return fmt.Errorf("notify: publish to %s: %w", queue, err)
	}
	t.logger.Debug("notify: message queued", "queue", queue, "channel", string(msg.Channel))
	return nil
}
