package rabbit

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

const (
	Exchange = "cowork.events"

	publishAttempts = 3
	publishBackoff  = 200 * time.Millisecond
)

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

// Publish sends msg under the routing key, retrying transient channel errors
// with a linear backoff.
func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	var err error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		if attempt > 0 {
			observability.RabbitPublishRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * publishBackoff):
			}
		}
		if err = p.ch.PublishWithContext(ctx, Exchange, key, false, false, msg); err == nil {
			return nil
		}
	}
	return err
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
