// Package audit records reservation events from the broker in the audit log.
package audit

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/robertarktes/coworking-booking-engine/internal/adapters/crdb"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

// Bindings routes every reservation lifecycle event to the audit queue.
var Bindings = []string{"reservation.*"}

const Queue = "cowork.audit"

type Sink interface {
	LogEvent(ctx context.Context, dedupeKey, action, userID string, data map[string]interface{}) error
}

type Consumer struct {
	sink   Sink
	logger observability.Logger
}

func NewConsumer(sink Sink, logger observability.Logger) *Consumer {
	return &Consumer{sink: sink, logger: logger}
}

// Run handles deliveries until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.Handle(ctx, d)
		}
	}
}

// Handle writes one delivery. Undecodable messages are dropped; sink
// failures are requeued.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	log := c.logger.WithField("message_id", d.MessageId).WithField("routing_key", d.RoutingKey)

	var ev crdb.ReservationEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		log.WithError(err).Warn("dropping undecodable event")
		_ = d.Nack(false, false)
		return
	}

	data := map[string]interface{}{
		"reservation_id": ev.ReservationID.String(),
		"listing_id":     ev.ListingID,
		"status":         ev.Status,
		"starts_at":      ev.StartsAt,
		"ends_at":        ev.EndsAt,
	}
	if ev.Currency != "" {
		data["total"] = ev.Total
		data["currency"] = ev.Currency
	}

	if err := c.sink.LogEvent(ctx, d.MessageId, d.RoutingKey, ev.UserID, data); err != nil {
		log.WithError(errors.Wrap(err, "write audit log")).Error("requeueing event")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}
