package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/robertarktes/coworking-booking-engine/internal/adapters/crdb"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

const (
	DefaultInterval  = 5 * time.Second
	DefaultBatchSize = 50
	// MaxAttempts is how many relay passes a record may fail before it is
	// parked as FAILED.
	MaxAttempts = 5
)

type Source interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

type Sink interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// Publisher relays committed outbox records to the broker. Delivery is at
// least once; consumers deduplicate on MessageId.
type Publisher struct {
	repo      Source
	rabbitPub Sink
	logger    observability.Logger
	interval  time.Duration
	batchSize int
	failures  map[uuid.UUID]int
	now       func() time.Time
}

func NewPublisher(repo Source, rabbitPub Sink, logger observability.Logger, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Publisher{
		repo:      repo,
		rabbitPub: rabbitPub,
		logger:    logger,
		interval:  interval,
		batchSize: DefaultBatchSize,
		failures:  make(map[uuid.UUID]int),
		now:       time.Now,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.logger.WithError(err).Error("outbox relay pass failed")
			}
		}
	}
}

// RunOnce relays one batch and returns how many records were published.
func (p *Publisher) RunOnce(ctx context.Context) (int, error) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		observability.OutboxLag.Set(0)
		return 0, nil
	}
	observability.OutboxLag.Set(p.now().Sub(records[0].CreatedAt).Seconds())

	published := 0
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Type:        rec.EventType,
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.recordFailure(ctx, rec, err)
			continue
		}
		delete(p.failures, rec.ID)
		if err := p.repo.MarkPublished(ctx, rec.ID, p.now()); err != nil {
			p.logger.WithError(err).WithField("outbox_id", rec.ID).Error("mark outbox published")
			continue
		}
		published++
	}
	return published, nil
}

func (p *Publisher) recordFailure(ctx context.Context, rec crdb.OutboxRecord, err error) {
	p.failures[rec.ID]++
	log := p.logger.WithError(err).WithField("outbox_id", rec.ID).WithField("event_type", rec.EventType)
	if p.failures[rec.ID] < MaxAttempts {
		log.Warn("publish outbox record")
		return
	}
	delete(p.failures, rec.ID)
	if mErr := p.repo.MarkFailed(ctx, rec.ID); mErr != nil {
		log.WithField("mark_error", mErr.Error()).Error("park outbox record")
		return
	}
	log.Error("outbox record parked after repeated publish failures")
}
