package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/adapters/crdb"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/adapters/rabbit"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/observability"
)

const batchSize = 50

// Publisher drains NEW outbox records to the events exchange. The
// dedupe key travels as the message id so the dispatcher can drop
// redeliveries.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Drain(ctx); err != nil {
				p.logger.Error("outbox drain failed", err)
			}
		}
	}
}

func (p *Publisher) Drain(ctx context.Context) error {
	records, err := p.repo.GetUnpublishedOutbox(ctx, batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		observability.OutboxLag.Set(0)
		return nil
	}
	observability.OutboxLag.Set(time.Since(records[0].CreatedAt).Seconds())

	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			observability.RabbitPublishRetries.Inc()
			p.logger.WithField("event_type", rec.EventType).Error("publish failed", err)
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.Error("mark published failed", err)
		}
	}
	return nil
}
