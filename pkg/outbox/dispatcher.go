package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RawPublisher is the broker side of the dispatcher, satisfied by mq.Publisher.
type RawPublisher interface {
	PublishRaw(routingKey string, body []byte) error
}

// Dispatcher polls the outbox table and relays pending events to the broker.
type Dispatcher struct {
	repo       *Repository
	publisher  RawPublisher
	logger     *zap.Logger
	interval   time.Duration
	batchSize  int
	maxRetries int
}

func NewDispatcher(repo *Repository, publisher RawPublisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		publisher:  publisher,
		logger:     logger,
		interval:   2 * time.Second,
		batchSize:  50,
		maxRetries: 5,
	}
}

// Run blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("Outbox dispatcher started", zap.Duration("interval", d.interval))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			d.dispatchBatch(ctx)
		}
	}
}

func (d *Dispatcher) dispatchBatch(ctx context.Context) {
	events, err := d.repo.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("failed to load pending outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := d.publisher.PublishRaw(event.RoutingKey, event.Payload); err != nil {
			d.logger.Error("failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)
			if err := d.repo.MarkAsFailed(ctx, event.ID, d.maxRetries); err != nil {
				d.logger.Error("failed to mark outbox event failed", zap.Int64("event_id", event.ID), zap.Error(err))
			}
			continue
		}

		if err := d.repo.MarkAsSent(ctx, event.ID); err != nil {
			d.logger.Error("failed to mark outbox event sent", zap.Int64("event_id", event.ID), zap.Error(err))
		}
	}
}
