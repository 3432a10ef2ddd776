package events

import (
	"context"

	"go.uber.org/zap"

	"shoestore/internal/orders"
)

// LogPublisher writes events to the application log.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event orders.Event) error {
	p.logger.Info("order event",
		zap.String("type", event.Type),
		zap.String("orderNumber", event.OrderNumber),
		zap.String("previousStatus", event.PreviousStatus),
		zap.String("currentStatus", event.CurrentStatus),
		zap.String("paymentStatus", event.PaymentStatus),
		zap.String("actorId", event.ActorID),
		zap.Time("occurredAt", event.OccurredAt),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
