package service

import (
	"context"

	"order-reconciler/internal/models"
)

// Publisher is the outbound event sink. *broker.EventPublisher satisfies it;
// tests substitute a recorder.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
	PublishOrderRestocked(ctx context.Context, event *models.OrderRestockedEvent) error
	PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error
}
