package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"order-reconciler/internal/domain"
	"order-reconciler/internal/models"
	"order-reconciler/internal/util"
)

type reconcilerStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, orderID, paymentIntentID string) (bool, error)
	MarkOrderRefunded(ctx context.Context, orderID string) (bool, error)
	RestockOrderTx(ctx context.Context, orderID, failureCode, failureMessage string) (bool, error)
	CountInventoryMoves(ctx context.Context, orderID string) (int, error)
	CloseActiveAttempts(ctx context.Context, orderID, status string) error
}

// Reconciler drives each order to exactly one terminal state. Every
// transition is checked against current order state through guarded
// updates, never against "first time this event was seen": event-level
// dedup is necessary but two distinct events can report the same outcome.
type Reconciler struct {
	store          reconcilerStore
	publisher      Publisher
	monobankMode   string
	refundsEnabled bool
	logger         *zap.Logger
}

func NewReconciler(store reconcilerStore, publisher Publisher, monobankMode string, refundsEnabled bool) *Reconciler {
	return &Reconciler{
		store:          store,
		publisher:      publisher,
		monobankMode:   monobankMode,
		refundsEnabled: refundsEnabled,
		logger:         util.GetLogger(),
	}
}

// ApplyEvent applies one claimed provider event to its order and returns
// the applied result. It is safe to re-run partially: a crashed worker's
// reclaimed event converges on the same terminal order state.
func (r *Reconciler) ApplyEvent(ctx context.Context, ev *models.ProviderEvent) (string, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.ApplyEvent")
	defer span.End()

	start := time.Now()
	defer func() {
		util.EventApplyLatency.Observe(time.Since(start).Seconds())
	}()

	// The store/drop switch sits here, immediately before state mutation.
	// Shadow-stored events close with a distinct result so they stay
	// identifiable (and replayable by resetting applied_at) after the mode
	// is flipped to apply.
	if ev.Provider == models.ProviderMonobank && r.monobankMode == models.WebhookModeStore {
		return models.AppliedResultStored, nil
	}

	if ev.Reference == "" {
		r.logger.Warn("Event carries no order reference",
			zap.Int64("event_id", ev.ID),
			zap.String("provider", ev.Provider))
		return models.AppliedResultIgnored, nil
	}

	order, err := r.store.GetOrderByID(ctx, ev.Reference)
	if err != nil {
		return "", err
	}

	switch ev.Status {
	case models.EventStatusSuccess:
		return r.applySuccess(ctx, order, ev)
	case models.EventStatusFailure, models.EventStatusExpired:
		return r.applyFailure(ctx, order, ev)
	default:
		// created/processing notifications carry no transition.
		return models.AppliedResultIgnored, nil
	}
}

func (r *Reconciler) applySuccess(ctx context.Context, order *models.Order, ev *models.ProviderEvent) (string, error) {
	if ev.AmountMinor > 0 && ev.AmountMinor != order.TotalAmountMinor {
		return "", domain.Newf(domain.CodeAmountMismatch,
			"event reports %d minor units, order %s totals %d",
			ev.AmountMinor, order.ID, order.TotalAmountMinor)
	}

	changed, err := r.store.MarkOrderPaid(ctx, order.ID, ev.InvoiceID)
	if err != nil {
		return "", err
	}
	if !changed {
		// Already terminal: a redelivered or second success signal.
		return models.AppliedResultDeduped, nil
	}

	if err := r.store.CloseActiveAttempts(ctx, order.ID, models.AttemptStatusSucceeded); err != nil {
		r.logger.Error("Failed to close attempts after payment",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	util.OrdersPaidTotal.Inc()
	r.logger.Info("Order paid",
		zap.String("order_id", order.ID),
		zap.String("provider", ev.Provider),
		zap.String("invoice_id", ev.InvoiceID))

	r.publish(ctx, func() error {
		return r.publisher.PublishOrderPaid(ctx, &models.OrderPaidEvent{
			BaseEvent:       newBaseEvent(models.EventTypeOrderPaid),
			OrderID:         order.ID,
			Provider:        ev.Provider,
			PaymentIntentID: ev.InvoiceID,
			AmountMinor:     order.TotalAmountMinor,
		})
	})

	return models.AppliedResultApplied, nil
}

func (r *Reconciler) applyFailure(ctx context.Context, order *models.Order, ev *models.ProviderEvent) (string, error) {
	if models.TerminalOrder(order.Status) {
		// Late failure signal for a settled order.
		return models.AppliedResultDeduped, nil
	}

	restocked, err := r.store.RestockOrderTx(ctx, order.ID,
		domain.FailurePaymentFailed, "Payment failed or expired at the provider.")
	if err != nil {
		return "", err
	}
	if !restocked {
		return models.AppliedResultDeduped, nil
	}

	if err := r.store.CloseActiveAttempts(ctx, order.ID, models.AttemptStatusFailed); err != nil {
		r.logger.Error("Failed to close attempts after failure",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	util.OrdersFailedTotal.WithLabelValues("payment_failed").Inc()
	util.InventoryRestocksTotal.WithLabelValues("payment_failed").Inc()
	r.logger.Info("Order failed, stock restored",
		zap.String("order_id", order.ID),
		zap.String("provider", ev.Provider))

	r.publish(ctx, func() error {
		return r.publisher.PublishOrderFailed(ctx, &models.OrderFailedEvent{
			BaseEvent:   newBaseEvent(models.EventTypeOrderFailed),
			OrderID:     order.ID,
			FailureCode: domain.FailurePaymentFailed,
			Reason:      ev.Status,
		})
	})

	return models.AppliedResultApplied, nil
}

// HandleStale forces a claimed stale order to its failed terminal state.
// Returns the failure code used and whether this call performed the work.
func (r *Reconciler) HandleStale(ctx context.Context, order *models.Order) (string, bool, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleStale")
	defer span.End()

	moves, err := r.store.CountInventoryMoves(ctx, order.ID)
	if err != nil {
		return "", false, err
	}

	code := domain.FailureStaleTimeout
	message := "Order timed out awaiting payment."
	if order.InventoryStatus == models.InventoryStatusReserved && moves == 0 {
		// Reserved with no audit trail: a crashed checkout left this
		// order orphaned. Flagged distinctly for monitoring.
		code = domain.FailureStaleOrphan
		message = "Orphan order: no inventory reservation was recorded."
	}

	restocked, err := r.store.RestockOrderTx(ctx, order.ID, code, message)
	if err != nil {
		return code, false, err
	}
	if !restocked {
		return code, false, nil
	}

	if err := r.store.CloseActiveAttempts(ctx, order.ID, models.AttemptStatusAbandoned); err != nil {
		r.logger.Error("Failed to close attempts for stale order",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	kind := "stale"
	if code == domain.FailureStaleOrphan {
		kind = "orphan"
	}
	util.InventoryRestocksTotal.WithLabelValues(kind).Inc()

	r.publish(ctx, func() error {
		return r.publisher.PublishOrderRestocked(ctx, &models.OrderRestockedEvent{
			BaseEvent:   newBaseEvent(models.EventTypeOrderRestocked),
			OrderID:     order.ID,
			FailureCode: code,
			Orphan:      code == domain.FailureStaleOrphan,
		})
	})

	return code, true, nil
}

// Refund flips a paid order to refunded. Provider-gated: when the feature
// flag is off the caller gets REFUND_DISABLED without any state change.
func (r *Reconciler) Refund(ctx context.Context, orderID string) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.Refund")
	defer span.End()

	if !r.refundsEnabled {
		return domain.New(domain.CodeRefundDisabled, "refunds are disabled")
	}

	order, err := r.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	changed, err := r.store.MarkOrderRefunded(ctx, orderID)
	if err != nil {
		return err
	}
	if !changed {
		return domain.Newf(domain.CodeRefundNotPaid,
			"order %s is not in a refundable state", orderID)
	}

	util.OrdersRefundedTotal.Inc()
	r.logger.Info("Order refunded", zap.String("order_id", orderID))

	r.publish(ctx, func() error {
		return r.publisher.PublishOrderRefunded(ctx, &models.OrderRefundedEvent{
			BaseEvent:   newBaseEvent(models.EventTypeOrderRefunded),
			OrderID:     orderID,
			AmountMinor: order.TotalAmountMinor,
		})
	})
	return nil
}

// publish runs fn and logs instead of failing the transition: outbound
// events are informational, the database is the source of truth.
func (r *Reconciler) publish(ctx context.Context, fn func() error) {
	if r.publisher == nil {
		return
	}
	if err := fn(); err != nil {
		r.logger.Error("Failed to publish domain event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
