package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"order-reconciler/internal/domain"
	"order-reconciler/internal/models"
	"order-reconciler/internal/service"
	"order-reconciler/internal/util"
)

type eventStore interface {
	ClaimNextEvent(ctx context.Context, claimedBy string, ttl time.Duration) (*models.ProviderEvent, error)
	MarkEventApplied(ctx context.Context, eventID int64, result string) error
	MarkEventFailed(ctx context.Context, eventID int64, code, message string, permanent bool) error
}

// EventWorker drains the provider event queue: claim one event, apply it
// through the reconciler, record the outcome. The claim lease bounds how
// long a crashed worker can stall an event; application is idempotent so
// reclaimed events are safe to re-run.
type EventWorker struct {
	store      eventStore
	reconciler *service.Reconciler
	workerID   string
	claimTTL   time.Duration
	pollEvery  time.Duration
	logger     *zap.Logger
	done       chan struct{}
}

func NewEventWorker(store eventStore, reconciler *service.Reconciler, workerID string, claimTTL, pollEvery time.Duration) *EventWorker {
	return &EventWorker{
		store:      store,
		reconciler: reconciler,
		workerID:   workerID,
		claimTTL:   claimTTL,
		pollEvery:  pollEvery,
		logger:     util.GetLogger(),
		done:       make(chan struct{}),
	}
}

// Start runs the claim loop until the context is cancelled.
func (w *EventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting event worker", zap.String("worker_id", w.workerID))
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Event worker stopping")
			return ctx.Err()
		default:
		}

		ev, err := w.store.ClaimNextEvent(ctx, w.workerID, w.claimTTL)
		if err != nil {
			w.logger.Error("Failed to claim event", zap.Error(err))
			w.sleep(ctx, w.pollEvery)
			continue
		}
		if ev == nil {
			// Nothing claimable: not an error, just nothing to do.
			w.sleep(ctx, w.pollEvery)
			continue
		}

		util.EventsClaimedTotal.Inc()
		w.process(ctx, ev)
	}
}

func (w *EventWorker) process(ctx context.Context, ev *models.ProviderEvent) {
	result, err := w.reconciler.ApplyEvent(ctx, ev)
	if err != nil {
		code := domain.CodeOf(err)
		permanent := domain.Permanent(err)
		w.logger.Error("Failed to apply event",
			zap.Int64("event_id", ev.ID),
			zap.String("provider", ev.Provider),
			zap.String("code", code),
			zap.Bool("permanent", permanent),
			zap.Error(err))

		if markErr := w.store.MarkEventFailed(ctx, ev.ID, code, err.Error(), permanent); markErr != nil {
			w.logger.Error("Failed to record event failure",
				zap.Int64("event_id", ev.ID), zap.Error(markErr))
		}
		if permanent {
			util.EventsAppliedTotal.WithLabelValues(models.AppliedResultFailed).Inc()
		}
		return
	}

	if err := w.store.MarkEventApplied(ctx, ev.ID, result); err != nil {
		w.logger.Error("Failed to mark event applied",
			zap.Int64("event_id", ev.ID), zap.Error(err))
		return
	}
	util.EventsAppliedTotal.WithLabelValues(result).Inc()
}

func (w *EventWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Wait blocks until the worker loop has exited.
func (w *EventWorker) Wait() {
	<-w.done
}
