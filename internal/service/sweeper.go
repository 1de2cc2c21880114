package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"order-reconciler/internal/domain"
	"order-reconciler/internal/models"
	"order-reconciler/internal/util"
)

// Clamp bounds for the stale threshold: never sweep orders that are likely
// still mid-checkout, never configure the sweeper into a no-op.
const (
	MinOlderThanMinutes = 10
	MaxOlderThanMinutes = 10080
)

// SweepParams configures one sweep invocation. Zero values fall back to
// the configured defaults.
type SweepParams struct {
	OlderThanMinutes int `json:"older_than_minutes"`
	BatchSize        int `json:"batch_size"`
	ClaimTTLMinutes  int `json:"claim_ttl_minutes"`
}

// SweepReport summarizes one sweep invocation.
type SweepReport struct {
	Claimed   int `json:"claimed"`
	Restocked int `json:"restocked"`
	Orphans   int `json:"orphans"`
	Skipped   int `json:"skipped"`
}

type sweeperStore interface {
	ClaimStaleOrders(ctx context.Context, claimedBy string, olderThan time.Duration, batchSize int, claimTTL time.Duration) ([]models.Order, error)
	ReleaseSweepClaim(ctx context.Context, orderID string) error
}

type staleHandler interface {
	HandleStale(ctx context.Context, order *models.Order) (string, bool, error)
}

// Sweeper finds orders stuck pending past the threshold and forces them to
// a terminal state through the reconciler.
type Sweeper struct {
	store    sweeperStore
	handler  staleHandler
	workerID string
	defaults SweepParams
	logger   *zap.Logger
}

func NewSweeper(store sweeperStore, handler staleHandler, workerID string, defaults SweepParams) *Sweeper {
	return &Sweeper{
		store:    store,
		handler:  handler,
		workerID: workerID,
		defaults: defaults,
		logger:   util.GetLogger(),
	}
}

// ClampOlderThan bounds the threshold to [MinOlderThanMinutes, MaxOlderThanMinutes].
func ClampOlderThan(minutes int) int {
	if minutes < MinOlderThanMinutes {
		return MinOlderThanMinutes
	}
	if minutes > MaxOlderThanMinutes {
		return MaxOlderThanMinutes
	}
	return minutes
}

// RestockStalePendingOrders claims a batch of stale orders and drives each
// to its failed terminal state. Concurrent invocations split the batch via
// the claim; an order another invocation already settled counts as skipped.
func (s *Sweeper) RestockStalePendingOrders(ctx context.Context, params SweepParams) (*SweepReport, error) {
	ctx, span := util.StartSpan(ctx, "Sweeper.RestockStalePendingOrders")
	defer span.End()

	util.SweepRunsTotal.Inc()

	if params.OlderThanMinutes == 0 {
		params.OlderThanMinutes = s.defaults.OlderThanMinutes
	}
	if params.BatchSize <= 0 {
		params.BatchSize = s.defaults.BatchSize
	}
	if params.ClaimTTLMinutes <= 0 {
		params.ClaimTTLMinutes = s.defaults.ClaimTTLMinutes
	}
	params.OlderThanMinutes = ClampOlderThan(params.OlderThanMinutes)

	orders, err := s.store.ClaimStaleOrders(ctx, s.workerID,
		time.Duration(params.OlderThanMinutes)*time.Minute,
		params.BatchSize,
		time.Duration(params.ClaimTTLMinutes)*time.Minute)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Claimed: len(orders)}
	for i := range orders {
		order := &orders[i]

		code, processed, err := s.handler.HandleStale(ctx, order)
		if err != nil {
			s.logger.Error("Failed to sweep stale order",
				zap.String("order_id", order.ID), zap.Error(err))
			// Claim stays until its TTL; the next run retries.
			continue
		}
		if !processed {
			report.Skipped++
		} else {
			report.Restocked++
			if code == domain.FailureStaleOrphan {
				report.Orphans++
				util.SweepRestockedTotal.WithLabelValues("orphan").Inc()
			} else {
				util.SweepRestockedTotal.WithLabelValues("stale").Inc()
			}
		}

		if err := s.store.ReleaseSweepClaim(ctx, order.ID); err != nil {
			s.logger.Error("Failed to release sweep claim",
				zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	s.logger.Info("Sweep completed",
		zap.Int("claimed", report.Claimed),
		zap.Int("restocked", report.Restocked),
		zap.Int("orphans", report.Orphans),
		zap.Int("older_than_minutes", params.OlderThanMinutes))
	return report, nil
}
