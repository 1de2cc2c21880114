package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-reconciler/internal/domain"
	"order-reconciler/internal/models"
)

// fakeSweepStore hands out claims the way the database does: an order goes
// to exactly one claimant until its claim is released or expires.
type fakeSweepStore struct {
	mu      sync.Mutex
	stale   []models.Order
	claimed map[string]string
}

func newFakeSweepStore(orders ...models.Order) *fakeSweepStore {
	return &fakeSweepStore{stale: orders, claimed: make(map[string]string)}
}

func (s *fakeSweepStore) ClaimStaleOrders(_ context.Context, claimedBy string, _ time.Duration, batchSize int, _ time.Duration) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.stale {
		if len(out) >= batchSize {
			break
		}
		if _, taken := s.claimed[o.ID]; taken {
			continue
		}
		s.claimed[o.ID] = claimedBy
		out = append(out, o)
	}
	return out, nil
}

func (s *fakeSweepStore) ReleaseSweepClaim(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, orderID)
	return nil
}

type recordingHandler struct {
	mu        sync.Mutex
	processed map[string]int
	code      string
}

func (h *recordingHandler) HandleStale(_ context.Context, order *models.Order) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.processed == nil {
		h.processed = make(map[string]int)
	}
	// First caller wins, mirroring the guarded restock update.
	if h.processed[order.ID] > 0 {
		h.processed[order.ID]++
		return h.code, false, nil
	}
	h.processed[order.ID]++
	return h.code, true, nil
}

func TestClampOlderThan(t *testing.T) {
	assert.Equal(t, MinOlderThanMinutes, ClampOlderThan(0))
	assert.Equal(t, MinOlderThanMinutes, ClampOlderThan(5))
	assert.Equal(t, 60, ClampOlderThan(60))
	assert.Equal(t, MaxOlderThanMinutes, ClampOlderThan(20000))
}

func TestSweepReportsOrphansSeparately(t *testing.T) {
	st := newFakeSweepStore(
		models.Order{ID: "o1", Status: models.OrderStatusCreated},
		models.Order{ID: "o2", Status: models.OrderStatusCreated},
	)
	h := &recordingHandler{code: domain.FailureStaleOrphan}
	sw := NewSweeper(st, h, "worker-a", SweepParams{OlderThanMinutes: 60, BatchSize: 50, ClaimTTLMinutes: 5})

	report, err := sw.RestockStalePendingOrders(context.Background(), SweepParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Claimed)
	assert.Equal(t, 2, report.Restocked)
	assert.Equal(t, 2, report.Orphans)
	assert.Zero(t, report.Skipped)
	assert.Empty(t, st.claimed)
}

func TestConcurrentSweepsProcessEachOrderOnce(t *testing.T) {
	st := newFakeSweepStore(models.Order{ID: "o1", Status: models.OrderStatusCreated})
	h := &recordingHandler{code: domain.FailureStaleTimeout}
	defaults := SweepParams{OlderThanMinutes: 60, BatchSize: 50, ClaimTTLMinutes: 5}
	swA := NewSweeper(st, h, "worker-a", defaults)
	swB := NewSweeper(st, h, "worker-b", defaults)

	var wg sync.WaitGroup
	reports := make([]*SweepReport, 2)
	for i, sw := range []*Sweeper{swA, swB} {
		wg.Add(1)
		go func(i int, sw *Sweeper) {
			defer wg.Done()
			r, err := sw.RestockStalePendingOrders(context.Background(), SweepParams{})
			assert.NoError(t, err)
			reports[i] = r
		}(i, sw)
	}
	wg.Wait()

	assert.Equal(t, 1, reports[0].Restocked+reports[1].Restocked)
	assert.Equal(t, 1, h.processed["o1"])
}

func TestSweepSkipsAlreadySettledOrder(t *testing.T) {
	st := newFakeSweepStore(models.Order{ID: "o1", Status: models.OrderStatusCreated})
	h := &recordingHandler{code: domain.FailureStaleTimeout, processed: map[string]int{"o1": 1}}
	sw := NewSweeper(st, h, "worker-a", SweepParams{OlderThanMinutes: 60, BatchSize: 50, ClaimTTLMinutes: 5})

	report, err := sw.RestockStalePendingOrders(context.Background(), SweepParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Claimed)
	assert.Zero(t, report.Restocked)
	assert.Equal(t, 1, report.Skipped)
}

func TestSweepRespectsBatchSize(t *testing.T) {
	st := newFakeSweepStore(
		models.Order{ID: "o1"}, models.Order{ID: "o2"}, models.Order{ID: "o3"},
	)
	h := &recordingHandler{code: domain.FailureStaleTimeout}
	sw := NewSweeper(st, h, "worker-a", SweepParams{OlderThanMinutes: 60, BatchSize: 50, ClaimTTLMinutes: 5})

	report, err := sw.RestockStalePendingOrders(context.Background(), SweepParams{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Claimed)
	assert.Equal(t, 2, report.Restocked)
}
