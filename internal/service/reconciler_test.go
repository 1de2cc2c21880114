package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-reconciler/internal/domain"
	"order-reconciler/internal/models"
)

// fakeOrderStore mimics the database's guarded updates: transitions only
// apply when the WHERE clause would have matched.
type fakeOrderStore struct {
	mu       sync.Mutex
	orders   map[string]*models.Order
	moves    map[string]int
	restocks int
	closed   map[string]string
}

func newFakeOrderStore(orders ...*models.Order) *fakeOrderStore {
	s := &fakeOrderStore{
		orders: make(map[string]*models.Order),
		moves:  make(map[string]int),
		closed: make(map[string]string),
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeOrderStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.Newf(domain.CodeOrderNotFound, "order not found: %s", id)
	}
	cp := *o
	return &cp, nil
}

func (s *fakeOrderStore) MarkOrderPaid(_ context.Context, orderID, paymentIntentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[orderID]
	if models.TerminalOrder(o.Status) {
		return false, nil
	}
	o.Status = models.OrderStatusPaid
	o.PaymentStatus = models.PaymentStatusPaid
	o.InventoryStatus = models.InventoryStatusReleased
	o.PaymentIntentID = &paymentIntentID
	return true, nil
}

func (s *fakeOrderStore) MarkOrderRefunded(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[orderID]
	if o.Status != models.OrderStatusPaid || o.PaymentStatus != models.PaymentStatusPaid {
		return false, nil
	}
	o.PaymentStatus = models.PaymentStatusRefunded
	return true, nil
}

func (s *fakeOrderStore) RestockOrderTx(_ context.Context, orderID, failureCode, failureMessage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[orderID]
	if o.StockRestored || o.Status == models.OrderStatusPaid {
		return false, nil
	}
	o.StockRestored = true
	o.Status = models.OrderStatusInventoryFailed
	o.PaymentStatus = models.PaymentStatusFailed
	o.InventoryStatus = models.InventoryStatusReleased
	o.FailureCode = &failureCode
	o.FailureMessage = &failureMessage
	s.restocks++
	return true, nil
}

func (s *fakeOrderStore) CountInventoryMoves(_ context.Context, orderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moves[orderID], nil
}

func (s *fakeOrderStore) CloseActiveAttempts(_ context.Context, orderID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[orderID] = status
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) record(t string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, t)
	return nil
}

func (p *fakePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	return p.record(e.EventType)
}
func (p *fakePublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	return p.record(e.EventType)
}
func (p *fakePublisher) PublishOrderFailed(_ context.Context, e *models.OrderFailedEvent) error {
	return p.record(e.EventType)
}
func (p *fakePublisher) PublishOrderRestocked(_ context.Context, e *models.OrderRestockedEvent) error {
	return p.record(e.EventType)
}
func (p *fakePublisher) PublishOrderRefunded(_ context.Context, e *models.OrderRefundedEvent) error {
	return p.record(e.EventType)
}

func pendingOrder(id string) *models.Order {
	return &models.Order{
		ID:               id,
		TotalAmountMinor: 1234,
		TotalAmount:      "12.34",
		Currency:         "USD",
		PaymentProvider:  models.ProviderStripe,
		PaymentStatus:    models.PaymentStatusPending,
		Status:           models.OrderStatusCreated,
		InventoryStatus:  models.InventoryStatusReserved,
	}
}

func successEvent(orderID string) *models.ProviderEvent {
	return &models.ProviderEvent{
		ID:          1,
		Provider:    models.ProviderStripe,
		Status:      models.EventStatusSuccess,
		InvoiceID:   "pi_123",
		AmountMinor: 1234,
		Reference:   orderID,
	}
}

func TestApplySuccessTransitionsOrder(t *testing.T) {
	st := newFakeOrderStore(pendingOrder("o1"))
	pub := &fakePublisher{}
	r := NewReconciler(st, pub, models.WebhookModeApply, false)

	result, err := r.ApplyEvent(context.Background(), successEvent("o1"))
	require.NoError(t, err)
	assert.Equal(t, models.AppliedResultApplied, result)

	o := st.orders["o1"]
	assert.Equal(t, models.OrderStatusPaid, o.Status)
	assert.Equal(t, models.PaymentStatusPaid, o.PaymentStatus)
	assert.Equal(t, "pi_123", *o.PaymentIntentID)
	assert.Equal(t, models.AttemptStatusSucceeded, st.closed["o1"])
	assert.Equal(t, []string{models.EventTypeOrderPaid}, pub.events)
}

func TestApplySuccessIdempotentOnPaidOrder(t *testing.T) {
	st := newFakeOrderStore(pendingOrder("o1"))
	pub := &fakePublisher{}
	r := NewReconciler(st, pub, models.WebhookModeApply, false)

	_, err := r.ApplyEvent(context.Background(), successEvent("o1"))
	require.NoError(t, err)

	// A second, distinct event reporting the same outcome.
	second := successEvent("o1")
	second.ID = 2
	result, err := r.ApplyEvent(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, models.AppliedResultDeduped, result)
	assert.Len(t, pub.events, 1)
}

func TestApplyFailureRestocksExactlyOnce(t *testing.T) {
	st := newFakeOrderStore(pendingOrder("o1"))
	st.moves["o1"] = 2
	r := NewReconciler(st, &fakePublisher{}, models.WebhookModeApply, false)

	fail := successEvent("o1")
	fail.Status = models.EventStatusFailure

	result, err := r.ApplyEvent(context.Background(), fail)
	require.NoError(t, err)
	assert.Equal(t, models.AppliedResultApplied, result)

	late := successEvent("o1")
	late.Status = models.EventStatusExpired
	late.ID = 2
	result, err = r.ApplyEvent(context.Background(), late)
	require.NoError(t, err)
	assert.Equal(t, models.AppliedResultDeduped, result)

	assert.Equal(t, 1, st.restocks)
	assert.Equal(t, domain.FailurePaymentFailed, *st.orders["o1"].FailureCode)
}

func TestLateFailureIgnoredOnPaidOrder(t *testing.T) {
	st := newFakeOrderStore(pendingOrder("o1"))
	r := NewReconciler(st, &fakePublisher{}, models.WebhookModeApply, false)

	_, err := r.ApplyEvent(context.Background(), successEvent("o1"))
	require.NoError(t, err)

	fail := successEvent("o1")
	fail.Status = models.EventStatusFailure
	fail.ID = 2
	result, err := r.ApplyEvent(context.Background(), fail)
	require.NoError(t, err)
	assert.Equal(t, models.AppliedResultDeduped, result)
	assert.Equal(t, models.OrderStatusPaid, st.orders["o1"].Status)
	assert.Zero(t, st.restocks)
}

func TestApplySuccessAmountMismatchIsPermanent(t *testing.T) {
	st := newFakeOrderStore(pendingOrder("o1"))
	r := NewReconciler(st, &fakePublisher{}, models.WebhookModeApply, false)

	ev := successEvent("o1")
	ev.AmountMinor = 999

	_, err := r.ApplyEvent(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, domain.CodeAmountMismatch, domain.CodeOf(err))
	assert.True(t, domain.Permanent(err))
	assert.Equal(t, models.OrderStatusCreated, st.orders["o1"].Status)
}

func TestApplyEventUnknownOrderIsPermanent(t *testing.T) {
	st := newFakeOrderStore()
	r := NewReconciler(st, &fakePublisher{}, models.WebhookModeApply, false)

	_, err := r.ApplyEvent(context.Background(), successEvent("missing"))
	require.Error(t, err)
	assert.Equal(t, domain.CodeOrderNotFound, domain.CodeOf(err))
	assert.True(t, domain.Permanent(err))
}

func TestStoreModeSkipsSideEffects(t *testing.T) {
	st := newFakeOrderStore(pendingOrder("o1"))
	r := NewReconciler(st, &fakePublisher{}, models.WebhookModeStore, false)

	ev := successEvent("o1")
	ev.Provider = models.ProviderMonobank

	result, err := r.ApplyEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, models.AppliedResultStored, result)
	assert.Equal(t, models.OrderStatusCreated, st.orders["o1"].Status)
}

func TestProcessingStatusIgnored(t *testing.T) {
	st := newFakeOrderStore(pendingOrder("o1"))
	r := NewReconciler(st, &fakePublisher{}, models.WebhookModeApply, false)

	ev := successEvent("o1")
	ev.Status = models.EventStatusProcessing

	result, err := r.ApplyEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, models.AppliedResultIgnored, result)
}

func TestHandleStaleOrphan(t *testing.T) {
	order := pendingOrder("o1")
	st := newFakeOrderStore(order)
	pub := &fakePublisher{}
	r := NewReconciler(st, pub, models.WebhookModeApply, false)

	code, processed, err := r.HandleStale(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, domain.FailureStaleOrphan, code)

	o := st.orders["o1"]
	assert.Equal(t, models.OrderStatusInventoryFailed, o.Status)
	assert.Equal(t, models.PaymentStatusFailed, o.PaymentStatus)
	assert.Equal(t, models.InventoryStatusReleased, o.InventoryStatus)
	assert.True(t, o.StockRestored)
	assert.Equal(t, domain.FailureStaleOrphan, *o.FailureCode)
	assert.Equal(t, "Orphan order: no inventory reservation was recorded.", *o.FailureMessage)
	assert.Equal(t, models.AttemptStatusAbandoned, st.closed["o1"])
	assert.Equal(t, []string{models.EventTypeOrderRestocked}, pub.events)
}

func TestHandleStaleWithReservationUsesTimeoutCode(t *testing.T) {
	order := pendingOrder("o1")
	st := newFakeOrderStore(order)
	st.moves["o1"] = 1
	r := NewReconciler(st, &fakePublisher{}, models.WebhookModeApply, false)

	code, processed, err := r.HandleStale(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, domain.FailureStaleTimeout, code)
}

func TestHandleStaleAlreadySettled(t *testing.T) {
	order := pendingOrder("o1")
	st := newFakeOrderStore(order)
	st.moves["o1"] = 1
	r := NewReconciler(st, &fakePublisher{}, models.WebhookModeApply, false)

	_, processed, err := r.HandleStale(context.Background(), order)
	require.NoError(t, err)
	require.True(t, processed)

	_, processed, err = r.HandleStale(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Equal(t, 1, st.restocks)
}

func TestRefundDisabled(t *testing.T) {
	st := newFakeOrderStore(pendingOrder("o1"))
	r := NewReconciler(st, &fakePublisher{}, models.WebhookModeApply, false)

	err := r.Refund(context.Background(), "o1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeRefundDisabled, domain.CodeOf(err))
}

func TestRefundRequiresPaidOrder(t *testing.T) {
	st := newFakeOrderStore(pendingOrder("o1"))
	r := NewReconciler(st, &fakePublisher{}, models.WebhookModeApply, true)

	err := r.Refund(context.Background(), "o1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeRefundNotPaid, domain.CodeOf(err))
}

func TestRefundPaidOrder(t *testing.T) {
	st := newFakeOrderStore(pendingOrder("o1"))
	pub := &fakePublisher{}
	r := NewReconciler(st, pub, models.WebhookModeApply, true)

	_, err := r.ApplyEvent(context.Background(), successEvent("o1"))
	require.NoError(t, err)

	require.NoError(t, r.Refund(context.Background(), "o1"))
	assert.Equal(t, models.PaymentStatusRefunded, st.orders["o1"].PaymentStatus)
	assert.Contains(t, pub.events, models.EventTypeOrderRefunded)
}
