package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-reconciler/internal/domain"
	"order-reconciler/internal/models"
)

type fakeAttemptStore struct {
	nextNo  int
	active  bool
	created []models.PaymentAttempt
}

func (s *fakeAttemptStore) NextAttemptNo(_ context.Context, _, _ string) (int, error) {
	return s.nextNo, nil
}

func (s *fakeAttemptStore) CreateAttempt(_ context.Context, orderID, provider, idempotencyKey string, attemptNo int) (*models.PaymentAttempt, error) {
	if s.active {
		return nil, domain.Newf(domain.CodeAttemptActive,
			"order %s already has an active %s attempt", orderID, provider)
	}
	a := models.PaymentAttempt{
		OrderID:        orderID,
		Provider:       provider,
		IdempotencyKey: idempotencyKey,
		AttemptNo:      attemptNo,
		Status:         models.AttemptStatusPending,
	}
	s.created = append(s.created, a)
	return &a, nil
}

func TestAttemptKeysAreNamespacedPerProvider(t *testing.T) {
	stripe := BuildAttemptIdempotencyKey(models.ProviderStripe, "o1", 1)
	mono := BuildAttemptIdempotencyKey(models.ProviderMonobank, "o1", 1)
	assert.NotEqual(t, stripe, mono)

	// Every component participates in the key.
	assert.NotEqual(t, stripe, BuildAttemptIdempotencyKey(models.ProviderStripe, "o2", 1))
	assert.NotEqual(t, stripe, BuildAttemptIdempotencyKey(models.ProviderStripe, "o1", 2))
	assert.NotEqual(t, mono, BuildAttemptIdempotencyKey(models.ProviderMonobank, "o1", 2))
}

func TestStartAttemptCreatesNextAttempt(t *testing.T) {
	st := &fakeAttemptStore{nextNo: 3}
	tr := NewAttemptTracker(st, 5)

	attempt, err := tr.StartAttempt(context.Background(), "o1", models.ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, 3, attempt.AttemptNo)
	assert.Equal(t, BuildAttemptIdempotencyKey(models.ProviderStripe, "o1", 3), attempt.IdempotencyKey)
	assert.Equal(t, models.AttemptStatusPending, attempt.Status)
}

func TestStartAttemptBudgetExhausted(t *testing.T) {
	st := &fakeAttemptStore{nextNo: 6}
	tr := NewAttemptTracker(st, 5)

	_, err := tr.StartAttempt(context.Background(), "o1", models.ProviderMonobank)
	require.Error(t, err)
	assert.Equal(t, domain.CodePaymentAttemptsExhausted, domain.CodeOf(err))
	assert.Empty(t, st.created)
}

func TestStartAttemptPropagatesActiveConflict(t *testing.T) {
	st := &fakeAttemptStore{nextNo: 2, active: true}
	tr := NewAttemptTracker(st, 5)

	_, err := tr.StartAttempt(context.Background(), "o1", models.ProviderStripe)
	require.Error(t, err)
	assert.Equal(t, domain.CodeAttemptActive, domain.CodeOf(err))
}
