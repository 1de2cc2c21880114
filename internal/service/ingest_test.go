package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-reconciler/internal/models"
)

type fakeIngestStore struct {
	deduped  bool
	inserted []*models.ProviderEvent
}

func (s *fakeIngestStore) InsertEvent(_ context.Context, ev *models.ProviderEvent) (bool, error) {
	s.inserted = append(s.inserted, ev)
	return s.deduped, nil
}

func TestIngestPersistsEvent(t *testing.T) {
	st := &fakeIngestStore{}
	ing := NewIngestor(st, models.WebhookModeApply)

	outcome, err := ing.Ingest(context.Background(), &models.ProviderEvent{
		Provider: models.ProviderStripe, EventKey: "evt_1",
	})
	require.NoError(t, err)
	assert.Equal(t, IngestOutcomeIngested, outcome)
	assert.Len(t, st.inserted, 1)
}

func TestIngestDuplicateDelivery(t *testing.T) {
	st := &fakeIngestStore{deduped: true}
	ing := NewIngestor(st, models.WebhookModeApply)

	outcome, err := ing.Ingest(context.Background(), &models.ProviderEvent{
		Provider: models.ProviderStripe, EventKey: "evt_1",
	})
	require.NoError(t, err)
	assert.Equal(t, IngestOutcomeDeduped, outcome)
}

func TestIngestMonobankDropMode(t *testing.T) {
	st := &fakeIngestStore{}
	ing := NewIngestor(st, models.WebhookModeDrop)

	outcome, err := ing.Ingest(context.Background(), &models.ProviderEvent{
		Provider: models.ProviderMonobank, EventKey: "inv_1:success:100",
	})
	require.NoError(t, err)
	assert.Equal(t, IngestOutcomeDropped, outcome)
	assert.Empty(t, st.inserted)
}

func TestIngestMonobankStoreMode(t *testing.T) {
	st := &fakeIngestStore{}
	ing := NewIngestor(st, models.WebhookModeStore)

	outcome, err := ing.Ingest(context.Background(), &models.ProviderEvent{
		Provider: models.ProviderMonobank, EventKey: "inv_1:success:100",
	})
	require.NoError(t, err)
	assert.Equal(t, IngestOutcomeStored, outcome)
	assert.Len(t, st.inserted, 1)
}

func TestIngestDropModeDoesNotAffectStripe(t *testing.T) {
	st := &fakeIngestStore{}
	ing := NewIngestor(st, models.WebhookModeDrop)

	outcome, err := ing.Ingest(context.Background(), &models.ProviderEvent{
		Provider: models.ProviderStripe, EventKey: "evt_1",
	})
	require.NoError(t, err)
	assert.Equal(t, IngestOutcomeIngested, outcome)
	assert.Len(t, st.inserted, 1)
}
