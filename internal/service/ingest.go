package service

import (
	"context"

	"go.uber.org/zap"

	"order-reconciler/internal/models"
	"order-reconciler/internal/util"
)

// Ingest outcomes returned to the webhook handler.
const (
	IngestOutcomeIngested = "ingested"
	IngestOutcomeDeduped  = "deduped"
	IngestOutcomeDropped  = "dropped"
	IngestOutcomeStored   = "stored"
)

type ingestStore interface {
	InsertEvent(ctx context.Context, ev *models.ProviderEvent) (bool, error)
}

// Ingestor turns an at-least-once webhook stream into durable queue rows.
// True duplicate deliveries (same raw payload hash) produce no new row.
type Ingestor struct {
	store        ingestStore
	monobankMode string
	logger       *zap.Logger
}

func NewIngestor(store ingestStore, monobankMode string) *Ingestor {
	return &Ingestor{
		store:        store,
		monobankMode: monobankMode,
		logger:       util.GetLogger(),
	}
}

// Ingest persists one normalized event. Monobank drop mode discards the
// delivery entirely; store mode persists it (the reconciler skips side
// effects for stored events later).
func (i *Ingestor) Ingest(ctx context.Context, ev *models.ProviderEvent) (string, error) {
	ctx, span := util.StartSpan(ctx, "Ingestor.Ingest")
	defer span.End()

	if ev.Provider == models.ProviderMonobank && i.monobankMode == models.WebhookModeDrop {
		util.EventsIngestedTotal.WithLabelValues(ev.Provider, IngestOutcomeDropped).Inc()
		return IngestOutcomeDropped, nil
	}

	deduped, err := i.store.InsertEvent(ctx, ev)
	if err != nil {
		return "", err
	}
	if deduped {
		util.EventsIngestedTotal.WithLabelValues(ev.Provider, IngestOutcomeDeduped).Inc()
		i.logger.Info("Duplicate webhook delivery",
			zap.String("provider", ev.Provider),
			zap.String("event_key", ev.EventKey),
			zap.String("raw_sha256", ev.RawSHA256))
		return IngestOutcomeDeduped, nil
	}

	outcome := IngestOutcomeIngested
	if ev.Provider == models.ProviderMonobank && i.monobankMode == models.WebhookModeStore {
		outcome = IngestOutcomeStored
	}
	util.EventsIngestedTotal.WithLabelValues(ev.Provider, outcome).Inc()
	i.logger.Info("Webhook event ingested",
		zap.String("provider", ev.Provider),
		zap.String("event_key", ev.EventKey),
		zap.String("status", ev.Status))
	return outcome, nil
}
