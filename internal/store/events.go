package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"order-reconciler/internal/models"
)

// InsertEvent stores a webhook delivery. A row with the same raw_sha256 is
// a true duplicate delivery: no new row is created and deduped=true is
// returned with the id of the original.
func (s *Store) InsertEvent(ctx context.Context, ev *models.ProviderEvent) (deduped bool, err error) {
	err = s.db.GetContext(ctx, &ev.ID, `
		INSERT INTO provider_events
			(provider, event_key, invoice_id, status, amount_minor, currency_code,
			 reference, raw_payload, normalized_payload, raw_sha256, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (raw_sha256) DO NOTHING
		RETURNING id`,
		ev.Provider, ev.EventKey, ev.InvoiceID, ev.Status, ev.AmountMinor, ev.CurrencyCode,
		ev.Reference, ev.RawPayload, ev.NormalizedPayload, ev.RawSHA256, ev.ModifiedAt)
	if err == sql.ErrNoRows {
		// Conflict path: the delivery was already stored.
		if err := s.db.GetContext(ctx, &ev.ID,
			"SELECT id FROM provider_events WHERE raw_sha256 = $1", ev.RawSHA256); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert provider event: %w", err)
	}
	return false, nil
}

// ClaimNextEvent hands out an exclusive time-leased claim on one unapplied
// event. Candidates are ordered by provider-reported modification time,
// then receipt time, then id, to preserve causal order where possible.
// SKIP LOCKED keeps concurrent workers from ever blocking on the same row.
// Returns nil when nothing is claimable.
func (s *Store) ClaimNextEvent(ctx context.Context, claimedBy string, ttl time.Duration) (*models.ProviderEvent, error) {
	var ev models.ProviderEvent
	err := s.db.GetContext(ctx, &ev, `
		WITH candidate AS (
			SELECT id FROM provider_events
			WHERE applied_at IS NULL
			  AND (claim_expires_at IS NULL OR claim_expires_at < now())
			ORDER BY modified_at NULLS LAST, received_at, id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE provider_events e
		SET claimed_at = now(),
			claim_expires_at = now() + $2 * INTERVAL '1 second',
			claimed_by = $1
		FROM candidate
		WHERE e.id = candidate.id
		RETURNING e.*`,
		claimedBy, int(ttl.Seconds()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim event: %w", err)
	}
	return &ev, nil
}

// MarkEventApplied records permanent completion of an event.
func (s *Store) MarkEventApplied(ctx context.Context, eventID int64, result string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE provider_events
		SET applied_at = now(), applied_result = $2,
			applied_error_code = NULL, applied_error_message = NULL
		WHERE id = $1`,
		eventID, result)
	return err
}

// MarkEventFailed records a processing failure. Permanent failures are
// closed out (applied with a failed result) so a poisoned event cannot
// retry forever; transient ones release the claim and stay eligible.
func (s *Store) MarkEventFailed(ctx context.Context, eventID int64, code, message string, permanent bool) error {
	if permanent {
		_, err := s.db.ExecContext(ctx, `
			UPDATE provider_events
			SET applied_at = now(), applied_result = $2,
				applied_error_code = $3, applied_error_message = $4
			WHERE id = $1`,
			eventID, models.AppliedResultFailed, code, message)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE provider_events
		SET claimed_at = NULL, claim_expires_at = NULL, claimed_by = NULL,
			applied_error_code = $2, applied_error_message = $3
		WHERE id = $1`,
		eventID, code, message)
	return err
}

// GetEventByID retrieves a stored provider event.
func (s *Store) GetEventByID(ctx context.Context, id int64) (*models.ProviderEvent, error) {
	var ev models.ProviderEvent
	err := s.db.GetContext(ctx, &ev, "SELECT * FROM provider_events WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
