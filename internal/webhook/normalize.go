package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"order-reconciler/internal/models"
)

// RawSHA256 is the content hash used for true-duplicate detection,
// independent of any business-level event key.
func RawSHA256(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type stripeEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID       string `json:"id"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Metadata struct {
				OrderID string `json:"order_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// NormalizeStripe maps a Stripe event payload onto a ProviderEvent row.
func NormalizeStripe(body []byte) (*models.ProviderEvent, error) {
	var env stripeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse stripe payload: %w", err)
	}
	if env.ID == "" {
		return nil, fmt.Errorf("stripe payload has no event id")
	}

	var status string
	switch env.Type {
	case "payment_intent.succeeded":
		status = models.EventStatusSuccess
	case "payment_intent.payment_failed":
		status = models.EventStatusFailure
	case "payment_intent.canceled":
		status = models.EventStatusExpired
	default:
		status = models.EventStatusProcessing
	}

	ev := &models.ProviderEvent{
		Provider:     models.ProviderStripe,
		EventKey:     env.ID,
		InvoiceID:    env.Data.Object.ID,
		Status:       status,
		AmountMinor:  env.Data.Object.Amount,
		CurrencyCode: env.Data.Object.Currency,
		Reference:    env.Data.Object.Metadata.OrderID,
		RawPayload:   body,
		RawSHA256:    RawSHA256(body),
	}
	if env.Created > 0 {
		t := time.Unix(env.Created, 0).UTC()
		ev.ModifiedAt = &t
	}

	normalized, _ := json.Marshal(ev)
	ev.NormalizedPayload = normalized
	return ev, nil
}

type monobankEnvelope struct {
	InvoiceID    string `json:"invoiceId"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Ccy          int    `json:"ccy"`
	Reference    string `json:"reference"`
	ModifiedDate string `json:"modifiedDate"`
	FailureCode  string `json:"failureReason"`
}

// NormalizeMonobank maps a Monobank invoice webhook onto a ProviderEvent.
// The event key is the invoice+status+amount signature: Monobank redelivers
// the same logical status change with identical key, while distinct status
// changes of one invoice produce distinct keys.
func NormalizeMonobank(body []byte) (*models.ProviderEvent, error) {
	var env monobankEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse monobank payload: %w", err)
	}
	if env.InvoiceID == "" {
		return nil, fmt.Errorf("monobank payload has no invoiceId")
	}

	var status string
	switch env.Status {
	case "success":
		status = models.EventStatusSuccess
	case "failure", "reversed":
		status = models.EventStatusFailure
	case "expired":
		status = models.EventStatusExpired
	case "created":
		status = models.EventStatusCreated
	default:
		status = models.EventStatusProcessing
	}

	ev := &models.ProviderEvent{
		Provider:     models.ProviderMonobank,
		EventKey:     fmt.Sprintf("%s:%s:%d", env.InvoiceID, env.Status, env.Amount),
		InvoiceID:    env.InvoiceID,
		Status:       status,
		AmountMinor:  env.Amount,
		CurrencyCode: strconv.Itoa(env.Ccy),
		Reference:    env.Reference,
		RawPayload:   body,
		RawSHA256:    RawSHA256(body),
	}
	if env.ModifiedDate != "" {
		if t, err := time.Parse(time.RFC3339, env.ModifiedDate); err == nil {
			utc := t.UTC()
			ev.ModifiedAt = &utc
		}
	}

	normalized, _ := json.Marshal(ev)
	ev.NormalizedPayload = normalized
	return ev, nil
}
