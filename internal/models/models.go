package models

import "time"

// Payment providers
const (
	ProviderStripe   = "stripe"
	ProviderMonobank = "monobank"
	ProviderNone     = "none"
)

// Order lifecycle statuses
const (
	OrderStatusCreated         = "CREATED"
	OrderStatusPaid            = "PAID"
	OrderStatusInventoryFailed = "INVENTORY_FAILED"
)

// Payment statuses
const (
	PaymentStatusPending         = "pending"
	PaymentStatusRequiresPayment = "requires_payment"
	PaymentStatusPaid            = "paid"
	PaymentStatusFailed          = "failed"
	PaymentStatusRefunded        = "refunded"
)

// Inventory statuses
const (
	InventoryStatusNone     = "none"
	InventoryStatusReserved = "reserved"
	InventoryStatusReleased = "released"
)

// TerminalOrder reports whether the lifecycle status admits no further
// payment transitions.
func TerminalOrder(status string) bool {
	return status == OrderStatusPaid || status == OrderStatusInventoryFailed
}

// Order is the central aggregate. TotalAmountMinor is authoritative;
// TotalAmount is a derived decimal mirror kept for the storage boundary.
type Order struct {
	ID                     string     `db:"id" json:"id"`
	UserID                 *string    `db:"user_id" json:"user_id,omitempty"`
	TotalAmountMinor       int64      `db:"total_amount_minor" json:"total_amount_minor"`
	TotalAmount            string     `db:"total_amount" json:"total_amount"`
	Currency               string     `db:"currency" json:"currency"`
	PaymentProvider        string     `db:"payment_provider" json:"payment_provider"`
	PaymentStatus          string     `db:"payment_status" json:"payment_status"`
	Status                 string     `db:"status" json:"status"`
	InventoryStatus        string     `db:"inventory_status" json:"inventory_status"`
	PaymentIntentID        *string    `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	FailureCode            *string    `db:"failure_code" json:"failure_code,omitempty"`
	FailureMessage         *string    `db:"failure_message" json:"failure_message,omitempty"`
	StockRestored          bool       `db:"stock_restored" json:"stock_restored"`
	RestockedAt            *time.Time `db:"restocked_at" json:"restocked_at,omitempty"`
	IdempotencyKey         string     `db:"idempotency_key" json:"idempotency_key,omitempty"`
	IdempotencyRequestHash string     `db:"idempotency_request_hash" json:"-"`
	SweepClaimExpiresAt    *time.Time `db:"sweep_claim_expires_at" json:"-"`
	SweepClaimedBy         *string    `db:"sweep_claimed_by" json:"-"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// OrderItem is one order line. UnitPriceMinor is captured at checkout time.
type OrderItem struct {
	ID             int64  `db:"id" json:"id"`
	OrderID        string `db:"order_id" json:"order_id"`
	ProductID      int64  `db:"product_id" json:"product_id"`
	Quantity       int    `db:"quantity" json:"quantity"`
	UnitPriceMinor int64  `db:"unit_price_minor" json:"unit_price_minor"`
}

// Product is the catalog row the ledger decrements stock on. Price is the
// stored decimal string; it is coerced to minor units at read time.
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     string    `db:"price" json:"price"`
	Stock     int       `db:"stock" json:"stock"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Inventory move directions
const (
	MoveReserve = "reserve"
	MoveRelease = "release"
)

// InventoryMove is the audit record of a stock reservation or release.
// An order claiming inventory_status=reserved with zero moves is an orphan.
type InventoryMove struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   string    `db:"order_id" json:"order_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	Direction string    `db:"direction" json:"direction"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Payment attempt statuses. "pending" is the only active state; the partial
// unique index on (order_id, provider) applies while status='pending'.
const (
	AttemptStatusPending   = "pending"
	AttemptStatusSucceeded = "succeeded"
	AttemptStatusFailed    = "failed"
	AttemptStatusAbandoned = "abandoned"
)

// PaymentAttempt records one try to collect payment for an order via one
// provider. AttemptNo is monotonic per order+provider.
type PaymentAttempt struct {
	ID             int64     `db:"id" json:"id"`
	OrderID        string    `db:"order_id" json:"order_id"`
	Provider       string    `db:"provider" json:"provider"`
	AttemptNo      int       `db:"attempt_no" json:"attempt_no"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Applied results for provider events.
const (
	AppliedResultApplied = "applied"
	AppliedResultDeduped = "deduped"
	AppliedResultIgnored = "ignored"
	AppliedResultStored  = "stored"
	AppliedResultFailed  = "failed"
)

// Webhook handling modes. Store persists events without side effects,
// drop discards them, apply is the normal path.
const (
	WebhookModeApply = "apply"
	WebhookModeStore = "store"
	WebhookModeDrop  = "drop"
)

// Provider event statuses as normalized from webhook payloads.
const (
	EventStatusSuccess    = "success"
	EventStatusFailure    = "failure"
	EventStatusExpired    = "expired"
	EventStatusCreated    = "created"
	EventStatusProcessing = "processing"
)

// ProviderEvent is one durably stored webhook delivery. AppliedAt non-null
// marks permanent completion; an expired or absent claim makes the row
// eligible for (re)claim.
type ProviderEvent struct {
	ID                int64      `db:"id" json:"id"`
	Provider          string     `db:"provider" json:"provider"`
	EventKey          string     `db:"event_key" json:"event_key"`
	InvoiceID         string     `db:"invoice_id" json:"invoice_id"`
	Status            string     `db:"status" json:"status"`
	AmountMinor       int64      `db:"amount_minor" json:"amount_minor"`
	CurrencyCode      string     `db:"currency_code" json:"currency_code"`
	Reference         string     `db:"reference" json:"reference"`
	RawPayload        []byte     `db:"raw_payload" json:"-"`
	NormalizedPayload []byte     `db:"normalized_payload" json:"-"`
	RawSHA256         string     `db:"raw_sha256" json:"raw_sha256"`
	ModifiedAt        *time.Time `db:"modified_at" json:"modified_at,omitempty"`
	ClaimedAt         *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
	ClaimExpiresAt    *time.Time `db:"claim_expires_at" json:"claim_expires_at,omitempty"`
	ClaimedBy         *string    `db:"claimed_by" json:"claimed_by,omitempty"`
	AppliedAt         *time.Time `db:"applied_at" json:"applied_at,omitempty"`
	AppliedResult     *string    `db:"applied_result" json:"applied_result,omitempty"`
	AppliedErrorCode  *string    `db:"applied_error_code" json:"applied_error_code,omitempty"`
	AppliedErrorMsg   *string    `db:"applied_error_message" json:"applied_error_message,omitempty"`
	ReceivedAt        time.Time  `db:"received_at" json:"received_at"`
}
