package models

import "time"

// Outbound event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderPaid      = "ORDER_PAID"
	EventTypeOrderFailed    = "ORDER_FAILED"
	EventTypeOrderRestocked = "ORDER_RESTOCKED"
	EventTypeOrderRefunded  = "ORDER_REFUNDED"
)

// BaseEvent contains common fields for all outbound events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a checkout reserves inventory
type OrderCreatedEvent struct {
	BaseEvent
	OrderID          string `json:"order_id"`
	TotalAmountMinor int64  `json:"total_amount_minor"`
	Currency         string `json:"currency"`
	Provider         string `json:"provider"`
}

// OrderPaidEvent published when a provider confirms payment
type OrderPaidEvent struct {
	BaseEvent
	OrderID         string `json:"order_id"`
	Provider        string `json:"provider"`
	PaymentIntentID string `json:"payment_intent_id"`
	AmountMinor     int64  `json:"amount_minor"`
}

// OrderFailedEvent published when an order reaches INVENTORY_FAILED
type OrderFailedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	FailureCode string `json:"failure_code"`
	Reason      string `json:"reason"`
}

// OrderRestockedEvent published when reserved stock is returned
type OrderRestockedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	FailureCode string `json:"failure_code"`
	Orphan      bool   `json:"orphan"`
}

// OrderRefundedEvent published on an admin-triggered refund
type OrderRefundedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	AmountMinor int64  `json:"amount_minor"`
}
