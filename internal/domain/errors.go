package domain

import (
	"errors"
	"fmt"
)

// Error codes form a closed set. Handlers switch on the code to pick the
// HTTP status; anything outside the set is treated as an internal fault.
const (
	CodeMoneyValue               = "MONEY_VALUE"
	CodeInsufficientStock        = "INSUFFICIENT_STOCK"
	CodePaymentAttemptsExhausted = "PAYMENT_ATTEMPTS_EXHAUSTED"
	CodeAttemptActive            = "ATTEMPT_ACTIVE"
	CodeIdempotencyConflict      = "IDEMPOTENCY_CONFLICT"
	CodeOrderNotFound            = "ORDER_NOT_FOUND"
	CodeProductNotFound          = "PRODUCT_NOT_FOUND"
	CodeOriginBlocked            = "ORIGIN_BLOCKED"
	CodeMissingSignature         = "MISSING_SIGNATURE"
	CodeInvalidSignature         = "INVALID_SIGNATURE"
	CodeRateLimited              = "RATE_LIMITED"
	CodeJanitorDisabled          = "JANITOR_DISABLED"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeForbidden                = "FORBIDDEN"
	CodeRefundDisabled           = "REFUND_DISABLED"
	CodeRefundNotPaid            = "REFUND_NOT_PAID"
	CodeAmountMismatch           = "AMOUNT_MISMATCH"
)

// Failure codes stored on orders.failure_code.
const (
	FailureStaleTimeout  = "STALE_TIMEOUT"
	FailureStaleOrphan   = "STALE_ORPHAN"
	FailurePaymentFailed = "PAYMENT_FAILED"
)

// Error is a domain error with a stable machine-readable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a domain error with the given code.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the domain code from err, or "" if err is not a domain error.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	var me *MoneyValueError
	if errors.As(err, &me) {
		return CodeMoneyValue
	}
	var se *InsufficientStockError
	if errors.As(err, &se) {
		return CodeInsufficientStock
	}
	return ""
}

// MoneyValueError reports a stored monetary value that cannot be coerced to
// minor units. It is a data-integrity fault, not user input validation.
type MoneyValueError struct {
	Field    string
	Raw      string
	EntityID string
}

func (e *MoneyValueError) Error() string {
	return fmt.Sprintf("%s: field %q holds unusable monetary value %q (entity %s)",
		CodeMoneyValue, e.Field, e.Raw, e.EntityID)
}

// InsufficientStockError reports a checkout line that cannot be fulfilled.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: product %d has %d available, %d requested",
		CodeInsufficientStock, e.ProductID, e.Available, e.Requested)
}

// Permanent reports whether the error should stop event retries. Permanent
// errors are recorded as applied with a failed result so a broken event can
// never cause a retry storm.
func Permanent(err error) bool {
	switch CodeOf(err) {
	case CodeMoneyValue, CodeAmountMismatch, CodeOrderNotFound:
		return true
	}
	return false
}
