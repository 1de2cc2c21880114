package money

import (
	"strings"

	"github.com/shopspring/decimal"

	"order-reconciler/internal/domain"
)

// minorDigits is fixed at 2: both supported providers charge in cents/kopecks.
const minorDigits = 2

// ToMinorUnits converts a decimal currency string ("12.34") to integer minor
// units (1234). All monetary arithmetic downstream happens on the integer.
// Inputs with fewer than two decimals are accepted ("12.3", "12");
// FromMinorUnits always renders the canonical two-decimal form, so the
// string round-trip is exact only for canonical inputs.
func ToMinorUnits(raw, field, entityID string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, &domain.MoneyValueError{Field: field, Raw: raw, EntityID: entityID}
	}

	dec, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, &domain.MoneyValueError{Field: field, Raw: raw, EntityID: entityID}
	}

	shifted := dec.Shift(minorDigits)
	if !shifted.IsInteger() {
		return 0, &domain.MoneyValueError{Field: field, Raw: raw, EntityID: entityID}
	}

	return shifted.IntPart(), nil
}

// FromMinorUnits renders integer minor units back to the canonical decimal
// string form used at the storage/display boundary.
func FromMinorUnits(minor int64) string {
	return decimal.New(minor, -minorDigits).StringFixed(minorDigits)
}

// SumLineTotals sums per-line minor amounts into an order total.
func SumLineTotals(minorAmounts []int64) int64 {
	var total int64
	for _, a := range minorAmounts {
		total += a
	}
	return total
}

// LineTotal computes price*quantity in minor units.
func LineTotal(unitMinor int64, quantity int) int64 {
	return unitMinor * int64(quantity)
}
