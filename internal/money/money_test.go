package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-reconciler/internal/domain"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"0", 0},
		{"0.01", 1},
		{"12.34", 1234},
		{"12.3", 1230},
		{"100", 10000},
		{" 7.50 ", 750},
		{"-3.25", -325},
	}

	for _, tc := range cases {
		got, err := ToMinorUnits(tc.raw, "price", "prod-1")
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestToMinorUnitsRejectsBadValues(t *testing.T) {
	for _, raw := range []string{"", "  ", "abc", "12.345", "1,23", "1.2.3"} {
		_, err := ToMinorUnits(raw, "price", "prod-9")
		require.Error(t, err, raw)

		var mve *domain.MoneyValueError
		require.ErrorAs(t, err, &mve, raw)
		assert.Equal(t, raw, mve.Raw)
		assert.Equal(t, "price", mve.Field)
		assert.Equal(t, "prod-9", mve.EntityID)
		assert.Equal(t, domain.CodeMoneyValue, domain.CodeOf(err))
	}
}

func TestRoundTrip(t *testing.T) {
	for _, raw := range []string{"0.00", "0.01", "12.34", "99999.99", "1000.00"} {
		minor, err := ToMinorUnits(raw, "total", "order-1")
		require.NoError(t, err)
		assert.Equal(t, raw, FromMinorUnits(minor))
	}
}

func TestNonCanonicalInputsRenderCanonically(t *testing.T) {
	cases := map[string]string{
		"12.3": "12.30",
		"12":   "12.00",
		"0":    "0.00",
		"-3.5": "-3.50",
	}
	for raw, canonical := range cases {
		minor, err := ToMinorUnits(raw, "total", "order-1")
		require.NoError(t, err, raw)
		assert.Equal(t, canonical, FromMinorUnits(minor), raw)
	}
}

func TestSumLineTotals(t *testing.T) {
	assert.Equal(t, int64(0), SumLineTotals(nil))
	assert.Equal(t, int64(2500), SumLineTotals([]int64{2000, 500}))
	assert.Equal(t, int64(2500), LineTotal(1000, 2)+LineTotal(500, 1))
}
