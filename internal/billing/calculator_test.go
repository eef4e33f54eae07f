package billing

import (
	"testing"
	"time"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestComputeTaxAndTotal(t *testing.T) {
	tests := []struct {
		name      string
		subtotal  string
		taxRate   string
		wantTax   string
		wantTotal string
	}{
		{"standard rate", "100.00", "0.16", "16.00", "116.00"},
		{"zero rate", "100.00", "0", "0.00", "100.00"},
		{"zero subtotal", "0.00", "0.16", "0.00", "0.00"},
		{"rounds half up", "10.05", "0.075", "0.75", "10.80"},
		{"rounds down below half", "33.33", "0.1", "3.33", "36.66"},
		{"full rate", "49.99", "1", "49.99", "99.98"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tax, total := ComputeTaxAndTotal(d(tt.subtotal), d(tt.taxRate))
			assert.True(t, d(tt.wantTax).Equal(tax), "tax: want %s, got %s", tt.wantTax, tax)
			assert.True(t, d(tt.wantTotal).Equal(total), "total: want %s, got %s", tt.wantTotal, total)
		})
	}
}

func TestNextBillingDate(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	monthly, err := NextBillingDate(from, model.BillingCycleMonthly)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), monthly)

	quarterly, err := NextBillingDate(from, model.BillingCycleQuarterly)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), quarterly)

	yearly, err := NextBillingDate(from, model.BillingCycleYearly)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), yearly)
}

func TestNextBillingDate_UnsupportedCycle(t *testing.T) {
	_, err := NextBillingDate(time.Now(), model.BillingCycle("WEEKLY"))
	require.Error(t, err)

	var cycleErr *UnsupportedCycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, model.BillingCycle("WEEKLY"), cycleErr.Cycle)
}

func TestPeriodStart_InvertsNextBillingDate(t *testing.T) {
	from := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)

	for _, cycle := range []model.BillingCycle{
		model.BillingCycleMonthly,
		model.BillingCycleQuarterly,
		model.BillingCycleYearly,
	} {
		next, err := NextBillingDate(from, cycle)
		require.NoError(t, err)

		start, err := PeriodStart(next, cycle)
		require.NoError(t, err)
		assert.Equal(t, from, start, "cycle %s", cycle)
	}
}

func TestTrialEndDate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	end := TrialEndDate(start, 14)
	require.NotNil(t, end)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *end)

	assert.Nil(t, TrialEndDate(start, 0))
	assert.Nil(t, TrialEndDate(start, -1))
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 1)

	assert.True(t, IsOverdue(&past, model.InvoiceStatusSent, now))
	assert.False(t, IsOverdue(&future, model.InvoiceStatusSent, now))
	assert.False(t, IsOverdue(nil, model.InvoiceStatusSent, now))

	// Terminal invoices are never overdue
	assert.False(t, IsOverdue(&past, model.InvoiceStatusPaid, now))
	assert.False(t, IsOverdue(&past, model.InvoiceStatusCancelled, now))
}
