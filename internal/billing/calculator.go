// Package billing holds the pure billing math: tax and total computation,
// billing-date projection and trial resolution. Every function is
// deterministic; the clock is always an explicit parameter.
package billing

import (
	"fmt"
	"time"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/shopspring/decimal"
)

// UnsupportedCycleError indicates a billing cycle value that escaped input
// validation. It is a programming fault, not a user error.
type UnsupportedCycleError struct {
	Cycle model.BillingCycle
}

func (e *UnsupportedCycleError) Error() string {
	return fmt.Sprintf("unsupported billing cycle: %s", e.Cycle)
}

// ComputeTaxAndTotal derives the tax amount and the total from a subtotal and
// a tax rate. The tax amount is rounded half-up to 2 decimal places.
func ComputeTaxAndTotal(subtotal, taxRate decimal.Decimal) (taxAmount, totalAmount decimal.Decimal) {
	// decimal.Round rounds half away from zero, which is half-up for the
	// non-negative amounts handled here.
	taxAmount = subtotal.Mul(taxRate).Round(2)
	totalAmount = subtotal.Add(taxAmount)
	return taxAmount, totalAmount
}

// NextBillingDate projects the next billing date one cycle forward from the
// given date.
func NextBillingDate(from time.Time, cycle model.BillingCycle) (time.Time, error) {
	switch cycle {
	case model.BillingCycleMonthly:
		return from.AddDate(0, 1, 0), nil
	case model.BillingCycleQuarterly:
		return from.AddDate(0, 3, 0), nil
	case model.BillingCycleYearly:
		return from.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, &UnsupportedCycleError{Cycle: cycle}
	}
}

// PeriodStart projects one cycle backwards from the given date. It bounds the
// billing-period window the automatic invoice sweep checks for duplicates.
func PeriodStart(from time.Time, cycle model.BillingCycle) (time.Time, error) {
	switch cycle {
	case model.BillingCycleMonthly:
		return from.AddDate(0, -1, 0), nil
	case model.BillingCycleQuarterly:
		return from.AddDate(0, -3, 0), nil
	case model.BillingCycleYearly:
		return from.AddDate(-1, 0, 0), nil
	default:
		return time.Time{}, &UnsupportedCycleError{Cycle: cycle}
	}
}

// TrialEndDate returns the trial end for a subscription starting at start,
// or nil when the plan has no trial period.
func TrialEndDate(start time.Time, trialDays int) *time.Time {
	if trialDays <= 0 {
		return nil
	}
	end := start.AddDate(0, 0, trialDays)
	return &end
}

// IsOverdue reports whether an invoice with the given due date and status is
// overdue at the given instant.
func IsOverdue(dueDate *time.Time, status model.InvoiceStatus, now time.Time) bool {
	if dueDate == nil {
		return false
	}
	if status == model.InvoiceStatusPaid || status == model.InvoiceStatusCancelled {
		return false
	}
	return now.After(*dueDate)
}
