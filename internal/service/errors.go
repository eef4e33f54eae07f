package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested resource does not exist or is
	// outside the caller's business scope.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned to the loser of a concurrent update on the same
	// record. The operation can be retried after reloading.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrCustomerInactive rejects operations against a soft-deleted customer.
	ErrCustomerInactive = errors.New("customer is not active")

	// ErrDuplicateCustomerEmail rejects a second customer with the same email
	// within one business.
	ErrDuplicateCustomerEmail = errors.New("customer with this email already exists for the business")

	// ErrDuplicateActiveSubscription rejects a second ACTIVE subscription for
	// the same (customer, plan) pair.
	ErrDuplicateActiveSubscription = errors.New("customer already has an active subscription to this plan")

	// ErrSubscriptionNotBillable rejects invoices and payments against a
	// subscription that is not ACTIVE or TRIAL.
	ErrSubscriptionNotBillable = errors.New("subscription is not active or in trial")

	// ErrPaymentNotRefundable rejects refunds of payments that never completed.
	ErrPaymentNotRefundable = errors.New("payment is not in a refundable state")

	// ErrRefundExceedsOriginal rejects refunds larger than the original payment.
	ErrRefundExceedsOriginal = errors.New("refund amount exceeds original payment amount")
)

// PaymentProcessingError reports a failed gateway dispatch. The payment is
// left in FAILED state and becomes eligible for the retry sweep.
type PaymentProcessingError struct {
	PaymentID uint
	Reason    string
	Err       error
}

func (e *PaymentProcessingError) Error() string {
	return fmt.Sprintf("payment %d processing failed: %s", e.PaymentID, e.Reason)
}

func (e *PaymentProcessingError) Unwrap() error { return e.Err }

// RefundProcessingError reports a failed refund dispatch. The original
// payment is left untouched.
type RefundProcessingError struct {
	PaymentID uint
	Reason    string
	Err       error
}

func (e *RefundProcessingError) Error() string {
	return fmt.Sprintf("refund of payment %d failed: %s", e.PaymentID, e.Reason)
}

func (e *RefundProcessingError) Unwrap() error { return e.Err }
