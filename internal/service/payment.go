package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Okemwag/Subscribee/internal/gateway"
	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/Okemwag/Subscribee/pkg/metrics"
	"github.com/Okemwag/Subscribee/pkg/tenant"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentService orchestrates payment processing: it persists a PENDING
// record before any external dispatch, selects the gateway by payment method,
// owns the refund path and runs the stale-failure retry sweep.
type PaymentService struct {
	db              *gorm.DB
	gateways        *gateway.Selector
	invoices        *InvoiceService
	dispatchTimeout time.Duration
	retryThreshold  time.Duration
	now             func() time.Time
}

// NewPaymentService creates a payment service. dispatchTimeout bounds every
// gateway call; retryThreshold is the staleness below which FAILED payments
// are left alone by the retry sweep.
func NewPaymentService(db *gorm.DB, gateways *gateway.Selector, invoices *InvoiceService, dispatchTimeout, retryThreshold time.Duration) *PaymentService {
	return &PaymentService{
		db:              db,
		gateways:        gateways,
		invoices:        invoices,
		dispatchTimeout: dispatchTimeout,
		retryThreshold:  retryThreshold,
		now:             time.Now,
	}
}

// ProcessPaymentInput is a payment intent.
type ProcessPaymentInput struct {
	SubscriptionID uint
	InvoiceID      *uint
	Amount         decimal.Decimal
	Currency       string
	Method         model.PaymentMethod
}

// RefundReceipt is the record returned for a successful refund.
type RefundReceipt struct {
	OriginalPaymentID   uint            `json:"original_payment_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Reason              string          `json:"reason"`
	RefundTransactionID string          `json:"refund_transaction_id"`
	ProcessedAt         time.Time       `json:"processed_at"`
}

// Process runs one payment through its gateway. The payment row is persisted
// as PENDING before dispatch so a record exists even if the gateway call
// never returns. A gateway failure, timeouts included, leaves the payment
// FAILED and is reported as a PaymentProcessingError; the retry sweep picks
// it up later. Bank transfers settle asynchronously and stay PENDING.
func (s *PaymentService) Process(ctx context.Context, input ProcessPaymentInput) (*model.Payment, error) {
	log := logger.FromContext(ctx)

	subscription, err := s.loadOwnedSubscription(ctx, input.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if !subscription.Status.Billable() {
		return nil, fmt.Errorf("subscription %d: %w", subscription.ID, ErrSubscriptionNotBillable)
	}
	if err := validatePaymentInput(input); err != nil {
		return nil, err
	}

	var invoice *model.Invoice
	if input.InvoiceID != nil {
		invoice, err = s.invoices.loadOwned(ctx, *input.InvoiceID)
		if err != nil {
			return nil, err
		}
		if invoice.SubscriptionID != subscription.ID {
			return nil, fmt.Errorf("invoice %d does not belong to subscription %d: %w",
				invoice.ID, subscription.ID, ErrNotFound)
		}
	}

	// Durability before external dispatch.
	payment := model.Payment{
		SubscriptionID: subscription.ID,
		InvoiceID:      input.InvoiceID,
		Amount:         input.Amount,
		Currency:       input.Currency,
		Method:         input.Method,
		Status:         model.PaymentStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		log.Error("Failed to persist pending payment", zap.Error(err))
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	log.Info("Processing payment",
		zap.Uint("payment_id", payment.ID),
		zap.Uint("subscription_id", subscription.ID),
		zap.String("amount", input.Amount.String()),
		zap.String("currency", input.Currency),
		zap.String("method", string(input.Method)))

	result, err := s.dispatch(ctx, &payment)
	if err != nil {
		s.markFailed(ctx, &payment, err.Error())
		metrics.PaymentsProcessed.WithLabelValues(string(model.PaymentStatusFailed)).Inc()
		return nil, &PaymentProcessingError{PaymentID: payment.ID, Reason: "gateway dispatch failed", Err: err}
	}

	switch result.Status {
	case model.PaymentStatusCompleted:
		if err := s.complete(ctx, &payment, result.TransactionID); err != nil {
			return nil, err
		}
		if invoice != nil {
			if err := s.invoices.markPaid(ctx, invoice); err != nil {
				log.Error("Payment completed but invoice could not be marked paid",
					zap.Uint("payment_id", payment.ID),
					zap.Uint("invoice_id", invoice.ID),
					zap.Error(err))
			}
		}
		metrics.PaymentsProcessed.WithLabelValues(string(model.PaymentStatusCompleted)).Inc()
		log.Info("Payment completed",
			zap.Uint("payment_id", payment.ID),
			zap.String("transaction_id", result.TransactionID))

	case model.PaymentStatusPending:
		// Asynchronous settlement (bank transfer): keep PENDING, record the
		// gateway reference.
		payment.TransactionID = result.TransactionID
		if err := s.db.WithContext(ctx).Model(&model.Payment{}).
			Where("id = ?", payment.ID).
			Update("transaction_id", result.TransactionID).Error; err != nil {
			return nil, err
		}
		metrics.PaymentsProcessed.WithLabelValues(string(model.PaymentStatusPending)).Inc()
		log.Info("Payment awaiting external confirmation",
			zap.Uint("payment_id", payment.ID),
			zap.String("transaction_id", result.TransactionID))

	default:
		s.markFailed(ctx, &payment, result.FailureReason)
		metrics.PaymentsProcessed.WithLabelValues(string(model.PaymentStatusFailed)).Inc()
		log.Warn("Payment failed",
			zap.Uint("payment_id", payment.ID),
			zap.String("reason", result.FailureReason))
		return nil, &PaymentProcessingError{PaymentID: payment.ID, Reason: result.FailureReason}
	}

	return &payment, nil
}

// Refund refunds up to the original amount of a COMPLETED payment. On gateway
// failure the original payment is left untouched.
func (s *PaymentService) Refund(ctx context.Context, paymentID uint, amount decimal.Decimal, reason string) (*RefundReceipt, error) {
	log := logger.FromContext(ctx)

	payment, err := s.loadOwned(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, fmt.Errorf("payment %d in status %s: %w", payment.ID, payment.Status, ErrPaymentNotRefundable)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("refund amount must be positive: %w", ErrInvalidAmount)
	}
	if amount.GreaterThan(payment.Amount) {
		return nil, ErrRefundExceedsOriginal
	}

	gw, err := s.gateways.ForMethod(payment.Method)
	if err != nil {
		return nil, err
	}

	// Claim the COMPLETED -> REFUNDED transition before touching the
	// gateway so concurrent refund attempts cannot both dispatch. The
	// losing attempt affects zero rows and conflicts.
	claim := s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", payment.ID, model.PaymentStatusCompleted).
		Update("status", model.PaymentStatusRefunded)
	if claim.Error != nil {
		return nil, claim.Error
	}
	if claim.RowsAffected == 0 {
		return nil, ErrConflict
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	refundTransactionID, err := gw.Refund(dispatchCtx, payment.TransactionID, amount)
	if err != nil {
		// Release the claim; a failed dispatch leaves the payment
		// COMPLETED and refundable again.
		if releaseErr := s.db.WithContext(ctx).Model(&model.Payment{}).
			Where("id = ? AND status = ?", payment.ID, model.PaymentStatusRefunded).
			Update("status", model.PaymentStatusCompleted).Error; releaseErr != nil {
			log.Error("Failed to release refund claim",
				zap.Uint("payment_id", payment.ID),
				zap.Error(releaseErr))
		}
		log.Error("Refund dispatch failed",
			zap.Uint("payment_id", payment.ID),
			zap.Error(err))
		return nil, &RefundProcessingError{PaymentID: payment.ID, Reason: "gateway dispatch failed", Err: err}
	}

	if err := payment.TransitionStatus(model.PaymentStatusRefunded); err != nil {
		return nil, err
	}

	processedAt := s.now()
	log.Info("Refund processed",
		zap.Uint("payment_id", payment.ID),
		zap.String("refund_transaction_id", refundTransactionID),
		zap.String("amount", amount.String()))

	return &RefundReceipt{
		OriginalPaymentID:   payment.ID,
		Amount:              amount,
		Currency:            payment.Currency,
		Reason:              reason,
		RefundTransactionID: refundTransactionID,
		ProcessedAt:         processedAt,
	}, nil
}

// Cancel cancels a payment that is still PENDING, e.g. a bank transfer the
// customer abandoned.
func (s *PaymentService) Cancel(ctx context.Context, paymentID uint) error {
	payment, err := s.loadOwned(ctx, paymentID)
	if err != nil {
		return err
	}
	if err := payment.TransitionStatus(model.PaymentStatusCancelled); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", payment.ID, model.PaymentStatusPending).
		Update("status", model.PaymentStatusCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// RetryFailedPayments is the retry sweep: FAILED payments older than the
// staleness threshold are re-dispatched through the same gateway selection.
// A retry's own failure is isolated; a success back-fills ProcessedAt.
func (s *PaymentService) RetryFailedPayments(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)
	now := s.now()
	cutoff := now.Add(-s.retryThreshold)
	metrics.SweepRuns.WithLabelValues("payment_retry").Inc()

	var stale []model.Payment
	err := s.db.WithContext(ctx).
		Preload("Subscription").
		Where("status = ? AND updated_at <= ?", model.PaymentStatusFailed, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load stale failed payments: %w", err)
	}

	recovered := 0
	for i := range stale {
		payment := &stale[i]
		if err := s.retry(ctx, payment); err != nil {
			log.Warn("Payment retry failed",
				zap.Uint("payment_id", payment.ID),
				zap.Error(err))
			metrics.SweepItemFailures.WithLabelValues("payment_retry").Inc()
			continue
		}
		if payment.Status != model.PaymentStatusFailed {
			recovered++
		}
	}

	log.Info("Payment retry sweep finished",
		zap.Int("stale_failed", len(stale)),
		zap.Int("recovered", recovered))
	return recovered, nil
}

// retry re-dispatches one failed payment.
func (s *PaymentService) retry(ctx context.Context, payment *model.Payment) error {
	log := logger.FromContext(ctx)
	metrics.PaymentRetries.Inc()

	if !payment.Subscription.Status.Billable() {
		// The subscription was cancelled or expired after the payment failed;
		// leave the payment as a dead record.
		log.Debug("Skipping retry for non-billable subscription",
			zap.Uint("payment_id", payment.ID),
			zap.Uint("subscription_id", payment.SubscriptionID))
		return nil
	}

	result, err := s.dispatch(ctx, payment)
	if err != nil {
		// Still failing: refresh the failure reason so the record shows the
		// latest attempt.
		s.markFailed(ctx, payment, err.Error())
		return err
	}

	switch result.Status {
	case model.PaymentStatusCompleted:
		if err := s.complete(ctx, payment, result.TransactionID); err != nil {
			return err
		}
		log.Info("Payment retry succeeded",
			zap.Uint("payment_id", payment.ID),
			zap.String("transaction_id", result.TransactionID))
	case model.PaymentStatusPending:
		if err := payment.TransitionStatus(model.PaymentStatusPending); err != nil {
			return err
		}
		payment.TransactionID = result.TransactionID
		return s.db.WithContext(ctx).Model(&model.Payment{}).
			Where("id = ?", payment.ID).
			Updates(map[string]interface{}{
				"status":         model.PaymentStatusPending,
				"transaction_id": result.TransactionID,
			}).Error
	default:
		s.markFailed(ctx, payment, result.FailureReason)
	}
	return nil
}

// GetByID returns a payment owned by the caller's business.
func (s *PaymentService) GetByID(ctx context.Context, paymentID uint) (*model.Payment, error) {
	return s.loadOwned(ctx, paymentID)
}

// ListBySubscription returns the payments of one subscription of the caller's
// business, newest first.
func (s *PaymentService) ListBySubscription(ctx context.Context, subscriptionID uint) ([]model.Payment, error) {
	if _, err := s.loadOwnedSubscription(ctx, subscriptionID); err != nil {
		return nil, err
	}

	var payments []model.Payment
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

// HistoryByCustomer returns all payments of one customer of the caller's
// business, newest first.
func (s *PaymentService) HistoryByCustomer(ctx context.Context, customerID uint) ([]model.Payment, error) {
	businessID, err := tenant.RequireBusinessID(ctx)
	if err != nil {
		return nil, err
	}

	var payments []model.Payment
	err = s.db.WithContext(ctx).
		Joins("JOIN subscriptions ON subscriptions.id = payments.subscription_id").
		Joins("JOIN customers ON customers.id = subscriptions.customer_id").
		Where("customers.id = ? AND customers.business_id = ?", customerID, businessID).
		Order("payments.created_at DESC").
		Find(&payments).Error
	return payments, err
}

// dispatch runs a charge through the gateway selected by the payment method,
// bounded by the dispatch timeout. A timeout is a gateway failure.
func (s *PaymentService) dispatch(ctx context.Context, payment *model.Payment) (gateway.ChargeResult, error) {
	gw, err := s.gateways.ForMethod(payment.Method)
	if err != nil {
		return gateway.ChargeResult{}, err
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	return gw.Charge(dispatchCtx, gateway.ChargeRequest{
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Method:    payment.Method,
		Reference: fmt.Sprintf("payment-%d", payment.ID),
	})
}

// complete moves a payment to COMPLETED and stamps ProcessedAt.
func (s *PaymentService) complete(ctx context.Context, payment *model.Payment, transactionID string) error {
	if err := payment.TransitionStatus(model.PaymentStatusCompleted); err != nil {
		return err
	}
	processedAt := s.now()
	payment.TransactionID = transactionID
	payment.ProcessedAt = &processedAt

	return s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", payment.ID).
		Updates(map[string]interface{}{
			"status":         model.PaymentStatusCompleted,
			"transaction_id": transactionID,
			"processed_at":   processedAt,
		}).Error
}

// markFailed records a failed dispatch outcome. Best effort: the payment
// already exists, so even a failed update leaves a PENDING record for the
// retry sweep.
func (s *PaymentService) markFailed(ctx context.Context, payment *model.Payment, reason string) {
	payment.Status = model.PaymentStatusFailed
	payment.FailureReason = reason

	if err := s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", payment.ID).
		Updates(map[string]interface{}{
			"status":         model.PaymentStatusFailed,
			"failure_reason": reason,
		}).Error; err != nil {
		logger.FromContext(ctx).Error("Failed to mark payment as failed",
			zap.Uint("payment_id", payment.ID),
			zap.Error(err))
	}
}

// loadOwned loads a payment with its owning chain and verifies it belongs to
// the caller's business.
func (s *PaymentService) loadOwned(ctx context.Context, paymentID uint) (*model.Payment, error) {
	var payment model.Payment
	err := s.db.WithContext(ctx).
		Preload("Subscription.Customer").
		First(&payment, paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment %d: %w", paymentID, ErrNotFound)
		}
		return nil, err
	}
	if err := tenant.AssertOwnedResource(ctx, &payment); err != nil {
		logger.FromContext(ctx).Warn("Cross-tenant payment access attempt",
			zap.Uint("payment_id", payment.ID),
			zap.Uint("owner_business_id", payment.OwnerBusinessID()))
		return nil, err
	}
	return &payment, nil
}

// loadOwnedSubscription loads a subscription and verifies business ownership.
func (s *PaymentService) loadOwnedSubscription(ctx context.Context, subscriptionID uint) (*model.Subscription, error) {
	var subscription model.Subscription
	err := s.db.WithContext(ctx).
		Preload("Customer").
		First(&subscription, subscriptionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("subscription %d: %w", subscriptionID, ErrNotFound)
		}
		return nil, err
	}
	if err := tenant.AssertOwnedResource(ctx, &subscription); err != nil {
		logger.FromContext(ctx).Warn("Cross-tenant subscription access attempt",
			zap.Uint("subscription_id", subscription.ID),
			zap.Uint("owner_business_id", subscription.OwnerBusinessID()))
		return nil, err
	}
	return &subscription, nil
}

// validatePaymentInput enforces basic payment intent validity.
func validatePaymentInput(input ProcessPaymentInput) error {
	if !input.Amount.IsPositive() {
		return fmt.Errorf("payment amount must be positive: %w", ErrInvalidAmount)
	}
	if len(input.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter ISO code: %w", ErrInvalidAmount)
	}
	if !input.Method.Valid() {
		return fmt.Errorf("unsupported payment method %q: %w", input.Method, ErrInvalidAmount)
	}
	return nil
}
