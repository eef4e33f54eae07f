package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Okemwag/Subscribee/internal/gateway"
	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/pkg/tenant"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestPaymentService(db *gorm.DB) *PaymentService {
	gateways := gateway.NewSelector(
		gateway.NewCardGateway(decimal.NewFromInt(10000), 0),
		gateway.NewMobileMoneyGateway(0),
		gateway.NewBankTransferGateway(0),
	)
	return NewPaymentService(db, gateways, NewInvoiceService(db), 5*time.Second, time.Hour)
}

func TestPaymentProcess_CardCompleted(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)

	svc := newTestPaymentService(db)
	payment, err := svc.Process(tenantCtx(business.ID), ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "49.99"),
		Currency:       "USD",
		Method:         model.PaymentMethodCard,
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusCompleted, payment.Status)
	assert.True(t, strings.HasPrefix(payment.TransactionID, "card_"))
	require.NotNil(t, payment.ProcessedAt)
}

func TestPaymentProcess_CardDeclined(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)

	svc := newTestPaymentService(db)
	_, err := svc.Process(tenantCtx(business.ID), ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "10000.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodCard,
	})

	var processingErr *PaymentProcessingError
	require.ErrorAs(t, err, &processingErr)
	assert.Equal(t, "card declined", processingErr.Reason)

	// The failure is durable: a FAILED record exists for the retry sweep
	var stored model.Payment
	require.NoError(t, db.First(&stored, processingErr.PaymentID).Error)
	assert.Equal(t, model.PaymentStatusFailed, stored.Status)
	assert.Equal(t, "card declined", stored.FailureReason)
	assert.Nil(t, stored.ProcessedAt)
}

func TestPaymentProcess_BankTransferStaysPending(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)

	svc := newTestPaymentService(db)
	payment, err := svc.Process(tenantCtx(business.ID), ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "100000.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.True(t, strings.HasPrefix(payment.TransactionID, "bank_"))
	assert.Nil(t, payment.ProcessedAt)
}

func TestPaymentProcess_MarksLinkedInvoicePaid(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)
	ctx := tenantCtx(business.ID)

	invoiceSvc := NewInvoiceService(db)
	invoice, err := invoiceSvc.Create(ctx, CreateInvoiceInput{
		SubscriptionID: subscription.ID,
		Subtotal:       mustDecimal(t, "100.00"),
		TaxRate:        mustDecimal(t, "0.16"),
	})
	require.NoError(t, err)
	_, err = invoiceSvc.UpdateStatus(ctx, invoice.ID, model.InvoiceStatusSent)
	require.NoError(t, err)

	svc := newTestPaymentService(db)
	payment, err := svc.Process(ctx, ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		InvoiceID:      &invoice.ID,
		Amount:         mustDecimal(t, "116.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodMobileMoney,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, payment.Status)

	settled, err := invoiceSvc.GetByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, settled.Status)
}

func TestPaymentProcess_NonBillableSubscription(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)
	ctx := tenantCtx(business.ID)

	require.NoError(t, NewSubscriptionService(db).Cancel(ctx, subscription.ID, "test"))

	svc := newTestPaymentService(db)
	_, err := svc.Process(ctx, ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "10.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodCard,
	})
	assert.ErrorIs(t, err, ErrSubscriptionNotBillable)
}

func TestPaymentProcess_InputValidation(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)
	ctx := tenantCtx(business.ID)

	svc := newTestPaymentService(db)

	_, err := svc.Process(ctx, ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "0"),
		Currency:       "USD",
		Method:         model.PaymentMethodCard,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Process(ctx, ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "10.00"),
		Currency:       "DOLLARS",
		Method:         model.PaymentMethodCard,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Process(ctx, ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "10.00"),
		Currency:       "USD",
		Method:         model.PaymentMethod("CRYPTO"),
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPaymentRefund(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)
	ctx := tenantCtx(business.ID)

	svc := newTestPaymentService(db)
	payment, err := svc.Process(ctx, ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "50.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodCard,
	})
	require.NoError(t, err)

	// Refunding more than the original amount is rejected
	_, err = svc.Refund(ctx, payment.ID, mustDecimal(t, "60.00"), "overcharge")
	assert.ErrorIs(t, err, ErrRefundExceedsOriginal)

	receipt, err := svc.Refund(ctx, payment.ID, mustDecimal(t, "50.00"), "customer request")
	require.NoError(t, err)
	assert.Equal(t, payment.ID, receipt.OriginalPaymentID)
	assert.True(t, mustDecimal(t, "50.00").Equal(receipt.Amount))
	assert.True(t, strings.HasPrefix(receipt.RefundTransactionID, "refund_"))

	var stored model.Payment
	require.NoError(t, db.First(&stored, payment.ID).Error)
	assert.Equal(t, model.PaymentStatusRefunded, stored.Status)

	// A refunded payment cannot be refunded again
	_, err = svc.Refund(ctx, payment.ID, mustDecimal(t, "10.00"), "again")
	assert.ErrorIs(t, err, ErrPaymentNotRefundable)
}

func TestPaymentRefund_PendingNotRefundable(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)
	ctx := tenantCtx(business.ID)

	svc := newTestPaymentService(db)
	payment, err := svc.Process(ctx, ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "10.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)

	_, err = svc.Refund(ctx, payment.ID, mustDecimal(t, "10.00"), "test")
	assert.ErrorIs(t, err, ErrPaymentNotRefundable)
}

// hookedGateway wraps a gateway so tests can interleave work, or inject a
// failure, while a refund dispatch is in flight.
type hookedGateway struct {
	gateway.Gateway
	refundCalls int
	onRefund    func()
	refundErr   error
}

func (g *hookedGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (string, error) {
	g.refundCalls++
	if g.onRefund != nil {
		hook := g.onRefund
		g.onRefund = nil
		hook()
	}
	if g.refundErr != nil {
		return "", g.refundErr
	}
	return g.Gateway.Refund(ctx, transactionID, amount)
}

func newHookedPaymentService(db *gorm.DB) (*PaymentService, *hookedGateway) {
	card := &hookedGateway{Gateway: gateway.NewCardGateway(decimal.NewFromInt(10000), 0)}
	gateways := gateway.NewSelector(card, gateway.NewMobileMoneyGateway(0), gateway.NewBankTransferGateway(0))
	return NewPaymentService(db, gateways, NewInvoiceService(db), 5*time.Second, time.Hour), card
}

func TestPaymentRefund_InterleavedAttemptRejected(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)
	ctx := tenantCtx(business.ID)

	svc, card := newHookedPaymentService(db)
	payment, err := svc.Process(ctx, ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "50.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodCard,
	})
	require.NoError(t, err)

	// A second full refund arriving while the first is at the gateway must
	// be rejected, never dispatched, and never handed a receipt.
	var interleaved error
	card.onRefund = func() {
		_, interleaved = svc.Refund(ctx, payment.ID, mustDecimal(t, "50.00"), "duplicate click")
	}

	receipt, err := svc.Refund(ctx, payment.ID, mustDecimal(t, "50.00"), "customer request")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(receipt.RefundTransactionID, "refund_"))

	assert.ErrorIs(t, interleaved, ErrPaymentNotRefundable)
	assert.Equal(t, 1, card.refundCalls)

	var stored model.Payment
	require.NoError(t, db.First(&stored, payment.ID).Error)
	assert.Equal(t, model.PaymentStatusRefunded, stored.Status)
}

func TestPaymentRefund_DispatchFailureReleasesClaim(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)
	ctx := tenantCtx(business.ID)

	svc, card := newHookedPaymentService(db)
	payment, err := svc.Process(ctx, ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "25.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodCard,
	})
	require.NoError(t, err)

	card.refundErr = fmt.Errorf("processor unavailable: %w", gateway.ErrGateway)
	_, err = svc.Refund(ctx, payment.ID, mustDecimal(t, "25.00"), "customer request")
	var refundErr *RefundProcessingError
	require.ErrorAs(t, err, &refundErr)

	// The payment stays COMPLETED and a later attempt can still succeed.
	var stored model.Payment
	require.NoError(t, db.First(&stored, payment.ID).Error)
	assert.Equal(t, model.PaymentStatusCompleted, stored.Status)

	card.refundErr = nil
	receipt, err := svc.Refund(ctx, payment.ID, mustDecimal(t, "25.00"), "customer request")
	require.NoError(t, err)
	assert.Equal(t, payment.ID, receipt.OriginalPaymentID)

	require.NoError(t, db.First(&stored, payment.ID).Error)
	assert.Equal(t, model.PaymentStatusRefunded, stored.Status)
}

func TestPaymentCancel(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)
	ctx := tenantCtx(business.ID)

	svc := newTestPaymentService(db)
	pending, err := svc.Process(ctx, ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "10.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, pending.ID))

	var stored model.Payment
	require.NoError(t, db.First(&stored, pending.ID).Error)
	assert.Equal(t, model.PaymentStatusCancelled, stored.Status)

	// A completed payment cannot be cancelled
	completed, err := svc.Process(ctx, ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "10.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodCard,
	})
	require.NoError(t, err)

	err = svc.Cancel(ctx, completed.ID)
	var transitionErr *model.InvalidTransitionError
	assert.ErrorAs(t, err, &transitionErr)
}

func TestRetryFailedPayments(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)

	stale := model.Payment{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "25.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodCard,
		Status:         model.PaymentStatusFailed,
		FailureReason:  "card declined",
	}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Model(&stale).
		UpdateColumn("updated_at", time.Now().Add(-2*time.Hour)).Error)

	fresh := model.Payment{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "25.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodCard,
		Status:         model.PaymentStatusFailed,
		FailureReason:  "card declined",
	}
	require.NoError(t, db.Create(&fresh).Error)

	svc := newTestPaymentService(db)
	recovered, err := svc.RetryFailedPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	var got model.Payment
	require.NoError(t, db.First(&got, stale.ID).Error)
	assert.Equal(t, model.PaymentStatusCompleted, got.Status)
	require.NotNil(t, got.ProcessedAt)

	// Failures younger than the threshold are left for the next sweep
	got = model.Payment{}
	require.NoError(t, db.First(&got, fresh.ID).Error)
	assert.Equal(t, model.PaymentStatusFailed, got.Status)
}

func TestRetryFailedPayments_SkipsNonBillable(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	subscription := seedSubscription(t, db, business.ID)
	ctx := tenantCtx(business.ID)

	payment := model.Payment{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "25.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodCard,
		Status:         model.PaymentStatusFailed,
	}
	require.NoError(t, db.Create(&payment).Error)
	require.NoError(t, db.Model(&payment).
		UpdateColumn("updated_at", time.Now().Add(-2*time.Hour)).Error)

	require.NoError(t, NewSubscriptionService(db).Cancel(ctx, subscription.ID, "test"))

	svc := newTestPaymentService(db)
	recovered, err := svc.RetryFailedPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)

	var got model.Payment
	require.NoError(t, db.First(&got, payment.ID).Error)
	assert.Equal(t, model.PaymentStatusFailed, got.Status)
}

func TestPaymentTenantIsolation(t *testing.T) {
	db := setupTestDB(t)
	businessA := seedBusiness(t, db, "a@test.example")
	businessB := seedBusiness(t, db, "b@test.example")
	subscription := seedSubscription(t, db, businessA.ID)

	svc := newTestPaymentService(db)
	payment, err := svc.Process(tenantCtx(businessA.ID), ProcessPaymentInput{
		SubscriptionID: subscription.ID,
		Amount:         mustDecimal(t, "10.00"),
		Currency:       "USD",
		Method:         model.PaymentMethodCard,
	})
	require.NoError(t, err)

	_, err = svc.GetByID(tenantCtx(businessB.ID), payment.ID)
	assert.ErrorIs(t, err, tenant.ErrPermissionDenied)

	_, err = svc.Refund(tenantCtx(businessB.ID), payment.ID, mustDecimal(t, "10.00"), "test")
	assert.ErrorIs(t, err, tenant.ErrPermissionDenied)
}
