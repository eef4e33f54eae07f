package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Okemwag/Subscribee/internal/billing"
	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/Okemwag/Subscribee/pkg/metrics"
	"github.com/Okemwag/Subscribee/pkg/tenant"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidAmount rejects malformed money inputs: negative subtotals or tax
// rates outside [0, 1].
var ErrInvalidAmount = errors.New("invalid subtotal or tax rate")

// invoiceNumberAttempts bounds the retry loop on invoice number collisions.
const invoiceNumberAttempts = 3

// defaultDueDays is applied when an invoice is created without a due date.
const defaultDueDays = 30

// defaultTaxRate applies to automatically generated invoices.
// TODO: read the tax rate from per-business settings once businesses can
// configure one.
var defaultTaxRate = decimal.NewFromFloat(0.10)

// InvoiceService owns the invoice lifecycle: creation with explicit tax
// computation, guarded status transitions, the automatic generation sweep and
// the overdue sweep.
type InvoiceService struct {
	db         *gorm.DB
	now        func() time.Time
	nextNumber func() string
}

// NewInvoiceService creates an invoice service.
func NewInvoiceService(db *gorm.DB) *InvoiceService {
	s := &InvoiceService{db: db, now: time.Now}
	s.nextNumber = s.generateInvoiceNumber
	return s
}

// CreateInvoiceInput is the request to create an invoice.
type CreateInvoiceInput struct {
	SubscriptionID uint
	Subtotal       decimal.Decimal
	TaxRate        decimal.Decimal
	DueDate        *time.Time
}

// Create creates a DRAFT invoice against a billable subscription of the
// caller's business. Tax and total are computed here, not by storage hooks.
func (s *InvoiceService) Create(ctx context.Context, input CreateInvoiceInput) (*model.Invoice, error) {
	subscription, err := s.loadOwnedSubscription(ctx, input.SubscriptionID)
	if err != nil {
		return nil, err
	}
	return s.createForSubscription(ctx, subscription, input.Subtotal, input.TaxRate, input.DueDate)
}

// createForSubscription is the tenant-agnostic creation path shared by Create
// and the automatic generation sweep.
func (s *InvoiceService) createForSubscription(ctx context.Context, subscription *model.Subscription, subtotal, taxRate decimal.Decimal, dueDate *time.Time) (*model.Invoice, error) {
	log := logger.FromContext(ctx)

	if !subscription.Status.Billable() {
		return nil, fmt.Errorf("subscription %d: %w", subscription.ID, ErrSubscriptionNotBillable)
	}
	if err := validateAmounts(subtotal, taxRate); err != nil {
		return nil, err
	}

	taxAmount, totalAmount := billing.ComputeTaxAndTotal(subtotal, taxRate)

	due := s.now().AddDate(0, 0, defaultDueDays)
	if dueDate != nil {
		due = *dueDate
	}

	invoice := model.Invoice{
		SubscriptionID: subscription.ID,
		Subtotal:       subtotal,
		TaxRate:        taxRate,
		TaxAmount:      taxAmount,
		TotalAmount:    totalAmount,
		Status:         model.InvoiceStatusDraft,
		DueDate:        &due,
	}

	// The invoice number carries a timestamp plus a short discriminator, so
	// collisions are possible under concurrent creation. The unique index is
	// the actual guarantee; regenerate and retry on conflict.
	var err error
	for attempt := 0; attempt < invoiceNumberAttempts; attempt++ {
		invoice.InvoiceNumber = s.nextNumber()
		err = s.db.WithContext(ctx).Create(&invoice).Error
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Error("Failed to create invoice", zap.Error(err))
			return nil, fmt.Errorf("failed to create invoice: %w", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to allocate a unique invoice number: %w", err)
	}

	log.Info("Invoice created",
		zap.Uint("invoice_id", invoice.ID),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.Uint("subscription_id", subscription.ID),
		zap.String("total_amount", totalAmount.String()))

	return &invoice, nil
}

// GetByID returns an invoice owned by the caller's business.
func (s *InvoiceService) GetByID(ctx context.Context, invoiceID uint) (*model.Invoice, error) {
	return s.loadOwned(ctx, invoiceID)
}

// UpdateStatus moves an invoice to a new status under the state machine
// rules. The update is conditional on the status the caller observed, so a
// concurrent transition surfaces as ErrConflict rather than a lost update.
func (s *InvoiceService) UpdateStatus(ctx context.Context, invoiceID uint, newStatus model.InvoiceStatus) (*model.Invoice, error) {
	invoice, err := s.loadOwned(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	previous := invoice.Status
	if err := invoice.TransitionStatus(newStatus); err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).Model(&model.Invoice{}).
		Where("id = ? AND status = ?", invoice.ID, previous).
		Update("status", newStatus)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrConflict
	}
	return invoice, nil
}

// UpdateAmounts changes the subtotal and tax rate of a non-terminal invoice
// and recomputes tax and total.
func (s *InvoiceService) UpdateAmounts(ctx context.Context, invoiceID uint, subtotal, taxRate decimal.Decimal) (*model.Invoice, error) {
	invoice, err := s.loadOwned(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status.Terminal() {
		return nil, &model.InvalidTransitionError{Entity: "invoice", From: string(invoice.Status), To: string(invoice.Status)}
	}
	if err := validateAmounts(subtotal, taxRate); err != nil {
		return nil, err
	}

	taxAmount, totalAmount := billing.ComputeTaxAndTotal(subtotal, taxRate)

	result := s.db.WithContext(ctx).Model(&model.Invoice{}).
		Where("id = ? AND status = ?", invoice.ID, invoice.Status).
		Updates(map[string]interface{}{
			"subtotal":     subtotal,
			"tax_rate":     taxRate,
			"tax_amount":   taxAmount,
			"total_amount": totalAmount,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrConflict
	}

	invoice.Subtotal = subtotal
	invoice.TaxRate = taxRate
	invoice.TaxAmount = taxAmount
	invoice.TotalAmount = totalAmount
	return invoice, nil
}

// MarkPaid marks an invoice as paid. Calling it on an already-PAID invoice is
// a no-op.
func (s *InvoiceService) MarkPaid(ctx context.Context, invoiceID uint) error {
	invoice, err := s.loadOwned(ctx, invoiceID)
	if err != nil {
		return err
	}
	return s.markPaid(ctx, invoice)
}

// markPaid is the tenant-agnostic paid transition shared with the payment
// orchestrator.
func (s *InvoiceService) markPaid(ctx context.Context, invoice *model.Invoice) error {
	log := logger.FromContext(ctx)

	if invoice.Status == model.InvoiceStatusPaid {
		log.Debug("Invoice already paid", zap.Uint("invoice_id", invoice.ID))
		return nil
	}

	previous := invoice.Status
	if err := invoice.TransitionStatus(model.InvoiceStatusPaid); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Model(&model.Invoice{}).
		Where("id = ? AND status = ?", invoice.ID, previous).
		Update("status", model.InvoiceStatusPaid)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}

	log.Info("Invoice marked as paid",
		zap.Uint("invoice_id", invoice.ID),
		zap.String("invoice_number", invoice.InvoiceNumber))
	return nil
}

// GenerateAutomaticInvoices is the billing sweep: for every ACTIVE
// subscription whose next billing date has passed, create one DRAFT invoice
// per billing period unless one already exists within the period window.
// Per-subscription failures are isolated.
func (s *InvoiceService) GenerateAutomaticInvoices(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)
	now := s.now()
	metrics.SweepRuns.WithLabelValues("invoice_generation").Inc()

	var due []model.Subscription
	err := s.db.WithContext(ctx).
		Preload("SubscriptionPlan").
		Preload("Customer").
		Where("status = ? AND next_billing_date IS NOT NULL AND next_billing_date <= ?",
			model.SubscriptionStatusActive, now).
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load subscriptions due for billing: %w", err)
	}

	generated := 0
	for i := range due {
		subscription := &due[i]
		if err := s.generateForSubscription(ctx, subscription, now); err != nil {
			log.Error("Failed to generate invoice for subscription",
				zap.Uint("subscription_id", subscription.ID),
				zap.Error(err))
			metrics.SweepItemFailures.WithLabelValues("invoice_generation").Inc()
			continue
		}
		generated++
	}

	log.Info("Invoice generation sweep finished",
		zap.Int("subscriptions_due", len(due)),
		zap.Int("invoices_generated", generated))
	return generated, nil
}

// generateForSubscription creates the current period's invoice for one due
// subscription, skipping it when the period is already invoiced.
func (s *InvoiceService) generateForSubscription(ctx context.Context, subscription *model.Subscription, now time.Time) error {
	periodStart, err := billing.PeriodStart(*subscription.NextBillingDate, subscription.SubscriptionPlan.BillingCycle)
	if err != nil {
		return err
	}

	var existing int64
	err = s.db.WithContext(ctx).Model(&model.Invoice{}).
		Where("subscription_id = ? AND created_at >= ?", subscription.ID, periodStart).
		Count(&existing).Error
	if err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	due := subscription.NextBillingDate.AddDate(0, 0, defaultDueDays)
	_, err = s.createForSubscription(ctx, subscription, subscription.SubscriptionPlan.Price, defaultTaxRate, &due)
	if err != nil {
		return err
	}

	metrics.InvoicesGenerated.Inc()
	return nil
}

// ProcessOverdue is the overdue sweep: every SENT invoice past its due date
// moves to OVERDUE. Records another sweep instance already moved are skipped.
func (s *InvoiceService) ProcessOverdue(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)
	now := s.now()
	metrics.SweepRuns.WithLabelValues("invoice_overdue").Inc()

	var overdue []model.Invoice
	err := s.db.WithContext(ctx).
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", model.InvoiceStatusSent, now).
		Find(&overdue).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load overdue invoices: %w", err)
	}

	processed := 0
	for i := range overdue {
		invoice := &overdue[i]
		result := s.db.WithContext(ctx).Model(&model.Invoice{}).
			Where("id = ? AND status = ?", invoice.ID, model.InvoiceStatusSent).
			Update("status", model.InvoiceStatusOverdue)
		if result.Error != nil {
			log.Error("Failed to mark invoice overdue",
				zap.Uint("invoice_id", invoice.ID),
				zap.Error(result.Error))
			metrics.SweepItemFailures.WithLabelValues("invoice_overdue").Inc()
			continue
		}
		if result.RowsAffected == 0 {
			// Already transitioned by a concurrent sweep or payment.
			continue
		}
		processed++
		log.Info("Invoice marked overdue",
			zap.Uint("invoice_id", invoice.ID),
			zap.String("invoice_number", invoice.InvoiceNumber))
	}

	log.Info("Overdue sweep finished", zap.Int("processed", processed))
	return processed, nil
}

// ListBySubscription returns the invoices of one subscription of the caller's
// business.
func (s *InvoiceService) ListBySubscription(ctx context.Context, subscriptionID uint) ([]model.Invoice, error) {
	if _, err := s.loadOwnedSubscription(ctx, subscriptionID); err != nil {
		return nil, err
	}

	var invoices []model.Invoice
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&invoices).Error
	return invoices, err
}

// HistoryByCustomer returns all invoices of one customer of the caller's
// business, newest first.
func (s *InvoiceService) HistoryByCustomer(ctx context.Context, customerID uint) ([]model.Invoice, error) {
	businessID, err := tenant.RequireBusinessID(ctx)
	if err != nil {
		return nil, err
	}

	var invoices []model.Invoice
	err = s.db.WithContext(ctx).
		Joins("JOIN subscriptions ON subscriptions.id = invoices.subscription_id").
		Joins("JOIN customers ON customers.id = subscriptions.customer_id").
		Where("customers.id = ? AND customers.business_id = ?", customerID, businessID).
		Order("invoices.created_at DESC").
		Find(&invoices).Error
	return invoices, err
}

// ListOverdueByBusiness returns the caller's invoices that are overdue right
// now, whether or not the sweep has marked them yet.
func (s *InvoiceService) ListOverdueByBusiness(ctx context.Context) ([]model.Invoice, error) {
	businessID, err := tenant.RequireBusinessID(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var invoices []model.Invoice
	err = s.db.WithContext(ctx).
		Joins("JOIN subscriptions ON subscriptions.id = invoices.subscription_id").
		Joins("JOIN customers ON customers.id = subscriptions.customer_id").
		Where("customers.business_id = ?", businessID).
		Where("invoices.due_date IS NOT NULL AND invoices.due_date < ?", now).
		Where("invoices.status NOT IN ?", []model.InvoiceStatus{model.InvoiceStatusPaid, model.InvoiceStatusCancelled}).
		Order("invoices.due_date ASC").
		Find(&invoices).Error
	return invoices, err
}

// generateInvoiceNumber builds a prefix + compact timestamp + 3-digit
// discriminator number.
func (s *InvoiceService) generateInvoiceNumber() string {
	return fmt.Sprintf("INV-%s-%03d", s.now().Format("20060102150405"), rand.Intn(999)+1)
}

// loadOwned loads an invoice with its owning chain and verifies it belongs to
// the caller's business.
func (s *InvoiceService) loadOwned(ctx context.Context, invoiceID uint) (*model.Invoice, error) {
	var invoice model.Invoice
	err := s.db.WithContext(ctx).
		Preload("Subscription.Customer").
		First(&invoice, invoiceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("invoice %d: %w", invoiceID, ErrNotFound)
		}
		return nil, err
	}
	if err := tenant.AssertOwnedResource(ctx, &invoice); err != nil {
		logger.FromContext(ctx).Warn("Cross-tenant invoice access attempt",
			zap.Uint("invoice_id", invoice.ID),
			zap.Uint("owner_business_id", invoice.OwnerBusinessID()))
		return nil, err
	}
	return &invoice, nil
}

// loadOwnedSubscription loads a subscription and verifies business ownership.
func (s *InvoiceService) loadOwnedSubscription(ctx context.Context, subscriptionID uint) (*model.Subscription, error) {
	var subscription model.Subscription
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("SubscriptionPlan").
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

// validateAmounts enforces subtotal >= 0 and tax rate within [0, 1].
func validateAmounts(subtotal, taxRate decimal.Decimal) error {
	if subtotal.IsNegative() {
		return fmt.Errorf("subtotal must not be negative: %w", ErrInvalidAmount)
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("tax rate must be within [0, 1]: %w", ErrInvalidAmount)
	}
	return nil
}
