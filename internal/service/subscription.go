package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Okemwag/Subscribee/internal/billing"
	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/Okemwag/Subscribee/pkg/metrics"
	"github.com/Okemwag/Subscribee/pkg/tenant"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SubscriptionService owns the subscription lifecycle: creation with trial
// resolution, guarded status transitions and the expiry sweep.
type SubscriptionService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSubscriptionService creates a subscription service.
func NewSubscriptionService(db *gorm.DB) *SubscriptionService {
	return &SubscriptionService{db: db, now: time.Now}
}

// CreateSubscriptionInput is the request to start a subscription.
type CreateSubscriptionInput struct {
	CustomerID         uint
	SubscriptionPlanID uint
	StartDate          *time.Time
}

// UpdateSubscriptionInput carries optional subscription updates. A non-nil
// Status goes through the state machine like any other transition.
type UpdateSubscriptionInput struct {
	EndDate         *time.Time
	Status          *model.SubscriptionStatus
	NextBillingDate *time.Time
}

// Create starts a subscription for a customer on a plan of the same business.
// The initial status is TRIAL when the plan has a trial period, ACTIVE
// otherwise; the next billing date is projected one cycle from the start.
func (s *SubscriptionService) Create(ctx context.Context, input CreateSubscriptionInput) (*model.Subscription, error) {
	log := logger.FromContext(ctx)

	var customer model.Customer
	if err := s.db.WithContext(ctx).First(&customer, input.CustomerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("customer %d: %w", input.CustomerID, ErrNotFound)
		}
		return nil, err
	}
	if err := tenant.AssertOwnedResource(ctx, &customer); err != nil {
		log.Warn("Cross-tenant subscription creation attempt",
			zap.Uint("customer_id", customer.ID),
			zap.Uint("customer_business_id", customer.BusinessID))
		return nil, err
	}
	if !customer.Active {
		return nil, ErrCustomerInactive
	}

	var plan model.SubscriptionPlan
	err := s.db.WithContext(ctx).
		Where("id = ? AND business_id = ? AND active = ?", input.SubscriptionPlanID, customer.BusinessID, true).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("subscription plan %d: %w", input.SubscriptionPlanID, ErrNotFound)
		}
		return nil, err
	}

	// Duplicate-active-plan guard
	var activeCount int64
	err = s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("customer_id = ? AND subscription_plan_id = ? AND status = ?",
			customer.ID, plan.ID, model.SubscriptionStatusActive).
		Count(&activeCount).Error
	if err != nil {
		return nil, err
	}
	if activeCount > 0 {
		return nil, ErrDuplicateActiveSubscription
	}

	start := s.now()
	if input.StartDate != nil {
		start = *input.StartDate
	}

	subscription := model.Subscription{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
		StartDate:          start,
		Status:             model.SubscriptionStatusActive,
	}
	if plan.TrialDays > 0 {
		subscription.Status = model.SubscriptionStatusTrial
		subscription.EndDate = billing.TrialEndDate(start, plan.TrialDays)
	}

	nextBilling, err := billing.NextBillingDate(start, plan.BillingCycle)
	if err != nil {
		return nil, err
	}
	subscription.NextBillingDate = &nextBilling

	if err := s.db.WithContext(ctx).Create(&subscription).Error; err != nil {
		log.Error("Failed to create subscription", zap.Error(err))
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	log.Info("Subscription created",
		zap.Uint("subscription_id", subscription.ID),
		zap.Uint("customer_id", customer.ID),
		zap.Uint("plan_id", plan.ID),
		zap.String("status", string(subscription.Status)))

	subscription.Customer = customer
	subscription.SubscriptionPlan = plan
	return &subscription, nil
}

// GetByID returns a subscription owned by the caller's business.
func (s *SubscriptionService) GetByID(ctx context.Context, subscriptionID uint) (*model.Subscription, error) {
	return s.loadOwned(ctx, subscriptionID)
}

// Update applies end-date, status and billing-date changes. Status changes go
// through the state machine.
func (s *SubscriptionService) Update(ctx context.Context, subscriptionID uint, input UpdateSubscriptionInput) (*model.Subscription, error) {
	subscription, err := s.loadOwned(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if input.EndDate != nil {
		subscription.EndDate = input.EndDate
	}
	if input.NextBillingDate != nil {
		subscription.NextBillingDate = input.NextBillingDate
	}
	if input.Status != nil {
		if err := s.transition(ctx, subscription, *input.Status); err != nil {
			return nil, err
		}
		return subscription, nil
	}

	prevVersion := subscription.Version
	result := s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND version = ?", subscription.ID, prevVersion).
		Updates(map[string]interface{}{
			"end_date":          subscription.EndDate,
			"next_billing_date": subscription.NextBillingDate,
			"version":           prevVersion + 1,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrConflict
	}
	subscription.Version = prevVersion + 1
	return subscription, nil
}

// Transition moves a subscription to a new status under the state machine
// rules, scoped to the caller's business.
func (s *SubscriptionService) Transition(ctx context.Context, subscriptionID uint, newStatus model.SubscriptionStatus) (*model.Subscription, error) {
	subscription, err := s.loadOwned(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, subscription, newStatus); err != nil {
		return nil, err
	}
	return subscription, nil
}

// Cancel cancels a subscription. The reason is recorded in the audit log only.
func (s *SubscriptionService) Cancel(ctx context.Context, subscriptionID uint, reason string) error {
	log := logger.FromContext(ctx)

	subscription, err := s.loadOwned(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if err := s.transition(ctx, subscription, model.SubscriptionStatusCancelled); err != nil {
		return err
	}

	log.Info("Subscription cancelled",
		zap.Uint("subscription_id", subscription.ID),
		zap.String("reason", reason))
	return nil
}

// Renew advances the next billing date by one cycle and converts a trial to
// ACTIVE. Only ACTIVE and TRIAL subscriptions can renew.
func (s *SubscriptionService) Renew(ctx context.Context, subscriptionID uint) (*model.Subscription, error) {
	log := logger.FromContext(ctx)

	subscription, err := s.loadOwned(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !subscription.Status.Billable() {
		return nil, fmt.Errorf("cannot renew subscription in status %s: %w",
			subscription.Status, ErrSubscriptionNotBillable)
	}

	from := s.now()
	if subscription.NextBillingDate != nil {
		from = *subscription.NextBillingDate
	}
	nextBilling, err := billing.NextBillingDate(from, subscription.SubscriptionPlan.BillingCycle)
	if err != nil {
		return nil, err
	}

	prevVersion := subscription.Version
	updates := map[string]interface{}{
		"next_billing_date": nextBilling,
		"version":           prevVersion + 1,
	}
	if subscription.Status == model.SubscriptionStatusTrial {
		updates["status"] = model.SubscriptionStatusActive
	}

	result := s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND version = ?", subscription.ID, prevVersion).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrConflict
	}

	subscription.NextBillingDate = &nextBilling
	if subscription.Status == model.SubscriptionStatusTrial {
		subscription.Status = model.SubscriptionStatusActive
	}
	subscription.Version = prevVersion + 1

	log.Info("Subscription renewed",
		zap.Uint("subscription_id", subscription.ID),
		zap.Time("next_billing_date", nextBilling))
	return subscription, nil
}

// ListByCustomer returns the subscriptions of one customer of the caller's
// business.
func (s *SubscriptionService) ListByCustomer(ctx context.Context, customerID uint) ([]model.Subscription, error) {
	businessID, err := tenant.RequireBusinessID(ctx)
	if err != nil {
		return nil, err
	}

	var customer model.Customer
	if err := s.db.WithContext(ctx).
		Where("id = ? AND business_id = ?", customerID, businessID).
		First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("customer %d: %w", customerID, ErrNotFound)
		}
		return nil, err
	}

	var subscriptions []model.Subscription
	err = s.db.WithContext(ctx).
		Preload("SubscriptionPlan").
		Where("customer_id = ?", customerID).
		Find(&subscriptions).Error
	return subscriptions, err
}

// ListByBusiness returns all subscriptions of the caller's business,
// optionally filtered by status.
func (s *SubscriptionService) ListByBusiness(ctx context.Context, status *model.SubscriptionStatus) ([]model.Subscription, error) {
	businessID, err := tenant.RequireBusinessID(ctx)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Preload("SubscriptionPlan").
		Joins("JOIN customers ON customers.id = subscriptions.customer_id").
		Where("customers.business_id = ?", businessID)
	if status != nil {
		query = query.Where("subscriptions.status = ?", *status)
	}

	var subscriptions []model.Subscription
	err = query.Find(&subscriptions).Error
	return subscriptions, err
}

// ProcessExpired is the expiry sweep: every non-terminal subscription whose
// end date has passed is moved to EXPIRED. A failure on one subscription does
// not stop the sweep; records another sweep instance already moved are
// skipped via the version check.
func (s *SubscriptionService) ProcessExpired(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)
	now := s.now()
	metrics.SweepRuns.WithLabelValues("subscription_expiry").Inc()

	var expired []model.Subscription
	err := s.db.WithContext(ctx).
		Where("status IN ? AND end_date IS NOT NULL AND end_date <= ?",
			[]model.SubscriptionStatus{
				model.SubscriptionStatusTrial,
				model.SubscriptionStatusActive,
				model.SubscriptionStatusSuspended,
			}, now).
		Find(&expired).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load expiring subscriptions: %w", err)
	}

	processed := 0
	for i := range expired {
		subscription := &expired[i]
		if err := s.transition(ctx, subscription, model.SubscriptionStatusExpired); err != nil {
			if errors.Is(err, ErrConflict) {
				// Another sweep instance got there first.
				continue
			}
			log.Error("Failed to expire subscription",
				zap.Uint("subscription_id", subscription.ID),
				zap.Error(err))
			metrics.SweepItemFailures.WithLabelValues("subscription_expiry").Inc()
			continue
		}
		processed++
		log.Info("Subscription expired", zap.Uint("subscription_id", subscription.ID))
	}

	log.Info("Expiry sweep finished", zap.Int("processed", processed))
	return processed, nil
}

// transition persists a guarded status change under optimistic locking.
func (s *SubscriptionService) transition(ctx context.Context, subscription *model.Subscription, newStatus model.SubscriptionStatus) error {
	prevVersion := subscription.Version
	if err := subscription.TransitionStatus(newStatus, s.now()); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND version = ?", subscription.ID, prevVersion).
		Updates(map[string]interface{}{
			"status":            subscription.Status,
			"end_date":          subscription.EndDate,
			"next_billing_date": subscription.NextBillingDate,
			"version":           prevVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	subscription.Version = prevVersion + 1
	return nil
}

// loadOwned loads a subscription with its owning customer and plan and
// verifies it belongs to the caller's business.
func (s *SubscriptionService) loadOwned(ctx context.Context, subscriptionID uint) (*model.Subscription, error) {
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
