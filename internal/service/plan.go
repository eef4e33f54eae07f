package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/Okemwag/Subscribee/pkg/tenant"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidBillingCycle is returned when a plan names an unsupported cycle.
var ErrInvalidBillingCycle = errors.New("invalid billing cycle")

// PlanService manages the subscription plans of a business. Plan changes are
// never retroactive: a subscription keeps the terms it was created with.
type PlanService struct {
	db *gorm.DB
}

func NewPlanService(db *gorm.DB) *PlanService {
	return &PlanService{db: db}
}

// CreatePlanInput carries the fields of a new plan.
type CreatePlanInput struct {
	Name         string
	Description  string
	Price        decimal.Decimal
	BillingCycle model.BillingCycle
	TrialDays    int
}

// UpdatePlanInput carries mutable plan fields. Nil pointers leave the field
// unchanged. The billing cycle is immutable after creation.
type UpdatePlanInput struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	TrialDays   *int
	Active      *bool
}

// Create adds a plan to the caller's business.
func (s *PlanService) Create(ctx context.Context, input CreatePlanInput) (*model.SubscriptionPlan, error) {
	businessID, err := tenant.RequireBusinessID(ctx)
	if err != nil {
		return nil, err
	}
	if !input.BillingCycle.Valid() {
		return nil, fmt.Errorf("billing cycle %q: %w", input.BillingCycle, ErrInvalidBillingCycle)
	}
	if input.Price.IsNegative() {
		return nil, fmt.Errorf("plan price must not be negative: %w", ErrInvalidAmount)
	}
	if input.TrialDays < 0 {
		return nil, fmt.Errorf("trial days must not be negative: %w", ErrInvalidAmount)
	}

	plan := model.SubscriptionPlan{
		Name:         input.Name,
		Description:  input.Description,
		Price:        input.Price,
		BillingCycle: input.BillingCycle,
		TrialDays:    input.TrialDays,
		Active:       true,
		BusinessID:   businessID,
	}
	if err := s.db.WithContext(ctx).Create(&plan).Error; err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	logger.FromContext(ctx).Info("Plan created",
		zap.Uint("plan_id", plan.ID),
		zap.Uint("business_id", businessID),
		zap.String("billing_cycle", string(plan.BillingCycle)))
	return &plan, nil
}

// GetByID returns a plan of the caller's business.
func (s *PlanService) GetByID(ctx context.Context, planID uint) (*model.SubscriptionPlan, error) {
	return s.loadOwned(ctx, planID)
}

// List returns all plans of the caller's business. Inactive plans are
// included so existing subscribers' terms stay visible.
func (s *PlanService) List(ctx context.Context) ([]model.SubscriptionPlan, error) {
	businessID, err := tenant.RequireBusinessID(ctx)
	if err != nil {
		return nil, err
	}

	var plans []model.SubscriptionPlan
	err = s.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("created_at DESC").
		Find(&plans).Error
	return plans, err
}

// Update modifies a plan of the caller's business. Subscriptions already on
// the plan are unaffected; new billing continues to read the plan at billing
// time, so a price change applies from the next generated invoice onward.
func (s *PlanService) Update(ctx context.Context, planID uint, input UpdatePlanInput) (*model.SubscriptionPlan, error) {
	plan, err := s.loadOwned(ctx, planID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			return nil, fmt.Errorf("plan price must not be negative: %w", ErrInvalidAmount)
		}
		updates["price"] = *input.Price
	}
	if input.TrialDays != nil {
		if *input.TrialDays < 0 {
			return nil, fmt.Errorf("trial days must not be negative: %w", ErrInvalidAmount)
		}
		updates["trial_days"] = *input.TrialDays
	}
	if input.Active != nil {
		updates["active"] = *input.Active
	}
	if len(updates) == 0 {
		return plan, nil
	}

	if err := s.db.WithContext(ctx).Model(plan).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	return plan, nil
}

// Deactivate retires a plan from new subscriptions without touching existing
// ones.
func (s *PlanService) Deactivate(ctx context.Context, planID uint) error {
	plan, err := s.loadOwned(ctx, planID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(plan).Update("active", false).Error
}

func (s *PlanService) loadOwned(ctx context.Context, planID uint) (*model.SubscriptionPlan, error) {
	var plan model.SubscriptionPlan
	err := s.db.WithContext(ctx).First(&plan, planID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("plan %d: %w", planID, ErrNotFound)
		}
		return nil, err
	}
	if err := tenant.AssertOwnedResource(ctx, &plan); err != nil {
		logger.FromContext(ctx).Warn("Cross-tenant plan access attempt",
			zap.Uint("plan_id", plan.ID),
			zap.Uint("owner_business_id", plan.BusinessID))
		return nil, err
	}
	return &plan, nil
}
