package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/pkg/logger"
	"github.com/Okemwag/Subscribee/pkg/tenant"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrDuplicateBusinessEmail is returned when a business email is already
// registered on the platform.
var ErrDuplicateBusinessEmail = errors.New("business email already registered")

// BusinessService manages tenant accounts. Registration is the only operation
// that runs without a tenant context; everything else acts on the caller's own
// business.
type BusinessService struct {
	db *gorm.DB
}

func NewBusinessService(db *gorm.DB) *BusinessService {
	return &BusinessService{db: db}
}

// RegisterBusinessInput carries the fields set at tenant sign-up.
type RegisterBusinessInput struct {
	Name        string
	Email       string
	PhoneNumber string
	Timezone    string
	Currency    string
}

// UpdateBusinessInput carries mutable business profile fields. Nil pointers
// leave the field unchanged.
type UpdateBusinessInput struct {
	Name        *string
	PhoneNumber *string
	Timezone    *string
	Currency    *string
}

// Register creates a new business account. Business emails are unique across
// the whole platform.
func (s *BusinessService) Register(ctx context.Context, input RegisterBusinessInput) (*model.Business, error) {
	business := model.Business{
		Name:        input.Name,
		Email:       input.Email,
		PhoneNumber: input.PhoneNumber,
		Timezone:    input.Timezone,
		Currency:    input.Currency,
		Active:      true,
	}
	if business.Timezone == "" {
		business.Timezone = "UTC"
	}
	if business.Currency == "" {
		business.Currency = "USD"
	}

	if err := s.db.WithContext(ctx).Create(&business).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("email %s: %w", input.Email, ErrDuplicateBusinessEmail)
		}
		return nil, fmt.Errorf("failed to register business: %w", err)
	}

	logger.FromContext(ctx).Info("Business registered",
		zap.Uint("business_id", business.ID),
		zap.String("email", business.Email))
	return &business, nil
}

// Get returns the caller's own business.
func (s *BusinessService) Get(ctx context.Context) (*model.Business, error) {
	businessID, err := tenant.RequireBusinessID(ctx)
	if err != nil {
		return nil, err
	}

	var business model.Business
	if err := s.db.WithContext(ctx).First(&business, businessID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("business %d: %w", businessID, ErrNotFound)
		}
		return nil, err
	}
	return &business, nil
}

// Update modifies the caller's own business profile.
func (s *BusinessService) Update(ctx context.Context, input UpdateBusinessInput) (*model.Business, error) {
	business, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.PhoneNumber != nil {
		updates["phone_number"] = *input.PhoneNumber
	}
	if input.Timezone != nil {
		updates["timezone"] = *input.Timezone
	}
	if input.Currency != nil {
		updates["currency"] = *input.Currency
	}
	if len(updates) == 0 {
		return business, nil
	}

	if err := s.db.WithContext(ctx).Model(business).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update business: %w", err)
	}
	return business, nil
}

// Deactivate marks the caller's business inactive. Data is retained; the
// account can be reactivated by support.
func (s *BusinessService) Deactivate(ctx context.Context) error {
	business, err := s.Get(ctx)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(business).Update("active", false).Error
}
