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

// CustomerService manages the end-customers of a business. All operations are
// scoped to the caller's business taken from the request context.
type CustomerService struct {
	db *gorm.DB
}

func NewCustomerService(db *gorm.DB) *CustomerService {
	return &CustomerService{db: db}
}

// CreateCustomerInput carries the fields a business sets when registering a
// customer.
type CreateCustomerInput struct {
	Name              string
	Email             string
	PhoneNumber       string
	PreferredLanguage string
}

// UpdateCustomerInput carries mutable customer fields. Nil pointers leave the
// field unchanged.
type UpdateCustomerInput struct {
	Name              *string
	Email             *string
	PhoneNumber       *string
	PreferredLanguage *string
	Active            *bool
}

// Create registers a customer under the caller's business. An email is unique
// per business, not globally: the same person can be a customer of two tenants.
func (s *CustomerService) Create(ctx context.Context, input CreateCustomerInput) (*model.Customer, error) {
	businessID, err := tenant.RequireBusinessID(ctx)
	if err != nil {
		return nil, err
	}

	customer := model.Customer{
		Name:              input.Name,
		Email:             input.Email,
		PhoneNumber:       input.PhoneNumber,
		PreferredLanguage: input.PreferredLanguage,
		Active:            true,
		BusinessID:        businessID,
	}
	if customer.PreferredLanguage == "" {
		customer.PreferredLanguage = "en"
	}

	if err := s.db.WithContext(ctx).Create(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("email %s already registered for business %d: %w",
				input.Email, businessID, ErrDuplicateCustomerEmail)
		}
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	logger.FromContext(ctx).Info("Customer created",
		zap.Uint("customer_id", customer.ID),
		zap.Uint("business_id", businessID))
	return &customer, nil
}

// GetByID returns a customer of the caller's business.
func (s *CustomerService) GetByID(ctx context.Context, customerID uint) (*model.Customer, error) {
	return s.loadOwned(ctx, customerID)
}

// List returns all customers of the caller's business.
func (s *CustomerService) List(ctx context.Context) ([]model.Customer, error) {
	businessID, err := tenant.RequireBusinessID(ctx)
	if err != nil {
		return nil, err
	}

	var customers []model.Customer
	err = s.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("created_at DESC").
		Find(&customers).Error
	return customers, err
}

// Update modifies a customer of the caller's business.
func (s *CustomerService) Update(ctx context.Context, customerID uint, input UpdateCustomerInput) (*model.Customer, error) {
	customer, err := s.loadOwned(ctx, customerID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Email != nil {
		updates["email"] = *input.Email
	}
	if input.PhoneNumber != nil {
		updates["phone_number"] = *input.PhoneNumber
	}
	if input.PreferredLanguage != nil {
		updates["preferred_language"] = *input.PreferredLanguage
	}
	if input.Active != nil {
		updates["active"] = *input.Active
	}
	if len(updates) == 0 {
		return customer, nil
	}

	if err := s.db.WithContext(ctx).Model(customer).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("email already registered for business %d: %w",
				customer.BusinessID, ErrDuplicateCustomerEmail)
		}
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}
	return customer, nil
}

// Deactivate marks a customer inactive. Existing subscriptions keep running;
// only new subscription creation is blocked.
func (s *CustomerService) Deactivate(ctx context.Context, customerID uint) error {
	customer, err := s.loadOwned(ctx, customerID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(customer).Update("active", false).Error
}

// Delete soft-deletes a customer of the caller's business.
func (s *CustomerService) Delete(ctx context.Context, customerID uint) error {
	customer, err := s.loadOwned(ctx, customerID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(customer).Error
}

func (s *CustomerService) loadOwned(ctx context.Context, customerID uint) (*model.Customer, error) {
	var customer model.Customer
	err := s.db.WithContext(ctx).First(&customer, customerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("customer %d: %w", customerID, ErrNotFound)
		}
		return nil, err
	}
	if err := tenant.AssertOwnedResource(ctx, &customer); err != nil {
		logger.FromContext(ctx).Warn("Cross-tenant customer access attempt",
			zap.Uint("customer_id", customer.ID),
			zap.Uint("owner_business_id", customer.BusinessID))
		return nil, err
	}
	return &customer, nil
}
