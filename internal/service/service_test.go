package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/pkg/tenant"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupTestDB opens a per-test in-memory database with the full schema.
// TranslateError is on, like production, so unique-constraint violations
// surface as gorm.ErrDuplicatedKey.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Business{},
		&model.Customer{},
		&model.SubscriptionPlan{},
		&model.Subscription{},
		&model.Invoice{},
		&model.Payment{},
	))
	return db
}

func seedBusiness(t *testing.T, db *gorm.DB, email string) *model.Business {
	t.Helper()
	business := &model.Business{
		Name:     "Test Business",
		Email:    email,
		Active:   true,
		Timezone: "UTC",
		Currency: "USD",
	}
	require.NoError(t, db.Create(business).Error)
	return business
}

func seedCustomer(t *testing.T, db *gorm.DB, businessID uint, email string) *model.Customer {
	t.Helper()
	customer := &model.Customer{
		Name:              "Test Customer",
		Email:             email,
		PreferredLanguage: "en",
		Active:            true,
		BusinessID:        businessID,
	}
	require.NoError(t, db.Create(customer).Error)
	return customer
}

func seedPlan(t *testing.T, db *gorm.DB, businessID uint, price string, cycle model.BillingCycle, trialDays int) *model.SubscriptionPlan {
	t.Helper()
	amount, err := decimal.NewFromString(price)
	require.NoError(t, err)
	plan := &model.SubscriptionPlan{
		Name:         "Test Plan",
		Price:        amount,
		BillingCycle: cycle,
		TrialDays:    trialDays,
		Active:       true,
		BusinessID:   businessID,
	}
	require.NoError(t, db.Create(plan).Error)
	return plan
}

// tenantCtx builds a request context authenticated as the given business.
func tenantCtx(businessID uint) context.Context {
	return tenant.WithBusiness(context.Background(), businessID, "owner@test.example")
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}
