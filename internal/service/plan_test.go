package service

import (
	"testing"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/pkg/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCreate(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")

	svc := NewPlanService(db)
	plan, err := svc.Create(tenantCtx(business.ID), CreatePlanInput{
		Name:         "Pro",
		Price:        mustDecimal(t, "29.99"),
		BillingCycle: model.BillingCycleMonthly,
		TrialDays:    14,
	})
	require.NoError(t, err)

	assert.Equal(t, business.ID, plan.BusinessID)
	assert.True(t, plan.Active)
	assert.Equal(t, 14, plan.TrialDays)
}

func TestPlanCreate_Validation(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")

	svc := NewPlanService(db)
	ctx := tenantCtx(business.ID)

	_, err := svc.Create(ctx, CreatePlanInput{
		Name:         "Weekly",
		Price:        mustDecimal(t, "5.00"),
		BillingCycle: model.BillingCycle("WEEKLY"),
	})
	assert.ErrorIs(t, err, ErrInvalidBillingCycle)

	_, err = svc.Create(ctx, CreatePlanInput{
		Name:         "Negative",
		Price:        mustDecimal(t, "-1.00"),
		BillingCycle: model.BillingCycleMonthly,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Create(ctx, CreatePlanInput{
		Name:         "Bad trial",
		Price:        mustDecimal(t, "5.00"),
		BillingCycle: model.BillingCycleMonthly,
		TrialDays:    -3,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPlanUpdate_DoesNotTouchExistingSubscriptions(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	customer := seedCustomer(t, db, business.ID, "cust@test.example")
	plan := seedPlan(t, db, business.ID, "10.00", model.BillingCycleMonthly, 0)

	ctx := tenantCtx(business.ID)
	subscription, err := NewSubscriptionService(db).Create(ctx, CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
	})
	require.NoError(t, err)

	newPrice := mustDecimal(t, "20.00")
	_, err = NewPlanService(db).Update(ctx, plan.ID, UpdatePlanInput{Price: &newPrice})
	require.NoError(t, err)

	got, err := NewSubscriptionService(db).GetByID(ctx, subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, got.Status)
	assert.NotNil(t, got.NextBillingDate)
}

func TestPlanDeactivate_BlocksNewSubscriptions(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	customer := seedCustomer(t, db, business.ID, "cust@test.example")
	plan := seedPlan(t, db, business.ID, "10.00", model.BillingCycleMonthly, 0)

	ctx := tenantCtx(business.ID)
	require.NoError(t, NewPlanService(db).Deactivate(ctx, plan.ID))

	_, err := NewSubscriptionService(db).Create(ctx, CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlanTenantIsolation(t *testing.T) {
	db := setupTestDB(t)
	businessA := seedBusiness(t, db, "a@test.example")
	businessB := seedBusiness(t, db, "b@test.example")
	planA := seedPlan(t, db, businessA.ID, "10.00", model.BillingCycleMonthly, 0)

	svc := NewPlanService(db)

	_, err := svc.GetByID(tenantCtx(businessB.ID), planA.ID)
	assert.ErrorIs(t, err, tenant.ErrPermissionDenied)
}
