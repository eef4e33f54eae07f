package service

import (
	"context"
	"testing"
	"time"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/Okemwag/Subscribee/pkg/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionCreate_TrialPlan(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	customer := seedCustomer(t, db, business.ID, "cust@test.example")
	plan := seedPlan(t, db, business.ID, "29.99", model.BillingCycleMonthly, 14)

	svc := NewSubscriptionService(db)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	subscription, err := svc.Create(tenantCtx(business.ID), CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
		StartDate:          &start,
	})
	require.NoError(t, err)

	assert.Equal(t, model.SubscriptionStatusTrial, subscription.Status)
	require.NotNil(t, subscription.EndDate)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *subscription.EndDate)
	require.NotNil(t, subscription.NextBillingDate)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), *subscription.NextBillingDate)
}

func TestSubscriptionCreate_NoTrial(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	customer := seedCustomer(t, db, business.ID, "cust@test.example")
	plan := seedPlan(t, db, business.ID, "99.00", model.BillingCycleYearly, 0)

	svc := NewSubscriptionService(db)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	subscription, err := svc.Create(tenantCtx(business.ID), CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
		StartDate:          &start,
	})
	require.NoError(t, err)

	assert.Equal(t, model.SubscriptionStatusActive, subscription.Status)
	assert.Nil(t, subscription.EndDate)
	require.NotNil(t, subscription.NextBillingDate)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *subscription.NextBillingDate)
}

func TestSubscriptionCreate_InactiveCustomer(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	customer := seedCustomer(t, db, business.ID, "cust@test.example")
	plan := seedPlan(t, db, business.ID, "10.00", model.BillingCycleMonthly, 0)

	require.NoError(t, db.Model(customer).Update("active", false).Error)

	svc := NewSubscriptionService(db)
	_, err := svc.Create(tenantCtx(business.ID), CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
	})
	assert.ErrorIs(t, err, ErrCustomerInactive)
}

func TestSubscriptionCreate_DuplicateActivePlan(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	customer := seedCustomer(t, db, business.ID, "cust@test.example")
	plan := seedPlan(t, db, business.ID, "10.00", model.BillingCycleMonthly, 0)

	svc := NewSubscriptionService(db)
	ctx := tenantCtx(business.ID)

	_, err := svc.Create(ctx, CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
	})
	assert.ErrorIs(t, err, ErrDuplicateActiveSubscription)
}

func TestSubscriptionCreate_CrossTenant(t *testing.T) {
	db := setupTestDB(t)
	businessA := seedBusiness(t, db, "a@test.example")
	businessB := seedBusiness(t, db, "b@test.example")
	customerB := seedCustomer(t, db, businessB.ID, "cust@test.example")
	planB := seedPlan(t, db, businessB.ID, "10.00", model.BillingCycleMonthly, 0)

	svc := NewSubscriptionService(db)

	// Business A must not be able to subscribe business B's customer
	_, err := svc.Create(tenantCtx(businessA.ID), CreateSubscriptionInput{
		CustomerID:         customerB.ID,
		SubscriptionPlanID: planB.ID,
	})
	assert.ErrorIs(t, err, tenant.ErrPermissionDenied)
}

func TestSubscriptionCreate_PlanFromOtherBusiness(t *testing.T) {
	db := setupTestDB(t)
	businessA := seedBusiness(t, db, "a@test.example")
	businessB := seedBusiness(t, db, "b@test.example")
	customerA := seedCustomer(t, db, businessA.ID, "cust@test.example")
	planB := seedPlan(t, db, businessB.ID, "10.00", model.BillingCycleMonthly, 0)

	svc := NewSubscriptionService(db)

	_, err := svc.Create(tenantCtx(businessA.ID), CreateSubscriptionInput{
		CustomerID:         customerA.ID,
		SubscriptionPlanID: planB.ID,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubscriptionCancel(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	customer := seedCustomer(t, db, business.ID, "cust@test.example")
	plan := seedPlan(t, db, business.ID, "10.00", model.BillingCycleMonthly, 0)

	svc := NewSubscriptionService(db)
	ctx := tenantCtx(business.ID)

	subscription, err := svc.Create(ctx, CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, subscription.ID, "customer request"))

	got, err := svc.GetByID(ctx, subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusCancelled, got.Status)
	assert.NotNil(t, got.EndDate)
	assert.Nil(t, got.NextBillingDate)

	// Cancellation is terminal
	err = svc.Cancel(ctx, subscription.ID, "again")
	var transitionErr *model.InvalidTransitionError
	assert.ErrorAs(t, err, &transitionErr)
}

func TestSubscriptionTransition_ActiveToTrialRejected(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	customer := seedCustomer(t, db, business.ID, "cust@test.example")
	plan := seedPlan(t, db, business.ID, "10.00", model.BillingCycleMonthly, 0)

	svc := NewSubscriptionService(db)
	ctx := tenantCtx(business.ID)

	subscription, err := svc.Create(ctx, CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
	})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, subscription.ID, model.SubscriptionStatusTrial)
	var transitionErr *model.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, "ACTIVE", transitionErr.From)
	assert.Equal(t, "TRIAL", transitionErr.To)
}

func TestSubscriptionRenew_TrialBecomesActive(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	customer := seedCustomer(t, db, business.ID, "cust@test.example")
	plan := seedPlan(t, db, business.ID, "10.00", model.BillingCycleMonthly, 7)

	svc := NewSubscriptionService(db)
	ctx := tenantCtx(business.ID)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	subscription, err := svc.Create(ctx, CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
		StartDate:          &start,
	})
	require.NoError(t, err)
	require.Equal(t, model.SubscriptionStatusTrial, subscription.Status)

	renewed, err := svc.Renew(ctx, subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, renewed.Status)
	require.NotNil(t, renewed.NextBillingDate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *renewed.NextBillingDate)
}

func TestSubscriptionRenew_CancelledRejected(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	customer := seedCustomer(t, db, business.ID, "cust@test.example")
	plan := seedPlan(t, db, business.ID, "10.00", model.BillingCycleMonthly, 0)

	svc := NewSubscriptionService(db)
	ctx := tenantCtx(business.ID)

	subscription, err := svc.Create(ctx, CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, subscription.ID, "test"))

	_, err = svc.Renew(ctx, subscription.ID)
	assert.ErrorIs(t, err, ErrSubscriptionNotBillable)
}

func TestSubscriptionTransition_ConcurrentConflict(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	customer := seedCustomer(t, db, business.ID, "cust@test.example")
	plan := seedPlan(t, db, business.ID, "10.00", model.BillingCycleMonthly, 0)

	svc := NewSubscriptionService(db)
	ctx := tenantCtx(business.ID)

	subscription, err := svc.Create(ctx, CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
	})
	require.NoError(t, err)

	// Simulate another writer bumping the version between load and update
	loaded, err := svc.GetByID(ctx, subscription.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.Subscription{}).
		Where("id = ?", subscription.ID).
		Update("version", loaded.Version+1).Error)

	err = svc.transition(ctx, loaded, model.SubscriptionStatusSuspended)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestProcessExpired(t *testing.T) {
	db := setupTestDB(t)
	business := seedBusiness(t, db, "biz@test.example")
	customer := seedCustomer(t, db, business.ID, "cust@test.example")
	plan := seedPlan(t, db, business.ID, "10.00", model.BillingCycleMonthly, 0)

	svc := NewSubscriptionService(db)
	ctx := tenantCtx(business.ID)

	expired, err := svc.Create(ctx, CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan.ID,
	})
	require.NoError(t, err)

	plan2 := seedPlan(t, db, business.ID, "20.00", model.BillingCycleMonthly, 0)
	current, err := svc.Create(ctx, CreateSubscriptionInput{
		CustomerID:         customer.ID,
		SubscriptionPlanID: plan2.ID,
	})
	require.NoError(t, err)

	pastEnd := time.Now().AddDate(0, 0, -1)
	require.NoError(t, db.Model(&model.Subscription{}).
		Where("id = ?", expired.ID).
		Update("end_date", pastEnd).Error)

	futureEnd := time.Now().AddDate(0, 1, 0)
	require.NoError(t, db.Model(&model.Subscription{}).
		Where("id = ?", current.ID).
		Update("end_date", futureEnd).Error)

	// The sweep runs without a tenant context
	processed, err := svc.ProcessExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	var got model.Subscription
	require.NoError(t, db.First(&got, expired.ID).Error)
	assert.Equal(t, model.SubscriptionStatusExpired, got.Status)
	assert.Nil(t, got.NextBillingDate)

	got = model.Subscription{}
	require.NoError(t, db.First(&got, current.ID).Error)
	assert.Equal(t, model.SubscriptionStatusActive, got.Status)
}

func TestSubscriptionListByBusiness_TenantIsolation(t *testing.T) {
	db := setupTestDB(t)
	businessA := seedBusiness(t, db, "a@test.example")
	businessB := seedBusiness(t, db, "b@test.example")
	customerA := seedCustomer(t, db, businessA.ID, "custa@test.example")
	customerB := seedCustomer(t, db, businessB.ID, "custb@test.example")
	planA := seedPlan(t, db, businessA.ID, "10.00", model.BillingCycleMonthly, 0)
	planB := seedPlan(t, db, businessB.ID, "10.00", model.BillingCycleMonthly, 0)

	svc := NewSubscriptionService(db)

	subA, err := svc.Create(tenantCtx(businessA.ID), CreateSubscriptionInput{
		CustomerID:         customerA.ID,
		SubscriptionPlanID: planA.ID,
	})
	require.NoError(t, err)
	_, err = svc.Create(tenantCtx(businessB.ID), CreateSubscriptionInput{
		CustomerID:         customerB.ID,
		SubscriptionPlanID: planB.ID,
	})
	require.NoError(t, err)

	listA, err := svc.ListByBusiness(tenantCtx(businessA.ID), nil)
	require.NoError(t, err)
	require.Len(t, listA, 1)
	assert.Equal(t, subA.ID, listA[0].ID)

	// Business B cannot read A's subscription
	_, err = svc.GetByID(tenantCtx(businessB.ID), subA.ID)
	assert.ErrorIs(t, err, tenant.ErrPermissionDenied)
}
