package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ownedResource struct {
	businessID uint
}

func (r *ownedResource) OwnerBusinessID() uint {
	return r.businessID
}

func TestWithBusiness_RoundTrip(t *testing.T) {
	ctx := WithBusiness(context.Background(), 42, "owner@acme.test")

	tenant, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, uint(42), tenant.BusinessID)
	assert.Equal(t, "owner@acme.test", tenant.UserEmail)
	assert.Equal(t, "owner@acme.test", UserEmail(ctx))
}

func TestFromContext_Empty(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "", UserEmail(context.Background()))
}

func TestRequireBusinessID(t *testing.T) {
	ctx := WithBusiness(context.Background(), 7, "a@b.test")
	id, err := RequireBusinessID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)

	_, err = RequireBusinessID(context.Background())
	assert.ErrorIs(t, err, ErrNoTenantContext)
}

func TestAssertOwned(t *testing.T) {
	ctx := WithBusiness(context.Background(), 1, "a@b.test")

	assert.NoError(t, AssertOwned(ctx, 1))
	assert.ErrorIs(t, AssertOwned(ctx, 2), ErrPermissionDenied)
	assert.ErrorIs(t, AssertOwned(context.Background(), 1), ErrNoTenantContext)
}

func TestAssertOwnedResource(t *testing.T) {
	ctx := WithBusiness(context.Background(), 9, "a@b.test")

	assert.NoError(t, AssertOwnedResource(ctx, &ownedResource{businessID: 9}))
	assert.ErrorIs(t, AssertOwnedResource(ctx, &ownedResource{businessID: 10}), ErrPermissionDenied)
}

func TestWithBusiness_DoesNotLeakAcrossContexts(t *testing.T) {
	base := context.Background()
	ctxA := WithBusiness(base, 1, "a@a.test")
	ctxB := WithBusiness(base, 2, "b@b.test")

	a, _ := FromContext(ctxA)
	b, _ := FromContext(ctxB)
	assert.Equal(t, uint(1), a.BusinessID)
	assert.Equal(t, uint(2), b.BusinessID)

	// The parent context stays clean
	_, ok := FromContext(base)
	assert.False(t, ok)
}
