package tenant

import (
	"context"
	"errors"
)

var (
	// ErrNoTenantContext is returned when an operation runs without an
	// authenticated business in its context.
	ErrNoTenantContext = errors.New("no business context available")

	// ErrPermissionDenied is returned when a resource belongs to a different
	// business than the one in the request context.
	ErrPermissionDenied = errors.New("access denied: resource belongs to a different business")
)

type contextKey struct{}

// Tenant carries the authenticated business identity for one request.
// It lives only inside the request's context.Context, so it is released
// on every exit path together with the request itself and can never leak
// into another request.
type Tenant struct {
	BusinessID uint
	UserEmail  string
}

// Owned is implemented by every persisted resource that belongs to a
// business, directly or through its parent aggregate. Access checks go
// through this interface instead of inspecting concrete types.
type Owned interface {
	OwnerBusinessID() uint
}

// WithBusiness returns a context carrying the authenticated business identity.
func WithBusiness(ctx context.Context, businessID uint, userEmail string) context.Context {
	return context.WithValue(ctx, contextKey{}, Tenant{BusinessID: businessID, UserEmail: userEmail})
}

// FromContext returns the tenant identity stored in ctx, if any.
func FromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(contextKey{}).(Tenant)
	return t, ok
}

// RequireBusinessID returns the business id from ctx or ErrNoTenantContext.
func RequireBusinessID(ctx context.Context) (uint, error) {
	t, ok := FromContext(ctx)
	if !ok {
		return 0, ErrNoTenantContext
	}
	return t.BusinessID, nil
}

// UserEmail returns the authenticated user email, or "" when absent.
func UserEmail(ctx context.Context) string {
	t, _ := FromContext(ctx)
	return t.UserEmail
}

// AssertOwned verifies that the resource's owning business matches the
// business in ctx. Returns ErrNoTenantContext when no tenant is present and
// ErrPermissionDenied on a cross-business access attempt.
func AssertOwned(ctx context.Context, resourceBusinessID uint) error {
	businessID, err := RequireBusinessID(ctx)
	if err != nil {
		return err
	}
	if businessID != resourceBusinessID {
		return ErrPermissionDenied
	}
	return nil
}

// AssertOwnedResource is AssertOwned for anything implementing Owned.
func AssertOwnedResource(ctx context.Context, resource Owned) error {
	return AssertOwned(ctx, resource.OwnerBusinessID())
}
