// Package tenant binds the authenticated tenant identifier into the request
// context and stamps it onto every tenant-scoped database operation. The
// guard fails closed: with no tenant bound, no scoped operation runs.
package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNoTenant indicates a tenant-scoped operation was attempted without a
// tenant bound in the context.
var ErrNoTenant = errors.New("no tenant bound in context")

type contextKey struct{}

// WithTenant returns a context carrying the tenant identifier. Tenant
// identity is always threaded explicitly; nothing reads an ambient global.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, contextKey{}, tenantID)
}

// FromContext extracts the bound tenant identifier. It returns ErrNoTenant
// when none is bound or the bound value is the zero UUID.
func FromContext(ctx context.Context) (uuid.UUID, error) {
	tenantID, ok := ctx.Value(contextKey{}).(uuid.UUID)
	if !ok || tenantID == uuid.Nil {
		return uuid.Nil, ErrNoTenant
	}
	return tenantID, nil
}
