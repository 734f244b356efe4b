package vectorstore

import (
	"context"
	"errors"
)

// ErrInvalidTenant is returned when a tenant identifier is invalid.
var ErrInvalidTenant = errors.New("invalid tenant identifier")

// tenantContextKey is the context key for TenantInfo.
type tenantContextKey struct{}

// TenantInfo identifies the condominium owning a request. It travels in
// the request context so lower layers can build fail-closed filters
// without re-plumbing the id through every signature.
type TenantInfo struct {
	// TenantID is the condominium identifier (required).
	TenantID string
}

// Validate checks that the tenant id is present.
func (t *TenantInfo) Validate() error {
	if t == nil || t.TenantID == "" {
		return ErrInvalidTenant
	}
	return nil
}

// Filter returns the tenant-scoped search filter.
func (t *TenantInfo) Filter() Filter {
	return Filter{TenantID: t.TenantID}
}

// ContextWithTenant adds TenantInfo to a context.
func ContextWithTenant(ctx context.Context, tenant *TenantInfo) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenant)
}

// TenantFromContext extracts TenantInfo from a context.
// Returns ErrMissingTenant if absent - fail closed.
func TenantFromContext(ctx context.Context) (*TenantInfo, error) {
	tenant, ok := ctx.Value(tenantContextKey{}).(*TenantInfo)
	if !ok || tenant == nil {
		return nil, ErrMissingTenant
	}
	return tenant, nil
}
