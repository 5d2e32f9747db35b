package tenancy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Resolver confirms that a tenant id from event metadata names a live tenant.
type Resolver struct {
	store Store
}

// NewResolver builds a resolver on store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the live tenant for tenantID.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (*Tenant, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrTenantIDMissing
	}
	parsed, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a tenant id", ErrTenantNotFound, tenantID)
	}
	t, err := r.store.Get(ctx, parsed.String())
	if err != nil {
		return nil, err
	}
	if !t.Live() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTenantInactive, t.ID, t.Status)
	}
	return t, nil
}
