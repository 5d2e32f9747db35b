package contacts

import (
	"context"
	"sync"
)

// Repository stores contacts. CreateIfAbsent must be a single conditional insert
// keyed on (tenant, phone) so concurrent resolutions converge on one row.
type Repository interface {
	FindByPhone(ctx context.Context, tenantID, phone string) (*Contact, error)
	CreateIfAbsent(ctx context.Context, c *Contact) (*Contact, bool, error)
}

// InMemoryRepository keeps contacts in process.
type InMemoryRepository struct {
	mu       sync.RWMutex
	contacts map[string]*Contact
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{contacts: make(map[string]*Contact)}
}

func phoneKey(tenantID, phone string) string {
	return tenantID + "|" + phone
}

func (r *InMemoryRepository) FindByPhone(_ context.Context, tenantID, phone string) (*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[phoneKey(tenantID, phone)]
	if !ok {
		return nil, ErrContactNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *InMemoryRepository) CreateIfAbsent(_ context.Context, c *Contact) (*Contact, bool, error) {
	key := phoneKey(c.TenantID, c.Phone)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.contacts[key]; ok {
		clone := *existing
		return &clone, false, nil
	}
	stored := *c
	r.contacts[key] = &stored
	clone := stored
	return &clone, true, nil
}

// Count returns the number of stored contacts for a tenant.
func (r *InMemoryRepository) Count(tenantID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.contacts {
		if c.TenantID == tenantID {
			n++
		}
	}
	return n
}
