package calls

import (
	"context"
	"sync"
	"time"
)

// Repository persists calls. Upsert must be atomic per ExternalCallID.
type Repository interface {
	Upsert(ctx context.Context, p Patch) (*Call, error)
	GetByExternalID(ctx context.Context, externalCallID string) (*Call, error)
}

// InMemoryRepository applies Merge under a mutex.
type InMemoryRepository struct {
	mu    sync.Mutex
	calls map[string]*Call
	now   func() time.Time
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		calls: make(map[string]*Call),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) Upsert(_ context.Context, p Patch) (*Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.calls[p.Call.ExternalCallID]
	if existing != nil && existing.TenantID != p.Call.TenantID {
		return nil, ErrTenantMismatch
	}
	merged := Merge(existing, p, r.now())
	r.calls[merged.ExternalCallID] = merged
	out := *merged
	return &out, nil
}

func (r *InMemoryRepository) GetByExternalID(_ context.Context, externalCallID string) (*Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[externalCallID]
	if !ok {
		return nil, ErrCallNotFound
	}
	out := *c
	return &out, nil
}

// Len returns the number of stored calls.
func (r *InMemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
