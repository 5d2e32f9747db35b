package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Store loads tenants by id.
type Store interface {
	Get(ctx context.Context, tenantID string) (*Tenant, error)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads tenants from the tenants table.
type PostgresStore struct {
	db rowQuerier
}

// NewPostgresStore builds a store on a pgx pool (or anything with QueryRow).
func NewPostgresStore(db rowQuerier) *PostgresStore {
	if db == nil {
		panic("tenancy: pgx pool required")
	}
	return &PostgresStore{db: db}
}

// Get fetches a tenant, mapping a missing row to ErrTenantNotFound.
func (s *PostgresStore) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	query := `
		SELECT id, name, status, COALESCE(voice_api_key, ''), COALESCE(cost_per_minute, 0),
		       COALESCE(notify_email, ''), created_at
		FROM tenants
		WHERE id = $1
	`
	var t Tenant
	err := s.db.QueryRow(ctx, query, tenantID).Scan(
		&t.ID,
		&t.Name,
		&t.Status,
		&t.VoiceAPIKey,
		&t.CostPerMinute,
		&t.NotifyEmail,
		&t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenancy: get tenant: %w", err)
	}
	return &t, nil
}

// MemoryStore keeps tenants in process. Used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewMemoryStore creates a store seeded with tenants.
func NewMemoryStore(tenants ...*Tenant) *MemoryStore {
	s := &MemoryStore{tenants: make(map[string]*Tenant)}
	for _, t := range tenants {
		s.Put(t)
	}
	return s
}

// LoadMemoryStore parses a JSON array of tenants.
func LoadMemoryStore(raw string) (*MemoryStore, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NewMemoryStore(), nil
	}
	var tenants []*Tenant
	if err := json.Unmarshal([]byte(raw), &tenants); err != nil {
		return nil, fmt.Errorf("tenancy: parse tenants json: %w", err)
	}
	return NewMemoryStore(tenants...), nil
}

// Put inserts or replaces a tenant.
func (s *MemoryStore) Put(t *Tenant) {
	if t == nil || t.ID == "" {
		return
	}
	clone := *t
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.tenants[strings.ToLower(strings.TrimSpace(t.ID))] = &clone
	s.mu.Unlock()
}

func (s *MemoryStore) Get(_ context.Context, tenantID string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	clone := *t
	return &clone, nil
}
