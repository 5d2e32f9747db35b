package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/crm-voice-sync/internal/activity"
	"github.com/wolfman30/crm-voice-sync/internal/calls"
	appconfig "github.com/wolfman30/crm-voice-sync/internal/config"
	"github.com/wolfman30/crm-voice-sync/internal/contacts"
	"github.com/wolfman30/crm-voice-sync/internal/tenancy"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

// Stores groups the persistence layer shared by the binaries.
type Stores struct {
	Tenants    tenancy.Store
	Calls      calls.Repository
	Contacts   contacts.Repository
	Activities *activity.Service

	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

// Memory reports whether the stores are in-process.
func (s *Stores) Memory() bool {
	return s.pool == nil
}

// Close releases database handles.
func (s *Stores) Close() {
	if s == nil {
		return
	}
	if s.sqlDB != nil {
		_ = s.sqlDB.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// BuildStores opens Postgres, or falls back to in-memory stores seeded from
// MEMORY_TENANTS_JSON when no database is configured. Tenant reads are cached
// in Redis when redisClient is non-nil.
func BuildStores(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (*Stores, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if cfg.MemoryMode() {
		tenants, err := tenancy.LoadMemoryStore(cfg.MemoryTenantsJSON)
		if err != nil {
			return nil, err
		}
		logger.Warn("using in-memory stores; data is lost on restart",
			"activity_capacity", activity.DefaultMemoryCapacity,
		)
		return &Stores{
			Tenants:    tenancy.NewCachedStore(tenants, redisClient, cfg.TenantCacheTTL, logger),
			Calls:      calls.NewInMemoryRepository(),
			Contacts:   contacts.NewInMemoryRepository(),
			Activities: activity.NewMemoryService(activity.DefaultMemoryCapacity, logger),
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)

	return &Stores{
		Tenants:    tenancy.NewCachedStore(tenancy.NewPostgresStore(pool), redisClient, cfg.TenantCacheTTL, logger),
		Calls:      calls.NewPostgresRepository(pool),
		Contacts:   contacts.NewPostgresRepository(pool),
		Activities: activity.NewService(sqlDB, logger),
		pool:       pool,
		sqlDB:      sqlDB,
	}, nil
}
