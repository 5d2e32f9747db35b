package tenancy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

// CachedStore is a read-through Redis cache in front of another Store.
// Redis failures degrade to the underlying store. Voice API keys never leave
// the process: Redis holds the profile and keys stay in a local map.
type CachedStore struct {
	next   Store
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger

	mu   sync.RWMutex
	keys map[string]string
}

// NewCachedStore wraps next. A nil client returns next unchanged.
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger *logging.Logger) Store {
	if client == nil {
		return next
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedStore{next: next, redis: client, ttl: ttl, logger: logger, keys: make(map[string]string)}
}

func (s *CachedStore) key(tenantID string) string {
	return fmt.Sprintf("tenant:record:%s", tenantID)
}

// Get returns the cached tenant or loads and caches it.
func (s *CachedStore) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID)).Bytes()
	switch {
	case err == nil:
		var t Tenant
		if jsonErr := json.Unmarshal(data, &t); jsonErr != nil {
			s.logger.Warn("tenant cache entry corrupt", "tenant_id", tenantID)
			break
		}
		s.mu.RLock()
		key, ok := s.keys[tenantID]
		s.mu.RUnlock()
		if ok {
			t.VoiceAPIKey = key
			return &t, nil
		}
	case err != redis.Nil:
		s.logger.Warn("tenant cache read failed", "tenant_id", tenantID, "error", err)
	}

	t, err := s.next.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.keys[tenantID] = t.VoiceAPIKey
	s.mu.Unlock()

	profile := *t
	profile.VoiceAPIKey = ""
	if data, err := json.Marshal(profile); err == nil {
		if err := s.redis.Set(ctx, s.key(tenantID), data, s.ttl).Err(); err != nil {
			s.logger.Warn("tenant cache write failed", "tenant_id", tenantID, "error", err)
		}
	}
	return t, nil
}

// Invalidate drops a cached tenant.
func (s *CachedStore) Invalidate(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	delete(s.keys, tenantID)
	s.mu.Unlock()
	if err := s.redis.Del(ctx, s.key(tenantID)).Err(); err != nil {
		return fmt.Errorf("tenancy: invalidate cache: %w", err)
	}
	return nil
}
