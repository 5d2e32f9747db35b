package activity

import (
	"sort"
	"sync"

	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

// DefaultMemoryCapacity bounds the in-process timeline; the oldest rows go first.
const DefaultMemoryCapacity = 10000

type memoryLog struct {
	mu       sync.Mutex
	capacity int
	entries  []Activity
}

// NewMemoryService keeps up to capacity activities in process for memory mode.
func NewMemoryService(capacity int, logger *logging.Logger) *Service {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	svc := NewService(nil, logger)
	svc.mem = &memoryLog{capacity: capacity}
	return svc
}

func (m *memoryLog) append(a Activity) {
	a.Tags = append([]string(nil), a.Tags...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, a)
	if over := len(m.entries) - m.capacity; over > 0 {
		m.entries = append([]Activity(nil), m.entries[over:]...)
	}
}

func (m *memoryLog) list(f Filter) []Activity {
	m.mu.Lock()
	var out []Activity
	for _, a := range m.entries {
		if a.TenantID != f.TenantID {
			continue
		}
		if f.CallID != "" && a.CallID != f.CallID {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if !f.Since.IsZero() && a.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, a)
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
