// Package tenancy resolves the customer organization a machine-to-machine
// call event belongs to.
package tenancy

import (
	"errors"
	"strings"
	"time"
)

// StatusActive marks a tenant whose events are processed.
const StatusActive = "active"

// MetadataKeys are the call metadata keys that may carry a tenant id, in priority order.
var MetadataKeys = []string{"tenant_id", "tenantId"}

var (
	// ErrTenantIDMissing is returned when event metadata carries no tenant id.
	ErrTenantIDMissing = errors.New("tenancy: tenant id missing")
	// ErrTenantNotFound is returned when the id does not match a tenant.
	ErrTenantNotFound = errors.New("tenancy: tenant not found")
	// ErrTenantInactive is returned for suspended or closed tenants.
	ErrTenantInactive = errors.New("tenancy: tenant not active")
)

// Tenant is an isolated customer organization and its voice plan settings.
type Tenant struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Status        string    `json:"status"`
	VoiceAPIKey   string    `json:"voice_api_key,omitempty"`
	CostPerMinute float64   `json:"cost_per_minute,omitempty"`
	NotifyEmail   string    `json:"notify_email,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Credentials carries the provider key a request should authenticate with.
type Credentials struct {
	APIKey string
	// Fallback is true when the tenant has no key of its own.
	Fallback bool
}

// Live reports whether events for the tenant should be processed.
func (t *Tenant) Live() bool {
	return t != nil && strings.EqualFold(strings.TrimSpace(t.Status), StatusActive)
}

// Credentials returns the tenant's own key, or fallbackKey when none is configured.
func (t *Tenant) Credentials(fallbackKey string) Credentials {
	if t != nil {
		if key := strings.TrimSpace(t.VoiceAPIKey); key != "" {
			return Credentials{APIKey: key}
		}
	}
	return Credentials{APIKey: strings.TrimSpace(fallbackKey), Fallback: true}
}

// Rate returns the tenant's per-minute cost, or defaultRate when unset.
func (t *Tenant) Rate(defaultRate float64) float64 {
	if t != nil && t.CostPerMinute > 0 {
		return t.CostPerMinute
	}
	return defaultRate
}
