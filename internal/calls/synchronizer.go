package calls

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/crm-voice-sync/internal/contacts"
	"github.com/wolfman30/crm-voice-sync/internal/tenancy"
	"github.com/wolfman30/crm-voice-sync/internal/voice/retellclient"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

var syncTracer = otel.Tracer("crm.internal.calls.synchronizer")

// CallFetcher loads full call detail from the provider.
type CallFetcher interface {
	GetCall(ctx context.Context, callID string) (*retellclient.Call, error)
}

// FetcherFor returns a fetcher authenticated with creds.
type FetcherFor func(creds tenancy.Credentials) CallFetcher

// RetellFetcher scopes a shared provider client to per-tenant credentials.
func RetellFetcher(client *retellclient.Client) FetcherFor {
	return func(creds tenancy.Credentials) CallFetcher {
		return client.WithAPIKey(creds.APIKey)
	}
}

// ContactResolver finds or creates the contact for a phone number.
type ContactResolver interface {
	Resolve(ctx context.Context, tenantID, phone string) (*contacts.Contact, bool, error)
}

// FollowUpNotifier is told about ended calls that need a human follow-up.
type FollowUpNotifier interface {
	NotifyFollowUp(ctx context.Context, tenant *tenancy.Tenant, call *Call) error
}

// SynchronizerConfig wires a Synchronizer.
type SynchronizerConfig struct {
	Calls                Repository
	Contacts             ContactResolver
	Fetcher              FetcherFor
	FallbackAPIKey       string
	DefaultCostPerMinute float64
	Notifier             FollowUpNotifier
	Logger               *logging.Logger
}

// Synchronizer merges provider call events into the CRM call record.
type Synchronizer struct {
	calls       Repository
	contacts    ContactResolver
	fetcher     FetcherFor
	fallbackKey string
	defaultRate float64
	notifier    FollowUpNotifier
	logger      *logging.Logger
}

// NewSynchronizer builds a synchronizer from cfg.
func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.DefaultCostPerMinute <= 0 {
		cfg.DefaultCostPerMinute = DefaultCostPerMinute
	}
	return &Synchronizer{
		calls:       cfg.Calls,
		contacts:    cfg.Contacts,
		fetcher:     cfg.Fetcher,
		fallbackKey: cfg.FallbackAPIKey,
		defaultRate: cfg.DefaultCostPerMinute,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
	}
}

// HandleStarted creates or refreshes the minimal record for a connected call.
func (s *Synchronizer) HandleStarted(ctx context.Context, tenant *tenancy.Tenant, call retellclient.Call) (*Call, error) {
	ctx, span := syncTracer.Start(ctx, "calls.sync.started")
	defer span.End()
	span.SetAttributes(attribute.String("crm.call_id", call.CallID), attribute.String("crm.tenant_id", tenant.ID))

	contactID := s.resolveContact(ctx, tenant.ID, call)
	return s.apply(ctx, NewStartPatch(tenant.ID, tenant.Rate(s.defaultRate), call, contactID))
}

// HandleEnded fetches the full call with the tenant's credentials and syncs it.
func (s *Synchronizer) HandleEnded(ctx context.Context, tenant *tenancy.Tenant, call retellclient.Call) (*Call, error) {
	ctx, span := syncTracer.Start(ctx, "calls.sync.ended")
	defer span.End()
	span.SetAttributes(attribute.String("crm.call_id", call.CallID), attribute.String("crm.tenant_id", tenant.ID))

	creds := tenant.Credentials(s.fallbackKey)
	full, err := s.fetcher(creds).GetCall(ctx, call.CallID)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("call detail fetch failed",
			"call_id", call.CallID,
			"tenant_id", tenant.ID,
			"fallback_credentials", creds.Fallback,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if full.CallID == "" {
		full.CallID = call.CallID
	}
	return s.SyncProviderCall(ctx, tenant, *full)
}

// SyncProviderCall upserts every field of a full provider call object.
func (s *Synchronizer) SyncProviderCall(ctx context.Context, tenant *tenancy.Tenant, call retellclient.Call) (*Call, error) {
	var contactID *string
	existing, err := s.calls.GetByExternalID(ctx, call.CallID)
	if err != nil || existing.ContactID == nil {
		contactID = s.resolveContact(ctx, tenant.ID, call)
	}

	stored, err := s.apply(ctx, NewEndPatch(tenant.ID, tenant.Rate(s.defaultRate), call, contactID))
	if err != nil {
		return nil, err
	}
	if stored.FollowUpNeeded && s.notifier != nil {
		if err := s.notifier.NotifyFollowUp(ctx, tenant, stored); err != nil {
			s.logger.Warn("follow-up notification failed", "call_id", stored.ExternalCallID, "error", err)
		}
	}
	return stored, nil
}

// HandleAnalyzed writes summary, sentiment and detected intent only.
func (s *Synchronizer) HandleAnalyzed(ctx context.Context, tenant *tenancy.Tenant, call retellclient.Call) (*Call, error) {
	ctx, span := syncTracer.Start(ctx, "calls.sync.analyzed")
	defer span.End()
	span.SetAttributes(attribute.String("crm.call_id", call.CallID), attribute.String("crm.tenant_id", tenant.ID))

	return s.apply(ctx, NewAnalysisPatch(tenant.ID, tenant.Rate(s.defaultRate), call))
}

func (s *Synchronizer) apply(ctx context.Context, p Patch) (*Call, error) {
	stored, err := s.calls.Upsert(ctx, p)
	if err != nil {
		s.logger.Error("call upsert failed",
			"call_id", p.Call.ExternalCallID,
			"tenant_id", p.Call.TenantID,
			"patch", string(p.Kind),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if _, regressed := Advance(stored.Lifecycle, p.Call.Lifecycle); regressed {
		s.logger.Info("late call event kept current lifecycle",
			"call_id", stored.ExternalCallID,
			"lifecycle", string(stored.Lifecycle),
			"event_lifecycle", string(p.Call.Lifecycle),
		)
	}
	s.logger.Info("call synced",
		"call_id", stored.ExternalCallID,
		"tenant_id", stored.TenantID,
		"patch", string(p.Kind),
		"status", string(stored.Status),
		"lifecycle", string(stored.Lifecycle),
	)
	return stored, nil
}

func (s *Synchronizer) resolveContact(ctx context.Context, tenantID string, call retellclient.Call) *string {
	if s.contacts == nil {
		return nil
	}
	contact, _, err := s.contacts.Resolve(ctx, tenantID, call.CounterpartyNumber())
	if errors.Is(err, contacts.ErrNoPhone) {
		s.logger.Debug("call has no counter-party number", "call_id", call.CallID)
		return nil
	}
	if err != nil {
		s.logger.Warn("contact resolution failed", "call_id", call.CallID, "tenant_id", tenantID, "error", err)
		return nil
	}
	return &contact.ID
}
