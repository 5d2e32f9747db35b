package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/crm-voice-sync/internal/activity"
	"github.com/wolfman30/crm-voice-sync/internal/archive"
	"github.com/wolfman30/crm-voice-sync/internal/calls"
	observemetrics "github.com/wolfman30/crm-voice-sync/internal/observability/metrics"
	"github.com/wolfman30/crm-voice-sync/internal/signature"
	"github.com/wolfman30/crm-voice-sync/internal/tenancy"
	"github.com/wolfman30/crm-voice-sync/internal/voice/retellclient"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

// Call webhook event names.
const (
	EventCallStarted  = "call_started"
	EventCallEnded    = "call_ended"
	EventCallAnalyzed = "call_analyzed"
)

// MaxWebhookBodyBytes caps the size of an inbound call webhook.
const MaxWebhookBodyBytes = 1 << 20

type callSynchronizer interface {
	HandleStarted(ctx context.Context, tenant *tenancy.Tenant, call retellclient.Call) (*calls.Call, error)
	HandleEnded(ctx context.Context, tenant *tenancy.Tenant, call retellclient.Call) (*calls.Call, error)
	HandleAnalyzed(ctx context.Context, tenant *tenancy.Tenant, call retellclient.Call) (*calls.Call, error)
}

type tenantResolver interface {
	Resolve(ctx context.Context, tenantID string) (*tenancy.Tenant, error)
}

type storedCallLookup interface {
	GetByExternalID(ctx context.Context, externalCallID string) (*calls.Call, error)
}

type providerCallLookup interface {
	GetCall(ctx context.Context, callID string) (*retellclient.Call, error)
}

type activityRecorder interface {
	Log(ctx context.Context, a activity.Activity)
}

type webhookArchiver interface {
	ArchiveWebhook(ctx context.Context, w archive.RawWebhook) (string, error)
}

// CallWebhookConfig wires a CallWebhookHandler.
type CallWebhookConfig struct {
	Verifier     *signature.Verifier
	Synchronizer callSynchronizer
	Tenants      tenantResolver
	Calls        storedCallLookup
	// Provider is used with the fallback key to recover metadata for events
	// that arrive without a tenant id.
	Provider   providerCallLookup
	Activities activityRecorder
	Archive    webhookArchiver
	Metrics    *observemetrics.CallMetrics
	Logger     *logging.Logger
	Now        func() time.Time
}

// CallWebhookHandler receives voice provider call lifecycle webhooks.
type CallWebhookHandler struct {
	verifier   *signature.Verifier
	sync       callSynchronizer
	tenants    tenantResolver
	calls      storedCallLookup
	provider   providerCallLookup
	activities activityRecorder
	archive    webhookArchiver
	metrics    *observemetrics.CallMetrics
	logger     *logging.Logger
	validate   *validator.Validate
	now        func() time.Time
}

func NewCallWebhookHandler(cfg CallWebhookConfig) *CallWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Verifier == nil {
		cfg.Verifier = signature.NewVerifier("")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if !cfg.Verifier.Enabled() {
		cfg.Logger.Warn("call webhook signature verification disabled")
	}
	return &CallWebhookHandler{
		verifier:   cfg.Verifier,
		sync:       cfg.Synchronizer,
		tenants:    cfg.Tenants,
		calls:      cfg.Calls,
		provider:   cfg.Provider,
		activities: cfg.Activities,
		archive:    cfg.Archive,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        cfg.Now,
	}
}

type callWebhookEnvelope struct {
	Event string             `json:"event" validate:"required"`
	Call  *retellclient.Call `json:"call" validate:"required"`
}

type callWebhookResponse struct {
	Received bool   `json:"received"`
	Event    string `json:"event"`
	CallID   string `json:"callId"`
	Warning  string `json:"warning,omitempty"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// HealthCheck answers GET on the webhook path so the provider can probe liveness.
func (h *CallWebhookHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Handle processes one call webhook. Every outcome except a rejected signature
// answers 200 so the provider does not retry.
func (h *CallWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	resp := callWebhookResponse{Received: true}
	outcome := observemetrics.OutcomeSynced
	defer func() {
		h.metrics.ObserveWebhook(resp.Event, outcome)
		h.metrics.ObserveWebhookDuration(resp.Event, h.now().Sub(start).Seconds())
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBodyBytes))
	if err != nil {
		h.logger.Warn("call webhook body unreadable", "error", err)
		outcome = observemetrics.OutcomeMalformed
		resp.Warning = "invalid payload: " + err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if err := h.verifier.VerifyRequest(r, body); err != nil {
		h.logger.Warn("call webhook signature rejected", "error", err)
		outcome = observemetrics.OutcomeRejected
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}

	evt, err := h.decode(body)
	if evt != nil {
		resp.Event = evt.Event
		if evt.Call != nil {
			resp.CallID = evt.Call.CallID
		}
	}
	if err != nil {
		h.logger.Warn("call webhook payload invalid", "event", resp.Event, "call_id", resp.CallID, "error", err)
		outcome = observemetrics.OutcomeMalformed
		resp.Warning = "invalid payload: " + err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx := r.Context()
	call := *evt.Call
	tenant, tenantErr := h.resolveTenant(ctx, evt.Event, call)
	h.archiveBody(ctx, evt.Event, call.CallID, tenant, body)

	switch evt.Event {
	case EventCallStarted, EventCallEnded, EventCallAnalyzed:
	default:
		h.logger.Info("ignoring unknown call webhook event", "event", evt.Event, "call_id", call.CallID)
		outcome = observemetrics.OutcomeUnhandled
		if tenant != nil {
			h.record(tenancy.WithTenantID(ctx, tenant.ID), evt.Event, call, nil, nil)
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if tenantErr != nil {
		h.logger.Warn("call webhook tenant not resolved",
			"event", evt.Event,
			"call_id", call.CallID,
			"error", tenantErr,
		)
		outcome = observemetrics.OutcomeSoftFailed
		resp.Warning = "tenant not resolved: " + tenantErr.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx = tenancy.WithTenantID(ctx, tenant.ID)
	stored, syncErr := h.dispatch(ctx, evt.Event, tenant, call)
	if syncErr != nil {
		outcome = observemetrics.OutcomeFailed
		resp.Warning = warningFor(syncErr)
		h.logger.Error("call webhook processing failed",
			"event", evt.Event,
			"call_id", call.CallID,
			"tenant_id", tenant.ID,
			"error", syncErr,
		)
	}
	h.record(ctx, evt.Event, call, stored, syncErr)
	writeJSON(w, http.StatusOK, resp)
}

func (h *CallWebhookHandler) decode(body []byte) (*callWebhookEnvelope, error) {
	var evt callWebhookEnvelope
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	evt.Event = strings.TrimSpace(evt.Event)
	if evt.Call != nil {
		evt.Call.CallID = strings.TrimSpace(evt.Call.CallID)
		evt.Call.CallStatus = strings.ToLower(strings.TrimSpace(evt.Call.CallStatus))
		evt.Call.Direction = strings.ToLower(strings.TrimSpace(evt.Call.Direction))
	}
	if err := h.validate.Struct(&evt); err != nil {
		return &evt, validationError(err)
	}
	return &evt, nil
}

func (h *CallWebhookHandler) dispatch(ctx context.Context, event string, tenant *tenancy.Tenant, call retellclient.Call) (*calls.Call, error) {
	if h.sync == nil {
		return nil, errors.New("call synchronizer not configured")
	}
	switch event {
	case EventCallStarted:
		return h.sync.HandleStarted(ctx, tenant, call)
	case EventCallEnded:
		return h.sync.HandleEnded(ctx, tenant, call)
	default:
		return h.sync.HandleAnalyzed(ctx, tenant, call)
	}
}

// resolveTenant walks the metadata, the stored call row, then the provider's
// own copy of the call. Start events only consult metadata.
func (h *CallWebhookHandler) resolveTenant(ctx context.Context, event string, call retellclient.Call) (*tenancy.Tenant, error) {
	if h.tenants == nil {
		return nil, tenancy.ErrTenantNotFound
	}
	if id := call.MetadataString(tenancy.MetadataKeys...); id != "" {
		return h.tenants.Resolve(ctx, id)
	}
	if event != EventCallEnded && event != EventCallAnalyzed {
		return nil, tenancy.ErrTenantIDMissing
	}

	if h.calls != nil {
		existing, err := h.calls.GetByExternalID(ctx, call.CallID)
		switch {
		case err == nil && existing.TenantID != "":
			return h.tenants.Resolve(ctx, existing.TenantID)
		case err != nil && !errors.Is(err, calls.ErrCallNotFound):
			h.logger.Warn("stored call lookup failed", "call_id", call.CallID, "error", err)
		}
	}

	if h.provider != nil {
		full, err := h.provider.GetCall(ctx, call.CallID)
		if err != nil {
			h.logger.Warn("provider call lookup for tenant failed", "call_id", call.CallID, "error", err)
			return nil, tenancy.ErrTenantIDMissing
		}
		if id := full.MetadataString(tenancy.MetadataKeys...); id != "" {
			return h.tenants.Resolve(ctx, id)
		}
	}
	return nil, tenancy.ErrTenantIDMissing
}

func (h *CallWebhookHandler) archiveBody(ctx context.Context, event, callID string, tenant *tenancy.Tenant, body []byte) {
	if h.archive == nil {
		return
	}
	raw := archive.RawWebhook{
		CallID:     callID,
		Event:      event,
		Body:       body,
		ReceivedAt: h.now().UTC(),
	}
	if tenant != nil {
		raw.TenantID = tenant.ID
	}
	if _, err := h.archive.ArchiveWebhook(ctx, raw); err != nil {
		h.logger.Warn("call webhook archive failed", "call_id", callID, "event", event, "error", err)
	}
}

func (h *CallWebhookHandler) record(ctx context.Context, event string, call retellclient.Call, stored *calls.Call, syncErr error) {
	if h.activities == nil {
		return
	}
	a := activity.Activity{
		Type:        activityType(event),
		Description: describe(event, call, stored, syncErr),
		Tags:        activityTags(event, call, stored),
	}
	if stored != nil {
		a.CallID = stored.ID
		if stored.ContactID != nil {
			a.ContactID = *stored.ContactID
		}
	}
	h.activities.Log(ctx, a)
}

func activityType(event string) activity.Type {
	switch event {
	case EventCallStarted:
		return activity.TypeCallStarted
	case EventCallEnded:
		return activity.TypeCallEnded
	case EventCallAnalyzed:
		return activity.TypeCallAnalyzed
	default:
		return activity.TypeCallEventUnknown
	}
}

func describe(event string, call retellclient.Call, stored *calls.Call, syncErr error) string {
	if syncErr != nil {
		return fmt.Sprintf("Call %s %s not synced: %s", call.CallID, event, warningFor(syncErr))
	}
	switch event {
	case EventCallStarted:
		direction := "Call"
		switch calls.MapDirection(call.Direction) {
		case calls.DirectionInbound:
			direction = "Inbound call"
		case calls.DirectionOutbound:
			direction = "Outbound call"
		}
		if number := call.CounterpartyNumber(); number != "" {
			return fmt.Sprintf("%s started with %s", direction, number)
		}
		return direction + " started"
	case EventCallEnded:
		if stored == nil {
			return "Call ended"
		}
		duration := time.Duration(stored.DurationSeconds) * time.Second
		return fmt.Sprintf("Call %s (%s, cost %.4f)", strings.ToLower(string(stored.Status)), duration, stored.TotalCost)
	case EventCallAnalyzed:
		if stored != nil && stored.Sentiment != nil {
			return fmt.Sprintf("Call analyzed: %s sentiment", strings.ToLower(string(*stored.Sentiment)))
		}
		return "Call analyzed"
	default:
		return fmt.Sprintf("Unhandled call event %q", event)
	}
}

func activityTags(event string, call retellclient.Call, stored *calls.Call) []string {
	tags := []string{"voice_call", event}
	if d := calls.MapDirection(call.Direction); d != calls.DirectionUnknown {
		tags = append(tags, strings.ToLower(string(d)))
	}
	if stored != nil {
		if stored.FollowUpNeeded {
			tags = append(tags, "follow_up")
		}
		if stored.Sentiment != nil {
			tags = append(tags, strings.ToLower(string(*stored.Sentiment)))
		}
	}
	return tags
}

func warningFor(err error) string {
	switch {
	case errors.Is(err, calls.ErrUpstream):
		return "upstream: " + err.Error()
	case errors.Is(err, calls.ErrPersistence):
		return "persistence: " + err.Error()
	default:
		return "processing: " + err.Error()
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(fields, "; "))
}
