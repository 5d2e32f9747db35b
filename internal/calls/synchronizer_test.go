package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/crm-voice-sync/internal/contacts"
	"github.com/wolfman30/crm-voice-sync/internal/tenancy"
	"github.com/wolfman30/crm-voice-sync/internal/voice/retellclient"
)

const testTenantID = "5b3c2a7e-1f0d-4e7b-9a61-2f4c8d9e0a11"

var startMs = time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC).UnixMilli()

type stubFetcher struct {
	mu    sync.Mutex
	call  *retellclient.Call
	err   error
	keys  []string
	calls int
}

func (f *stubFetcher) forCreds(creds tenancy.Credentials) CallFetcher {
	f.mu.Lock()
	f.keys = append(f.keys, creds.APIKey)
	f.mu.Unlock()
	return f
}

func (f *stubFetcher) GetCall(_ context.Context, _ string) (*retellclient.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c := *f.call
	return &c, nil
}

type stubNotifier struct {
	mu       sync.Mutex
	notified []string
}

func (n *stubNotifier) NotifyFollowUp(_ context.Context, _ *tenancy.Tenant, call *Call) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, call.ExternalCallID)
	return nil
}

type fixture struct {
	sync     *Synchronizer
	calls    *InMemoryRepository
	contacts *contacts.InMemoryRepository
	fetcher  *stubFetcher
	notifier *stubNotifier
	tenant   *tenancy.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		calls:    NewInMemoryRepository(),
		contacts: contacts.NewInMemoryRepository(),
		fetcher:  &stubFetcher{call: endedProviderCall()},
		notifier: &stubNotifier{},
		tenant:   &tenancy.Tenant{ID: testTenantID, Status: "active"},
	}
	f.sync = NewSynchronizer(SynchronizerConfig{
		Calls:          f.calls,
		Contacts:       contacts.NewResolver(f.contacts, nil),
		Fetcher:        f.fetcher.forCreds,
		FallbackAPIKey: "key_global",
		Notifier:       f.notifier,
	})
	return f
}

func startedProviderCall() retellclient.Call {
	return retellclient.Call{
		CallID:         "call_abc",
		AgentID:        "agent_1",
		CallStatus:     retellclient.CallStatusOngoing,
		Direction:      retellclient.DirectionInbound,
		FromNumber:     "+15551230000",
		ToNumber:       "+15559870000",
		StartTimestamp: startMs,
	}
}

func endedProviderCall() *retellclient.Call {
	c := startedProviderCall()
	c.CallStatus = retellclient.CallStatusEnded
	c.EndTimestamp = startMs + 210_000
	c.Transcript = "Agent: hi"
	c.CallAnalysis = &retellclient.CallAnalysis{
		CallSummary:   "Booked a demo",
		UserSentiment: "Positive",
		CustomAnalysisData: map[string]any{
			"detected_intent":  "book_demo",
			"follow_up_needed": true,
			"keywords":         []any{"demo"},
		},
	}
	return &c
}

func analyzedProviderCall() retellclient.Call {
	return retellclient.Call{
		CallID: "call_abc",
		CallAnalysis: &retellclient.CallAnalysis{
			CallSummary:   "Booked a demo",
			UserSentiment: "Unknown",
			CustomAnalysisData: map[string]any{
				"detected_intent": "book_demo",
			},
		},
	}
}

func TestHandleStartedCreatesCallAndContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	call, err := f.sync.HandleStarted(ctx, f.tenant, startedProviderCall())
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, call.Status)
	assert.Equal(t, LifecycleActive, call.Lifecycle)
	assert.Equal(t, DirectionInbound, call.Direction)
	assert.Equal(t, "+15551230000", call.PhoneNumber)
	assert.Equal(t, DefaultCostPerMinute, call.CostPerMinute)
	require.NotNil(t, call.ContactID)
	assert.Equal(t, 1, f.contacts.Count(testTenantID))

	again, err := f.sync.HandleStarted(ctx, f.tenant, startedProviderCall())
	require.NoError(t, err)
	assert.Equal(t, call.ID, again.ID)
	assert.Equal(t, *call.ContactID, *again.ContactID)
	assert.Equal(t, 1, f.contacts.Count(testTenantID), "second event reuses the contact")
	assert.Equal(t, 1, f.calls.Len())
}

func TestHandleEndedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.sync.HandleEnded(ctx, f.tenant, retellclient.Call{CallID: "call_abc"})
	require.NoError(t, err)
	second, err := f.sync.HandleEnded(ctx, f.tenant, retellclient.Call{CallID: "call_abc"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.calls.Len())
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, StatusCompleted, second.Status)
	assert.Equal(t, int64(210), second.DurationSeconds)
	assert.Equal(t, 0.175, second.TotalCost)
	assert.Equal(t, SentimentPositive, *second.Sentiment)
	assert.Equal(t, "Agent: hi", *second.Transcript)
	assert.Equal(t, []string{"demo"}, second.Keywords)

	first.UpdatedAt, second.UpdatedAt = time.Time{}, time.Time{}
	assert.Equal(t, first, second, "repeated delivery converges to the same row")
	assert.Equal(t, []string{"key_global", "key_global"}, f.fetcher.keys)
	assert.Equal(t, []string{"call_abc", "call_abc"}, f.notifier.notified)
}

func TestHandleEndedUsesTenantKeyAndRate(t *testing.T) {
	f := newFixture(t)
	f.tenant.VoiceAPIKey = "key_tenant"
	f.tenant.CostPerMinute = 0.10

	call, err := f.sync.HandleEnded(context.Background(), f.tenant, retellclient.Call{CallID: "call_abc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"key_tenant"}, f.fetcher.keys)
	assert.Equal(t, 0.35, call.TotalCost)
}

func TestHandleEndedMissingEndTimestamp(t *testing.T) {
	f := newFixture(t)
	f.fetcher.call.EndTimestamp = 0

	call, err := f.sync.HandleEnded(context.Background(), f.tenant, retellclient.Call{CallID: "call_abc"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, call.TotalCost)
	assert.Equal(t, int64(0), call.DurationSeconds)
	assert.Nil(t, call.EndedAt)
}

func TestHandleEndedUpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = &retellclient.APIError{StatusCode: 500, Body: "boom"}

	_, err := f.sync.HandleEnded(context.Background(), f.tenant, retellclient.Call{CallID: "call_abc"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	var apiErr *retellclient.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, f.calls.Len(), "aborted event writes nothing")
}

func TestEndedNotRevertedByLateStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sync.HandleEnded(ctx, f.tenant, retellclient.Call{CallID: "call_abc"})
	require.NoError(t, err)
	late, err := f.sync.HandleStarted(ctx, f.tenant, startedProviderCall())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, late.Status)
	assert.Equal(t, LifecycleEnded, late.Lifecycle)
	assert.Equal(t, 0.175, late.TotalCost)
}

func TestAnalyzedBeforeStarted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	analyzed, err := f.sync.HandleAnalyzed(ctx, f.tenant, analyzedProviderCall())
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, analyzed.Status)
	assert.Equal(t, LifecycleAnalyzed, analyzed.Lifecycle)
	assert.Nil(t, analyzed.StartedAt)
	assert.Equal(t, SentimentNeutral, *analyzed.Sentiment)

	started, err := f.sync.HandleStarted(ctx, f.tenant, startedProviderCall())
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls.Len())
	assert.Equal(t, analyzed.ID, started.ID)
	assert.Equal(t, "Booked a demo", *started.Summary)
	assert.Equal(t, "book_demo", *started.DetectedIntent)
	require.NotNil(t, started.StartedAt)
	assert.Equal(t, startMs, started.StartedAt.UnixMilli())
	assert.Equal(t, "agent_1", started.AgentID)
	assert.Equal(t, LifecycleAnalyzed, started.Lifecycle)
	assert.NotNil(t, started.ContactID)
}

func TestAnalyzedLeavesStatusAndCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sync.HandleEnded(ctx, f.tenant, retellclient.Call{CallID: "call_abc"})
	require.NoError(t, err)
	analyzed, err := f.sync.HandleAnalyzed(ctx, f.tenant, analyzedProviderCall())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, analyzed.Status)
	assert.Equal(t, 0.175, analyzed.TotalCost)
	assert.Equal(t, int64(210), analyzed.DurationSeconds)
	assert.Equal(t, SentimentNeutral, *analyzed.Sentiment, "analysis overwrites sentiment")
	assert.Equal(t, LifecycleAnalyzed, analyzed.Lifecycle)
	assert.True(t, analyzed.FollowUpNeeded)
}

func TestTenantMismatchIsPersistenceError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sync.HandleStarted(ctx, f.tenant, startedProviderCall())
	require.NoError(t, err)
	other := &tenancy.Tenant{ID: "0f8a3a56-9e8d-4f52-8b8e-4d9b2c1a7f00", Status: "active"}
	_, err = f.sync.HandleAnalyzed(ctx, other, analyzedProviderCall())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, ErrTenantMismatch)

	stored, err := f.calls.GetByExternalID(ctx, "call_abc")
	require.NoError(t, err)
	assert.Equal(t, testTenantID, stored.TenantID)
	assert.Nil(t, stored.Summary)
}

func TestStartedWithoutPhoneHasNoContact(t *testing.T) {
	f := newFixture(t)
	c := startedProviderCall()
	c.FromNumber = ""

	call, err := f.sync.HandleStarted(context.Background(), f.tenant, c)
	require.NoError(t, err)
	assert.Nil(t, call.ContactID)
	assert.Equal(t, 0, f.contacts.Count(testTenantID))
}

func TestConcurrentDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.sync.HandleStarted(context.Background(), f.tenant, startedProviderCall())
		}()
		go func() {
			defer wg.Done()
			_, _ = f.sync.HandleEnded(context.Background(), f.tenant, retellclient.Call{CallID: "call_abc"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.calls.Len())
	assert.Equal(t, 1, f.contacts.Count(testTenantID))
	stored, err := f.calls.GetByExternalID(context.Background(), "call_abc")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Equal(t, 0.175, stored.TotalCost)
}
