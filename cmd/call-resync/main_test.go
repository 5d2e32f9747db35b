package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/crm-voice-sync/internal/calls"
	"github.com/wolfman30/crm-voice-sync/internal/tenancy"
	"github.com/wolfman30/crm-voice-sync/internal/voice/retellclient"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

type fakeLister struct {
	calls []retellclient.Call
	err   error
	req   retellclient.ListCallsRequest
}

func (f *fakeLister) ListCalls(_ context.Context, req retellclient.ListCallsRequest) ([]retellclient.Call, error) {
	f.req = req
	return f.calls, f.err
}

type fakeSyncer struct {
	synced []string
	fail   map[string]bool
}

func (f *fakeSyncer) SyncProviderCall(_ context.Context, _ *tenancy.Tenant, call retellclient.Call) (*calls.Call, error) {
	if f.fail[call.CallID] {
		return nil, errors.New("boom")
	}
	f.synced = append(f.synced, call.CallID)
	return &calls.Call{ExternalCallID: call.CallID}, nil
}

const tenantID = "5b0e8c1e-8a5f-4a53-9d1e-2f6f0b7c9a10"

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-tenant", tenantID, "-limit", "5", "-since", "2h", "-dry-run"})
	require.NoError(t, err)
	assert.Equal(t, tenantID, opts.tenantID)
	assert.Equal(t, 5, opts.limit)
	assert.Equal(t, 2*time.Hour, opts.since)
	assert.True(t, opts.dryRun)

	_, err = parseFlags(nil)
	require.Error(t, err)
	_, err = parseFlags([]string{"-tenant", tenantID, "-limit", "0"})
	require.Error(t, err)
	_, err = parseFlags([]string{"-tenant", tenantID, "-since", "-1h"})
	require.Error(t, err)
}

func TestRunSyncsOwnedCalls(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{calls: []retellclient.Call{
		{CallID: "c1", Metadata: map[string]any{"tenant_id": tenantID}},
		{CallID: "c2"},
		{CallID: "c3", Metadata: map[string]any{"tenant_id": "0d7f0f39-1f1c-4d8e-9a55-3f2c5a8e7b21"}},
		{CallID: "c4", Metadata: map[string]any{"tenantId": tenantID}},
	}}
	syncer := &fakeSyncer{fail: map[string]bool{"c4": true}}
	r := &resyncer{lister: lister, syncer: syncer, logger: logging.New("error"), now: func() time.Time { return now }}

	got, err := r.run(context.Background(), &tenancy.Tenant{ID: tenantID}, options{tenantID: tenantID, limit: 10, since: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, summary{listed: 4, synced: 2, skipped: 1, failed: 1}, got)
	assert.Equal(t, []string{"c1", "c2"}, syncer.synced)

	assert.Equal(t, 10, lister.req.Limit)
	assert.Equal(t, "descending", lister.req.SortOrder)
	assert.Equal(t, []string{"ended"}, lister.req.FilterCriteria.CallStatus)
	assert.Equal(t, now.Add(-time.Hour).UnixMilli(), lister.req.FilterCriteria.StartTimestamp.LowerThreshold)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	lister := &fakeLister{calls: []retellclient.Call{{CallID: "c1"}}}
	syncer := &fakeSyncer{}
	r := &resyncer{lister: lister, syncer: syncer, logger: logging.New("error"), now: time.Now}

	got, err := r.run(context.Background(), &tenancy.Tenant{ID: tenantID}, options{limit: 1, since: time.Hour, dryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, got.skipped)
	assert.Empty(t, syncer.synced)
}

func TestRunListError(t *testing.T) {
	r := &resyncer{lister: &fakeLister{err: errors.New("down")}, syncer: &fakeSyncer{}, logger: logging.New("error"), now: time.Now}
	_, err := r.run(context.Background(), &tenancy.Tenant{ID: tenantID}, options{limit: 1, since: time.Hour})
	require.Error(t, err)
}
