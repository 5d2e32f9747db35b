package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/crm-voice-sync/internal/activity"
	"github.com/wolfman30/crm-voice-sync/internal/calls"
)

type stubLister struct {
	got   activity.Filter
	items []activity.Activity
	err   error
}

func (s *stubLister) List(_ context.Context, f activity.Filter) ([]activity.Activity, error) {
	s.got = f
	return s.items, s.err
}

func operatorRouter(h *OperatorCallsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/ops/calls/{callID}", h.GetCall)
	r.Get("/ops/tenants/{tenantID}/activities", h.ListActivities)
	return r
}

func TestOperatorCalls_GetCall(t *testing.T) {
	repo := calls.NewInMemoryRepository()
	_, err := repo.Upsert(context.Background(), calls.Patch{Kind: calls.PatchStart, Call: calls.Call{
		ExternalCallID: "call_1",
		TenantID:       testTenantID,
		Status:         calls.StatusInProgress,
		Lifecycle:      calls.LifecycleActive,
	}})
	require.NoError(t, err)
	router := operatorRouter(NewOperatorCallsHandler(repo, &stubLister{}, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ops/calls/call_1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got calls.Call
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "call_1", got.ExternalCallID)
	assert.Equal(t, calls.StatusInProgress, got.Status)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ops/calls/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOperatorCalls_ListActivities(t *testing.T) {
	lister := &stubLister{items: []activity.Activity{{ID: "a-1", TenantID: testTenantID, Type: activity.TypeCallEnded}}}
	router := operatorRouter(NewOperatorCallsHandler(calls.NewInMemoryRepository(), lister, nil))

	rec := httptest.NewRecorder()
	url := "/ops/tenants/" + testTenantID + "/activities?call_id=row-1&type=call_ended&since=2026-01-01T00:00:00Z&limit=500"
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, testTenantID, lister.got.TenantID)
	assert.Equal(t, "row-1", lister.got.CallID)
	assert.Equal(t, activity.TypeCallEnded, lister.got.Type)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), lister.got.Since)
	assert.Equal(t, maxActivityPage, lister.got.Limit)

	var body struct {
		Activities []activity.Activity `json:"activities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Activities, 1)
	assert.Equal(t, "a-1", body.Activities[0].ID)
}

func TestOperatorCalls_ListActivitiesBadInput(t *testing.T) {
	router := operatorRouter(NewOperatorCallsHandler(calls.NewInMemoryRepository(), &stubLister{}, nil))
	for _, url := range []string{
		"/ops/tenants/acme/activities",
		"/ops/tenants/" + testTenantID + "/activities?since=yesterday",
		"/ops/tenants/" + testTenantID + "/activities?limit=-1",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, url)
	}
}

func TestOperatorCalls_ListActivitiesEmptyAndError(t *testing.T) {
	lister := &stubLister{}
	router := operatorRouter(NewOperatorCallsHandler(calls.NewInMemoryRepository(), lister, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ops/tenants/"+testTenantID+"/activities", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"activities":[]}`, rec.Body.String())
	assert.Equal(t, 50, lister.got.Limit)

	lister.err = errors.New("db down")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ops/tenants/"+testTenantID+"/activities", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
