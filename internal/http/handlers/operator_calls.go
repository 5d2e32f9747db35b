package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/crm-voice-sync/internal/activity"
	"github.com/wolfman30/crm-voice-sync/internal/calls"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

const maxActivityPage = 200

type activityLister interface {
	List(ctx context.Context, filter activity.Filter) ([]activity.Activity, error)
}

// OperatorCallsHandler serves read-only views of synced calls for support staff.
type OperatorCallsHandler struct {
	calls      storedCallLookup
	activities activityLister
	logger     *logging.Logger
}

func NewOperatorCallsHandler(callStore storedCallLookup, activities activityLister, logger *logging.Logger) *OperatorCallsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &OperatorCallsHandler{calls: callStore, activities: activities, logger: logger}
}

// GetCall returns the stored call for an external call id.
func (h *OperatorCallsHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(chi.URLParam(r, "callID"))
	if callID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing call id"})
		return
	}
	call, err := h.calls.GetByExternalID(r.Context(), callID)
	if errors.Is(err, calls.ErrCallNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "call not found"})
		return
	}
	if err != nil {
		h.logger.Error("operator call lookup failed", "call_id", callID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// ListActivities returns a tenant's call timeline, newest first.
// Query: call_id, type, since (RFC3339), limit.
func (h *OperatorCallsHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "tenantID")))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		return
	}
	q := r.URL.Query()
	filter := activity.Filter{
		TenantID: tenantID.String(),
		CallID:   strings.TrimSpace(q.Get("call_id")),
		Type:     activity.Type(strings.TrimSpace(q.Get("type"))),
		Limit:    50,
	}
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			return
		}
		filter.Since = since
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = min(limit, maxActivityPage)
	}

	items, err := h.activities.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("operator activity list failed", "tenant_id", filter.TenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}
	if items == nil {
		items = []activity.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": items})
}
