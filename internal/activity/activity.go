// Package activity records CRM timeline entries for call webhook events.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/crm-voice-sync/internal/tenancy"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

// Type is the kind of timeline entry.
type Type string

const (
	TypeCallStarted      Type = "call_started"
	TypeCallEnded        Type = "call_ended"
	TypeCallAnalyzed     Type = "call_analyzed"
	TypeCallEventUnknown Type = "call_event_unknown"
)

// Activity is one row of the tenant's activity timeline.
type Activity struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	ContactID   string    `json:"contact_id,omitempty"`
	CallID      string    `json:"call_id,omitempty"`
	Type        Type      `json:"type"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter narrows List results. TenantID is required.
type Filter struct {
	TenantID string
	CallID   string
	Type     Type
	Since    time.Time
	Limit    int
}

// Service persists activities to the activities table.
type Service struct {
	db     *sql.DB
	mem    *memoryLog
	logger *logging.Logger
}

// NewService creates an activity service. A nil db yields a service whose
// writes are dropped; memory mode uses NewMemoryService instead.
func NewService(db *sql.DB, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{db: db, logger: logger}
}

// Record inserts an activity. The tenant falls back to the one stored in ctx.
func (s *Service) Record(ctx context.Context, a Activity) error {
	if s == nil || (s.db == nil && s.mem == nil) {
		return nil
	}
	if a.TenantID == "" {
		if tenantID, ok := tenancy.TenantIDFromContext(ctx); ok {
			a.TenantID = tenantID
		}
	}
	if a.TenantID == "" {
		return tenancy.ErrTenantIDMissing
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if s.mem != nil {
		s.mem.append(a)
		return nil
	}

	query := `
		INSERT INTO activities (
			id, tenant_id, contact_id, call_id, type, description, tags, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.TenantID,
		nullString(a.ContactID),
		nullString(a.CallID),
		string(a.Type),
		a.Description,
		pq.Array(a.Tags),
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("activity: insert: %w", err)
	}
	return nil
}

// Log records an activity and only logs failures.
func (s *Service) Log(ctx context.Context, a Activity) {
	if err := s.Record(ctx, a); err != nil {
		s.logger.Warn("activity record failed",
			"type", a.Type,
			"call_id", a.CallID,
			"error", err,
		)
	}
}

// List returns activities for a tenant, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Activity, error) {
	if s == nil || (s.db == nil && s.mem == nil) {
		return nil, nil
	}
	if filter.TenantID == "" {
		return nil, tenancy.ErrTenantIDMissing
	}
	if s.mem != nil {
		return s.mem.list(filter), nil
	}

	query := `
		SELECT id, tenant_id, contact_id, call_id, type, description, tags, created_at
		FROM activities
		WHERE tenant_id = $1
	`
	args := []interface{}{filter.TenantID}
	argIdx := 2

	if filter.CallID != "" {
		query += fmt.Sprintf(" AND call_id = $%d", argIdx)
		args = append(args, filter.CallID)
		argIdx++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, string(filter.Type))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.Since)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("activity: query: %w", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var (
			a                 Activity
			typ               string
			contactID, callID sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &contactID, &callID, &typ, &a.Description, pq.Array(&a.Tags), &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("activity: scan: %w", err)
		}
		a.Type = Type(typ)
		a.ContactID = contactID.String
		a.CallID = callID.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity: rows: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
