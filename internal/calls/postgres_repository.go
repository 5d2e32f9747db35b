package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository upserts calls with one INSERT ... ON CONFLICT per patch.
type PostgresRepository struct {
	db  rowQuerier
	now func() time.Time
}

// NewPostgresRepository builds a repository on a pgx pool.
func NewPostgresRepository(db rowQuerier) *PostgresRepository {
	if db == nil {
		panic("calls: pgx pool required")
	}
	return &PostgresRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const callColumns = `id, external_call_id, tenant_id, contact_id, direction, status, lifecycle,
	phone_number, agent_id, transcript, summary, sentiment, sentiment_score, detected_intent,
	keywords, topics, key_moments, follow_up_needed, follow_up_notes, recording_url,
	disconnection_reason, cost_per_minute, duration_seconds, total_cost, started_at, ended_at,
	created_at, updated_at`

const insertCall = `
	INSERT INTO calls (` + callColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
	        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
	ON CONFLICT (external_call_id) DO UPDATE SET
`

// lifecycleSQL keeps the higher-ranked lifecycle.
const lifecycleSQL = `lifecycle = CASE
		WHEN array_position(` + lifecycleOrderSQL + `, EXCLUDED.lifecycle) > array_position(` + lifecycleOrderSQL + `, calls.lifecycle)
		THEN EXCLUDED.lifecycle ELSE calls.lifecycle END`

// derivedSQL recomputes duration and cost from the merged timestamps and rate.
func derivedSQL(start, end, rate string) string {
	duration := fmt.Sprintf(`COALESCE(GREATEST(0, FLOOR(EXTRACT(EPOCH FROM (%s - %s))))::bigint, 0)`, end, start)
	return fmt.Sprintf(`duration_seconds = %s,
		total_cost = ROUND(%s::numeric / 60 * %s, 6)`, duration, duration, rate)
}

var conflictSQL = map[PatchKind]string{
	PatchStart: `
		contact_id = COALESCE(calls.contact_id, EXCLUDED.contact_id),
		direction = COALESCE(NULLIF(calls.direction, ''), EXCLUDED.direction),
		phone_number = COALESCE(NULLIF(calls.phone_number, ''), EXCLUDED.phone_number),
		agent_id = COALESCE(NULLIF(calls.agent_id, ''), EXCLUDED.agent_id),
		status = CASE WHEN calls.status IN ('COMPLETED', 'FAILED') THEN calls.status ELSE 'IN_PROGRESS' END,
		` + lifecycleSQL + `,
		started_at = COALESCE(calls.started_at, EXCLUDED.started_at),
		` + derivedSQL("COALESCE(calls.started_at, EXCLUDED.started_at)", "calls.ended_at", "calls.cost_per_minute") + `,
		updated_at = EXCLUDED.updated_at`,
	PatchEnd: `
		contact_id = COALESCE(calls.contact_id, EXCLUDED.contact_id),
		direction = COALESCE(NULLIF(EXCLUDED.direction, ''), calls.direction),
		phone_number = COALESCE(NULLIF(EXCLUDED.phone_number, ''), calls.phone_number),
		agent_id = COALESCE(NULLIF(EXCLUDED.agent_id, ''), calls.agent_id),
		status = EXCLUDED.status,
		` + lifecycleSQL + `,
		transcript = COALESCE(EXCLUDED.transcript, calls.transcript),
		summary = COALESCE(EXCLUDED.summary, calls.summary),
		sentiment = COALESCE(EXCLUDED.sentiment, calls.sentiment),
		sentiment_score = COALESCE(EXCLUDED.sentiment_score, calls.sentiment_score),
		detected_intent = COALESCE(EXCLUDED.detected_intent, calls.detected_intent),
		keywords = COALESCE(EXCLUDED.keywords, calls.keywords),
		topics = COALESCE(EXCLUDED.topics, calls.topics),
		key_moments = COALESCE(EXCLUDED.key_moments, calls.key_moments),
		follow_up_needed = EXCLUDED.follow_up_needed,
		follow_up_notes = COALESCE(EXCLUDED.follow_up_notes, calls.follow_up_notes),
		recording_url = COALESCE(EXCLUDED.recording_url, calls.recording_url),
		disconnection_reason = COALESCE(EXCLUDED.disconnection_reason, calls.disconnection_reason),
		cost_per_minute = EXCLUDED.cost_per_minute,
		started_at = COALESCE(EXCLUDED.started_at, calls.started_at),
		ended_at = COALESCE(EXCLUDED.ended_at, calls.ended_at),
		` + derivedSQL("COALESCE(EXCLUDED.started_at, calls.started_at)", "COALESCE(EXCLUDED.ended_at, calls.ended_at)", "EXCLUDED.cost_per_minute") + `,
		updated_at = EXCLUDED.updated_at`,
	PatchAnalysis: `
		contact_id = COALESCE(calls.contact_id, EXCLUDED.contact_id),
		` + lifecycleSQL + `,
		summary = COALESCE(EXCLUDED.summary, calls.summary),
		sentiment = COALESCE(EXCLUDED.sentiment, calls.sentiment),
		detected_intent = COALESCE(EXCLUDED.detected_intent, calls.detected_intent),
		updated_at = EXCLUDED.updated_at`,
}

func upsertSQL(kind PatchKind) (string, error) {
	set, ok := conflictSQL[kind]
	if !ok {
		return "", fmt.Errorf("calls: unknown patch kind %q", kind)
	}
	return insertCall + set + `
	WHERE calls.tenant_id = EXCLUDED.tenant_id
	RETURNING ` + callColumns, nil
}

// Upsert writes p atomically. A conflicting row owned by another tenant is left
// untouched and ErrTenantMismatch is returned.
func (r *PostgresRepository) Upsert(ctx context.Context, p Patch) (*Call, error) {
	query, err := upsertSQL(p.Kind)
	if err != nil {
		return nil, err
	}
	now := r.now()
	c := p.Call
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.DurationSeconds = DurationBetween(c.StartedAt, c.EndedAt)
	c.TotalCost = TotalCost(c.DurationSeconds, c.CostPerMinute)

	keyMoments, err := jsonbArg(c.KeyMoments)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRow(ctx, query,
		c.ID,
		c.ExternalCallID,
		c.TenantID,
		c.ContactID,
		c.Direction,
		c.Status,
		c.Lifecycle,
		c.PhoneNumber,
		c.AgentID,
		c.Transcript,
		c.Summary,
		c.Sentiment,
		c.SentimentScore,
		c.DetectedIntent,
		c.Keywords,
		c.Topics,
		keyMoments,
		c.FollowUpNeeded,
		c.FollowUpNotes,
		c.RecordingURL,
		c.DisconnectionReason,
		c.CostPerMinute,
		c.DurationSeconds,
		c.TotalCost,
		c.StartedAt,
		c.EndedAt,
		now,
		now,
	)
	stored, err := scanCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantMismatch
	}
	if err != nil {
		return nil, fmt.Errorf("calls: upsert %s: %w", p.Kind, err)
	}
	return stored, nil
}

// GetByExternalID loads a call by the provider id.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalCallID string) (*Call, error) {
	c, err := scanCall(r.db.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE external_call_id = $1`, externalCallID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("calls: get by external id: %w", err)
	}
	return c, nil
}

func jsonbArg(moments []KeyMoment) (any, error) {
	if len(moments) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(moments)
	if err != nil {
		return nil, fmt.Errorf("calls: marshal key moments: %w", err)
	}
	return string(data), nil
}

func scanCall(row pgx.Row) (*Call, error) {
	var c Call
	if err := row.Scan(
		&c.ID,
		&c.ExternalCallID,
		&c.TenantID,
		&c.ContactID,
		&c.Direction,
		&c.Status,
		&c.Lifecycle,
		&c.PhoneNumber,
		&c.AgentID,
		&c.Transcript,
		&c.Summary,
		&c.Sentiment,
		&c.SentimentScore,
		&c.DetectedIntent,
		&c.Keywords,
		&c.Topics,
		&c.KeyMoments,
		&c.FollowUpNeeded,
		&c.FollowUpNotes,
		&c.RecordingURL,
		&c.DisconnectionReason,
		&c.CostPerMinute,
		&c.DurationSeconds,
		&c.TotalCost,
		&c.StartedAt,
		&c.EndedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
