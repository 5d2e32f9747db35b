package calls

import "time"

// Direction of a call relative to the tenant.
type Direction string

const (
	DirectionUnknown  Direction = ""
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Status is the CRM call status derived from the provider's call_status.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Sentiment is the CRM sentiment classification.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
	SentimentNegative Sentiment = "NEGATIVE"
)

// KeyMoment marks a notable point in the conversation.
type KeyMoment struct {
	Timestamp   float64 `json:"timestamp"`
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
}

// Call is the CRM record of one provider call, keyed by ExternalCallID.
type Call struct {
	ID                  string      `json:"id"`
	ExternalCallID      string      `json:"external_call_id"`
	TenantID            string      `json:"tenant_id"`
	ContactID           *string     `json:"contact_id,omitempty"`
	Direction           Direction   `json:"direction"`
	Status              Status      `json:"status"`
	Lifecycle           Lifecycle   `json:"lifecycle"`
	PhoneNumber         string      `json:"phone_number"`
	AgentID             string      `json:"agent_id"`
	Transcript          *string     `json:"transcript,omitempty"`
	Summary             *string     `json:"summary,omitempty"`
	Sentiment           *Sentiment  `json:"sentiment,omitempty"`
	SentimentScore      *float64    `json:"sentiment_score,omitempty"`
	DetectedIntent      *string     `json:"detected_intent,omitempty"`
	Keywords            []string    `json:"keywords,omitempty"`
	Topics              []string    `json:"topics,omitempty"`
	KeyMoments          []KeyMoment `json:"key_moments,omitempty"`
	FollowUpNeeded      bool        `json:"follow_up_needed"`
	FollowUpNotes       *string     `json:"follow_up_notes,omitempty"`
	RecordingURL        *string     `json:"recording_url,omitempty"`
	DisconnectionReason *string     `json:"disconnection_reason,omitempty"`
	CostPerMinute       float64     `json:"cost_per_minute"`
	DurationSeconds     int64       `json:"duration_seconds"`
	TotalCost           float64     `json:"total_cost"`
	StartedAt           *time.Time  `json:"started_at,omitempty"`
	EndedAt             *time.Time  `json:"ended_at,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}
