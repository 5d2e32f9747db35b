package retellclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Provider call statuses.
const (
	CallStatusRegistered = "registered"
	CallStatusOngoing    = "ongoing"
	CallStatusEnded      = "ended"
	CallStatusError      = "error"
)

// Call directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Call is the provider's call object, shared by webhooks and get-call.
// Webhook variants carry subsets of these fields.
type Call struct {
	CallID              string         `json:"call_id" validate:"required"`
	AgentID             string         `json:"agent_id,omitempty"`
	CallType            string         `json:"call_type,omitempty"`
	CallStatus          string         `json:"call_status,omitempty"`
	Direction           string         `json:"direction,omitempty"`
	FromNumber          string         `json:"from_number,omitempty"`
	ToNumber            string         `json:"to_number,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	StartTimestamp      int64          `json:"start_timestamp,omitempty" validate:"gte=0"`
	EndTimestamp        int64          `json:"end_timestamp,omitempty" validate:"gte=0"`
	Transcript          string         `json:"transcript,omitempty"`
	RecordingURL        string         `json:"recording_url,omitempty"`
	DisconnectionReason string         `json:"disconnection_reason,omitempty"`
	CallAnalysis        *CallAnalysis  `json:"call_analysis,omitempty"`
}

// CounterpartyNumber is the customer's number: from for inbound, to for outbound.
func (c Call) CounterpartyNumber() string {
	if strings.EqualFold(c.Direction, DirectionOutbound) {
		return c.ToNumber
	}
	return c.FromNumber
}

// MetadataString returns the first non-empty metadata value among keys.
func (c Call) MetadataString(keys ...string) string {
	for _, key := range keys {
		raw, ok := c.Metadata[key]
		if !ok || raw == nil {
			continue
		}
		var value string
		switch v := raw.(type) {
		case string:
			value = v
		case float64:
			value = strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			value = v.String()
		default:
			value = fmt.Sprint(v)
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

// CallAnalysis is the post-call analysis block.
type CallAnalysis struct {
	CallSummary        string         `json:"call_summary,omitempty"`
	UserSentiment      string         `json:"user_sentiment,omitempty"`
	CallSuccessful     *bool          `json:"call_successful,omitempty"`
	InVoicemail        *bool          `json:"in_voicemail,omitempty"`
	CustomAnalysisData map[string]any `json:"custom_analysis_data,omitempty"`
}

// Agent is a provider voice agent.
type Agent struct {
	AgentID                   string `json:"agent_id"`
	AgentName                 string `json:"agent_name,omitempty"`
	VoiceID                   string `json:"voice_id,omitempty"`
	Language                  string `json:"language,omitempty"`
	WebhookURL                string `json:"webhook_url,omitempty"`
	LastModificationTimestamp int64  `json:"last_modification_timestamp,omitempty"`
}

// TimestampRange bounds a millisecond timestamp filter.
type TimestampRange struct {
	LowerThreshold int64 `json:"lower_threshold,omitempty"`
	UpperThreshold int64 `json:"upper_threshold,omitempty"`
}

// FilterCriteria narrows list-calls results.
type FilterCriteria struct {
	AgentID        []string        `json:"agent_id,omitempty"`
	CallStatus     []string        `json:"call_status,omitempty"`
	Direction      []string        `json:"direction,omitempty"`
	StartTimestamp *TimestampRange `json:"start_timestamp,omitempty"`
}

func (f FilterCriteria) empty() bool {
	return len(f.AgentID) == 0 && len(f.CallStatus) == 0 && len(f.Direction) == 0 && f.StartTimestamp == nil
}

// ListCallsRequest is one page request for list-calls.
type ListCallsRequest struct {
	FilterCriteria FilterCriteria
	Limit          int
	SortOrder      string
	PaginationKey  string
}

func (r ListCallsRequest) query() (url.Values, error) {
	q := url.Values{}
	if r.Limit > 0 {
		q.Set("limit", strconv.Itoa(r.Limit))
	}
	switch r.SortOrder {
	case "":
	case "ascending", "descending":
		q.Set("sort_order", r.SortOrder)
	default:
		return nil, fmt.Errorf("retellclient: invalid sort order %q", r.SortOrder)
	}
	if r.PaginationKey != "" {
		q.Set("pagination_key", r.PaginationKey)
	}
	if !r.FilterCriteria.empty() {
		raw, err := json.Marshal(r.FilterCriteria)
		if err != nil {
			return nil, fmt.Errorf("retellclient: marshal filter criteria: %w", err)
		}
		q.Set("filter_criteria", string(raw))
	}
	return q, nil
}

// CreatePhoneCallRequest starts an outbound call from a provider number.
type CreatePhoneCallRequest struct {
	FromNumber       string            `json:"from_number"`
	ToNumber         string            `json:"to_number"`
	OverrideAgentID  string            `json:"override_agent_id,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

func (r CreatePhoneCallRequest) validate() error {
	if strings.TrimSpace(r.FromNumber) == "" || strings.TrimSpace(r.ToNumber) == "" {
		return errors.New("retellclient: from and to numbers required")
	}
	return nil
}

// RegisterPhoneCallRequest registers a call for custom telephony.
type RegisterPhoneCallRequest struct {
	AgentID    string         `json:"agent_id"`
	FromNumber string         `json:"from_number,omitempty"`
	ToNumber   string         `json:"to_number,omitempty"`
	Direction  string         `json:"direction,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (r RegisterPhoneCallRequest) validate() error {
	if strings.TrimSpace(r.AgentID) == "" {
		return errors.New("retellclient: agent id required")
	}
	switch r.Direction {
	case "", DirectionInbound, DirectionOutbound:
		return nil
	default:
		return fmt.Errorf("retellclient: invalid direction %q", r.Direction)
	}
}
