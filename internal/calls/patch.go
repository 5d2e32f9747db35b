package calls

import (
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/crm-voice-sync/internal/contacts"
	"github.com/wolfman30/crm-voice-sync/internal/voice/retellclient"
)

// PatchKind selects which field set an upsert owns.
type PatchKind string

const (
	PatchStart    PatchKind = "start"
	PatchEnd      PatchKind = "end"
	PatchAnalysis PatchKind = "analysis"
)

// Patch is one idempotent write keyed by Call.ExternalCallID. The insert branch
// stores Call as given; the update branch only touches the fields Kind owns.
type Patch struct {
	Kind PatchKind
	Call Call
}

// NewStartPatch records that the provider connected the call.
func NewStartPatch(tenantID string, costPerMinute float64, call retellclient.Call, contactID *string) Patch {
	return Patch{Kind: PatchStart, Call: Call{
		ExternalCallID: call.CallID,
		TenantID:       tenantID,
		ContactID:      contactID,
		Direction:      MapDirection(call.Direction),
		Status:         StatusInProgress,
		Lifecycle:      LifecycleActive,
		PhoneNumber:    phoneNumber(call),
		AgentID:        call.AgentID,
		CostPerMinute:  costPerMinute,
		StartedAt:      TimeFromMillis(call.StartTimestamp),
	}}
}

// NewEndPatch maps a full provider call object.
func NewEndPatch(tenantID string, costPerMinute float64, call retellclient.Call, contactID *string) Patch {
	analysis := ExtractAnalysis(call.CallAnalysis)
	duration := DurationSeconds(call.StartTimestamp, call.EndTimestamp)
	return Patch{Kind: PatchEnd, Call: Call{
		ExternalCallID:      call.CallID,
		TenantID:            tenantID,
		ContactID:           contactID,
		Direction:           MapDirection(call.Direction),
		Status:              MapEndStatus(call.CallStatus),
		Lifecycle:           LifecycleEnded,
		PhoneNumber:         phoneNumber(call),
		AgentID:             call.AgentID,
		Transcript:          optionalString(call.Transcript),
		Summary:             analysis.Summary,
		Sentiment:           analysis.Sentiment,
		SentimentScore:      analysis.SentimentScore,
		DetectedIntent:      analysis.DetectedIntent,
		Keywords:            analysis.Keywords,
		Topics:              analysis.Topics,
		KeyMoments:          analysis.KeyMoments,
		FollowUpNeeded:      analysis.FollowUpNeeded,
		FollowUpNotes:       analysis.FollowUpNotes,
		RecordingURL:        optionalString(call.RecordingURL),
		DisconnectionReason: optionalString(call.DisconnectionReason),
		CostPerMinute:       costPerMinute,
		DurationSeconds:     duration,
		TotalCost:           TotalCost(duration, costPerMinute),
		StartedAt:           TimeFromMillis(call.StartTimestamp),
		EndedAt:             TimeFromMillis(call.EndTimestamp),
	}}
}

// NewAnalysisPatch carries only summary, sentiment and detected intent.
func NewAnalysisPatch(tenantID string, costPerMinute float64, call retellclient.Call) Patch {
	analysis := ExtractAnalysis(call.CallAnalysis)
	return Patch{Kind: PatchAnalysis, Call: Call{
		ExternalCallID: call.CallID,
		TenantID:       tenantID,
		Status:         StatusInProgress,
		Lifecycle:      LifecycleAnalyzed,
		Summary:        analysis.Summary,
		Sentiment:      analysis.Sentiment,
		DetectedIntent: analysis.DetectedIntent,
		CostPerMinute:  costPerMinute,
	}}
}

func phoneNumber(call retellclient.Call) string {
	raw := call.CounterpartyNumber()
	if normalized := contacts.NormalizePhone(raw); normalized != "" {
		return normalized
	}
	return raw
}

// Merge applies p to existing (nil when absent) and returns the resulting row.
// It is the reference for the Postgres upserts, which apply the same rules in SQL.
func Merge(existing *Call, p Patch, now time.Time) *Call {
	if existing == nil {
		c := p.Call
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.DurationSeconds = DurationBetween(c.StartedAt, c.EndedAt)
		c.TotalCost = TotalCost(c.DurationSeconds, c.CostPerMinute)
		c.CreatedAt = now
		c.UpdatedAt = now
		return &c
	}

	c := *existing
	in := p.Call
	if c.ContactID == nil {
		c.ContactID = in.ContactID
	}
	c.Lifecycle, _ = Advance(c.Lifecycle, in.Lifecycle)

	switch p.Kind {
	case PatchStart:
		c.Direction = firstDirection(c.Direction, in.Direction)
		c.PhoneNumber = firstString(c.PhoneNumber, in.PhoneNumber)
		c.AgentID = firstString(c.AgentID, in.AgentID)
		c.StartedAt = firstTime(c.StartedAt, in.StartedAt)
		if !c.Status.Terminal() {
			c.Status = StatusInProgress
		}
	case PatchEnd:
		c.Direction = firstDirection(in.Direction, c.Direction)
		c.PhoneNumber = firstString(in.PhoneNumber, c.PhoneNumber)
		c.AgentID = firstString(in.AgentID, c.AgentID)
		c.Status = in.Status
		c.Transcript = firstPtr(in.Transcript, c.Transcript)
		c.Summary = firstPtr(in.Summary, c.Summary)
		c.Sentiment = firstPtr(in.Sentiment, c.Sentiment)
		c.SentimentScore = firstPtr(in.SentimentScore, c.SentimentScore)
		c.DetectedIntent = firstPtr(in.DetectedIntent, c.DetectedIntent)
		c.Keywords = firstSlice(in.Keywords, c.Keywords)
		c.Topics = firstSlice(in.Topics, c.Topics)
		c.KeyMoments = firstSlice(in.KeyMoments, c.KeyMoments)
		c.FollowUpNeeded = in.FollowUpNeeded
		c.FollowUpNotes = firstPtr(in.FollowUpNotes, c.FollowUpNotes)
		c.RecordingURL = firstPtr(in.RecordingURL, c.RecordingURL)
		c.DisconnectionReason = firstPtr(in.DisconnectionReason, c.DisconnectionReason)
		c.CostPerMinute = in.CostPerMinute
		c.StartedAt = firstTime(in.StartedAt, c.StartedAt)
		c.EndedAt = firstTime(in.EndedAt, c.EndedAt)
	case PatchAnalysis:
		c.Summary = firstPtr(in.Summary, c.Summary)
		c.Sentiment = firstPtr(in.Sentiment, c.Sentiment)
		c.DetectedIntent = firstPtr(in.DetectedIntent, c.DetectedIntent)
		c.UpdatedAt = now
		return &c
	}

	c.DurationSeconds = DurationBetween(c.StartedAt, c.EndedAt)
	c.TotalCost = TotalCost(c.DurationSeconds, c.CostPerMinute)
	c.UpdatedAt = now
	return &c
}

func firstString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstDirection(a, b Direction) Direction {
	if a != DirectionUnknown {
		return a
	}
	return b
}

func firstTime(a, b *time.Time) *time.Time {
	if a != nil {
		return a
	}
	return b
}

func firstPtr[T any](a, b *T) *T {
	if a != nil {
		return a
	}
	return b
}

func firstSlice[T any](a, b []T) []T {
	if a != nil {
		return a
	}
	return b
}
