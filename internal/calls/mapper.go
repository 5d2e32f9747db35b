package calls

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/crm-voice-sync/internal/voice/retellclient"
)

// DefaultCostPerMinute is the plan rate applied when neither tenant nor config sets one.
const DefaultCostPerMinute = 0.05

// MapSentiment translates a provider sentiment label. Unknown and unrecognized
// labels map to NEUTRAL; an empty label means no analysis yet and returns nil.
func MapSentiment(label string) *Sentiment {
	var s Sentiment
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "":
		return nil
	case "positive":
		s = SentimentPositive
	case "negative":
		s = SentimentNegative
	default:
		s = SentimentNeutral
	}
	return &s
}

// MapDirection translates the provider direction.
func MapDirection(direction string) Direction {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case retellclient.DirectionInbound:
		return DirectionInbound
	case retellclient.DirectionOutbound:
		return DirectionOutbound
	default:
		return DirectionUnknown
	}
}

// MapEndStatus maps the provider status at end of call: ended is COMPLETED,
// anything else is FAILED.
func MapEndStatus(providerStatus string) Status {
	if strings.EqualFold(strings.TrimSpace(providerStatus), retellclient.CallStatusEnded) {
		return StatusCompleted
	}
	return StatusFailed
}

// TimeFromMillis converts a provider millisecond timestamp; zero or negative is unknown.
func TimeFromMillis(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// DurationSeconds is floor((end-start)/1000), zero when either side is missing or inverted.
func DurationSeconds(startMs, endMs int64) int64 {
	if startMs <= 0 || endMs <= 0 || endMs <= startMs {
		return 0
	}
	return (endMs - startMs) / 1000
}

// DurationBetween applies DurationSeconds to stored timestamps.
func DurationBetween(start, end *time.Time) int64 {
	if start == nil || end == nil {
		return 0
	}
	return DurationSeconds(start.UnixMilli(), end.UnixMilli())
}

// TotalCost is (durationSeconds / 60) * costPerMinute, rounded to six places.
func TotalCost(durationSeconds int64, costPerMinute float64) float64 {
	if durationSeconds <= 0 || costPerMinute <= 0 {
		return 0
	}
	return math.Round(float64(durationSeconds)/60*costPerMinute*1e6) / 1e6
}

// Analysis is the CRM view of the provider's post-call analysis.
type Analysis struct {
	Summary        *string
	Sentiment      *Sentiment
	SentimentScore *float64
	DetectedIntent *string
	Keywords       []string
	Topics         []string
	KeyMoments     []KeyMoment
	FollowUpNeeded bool
	FollowUpNotes  *string
}

// ExtractAnalysis maps call_analysis, reading CRM-specific fields from custom_analysis_data.
func ExtractAnalysis(a *retellclient.CallAnalysis) Analysis {
	if a == nil {
		return Analysis{}
	}
	custom := a.CustomAnalysisData
	out := Analysis{
		Summary:        optionalString(a.CallSummary),
		Sentiment:      MapSentiment(a.UserSentiment),
		DetectedIntent: optionalString(stringValue(custom["detected_intent"])),
		Keywords:       stringSet(custom["keywords"]),
		Topics:         stringSet(custom["topics"]),
		KeyMoments:     keyMoments(custom["key_moments"]),
		FollowUpNeeded: boolValue(custom["follow_up_needed"]),
		FollowUpNotes:  optionalString(stringValue(custom["follow_up_notes"])),
	}
	if score, ok := floatValue(custom["sentiment_score"]); ok {
		score = math.Max(-1, math.Min(1, score))
		out.SentimentScore = &score
	}
	return out
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func floatValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil && !math.IsNaN(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

func boolValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true
		}
	case float64:
		return t != 0
	}
	return false
}

// stringSet accepts a JSON array or a comma-separated string and returns a
// sorted, de-duplicated set.
func stringSet(v any) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = t
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func keyMoments(v any) []KeyMoment {
	if v == nil {
		return nil
	}
	var data []byte
	if s, ok := v.(string); ok {
		data = []byte(s)
	} else {
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		data = b
	}
	var moments []KeyMoment
	if err := json.Unmarshal(data, &moments); err != nil {
		return nil
	}
	out := moments[:0]
	for _, m := range moments {
		if strings.TrimSpace(m.Label) == "" && strings.TrimSpace(m.Description) == "" {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
