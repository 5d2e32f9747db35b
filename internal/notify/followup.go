// Package notify emails tenants about calls that need a human follow-up.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/crm-voice-sync/internal/calls"
	"github.com/wolfman30/crm-voice-sync/internal/tenancy"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

// DefaultDedupeTTL bounds how long a sent follow-up suppresses repeats.
const DefaultDedupeTTL = 7 * 24 * time.Hour

const dedupeKeyPrefix = "call:followup:"

// FollowUpNotifier sends at most one follow-up email per external call id.
type FollowUpNotifier struct {
	email  EmailSender
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger

	// used when redis is nil
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewFollowUpNotifier builds a notifier. A nil redis client dedupes in process only.
func NewFollowUpNotifier(email EmailSender, rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *FollowUpNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &FollowUpNotifier{
		email:  email,
		redis:  rdb,
		ttl:    ttl,
		logger: logger,
		seen:   make(map[string]time.Time),
	}
}

// NotifyFollowUp emails the tenant's notify address when the call asks for a follow-up.
func (n *FollowUpNotifier) NotifyFollowUp(ctx context.Context, tenant *tenancy.Tenant, call *calls.Call) error {
	if n == nil || n.email == nil || tenant == nil || call == nil || !call.FollowUpNeeded {
		return nil
	}
	to := strings.TrimSpace(tenant.NotifyEmail)
	if to == "" {
		n.logger.Debug("notify: tenant has no notify email, skipping follow-up", "tenant_id", tenant.ID)
		return nil
	}

	first, err := n.claim(ctx, call.ExternalCallID)
	if err != nil {
		return fmt.Errorf("notify: dedupe claim: %w", err)
	}
	if !first {
		n.logger.Debug("notify: follow-up already sent", "call_id", call.ExternalCallID)
		return nil
	}

	msg := EmailMessage{
		To:      to,
		ToName:  tenant.Name,
		Subject: followUpSubject(call),
		Body:    followUpBody(call),

		Category: "call-follow-up",
		CustomArgs: map[string]string{
			"call_id":   call.ExternalCallID,
			"tenant_id": tenant.ID,
		},
	}
	if err := n.email.Send(ctx, msg); err != nil {
		n.release(ctx, call.ExternalCallID)
		return fmt.Errorf("notify: send follow-up: %w", err)
	}

	n.logger.Info("follow-up email sent", "call_id", call.ExternalCallID, "tenant_id", tenant.ID)
	return nil
}

func (n *FollowUpNotifier) claim(ctx context.Context, callID string) (bool, error) {
	key := dedupeKeyPrefix + callID
	if n.redis != nil {
		return n.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), n.ttl).Result()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	for k, at := range n.seen {
		if now.Sub(at) >= n.ttl {
			delete(n.seen, k)
		}
	}
	if _, ok := n.seen[key]; ok {
		return false, nil
	}
	n.seen[key] = now
	return true, nil
}

// release lets a later sync retry after a failed send.
func (n *FollowUpNotifier) release(ctx context.Context, callID string) {
	key := dedupeKeyPrefix + callID
	if n.redis != nil {
		if err := n.redis.Del(ctx, key).Err(); err != nil {
			n.logger.Warn("notify: release dedupe key failed", "call_id", callID, "error", err)
		}
		return
	}
	n.mu.Lock()
	delete(n.seen, key)
	n.mu.Unlock()
}

func followUpSubject(call *calls.Call) string {
	who := call.PhoneNumber
	if who == "" {
		who = "a caller"
	}
	return fmt.Sprintf("Follow-up needed: call with %s", who)
}

func followUpBody(call *calls.Call) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A voice call needs a follow-up.\n\n")
	fmt.Fprintf(&b, "Call ID: %s\n", call.ExternalCallID)
	if call.PhoneNumber != "" {
		fmt.Fprintf(&b, "Phone: %s\n", call.PhoneNumber)
	}
	if call.Direction != calls.DirectionUnknown {
		fmt.Fprintf(&b, "Direction: %s\n", strings.ToLower(string(call.Direction)))
	}
	if call.StartedAt != nil {
		fmt.Fprintf(&b, "Started: %s\n", call.StartedAt.UTC().Format("January 2, 2006 at 3:04 PM MST"))
	}
	if call.DurationSeconds > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", (time.Duration(call.DurationSeconds) * time.Second).String())
	}
	if call.Sentiment != nil {
		fmt.Fprintf(&b, "Sentiment: %s\n", strings.ToLower(string(*call.Sentiment)))
	}
	if call.Summary != nil && *call.Summary != "" {
		fmt.Fprintf(&b, "\nSummary:\n%s\n", *call.Summary)
	}
	if call.FollowUpNotes != nil && *call.FollowUpNotes != "" {
		fmt.Fprintf(&b, "\nFollow-up notes:\n%s\n", *call.FollowUpNotes)
	}
	return b.String()
}
