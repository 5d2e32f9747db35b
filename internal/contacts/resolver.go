package contacts

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

// Resolver finds or creates the contact for a tenant's counter-party number.
type Resolver struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

// NewResolver builds a resolver on repo.
func NewResolver(repo Repository, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Resolve returns the contact matching phone in tenantID, creating a placeholder
// LEAD on a miss. created reports whether this call inserted the row.
func (r *Resolver) Resolve(ctx context.Context, tenantID, phone string) (*Contact, bool, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, false, ErrNoPhone
	}
	existing, err := r.repo.FindByPhone(ctx, tenantID, normalized)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrContactNotFound) {
		return nil, false, err
	}

	contact, created, err := r.repo.CreateIfAbsent(ctx, NewPlaceholder(tenantID, normalized, r.now()))
	if err != nil {
		return nil, false, err
	}
	if created {
		r.logger.Info("placeholder contact created",
			"tenant_id", tenantID,
			"contact_id", contact.ID,
		)
	}
	return contact, created, nil
}
