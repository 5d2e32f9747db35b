package contacts

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Contact statuses.
const (
	StatusLead     = "LEAD"
	StatusProspect = "PROSPECT"
	StatusCustomer = "CUSTOMER"
)

const (
	// NeutralLeadScore is assigned to auto-created contacts.
	NeutralLeadScore = 50
	// SourceVoiceCall marks contacts created from call events.
	SourceVoiceCall = "voice_call"

	placeholderFirstName   = "Unknown"
	placeholderLastName    = "Caller"
	placeholderEmailDomain = "placeholder.invalid"
)

// Contact is a CRM person owned by a tenant.
type Contact struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Status    string    `json:"status"`
	LeadScore int       `json:"lead_score"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPlaceholder reports whether the contact was synthesized from an unmatched number.
func (c *Contact) IsPlaceholder() bool {
	return c != nil && c.FirstName == placeholderFirstName && strings.HasSuffix(c.Email, "@"+placeholderEmailDomain)
}

// NewPlaceholder builds the contact created for a phone number with no match.
func NewPlaceholder(tenantID, phone string, now time.Time) *Contact {
	id := uuid.New()
	digits := strings.TrimPrefix(phone, "+")
	return &Contact{
		ID:        id.String(),
		TenantID:  tenantID,
		FirstName: placeholderFirstName,
		LastName:  placeholderLastName,
		Email:     fmt.Sprintf("unknown+%s.%s@%s", digits, strings.ReplaceAll(id.String(), "-", "")[:12], placeholderEmailDomain),
		Phone:     phone,
		Status:    StatusLead,
		LeadScore: NeutralLeadScore,
		Source:    SourceVoiceCall,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhone reduces a number to E.164. Ten-digit numbers are treated as NANP.
// Returns "" when no usable digits remain.
func NormalizePhone(value string) string {
	digits := nonDigits.ReplaceAllString(strings.TrimSpace(value), "")
	switch {
	case len(digits) < 7:
		return ""
	case len(digits) == 10 && !strings.HasPrefix(strings.TrimSpace(value), "+"):
		return "+1" + digits
	default:
		return "+" + digits
	}
}
