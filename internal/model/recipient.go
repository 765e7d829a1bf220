// internal/model/recipient.go
package model

import "time"

const (
	RecipientStatusPending = "pending"
	RecipientStatusSent    = "sent"
	RecipientStatusFailed  = "failed"
)

// CampaignRecipient is one delivery target. CSV-derived recipients carry an
// AudienceMemberID; manually assigned ones carry only a ContactID.
type CampaignRecipient struct {
	ID               int               `db:"id" json:"id"`
	CampaignID       int               `db:"campaign_id" json:"campaign_id"`
	ContactID        *int              `db:"contact_id" json:"contact_id,omitempty"`
	AudienceMemberID *int              `db:"audience_member_id" json:"audience_member_id,omitempty"`
	Phone            string            `db:"phone" json:"phone"`
	DisplayName      string            `db:"display_name" json:"display_name"`
	BodyParams       []string          `db:"body_params" json:"body_params"`
	ButtonParams     map[string]string `db:"button_params" json:"button_params"`
	IdempotencyKey   string            `db:"idempotency_key" json:"idempotency_key"`
	Status           string            `db:"status" json:"status"`
	FailureReason    string            `db:"failure_reason" json:"failure_reason,omitempty"`
	MaterializedAt   time.Time         `db:"materialized_at" json:"materialized_at"`
	SentAt           *time.Time        `db:"sent_at" json:"sent_at,omitempty"`
}

// IsManual reports whether the recipient was assigned by hand rather than
// derived from an uploaded batch.
func (r *CampaignRecipient) IsManual() bool {
	return r.AudienceMemberID == nil
}

// RecipientIdentity resolves the two recipient variants to a common
// (phone, name) pair.
type RecipientIdentity struct {
	Phone string
	Name  string
}

func (r *CampaignRecipient) Identity() RecipientIdentity {
	return RecipientIdentity{Phone: r.Phone, Name: r.DisplayName}
}
