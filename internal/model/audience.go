// internal/model/audience.go
package model

import "time"

// Audience is a named snapshot of recipients. A new one is created on every
// attachment replace; rows are never mutated in place.
type Audience struct {
	ID         int       `db:"id" json:"id"`
	BusinessID int       `db:"business_id" json:"business_id"`
	CampaignID int       `db:"campaign_id" json:"campaign_id"`
	BatchID    *int      `db:"batch_id" json:"batch_id,omitempty"`
	Name       string    `db:"name" json:"name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AudienceMember is one resolved recipient of an audience snapshot.
// At most one member per normalized phone per audience.
type AudienceMember struct {
	ID              int               `db:"id" json:"id"`
	BusinessID      int               `db:"business_id" json:"business_id"`
	AudienceID      int               `db:"audience_id" json:"audience_id"`
	ContactID       *int              `db:"contact_id" json:"contact_id,omitempty"`
	NormalizedPhone string            `db:"normalized_phone" json:"normalized_phone"`
	RawPhone        string            `db:"raw_phone" json:"raw_phone"`
	Attributes      map[string]string `db:"attributes" json:"attributes"`
	IsTransient     bool              `db:"is_transient" json:"is_transient"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}

// CampaignAudienceAttachment points a campaign at its current audience.
// At most one active row per campaign; replaced rows are deactivated, never
// deleted.
type CampaignAudienceAttachment struct {
	ID            int        `db:"id" json:"id"`
	CampaignID    int        `db:"campaign_id" json:"campaign_id"`
	AudienceID    int        `db:"audience_id" json:"audience_id"`
	BatchID       *int       `db:"batch_id" json:"batch_id,omitempty"`
	Active        bool       `db:"active" json:"active"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
	DeactivatedBy *string    `db:"deactivated_by" json:"deactivated_by,omitempty"`
}
