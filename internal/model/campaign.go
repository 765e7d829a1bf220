// internal/model/campaign.go
package model

import "time"

const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusSending   = "sending"
	CampaignStatusSent      = "sent"
	CampaignStatusFailed    = "failed"
)

const (
	ProviderMeta    = "meta"
	ProviderGupshup = "gupshup"
)

type Campaign struct {
	ID             int              `db:"id" json:"id"`
	BusinessID     int              `db:"business_id" json:"business_id"`
	Name           string           `db:"name" json:"name"`
	Status         string           `db:"status" json:"status"`
	TemplateID     *int             `db:"template_id" json:"template_id,omitempty"`
	Provider       string           `db:"provider" json:"provider"`
	HeaderMediaURL string           `db:"header_media_url" json:"header_media_url,omitempty"`
	Buttons        []CampaignButton `db:"buttons" json:"buttons"`
	ScheduledAt    *time.Time       `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time       `db:"updated_at" json:"updated_at,omitempty"`
}

// CampaignButton is the campaign-level button configuration. Value is the
// destination URL template for dynamic URL buttons.
type CampaignButton struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (b CampaignButton) ButtonKind() string  { return b.Type }
func (b CampaignButton) ButtonValue() string { return b.Value }
