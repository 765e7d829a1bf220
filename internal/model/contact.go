// internal/model/contact.go
package model

import "time"

// Contact is a known customer record. Batch rows whose phone matches a contact
// link to it; otherwise the resulting audience member is transient.
type Contact struct {
	ID         int    `db:"id" json:"id"`
	BusinessID int    `db:"business_id" json:"business_id"`
	Phone      string `db:"phone" json:"phone"`
	Name       string `db:"name" json:"name"`
}

// BusinessSettings is the read-only provider lookup per business.
type BusinessSettings struct {
	BusinessID int    `db:"business_id" json:"business_id"`
	Provider   string `db:"provider" json:"provider"`
	SenderID   string `db:"sender_id" json:"sender_id"`
}

// TrackedLink maps a short click-tracking token to its full destination.
type TrackedLink struct {
	ID          int       `db:"id" json:"id"`
	Token       string    `db:"token" json:"token"`
	CampaignID  int       `db:"campaign_id" json:"campaign_id"`
	RecipientID *int      `db:"recipient_id" json:"recipient_id,omitempty"`
	Destination string    `db:"destination" json:"destination"`
	Hits        int       `db:"hits" json:"hits"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
