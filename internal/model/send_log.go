// internal/model/send_log.go
package model

import "time"

// CampaignSendLog is an append-only audit row for one delivery attempt.
// Never updated after insert.
type CampaignSendLog struct {
	ID                int       `db:"id" json:"id"`
	CampaignID        int       `db:"campaign_id" json:"campaign_id"`
	RecipientID       *int      `db:"recipient_id" json:"recipient_id,omitempty"`
	JobID             *int      `db:"job_id" json:"job_id,omitempty"`
	Success           bool      `db:"success" json:"success"`
	ProviderMessageID string    `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Error             string    `db:"error" json:"error,omitempty"`
	RawResponse       string    `db:"raw_response" json:"raw_response,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
