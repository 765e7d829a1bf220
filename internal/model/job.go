// internal/model/job.go
package model

import (
	"encoding/json"
	"time"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// JobParams is the frozen snapshot of resolved content a job carries. A retry
// reuses exactly this content even if campaign data changes later.
type JobParams struct {
	BodyParams   []string          `json:"body_params"`
	ButtonParams map[string]string `json:"button_params,omitempty"`
	HeaderURL    string            `json:"header_url,omitempty"`
}

// OutboundMessageJob is one queued send unit.
type OutboundMessageJob struct {
	ID               int             `db:"id" json:"id"`
	CampaignID       int             `db:"campaign_id" json:"campaign_id"`
	RecipientID      int             `db:"recipient_id" json:"recipient_id"`
	Provider         string          `db:"provider" json:"provider"`
	MediaType        string          `db:"media_type" json:"media_type"`
	TemplateName     string          `db:"template_name" json:"template_name"`
	TemplateLanguage string          `db:"template_language" json:"template_language"`
	Params           json.RawMessage `db:"params" json:"params"`
	Status           string          `db:"status" json:"status"`
	Attempts         int             `db:"attempts" json:"attempts"`
	MaxAttempts      int             `db:"max_attempts" json:"max_attempts"`
	NextAttemptAt    time.Time       `db:"next_attempt_at" json:"next_attempt_at"`
	LastError        *string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

func (j *OutboundMessageJob) DecodeParams() (JobParams, error) {
	var p JobParams
	err := json.Unmarshal(j.Params, &p)
	return p, err
}
