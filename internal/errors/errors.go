// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrBatchNotFound struct {
	BatchID int
}

func (e *ErrBatchNotFound) Error() string {
	return fmt.Sprintf("batch with ID %d not found", e.BatchID)
}

func NewBatchNotFound(id int) error {
	return &ErrBatchNotFound{BatchID: id}
}

type ErrTemplateNotFound struct {
	Ref string
}

func (e *ErrTemplateNotFound) Error() string {
	return fmt.Sprintf("message template %q not found", e.Ref)
}

func NewTemplateNotFound(ref string) error {
	return &ErrTemplateNotFound{Ref: ref}
}

// ErrAudienceLocked means the campaign has already sent (or has send history)
// and its audience can no longer be mutated.
var ErrAudienceLocked = errors.New("campaign audience is locked: sending has already started")

// ErrNoRecipients means a dispatch was requested for a campaign with no
// pending recipients.
var ErrNoRecipients = errors.New("campaign has no recipients to dispatch")

// ErrNoTemplate means a dispatch was requested before a template was selected.
var ErrNoTemplate = errors.New("campaign has no message template selected")

// ErrProviderNotConfigured means the business has no provider settings.
var ErrProviderNotConfigured = errors.New("no messaging provider configured for business")

func IsNotFound(err error) bool {
	var c *ErrCampaignNotFound
	var b *ErrBatchNotFound
	var t *ErrTemplateNotFound
	return errors.As(err, &c) || errors.As(err, &b) || errors.As(err, &t)
}
