// internal/repository/audience_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

// MemberRecipient pairs an audience member with the campaign recipient that
// will be created from it. The recipient's AudienceMemberID is filled in
// during the transaction, once the member row exists.
type MemberRecipient struct {
	Member    model.AudienceMember
	Recipient model.CampaignRecipient
}

// ReplaceSpec describes one atomic audience replacement.
type ReplaceSpec struct {
	CampaignID   int
	BusinessID   int
	BatchID      *int
	AudienceName string
	Actor        string
	Members      []MemberRecipient
}

// ReplaceResult summarizes what the transaction did.
type ReplaceResult struct {
	AttachmentID      int
	AudienceID        int
	DeletedRecipients int
	InsertedMembers   int
}

type AudienceRepositoryInterface interface {
	// Replace atomically deactivates the current attachment, deletes
	// CSV-derived recipients only, inserts the new audience with its members
	// and recipients, and activates a new attachment row.
	Replace(ctx context.Context, spec ReplaceSpec) (*ReplaceResult, error)
	// Remove deactivates the active attachment and deletes CSV-derived
	// recipients; history rows stay.
	Remove(ctx context.Context, campaignID int, actor string) (int, error)
	ActiveAttachment(ctx context.Context, campaignID int) (*model.CampaignAudienceAttachment, error)
	History(ctx context.Context, campaignID int) ([]model.CampaignAudienceAttachment, error)
}

type AudienceRepository struct {
	DB *sql.DB
}

func (r *AudienceRepository) Replace(ctx context.Context, spec ReplaceSpec) (*ReplaceResult, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace tx: %w", err)
	}
	defer tx.Rollback()

	deleted, err := deactivateAndClear(ctx, tx, spec.CampaignID, spec.Actor)
	if err != nil {
		return nil, err
	}

	var audienceID int
	err = tx.QueryRowContext(ctx, `
        INSERT INTO audiences (business_id, campaign_id, batch_id, name, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING id
    `, spec.BusinessID, spec.CampaignID, spec.BatchID, spec.AudienceName).Scan(&audienceID)
	if err != nil {
		return nil, fmt.Errorf("insert audience: %w", err)
	}

	recipients := make([]model.CampaignRecipient, 0, len(spec.Members))
	for i := range spec.Members {
		m := &spec.Members[i].Member
		m.AudienceID = audienceID
		attrsJSON, err := json.Marshal(m.Attributes)
		if err != nil {
			return nil, fmt.Errorf("marshal member attributes: %w", err)
		}
		var memberID int
		err = tx.QueryRowContext(ctx, `
            INSERT INTO audience_members
            (business_id, audience_id, contact_id, normalized_phone, raw_phone, attributes, is_transient, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
            RETURNING id
        `, m.BusinessID, audienceID, m.ContactID, m.NormalizedPhone,
			m.RawPhone, attrsJSON, m.IsTransient).Scan(&memberID)
		if err != nil {
			return nil, fmt.Errorf("insert audience member: %w", err)
		}
		m.ID = memberID

		rec := spec.Members[i].Recipient
		rec.CampaignID = spec.CampaignID
		rec.AudienceMemberID = &memberID
		recipients = append(recipients, rec)
	}

	if err := insertRecipientsTx(ctx, tx, recipients); err != nil {
		return nil, fmt.Errorf("insert recipients: %w", err)
	}

	var attachmentID int
	err = tx.QueryRowContext(ctx, `
        INSERT INTO campaign_audience_attachments (campaign_id, audience_id, batch_id, active, created_at)
        VALUES ($1, $2, $3, TRUE, NOW())
        RETURNING id
    `, spec.CampaignID, audienceID, spec.BatchID).Scan(&attachmentID)
	if err != nil {
		return nil, fmt.Errorf("insert attachment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace tx: %w", err)
	}

	return &ReplaceResult{
		AttachmentID:      attachmentID,
		AudienceID:        audienceID,
		DeletedRecipients: deleted,
		InsertedMembers:   len(spec.Members),
	}, nil
}

func (r *AudienceRepository) Remove(ctx context.Context, campaignID int, actor string) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin remove tx: %w", err)
	}
	defer tx.Rollback()

	deleted, err := deactivateAndClear(ctx, tx, campaignID, actor)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit remove tx: %w", err)
	}
	return deleted, nil
}

// deactivateAndClear deactivates the active attachment (if any) and deletes
// the CSV-derived recipients. Manually assigned recipients
// (audience_member_id IS NULL) are never touched.
func deactivateAndClear(ctx context.Context, tx *sql.Tx, campaignID int, actor string) (int, error) {
	_, err := tx.ExecContext(ctx, `
        UPDATE campaign_audience_attachments
        SET active=FALSE, deactivated_at=NOW(), deactivated_by=$1
        WHERE campaign_id=$2 AND active=TRUE
    `, actor, campaignID)
	if err != nil {
		return 0, fmt.Errorf("deactivate attachment: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
        DELETE FROM campaign_recipients
        WHERE campaign_id=$1 AND audience_member_id IS NOT NULL
    `, campaignID)
	if err != nil {
		return 0, fmt.Errorf("delete csv recipients: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return int(deleted), nil
}

func (r *AudienceRepository) ActiveAttachment(ctx context.Context, campaignID int) (*model.CampaignAudienceAttachment, error) {
	query := `
        SELECT id, campaign_id, audience_id, batch_id, active, created_at, deactivated_at, deactivated_by
        FROM campaign_audience_attachments
        WHERE campaign_id=$1 AND active=TRUE
    `
	var a model.CampaignAudienceAttachment
	err := r.DB.QueryRowContext(ctx, query, campaignID).Scan(&a.ID, &a.CampaignID,
		&a.AudienceID, &a.BatchID, &a.Active, &a.CreatedAt, &a.DeactivatedAt, &a.DeactivatedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *AudienceRepository) History(ctx context.Context, campaignID int) ([]model.CampaignAudienceAttachment, error) {
	query := `
        SELECT id, campaign_id, audience_id, batch_id, active, created_at, deactivated_at, deactivated_by
        FROM campaign_audience_attachments
        WHERE campaign_id=$1
        ORDER BY created_at DESC, id DESC
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CampaignAudienceAttachment{}
	for rows.Next() {
		var a model.CampaignAudienceAttachment
		if err := rows.Scan(&a.ID, &a.CampaignID, &a.AudienceID, &a.BatchID,
			&a.Active, &a.CreatedAt, &a.DeactivatedAt, &a.DeactivatedBy); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ AudienceRepositoryInterface = (*AudienceRepository)(nil)
