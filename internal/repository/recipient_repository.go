// internal/repository/recipient_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

type RecipientRepositoryInterface interface {
	ListPending(ctx context.Context, campaignID int) ([]model.CampaignRecipient, error)
	ListManual(ctx context.Context, campaignID int) ([]model.CampaignRecipient, error)
	GetByID(ctx context.Context, id int) (*model.CampaignRecipient, error)
	MarkSent(ctx context.Context, id int) error
	MarkFailed(ctx context.Context, id int, reason string) error
	InsertManual(ctx context.Context, rec *model.CampaignRecipient) error
}

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, campaign_id, contact_id, audience_member_id, phone, display_name, body_params, button_params, idempotency_key, status, failure_reason, materialized_at, sent_at`

func scanRecipient(row interface{ Scan(...interface{}) error }) (*model.CampaignRecipient, error) {
	var rec model.CampaignRecipient
	var bodyJSON, buttonJSON []byte
	err := row.Scan(&rec.ID, &rec.CampaignID, &rec.ContactID, &rec.AudienceMemberID,
		&rec.Phone, &rec.DisplayName, &bodyJSON, &buttonJSON, &rec.IdempotencyKey,
		&rec.Status, &rec.FailureReason, &rec.MaterializedAt, &rec.SentAt)
	if err != nil {
		return nil, err
	}
	if len(bodyJSON) > 0 {
		if err := json.Unmarshal(bodyJSON, &rec.BodyParams); err != nil {
			return nil, fmt.Errorf("decode body params: %w", err)
		}
	}
	if len(buttonJSON) > 0 {
		if err := json.Unmarshal(buttonJSON, &rec.ButtonParams); err != nil {
			return nil, fmt.Errorf("decode button params: %w", err)
		}
	}
	return &rec, nil
}

func (r *RecipientRepository) list(ctx context.Context, query string, args ...interface{}) ([]model.CampaignRecipient, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CampaignRecipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *RecipientRepository) ListPending(ctx context.Context, campaignID int) ([]model.CampaignRecipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM campaign_recipients
              WHERE campaign_id=$1 AND status=$2 ORDER BY id ASC`
	return r.list(ctx, query, campaignID, model.RecipientStatusPending)
}

func (r *RecipientRepository) ListManual(ctx context.Context, campaignID int) ([]model.CampaignRecipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM campaign_recipients
              WHERE campaign_id=$1 AND audience_member_id IS NULL ORDER BY id ASC`
	return r.list(ctx, query, campaignID)
}

func (r *RecipientRepository) GetByID(ctx context.Context, id int) (*model.CampaignRecipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM campaign_recipients WHERE id=$1`
	rec, err := scanRecipient(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecipientRepository) MarkSent(ctx context.Context, id int) error {
	query := `UPDATE campaign_recipients SET status=$1, sent_at=NOW() WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, model.RecipientStatusSent, id)
	return err
}

func (r *RecipientRepository) MarkFailed(ctx context.Context, id int, reason string) error {
	query := `UPDATE campaign_recipients SET status=$1, failure_reason=$2 WHERE id=$3`
	_, err := r.DB.ExecContext(ctx, query, model.RecipientStatusFailed, reason, id)
	return err
}

func (r *RecipientRepository) InsertManual(ctx context.Context, rec *model.CampaignRecipient) error {
	rec.MaterializedAt = time.Now()
	rec.Status = model.RecipientStatusPending
	bodyJSON, buttonJSON, err := encodeParams(rec.BodyParams, rec.ButtonParams)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaign_recipients
        (campaign_id, contact_id, audience_member_id, phone, display_name, body_params, button_params, idempotency_key, status, failure_reason, materialized_at)
        VALUES ($1, $2, NULL, $3, $4, $5, $6, $7, $8, '', $9)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query, rec.CampaignID, rec.ContactID,
		rec.Phone, rec.DisplayName, bodyJSON, buttonJSON,
		rec.IdempotencyKey, rec.Status, rec.MaterializedAt).Scan(&rec.ID)
}

func encodeParams(body []string, buttons map[string]string) ([]byte, []byte, error) {
	if body == nil {
		body = []string{}
	}
	if buttons == nil {
		buttons = map[string]string{}
	}
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	buttonJSON, err := json.Marshal(buttons)
	if err != nil {
		return nil, nil, err
	}
	return bodyJSON, buttonJSON, nil
}

// insertRecipientsTx bulk-inserts recipients inside an open transaction.
func insertRecipientsTx(ctx context.Context, tx *sql.Tx, recipients []model.CampaignRecipient) error {
	if len(recipients) == 0 {
		return nil
	}
	values := make([]string, 0, len(recipients))
	args := make([]interface{}, 0, len(recipients)*9)
	now := time.Now()
	for i, rec := range recipients {
		bodyJSON, buttonJSON, err := encodeParams(rec.BodyParams, rec.ButtonParams)
		if err != nil {
			return err
		}
		base := i * 9
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		args = append(args, rec.CampaignID, rec.ContactID, rec.AudienceMemberID,
			rec.Phone, rec.DisplayName, bodyJSON, buttonJSON, rec.IdempotencyKey, now)
	}
	query := `
        INSERT INTO campaign_recipients
        (campaign_id, contact_id, audience_member_id, phone, display_name, body_params, button_params, idempotency_key, materialized_at)
        VALUES ` + strings.Join(values, ", ")
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
