// internal/repository/sendlog_repository.go
package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

type SendLogRepositoryInterface interface {
	Insert(ctx context.Context, entry *model.CampaignSendLog) error
	CountByCampaign(ctx context.Context, campaignID int) (int, error)
}

// SendLogRepository writes append-only delivery audit rows. Rows are never
// updated after insert.
type SendLogRepository struct {
	DB *sql.DB
}

func (r *SendLogRepository) Insert(ctx context.Context, entry *model.CampaignSendLog) error {
	query := `
        INSERT INTO campaign_send_logs
        (campaign_id, recipient_id, job_id, success, provider_message_id, error, raw_response, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        RETURNING id, created_at
    `
	return r.DB.QueryRowContext(ctx, query, entry.CampaignID, entry.RecipientID,
		entry.JobID, entry.Success, entry.ProviderMessageID, entry.Error,
		entry.RawResponse).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *SendLogRepository) CountByCampaign(ctx context.Context, campaignID int) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaign_send_logs WHERE campaign_id=$1`, campaignID).Scan(&n)
	return n, err
}

var _ SendLogRepositoryInterface = (*SendLogRepository)(nil)
