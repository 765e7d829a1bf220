// internal/repository/campaign_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	Create(ctx context.Context, c *model.Campaign) error
	UpdateStatus(ctx context.Context, campaignID int, status string) error
	// MarkSendingIfNot flips a campaign to sending unless it is already
	// sending or has reached a terminal state (sent, failed); returns the
	// status it ended up with.
	MarkSendingIfNot(ctx context.Context, campaignID int) (string, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
	GetRecipientStats(ctx context.Context, campaignID int) (map[string]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
	sb sq.StatementBuilderType
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{
		DB: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const campaignColumns = `id, business_id, name, status, template_id, provider, header_media_url, buttons, scheduled_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*model.Campaign, error) {
	var c model.Campaign
	var buttonsJSON []byte
	err := row.Scan(&c.ID, &c.BusinessID, &c.Name, &c.Status, &c.TemplateID,
		&c.Provider, &c.HeaderMediaURL, &buttonsJSON, &c.ScheduledAt,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(buttonsJSON) > 0 {
		if err := json.Unmarshal(buttonsJSON, &c.Buttons); err != nil {
			return nil, fmt.Errorf("decode campaign buttons: %w", err)
		}
	}
	return &c, nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	buttonsJSON, err := json.Marshal(c.Buttons)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns (business_id, name, status, template_id, provider, header_media_url, buttons, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query, c.BusinessID, c.Name, c.Status,
		c.TemplateID, c.Provider, c.HeaderMediaURL, buttonsJSON,
		c.ScheduledAt, c.CreatedAt).Scan(&c.ID)
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, campaignID int, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, status, campaignID)
	return err
}

func (r *CampaignRepository) MarkSendingIfNot(ctx context.Context, campaignID int) (string, error) {
	query := `
        UPDATE campaigns
        SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status NOT IN ($1, $3, $4)
    `
	if _, err := r.DB.ExecContext(ctx, query, model.CampaignStatusSending,
		campaignID, model.CampaignStatusSent, model.CampaignStatusFailed); err != nil {
		return "", err
	}
	var status string
	if err := r.DB.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id=$1`, campaignID).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return "", appErrors.NewCampaignNotFound(campaignID)
		}
		return "", err
	}
	return status, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	q := r.sb.Select(campaignColumns).From("campaigns")
	countQ := r.sb.Select("COUNT(*)").From("campaigns")
	if status != "" {
		q = q.Where(sq.Eq{"status": status})
		countQ = countQ.Where(sq.Eq{"status": status})
	}
	q = q.OrderBy("id DESC").Limit(uint64(limit)).Offset(uint64(offset))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build campaign list: %w", err)
	}
	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build campaign count: %w", err)
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) GetRecipientStats(ctx context.Context, campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM campaign_recipients WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"pending": 0, "sent": 0, "failed": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
