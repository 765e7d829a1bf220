// internal/repository/job_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

type JobRepositoryInterface interface {
	InsertJobs(ctx context.Context, jobs []model.OutboundMessageJob) (int, error)
	// ClaimDue atomically flips up to limit due pending jobs to running and
	// returns them, ordered by (next_attempt_at, created_at). Concurrent
	// sweepers never receive the same job.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.OutboundMessageJob, error)
	Complete(ctx context.Context, jobID int) error
	// Fail increments attempts and either reschedules the job with backoff or
	// marks it terminally failed once max attempts is reached. Returns the
	// resulting status.
	Fail(ctx context.Context, jobID int, errMsg string, backoffBase time.Duration) (string, error)
	GetByID(ctx context.Context, jobID int) (*model.OutboundMessageJob, error)
	CountByStatus(ctx context.Context, campaignID int) (map[string]int, error)
}

type JobRepository struct {
	DB *sql.DB
	sb sq.StatementBuilderType
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{
		DB: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const jobColumns = `id, campaign_id, recipient_id, provider, media_type, template_name, template_language, params, status, attempts, max_attempts, next_attempt_at, last_error, created_at, updated_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*model.OutboundMessageJob, error) {
	var j model.OutboundMessageJob
	err := row.Scan(&j.ID, &j.CampaignID, &j.RecipientID, &j.Provider, &j.MediaType,
		&j.TemplateName, &j.TemplateLanguage, &j.Params, &j.Status, &j.Attempts,
		&j.MaxAttempts, &j.NextAttemptAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// InsertJobs bulk-inserts jobs. Every dispatch deliberately creates fresh
// rows; there is no idempotency suppression at the job layer.
func (r *JobRepository) InsertJobs(ctx context.Context, jobs []model.OutboundMessageJob) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}
	values := make([]string, 0, len(jobs))
	args := make([]interface{}, 0, len(jobs)*9)
	now := time.Now()
	for i, j := range jobs {
		base := i * 9
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		args = append(args, j.CampaignID, j.RecipientID, j.Provider, j.MediaType,
			j.TemplateName, j.TemplateLanguage, []byte(j.Params), j.MaxAttempts, now)
	}
	query := `
        INSERT INTO outbound_message_jobs
        (campaign_id, recipient_id, provider, media_type, template_name, template_language, params, max_attempts, next_attempt_at)
        VALUES ` + strings.Join(values, ", ")
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *JobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.OutboundMessageJob, error) {
	if limit <= 0 {
		limit = 50
	}
	// FOR UPDATE SKIP LOCKED makes the claim safe across concurrent sweepers:
	// a row selected by one transaction is invisible to the other's subselect.
	query := `
        UPDATE outbound_message_jobs
        SET status=$1, updated_at=NOW()
        WHERE id IN (
            SELECT id FROM outbound_message_jobs
            WHERE status=$2 AND next_attempt_at <= $3
            ORDER BY next_attempt_at ASC, created_at ASC
            LIMIT $4
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + jobColumns
	rows, err := r.DB.QueryContext(ctx, query, model.JobStatusRunning,
		model.JobStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	jobs := []model.OutboundMessageJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) Complete(ctx context.Context, jobID int) error {
	query := `
        UPDATE outbound_message_jobs
        SET status=$1, attempts=attempts+1, last_error=NULL, updated_at=NOW()
        WHERE id=$2 AND status=$3
    `
	_, err := r.DB.ExecContext(ctx, query, model.JobStatusSucceeded, jobID, model.JobStatusRunning)
	return err
}

func (r *JobRepository) Fail(ctx context.Context, jobID int, errMsg string, backoffBase time.Duration) (string, error) {
	// Exponential backoff: base * 2^(attempts before this failure).
	query := `
        UPDATE outbound_message_jobs
        SET attempts = attempts + 1,
            last_error = $1,
            status = CASE WHEN attempts + 1 >= max_attempts THEN $2 ELSE $3 END,
            next_attempt_at = NOW() + ($4 * POWER(2, attempts) * INTERVAL '1 second'),
            updated_at = NOW()
        WHERE id = $5 AND status = $6
        RETURNING status
    `
	var status string
	err := r.DB.QueryRowContext(ctx, query, errMsg, model.JobStatusFailed,
		model.JobStatusPending, int(backoffBase.Seconds()), jobID,
		model.JobStatusRunning).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("job %d is not running", jobID)
		}
		return "", err
	}
	return status, nil
}

func (r *JobRepository) GetByID(ctx context.Context, jobID int) (*model.OutboundMessageJob, error) {
	query := `SELECT ` + jobColumns + ` FROM outbound_message_jobs WHERE id=$1`
	j, err := scanJob(r.DB.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return j, nil
}

func (r *JobRepository) CountByStatus(ctx context.Context, campaignID int) (map[string]int, error) {
	q := r.sb.Select("status", "COUNT(*)").
		From("outbound_message_jobs").
		Where(sq.Eq{"campaign_id": campaignID}).
		GroupBy("status")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build job count: %w", err)
	}
	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

var _ JobRepositoryInterface = (*JobRepository)(nil)
