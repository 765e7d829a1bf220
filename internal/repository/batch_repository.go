// internal/repository/batch_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/model"
)

type BatchRepositoryInterface interface {
	CreateBatch(ctx context.Context, b *model.Batch) error
	FinishBatch(ctx context.Context, id int, headers []string, rowCount int) error
	FailBatch(ctx context.Context, id int, reason string) error
	InsertRows(ctx context.Context, rows []model.BatchRow) error
	GetByID(ctx context.Context, id int) (*model.Batch, error)
	ListRows(ctx context.Context, batchID, limit int) ([]model.BatchRow, error)
}

type BatchRepository struct {
	DB *sql.DB
}

func (r *BatchRepository) CreateBatch(ctx context.Context, b *model.Batch) error {
	query := `
        INSERT INTO batches (business_id, file_name, headers, row_count, status, error, created_at)
        VALUES ($1, $2, '[]', 0, $3, '', NOW())
        RETURNING id, created_at
    `
	return r.DB.QueryRowContext(ctx, query, b.BusinessID, b.FileName, b.Status).
		Scan(&b.ID, &b.CreatedAt)
}

func (r *BatchRepository) FinishBatch(ctx context.Context, id int, headers []string, rowCount int) error {
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return err
	}
	query := `UPDATE batches SET status=$1, headers=$2, row_count=$3 WHERE id=$4`
	_, err = r.DB.ExecContext(ctx, query, model.BatchStatusReady, headersJSON, rowCount, id)
	return err
}

func (r *BatchRepository) FailBatch(ctx context.Context, id int, reason string) error {
	query := `UPDATE batches SET status=$1, error=$2 WHERE id=$3`
	_, err := r.DB.ExecContext(ctx, query, model.BatchStatusFailed, reason, id)
	return err
}

// InsertRows inserts a buffered chunk of rows with one multi-value statement.
func (r *BatchRepository) InsertRows(ctx context.Context, rows []model.BatchRow) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*6)
	for i, row := range rows {
		dataJSON, err := json.Marshal(row.Data)
		if err != nil {
			return fmt.Errorf("marshal row %d data: %w", row.RowIndex, err)
		}
		base := i * 6
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, row.BatchID, row.RowIndex, row.RawPhone,
			row.NormalizedPhone, row.PhoneError, dataJSON)
	}

	query := `
        INSERT INTO batch_rows (batch_id, row_index, raw_phone, normalized_phone, phone_error, data)
        VALUES ` + strings.Join(values, ", ")
	_, err := r.DB.ExecContext(ctx, query, args...)
	return err
}

func (r *BatchRepository) GetByID(ctx context.Context, id int) (*model.Batch, error) {
	query := `
        SELECT id, business_id, file_name, headers, row_count, status, error, created_at
        FROM batches WHERE id=$1
    `
	var b model.Batch
	var headersJSON []byte
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.BusinessID, &b.FileName, &headersJSON,
		&b.RowCount, &b.Status, &b.Error, &b.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewBatchNotFound(id)
		}
		return nil, err
	}
	if err := json.Unmarshal(headersJSON, &b.Headers); err != nil {
		return nil, fmt.Errorf("decode batch headers: %w", err)
	}
	return &b, nil
}

// ListRows returns the batch rows in upload order. limit <= 0 means all.
func (r *BatchRepository) ListRows(ctx context.Context, batchID, limit int) ([]model.BatchRow, error) {
	query := `
        SELECT id, batch_id, row_index, raw_phone, normalized_phone, phone_error, data
        FROM batch_rows
        WHERE batch_id=$1
        ORDER BY row_index ASC
    `
	args := []interface{}{batchID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.BatchRow{}
	for rows.Next() {
		var row model.BatchRow
		var dataJSON []byte
		if err := rows.Scan(&row.ID, &row.BatchID, &row.RowIndex, &row.RawPhone,
			&row.NormalizedPhone, &row.PhoneError, &dataJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(dataJSON, &row.Data); err != nil {
			return nil, fmt.Errorf("decode row %d data: %w", row.RowIndex, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var _ BatchRepositoryInterface = (*BatchRepository)(nil)
