// internal/model/batch.go
package model

import "time"

const (
	BatchStatusIngesting = "ingesting"
	BatchStatusReady     = "ready"
	BatchStatusFailed    = "failed"
)

// Batch is one uploaded contact file. Immutable once ready.
type Batch struct {
	ID         int       `db:"id" json:"id"`
	BusinessID int       `db:"business_id" json:"business_id"`
	FileName   string    `db:"file_name" json:"file_name"`
	Headers    []string  `db:"headers" json:"headers"`
	RowCount   int       `db:"row_count" json:"row_count"`
	Status     string    `db:"status" json:"status"`
	Error      string    `db:"error" json:"error,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// BatchRow is one parsed line of a batch. Read-only after ingestion.
type BatchRow struct {
	ID              int               `db:"id" json:"id"`
	BatchID         int               `db:"batch_id" json:"batch_id"`
	RowIndex        int               `db:"row_index" json:"row_index"`
	RawPhone        string            `db:"raw_phone" json:"raw_phone"`
	NormalizedPhone *string           `db:"normalized_phone" json:"normalized_phone,omitempty"`
	PhoneError      *string           `db:"phone_error" json:"phone_error,omitempty"`
	Data            map[string]string `db:"data" json:"data"`
}
