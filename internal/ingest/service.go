// internal/ingest/service.go
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/unclebandit/waleopard-backend/internal/metrics"
	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/phone"
)

// phoneColumnCandidates are matched case-insensitively against sanitized
// header names to find the phone column.
var phoneColumnCandidates = []string{
	"phone", "mobile", "mobile_number", "msisdn", "whatsapp",
	"whatsapp_number", "phone_number", "contact", "contact_number",
	"cell", "number",
}

const insertBufferSize = 500

// BatchStore is the persistence the ingester needs.
type BatchStore interface {
	CreateBatch(ctx context.Context, b *model.Batch) error
	FinishBatch(ctx context.Context, id int, headers []string, rowCount int) error
	FailBatch(ctx context.Context, id int, reason string) error
	InsertRows(ctx context.Context, rows []model.BatchRow) error
}

// Service parses uploaded files into batches of typed rows.
type Service struct {
	Store BatchStore
	Log   *slog.Logger
}

func NewService(store BatchStore, log *slog.Logger) *Service {
	return &Service{Store: store, Log: log}
}

// Request describes one upload.
type Request struct {
	BusinessID int
	FileName   string
	Data       io.Reader
}

// Ingest parses the upload and persists the batch with its rows. Data
// problems never escape as errors: they are recorded on the batch, which
// comes back in status "failed". Only persistence failures return an error.
func (s *Service) Ingest(ctx context.Context, req Request) (*model.Batch, error) {
	batch := &model.Batch{
		BusinessID: req.BusinessID,
		FileName:   req.FileName,
		Status:     model.BatchStatusIngesting,
	}
	if err := s.Store.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return s.fail(ctx, batch, fmt.Sprintf("failed to read upload: %v", err))
	}
	if len(payload) == 0 {
		return s.fail(ctx, batch, "file is empty")
	}

	headers, records, parseErr := parseUpload(req.FileName, payload)
	if parseErr != nil {
		return s.fail(ctx, batch, parseErr.Error())
	}
	if len(headers) == 0 {
		return s.fail(ctx, batch, "no header row detected")
	}

	phoneCol := DetectPhoneColumn(headers)
	if phoneCol < 0 {
		s.Log.Warn("no phone column detected, rows will have no normalized phone",
			slog.Int("batch_id", batch.ID), slog.String("file", req.FileName))
	}

	buffer := make([]model.BatchRow, 0, insertBufferSize)
	total := 0
	for i, record := range records {
		record = padRow(record, len(headers))

		data := make(map[string]string, len(headers))
		for col, name := range headers {
			data[name] = record[col]
		}

		row := model.BatchRow{
			BatchID:  batch.ID,
			RowIndex: i,
			Data:     data,
		}
		if phoneCol >= 0 {
			row.RawPhone = record[phoneCol]
			normalized, err := phone.Normalize(record[phoneCol])
			if err != nil {
				msg := err.Error()
				row.PhoneError = &msg
			} else {
				row.NormalizedPhone = &normalized
			}
		}

		buffer = append(buffer, row)
		total++

		if len(buffer) >= insertBufferSize {
			// Cooperative cancellation between buffered inserts.
			if err := ctx.Err(); err != nil {
				return s.fail(ctx, batch, fmt.Sprintf("ingestion cancelled: %v", err))
			}
			if err := s.Store.InsertRows(ctx, buffer); err != nil {
				return s.fail(ctx, batch, fmt.Sprintf("failed to persist rows: %v", err))
			}
			metrics.RowsIngested.Add(float64(len(buffer)))
			buffer = buffer[:0]
		}
	}
	if len(buffer) > 0 {
		if err := s.Store.InsertRows(ctx, buffer); err != nil {
			return s.fail(ctx, batch, fmt.Sprintf("failed to persist rows: %v", err))
		}
		metrics.RowsIngested.Add(float64(len(buffer)))
	}

	if err := s.Store.FinishBatch(ctx, batch.ID, headers, total); err != nil {
		return nil, fmt.Errorf("finish batch: %w", err)
	}
	batch.Headers = headers
	batch.RowCount = total
	batch.Status = model.BatchStatusReady

	s.Log.Info("batch ingested",
		slog.Int("batch_id", batch.ID),
		slog.Int("rows", total),
		slog.String("file", req.FileName))
	return batch, nil
}

func (s *Service) fail(ctx context.Context, batch *model.Batch, reason string) (*model.Batch, error) {
	if err := s.Store.FailBatch(ctx, batch.ID, reason); err != nil {
		return nil, fmt.Errorf("mark batch failed: %w", err)
	}
	batch.Status = model.BatchStatusFailed
	batch.Error = reason
	s.Log.Warn("batch ingestion failed",
		slog.Int("batch_id", batch.ID), slog.String("reason", reason))
	return batch, nil
}

// parseUpload returns sanitized headers plus data records for either a
// delimited text file or an .xlsx workbook.
func parseUpload(fileName string, payload []byte) ([]string, [][]string, error) {
	if strings.EqualFold(filepath.Ext(fileName), ".xlsx") {
		return parseExcel(payload)
	}
	return parseDelimited(payload)
}

func parseDelimited(payload []byte) ([]string, [][]string, error) {
	lines := SplitLines(payload)
	if len(lines) == 0 {
		return nil, nil, fmt.Errorf("file has no lines")
	}

	delim := DetectDelimiter(lines[0])
	headers := sanitizeHeaders(ParseLine(lines[0], delim))

	records := make([][]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		records = append(records, ParseLine(line, delim))
	}
	return headers, records, nil
}

func parseExcel(payload []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open xlsx: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read xlsx rows: %v", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("xlsx sheet is empty")
	}

	headers := sanitizeHeaders(rows[0])
	records := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		empty := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		records = append(records, row)
	}
	return headers, records, nil
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, 0, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		headers = append(headers, h)
	}
	return headers
}

// DetectPhoneColumn returns the index of the first header matching the
// candidate list, or -1.
func DetectPhoneColumn(headers []string) int {
	for i, h := range headers {
		name := strings.ToLower(strings.TrimSpace(h))
		name = strings.ReplaceAll(name, " ", "_")
		for _, cand := range phoneColumnCandidates {
			if name == cand {
				return i
			}
		}
	}
	return -1
}
