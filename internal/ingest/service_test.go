package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/unclebandit/waleopard-backend/internal/logger"
	"github.com/unclebandit/waleopard-backend/internal/model"
)

// MockBatchStore keeps batches and rows in memory
type MockBatchStore struct {
	batches map[int]*model.Batch
	rows    []model.BatchRow
	nextID  int
}

func NewMockBatchStore() *MockBatchStore {
	return &MockBatchStore{batches: map[int]*model.Batch{}, nextID: 1}
}

func (m *MockBatchStore) CreateBatch(ctx context.Context, b *model.Batch) error {
	b.ID = m.nextID
	m.nextID++
	m.batches[b.ID] = b
	return nil
}

func (m *MockBatchStore) FinishBatch(ctx context.Context, id int, headers []string, rowCount int) error {
	m.batches[id].Status = model.BatchStatusReady
	m.batches[id].Headers = headers
	m.batches[id].RowCount = rowCount
	return nil
}

func (m *MockBatchStore) FailBatch(ctx context.Context, id int, reason string) error {
	m.batches[id].Status = model.BatchStatusFailed
	m.batches[id].Error = reason
	return nil
}

func (m *MockBatchStore) InsertRows(ctx context.Context, rows []model.BatchRow) error {
	m.rows = append(m.rows, rows...)
	return nil
}

func TestIngestCSV(t *testing.T) {
	store := NewMockBatchStore()
	svc := NewService(store, logger.New())

	csv := "name,phone,city\nAlice,+919876543210,Mumbai\nBob,9876543210,Pune\n"
	batch, err := svc.Ingest(context.Background(), Request{
		BusinessID: 1,
		FileName:   "contacts.csv",
		Data:       strings.NewReader(csv),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Status != model.BatchStatusReady {
		t.Fatalf("expected ready, got %s (%s)", batch.Status, batch.Error)
	}
	if batch.RowCount != 2 {
		t.Errorf("expected 2 rows, got %d", batch.RowCount)
	}
	if len(store.rows) != 2 {
		t.Fatalf("expected 2 persisted rows, got %d", len(store.rows))
	}

	alice := store.rows[0]
	if alice.RowIndex != 0 {
		t.Errorf("expected row index 0, got %d", alice.RowIndex)
	}
	if alice.NormalizedPhone == nil || *alice.NormalizedPhone != "+919876543210" {
		t.Errorf("expected normalized phone for Alice, got %+v", alice.NormalizedPhone)
	}
	if alice.Data["city"] != "Mumbai" {
		t.Errorf("expected row data to keep city, got %q", alice.Data["city"])
	}

	// Bob's 10-digit number has no country code: row persists with a phone
	// error, ingestion itself does not fail.
	bob := store.rows[1]
	if bob.NormalizedPhone != nil {
		t.Errorf("expected nil normalized phone for Bob, got %v", *bob.NormalizedPhone)
	}
	if bob.PhoneError == nil {
		t.Error("expected a row-level phone error for Bob")
	}
}

func TestIngestSemicolonDelimited(t *testing.T) {
	store := NewMockBatchStore()
	svc := NewService(store, logger.New())

	data := "name;mobile\nCarol;+14155550134\n"
	batch, err := svc.Ingest(context.Background(), Request{
		BusinessID: 1, FileName: "contacts.txt", Data: strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Status != model.BatchStatusReady {
		t.Fatalf("expected ready, got %s", batch.Status)
	}
	if got := *store.rows[0].NormalizedPhone; got != "+14155550134" {
		t.Errorf("expected +14155550134, got %s", got)
	}
}

func TestIngestNoPhoneColumn(t *testing.T) {
	store := NewMockBatchStore()
	svc := NewService(store, logger.New())

	batch, err := svc.Ingest(context.Background(), Request{
		BusinessID: 1, FileName: "x.csv",
		Data: strings.NewReader("name,city\nAlice,Mumbai\n"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Status != model.BatchStatusReady {
		t.Fatalf("expected ready, got %s", batch.Status)
	}
	if store.rows[0].NormalizedPhone != nil {
		t.Error("expected nil normalized phone when no phone column exists")
	}
}

func TestIngestEmptyFileFailsBatch(t *testing.T) {
	store := NewMockBatchStore()
	svc := NewService(store, logger.New())

	batch, err := svc.Ingest(context.Background(), Request{
		BusinessID: 1, FileName: "empty.csv", Data: strings.NewReader(""),
	})
	if err != nil {
		t.Fatalf("data problems must not escape as errors, got %v", err)
	}
	if batch.Status != model.BatchStatusFailed {
		t.Errorf("expected failed batch, got %s", batch.Status)
	}
	if batch.Error == "" {
		t.Error("expected an error message on the batch")
	}
}

func TestIngestCancelledBetweenBuffers(t *testing.T) {
	store := NewMockBatchStore()
	svc := NewService(store, logger.New())

	var sb strings.Builder
	sb.WriteString("phone\n")
	for i := 0; i < insertBufferSize+10; i++ {
		sb.WriteString("+919876543210\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := svc.Ingest(ctx, Request{
		BusinessID: 1, FileName: "big.csv", Data: strings.NewReader(sb.String()),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Status != model.BatchStatusFailed {
		t.Errorf("expected cancelled ingestion to fail the batch, got %s", batch.Status)
	}
}
