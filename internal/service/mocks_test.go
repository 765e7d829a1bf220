package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/repository"
)

// Mock repositories

type MockBatchRepo struct {
	Batches map[int]*model.Batch
	Rows    map[int][]model.BatchRow
}

func (m *MockBatchRepo) CreateBatch(ctx context.Context, b *model.Batch) error {
	if m.Batches == nil {
		m.Batches = map[int]*model.Batch{}
	}
	b.ID = len(m.Batches) + 1
	m.Batches[b.ID] = b
	return nil
}

func (m *MockBatchRepo) FinishBatch(ctx context.Context, id int, headers []string, rowCount int) error {
	b := m.Batches[id]
	b.Headers = headers
	b.RowCount = rowCount
	b.Status = model.BatchStatusReady
	return nil
}

func (m *MockBatchRepo) FailBatch(ctx context.Context, id int, reason string) error {
	b := m.Batches[id]
	b.Status = model.BatchStatusFailed
	b.Error = reason
	return nil
}

func (m *MockBatchRepo) InsertRows(ctx context.Context, rows []model.BatchRow) error {
	if m.Rows == nil {
		m.Rows = map[int][]model.BatchRow{}
	}
	for _, row := range rows {
		m.Rows[row.BatchID] = append(m.Rows[row.BatchID], row)
	}
	return nil
}

func (m *MockBatchRepo) GetByID(ctx context.Context, id int) (*model.Batch, error) {
	b, ok := m.Batches[id]
	if !ok {
		return nil, appErrors.NewBatchNotFound(id)
	}
	return b, nil
}

func (m *MockBatchRepo) ListRows(ctx context.Context, batchID, limit int) ([]model.BatchRow, error) {
	rows := m.Rows[batchID]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

type MockTemplateRepo struct {
	Templates map[int]*model.MessageTemplate
}

func (m *MockTemplateRepo) GetByID(ctx context.Context, id int) (*model.MessageTemplate, error) {
	t, ok := m.Templates[id]
	if !ok {
		return nil, appErrors.NewTemplateNotFound(fmt.Sprintf("%d", id))
	}
	return t, nil
}

func (m *MockTemplateRepo) Resolve(ctx context.Context, businessID int, ref string) (*model.MessageTemplate, error) {
	for _, t := range m.Templates {
		if fmt.Sprintf("%d", t.ID) == ref || t.Name == ref {
			return t, nil
		}
	}
	return nil, appErrors.NewTemplateNotFound(ref)
}

type MockContactRepo struct {
	Contacts map[string]model.Contact
}

func (m *MockContactRepo) GetByPhones(ctx context.Context, businessID int, phones []string) (map[string]model.Contact, error) {
	out := map[string]model.Contact{}
	for _, p := range phones {
		if c, ok := m.Contacts[p]; ok {
			out[p] = c
		}
	}
	return out, nil
}

type MockCampaignRepo struct {
	Campaigns     map[int]*model.Campaign
	StatusUpdates []string
}

func (m *MockCampaignRepo) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	c, ok := m.Campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (m *MockCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	if m.Campaigns == nil {
		m.Campaigns = map[int]*model.Campaign{}
	}
	c.ID = len(m.Campaigns) + 1
	m.Campaigns[c.ID] = c
	return nil
}

func (m *MockCampaignRepo) UpdateStatus(ctx context.Context, campaignID int, status string) error {
	m.Campaigns[campaignID].Status = status
	m.StatusUpdates = append(m.StatusUpdates, status)
	return nil
}

func (m *MockCampaignRepo) MarkSendingIfNot(ctx context.Context, campaignID int) (string, error) {
	c := m.Campaigns[campaignID]
	if c.Status != model.CampaignStatusSending && c.Status != model.CampaignStatusSent {
		c.Status = model.CampaignStatusSending
	}
	return c.Status, nil
}

func (m *MockCampaignRepo) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	return []*model.Campaign{}, 0, nil
}

func (m *MockCampaignRepo) GetRecipientStats(ctx context.Context, campaignID int) (map[string]int, error) {
	return map[string]int{}, nil
}

type MockAudienceRepo struct {
	LastSpec *repository.ReplaceSpec
	Removed  int
	Trail    []model.CampaignAudienceAttachment
}

func (m *MockAudienceRepo) Replace(ctx context.Context, spec repository.ReplaceSpec) (*repository.ReplaceResult, error) {
	m.LastSpec = &spec
	return &repository.ReplaceResult{
		AttachmentID:      len(m.Trail) + 1,
		AudienceID:        len(m.Trail) + 1,
		DeletedRecipients: 0,
		InsertedMembers:   len(spec.Members),
	}, nil
}

func (m *MockAudienceRepo) Remove(ctx context.Context, campaignID int, actor string) (int, error) {
	m.Removed++
	return 3, nil
}

func (m *MockAudienceRepo) ActiveAttachment(ctx context.Context, campaignID int) (*model.CampaignAudienceAttachment, error) {
	return nil, nil
}

func (m *MockAudienceRepo) History(ctx context.Context, campaignID int) ([]model.CampaignAudienceAttachment, error) {
	return m.Trail, nil
}

type MockRecipientRepo struct {
	Pending []model.CampaignRecipient
	Manual  []model.CampaignRecipient
	Failed  map[int]string
}

func (m *MockRecipientRepo) ListPending(ctx context.Context, campaignID int) ([]model.CampaignRecipient, error) {
	return m.Pending, nil
}

func (m *MockRecipientRepo) ListManual(ctx context.Context, campaignID int) ([]model.CampaignRecipient, error) {
	return m.Manual, nil
}

func (m *MockRecipientRepo) GetByID(ctx context.Context, id int) (*model.CampaignRecipient, error) {
	for i := range m.Pending {
		if m.Pending[i].ID == id {
			return &m.Pending[i], nil
		}
	}
	return nil, nil
}

func (m *MockRecipientRepo) MarkSent(ctx context.Context, id int) error { return nil }

func (m *MockRecipientRepo) MarkFailed(ctx context.Context, id int, reason string) error {
	if m.Failed == nil {
		m.Failed = map[int]string{}
	}
	m.Failed[id] = reason
	return nil
}

func (m *MockRecipientRepo) InsertManual(ctx context.Context, rec *model.CampaignRecipient) error {
	rec.ID = len(m.Manual) + 1
	m.Manual = append(m.Manual, *rec)
	return nil
}

type MockSendLogRepo struct {
	mu      sync.Mutex
	Entries []model.CampaignSendLog
	Count   int
}

func (m *MockSendLogRepo) Insert(ctx context.Context, entry *model.CampaignSendLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = len(m.Entries) + 1
	entry.CreatedAt = time.Now()
	m.Entries = append(m.Entries, *entry)
	return nil
}

func (m *MockSendLogRepo) CountByCampaign(ctx context.Context, campaignID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Count + len(m.Entries), nil
}

type MockJobRepo struct {
	Jobs []model.OutboundMessageJob
}

func (m *MockJobRepo) InsertJobs(ctx context.Context, jobs []model.OutboundMessageJob) (int, error) {
	for i := range jobs {
		jobs[i].ID = len(m.Jobs) + 1
		jobs[i].Status = model.JobStatusPending
		m.Jobs = append(m.Jobs, jobs[i])
	}
	return len(jobs), nil
}

func (m *MockJobRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.OutboundMessageJob, error) {
	return nil, nil
}

func (m *MockJobRepo) Complete(ctx context.Context, jobID int) error { return nil }

func (m *MockJobRepo) Fail(ctx context.Context, jobID int, errMsg string, backoffBase time.Duration) (string, error) {
	return model.JobStatusPending, nil
}

func (m *MockJobRepo) GetByID(ctx context.Context, jobID int) (*model.OutboundMessageJob, error) {
	return nil, nil
}

func (m *MockJobRepo) CountByStatus(ctx context.Context, campaignID int) (map[string]int, error) {
	return map[string]int{}, nil
}

// Interface checks
var (
	_ repository.BatchRepositoryInterface     = (*MockBatchRepo)(nil)
	_ repository.TemplateRepositoryInterface  = (*MockTemplateRepo)(nil)
	_ repository.ContactRepositoryInterface   = (*MockContactRepo)(nil)
	_ repository.CampaignRepositoryInterface  = (*MockCampaignRepo)(nil)
	_ repository.AudienceRepositoryInterface  = (*MockAudienceRepo)(nil)
	_ repository.RecipientRepositoryInterface = (*MockRecipientRepo)(nil)
	_ repository.SendLogRepositoryInterface   = (*MockSendLogRepo)(nil)
	_ repository.JobRepositoryInterface       = (*MockJobRepo)(nil)
)
