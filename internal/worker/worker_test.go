package worker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/provider"
	"github.com/unclebandit/waleopard-backend/internal/repository"
	"github.com/unclebandit/waleopard-backend/internal/worker"
)

// MockJobStore mirrors the database claim/fail semantics in memory.
type MockJobStore struct {
	mu   sync.Mutex
	Jobs map[int]*model.OutboundMessageJob
}

func (m *MockJobStore) InsertJobs(ctx context.Context, jobs []model.OutboundMessageJob) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range jobs {
		j := jobs[i]
		j.ID = len(m.Jobs) + 1
		j.Status = model.JobStatusPending
		m.Jobs[j.ID] = &j
	}
	return len(jobs), nil
}

func (m *MockJobStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.OutboundMessageJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []model.OutboundMessageJob
	for _, j := range m.Jobs {
		if len(claimed) >= limit {
			break
		}
		if j.Status == model.JobStatusPending && !j.NextAttemptAt.After(now) {
			j.Status = model.JobStatusRunning
			claimed = append(claimed, *j)
		}
	}
	return claimed, nil
}

func (m *MockJobStore) Complete(ctx context.Context, jobID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.Jobs[jobID]
	if j.Status != model.JobStatusRunning {
		return fmt.Errorf("job %d is not running", jobID)
	}
	j.Status = model.JobStatusSucceeded
	j.Attempts++
	return nil
}

func (m *MockJobStore) Fail(ctx context.Context, jobID int, errMsg string, backoffBase time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.Jobs[jobID]
	if j.Status != model.JobStatusRunning {
		return "", fmt.Errorf("job %d is not running", jobID)
	}
	j.Attempts++
	j.LastError = &errMsg
	if j.Attempts >= j.MaxAttempts {
		j.Status = model.JobStatusFailed
	} else {
		j.Status = model.JobStatusPending
		j.NextAttemptAt = time.Now().Add(backoffBase << j.Attempts)
	}
	return j.Status, nil
}

func (m *MockJobStore) GetByID(ctx context.Context, jobID int) (*model.OutboundMessageJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Jobs[jobID], nil
}

func (m *MockJobStore) CountByStatus(ctx context.Context, campaignID int) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, j := range m.Jobs {
		if j.CampaignID == campaignID {
			counts[j.Status]++
		}
	}
	return counts, nil
}

type MockCampaignStore struct {
	mu        sync.Mutex
	Campaigns map[int]*model.Campaign
}

func (m *MockCampaignStore) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	copied := *c
	return &copied, nil
}

func (m *MockCampaignStore) Create(ctx context.Context, c *model.Campaign) error { return nil }

func (m *MockCampaignStore) UpdateStatus(ctx context.Context, campaignID int, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Campaigns[campaignID].Status = status
	return nil
}

func (m *MockCampaignStore) MarkSendingIfNot(ctx context.Context, campaignID int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.Campaigns[campaignID]
	switch c.Status {
	case model.CampaignStatusSending, model.CampaignStatusSent, model.CampaignStatusFailed:
	default:
		c.Status = model.CampaignStatusSending
	}
	return c.Status, nil
}

func (m *MockCampaignStore) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	return nil, 0, nil
}

func (m *MockCampaignStore) GetRecipientStats(ctx context.Context, campaignID int) (map[string]int, error) {
	return map[string]int{}, nil
}

type MockRecipientStore struct {
	mu         sync.Mutex
	Recipients map[int]*model.CampaignRecipient
	Sent       []int
	Failed     map[int]string
}

func (m *MockRecipientStore) ListPending(ctx context.Context, campaignID int) ([]model.CampaignRecipient, error) {
	return nil, nil
}

func (m *MockRecipientStore) ListManual(ctx context.Context, campaignID int) ([]model.CampaignRecipient, error) {
	return nil, nil
}

func (m *MockRecipientStore) GetByID(ctx context.Context, id int) (*model.CampaignRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Recipients[id], nil
}

func (m *MockRecipientStore) MarkSent(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Recipients[id].Status = model.RecipientStatusSent
	m.Sent = append(m.Sent, id)
	return nil
}

func (m *MockRecipientStore) MarkFailed(ctx context.Context, id int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failed == nil {
		m.Failed = map[int]string{}
	}
	m.Recipients[id].Status = model.RecipientStatusFailed
	m.Failed[id] = reason
	return nil
}

func (m *MockRecipientStore) InsertManual(ctx context.Context, rec *model.CampaignRecipient) error {
	return nil
}

type MockTemplateStore struct {
	Template *model.MessageTemplate
}

func (m *MockTemplateStore) GetByID(ctx context.Context, id int) (*model.MessageTemplate, error) {
	return m.Template, nil
}

func (m *MockTemplateStore) Resolve(ctx context.Context, businessID int, ref string) (*model.MessageTemplate, error) {
	return m.Template, nil
}

type MockSettingsStore struct{}

func (m *MockSettingsStore) GetByBusinessID(ctx context.Context, businessID int) (*model.BusinessSettings, error) {
	return &model.BusinessSettings{BusinessID: businessID, Provider: model.ProviderMeta, SenderID: "15550001111"}, nil
}

type MockLinkStore struct {
	mu      sync.Mutex
	Links   []model.TrackedLink
	byToken map[string]bool
}

// InsertLinks drops token conflicts, like the database insert does.
func (m *MockLinkStore) InsertLinks(ctx context.Context, links []model.TrackedLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byToken == nil {
		m.byToken = map[string]bool{}
	}
	for _, l := range links {
		if m.byToken[l.Token] {
			continue
		}
		m.byToken[l.Token] = true
		m.Links = append(m.Links, l)
	}
	return nil
}

func (m *MockLinkStore) Resolve(ctx context.Context, token string) (string, error) {
	return "", fmt.Errorf("unknown token")
}

type MockSendLogStore struct {
	mu      sync.Mutex
	Entries []model.CampaignSendLog
}

func (m *MockSendLogStore) Insert(ctx context.Context, entry *model.CampaignSendLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, *entry)
	return nil
}

func (m *MockSendLogStore) CountByCampaign(ctx context.Context, campaignID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries), nil
}

// ScriptedSender returns canned results and records concurrency.
type ScriptedSender struct {
	mu          sync.Mutex
	Fail        bool
	Calls       int
	inFlight    int
	MaxInFlight int
}

func (s *ScriptedSender) Send(ctx context.Context, req provider.SendRequest) provider.SendResult {
	s.mu.Lock()
	s.Calls++
	s.inFlight++
	if s.inFlight > s.MaxInFlight {
		s.MaxInFlight = s.inFlight
	}
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()

	if s.Fail {
		return provider.SendResult{ErrorMessage: "provider returned HTTP 500"}
	}
	return provider.SendResult{Success: true, ProviderMessageID: "wamid.test", RawResponse: "{}"}
}

var (
	_ repository.JobRepositoryInterface       = (*MockJobStore)(nil)
	_ repository.CampaignRepositoryInterface  = (*MockCampaignStore)(nil)
	_ repository.RecipientRepositoryInterface = (*MockRecipientStore)(nil)
	_ repository.TemplateRepositoryInterface  = (*MockTemplateStore)(nil)
	_ repository.SettingsRepositoryInterface  = (*MockSettingsStore)(nil)
	_ repository.LinkRepositoryInterface      = (*MockLinkStore)(nil)
	_ repository.SendLogRepositoryInterface   = (*MockSendLogStore)(nil)
	_ provider.Sender                         = (*ScriptedSender)(nil)
)

func intPtr(n int) *int { return &n }

func testFixture(sender provider.Sender, jobCount, maxAttempts int) (*worker.Worker, *MockJobStore, *MockCampaignStore, *MockRecipientStore, *MockSendLogStore) {
	params, _ := json.Marshal(model.JobParams{BodyParams: []string{"Asha", "ORD-1"}})

	jobs := &MockJobStore{Jobs: map[int]*model.OutboundMessageJob{}}
	recipients := &MockRecipientStore{Recipients: map[int]*model.CampaignRecipient{}}
	for i := 1; i <= jobCount; i++ {
		jobs.Jobs[i] = &model.OutboundMessageJob{
			ID: i, CampaignID: 1, RecipientID: i,
			Provider: model.ProviderMeta, TemplateName: "order_update", TemplateLanguage: "en",
			Params: params, Status: model.JobStatusPending,
			MaxAttempts: maxAttempts, NextAttemptAt: time.Now().Add(-time.Second),
		}
		recipients.Recipients[i] = &model.CampaignRecipient{
			ID: i, CampaignID: 1, Phone: fmt.Sprintf("+9198765432%02d", i),
			Status: model.RecipientStatusPending,
		}
	}

	campaigns := &MockCampaignStore{Campaigns: map[int]*model.Campaign{
		1: {ID: 1, BusinessID: 1, Status: model.CampaignStatusScheduled, TemplateID: intPtr(7)},
	}}
	sendLogs := &MockSendLogStore{}

	w := &worker.Worker{
		Jobs:       jobs,
		Campaigns:  campaigns,
		Recipients: recipients,
		Templates: &MockTemplateStore{Template: &model.MessageTemplate{
			ID: 7, Name: "order_update", Language: "en",
			ParamFormat: model.ParamFormatPositional, BodyParamCount: 2,
			HeaderKind: model.HeaderKindNone,
		}},
		Settings:       &MockSettingsStore{},
		Links:          &MockLinkStore{},
		SendLogs:       sendLogs,
		Sender:         sender,
		BatchSize:      50,
		Concurrency:    5,
		BackoffBase:    time.Millisecond,
		TrackerBaseURL: "http://localhost:8080",
		Log:            slog.New(slog.DiscardHandler),
	}
	return w, jobs, campaigns, recipients, sendLogs
}

func TestSweepSendsAndSettles(t *testing.T) {
	sender := &ScriptedSender{}
	w, jobs, campaigns, recipients, sendLogs := testFixture(sender, 1, 5)

	if n := w.Sweep(context.Background()); n != 1 {
		t.Fatalf("claimed %d jobs", n)
	}

	job := jobs.Jobs[1]
	if job.Status != model.JobStatusSucceeded || job.Attempts != 1 {
		t.Errorf("job = %+v", job)
	}
	if recipients.Recipients[1].Status != model.RecipientStatusSent {
		t.Errorf("recipient status = %q", recipients.Recipients[1].Status)
	}
	if campaigns.Campaigns[1].Status != model.CampaignStatusSent {
		t.Errorf("campaign status = %q, want sent once all jobs settle", campaigns.Campaigns[1].Status)
	}
	if len(sendLogs.Entries) != 1 || !sendLogs.Entries[0].Success {
		t.Fatalf("send logs = %+v", sendLogs.Entries)
	}
	if sendLogs.Entries[0].ProviderMessageID != "wamid.test" {
		t.Errorf("provider message id = %q", sendLogs.Entries[0].ProviderMessageID)
	}
}

func TestRetriesStopAtMaxAttempts(t *testing.T) {
	sender := &ScriptedSender{Fail: true}
	w, jobs, campaigns, recipients, sendLogs := testFixture(sender, 1, 5)

	// Sweep until the job is no longer reclaimable. Backoff is a millisecond
	// in this fixture, so a short sleep between sweeps is enough.
	for i := 0; i < 20; i++ {
		w.Sweep(context.Background())
		time.Sleep(10 * time.Millisecond)
	}

	job := jobs.Jobs[1]
	if job.Status != model.JobStatusFailed {
		t.Fatalf("job status = %q, want terminal failure", job.Status)
	}
	if job.Attempts != 5 {
		t.Errorf("attempts = %d, want exactly max attempts", job.Attempts)
	}
	if sender.Calls != 5 {
		t.Errorf("sender calls = %d, want 5", sender.Calls)
	}
	if len(sendLogs.Entries) != 5 {
		t.Errorf("send log entries = %d, want one per attempt", len(sendLogs.Entries))
	}
	if recipients.Recipients[1].Status != model.RecipientStatusFailed {
		t.Errorf("recipient status = %q", recipients.Recipients[1].Status)
	}
	if campaigns.Campaigns[1].Status != model.CampaignStatusFailed {
		t.Errorf("campaign status = %q", campaigns.Campaigns[1].Status)
	}

	// A terminally failed job must never be claimed again.
	if n := w.Sweep(context.Background()); n != 0 {
		t.Errorf("claimed %d jobs after terminal failure", n)
	}
}

func TestTerminalFailureOutlivesLaterSuccess(t *testing.T) {
	sender := &ScriptedSender{Fail: true}
	w, jobs, campaigns, recipients, _ := testFixture(sender, 2, 1)
	jobs.Jobs[2].NextAttemptAt = time.Now().Add(time.Hour)

	// First sweep only sees job 1, which fails terminally.
	if n := w.Sweep(context.Background()); n != 1 {
		t.Fatalf("claimed %d jobs in first sweep", n)
	}
	if campaigns.Campaigns[1].Status != model.CampaignStatusFailed {
		t.Fatalf("campaign status = %q after terminal failure", campaigns.Campaigns[1].Status)
	}

	// Job 2 still goes out and succeeds, but the campaign's failed status
	// must not be clobbered back to sending on its way through.
	sender.Fail = false
	jobs.Jobs[2].NextAttemptAt = time.Now().Add(-time.Second)
	if n := w.Sweep(context.Background()); n != 1 {
		t.Fatalf("claimed %d jobs in second sweep", n)
	}

	if jobs.Jobs[2].Status != model.JobStatusSucceeded {
		t.Errorf("job 2 status = %q", jobs.Jobs[2].Status)
	}
	if recipients.Recipients[2].Status != model.RecipientStatusSent {
		t.Errorf("recipient 2 status = %q", recipients.Recipients[2].Status)
	}
	if campaigns.Campaigns[1].Status != model.CampaignStatusFailed {
		t.Errorf("campaign status = %q, want failed to stick once any job failed terminally",
			campaigns.Campaigns[1].Status)
	}
}

func TestRetriesReuseTrackedLink(t *testing.T) {
	sender := &ScriptedSender{Fail: true}
	w, jobs, campaigns, _, _ := testFixture(sender, 1, 3)

	links := &MockLinkStore{}
	w.Links = links
	w.Templates = &MockTemplateStore{Template: &model.MessageTemplate{
		ID: 7, Name: "order_update", Language: "en",
		ParamFormat: model.ParamFormatPositional, BodyParamCount: 2,
		HeaderKind: model.HeaderKindNone,
		Buttons:    []model.TemplateButton{{Type: "url", Text: "Track", Value: "{{1}}"}},
	}}
	campaigns.Campaigns[1].Buttons = []model.CampaignButton{
		{Type: "url", Value: "https://shop.example.com/track/{{2}}"},
	}

	for i := 0; i < 20; i++ {
		w.Sweep(context.Background())
		time.Sleep(10 * time.Millisecond)
	}

	if jobs.Jobs[1].Status != model.JobStatusFailed {
		t.Fatalf("job status = %q, want terminal failure", jobs.Jobs[1].Status)
	}
	if sender.Calls != 3 {
		t.Errorf("sender calls = %d, want 3", sender.Calls)
	}
	if len(links.Links) != 1 {
		t.Errorf("tracked links = %d, want one reused across attempts", len(links.Links))
	}
}

func TestSweepBoundsConcurrency(t *testing.T) {
	sender := &ScriptedSender{}
	w, _, _, _, _ := testFixture(sender, 20, 5)
	w.Concurrency = 3

	if n := w.Sweep(context.Background()); n != 20 {
		t.Fatalf("claimed %d jobs", n)
	}
	if sender.Calls != 20 {
		t.Errorf("sender calls = %d", sender.Calls)
	}
	if sender.MaxInFlight > 3 {
		t.Errorf("max in-flight sends = %d, want at most 3", sender.MaxInFlight)
	}
}
