// internal/worker/worker.go
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/unclebandit/waleopard-backend/internal/metrics"
	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/provider"
	"github.com/unclebandit/waleopard-backend/internal/repository"
	"github.com/unclebandit/waleopard-backend/internal/template"
)

// Worker sweeps due outbound jobs and sends them with bounded concurrency.
// The database rows are the source of truth; the wake channel only shortens
// the wait between a dispatch and the next sweep.
type Worker struct {
	Jobs       repository.JobRepositoryInterface
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Templates  repository.TemplateRepositoryInterface
	Settings   repository.SettingsRepositoryInterface
	Links      repository.LinkRepositoryInterface
	SendLogs   repository.SendLogRepositoryInterface
	Sender     provider.Sender

	Wake           <-chan struct{}
	PollInterval   time.Duration
	BatchSize      int
	Concurrency    int
	BackoffBase    time.Duration
	TrackerBaseURL string

	Log *slog.Logger
}

// Run loops until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.Log.Info("send worker running", slog.Duration("poll_interval", interval))
	for {
		select {
		case <-ctx.Done():
			w.Log.Info("send worker stopping")
			return
		case <-ticker.C:
		case <-w.Wake:
		}
		if n := w.Sweep(ctx); n > 0 {
			w.Log.Info("sweep complete", slog.Int("jobs", n))
		}
	}
}

// Sweep claims one batch of due jobs and processes them. Returns how many
// jobs were claimed.
func (w *Worker) Sweep(ctx context.Context) int {
	batchSize := w.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	jobs, err := w.Jobs.ClaimDue(ctx, time.Now(), batchSize)
	if err != nil {
		w.Log.Error("claim due jobs", slog.String("error", err.Error()))
		return 0
	}
	if len(jobs) == 0 {
		return 0
	}
	metrics.JobsClaimed.Add(float64(len(jobs)))

	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i := range jobs {
		job := jobs[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(ctx, &job)
		}()
	}
	wg.Wait()
	return len(jobs)
}

// process runs one claimed job end to end: build the payload from the frozen
// snapshot, send, log the attempt and settle the job.
func (w *Worker) process(ctx context.Context, job *model.OutboundMessageJob) {
	if _, err := w.Campaigns.MarkSendingIfNot(ctx, job.CampaignID); err != nil {
		w.settleFailure(ctx, job, nil, fmt.Sprintf("flip campaign to sending: %v", err), "")
		return
	}

	recipient, err := w.Recipients.GetByID(ctx, job.RecipientID)
	if err != nil || recipient == nil {
		w.settleFailure(ctx, job, nil, fmt.Sprintf("load recipient %d: %v", job.RecipientID, err), "")
		return
	}

	campaign, err := w.Campaigns.GetByID(ctx, job.CampaignID)
	if err != nil {
		w.settleFailure(ctx, job, recipient, fmt.Sprintf("load campaign: %v", err), "")
		return
	}
	if campaign.TemplateID == nil {
		w.settleFailure(ctx, job, recipient, "campaign template is gone", "")
		return
	}
	tmpl, err := w.Templates.GetByID(ctx, *campaign.TemplateID)
	if err != nil {
		w.settleFailure(ctx, job, recipient, fmt.Sprintf("load template: %v", err), "")
		return
	}

	settings, err := w.Settings.GetByBusinessID(ctx, campaign.BusinessID)
	if err != nil {
		w.settleFailure(ctx, job, recipient, fmt.Sprintf("load provider settings: %v", err), "")
		return
	}

	params, err := job.DecodeParams()
	if err != nil {
		w.settleFailure(ctx, job, recipient, fmt.Sprintf("decode job params: %v", err), "")
		return
	}

	built, err := template.Build(template.BuildRequest{
		Provider:        job.Provider,
		CampaignID:      job.CampaignID,
		RecipientID:     job.RecipientID,
		Phone:           recipient.Phone,
		BodyParams:      params.BodyParams,
		ButtonParams:    params.ButtonParams,
		Template:        tmpl,
		CampaignButtons: campaign.Buttons,
		HeaderMediaURL:  params.HeaderURL,
		SenderID:        settings.SenderID,
		TrackerBaseURL:  w.TrackerBaseURL,
	})
	if err != nil {
		w.settleFailure(ctx, job, recipient, err.Error(), "")
		return
	}

	if len(built.Links) > 0 {
		links := make([]model.TrackedLink, 0, len(built.Links))
		recID := recipient.ID
		for _, l := range built.Links {
			links = append(links, model.TrackedLink{
				Token:       l.Token,
				CampaignID:  job.CampaignID,
				RecipientID: &recID,
				Destination: l.Destination,
			})
		}
		if err := w.Links.InsertLinks(ctx, links); err != nil {
			w.settleFailure(ctx, job, recipient, fmt.Sprintf("persist tracked links: %v", err), "")
			return
		}
	}

	start := time.Now()
	res := w.Sender.Send(ctx, provider.SendRequest{
		Provider: job.Provider,
		SenderID: settings.SenderID,
		To:       recipient.Phone,
		Payload:  built.Body,
	})
	metrics.SendDuration.Observe(time.Since(start).Seconds())

	if !res.Success {
		metrics.Sends.WithLabelValues(job.Provider, "failure").Inc()
		w.settleFailure(ctx, job, recipient, res.ErrorMessage, res.RawResponse)
		return
	}
	metrics.Sends.WithLabelValues(job.Provider, "success").Inc()
	w.settleSuccess(ctx, job, recipient, res)
}

func (w *Worker) settleSuccess(ctx context.Context, job *model.OutboundMessageJob, recipient *model.CampaignRecipient, res provider.SendResult) {
	if err := w.Jobs.Complete(ctx, job.ID); err != nil {
		w.Log.Error("complete job", slog.Int("job_id", job.ID), slog.String("error", err.Error()))
		return
	}
	if err := w.Recipients.MarkSent(ctx, recipient.ID); err != nil {
		w.Log.Error("mark recipient sent",
			slog.Int("recipient_id", recipient.ID), slog.String("error", err.Error()))
	}
	w.logAttempt(ctx, job, recipient, true, res.ProviderMessageID, "", res.RawResponse)
	w.maybeFinishCampaign(ctx, job.CampaignID)

	w.Log.Info("message sent",
		slog.Int("job_id", job.ID),
		slog.Int("campaign_id", job.CampaignID),
		slog.String("provider", job.Provider),
		slog.String("provider_message_id", res.ProviderMessageID))
}

// settleFailure records the attempt and either reschedules the job with
// backoff or, once attempts are exhausted, marks the job, the recipient and
// the campaign failed.
func (w *Worker) settleFailure(ctx context.Context, job *model.OutboundMessageJob, recipient *model.CampaignRecipient, reason, rawResponse string) {
	status, err := w.Jobs.Fail(ctx, job.ID, reason, w.BackoffBase)
	if err != nil {
		w.Log.Error("fail job", slog.Int("job_id", job.ID), slog.String("error", err.Error()))
		return
	}
	w.logAttempt(ctx, job, recipient, false, "", reason, rawResponse)

	if status != model.JobStatusFailed {
		w.Log.Warn("send attempt failed, job rescheduled",
			slog.Int("job_id", job.ID),
			slog.Int("campaign_id", job.CampaignID),
			slog.String("reason", reason))
		return
	}

	if recipient != nil {
		if err := w.Recipients.MarkFailed(ctx, recipient.ID, reason); err != nil {
			w.Log.Error("mark recipient failed",
				slog.Int("recipient_id", recipient.ID), slog.String("error", err.Error()))
		}
	}
	if err := w.Campaigns.UpdateStatus(ctx, job.CampaignID, model.CampaignStatusFailed); err != nil {
		w.Log.Error("mark campaign failed",
			slog.Int("campaign_id", job.CampaignID), slog.String("error", err.Error()))
	}
	w.Log.Error("job permanently failed",
		slog.Int("job_id", job.ID),
		slog.Int("campaign_id", job.CampaignID),
		slog.String("reason", reason))
}

func (w *Worker) logAttempt(ctx context.Context, job *model.OutboundMessageJob, recipient *model.CampaignRecipient, success bool, providerMessageID, errMsg, rawResponse string) {
	entry := &model.CampaignSendLog{
		CampaignID:        job.CampaignID,
		Success:           success,
		ProviderMessageID: providerMessageID,
		Error:             errMsg,
		RawResponse:       rawResponse,
	}
	jobID := job.ID
	entry.JobID = &jobID
	if recipient != nil {
		recID := recipient.ID
		entry.RecipientID = &recID
	}
	if err := w.SendLogs.Insert(ctx, entry); err != nil {
		w.Log.Error("insert send log", slog.Int("job_id", job.ID), slog.String("error", err.Error()))
	}
}

// maybeFinishCampaign flips a campaign to sent once no jobs remain pending,
// running or terminally failed.
func (w *Worker) maybeFinishCampaign(ctx context.Context, campaignID int) {
	counts, err := w.Jobs.CountByStatus(ctx, campaignID)
	if err != nil {
		w.Log.Error("count jobs", slog.Int("campaign_id", campaignID), slog.String("error", err.Error()))
		return
	}
	if counts[model.JobStatusPending] > 0 || counts[model.JobStatusRunning] > 0 || counts[model.JobStatusFailed] > 0 {
		return
	}
	if err := w.Campaigns.UpdateStatus(ctx, campaignID, model.CampaignStatusSent); err != nil {
		w.Log.Error("mark campaign sent",
			slog.Int("campaign_id", campaignID), slog.String("error", err.Error()))
	}
}
