// internal/service/dispatch.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/queue"
	"github.com/unclebandit/waleopard-backend/internal/repository"
	"github.com/unclebandit/waleopard-backend/internal/template"
)

const jobInsertBufferSize = 500

// DispatchService turns a campaign's pending recipients into outbound jobs.
// Each job freezes its resolved parameters at dispatch time; later edits to
// the campaign never change what an already-queued message says.
type DispatchService struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Templates  repository.TemplateRepositoryInterface
	Settings   repository.SettingsRepositoryInterface
	Jobs       repository.JobRepositoryInterface
	SendLogs   repository.SendLogRepositoryInterface
	Queue      queue.Queue

	MaxAttempts int
	Log         *slog.Logger
}

// DispatchResult summarizes one dispatch call.
type DispatchResult struct {
	CampaignID int    `json:"campaign_id"`
	Provider   string `json:"provider"`
	Enqueued   int    `json:"enqueued"`
	Skipped    int    `json:"skipped"`
}

// Dispatch validates the campaign, fails incomplete recipients up front and
// enqueues one job per eligible pending recipient. Repeat dispatches enqueue
// fresh jobs for whatever is still pending; recipients already sent or failed
// are left alone.
func (s *DispatchService) Dispatch(ctx context.Context, campaignID int) (*DispatchResult, error) {
	campaign, err := s.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.TemplateID == nil {
		return nil, appErrors.ErrNoTemplate
	}
	tmpl, err := s.Templates.GetByID(ctx, *campaign.TemplateID)
	if err != nil {
		return nil, err
	}

	settings, err := s.Settings.GetByBusinessID(ctx, campaign.BusinessID)
	if err != nil {
		return nil, err
	}
	provider := campaign.Provider
	if strings.TrimSpace(provider) == "" {
		provider = settings.Provider
	}

	recipients, err := s.Recipients.ListPending(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, appErrors.ErrNoRecipients
	}

	mediaType := ""
	if tmpl.HasMediaHeader() {
		mediaType = tmpl.HeaderKind
	}

	result := &DispatchResult{CampaignID: campaignID, Provider: provider}
	buffer := make([]model.OutboundMessageJob, 0, jobInsertBufferSize)
	for i := range recipients {
		rec := &recipients[i]
		if reason := s.vetRecipient(rec, tmpl); reason != "" {
			s.failRecipient(ctx, campaign, rec, reason)
			result.Skipped++
			continue
		}

		params, err := json.Marshal(model.JobParams{
			BodyParams:   rec.BodyParams,
			ButtonParams: rec.ButtonParams,
			HeaderURL:    campaign.HeaderMediaURL,
		})
		if err != nil {
			return nil, fmt.Errorf("freeze params for recipient %d: %w", rec.ID, err)
		}

		buffer = append(buffer, model.OutboundMessageJob{
			CampaignID:       campaignID,
			RecipientID:      rec.ID,
			Provider:         provider,
			MediaType:        mediaType,
			TemplateName:     tmpl.Name,
			TemplateLanguage: tmpl.Language,
			Params:           params,
			MaxAttempts:      s.MaxAttempts,
		})
		if len(buffer) >= jobInsertBufferSize {
			n, err := s.Jobs.InsertJobs(ctx, buffer)
			if err != nil {
				return nil, fmt.Errorf("enqueue jobs: %w", err)
			}
			result.Enqueued += n
			buffer = buffer[:0]
		}
	}
	if len(buffer) > 0 {
		n, err := s.Jobs.InsertJobs(ctx, buffer)
		if err != nil {
			return nil, fmt.Errorf("enqueue jobs: %w", err)
		}
		result.Enqueued += n
	}

	if result.Enqueued == 0 {
		return nil, appErrors.ErrNoRecipients
	}

	if err := s.Campaigns.UpdateStatus(ctx, campaignID, model.CampaignStatusScheduled); err != nil {
		return nil, err
	}

	if err := s.Queue.Publish(queue.TopicCampaignDispatches, queue.DispatchEvent{CampaignID: campaignID}); err != nil {
		// Jobs are already durable; the worker's poll tick picks them up
		// without the nudge.
		s.Log.Warn("dispatch wake publish failed",
			slog.Int("campaign_id", campaignID), slog.String("error", err.Error()))
	}

	s.Log.Info("campaign dispatched",
		slog.Int("campaign_id", campaignID),
		slog.String("provider", provider),
		slog.Int("enqueued", result.Enqueued),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

// vetRecipient returns the failure reason for a recipient that must not be
// queued, or "" when it is eligible.
func (s *DispatchService) vetRecipient(rec *model.CampaignRecipient, tmpl *model.MessageTemplate) string {
	if strings.TrimSpace(rec.Phone) == "" {
		return "recipient has no phone number"
	}
	if _, err := template.NormalizeBodyParams(rec.BodyParams, tmpl.BodyParamCount); err != nil {
		return err.Error()
	}
	return ""
}

// failRecipient records an immediate failed send for a recipient rejected at
// dispatch time. It never reaches the job queue.
func (s *DispatchService) failRecipient(ctx context.Context, campaign *model.Campaign, rec *model.CampaignRecipient, reason string) {
	if err := s.Recipients.MarkFailed(ctx, rec.ID, reason); err != nil {
		s.Log.Error("mark recipient failed",
			slog.Int("recipient_id", rec.ID), slog.String("error", err.Error()))
	}
	recID := rec.ID
	if err := s.SendLogs.Insert(ctx, &model.CampaignSendLog{
		CampaignID:  campaign.ID,
		RecipientID: &recID,
		Success:     false,
		Error:       reason,
	}); err != nil {
		s.Log.Error("insert send log",
			slog.Int("recipient_id", rec.ID), slog.String("error", err.Error()))
	}
	s.Log.Warn("recipient rejected at dispatch",
		slog.Int("campaign_id", campaign.ID),
		slog.Int("recipient_id", rec.ID),
		slog.String("reason", reason))
}
