// internal/service/audience.go
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/ingest"
	"github.com/unclebandit/waleopard-backend/internal/metrics"
	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/repository"
)

// AudienceService manages the campaign-to-audience attachment. Replacing an
// attachment swaps out CSV-derived recipients atomically; manually assigned
// recipients are never touched. Once a campaign has sent, its audience is
// locked for good.
type AudienceService struct {
	Campaigns    repository.CampaignRepositoryInterface
	Audiences    repository.AudienceRepositoryInterface
	Recipients   repository.RecipientRepositoryInterface
	SendLogs     repository.SendLogRepositoryInterface
	Ingester     *ingest.Service
	Materializer *MaterializerService
	Log          *slog.Logger
}

func NewAudienceService(
	campaigns repository.CampaignRepositoryInterface,
	audiences repository.AudienceRepositoryInterface,
	recipients repository.RecipientRepositoryInterface,
	sendLogs repository.SendLogRepositoryInterface,
	ingester *ingest.Service,
	materializer *MaterializerService,
	log *slog.Logger,
) *AudienceService {
	return &AudienceService{
		Campaigns:    campaigns,
		Audiences:    audiences,
		Recipients:   recipients,
		SendLogs:     sendLogs,
		Ingester:     ingester,
		Materializer: materializer,
		Log:          log,
	}
}

// AttachFileRequest replaces a campaign's audience straight from an upload:
// ingest, materialize and attach in one shot.
type AttachFileRequest struct {
	CampaignID   int
	AudienceName string
	Actor        string
	FileName     string
	Data         io.Reader
	TemplateRef  string
	PhoneField   string
	Mapping      map[string]string
}

// AttachRowsRequest replaces a campaign's audience from rows that were
// already materialized (the preview-then-commit flow).
type AttachRowsRequest struct {
	CampaignID   int
	BatchID      *int
	AudienceName string
	Actor        string
	Rows         []MaterializedRow
}

// AttachSummary reports what an attachment replace did.
type AttachSummary struct {
	AttachmentID      int          `json:"attachment_id"`
	AudienceID        int          `json:"audience_id"`
	DeletedRecipients int          `json:"deleted_recipients"`
	InsertedMembers   int          `json:"inserted_members"`
	Skipped           []SkippedRow `json:"skipped,omitempty"`
}

// AttachFromFile ingests the upload, materializes it against the campaign's
// template and replaces the attachment. Ingestion data problems surface as an
// error here since there is nothing to attach.
func (s *AudienceService) AttachFromFile(ctx context.Context, req AttachFileRequest) (*AttachSummary, error) {
	campaign, err := s.Campaigns.GetByID(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLock(ctx, campaign); err != nil {
		return nil, err
	}

	templateRef := req.TemplateRef
	if templateRef == "" {
		if campaign.TemplateID == nil {
			return nil, appErrors.ErrNoTemplate
		}
		templateRef = fmt.Sprintf("%d", *campaign.TemplateID)
	}

	batch, err := s.Ingester.Ingest(ctx, ingest.Request{
		BusinessID: campaign.BusinessID,
		FileName:   req.FileName,
		Data:       req.Data,
	})
	if err != nil {
		return nil, err
	}
	if batch.Status != model.BatchStatusReady {
		return nil, fmt.Errorf("upload rejected: %s", batch.Error)
	}

	materialized, err := s.Materializer.Materialize(ctx, MaterializeRequest{
		BusinessID:  campaign.BusinessID,
		CampaignID:  campaign.ID,
		BatchID:     batch.ID,
		TemplateRef: templateRef,
		PhoneField:  req.PhoneField,
		Mapping:     req.Mapping,
		Deduplicate: true,
	})
	if err != nil {
		return nil, err
	}

	summary, err := s.AttachRows(ctx, AttachRowsRequest{
		CampaignID:   campaign.ID,
		BatchID:      &batch.ID,
		AudienceName: req.AudienceName,
		Actor:        req.Actor,
		Rows:         materialized.Rows,
	})
	if err != nil {
		return nil, err
	}
	summary.Skipped = append(materialized.Skipped, summary.Skipped...)
	return summary, nil
}

// AttachRows replaces the campaign's audience with the given rows. Phones
// already covered by a manually assigned recipient are skipped, and
// duplicates are collapsed here unconditionally as the last line of defense.
func (s *AudienceService) AttachRows(ctx context.Context, req AttachRowsRequest) (*AttachSummary, error) {
	campaign, err := s.Campaigns.GetByID(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLock(ctx, campaign); err != nil {
		return nil, err
	}

	manual, err := s.Recipients.ListManual(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	manualPhones := make(map[string]bool, len(manual))
	for _, rec := range manual {
		manualPhones[rec.Phone] = true
	}

	var skipped []SkippedRow
	seen := map[string]bool{}
	members := make([]repository.MemberRecipient, 0, len(req.Rows))
	for _, row := range req.Rows {
		switch {
		case manualPhones[row.Phone]:
			skipped = append(skipped, SkippedRow{
				RowIndex: row.RowIndex, RawPhone: row.RawPhone, Reasons: []string{SkipReasonManual}})
			metrics.RecipientsSkipped.WithLabelValues(SkipReasonManual).Inc()
			continue
		case seen[row.Phone]:
			skipped = append(skipped, SkippedRow{
				RowIndex: row.RowIndex, RawPhone: row.RawPhone, Reasons: []string{SkipReasonDuplicate}})
			metrics.RecipientsSkipped.WithLabelValues(SkipReasonDuplicate).Inc()
			continue
		}
		seen[row.Phone] = true

		members = append(members, repository.MemberRecipient{
			Member: model.AudienceMember{
				BusinessID:      campaign.BusinessID,
				ContactID:       row.ContactID,
				NormalizedPhone: row.Phone,
				RawPhone:        row.RawPhone,
				Attributes:      row.Attributes,
				IsTransient:     row.ContactID == nil,
			},
			Recipient: model.CampaignRecipient{
				CampaignID:     campaign.ID,
				ContactID:      row.ContactID,
				Phone:          row.Phone,
				DisplayName:    row.DisplayName,
				BodyParams:     row.BodyParams,
				ButtonParams:   row.ButtonParams,
				IdempotencyKey: IdempotencyKey(campaign.ID, row.Phone, row.BodyParams, row.ButtonParams),
			},
		})
	}

	name := strings.TrimSpace(req.AudienceName)
	if name == "" {
		name = fmt.Sprintf("%s audience", campaign.Name)
	}

	result, err := s.Audiences.Replace(ctx, repository.ReplaceSpec{
		CampaignID:   campaign.ID,
		BusinessID:   campaign.BusinessID,
		BatchID:      req.BatchID,
		AudienceName: name,
		Actor:        req.Actor,
		Members:      members,
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("audience attached",
		slog.Int("campaign_id", campaign.ID),
		slog.Int("audience_id", result.AudienceID),
		slog.Int("inserted", result.InsertedMembers),
		slog.Int("deleted", result.DeletedRecipients),
		slog.Int("skipped", len(skipped)))

	return &AttachSummary{
		AttachmentID:      result.AttachmentID,
		AudienceID:        result.AudienceID,
		DeletedRecipients: result.DeletedRecipients,
		InsertedMembers:   result.InsertedMembers,
		Skipped:           skipped,
	}, nil
}

// Remove deactivates the active attachment and deletes CSV-derived
// recipients. Manually assigned recipients and history rows survive.
func (s *AudienceService) Remove(ctx context.Context, campaignID int, actor string) (int, error) {
	campaign, err := s.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if err := s.checkLock(ctx, campaign); err != nil {
		return 0, err
	}
	deleted, err := s.Audiences.Remove(ctx, campaignID, actor)
	if err != nil {
		return 0, err
	}
	s.Log.Info("audience removed",
		slog.Int("campaign_id", campaignID),
		slog.Int("deleted_recipients", deleted),
		slog.String("actor", actor))
	return deleted, nil
}

// History returns the full attachment trail, newest first.
func (s *AudienceService) History(ctx context.Context, campaignID int) ([]model.CampaignAudienceAttachment, error) {
	return s.Audiences.History(ctx, campaignID)
}

// checkLock rejects audience mutation once a campaign has sent or has any
// delivery history at all.
func (s *AudienceService) checkLock(ctx context.Context, campaign *model.Campaign) error {
	if campaign.Status == model.CampaignStatusSent {
		return appErrors.ErrAudienceLocked
	}
	sends, err := s.SendLogs.CountByCampaign(ctx, campaign.ID)
	if err != nil {
		return err
	}
	if sends > 0 {
		return appErrors.ErrAudienceLocked
	}
	return nil
}
