// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/repository"
	"github.com/unclebandit/waleopard-backend/internal/service"
)

// CampaignHandler holds the dependencies for campaign-related HTTP handlers.
type CampaignHandler struct {
	Campaigns repository.CampaignRepositoryInterface
	Audience  *service.AudienceService
	Dispatch  *service.DispatchService
}

// CreateCampaignHandler creates a draft campaign.
func (h *CampaignHandler) CreateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BusinessID     int                    `json:"business_id"`
		Name           string                 `json:"name"`
		TemplateID     *int                   `json:"template_id,omitempty"`
		Provider       string                 `json:"provider,omitempty"`
		HeaderMediaURL string                 `json:"header_media_url,omitempty"`
		Buttons        []model.CampaignButton `json:"buttons,omitempty"`
		ScheduledAt    *time.Time             `json:"scheduled_at,omitempty"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	campaign := &model.Campaign{
		BusinessID:     payload.BusinessID,
		Name:           payload.Name,
		Status:         model.CampaignStatusDraft,
		TemplateID:     payload.TemplateID,
		Provider:       payload.Provider,
		HeaderMediaURL: payload.HeaderMediaURL,
		Buttons:        payload.Buttons,
		ScheduledAt:    payload.ScheduledAt,
	}
	if err := h.Campaigns.Create(r.Context(), campaign); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

// ListCampaignsHandler returns a paginated campaign list.
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := 1, 10
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if ps, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && ps > 0 {
		pageSize = ps
	}
	status := r.URL.Query().Get("status")

	campaigns, total, err := h.Campaigns.ListCampaigns(r.Context(), (page-1)*pageSize, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaigns": campaigns,
		"pagination": map[string]int{
			"page":      page,
			"page_size": pageSize,
			"total":     total,
		},
	})
}

// GetCampaignHandler returns a campaign with its recipient status counts.
func (h *CampaignHandler) GetCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	campaign, err := h.Campaigns.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.Campaigns.GetRecipientStats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign":        campaign,
		"recipient_stats": stats,
	})
}

// AttachAudienceHandler replaces the campaign audience from an uploaded file.
// The upload is ingested and materialized against the campaign's template (or
// the "template" form field) in one shot. An optional "mapping" form field
// carries a JSON object of header-to-parameter overrides.
func (h *CampaignHandler) AttachAudienceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	var mapping map[string]string
	if raw := r.FormValue("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			http.Error(w, "invalid mapping: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	summary, err := h.Audience.AttachFromFile(r.Context(), service.AttachFileRequest{
		CampaignID:   id,
		AudienceName: r.FormValue("audience_name"),
		Actor:        actor(r),
		FileName:     header.Filename,
		Data:         file,
		TemplateRef:  r.FormValue("template"),
		PhoneField:   r.FormValue("phone_field"),
		Mapping:      mapping,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// RemoveAudienceHandler detaches the active audience. CSV-derived recipients
// are deleted; manually assigned ones stay.
func (h *CampaignHandler) RemoveAudienceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	deleted, err := h.Audience.Remove(r.Context(), id, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted_recipients": deleted})
}

// AudienceHistoryHandler returns the attachment trail, newest first.
func (h *CampaignHandler) AudienceHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	history, err := h.Audience.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// DispatchCampaignHandler enqueues jobs for all eligible pending recipients.
func (h *CampaignHandler) DispatchCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	result, err := h.Dispatch.Dispatch(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "api"
}
