// internal/handler/batch_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/unclebandit/waleopard-backend/internal/ingest"
	"github.com/unclebandit/waleopard-backend/internal/repository"
	"github.com/unclebandit/waleopard-backend/internal/service"
)

const maxUploadBytes = 32 << 20

// BatchHandler serves batch upload and materialization endpoints.
type BatchHandler struct {
	Ingester     *ingest.Service
	Materializer *service.MaterializerService
	Batches      repository.BatchRepositoryInterface
}

// UploadBatchHandler accepts a multipart upload (field "file") and ingests it.
// Data problems come back as a batch in status "failed", not as an HTTP error.
func (h *BatchHandler) UploadBatchHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	businessID, err := strconv.Atoi(r.FormValue("business_id"))
	if err != nil {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	batch, err := h.Ingester.Ingest(r.Context(), ingest.Request{
		BusinessID: businessID,
		FileName:   header.Filename,
		Data:       file,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

// GetBatchHandler returns batch metadata.
func (h *BatchHandler) GetBatchHandler(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		http.Error(w, "invalid batch id", http.StatusBadRequest)
		return
	}
	batch, err := h.Batches.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// MaterializeBatchHandler previews how a batch resolves against a template.
// Nothing is persisted; attaching the result to a campaign is a separate call.
func (h *BatchHandler) MaterializeBatchHandler(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		http.Error(w, "invalid batch id", http.StatusBadRequest)
		return
	}

	var payload struct {
		BusinessID  int               `json:"business_id"`
		Template    string            `json:"template"`
		PhoneField  string            `json:"phone_field,omitempty"`
		Mapping     map[string]string `json:"mapping,omitempty"`
		Normalize   bool              `json:"normalize"`
		Deduplicate bool              `json:"deduplicate"`
		Limit       int               `json:"limit,omitempty"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if payload.Template == "" {
		http.Error(w, "template is required", http.StatusBadRequest)
		return
	}

	result, err := h.Materializer.Materialize(r.Context(), service.MaterializeRequest{
		BusinessID:  payload.BusinessID,
		BatchID:     id,
		TemplateRef: payload.Template,
		PhoneField:  payload.PhoneField,
		Mapping:     payload.Mapping,
		Normalize:   payload.Normalize,
		Deduplicate: payload.Deduplicate,
		Limit:       payload.Limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
