// internal/handler/handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case appErrors.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, appErrors.ErrAudienceLocked):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, appErrors.ErrNoRecipients),
		errors.Is(err, appErrors.ErrNoTemplate),
		errors.Is(err, appErrors.ErrProviderNotConfigured):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func urlParamInt(r *http.Request, name string) (int, error) {
	return strconv.Atoi(chi.URLParam(r, name))
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
