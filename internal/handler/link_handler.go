// internal/handler/link_handler.go
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/waleopard-backend/internal/repository"
)

// LinkHandler resolves click-tracking tokens.
type LinkHandler struct {
	Links repository.LinkRepositoryInterface
}

// RedirectHandler bumps the hit counter and 302s to the real destination.
func (h *LinkHandler) RedirectHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	dest, err := h.Links.Resolve(r.Context(), token)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, dest, http.StatusFound)
}
