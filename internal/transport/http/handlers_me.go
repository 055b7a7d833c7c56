package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"signbridge/internal/platform/middleware"
	"signbridge/internal/session"
	dErrors "signbridge/pkg/domain-errors"
	"signbridge/pkg/platform/httputil"
)

// handleMe returns the cached view when it belongs to the caller.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	state := h.service.CurrentState()
	if !ownedBy(state, middleware.GetIdentityID(r.Context())) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no active session for this identity"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := h.service.RefreshProfile(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "profile refresh failed", err)
		return
	}
	if !ownedBy(state, middleware.GetIdentityID(ctx)) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no active session for this identity"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

func (h *Handler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.DismissNotification(chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(ctx, w, "dismiss notification failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ownedBy(state session.State, identityID string) bool {
	return state.Identity != nil && state.Identity.ID == identityID
}
