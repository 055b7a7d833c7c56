package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"signbridge/internal/confirmation/watcher"
	dErrors "signbridge/pkg/domain-errors"
	"signbridge/pkg/platform/httputil"
)

// handleConfirmationStatus answers with {confirmed, expired, minutesLeft?, needsProfileCreation?}.
func (h *Handler) handleConfirmationStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.service.CheckEmailConfirmationStatus(ctx, chi.URLParam(r, "identityID"))
	if err != nil {
		h.writeServiceError(ctx, w, "confirmation status check failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleManualConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.service.ManuallyConfirmUserEmail(ctx, chi.URLParam(r, "identityID"))
	if err != nil {
		h.writeServiceError(ctx, w, "manual confirmation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// handleStartWatch starts the server-side watcher. Its outcome reaches the
// client through /me notifications and GET .../watch.
func (h *Handler) handleStartWatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.StartWatch(ctx, chi.URLParam(r, "identityID"), watcher.Callbacks{})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to start confirmation watch", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, view)
}

func (h *Handler) handleGetWatch(w http.ResponseWriter, r *http.Request) {
	view, ok := h.service.WatchStatus(chi.URLParam(r, "identityID"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no confirmation watch for this identity"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}
