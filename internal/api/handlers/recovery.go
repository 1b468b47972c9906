package handlers

import (
	"errors"
	"net/http"

	"github.com/NomadonaTrip/sophia/internal/recovery"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/go-chi/chi/v5"
)

type recoverRequest struct {
	Reason  string                  `json:"reason"`
	Urgency models.RecoveryUrgency  `json:"urgency"`
}

// Recover handles POST /api/approval/drafts/{id}/recover
func (h *Handlers) Recover(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req recoverRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Urgency == "" {
		req.Urgency = models.RecoveryReview
	}

	log, err := h.Recovery.Recover(r.Context(), id, req.Reason, req.Urgency, actorFor(r))
	if err != nil {
		var nf *store.ErrNotFound
		switch {
		case errors.As(err, &nf):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, recovery.ErrInvalidState):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, log)
}
