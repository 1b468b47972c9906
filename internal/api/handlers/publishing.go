package handlers

import (
	"net/http"

	"github.com/NomadonaTrip/sophia/internal/api/middleware"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/models"
)

// PausePublishing handles POST /api/approval/publishing/pause
func (h *Handlers) PausePublishing(w http.ResponseWriter, r *http.Request) {
	actor := string(actorFor(r))
	if err := h.Scheduler.PauseAll(r.Context(), actor); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	state, err := h.Store.GetGlobalPublishState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ResumePublishing handles POST /api/approval/publishing/resume
func (h *Handlers) ResumePublishing(w http.ResponseWriter, r *http.Request) {
	if err := h.Scheduler.ResumeAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	state, err := h.Store.GetGlobalPublishState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// healthStripCounts is the per-status tally the operator dashboard's
// top strip renders.
type healthStripCounts struct {
	Draft     int  `json:"draft"`
	InReview  int  `json:"in_review"`
	Approved  int  `json:"approved"`
	Rejected  int  `json:"rejected"`
	Skipped   int  `json:"skipped"`
	Published int  `json:"published"`
	Recovered int  `json:"recovered"`
	Paused    bool `json:"publishing_paused"`
}

// HealthStrip handles GET /api/approval/health-strip
func (h *Handlers) HealthStrip(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		clientID = middleware.GetClientID(r.Context())
	}

	drafts, err := h.Store.ListDrafts(r.Context(), clientID, store.ListFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts := healthStripCounts{}
	for _, d := range drafts {
		switch d.Status {
		case models.DraftStatusDraft:
			counts.Draft++
		case models.DraftStatusInReview:
			counts.InReview++
		case models.DraftStatusApproved:
			counts.Approved++
		case models.DraftStatusRejected:
			counts.Rejected++
		case models.DraftStatusSkipped:
			counts.Skipped++
		case models.DraftStatusPublished:
			counts.Published++
		case models.DraftStatusRecovered:
			counts.Recovered++
		}
	}

	state, err := h.Store.GetGlobalPublishState(r.Context())
	if err == nil {
		counts.Paused = state.Paused
	}
	writeJSON(w, http.StatusOK, counts)
}
