// Package bot implements the chat-bot front end: an inbound webhook that
// lets the operator approve, reject, edit, skip, recover, pause, or resume
// from a chat client's interactive buttons, and an outbound notifier that
// posts approval-queue and publish events to the same chat channel.
package bot

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/NomadonaTrip/sophia/internal/approval"
	"github.com/NomadonaTrip/sophia/internal/recovery"
	"github.com/NomadonaTrip/sophia/internal/scheduler"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/rs/zerolog/log"
)

// action is the single-field discriminator the chat client sends for every
// interactive button callback.
type action string

const (
	actionApprove action = "approve"
	actionReject  action = "reject"
	actionEdit    action = "edit"
	actionSkip    action = "skip"
	actionRecover action = "recover"
	actionPause   action = "pause"
	actionResume  action = "resume"
)

// callback is the inbound webhook payload. Fields beyond Action are only
// read when that action needs them.
type callback struct {
	Action     action  `json:"action"`
	DraftID    string  `json:"draft_id"`
	OperatorID string  `json:"operator_id"`
	Tags       []string `json:"tags,omitempty"`
	Guidance   string  `json:"guidance,omitempty"`
	Copy       string  `json:"copy,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Urgency    string  `json:"urgency,omitempty"`
}

// Handler serves the chat bot's inbound webhook.
type Handler struct {
	Approval  *approval.Service
	Recovery  *recovery.Service
	Scheduler *scheduler.Scheduler
}

// NewHandler wires a bot Handler against the core services.
func NewHandler(approvalSvc *approval.Service, recoverySvc *recovery.Service, sched *scheduler.Scheduler) *Handler {
	return &Handler{Approval: approvalSvc, Recovery: recoverySvc, Scheduler: sched}
}

// ServeHTTP handles the single inbound webhook endpoint the chat client
// posts every interactive callback to.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cb callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		http.Error(w, "invalid callback payload", http.StatusBadRequest)
		return
	}
	if cb.Action != actionPause && cb.Action != actionResume && cb.DraftID == "" {
		http.Error(w, "draft_id is required", http.StatusBadRequest)
		return
	}

	actor := models.ActorOperatorBot
	ctx := r.Context()

	var (
		draft *models.Draft
		err   error
	)

	switch cb.Action {
	case actionApprove:
		draft, err = h.Approval.Approve(ctx, cb.DraftID, actor, models.PublishModeAuto, nil)
	case actionReject:
		draft, err = h.Approval.Reject(ctx, cb.DraftID, actor, cb.Tags, cb.Guidance)
	case actionEdit:
		draft, err = h.Approval.Edit(ctx, cb.DraftID, actor, cb.Copy, nil)
	case actionSkip:
		draft, err = h.Approval.Skip(ctx, cb.DraftID, actor)
	case actionRecover:
		urgency := models.RecoveryReview
		if cb.Urgency == string(models.RecoveryImmediate) {
			urgency = models.RecoveryImmediate
		}
		var recLog *models.RecoveryLog
		recLog, err = h.Recovery.Recover(ctx, cb.DraftID, cb.Reason, urgency, actor)
		if err == nil {
			writeJSON(w, http.StatusOK, recLog)
			return
		}
	case actionPause:
		err = h.Scheduler.PauseAll(ctx, string(actor))
	case actionResume:
		err = h.Scheduler.ResumeAll(ctx)
	default:
		http.Error(w, "unrecognized action", http.StatusBadRequest)
		return
	}

	if err != nil {
		respondCallbackError(w, err)
		return
	}
	if draft != nil {
		writeJSON(w, http.StatusOK, draft)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondCallbackError(w http.ResponseWriter, err error) {
	var notFound *store.ErrNotFound
	var conflict *store.ErrConflict
	switch {
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &conflict), errors.Is(err, approval.ErrInvalidTransition), errors.Is(err, recovery.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error().Err(err).Msg("bot callback failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("bot: failed to encode response")
	}
}
