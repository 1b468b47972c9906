package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/NomadonaTrip/sophia/internal/api/middleware"
	"github.com/NomadonaTrip/sophia/internal/approval"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// actorFor maps an authenticated request to the actor recorded in the
// draft's audit trail. The HTTP front is always operator:web; the bot and
// CLI fronts stamp their own actor before calling into approval.Service
// directly.
func actorFor(r *http.Request) models.Actor { return models.ActorOperatorWeb }

// ListQueue handles GET /api/approval/queue?client=&status=
func (h *Handlers) ListQueue(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		clientID = middleware.GetClientID(r.Context())
	}
	status := r.URL.Query().Get("status")

	drafts, err := h.Store.ListDrafts(r.Context(), clientID, store.ListFilter{Status: status})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, drafts)
}

type approveRequest struct {
	PublishMode    models.PublishMode `json:"publish_mode"`
	CustomPostTime *time.Time         `json:"custom_post_time,omitempty"`
}

// Approve handles POST /api/approval/drafts/{id}/approve
func (h *Handlers) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PublishMode == "" {
		req.PublishMode = models.PublishModeAuto
	}

	updated, err := h.Approval.Approve(r.Context(), id, actorFor(r), req.PublishMode, req.CustomPostTime)
	respondTransition(w, updated, err)
}

type rejectRequest struct {
	Tags     []string `json:"tags"`
	Guidance string   `json:"guidance,omitempty"`
}

// Reject handles POST /api/approval/drafts/{id}/reject
func (h *Handlers) Reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req rejectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.Approval.Reject(r.Context(), id, actorFor(r), req.Tags, req.Guidance)
	respondTransition(w, updated, err)
}

type editRequest struct {
	Copy           string     `json:"copy"`
	CustomPostTime *time.Time `json:"custom_post_time,omitempty"`
}

// Edit handles POST /api/approval/drafts/{id}/edit
func (h *Handlers) Edit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req editRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.Approval.Edit(r.Context(), id, actorFor(r), req.Copy, req.CustomPostTime)
	respondTransition(w, updated, err)
}

// Skip handles POST /api/approval/drafts/{id}/skip
func (h *Handlers) Skip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	updated, err := h.Approval.Skip(r.Context(), id, actorFor(r))
	respondTransition(w, updated, err)
}

const maxUploadBytes = 10 << 20 // 10 MiB

// UploadImage handles POST /api/approval/drafts/{id}/upload-image
// (multipart/form-data, field name "image"). The uploaded file is
// written under ImageDir and the draft's image_ref is set to its
// publicly reachable URL.
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "image exceeds upload limit")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"image\" required")
		return
	}
	defer file.Close()

	if h.ImageDir != "" {
		if err := os.MkdirAll(h.ImageDir, 0o755); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to prepare image storage")
			return
		}
	}

	filename := uuid.NewString() + filepath.Ext(header.Filename)
	dest := filepath.Join(h.ImageDir, filename)
	out, err := os.Create(dest)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	imageRef := h.ImageBaseURL + "/" + filename
	updated, err := h.Store.UpdateDraftAtomic(r.Context(), id, func(d *models.Draft) (*models.AuditRecord, error) {
		before, _ := json.Marshal(d)
		d.ImageRef = imageRef
		after, _ := json.Marshal(d)
		return &models.AuditRecord{
			ClientID: d.ClientID, Actor: actorFor(r), Action: "image_uploaded",
			BeforeSnapshot: before, AfterSnapshot: after,
		}, nil
	})
	respondTransition(w, updated, err)
}

func decodeBody(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondTransition(w http.ResponseWriter, draft *models.Draft, err error) {
	if err != nil {
		var nf *store.ErrNotFound
		var conflict *store.ErrConflict
		switch {
		case errors.As(err, &nf):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &conflict), errors.Is(err, approval.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, draft)
}
