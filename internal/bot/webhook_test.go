package bot_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/NomadonaTrip/sophia/internal/approval"
	"github.com/NomadonaTrip/sophia/internal/bot"
	"github.com/NomadonaTrip/sophia/internal/events"
	"github.com/NomadonaTrip/sophia/internal/ratelimit"
	"github.com/NomadonaTrip/sophia/internal/recovery"
	"github.com/NomadonaTrip/sophia/internal/scheduler"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/contracts"
	"github.com/NomadonaTrip/sophia/pkg/models"
)

func newTestHandler(t *testing.T) (*bot.Handler, store.Store) {
	t.Helper()
	os.Setenv("SOPHIA_DATA_DIR", t.TempDir())
	t.Cleanup(func() { os.Unsetenv("SOPHIA_DATA_DIR") })

	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	bus := events.NewBus()
	approvalSvc := approval.NewService(s, bus)
	sched := scheduler.New(s, bus, approvalSvc, ratelimit.New(), nil, map[models.Platform]contracts.PlatformAdapter{})
	recoverySvc := recovery.New(s, bus, approvalSvc, map[models.Platform]contracts.PlatformAdapter{})
	return bot.NewHandler(approvalSvc, recoverySvc, sched), s
}

func postCallback(t *testing.T, h *bot.Handler, cb map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(cb)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/bot/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTP_RejectsNonPost(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/bot/webhook", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestServeHTTP_RequiresDraftIDExceptForPauseResume(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := postCallback(t, h, map[string]any{"action": "approve"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServeHTTP_Approve_TransitionsDraft(t *testing.T) {
	h, s := newTestHandler(t)
	d := &models.Draft{ClientID: "acme", Platform: models.PlatformFacebook, Status: models.DraftStatusInReview}
	if err := s.CreateDraft(context.Background(), d); err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}

	rec := postCallback(t, h, map[string]any{"action": "approve", "draft_id": d.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}

	got, err := s.GetDraft(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetDraft() error = %v", err)
	}
	if got.Status != models.DraftStatusApproved {
		t.Errorf("draft.Status = %q, want approved", got.Status)
	}
}

func TestServeHTTP_Reject_PassesTagsAndGuidance(t *testing.T) {
	h, s := newTestHandler(t)
	d := &models.Draft{ClientID: "acme", Platform: models.PlatformFacebook, Status: models.DraftStatusInReview}
	if err := s.CreateDraft(context.Background(), d); err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}

	rec := postCallback(t, h, map[string]any{
		"action": "reject", "draft_id": d.ID, "tags": []string{"tone"}, "guidance": "too casual",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}

	got, err := s.GetDraft(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetDraft() error = %v", err)
	}
	if got.Status != models.DraftStatusRejected {
		t.Errorf("draft.Status = %q, want rejected", got.Status)
	}
}

func TestServeHTTP_UnrecognizedActionReturnsBadRequest(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := postCallback(t, h, map[string]any{"action": "dance", "draft_id": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServeHTTP_ApproveUnknownDraftReturnsNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := postCallback(t, h, map[string]any{"action": "approve", "draft_id": "missing"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServeHTTP_ApproveAlreadyApprovedReturnsConflict(t *testing.T) {
	h, s := newTestHandler(t)
	d := &models.Draft{ClientID: "acme", Platform: models.PlatformFacebook, Status: models.DraftStatusApproved}
	if err := s.CreateDraft(context.Background(), d); err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}

	rec := postCallback(t, h, map[string]any{"action": "approve", "draft_id": d.ID})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409, body = %s", rec.Code, rec.Body.String())
	}
}

func TestServeHTTP_PauseAndResume_NoDraftIDRequired(t *testing.T) {
	h, s := newTestHandler(t)

	rec := postCallback(t, h, map[string]any{"action": "pause"})
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	state, err := s.GetGlobalPublishState(context.Background())
	if err != nil {
		t.Fatalf("GetGlobalPublishState() error = %v", err)
	}
	if !state.Paused {
		t.Errorf("state.Paused = false after pause callback, want true")
	}

	rec = postCallback(t, h, map[string]any{"action": "resume"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want 200", rec.Code)
	}
	state, err = s.GetGlobalPublishState(context.Background())
	if err != nil {
		t.Fatalf("GetGlobalPublishState() error = %v", err)
	}
	if state.Paused {
		t.Errorf("state.Paused = true after resume callback, want false")
	}
}

func TestServeHTTP_Recover_RequiresPublishedDraft(t *testing.T) {
	h, s := newTestHandler(t)
	d := &models.Draft{ClientID: "acme", Platform: models.PlatformFacebook, Status: models.DraftStatusInReview}
	if err := s.CreateDraft(context.Background(), d); err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}

	rec := postCallback(t, h, map[string]any{"action": "recover", "draft_id": d.ID, "reason": "reported", "urgency": "immediate"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 for recovering a non-published draft", rec.Code)
	}
}
