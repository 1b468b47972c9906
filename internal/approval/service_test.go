package approval_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/NomadonaTrip/sophia/internal/approval"
	"github.com/NomadonaTrip/sophia/internal/events"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/models"
)

func newTestService(t *testing.T) (*approval.Service, store.Store, *events.Bus) {
	t.Helper()
	os.Setenv("SOPHIA_DATA_DIR", t.TempDir())
	t.Cleanup(func() { os.Unsetenv("SOPHIA_DATA_DIR") })

	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	bus := events.NewBus()
	return approval.NewService(s, bus), s, bus
}

func mustCreateDraft(t *testing.T, s store.Store, status models.DraftStatus) *models.Draft {
	t.Helper()
	d := &models.Draft{ClientID: "acme", Platform: models.PlatformFacebook, Status: status, Body: "draft body"}
	if err := s.CreateDraft(context.Background(), d); err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}
	return d
}

func TestApprove_AutoModeCreatesQueueEntry(t *testing.T) {
	svc, s, _ := newTestService(t)
	d := mustCreateDraft(t, s, models.DraftStatusInReview)

	updated, err := svc.Approve(context.Background(), d.ID, models.ActorOperatorWeb, models.PublishModeAuto, nil)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if updated.Status != models.DraftStatusApproved {
		t.Fatalf("status = %q, want approved", updated.Status)
	}

	entry, err := s.GetQueueEntryByDraft(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("expected a queue entry for auto-mode approval, got error %v", err)
	}
	if entry.Status != models.QueueEntryQueued {
		t.Errorf("queue entry status = %q, want queued", entry.Status)
	}
}

func TestApprove_ManualModeSkipsQueueEntry(t *testing.T) {
	svc, s, _ := newTestService(t)
	d := mustCreateDraft(t, s, models.DraftStatusInReview)

	if _, err := svc.Approve(context.Background(), d.ID, models.ActorOperatorWeb, models.PublishModeManual, nil); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	if _, err := s.GetQueueEntryByDraft(context.Background(), d.ID); err == nil {
		t.Fatalf("expected no queue entry for manual-mode approval")
	}
}

func TestTransition_RejectsInvalidTransition(t *testing.T) {
	svc, s, _ := newTestService(t)
	d := mustCreateDraft(t, s, models.DraftStatusDraft)

	_, err := svc.Transition(context.Background(), d.ID, models.DraftStatusPublished, models.ActorOperatorWeb, approval.Kwargs{})
	if err != approval.ErrInvalidTransition {
		t.Fatalf("Transition() error = %v, want ErrInvalidTransition", err)
	}
}

func TestEdit_OnApprovedDraftForcesInReviewAndPausesQueueEntry(t *testing.T) {
	svc, s, _ := newTestService(t)
	d := mustCreateDraft(t, s, models.DraftStatusInReview)

	if _, err := svc.Approve(context.Background(), d.ID, models.ActorOperatorWeb, models.PublishModeAuto, nil); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	updated, err := svc.Edit(context.Background(), d.ID, models.ActorOperatorWeb, "revised copy", nil)
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if updated.Status != models.DraftStatusInReview {
		t.Fatalf("status after edit = %q, want in_review", updated.Status)
	}
	if updated.Body != "revised copy" {
		t.Errorf("body = %q, want %q", updated.Body, "revised copy")
	}

	entry, err := s.GetQueueEntryByDraft(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetQueueEntryByDraft() error = %v", err)
	}
	if entry.Status != models.QueueEntryPaused {
		t.Errorf("queue entry status = %q, want paused", entry.Status)
	}
}

func TestReject_PublishesApprovalChangedEvent(t *testing.T) {
	svc, s, bus := newTestService(t)
	d := mustCreateDraft(t, s, models.DraftStatusInReview)

	ch, err := bus.Subscribe(d.ClientID)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if _, err := svc.Reject(context.Background(), d.ID, models.ActorOperatorWeb, []string{"tone"}, "too casual"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Type != models.EventApprovalChanged {
			t.Errorf("evt.Type = %q, want %q", evt.Type, models.EventApprovalChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an approval_changed event")
	}
}

func TestSkip_TransitionsInReviewToSkipped(t *testing.T) {
	svc, s, _ := newTestService(t)
	d := mustCreateDraft(t, s, models.DraftStatusInReview)

	updated, err := svc.Skip(context.Background(), d.ID, models.ActorOperatorCLI)
	if err != nil {
		t.Fatalf("Skip() error = %v", err)
	}
	if updated.Status != models.DraftStatusSkipped {
		t.Errorf("status = %q, want skipped", updated.Status)
	}
}

func TestMarkPublished_SetsPublishedBySophiaPublisher(t *testing.T) {
	svc, s, _ := newTestService(t)
	d := mustCreateDraft(t, s, models.DraftStatusInReview)
	if _, err := svc.Approve(context.Background(), d.ID, models.ActorOperatorWeb, models.PublishModeAuto, nil); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	updated, err := svc.MarkPublished(context.Background(), d.ID, "post-123", "https://example.com/post-123")
	if err != nil {
		t.Fatalf("MarkPublished() error = %v", err)
	}
	if updated.Status != models.DraftStatusPublished {
		t.Errorf("status = %q, want published", updated.Status)
	}
}

func TestMarkRecovered_TransitionsPublishedToRecovered(t *testing.T) {
	svc, s, _ := newTestService(t)
	d := mustCreateDraft(t, s, models.DraftStatusInReview)
	if _, err := svc.Approve(context.Background(), d.ID, models.ActorOperatorWeb, models.PublishModeAuto, nil); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if _, err := svc.MarkPublished(context.Background(), d.ID, "post-123", ""); err != nil {
		t.Fatalf("MarkPublished() error = %v", err)
	}

	updated, err := svc.MarkRecovered(context.Background(), d.ID, models.ActorSophiaMonitor)
	if err != nil {
		t.Fatalf("MarkRecovered() error = %v", err)
	}
	if updated.Status != models.DraftStatusRecovered {
		t.Errorf("status = %q, want recovered", updated.Status)
	}
}

// TestMarkPublished_DoesNotEmitPublishComplete guards against the
// transition itself re-announcing publish_complete: that event belongs to
// whichever caller actually dispatched the post (the executor), since only
// it knows the real platform_post_url.
func TestMarkPublished_DoesNotEmitPublishComplete(t *testing.T) {
	svc, s, bus := newTestService(t)
	d := mustCreateDraft(t, s, models.DraftStatusInReview)
	if _, err := svc.Approve(context.Background(), d.ID, models.ActorOperatorWeb, models.PublishModeAuto, nil); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	sub, err := bus.Subscribe("acme")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if _, err := svc.MarkPublished(context.Background(), d.ID, "post-123", "https://example.com/post-123"); err != nil {
		t.Fatalf("MarkPublished() error = %v", err)
	}

	select {
	case evt := <-sub:
		t.Fatalf("MarkPublished() unexpectedly emitted an event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManualPublishConfirm_EmitsCorrectlyShapedPublishComplete(t *testing.T) {
	svc, s, bus := newTestService(t)
	d := mustCreateDraft(t, s, models.DraftStatusInReview)
	if _, err := svc.Approve(context.Background(), d.ID, models.ActorOperatorWeb, models.PublishModeManual, nil); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	sub, err := bus.Subscribe("acme")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	updated, err := svc.ManualPublishConfirm(context.Background(), d.ID, models.ActorOperatorWeb)
	if err != nil {
		t.Fatalf("ManualPublishConfirm() error = %v", err)
	}
	if updated.Status != models.DraftStatusPublished {
		t.Errorf("status = %q, want published", updated.Status)
	}

	select {
	case evt := <-sub:
		if evt.Type != models.EventPublishComplete {
			t.Fatalf("evt.Type = %q, want publish_complete", evt.Type)
		}
		if evt.Payload["draft_id"] != d.ID {
			t.Errorf("evt.Payload[draft_id] = %v, want %v", evt.Payload["draft_id"], d.ID)
		}
		if evt.Payload["client_id"] != "acme" {
			t.Errorf("evt.Payload[client_id] = %v, want acme", evt.Payload["client_id"])
		}
		if evt.Payload["platform"] != string(models.PlatformFacebook) {
			t.Errorf("evt.Payload[platform] = %v, want facebook", evt.Payload["platform"])
		}
	case <-time.After(time.Second):
		t.Fatal("ManualPublishConfirm() did not emit publish_complete")
	}
}
