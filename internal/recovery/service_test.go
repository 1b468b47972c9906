package recovery_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/NomadonaTrip/sophia/internal/approval"
	"github.com/NomadonaTrip/sophia/internal/events"
	"github.com/NomadonaTrip/sophia/internal/recovery"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/contracts"
	"github.com/NomadonaTrip/sophia/pkg/models"
)

type fakeAdapter struct {
	platform  models.Platform
	deleteErr error
}

func (f *fakeAdapter) Publish(ctx context.Context, d *models.Draft, imageRef string) (*contracts.PublishResult, error) {
	return &contracts.PublishResult{PostID: "fake-post"}, nil
}
func (f *fakeAdapter) Delete(ctx context.Context, platformPostID string) error { return f.deleteErr }
func (f *fakeAdapter) Platform() models.Platform                              { return f.platform }

func newPublishedDraft(t *testing.T, s store.Store, approvalSvc *approval.Service) *models.Draft {
	t.Helper()
	d := &models.Draft{ClientID: "acme", Platform: models.PlatformFacebook, Status: models.DraftStatusInReview, Body: "body"}
	if err := s.CreateDraft(context.Background(), d); err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}
	if _, err := approvalSvc.Approve(context.Background(), d.ID, models.ActorOperatorWeb, models.PublishModeAuto, nil); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if _, err := approvalSvc.MarkPublished(context.Background(), d.ID, "platform-post-1", ""); err != nil {
		t.Fatalf("MarkPublished() error = %v", err)
	}
	got, err := s.GetDraft(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetDraft() error = %v", err)
	}
	return got
}

func newTestRig(t *testing.T) (*approval.Service, store.Store) {
	t.Helper()
	os.Setenv("SOPHIA_DATA_DIR", t.TempDir())
	t.Cleanup(func() { os.Unsetenv("SOPHIA_DATA_DIR") })

	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	bus := events.NewBus()
	approvalSvc := approval.NewService(s, bus)
	return approvalSvc, s
}

func TestRecover_SuccessfulDeleteMarksCompletedAndDraftRecovered(t *testing.T) {
	approvalSvc, s := newTestRig(t)
	d := newPublishedDraft(t, s, approvalSvc)

	bus := events.NewBus()
	adapters := map[models.Platform]contracts.PlatformAdapter{
		models.PlatformFacebook: &fakeAdapter{platform: models.PlatformFacebook},
	}
	svc := recovery.New(s, bus, approvalSvc, adapters)

	log, err := svc.Recover(context.Background(), d.ID, "reported by user", models.RecoveryImmediate, models.ActorOperatorWeb)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if log.Status != models.RecoveryCompleted {
		t.Errorf("log.Status = %q, want completed", log.Status)
	}

	got, err := s.GetDraft(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetDraft() error = %v", err)
	}
	if got.Status != models.DraftStatusRecovered {
		t.Errorf("draft.Status = %q, want recovered", got.Status)
	}
}

func TestRecover_UnsupportedPlatformNeedsManualRecovery(t *testing.T) {
	approvalSvc, s := newTestRig(t)
	d := newPublishedDraft(t, s, approvalSvc)

	bus := events.NewBus()
	adapterErr := &contracts.AdapterError{Kind: contracts.AdapterUnsupported, Err: errors.New("instagram does not support delete")}
	adapters := map[models.Platform]contracts.PlatformAdapter{
		models.PlatformFacebook: &fakeAdapter{platform: models.PlatformFacebook, deleteErr: adapterErr},
	}
	svc := recovery.New(s, bus, approvalSvc, adapters)

	log, err := svc.Recover(context.Background(), d.ID, "reported by user", models.RecoveryImmediate, models.ActorOperatorWeb)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if log.Status != models.RecoveryManualRecoveryNeeded {
		t.Errorf("log.Status = %q, want manual_recovery_needed", log.Status)
	}

	got, err := s.GetDraft(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetDraft() error = %v", err)
	}
	if got.Status != models.DraftStatusPublished {
		t.Errorf("draft.Status = %q, want to remain published", got.Status)
	}
}

func TestRecover_NoAdapterRegisteredNeedsManualRecovery(t *testing.T) {
	approvalSvc, s := newTestRig(t)
	d := newPublishedDraft(t, s, approvalSvc)

	bus := events.NewBus()
	svc := recovery.New(s, bus, approvalSvc, map[models.Platform]contracts.PlatformAdapter{})

	log, err := svc.Recover(context.Background(), d.ID, "reported by user", models.RecoveryReview, models.ActorOperatorWeb)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if log.Status != models.RecoveryManualRecoveryNeeded {
		t.Errorf("log.Status = %q, want manual_recovery_needed", log.Status)
	}
}

func TestRecover_FailedDeleteKeepsDraftPublished(t *testing.T) {
	approvalSvc, s := newTestRig(t)
	d := newPublishedDraft(t, s, approvalSvc)

	bus := events.NewBus()
	adapters := map[models.Platform]contracts.PlatformAdapter{
		models.PlatformFacebook: &fakeAdapter{platform: models.PlatformFacebook, deleteErr: errors.New("transient network error")},
	}
	svc := recovery.New(s, bus, approvalSvc, adapters)

	log, err := svc.Recover(context.Background(), d.ID, "reported by user", models.RecoveryImmediate, models.ActorOperatorWeb)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if log.Status != models.RecoveryFailed {
		t.Errorf("log.Status = %q, want failed", log.Status)
	}

	got, err := s.GetDraft(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetDraft() error = %v", err)
	}
	if got.Status != models.DraftStatusPublished {
		t.Errorf("draft.Status = %q, want to remain published", got.Status)
	}
}

func TestRecover_RejectsNonPublishedDraft(t *testing.T) {
	approvalSvc, s := newTestRig(t)
	d := &models.Draft{ClientID: "acme", Platform: models.PlatformFacebook, Status: models.DraftStatusInReview}
	if err := s.CreateDraft(context.Background(), d); err != nil {
		t.Fatalf("CreateDraft() error = %v", err)
	}

	bus := events.NewBus()
	svc := recovery.New(s, bus, approvalSvc, map[models.Platform]contracts.PlatformAdapter{})

	_, err := svc.Recover(context.Background(), d.ID, "reported by user", models.RecoveryImmediate, models.ActorOperatorWeb)
	if err != recovery.ErrInvalidState {
		t.Fatalf("Recover() error = %v, want ErrInvalidState", err)
	}
}

func TestLinkReplacement_SetsReplacementDraftID(t *testing.T) {
	approvalSvc, s := newTestRig(t)
	d := newPublishedDraft(t, s, approvalSvc)

	bus := events.NewBus()
	adapters := map[models.Platform]contracts.PlatformAdapter{
		models.PlatformFacebook: &fakeAdapter{platform: models.PlatformFacebook},
	}
	svc := recovery.New(s, bus, approvalSvc, adapters)

	log, err := svc.Recover(context.Background(), d.ID, "reported by user", models.RecoveryImmediate, models.ActorOperatorWeb)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	updated, err := svc.LinkReplacement(context.Background(), log.ID, "replacement-draft-1")
	if err != nil {
		t.Fatalf("LinkReplacement() error = %v", err)
	}
	if updated.ReplacementDraftID != "replacement-draft-1" {
		t.Errorf("ReplacementDraftID = %q, want replacement-draft-1", updated.ReplacementDraftID)
	}
}
