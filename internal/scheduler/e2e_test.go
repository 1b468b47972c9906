package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/NomadonaTrip/sophia/internal/approval"
	"github.com/NomadonaTrip/sophia/internal/events"
	"github.com/NomadonaTrip/sophia/internal/ratelimit"
	"github.com/NomadonaTrip/sophia/internal/recovery"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/contracts"
	"github.com/NomadonaTrip/sophia/pkg/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// scriptedAdapter replays a fixed sequence of Publish/Delete outcomes, one
// per call, so a scenario can assert on attempt-by-attempt behavior
// (failures then an eventual success, or a fixed Delete outcome).
type scriptedAdapter struct {
	mu          sync.Mutex
	platform    models.Platform
	publishErrs []error
	publishIdx  int
	deleteErr   error
}

func (a *scriptedAdapter) Publish(ctx context.Context, d *models.Draft, imageRef string) (*contracts.PublishResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if a.publishIdx < len(a.publishErrs) {
		err = a.publishErrs[a.publishIdx]
	}
	a.publishIdx++
	if err != nil {
		return nil, err
	}
	return &contracts.PublishResult{PostID: "fb_42", PostURL: "https://fb/.../42"}, nil
}

func (a *scriptedAdapter) Delete(ctx context.Context, platformPostID string) error { return a.deleteErr }
func (a *scriptedAdapter) Platform() models.Platform                              { return a.platform }

type e2eRig struct {
	store    store.Store
	bus      *events.Bus
	approval *approval.Service
	sched    *Scheduler
	recovery *recovery.Service
}

func newE2ERig(adapter contracts.PlatformAdapter, platform models.Platform) e2eRig {
	os.Setenv("SOPHIA_DATA_DIR", mustTempDir())
	s := store.NewMemoryStore()
	DeferCleanup(func() { s.Close() })
	bus := events.NewBus()
	approvalSvc := approval.NewService(s, bus)
	adapters := map[models.Platform]contracts.PlatformAdapter{}
	if adapter != nil {
		adapters[platform] = adapter
	}
	sched := New(s, bus, approvalSvc, ratelimit.New(), nil, adapters)
	approvalSvc.WithScheduler(sched)
	recoverySvc := recovery.New(s, bus, approvalSvc, adapters)
	return e2eRig{store: s, bus: bus, approval: approvalSvc, sched: sched, recovery: recoverySvc}
}

var errUnsupportedDelete = errors.New("instagram does not support post deletion")

func mustTempDir() string {
	dir, err := os.MkdirTemp("", "sophia-e2e-*")
	if err != nil {
		panic(err)
	}
	return dir
}

func drainEvent(ch <-chan models.Event) (models.Event, bool) {
	select {
	case evt := <-ch:
		return evt, true
	case <-time.After(time.Second):
		return models.Event{}, false
	}
}

var _ = Describe("happy path, auto publish", func() {
	It("publishes a draft straight through to published", func() {
		rig := newE2ERig(&scriptedAdapter{platform: models.PlatformFacebook}, models.PlatformFacebook)
		ctx := context.Background()
		sub, err := rig.bus.Subscribe("client-7")
		Expect(err).NotTo(HaveOccurred())

		t0 := time.Now().Add(time.Hour).UTC()
		d := &models.Draft{ClientID: "client-7", Platform: models.PlatformFacebook, Status: models.DraftStatusDraft, SuggestedAt: t0}
		Expect(rig.store.CreateDraft(ctx, d)).To(Succeed())

		// Intake: the draft arrives in state draft and is moved to review.
		_, err = rig.approval.Transition(ctx, d.ID, models.DraftStatusInReview, models.ActorOperatorWeb, approval.Kwargs{})
		Expect(err).NotTo(HaveOccurred())
		_, ok := drainEvent(sub) // the intake's approval_changed
		Expect(ok).To(BeTrue())

		updated, err := rig.approval.Approve(ctx, d.ID, models.ActorOperatorWeb, models.PublishModeAuto, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Status).To(Equal(models.DraftStatusApproved))

		entry, err := rig.store.GetQueueEntryByDraft(ctx, d.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(entry.ScheduledAt).To(BeTemporally("==", t0))

		Expect(rig.sched.fire(ctx, entry.ID)).To(Succeed())

		finalDraft, err := rig.store.GetDraft(ctx, d.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(finalDraft.Status).To(Equal(models.DraftStatusPublished))

		finalEntry, err := rig.store.GetQueueEntry(ctx, entry.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(finalEntry.Status).To(Equal(models.QueueEntryPublished))

		audit, err := rig.store.ListAudit(ctx, "client-7", store.ListFilter{})
		Expect(err).NotTo(HaveOccurred())
		var actions []string
		for _, a := range audit {
			actions = append(actions, a.Action)
		}
		Expect(actions).To(ContainElement("transition:draft->in_review"))
		Expect(actions).To(ContainElement("transition:in_review->approved"))
		Expect(actions).To(ContainElement("transition:approved->published"))

		approvedEvt, ok := drainEvent(sub)
		Expect(ok).To(BeTrue())
		Expect(approvedEvt.Type).To(Equal(models.EventApprovalChanged))

		publishedEvt, ok := drainEvent(sub)
		Expect(ok).To(BeTrue())
		Expect(publishedEvt.Type).To(Equal(models.EventPublishComplete))
		Expect(publishedEvt.Payload["draft_id"]).To(Equal(d.ID))
		Expect(publishedEvt.Payload["client_id"]).To(Equal("client-7"))
		Expect(publishedEvt.Payload["platform"]).To(Equal(string(models.PlatformFacebook)))
		Expect(publishedEvt.Payload["url"]).To(Equal("https://fb/.../42"))

		// Exactly one publish_complete per dispatch: no duplicate from the
		// approval transition itself.
		_, ok = drainEvent(sub)
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("retry then success", func() {
	It("retries transiently-failing dispatches and eventually publishes", func() {
		adapter := &scriptedAdapter{
			platform: models.PlatformFacebook,
			publishErrs: []error{
				&contracts.AdapterError{Kind: contracts.AdapterTransient, Err: context.DeadlineExceeded},
				&contracts.AdapterError{Kind: contracts.AdapterTransient, Err: context.DeadlineExceeded},
				nil,
			},
		}
		rig := newE2ERig(adapter, models.PlatformFacebook)
		ctx := context.Background()

		d := &models.Draft{ClientID: "client-7", Platform: models.PlatformFacebook, Status: models.DraftStatusInReview, SuggestedAt: time.Now()}
		Expect(rig.store.CreateDraft(ctx, d)).To(Succeed())
		_, err := rig.approval.Approve(ctx, d.ID, models.ActorOperatorWeb, models.PublishModeAuto, nil)
		Expect(err).NotTo(HaveOccurred())
		entry, err := rig.store.GetQueueEntryByDraft(ctx, d.ID)
		Expect(err).NotTo(HaveOccurred())

		Expect(rig.sched.fire(ctx, entry.ID)).To(Succeed())
		afterFirst, err := rig.store.GetQueueEntry(ctx, entry.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(afterFirst.RetryCount).To(Equal(1))
		Expect(afterFirst.Status).To(Equal(models.QueueEntryQueued))

		Expect(rig.sched.fire(ctx, entry.ID)).To(Succeed())
		afterSecond, err := rig.store.GetQueueEntry(ctx, entry.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(afterSecond.RetryCount).To(Equal(2))
		Expect(afterSecond.Status).To(Equal(models.QueueEntryQueued))

		Expect(rig.sched.fire(ctx, entry.ID)).To(Succeed())
		final, err := rig.store.GetQueueEntry(ctx, entry.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(final.Status).To(Equal(models.QueueEntryPublished))

		finalDraft, err := rig.store.GetDraft(ctx, d.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(finalDraft.Status).To(Equal(models.DraftStatusPublished))
	})
})

var _ = Describe("retry exhaustion", func() {
	It("fails the entry after three retries without ever publishing", func() {
		transientErr := &contracts.AdapterError{Kind: contracts.AdapterTransient, Err: context.DeadlineExceeded}
		adapter := &scriptedAdapter{
			platform:    models.PlatformFacebook,
			publishErrs: []error{transientErr, transientErr, transientErr, transientErr},
		}
		rig := newE2ERig(adapter, models.PlatformFacebook)
		ctx := context.Background()

		d := &models.Draft{ClientID: "client-7", Platform: models.PlatformFacebook, Status: models.DraftStatusInReview, SuggestedAt: time.Now()}
		Expect(rig.store.CreateDraft(ctx, d)).To(Succeed())
		_, err := rig.approval.Approve(ctx, d.ID, models.ActorOperatorWeb, models.PublishModeAuto, nil)
		Expect(err).NotTo(HaveOccurred())
		entry, err := rig.store.GetQueueEntryByDraft(ctx, d.ID)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 3; i++ {
			Expect(rig.sched.fire(ctx, entry.ID)).To(Succeed())
		}
		afterThree, err := rig.store.GetQueueEntry(ctx, entry.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(afterThree.RetryCount).To(Equal(3))
		Expect(afterThree.Status).To(Equal(models.QueueEntryQueued))

		Expect(rig.sched.fire(ctx, entry.ID)).To(Succeed())
		final, err := rig.store.GetQueueEntry(ctx, entry.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(final.Status).To(Equal(models.QueueEntryFailed))

		finalDraft, err := rig.store.GetDraft(ctx, d.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(finalDraft.Status).To(Equal(models.DraftStatusApproved))
	})
})

var _ = Describe("race on approval", func() {
	It("lets exactly one of two concurrent approvals win", func() {
		rig := newE2ERig(&scriptedAdapter{platform: models.PlatformFacebook}, models.PlatformFacebook)
		ctx := context.Background()

		d := &models.Draft{ClientID: "client-7", Platform: models.PlatformFacebook, Status: models.DraftStatusInReview, SuggestedAt: time.Now()}
		Expect(rig.store.CreateDraft(ctx, d)).To(Succeed())

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		for i := 0; i < 2; i++ {
			i := i
			go func() {
				defer wg.Done()
				_, errs[i] = rig.approval.Approve(ctx, d.ID, models.ActorOperatorWeb, models.PublishModeAuto, nil)
			}()
		}
		wg.Wait()

		successes := 0
		for _, e := range errs {
			if e == nil {
				successes++
			}
		}
		Expect(successes).To(Equal(1))

		entries, err := rig.store.ListQueueEntries(ctx, "client-7", store.ListFilter{})
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
	})
})

var _ = Describe("recovery with supported delete", func() {
	It("marks the draft recovered and the recovery log completed", func() {
		rig := newE2ERig(&scriptedAdapter{platform: models.PlatformFacebook}, models.PlatformFacebook)
		ctx := context.Background()

		d := &models.Draft{ClientID: "client-7", Platform: models.PlatformFacebook, Status: models.DraftStatusPublished}
		Expect(rig.store.CreateDraft(ctx, d)).To(Succeed())
		qe := &models.QueueEntry{DraftID: d.ID, ClientID: d.ClientID, Platform: d.Platform, Status: models.QueueEntryPublished, PlatformPostID: "fb_42"}
		Expect(rig.store.CreateQueueEntry(ctx, qe)).To(Succeed())

		log, err := rig.recovery.Recover(ctx, d.ID, "takedown", models.RecoveryImmediate, models.ActorOperatorWeb)
		Expect(err).NotTo(HaveOccurred())
		Expect(log.Status).To(Equal(models.RecoveryCompleted))

		final, err := rig.store.GetDraft(ctx, d.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(final.Status).To(Equal(models.DraftStatusRecovered))
	})
})

var _ = Describe("recovery with unsupported platform", func() {
	It("leaves the draft published and asks for manual recovery", func() {
		adapter := &scriptedAdapter{platform: models.PlatformInstagram, deleteErr: &contracts.AdapterError{Kind: contracts.AdapterUnsupported, Err: errUnsupportedDelete}}
		rig := newE2ERig(adapter, models.PlatformInstagram)
		ctx := context.Background()

		d := &models.Draft{ClientID: "client-7", Platform: models.PlatformInstagram, Status: models.DraftStatusPublished}
		Expect(rig.store.CreateDraft(ctx, d)).To(Succeed())
		qe := &models.QueueEntry{DraftID: d.ID, ClientID: d.ClientID, Platform: d.Platform, Status: models.QueueEntryPublished, PlatformPostID: "ig_99"}
		Expect(rig.store.CreateQueueEntry(ctx, qe)).To(Succeed())

		log, err := rig.recovery.Recover(ctx, d.ID, "takedown", models.RecoveryReview, models.ActorOperatorWeb)
		Expect(err).NotTo(HaveOccurred())
		Expect(log.Status).To(Equal(models.RecoveryManualRecoveryNeeded))

		final, err := rig.store.GetDraft(ctx, d.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(final.Status).To(Equal(models.DraftStatusPublished))
	})
})
