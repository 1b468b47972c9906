package approval

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/NomadonaTrip/sophia/internal/events"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrInvalidTransition is returned when the requested status change is not
// present in the transition table.
var ErrInvalidTransition = errors.New("invalid transition")

// Kwargs carries the optional arguments a transition may apply to the
// draft before committing. Not every transition uses every field.
type Kwargs struct {
	EditedCopy     string
	CustomPostTime *time.Time
	PublishMode    models.PublishMode
	Tags           []string
	Guidance       string
	PlatformPostID string
	PlatformPostURL string
}

// Scheduler creates a cadence-adjusted queue entry for a freshly-approved
// draft. It is satisfied by *scheduler.Scheduler; Service depends on this
// narrow interface instead of importing internal/scheduler directly, since
// the scheduler package already imports approval to call MarkPublished.
type Scheduler interface {
	Schedule(ctx context.Context, draft *models.Draft, platform models.Platform, publishAt time.Time) (*models.QueueEntry, error)
}

// Service is the sole owner of draft status mutation. All other components
// — the scheduler, the recovery service, the HTTP handlers, the bot and
// CLI fronts — go through Service rather than writing drafts directly.
type Service struct {
	store     store.Store
	bus       *events.Bus
	scheduler Scheduler
}

// NewService wires a Service against its store and event bus.
func NewService(s store.Store, bus *events.Bus) *Service {
	return &Service{store: s, bus: bus}
}

// WithScheduler attaches the cadence-aware scheduler used to create queue
// entries when an approval auto-publishes. Without one, Transition falls
// back to creating the queue entry directly with no cadence adjustment —
// the behavior tests that don't care about cadence rely on.
func (s *Service) WithScheduler(sched Scheduler) *Service {
	s.scheduler = sched
	return s
}

// Transition validates and applies a single draft status change. The draft
// and its audit record land in one atomic store operation. Queue-entry
// writes are not part of that operation: the entry for an auto-publish
// approval is created, and a re-edited draft's entry is paused, in
// separate store calls after the draft commit, and a failure there is
// logged without undoing the transition. The event publish happens last
// and is advisory only.
func (s *Service) Transition(ctx context.Context, draftID string, target models.DraftStatus, actor models.Actor, kw Kwargs) (*models.Draft, error) {
	var before models.Draft
	var createQueueEntries bool

	updated, err := s.store.UpdateDraftAtomic(ctx, draftID, func(d *models.Draft) (*models.AuditRecord, error) {
		before = *d

		// An edit to a draft already in review stays in review.
		inPlaceEdit := d.Status == models.DraftStatusInReview && target == models.DraftStatusInReview
		if !isValidTransition(d.Status, target) && !inPlaceEdit {
			return nil, ErrInvalidTransition
		}

		beforeSnap, _ := json.Marshal(before)

		switch target {
		case models.DraftStatusInReview:
			// Intake, in-place edit of an in_review draft, re-edit of an
			// approved draft, or resubmission after rejection/skip/recovery
			// — apply any supplied edits.
			if kw.EditedCopy != "" {
				d.Body = kw.EditedCopy
				d.EditHistory = append(d.EditHistory, models.DraftEdit{
					At: time.Now().UTC(), By: string(actor), NewCopy: kw.EditedCopy, NewTime: kw.CustomPostTime,
				})
			}
			if kw.CustomPostTime != nil {
				d.CustomPostTime = kw.CustomPostTime
			}
		case models.DraftStatusApproved:
			now := time.Now().UTC()
			d.ApprovedAt = &now
			d.ApprovedBy = string(actor)
			if kw.PublishMode != "" {
				d.PublishMode = kw.PublishMode
			}
			if kw.CustomPostTime != nil {
				d.CustomPostTime = kw.CustomPostTime
			}
			if d.PublishMode != models.PublishModeManual {
				createQueueEntries = true
			}
		case models.DraftStatusRejected:
			// tags/guidance are not stored: neither the draft nor the
			// audit record has a field for them
		case models.DraftStatusSkipped:
			// no field changes
		case models.DraftStatusPublished:
			if kw.PlatformPostID != "" {
				// populated by the executor when dispatch succeeds
			}
		case models.DraftStatusRecovered:
			// recovery service owns RecoveryLog; draft just flips status
		}

		d.Status = target
		afterSnap, _ := json.Marshal(d)

		return &models.AuditRecord{
			ClientID:       d.ClientID,
			Actor:          actor,
			Action:         "transition:" + string(before.Status) + "->" + string(target),
			BeforeSnapshot: beforeSnap,
			AfterSnapshot:  afterSnap,
		}, nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	// Edit on an approved draft forces it back to in_review and cancels
	// the pending queue entry.
	if before.Status == models.DraftStatusApproved && target == models.DraftStatusInReview {
		if qe, qerr := s.store.GetQueueEntryByDraft(ctx, draftID); qerr == nil {
			if _, cerr := s.store.UpdateQueueEntryAtomic(ctx, qe.ID, func(q *models.QueueEntry) error {
				q.Status = models.QueueEntryPaused
				return nil
			}); cerr != nil {
				log.Warn().Err(cerr).Str("draft_id", draftID).Msg("failed to pause queue entry on re-edit")
			}
		}
	}

	if createQueueEntries {
		if s.scheduler != nil {
			// Routes through cadence enforcement (min spacing, weekly
			// ceiling, preferred window) before the entry is created.
			if _, err := s.scheduler.Schedule(ctx, updated, updated.Platform, scheduledAt(updated)); err != nil {
				log.Error().Err(err).Str("draft_id", draftID).Msg("failed to schedule queue entry on approval")
			}
		} else {
			entry := &models.QueueEntry{
				DraftID:     updated.ID,
				ClientID:    updated.ClientID,
				Platform:    updated.Platform,
				ScheduledAt: scheduledAt(updated),
				PublishMode: updated.PublishMode,
				Status:      models.QueueEntryQueued,
			}
			if err := s.store.CreateQueueEntry(ctx, entry); err != nil {
				log.Error().Err(err).Str("draft_id", draftID).Msg("failed to create queue entry on approval")
			}
		}
	}

	s.publishForTransition(updated, target)
	return updated, nil
}

func scheduledAt(d *models.Draft) time.Time {
	if d.CustomPostTime != nil {
		return *d.CustomPostTime
	}
	if !d.SuggestedAt.IsZero() {
		return d.SuggestedAt
	}
	return time.Now().UTC()
}

// publishForTransition announces the reviewable status changes Service
// itself owns end to end. publish_complete and recovery_complete are
// deliberately excluded here: those belong to whichever caller actually
// drove the draft to published/recovered (the executor for auto-publish,
// ManualPublishConfirm for manual, the recovery service for takedowns),
// since only the caller knows the platform post URL or recovery outcome
// that belongs in the event payload.
func (s *Service) publishForTransition(d *models.Draft, target models.DraftStatus) {
	if s.bus == nil {
		return
	}
	switch target {
	case models.DraftStatusApproved, models.DraftStatusRejected, models.DraftStatusSkipped, models.DraftStatusInReview:
		s.bus.Publish(d.ClientID, models.EventApprovalChanged, map[string]any{
			"draft_id": d.ID, "status": string(target),
		})
	}
}

// ── Convenience wrappers ─────────────────────────────────────

// Approve transitions an in_review draft to approved.
func (s *Service) Approve(ctx context.Context, draftID string, actor models.Actor, publishMode models.PublishMode, customPostTime *time.Time) (*models.Draft, error) {
	return s.Transition(ctx, draftID, models.DraftStatusApproved, actor, Kwargs{PublishMode: publishMode, CustomPostTime: customPostTime})
}

// Reject transitions an in_review draft to rejected. The tags and guidance
// are accepted but not persisted; only the status change is audited.
func (s *Service) Reject(ctx context.Context, draftID string, actor models.Actor, tags []string, guidance string) (*models.Draft, error) {
	return s.Transition(ctx, draftID, models.DraftStatusRejected, actor, Kwargs{Tags: tags, Guidance: guidance})
}

// Edit applies a copy/schedule edit. If the draft is currently approved,
// this forces it back to in_review and cancels its queue entry; if the
// draft is already in_review, the edit applies in place.
func (s *Service) Edit(ctx context.Context, draftID string, actor models.Actor, newCopy string, customPostTime *time.Time) (*models.Draft, error) {
	current, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	target := models.DraftStatusInReview
	if current.Status != models.DraftStatusApproved && current.Status != models.DraftStatusInReview {
		return nil, ErrInvalidTransition
	}
	return s.Transition(ctx, draftID, target, actor, Kwargs{EditedCopy: newCopy, CustomPostTime: customPostTime})
}

// Skip transitions an in_review draft to skipped.
func (s *Service) Skip(ctx context.Context, draftID string, actor models.Actor) (*models.Draft, error) {
	return s.Transition(ctx, draftID, models.DraftStatusSkipped, actor, Kwargs{})
}

// ManualPublishConfirm treats operator-confirmed manual publication as an
// approved → published transition with no platform dispatch. Since no
// adapter ran, there is no platform_post_id/url to record; Service still
// owns announcing the completion, as it's the only caller on this path.
func (s *Service) ManualPublishConfirm(ctx context.Context, draftID string, actor models.Actor) (*models.Draft, error) {
	updated, err := s.Transition(ctx, draftID, models.DraftStatusPublished, actor, Kwargs{})
	if err != nil {
		return nil, err
	}
	if s.bus != nil {
		s.bus.Publish(updated.ClientID, models.EventPublishComplete, map[string]any{
			"draft_id": updated.ID, "client_id": updated.ClientID, "platform": string(updated.Platform), "url": "",
		})
	}
	return updated, nil
}

// MarkPublished is called by the executor (C5) after a successful platform
// dispatch, with actor sophia:publisher and the platform's returned post
// identity.
func (s *Service) MarkPublished(ctx context.Context, draftID, platformPostID, platformPostURL string) (*models.Draft, error) {
	return s.Transition(ctx, draftID, models.DraftStatusPublished, models.ActorSophiaPublisher, Kwargs{
		PlatformPostID: platformPostID, PlatformPostURL: platformPostURL,
	})
}

// MarkRecovered is called by the recovery service (C6) once a takedown
// succeeds.
func (s *Service) MarkRecovered(ctx context.Context, draftID string, actor models.Actor) (*models.Draft, error) {
	return s.Transition(ctx, draftID, models.DraftStatusRecovered, actor, Kwargs{})
}
