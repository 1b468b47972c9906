package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/NomadonaTrip/sophia/pkg/contracts"
	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const maxRetries = 3

// fireBackOff implements backoff.BackOff with the exact schedule the
// executor algorithm requires: 2^retry_count * 60s, capped at maxRetries
// attempts. Unlike cenkalti/backoff's own ExponentialBackOff, the delay
// here is never jittered and never grows past the cap — the executor
// reschedules a fire rather than blocking on a sleep, so NextBackOff is
// only ever asked for the delay to reschedule with, never looped on
// internally.
type fireBackOff struct {
	retryCount int
}

func (b *fireBackOff) Reset() { b.retryCount = 0 }

func (b *fireBackOff) NextBackOff() time.Duration {
	if b.retryCount >= maxRetries {
		return backoff.Stop
	}
	b.retryCount++
	return time.Duration(1<<uint(b.retryCount)) * 60 * time.Second
}

// fire executes the per-entry algorithm: load, pause/rate checks, image
// requirement, dispatch, and success/failure bookkeeping.
func (s *Scheduler) fire(ctx context.Context, entryID string) error {
	entry, err := s.store.GetQueueEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.Status != models.QueueEntryQueued {
		return nil // canceled or already processed
	}

	if s.ledger != nil {
		if err := s.ledger.Claim(entry.ID); err != nil {
			log.Warn().Err(err).Str("queue_entry_id", entry.ID).Msg("failed to claim fire lease")
		} else {
			defer func() {
				if err := s.ledger.Release(entry.ID); err != nil {
					log.Warn().Err(err).Str("queue_entry_id", entry.ID).Msg("failed to release fire lease")
				}
			}()
		}
	}

	draft, err := s.store.GetDraft(ctx, entry.DraftID)
	if err != nil {
		return err
	}

	// Step 2: global pause — reschedule without counting as a retry.
	pubState, err := s.store.GetGlobalPublishState(ctx)
	if err == nil && pubState.Paused {
		return s.rescheduleWithoutRetry(ctx, entry.ID, time.Now().Add(60*time.Second))
	}

	// Step 3: rate limit — reschedule without counting as a retry.
	if !s.limiter.Allow(entry.ClientID, entry.Platform) {
		return s.rescheduleWithoutRetry(ctx, entry.ID, nextAvailableSlot(entry.Platform))
	}

	// Step 4: image requirement.
	if requiresImage(entry.Platform, draft) && draft.ImageRef == "" {
		return s.failEntry(ctx, entry, "image_missing")
	}

	// Step 5: mark publishing.
	if _, err := s.store.UpdateQueueEntryAtomic(ctx, entry.ID, func(q *models.QueueEntry) error {
		q.Status = models.QueueEntryPublishing
		return nil
	}); err != nil {
		return err
	}

	// Step 6: dispatch through the adapter with a 30s timeout, behind the
	// platform's circuit breaker.
	adapter, ok := s.adapters[entry.Platform]
	if !ok {
		return s.failEntry(ctx, entry, "no adapter registered for platform")
	}

	// Adapters are not assumed idempotent: if the platform accepts the post
	// but the call times out, the retry path can publish it a second time.
	dispatchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	result, err := s.dispatch(dispatchCtx, adapter, draft, entry)
	if err != nil {
		return s.handleDispatchFailure(ctx, entry, err)
	}

	// Step 7: success.
	if _, err := s.approval.MarkPublished(ctx, draft.ID, result.PostID, result.PostURL); err != nil {
		log.Error().Err(err).Str("draft_id", draft.ID).Msg("failed to transition draft to published after successful dispatch")
	}
	s.limiter.Record(entry.ClientID, entry.Platform)

	if _, err := s.store.UpdateQueueEntryAtomic(ctx, entry.ID, func(q *models.QueueEntry) error {
		q.Status = models.QueueEntryPublished
		q.PlatformPostID = result.PostID
		q.PlatformPostURL = result.PostURL
		return nil
	}); err != nil {
		return err
	}

	s.appendDispatchAudit(ctx, entry, "publish_succeeded", nil)
	if s.metrics != nil {
		s.metrics.RecordDispatch(string(entry.Platform), "success")
	}
	s.bus.Publish(entry.ClientID, models.EventPublishComplete, map[string]any{
		"draft_id": draft.ID, "client_id": entry.ClientID, "platform": string(entry.Platform), "url": result.PostURL,
	})
	return nil
}

// dispatch runs the adapter call through the per-platform circuit breaker.
func (s *Scheduler) dispatch(ctx context.Context, adapter contracts.PlatformAdapter, draft *models.Draft, entry *models.QueueEntry) (*contracts.PublishResult, error) {
	breaker := s.breakers[entry.Platform]
	if breaker == nil {
		return adapter.Publish(ctx, draft, draft.ImageRef)
	}

	out, err := breaker.Execute(func() (any, error) {
		return adapter.Publish(ctx, draft, draft.ImageRef)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &contracts.AdapterError{Kind: contracts.AdapterTransient, Err: err}
		}
		return nil, err
	}
	return out.(*contracts.PublishResult), nil
}

// handleDispatchFailure applies step 8: reschedule under the exact
// 2^retry_count*60s backoff, or fail permanently after maxRetries.
func (s *Scheduler) handleDispatchFailure(ctx context.Context, entry *models.QueueEntry, dispatchErr error) error {
	var adapterErr *contracts.AdapterError
	if errors.As(dispatchErr, &adapterErr) && adapterErr.Kind == contracts.AdapterPermanent {
		return s.failEntryWithMessage(ctx, entry, dispatchErr.Error())
	}

	bo := &fireBackOff{retryCount: entry.RetryCount}
	delay := bo.NextBackOff()

	if delay == backoff.Stop {
		return s.failEntryWithMessage(ctx, entry, dispatchErr.Error())
	}

	updated, err := s.store.UpdateQueueEntryAtomic(ctx, entry.ID, func(q *models.QueueEntry) error {
		q.RetryCount++
		q.Status = models.QueueEntryQueued
		q.ScheduledAt = time.Now().Add(delay)
		q.ErrorMessage = dispatchErr.Error()
		return nil
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordRetry(string(entry.Platform))
	}
	s.appendDispatchAudit(ctx, updated, "publish_retry_scheduled", dispatchErr)
	return nil
}

func (s *Scheduler) failEntry(ctx context.Context, entry *models.QueueEntry, reason string) error {
	return s.failEntryWithMessage(ctx, entry, reason)
}

func (s *Scheduler) failEntryWithMessage(ctx context.Context, entry *models.QueueEntry, message string) error {
	updated, err := s.store.UpdateQueueEntryAtomic(ctx, entry.ID, func(q *models.QueueEntry) error {
		q.Status = models.QueueEntryFailed
		q.ErrorMessage = message
		return nil
	})
	if err != nil {
		return err
	}
	s.appendDispatchAudit(ctx, updated, "publish_failed", errors.New(message))
	if s.metrics != nil {
		s.metrics.RecordDispatch(string(entry.Platform), "failed")
	}
	s.bus.Publish(entry.ClientID, models.EventPublishFailed, map[string]any{
		"draft_id": entry.DraftID, "client_id": entry.ClientID, "platform": string(entry.Platform), "error": message,
	})
	return nil
}

func (s *Scheduler) rescheduleWithoutRetry(ctx context.Context, entryID string, at time.Time) error {
	_, err := s.store.UpdateQueueEntryAtomic(ctx, entryID, func(q *models.QueueEntry) error {
		q.ScheduledAt = at
		return nil
	})
	return err
}

func (s *Scheduler) appendDispatchAudit(ctx context.Context, entry *models.QueueEntry, action string, cause error) {
	after, _ := json.Marshal(entry)
	rec := &models.AuditRecord{
		ClientID:      entry.ClientID,
		Actor:         models.ActorSophiaPublisher,
		Action:        action,
		AfterSnapshot: after,
	}
	if cause != nil {
		rec.Action = action + ": " + cause.Error()
	}
	if err := s.store.AppendAudit(ctx, rec); err != nil {
		log.Warn().Err(err).Str("queue_entry_id", entry.ID).Msg("failed to append dispatch audit record")
	}
}

func requiresImage(platform models.Platform, draft *models.Draft) bool {
	switch platform {
	case models.PlatformInstagram:
		return true
	case models.PlatformFacebook:
		return draft.ImagePrompt != ""
	default:
		return false
	}
}

// nextAvailableSlot is a conservative fallback when the limiter reports no
// capacity: retry one full window of that platform later (1h for
// Facebook, 24h for Instagram, 1h otherwise).
func nextAvailableSlot(platform models.Platform) time.Time {
	switch platform {
	case models.PlatformFacebook:
		return time.Now().Add(time.Hour)
	case models.PlatformInstagram:
		return time.Now().Add(24 * time.Hour)
	default:
		return time.Now().Add(time.Hour)
	}
}
