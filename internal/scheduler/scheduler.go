// Package scheduler fires queue entries at their scheduled time, enforces
// per-client cadence, dispatches through platform adapters with retry,
// and scans for stale in_review drafts.
package scheduler

import (
	"context"
	"time"

	"github.com/NomadonaTrip/sophia/internal/approval"
	"github.com/NomadonaTrip/sophia/internal/events"
	"github.com/NomadonaTrip/sophia/internal/metrics"
	"github.com/NomadonaTrip/sophia/internal/ratelimit"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/contracts"
	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

const (
	// pollInterval is how often the scheduler checks for due entries.
	// Fine-grained enough that the 60s backoff base actually fires close
	// to on time.
	pollInterval = 10 * time.Second

	workerPoolSize = 8

	dispatchTimeout = 30 * time.Second
)

// Scheduler maintains the fire loop over due queue entries.
type Scheduler struct {
	store    store.Store
	bus      *events.Bus
	approval *approval.Service
	limiter  *ratelimit.Limiter
	clients  contracts.ClientRepository
	adapters map[models.Platform]contracts.PlatformAdapter
	breakers map[models.Platform]*gobreaker.CircuitBreaker

	// ledger is optional: when set, fire claims a lease before dispatch
	// and releases it after, so a crash mid-dispatch leaves a
	// reclaimable trace instead of a queue entry stuck in "publishing"
	// forever.
	ledger *store.SchedulerLedger

	// metrics is optional; a nil metrics leaves every recording call a
	// no-op rather than requiring callers to guard on whether metrics are
	// enabled.
	metrics *metrics.Metrics
}

// WithLedger attaches a SchedulerLedger for crash-safe fire leasing.
func (s *Scheduler) WithLedger(l *store.SchedulerLedger) *Scheduler {
	s.ledger = l
	return s
}

// WithMetrics attaches Prometheus instrumentation.
func (s *Scheduler) WithMetrics(m *metrics.Metrics) *Scheduler {
	s.metrics = m
	return s
}

// New wires a Scheduler with one adapter per supported platform. Each
// adapter dispatch runs behind its own circuit breaker so a platform
// outage fails fast instead of exhausting the worker pool on timeouts.
func New(s store.Store, bus *events.Bus, approvalSvc *approval.Service, limiter *ratelimit.Limiter, clients contracts.ClientRepository, adapters map[models.Platform]contracts.PlatformAdapter) *Scheduler {
	breakers := make(map[models.Platform]*gobreaker.CircuitBreaker, len(adapters))
	for platform := range adapters {
		p := platform
		breakers[p] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "adapter:" + string(p),
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}

	return &Scheduler{
		store:    s,
		bus:      bus,
		approval: approvalSvc,
		limiter:  limiter,
		clients:  clients,
		adapters: adapters,
		breakers: breakers,
	}
}

// Start runs the fire loop until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().
		Dur("poll_interval", pollInterval).
		Int("workers", workerPoolSize).
		Msg("scheduler started")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle fires every due entry through the bounded worker pool. A
// single fire's failure is reported as a publish_failed event, not group
// fatal — it never cancels sibling fires.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.reclaimStalePublishing(ctx)

	due, err := s.store.ListDueQueueEntries(ctx, time.Now().UTC())
	if err != nil {
		log.Warn().Err(err).Msg("scheduler: failed to list due queue entries")
		return
	}
	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerPoolSize)

	for i := range due {
		entryID := due[i].ID
		g.Go(func() error {
			if err := s.fire(gctx, entryID); err != nil {
				log.Warn().Err(err).Str("queue_entry_id", entryID).Msg("fire failed")
			}
			return nil // never abort siblings
		})
	}
	_ = g.Wait()
}

// publishingLeaseTimeout bounds how long a "publishing" entry is left
// alone before its lease is presumed dead and the entry is reclaimed.
const publishingLeaseTimeout = 2 * dispatchTimeout

// reclaimStalePublishing resets queue entries stuck in "publishing" back
// to "queued" once their fire lease has expired, so a process crash
// mid-dispatch doesn't strand an entry permanently. A no-op when no
// ledger is attached.
func (s *Scheduler) reclaimStalePublishing(ctx context.Context) {
	if s.ledger == nil {
		return
	}
	stuck, err := s.store.ListQueueEntries(ctx, "", store.ListFilter{Status: string(models.QueueEntryPublishing)})
	if err != nil {
		log.Warn().Err(err).Msg("scheduler: failed to list publishing entries for reclaim")
		return
	}
	for _, entry := range stuck {
		stale, err := s.ledger.Stale(entry.ID, publishingLeaseTimeout)
		if err != nil {
			log.Warn().Err(err).Str("queue_entry_id", entry.ID).Msg("scheduler: failed to check fire lease")
			continue
		}
		if !stale {
			continue
		}
		if _, err := s.store.UpdateQueueEntryAtomic(ctx, entry.ID, func(q *models.QueueEntry) error {
			q.Status = models.QueueEntryQueued
			return nil
		}); err != nil {
			log.Warn().Err(err).Str("queue_entry_id", entry.ID).Msg("scheduler: failed to reclaim stuck entry")
			continue
		}
		log.Warn().Str("queue_entry_id", entry.ID).Msg("reclaimed queue entry stuck in publishing after crash")
	}
}

// Schedule creates a queue entry for draft on platform at publishAt (or the
// draft's suggested time if zero), adjusted forward to satisfy cadence.
func (s *Scheduler) Schedule(ctx context.Context, draft *models.Draft, platform models.Platform, publishAt time.Time) (*models.QueueEntry, error) {
	if publishAt.IsZero() {
		publishAt = draft.SuggestedAt
	}
	publishAt = enforceCadence(ctx, s.store, s.clients, draft.ClientID, platform, publishAt)

	entry := &models.QueueEntry{
		DraftID:     draft.ID,
		ClientID:    draft.ClientID,
		Platform:    platform,
		ScheduledAt: publishAt,
		PublishMode: draft.PublishMode,
		Status:      models.QueueEntryQueued,
	}
	if err := s.store.CreateQueueEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Cancel transitions entry to paused.
func (s *Scheduler) Cancel(ctx context.Context, entryID string) error {
	_, err := s.store.UpdateQueueEntryAtomic(ctx, entryID, func(q *models.QueueEntry) error {
		q.Status = models.QueueEntryPaused
		return nil
	})
	return err
}

// PauseAll halts dispatch without stopping new entries from being
// scheduled.
func (s *Scheduler) PauseAll(ctx context.Context, actor string) error {
	now := time.Now().UTC()
	return s.store.SetGlobalPublishState(ctx, &models.GlobalPublishState{Paused: true, PausedBy: actor, PausedAt: &now})
}

// ResumeAll resumes dispatch.
func (s *Scheduler) ResumeAll(ctx context.Context) error {
	return s.store.SetGlobalPublishState(ctx, &models.GlobalPublishState{Paused: false})
}
