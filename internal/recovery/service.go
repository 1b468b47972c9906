// Package recovery implements the post-publish takedown service (C6):
// it removes a published post from its platform, archives the action in
// a RecoveryLog, and hands the draft back to the approval service.
package recovery

import (
	"context"
	"errors"

	"github.com/NomadonaTrip/sophia/internal/approval"
	"github.com/NomadonaTrip/sophia/internal/events"
	"github.com/NomadonaTrip/sophia/internal/metrics"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/contracts"
	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrInvalidState is returned when recover is called on a draft that is
// not currently published.
var ErrInvalidState = errors.New("draft is not in published state")

// Service executes takedowns.
type Service struct {
	store    store.Store
	bus      *events.Bus
	approval *approval.Service
	adapters map[models.Platform]contracts.PlatformAdapter
	metrics  *metrics.Metrics
}

// New wires a recovery Service.
func New(s store.Store, bus *events.Bus, approvalSvc *approval.Service, adapters map[models.Platform]contracts.PlatformAdapter) *Service {
	return &Service{store: s, bus: bus, approval: approvalSvc, adapters: adapters}
}

// WithMetrics attaches Prometheus instrumentation.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// Recover executes the 7-step takedown algorithm for draftID.
func (s *Service) Recover(ctx context.Context, draftID, reason string, urgency models.RecoveryUrgency, actor models.Actor) (*models.RecoveryLog, error) {
	// Step 1: load draft, require published.
	draft, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftStatusPublished {
		return nil, ErrInvalidState
	}

	qe, err := s.store.GetQueueEntryByDraft(ctx, draftID)
	platformPostID := ""
	if err == nil {
		platformPostID = qe.PlatformPostID
	}

	// Step 2: create RecoveryLog in pending.
	recLog := &models.RecoveryLog{
		DraftID:        draftID,
		ClientID:       draft.ClientID,
		Platform:       draft.Platform,
		PlatformPostID: platformPostID,
		Urgency:        urgency,
		Reason:         reason,
		Status:         models.RecoveryPending,
		Actor:          actor,
	}
	if err := s.store.CreateRecoveryLog(ctx, recLog); err != nil {
		return nil, err
	}

	// Step 3: dispatch delete.
	adapter, ok := s.adapters[draft.Platform]
	if !ok {
		return s.markStatus(ctx, recLog, draft, models.RecoveryManualRecoveryNeeded)
	}

	deleteErr := adapter.Delete(ctx, platformPostID)
	var adapterErr *contracts.AdapterError
	switch {
	case deleteErr == nil:
		// Step 4: successful delete — transition draft, complete log.
		if _, err := s.approval.MarkRecovered(ctx, draftID, actor); err != nil {
			log.Error().Err(err).Str("draft_id", draftID).Msg("failed to transition draft to recovered after successful takedown")
		}
		return s.markStatus(ctx, recLog, draft, models.RecoveryCompleted)

	case errors.As(deleteErr, &adapterErr) && adapterErr.Kind == contracts.AdapterUnsupported:
		// Step 3 continued: unsupported delete — instruct operator out of band.
		return s.markStatus(ctx, recLog, draft, models.RecoveryManualRecoveryNeeded)

	default:
		// Step 5: failed delete — draft stays published, post still live.
		log.Warn().Err(deleteErr).Str("draft_id", draftID).Msg("platform delete failed, draft remains published")
		return s.markStatus(ctx, recLog, draft, models.RecoveryFailed)
	}
}

// markStatus completes steps 6 and 7: persist the final status, publish
// recovery_complete unconditionally, and surface the replacement-draft
// offer in the event payload.
func (s *Service) markStatus(ctx context.Context, recLog *models.RecoveryLog, draft *models.Draft, status models.RecoveryStatus) (*models.RecoveryLog, error) {
	updated, err := s.store.UpdateRecoveryLogAtomic(ctx, recLog.ID, func(r *models.RecoveryLog) error {
		r.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordRecovery(string(status))
	}

	s.bus.Publish(draft.ClientID, models.EventRecoveryComplete, map[string]any{
		"draft_id":              draft.ID,
		"client_id":             draft.ClientID,
		"status":                string(status),
		"recovery_log_id":       updated.ID,
		"offer_replacement_for": draft.ID,
	})
	return updated, nil
}

// LinkReplacement records the replacement draft submitted in response to
// a recovery, once the external generation pipeline produces one.
func (s *Service) LinkReplacement(ctx context.Context, recoveryLogID, replacementDraftID string) (*models.RecoveryLog, error) {
	return s.store.UpdateRecoveryLogAtomic(ctx, recoveryLogID, func(r *models.RecoveryLog) error {
		r.ReplacementDraftID = replacementDraftID
		return nil
	})
}
