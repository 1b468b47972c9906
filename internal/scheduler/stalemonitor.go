package scheduler

import (
	"context"
	"time"

	"github.com/NomadonaTrip/sophia/internal/events"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	staleScanInterval    = 30 * time.Minute
	defaultStaleThreshold = 4 * time.Hour
)

// StaleMonitor periodically scans for in_review drafts that have sat
// without operator action past its threshold and publishes a
// content_stale event for each. It never mutates draft state.
type StaleMonitor struct {
	store     store.Store
	bus       *events.Bus
	threshold time.Duration
}

// NewStaleMonitor wires a StaleMonitor against the store and event bus,
// using the default 4-hour staleness threshold.
func NewStaleMonitor(s store.Store, bus *events.Bus) *StaleMonitor {
	return &StaleMonitor{store: s, bus: bus, threshold: defaultStaleThreshold}
}

// WithThreshold overrides the staleness threshold, as configured by
// STALE_THRESHOLD_HOURS.
func (m *StaleMonitor) WithThreshold(d time.Duration) *StaleMonitor {
	if d > 0 {
		m.threshold = d
	}
	return m
}

// Start runs the scan loop until ctx is canceled.
func (m *StaleMonitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", staleScanInterval).
		Dur("threshold", m.threshold).
		Msg("stale content monitor started")

	ticker := time.NewTicker(staleScanInterval)
	defer ticker.Stop()

	m.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stale content monitor stopped")
			return
		case <-ticker.C:
			m.scan(ctx)
		}
	}
}

func (m *StaleMonitor) scan(ctx context.Context) {
	drafts, err := m.store.ListDrafts(ctx, "", store.ListFilter{Status: string(models.DraftStatusInReview)})
	if err != nil {
		log.Warn().Err(err).Msg("stale monitor: failed to list in_review drafts")
		return
	}

	cutoff := time.Now().Add(-m.threshold)
	found := 0
	for _, d := range drafts {
		if d.CreatedAt.Before(cutoff) {
			found++
			hoursStale := time.Since(d.CreatedAt).Hours()
			m.bus.Publish(d.ClientID, models.EventContentStale, map[string]any{
				"draft_id": d.ID, "client_id": d.ClientID, "client_name": d.ClientID, "hours_stale": hoursStale,
			})
		}
	}
	if found > 0 {
		log.Info().Int("stale_count", found).Msg("stale content scan complete")
	}
}
