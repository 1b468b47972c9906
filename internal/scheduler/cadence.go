package scheduler

import (
	"context"
	"time"

	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/contracts"
	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/expr-lang/expr"
	"github.com/rs/zerolog/log"
)

// enforceCadence pushes candidate forward until it satisfies both the
// client's minimum spacing and its weekly ceiling for platform, then
// (if the client configured a preferred-window expression) nudges within
// that constraint-satisfying region toward the preferred slot. Cadence is
// never violated to honor a preference — the expression only breaks ties.
func enforceCadence(ctx context.Context, s store.Store, clients contracts.ClientRepository, clientID string, platform models.Platform, candidate time.Time) time.Time {
	if clients == nil {
		return candidate
	}
	cadence, err := clients.GetCadence(ctx, clientID)
	if err != nil || cadence == nil {
		return candidate
	}

	slot := candidate
	for i := 0; i < 168; i++ { // bounded search: at most one week of hourly nudges
		if satisfiesSpacing(ctx, s, clientID, platform, slot, cadence) && satisfiesWeeklyCeiling(ctx, s, clientID, platform, slot, cadence) {
			break
		}
		slot = slot.Add(time.Hour)
	}

	preferred := preferWithinWindow(slot, cadence)
	if satisfiesSpacing(ctx, s, clientID, platform, preferred, cadence) && satisfiesWeeklyCeiling(ctx, s, clientID, platform, preferred, cadence) {
		return preferred
	}
	return slot
}

func satisfiesSpacing(ctx context.Context, s store.Store, clientID string, platform models.Platform, candidate time.Time, cadence *models.Cadence) bool {
	if cadence.MinHoursBetweenPosts <= 0 {
		return true
	}
	entries, err := s.ListQueueEntries(ctx, clientID, store.ListFilter{Platform: platform})
	if err != nil {
		return true
	}
	minGap := time.Duration(cadence.MinHoursBetweenPosts * float64(time.Hour))
	for _, e := range entries {
		if e.Status == models.QueueEntryQueued || e.Status == models.QueueEntryPublished {
			if absDuration(candidate.Sub(e.ScheduledAt)) < minGap {
				return false
			}
		}
	}
	return true
}

func satisfiesWeeklyCeiling(ctx context.Context, s store.Store, clientID string, platform models.Platform, candidate time.Time, cadence *models.Cadence) bool {
	ceiling, ok := cadence.PostsPerWeekPerPlatform[platform]
	if !ok || ceiling <= 0 {
		return true
	}
	entries, err := s.ListQueueEntries(ctx, clientID, store.ListFilter{Platform: platform})
	if err != nil {
		return true
	}
	weekStart := candidate.AddDate(0, 0, -7)
	count := 0
	for _, e := range entries {
		if (e.Status == models.QueueEntryQueued || e.Status == models.QueueEntryPublished) &&
			e.ScheduledAt.After(weekStart) && e.ScheduledAt.Before(candidate.AddDate(0, 0, 7)) {
			count++
		}
	}
	return count < ceiling
}

// preferWithinWindow evaluates the client's optional preferred-window
// expression against the candidate slot's hour and weekday. If the
// expression evaluates false, the slot is nudged forward an hour at a
// time (bounded to one day) until it matches or the bound is hit. Cadence
// constraints are not checked here; enforceCadence re-checks the nudged
// slot and keeps the un-nudged one if the nudge breaks either constraint.
func preferWithinWindow(slot time.Time, cadence *models.Cadence) time.Time {
	if cadence.PreferredWindowExpr == "" {
		return slot
	}

	for i := 0; i < 24; i++ {
		env := map[string]any{
			"hour":    slot.Hour(),
			"weekday": slot.Weekday().String(),
		}
		ok, err := expr.Eval(cadence.PreferredWindowExpr, env)
		if err != nil {
			log.Warn().Err(err).Str("expr", cadence.PreferredWindowExpr).Msg("invalid preferred_window_expr, ignoring")
			return slot
		}
		if match, _ := ok.(bool); match {
			return slot
		}
		slot = slot.Add(time.Hour)
	}
	return slot
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
