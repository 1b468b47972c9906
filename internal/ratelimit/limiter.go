// Package ratelimit enforces per-client, per-platform publish ceilings:
// a sliding window of successful publishes that the scheduler consults
// before dispatching a queue entry.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/models"
)

// window describes one platform's rate ceiling.
type window struct {
	duration time.Duration
	max      int
}

// defaultWindows are the fixed per-platform ceilings.
var defaultWindows = map[models.Platform]window{
	models.PlatformFacebook:  {duration: time.Hour, max: 200},
	models.PlatformInstagram: {duration: 24 * time.Hour, max: 25},
}

// Limiter tracks recent publish timestamps per (client, platform) and
// answers whether another publish is currently allowed.
type Limiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time // key: clientID + ":" + platform
}

// New creates an empty Limiter. Call Warm to rebuild state from store
// history after a restart.
func New() *Limiter {
	return &Limiter{hits: make(map[string][]time.Time)}
}

func limitKey(clientID string, platform models.Platform) string {
	return clientID + ":" + string(platform)
}

// Warm rebuilds the sliding window for clientID/platform from the store's
// publish history, so a freshly-started process doesn't undercount and
// exceed the platform ceiling.
func (l *Limiter) Warm(ctx context.Context, s store.Store, clientID string, platform models.Platform) error {
	w, ok := defaultWindows[platform]
	if !ok {
		return nil
	}
	since := time.Now().Add(-w.duration)
	count, err := s.CountPublishedSince(ctx, clientID, platform, since)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	hits := make([]time.Time, count)
	for i := range hits {
		hits[i] = now // conservative: treat historical hits as "just now"
	}
	l.hits[limitKey(clientID, platform)] = hits
	return nil
}

// Allow reports whether clientID may publish to platform right now,
// pruning expired entries from the window as a side effect.
func (l *Limiter) Allow(clientID string, platform models.Platform) bool {
	w, ok := defaultWindows[platform]
	if !ok {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := limitKey(clientID, platform)
	cutoff := time.Now().Add(-w.duration)
	hits := pruneExpired(l.hits[key], cutoff)
	l.hits[key] = hits

	return len(hits) < w.max
}

// Record registers a successful publish at the current time.
func (l *Limiter) Record(clientID string, platform models.Platform) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := limitKey(clientID, platform)
	l.hits[key] = append(l.hits[key], time.Now())
}

func pruneExpired(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
