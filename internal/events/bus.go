// Package events implements the in-process event bus that decouples the
// approval service, scheduler, and recovery service from the HTTP/SSE and
// bot front ends that observe them.
//
// Publishing is fire-and-forget and never blocks the publisher: each
// subscriber gets its own bounded channel, and a slow or stalled
// subscriber only drops its own notifications rather than stalling the
// publish call or other subscribers.
package events

import (
	"errors"
	"sync"
	"time"

	"github.com/NomadonaTrip/sophia/pkg/models"
)

const (
	// defaultBufferSize is the per-subscriber channel capacity. A
	// subscriber that falls this far behind starts losing events rather
	// than ever applying backpressure to Publish.
	defaultBufferSize = 32

	// defaultMaxSubscribers bounds the total number of concurrent SSE
	// connections the bus will track across all clients combined, so a
	// runaway client (or many clients) can't grow the subscriber table
	// without limit.
	defaultMaxSubscribers = 16
)

// ErrTooManySubscribers is returned by Subscribe when the bus has already
// reached its global subscriber ceiling.
var ErrTooManySubscribers = errors.New("too many subscribers")

// Bus is the event bus. The zero value is not usable; use NewBus.
type Bus struct {
	mu             sync.RWMutex
	subs           map[string][]chan models.Event // key: client ID
	total          int                            // live subscriptions across all client IDs
	bufferSize     int
	maxSubscribers int
}

// NewBus creates an empty event bus with the default buffer size and
// subscriber ceiling (SSE_MAX_SUBSCRIBERS / EVENT_BUFFER_SIZE defaults).
func NewBus() *Bus {
	return NewBusWithLimits(defaultBufferSize, defaultMaxSubscribers)
}

// NewBusWithLimits creates an event bus with explicit per-subscriber
// buffer size and subscriber ceiling, as configured by EVENT_BUFFER_SIZE
// and SSE_MAX_SUBSCRIBERS.
func NewBusWithLimits(bufferSize, maxSubscribers int) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if maxSubscribers <= 0 {
		maxSubscribers = defaultMaxSubscribers
	}
	return &Bus{
		subs:           make(map[string][]chan models.Event),
		bufferSize:     bufferSize,
		maxSubscribers: maxSubscribers,
	}
}

// Subscribe registers a new subscriber for clientID and returns a channel
// of events scoped to that client. Callers must eventually call
// Unsubscribe with the same channel to release it.
func (b *Bus) Subscribe(clientID string) (<-chan models.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.total >= b.maxSubscribers {
		return nil, ErrTooManySubscribers
	}

	ch := make(chan models.Event, b.bufferSize)
	b.subs[clientID] = append(b.subs[clientID], ch)
	b.total++
	return ch, nil
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// once per channel returned by Subscribe; a second call is a no-op.
func (b *Bus) Unsubscribe(clientID string, ch <-chan models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[clientID]
	for i, s := range subs {
		if s == ch {
			b.subs[clientID] = append(subs[:i], subs[i+1:]...)
			close(s)
			b.total--
			return
		}
	}
}

// Publish delivers an event to every current subscriber of clientID, plus
// every subscriber of the reserved empty client ID, which receives every
// event regardless of client — this is how a process-wide consumer like
// the bot notifier observes the whole system without per-client
// subscriptions. If a subscriber's buffer is full, that subscriber's event
// is dropped; other subscribers are unaffected. Publish never blocks.
func (b *Bus) Publish(clientID string, eventType models.EventType, payload map[string]any) {
	evt := models.Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	deliver := func(ch chan models.Event) {
		select {
		case ch <- evt:
		default:
			// subscriber too slow, drop
		}
	}

	for _, ch := range b.subs[clientID] {
		deliver(ch)
	}
	if clientID != "" {
		for _, ch := range b.subs[""] {
			deliver(ch)
		}
	}
}

// SubscriberCount returns the number of live subscriptions for clientID.
// Not load-bearing for dispatch; no HTTP endpoint exposes it.
func (b *Bus) SubscriberCount(clientID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[clientID])
}
