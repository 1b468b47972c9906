package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NomadonaTrip/sophia/pkg/models"
)

func TestEvents_StreamsPublishedEventsAsSSEFrames(t *testing.T) {
	h, _ := newTestHandlers(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Events(rec, req)
		close(done)
	}()

	// Give the handler time to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	h.Bus.Publish("", models.EventPublishComplete, map[string]any{"draft_id": "d1"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Events() did not return after context cancellation")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "retry: 5000") {
		t.Errorf("body = %q, want a retry hint frame", body)
	}
	if !strings.Contains(body, "event: publish_complete") {
		t.Errorf("body = %q, want a publish_complete event frame", body)
	}
	if !strings.Contains(body, `"draft_id":"d1"`) {
		t.Errorf("body = %q, want the event payload encoded as JSON", body)
	}
}

func TestEvents_RejectsWhenBusAtSubscriberCapacity(t *testing.T) {
	h, _ := newTestHandlers(t)

	// Exhaust the bus's global subscriber ceiling directly before the
	// handler ever gets a chance to subscribe.
	for {
		if _, err := h.Bus.Subscribe(""); err != nil {
			break
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	h.Events(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503, body = %s", rec.Code, rec.Body.String())
	}
}
