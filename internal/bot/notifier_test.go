package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/slack-go/slack"
)

func TestNewNotifier_EmptyTokenIsInert(t *testing.T) {
	n := NewNotifier("", "C123")
	if n.client != nil {
		t.Errorf("client = %v, want nil for an empty token", n.client)
	}
	// Must not panic even though there is nowhere to send.
	n.Send(context.Background(), models.EventPublishComplete, map[string]any{"draft_id": "d1"})
}

func TestSend_NilNotifierIsNoOp(t *testing.T) {
	var n *Notifier
	n.Send(context.Background(), models.EventPublishComplete, map[string]any{"draft_id": "d1"})
}

func TestSend_PostsRenderedTextToConfiguredChannel(t *testing.T) {
	var gotChannel, gotText string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotChannel = r.FormValue("channel")
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1234.5"}`))
	}))
	defer ts.Close()

	n := &Notifier{client: slack.New("xoxb-test", slack.OptionAPIURL(ts.URL+"/")), chatID: "C123"}
	n.Send(context.Background(), models.EventPublishComplete, map[string]any{"draft_id": "d1", "url": "https://example.com/d1"})

	if gotChannel != "C123" {
		t.Errorf("posted channel = %q, want C123", gotChannel)
	}
	if gotText == "" {
		t.Errorf("posted text is empty, want rendered publish_complete message")
	}
}

func TestRender_ApprovalChanged(t *testing.T) {
	got := render(models.EventApprovalChanged, map[string]any{"draft_id": "d1", "status": "approved"})
	want := "draft d1 changed status to approved"
	if got != want {
		t.Errorf("render() = %q, want %q", got, want)
	}
}

func TestRender_PublishComplete(t *testing.T) {
	got := render(models.EventPublishComplete, map[string]any{"draft_id": "d1", "url": "https://example.com/d1"})
	want := "draft d1 published: https://example.com/d1"
	if got != want {
		t.Errorf("render() = %q, want %q", got, want)
	}
}

func TestRender_PublishFailed(t *testing.T) {
	got := render(models.EventPublishFailed, map[string]any{"draft_id": "d1", "error": "timeout"})
	want := "draft d1 failed to publish: timeout"
	if got != want {
		t.Errorf("render() = %q, want %q", got, want)
	}
}

func TestRender_RecoveryComplete(t *testing.T) {
	got := render(models.EventRecoveryComplete, map[string]any{"draft_id": "d1", "status": "completed"})
	want := "draft d1 recovery finished: completed"
	if got != want {
		t.Errorf("render() = %q, want %q", got, want)
	}
}

func TestRender_ContentStale(t *testing.T) {
	got := render(models.EventContentStale, map[string]any{"client_name": "acme", "hours_stale": 5.0})
	want := "acme has had no approved content for 5h"
	if got != want {
		t.Errorf("render() = %q, want %q", got, want)
	}
}

func TestRender_UnknownEventTypeReturnsEmpty(t *testing.T) {
	got := render(models.EventType("unknown"), map[string]any{"draft_id": "d1"})
	if got != "" {
		t.Errorf("render() = %q, want empty string for unrecognized event type", got)
	}
}
