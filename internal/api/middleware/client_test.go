package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NomadonaTrip/sophia/internal/api/middleware"
)

func TestClientExtractor_PrefersHeaderOverQueryParam(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.GetClientID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/approval/queue?client_id=from-query", nil)
	req.Header.Set("X-Client-Id", "from-header")
	rec := httptest.NewRecorder()
	middleware.ClientExtractor(next).ServeHTTP(rec, req)

	if got != "from-header" {
		t.Errorf("GetClientID() = %q, want from-header", got)
	}
}

func TestClientExtractor_FallsBackToQueryParam(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.GetClientID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/approval/queue?client_id=from-query", nil)
	rec := httptest.NewRecorder()
	middleware.ClientExtractor(next).ServeHTTP(rec, req)

	if got != "from-query" {
		t.Errorf("GetClientID() = %q, want from-query", got)
	}
}

func TestClientExtractor_EmptyWhenNeitherSet(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.GetClientID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/approval/queue", nil)
	rec := httptest.NewRecorder()
	middleware.ClientExtractor(next).ServeHTTP(rec, req)

	if got != "" {
		t.Errorf("GetClientID() = %q, want empty", got)
	}
}
