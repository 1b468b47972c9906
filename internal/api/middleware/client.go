package middleware

import (
	"context"
	"net/http"
	"strings"

	pkgmw "github.com/NomadonaTrip/sophia/pkg/middleware"
)

type contextKey string

const clientIDKey contextKey = "client_id"

// ClientExtractor reads which client a request is scoped to, from the
// X-Client-Id header or the client_id query parameter. There is no
// fallback client: when neither is set the stored value is "", which
// handlers and the event bus treat as "all clients".
func ClientExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := strings.TrimSpace(r.Header.Get("X-Client-Id"))
		if clientID == "" {
			clientID = strings.TrimSpace(r.URL.Query().Get("client_id"))
		}

		ctx := pkgmw.SetClientID(r.Context(), clientID)
		ctx = context.WithValue(ctx, clientIDKey, clientID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientID retrieves the client ID from the request context.
func GetClientID(ctx context.Context) string {
	return pkgmw.GetClientID(ctx)
}
