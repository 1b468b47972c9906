// Package middleware provides shared request-context helpers used by the
// HTTP layer.
package middleware

import "context"

type contextKey string

const clientKey contextKey = "client_id"

// GetClientID extracts the client ID from the context. Returns "" if none
// was set — callers that need single-client endpoints treat that as "no
// client scoping applied", not as client "default".
func GetClientID(ctx context.Context) string {
	if v, ok := ctx.Value(clientKey).(string); ok {
		return v
	}
	return ""
}

// SetClientID stores the client ID in the context.
func SetClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientKey, clientID)
}
