// Package contracts defines the interfaces at the boundary between the
// approval/publishing/recovery core and the systems it depends on but
// does not own: platform adapters and the client repository. Both are
// implemented outside the core and consumed through these interfaces.
package contracts

import (
	"context"

	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/pkg/models"
)

// Store is a type alias for the internal Store interface, exposed here so
// packages outside internal/ can reference it without importing
// internal/store directly.
type Store = store.Store

// ErrNotFound is a type alias for the internal ErrNotFound error.
type ErrNotFound = store.ErrNotFound

// ── Platform Adapter ─────────────────────────────────────────

// AdapterErrorKind classifies a platform adapter failure so the executor
// knows whether to retry.
type AdapterErrorKind string

const (
	AdapterTransient   AdapterErrorKind = "transient"
	AdapterPermanent   AdapterErrorKind = "permanent"
	AdapterUnsupported AdapterErrorKind = "unsupported"
)

// AdapterError wraps a platform dispatch failure with its retry
// classification.
type AdapterError struct {
	Kind AdapterErrorKind
	Err  error
}

func (e *AdapterError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *AdapterError) Unwrap() error { return e.Err }

// PublishResult is what a successful publish returns.
type PublishResult struct {
	PostID  string
	PostURL string
}

// PlatformAdapter is the interface the core consumes for every supported
// platform; implementations live outside the core (one per platform).
type PlatformAdapter interface {
	// Publish posts a draft's content, returning the platform's assigned
	// post identity and URL, or an AdapterError.
	Publish(ctx context.Context, draft *models.Draft, imageRef string) (*PublishResult, error)

	// Delete removes a previously-published post. Returns an
	// AdapterError with kind Unsupported for platforms that don't allow
	// programmatic deletion (e.g. Instagram).
	Delete(ctx context.Context, platformPostID string) error

	// Platform identifies which platform this adapter serves.
	Platform() models.Platform
}

// ── Client Repository ────────────────────────────────────────

// ClientRepository is a read-only view onto client configuration owned by
// the surrounding system — cadence rules, platform account identities,
// and opaque guardrails the core never interprets.
type ClientRepository interface {
	GetCadence(ctx context.Context, clientID string) (*models.Cadence, error)
	GetPlatformAccounts(ctx context.Context, clientID string) (*models.PlatformAccounts, error)

	// GetGuardrails returns an opaque blob. The core never parses it; it
	// exists purely so upstream systems can associate guardrail config
	// with a client without the core needing to understand its shape.
	GetGuardrails(ctx context.Context, clientID string) ([]byte, error)
}

// ── Notification Channel ─────────────────────────────────────

// ChannelDriver delivers an operator notification to one outbound
// surface (bot, email, ...). HTTP/SSE delivery goes through the event
// bus directly and has no driver.
type ChannelDriver interface {
	Name() string
	Send(ctx context.Context, clientID string, event models.Event) error
}
