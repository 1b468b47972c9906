// Package store provides the storage interface and implementations for the
// Sophia approval, publishing, and recovery core. MemoryStore backs tests
// and small single-operator deployments; PostgresStore backs production.
package store

import (
	"context"
	"time"

	"github.com/NomadonaTrip/sophia/pkg/models"
)

// Store is the primary storage interface for the core. All service code
// depends on this interface, making it easy to swap between in-memory
// (tests, small deployments) and PostgreSQL (production) implementations.
type Store interface {
	DraftStore
	QueueEntryStore
	AuditStore
	RecoveryLogStore
	GlobalPublishStateStore

	// Ping checks if the store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate runs schema migrations. A no-op for MemoryStore.
	Migrate(ctx context.Context) error
}

// ── Draft Store ──────────────────────────────────────────────

type DraftStore interface {
	ListDrafts(ctx context.Context, clientID string, filter ListFilter) ([]models.Draft, error)
	GetDraft(ctx context.Context, id string) (*models.Draft, error)
	CreateDraft(ctx context.Context, draft *models.Draft) error

	// UpdateDraftAtomic reads the current draft, applies mutate under the
	// store's lock (or a row lock, for PostgresStore), and persists the
	// result together with the audit record produced by mutate — all in
	// one atomic unit. mutate returns the audit record to write, or an
	// error to abort the whole update (nothing is persisted in that case).
	// This is how the approval state machine enforces that a transition
	// and its audit trail can never be observed independently of each
	// other.
	UpdateDraftAtomic(ctx context.Context, id string, mutate func(d *models.Draft) (*models.AuditRecord, error)) (*models.Draft, error)
}

// ── Queue Entry Store ────────────────────────────────────────

type QueueEntryStore interface {
	ListQueueEntries(ctx context.Context, clientID string, filter ListFilter) ([]models.QueueEntry, error)
	ListDueQueueEntries(ctx context.Context, asOf time.Time) ([]models.QueueEntry, error)
	GetQueueEntry(ctx context.Context, id string) (*models.QueueEntry, error)
	GetQueueEntryByDraft(ctx context.Context, draftID string) (*models.QueueEntry, error)
	CreateQueueEntry(ctx context.Context, entry *models.QueueEntry) error
	UpdateQueueEntryAtomic(ctx context.Context, id string, mutate func(q *models.QueueEntry) error) (*models.QueueEntry, error)
	DeleteQueueEntry(ctx context.Context, id string) error

	// CountPublishedSince supports rate-limiter warm start: how many
	// entries for (clientID, platform) reached "published" since the
	// given time.
	CountPublishedSince(ctx context.Context, clientID string, platform models.Platform, since time.Time) (int, error)
}

// ── Audit Store ──────────────────────────────────────────────

type AuditStore interface {
	AppendAudit(ctx context.Context, record *models.AuditRecord) error
	ListAudit(ctx context.Context, clientID string, filter ListFilter) ([]models.AuditRecord, error)
}

// ── Recovery Log Store ───────────────────────────────────────

type RecoveryLogStore interface {
	CreateRecoveryLog(ctx context.Context, rec *models.RecoveryLog) error
	UpdateRecoveryLogAtomic(ctx context.Context, id string, mutate func(r *models.RecoveryLog) error) (*models.RecoveryLog, error)
	GetRecoveryLog(ctx context.Context, id string) (*models.RecoveryLog, error)
	ListRecoveryLogs(ctx context.Context, clientID string, filter ListFilter) ([]models.RecoveryLog, error)
}

// ── Global Publish State Store ───────────────────────────────

// GlobalPublishStateStore manages the process-wide paused/resumed switch.
type GlobalPublishStateStore interface {
	GetGlobalPublishState(ctx context.Context) (*models.GlobalPublishState, error)
	SetGlobalPublishState(ctx context.Context, state *models.GlobalPublishState) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ErrConflict reports that an update's precondition no longer holds (e.g. a
// transition attempted from a status that no longer matches what the
// caller observed). Neither MemoryStore nor PostgresStore constructs it:
// their atomic update methods return whatever error mutate returns.
type ErrConflict struct {
	Entity string
	Key    string
	Reason string
}

func (e *ErrConflict) Error() string {
	return e.Entity + " " + e.Key + " conflict: " + e.Reason
}

// ── Filter helpers ──────────────────────────────────────────

// ListFilter provides common pagination/filter options.
type ListFilter struct {
	Limit    int
	Offset   int
	Since    *time.Time
	Platform models.Platform // empty means "all platforms"
	Status   string          // empty means "all statuses"
}
