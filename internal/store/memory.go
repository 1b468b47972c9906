// Package store — in-memory Store implementation.
// Used for tests and small single-operator deployments that don't run
// PostgreSQL. Supports file-based snapshot persistence so data survives
// restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Drafts       map[string]*models.Draft              `json:"drafts"`
	QueueEntries map[string]*models.QueueEntry          `json:"queue_entries"`
	AuditRecords []*models.AuditRecord                  `json:"audit_records"`
	RecoveryLogs map[string]*models.RecoveryLog         `json:"recovery_logs"`
	PublishState *models.GlobalPublishState             `json:"publish_state"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu           sync.RWMutex
	drafts       map[string]*models.Draft      // key: draft id
	queueEntries map[string]*models.QueueEntry // key: queue entry id
	auditRecords []*models.AuditRecord         // append-only log
	recoveryLogs map[string]*models.RecoveryLog
	publishState *models.GlobalPublishState

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
}

// NewMemoryStore creates a new in-memory store. If SOPHIA_DATA_DIR is set,
// data is persisted to a JSON file in that directory. Otherwise defaults to
// ~/.sophia/data.json.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		drafts:       make(map[string]*models.Draft),
		queueEntries: make(map[string]*models.QueueEntry),
		auditRecords: make([]*models.AuditRecord, 0),
		recoveryLogs: make(map[string]*models.RecoveryLog),
		publishState: &models.GlobalPublishState{Paused: false},
		saveCh:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
	}

	dataDir := os.Getenv("SOPHIA_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".sophia")
		}
	}
	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
	}

	if m.snapshotPath != "" {
		go m.saveLoop()
	}

	log.Info().
		Str("snapshot", m.snapshotPath).
		Msg("memory store configured")

	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max one write
// per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond)
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Drafts:       m.drafts,
		QueueEntries: m.queueEntries,
		AuditRecords: m.auditRecords,
		RecoveryLogs: m.recoveryLogs,
		PublishState: m.publishState,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("no snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Drafts != nil {
		m.drafts = snap.Drafts
	}
	if snap.QueueEntries != nil {
		m.queueEntries = snap.QueueEntries
	}
	if snap.AuditRecords != nil {
		m.auditRecords = snap.AuditRecords
	}
	if snap.RecoveryLogs != nil {
		m.recoveryLogs = snap.RecoveryLogs
	}
	if snap.PublishState != nil {
		m.publishState = snap.PublishState
	}

	log.Info().
		Int("drafts", len(m.drafts)).
		Int("queue_entries", len(m.queueEntries)).
		Int("audit_records", len(m.auditRecords)).
		Str("path", m.snapshotPath).
		Msg("snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}

	if m.snapshotPath != "" {
		log.Info().Msg("flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}

	log.Info().Msg("memory store closed")
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// ── Draft Store ─────────────────────────────────────────────

func (m *MemoryStore) ListDrafts(_ context.Context, clientID string, filter ListFilter) ([]models.Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Draft
	for _, d := range m.drafts {
		if clientID != "" && d.ClientID != clientID {
			continue
		}
		if filter.Platform != "" && d.Platform != filter.Platform {
			continue
		}
		if filter.Status != "" && string(d.Status) != filter.Status {
			continue
		}
		if filter.Since != nil && d.CreatedAt.Before(*filter.Since) {
			continue
		}
		result = append(result, *d)
	}
	return applyPage(result, filter), nil
}

func (m *MemoryStore) GetDraft(_ context.Context, id string) (*models.Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "draft", Key: id}
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) CreateDraft(_ context.Context, draft *models.Draft) error {
	m.mu.Lock()
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	cp := *draft
	m.drafts[cp.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// UpdateDraftAtomic applies mutate to the current draft under the store's
// write lock, then appends the audit record mutate returns — all before
// releasing the lock, so no concurrent reader ever observes the new draft
// state without its audit trail.
func (m *MemoryStore) UpdateDraftAtomic(_ context.Context, id string, mutate func(d *models.Draft) (*models.AuditRecord, error)) (*models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "draft", Key: id}
	}
	cp := *d
	audit, err := mutate(&cp)
	if err != nil {
		return nil, err
	}
	cp.UpdatedAt = timeNow()
	m.drafts[id] = &cp
	if audit != nil {
		if audit.ID == "" {
			audit.ID = uuid.NewString()
		}
		if audit.Timestamp.IsZero() {
			audit.Timestamp = cp.UpdatedAt
		}
		m.auditRecords = append(m.auditRecords, audit)
	}

	result := cp
	m.requestSaveLocked()
	return &result, nil
}

// requestSaveLocked is requestSave for callers that already hold m.mu;
// it only touches the buffered channel, never m.mu, so it's safe to call
// while the lock is held.
func (m *MemoryStore) requestSaveLocked() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
	}
}

// ── Queue Entry Store ────────────────────────────────────────

func (m *MemoryStore) ListQueueEntries(_ context.Context, clientID string, filter ListFilter) ([]models.QueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.QueueEntry
	for _, q := range m.queueEntries {
		if clientID != "" && q.ClientID != clientID {
			continue
		}
		if filter.Platform != "" && q.Platform != filter.Platform {
			continue
		}
		if filter.Status != "" && string(q.Status) != filter.Status {
			continue
		}
		result = append(result, *q)
	}
	return applyQueuePage(result, filter), nil
}

func (m *MemoryStore) ListDueQueueEntries(_ context.Context, asOf time.Time) ([]models.QueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.QueueEntry
	for _, q := range m.queueEntries {
		if q.Status == models.QueueEntryQueued && !q.ScheduledAt.After(asOf) {
			result = append(result, *q)
		}
	}
	return result, nil
}

func (m *MemoryStore) GetQueueEntry(_ context.Context, id string) (*models.QueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queueEntries[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "queue_entry", Key: id}
	}
	cp := *q
	return &cp, nil
}

func (m *MemoryStore) GetQueueEntryByDraft(_ context.Context, draftID string) (*models.QueueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.queueEntries {
		if q.DraftID == draftID {
			cp := *q
			return &cp, nil
		}
	}
	return nil, &ErrNotFound{Entity: "queue_entry", Key: "draft:" + draftID}
}

func (m *MemoryStore) CreateQueueEntry(_ context.Context, entry *models.QueueEntry) error {
	m.mu.Lock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	cp := *entry
	m.queueEntries[cp.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateQueueEntryAtomic(_ context.Context, id string, mutate func(q *models.QueueEntry) error) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queueEntries[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "queue_entry", Key: id}
	}
	cp := *q
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = timeNow()
	m.queueEntries[id] = &cp
	result := cp
	m.requestSaveLocked()
	return &result, nil
}

func (m *MemoryStore) DeleteQueueEntry(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.queueEntries, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) CountPublishedSince(_ context.Context, clientID string, platform models.Platform, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, q := range m.queueEntries {
		if q.ClientID == clientID && q.Platform == platform && q.Status == models.QueueEntryPublished && q.UpdatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

// ── Audit Store ─────────────────────────────────────────────

func (m *MemoryStore) AppendAudit(_ context.Context, record *models.AuditRecord) error {
	m.mu.Lock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = timeNow()
	}
	cp := *record
	m.auditRecords = append(m.auditRecords, &cp)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListAudit(_ context.Context, clientID string, filter ListFilter) ([]models.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.AuditRecord
	for _, a := range m.auditRecords {
		if clientID != "" && a.ClientID != clientID {
			continue
		}
		if filter.Since != nil && a.Timestamp.Before(*filter.Since) {
			continue
		}
		result = append(result, *a)
	}
	return applyAuditPage(result, filter), nil
}

// ── Recovery Log Store ───────────────────────────────────────

func (m *MemoryStore) CreateRecoveryLog(_ context.Context, rec *models.RecoveryLog) error {
	m.mu.Lock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	cp := *rec
	m.recoveryLogs[cp.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateRecoveryLogAtomic(_ context.Context, id string, mutate func(r *models.RecoveryLog) error) (*models.RecoveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.recoveryLogs[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "recovery_log", Key: id}
	}
	cp := *r
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	m.recoveryLogs[id] = &cp
	result := cp
	m.requestSaveLocked()
	return &result, nil
}

func (m *MemoryStore) GetRecoveryLog(_ context.Context, id string) (*models.RecoveryLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recoveryLogs[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "recovery_log", Key: id}
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListRecoveryLogs(_ context.Context, clientID string, filter ListFilter) ([]models.RecoveryLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.RecoveryLog
	for _, r := range m.recoveryLogs {
		if clientID != "" && r.ClientID != clientID {
			continue
		}
		result = append(result, *r)
	}
	return result, nil
}

// ── Global Publish State Store ───────────────────────────────

func (m *MemoryStore) GetGlobalPublishState(_ context.Context) (*models.GlobalPublishState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.publishState
	return &cp, nil
}

func (m *MemoryStore) SetGlobalPublishState(_ context.Context, state *models.GlobalPublishState) error {
	m.mu.Lock()
	cp := *state
	m.publishState = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Paging helpers ──────────────────────────────────────────

func applyPage(items []models.Draft, f ListFilter) []models.Draft {
	if f.Offset > 0 && f.Offset < len(items) {
		items = items[f.Offset:]
	} else if f.Offset >= len(items) {
		return nil
	}
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items
}

func applyQueuePage(items []models.QueueEntry, f ListFilter) []models.QueueEntry {
	if f.Offset > 0 && f.Offset < len(items) {
		items = items[f.Offset:]
	} else if f.Offset >= len(items) {
		return nil
	}
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items
}

func applyAuditPage(items []models.AuditRecord, f ListFilter) []models.AuditRecord {
	if f.Offset > 0 && f.Offset < len(items) {
		items = items[f.Offset:]
	} else if f.Offset >= len(items) {
		return nil
	}
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items
}

func timeNow() time.Time { return time.Now().UTC() }
