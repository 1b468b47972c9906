package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NomadonaTrip/sophia/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the production Store implementation. It holds five
// tables (drafts, queue_entries, audit_log, recovery_log,
// global_publish_state) and enforces the same atomic-update contract as
// MemoryStore via row locking: UpdateDraftAtomic and its siblings run
// their mutate closure inside a transaction that SELECT ... FOR UPDATEs
// the target row, so a concurrent transition observes either the fully
// old or fully new row, never a partial write.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a connection pool against connString (a
// postgres:// DSN) and verifies connectivity.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }
func (p *PostgresStore) Close() error                   { p.pool.Close(); return nil }

// Migrate creates the schema if it does not already exist. There is no
// migration tooling here beyond CREATE TABLE IF NOT EXISTS: the schema is
// small and stable enough that forward-only DDL additions can be appended
// here directly as the core evolves.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaDDL)
	return err
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS drafts (
	id                   TEXT PRIMARY KEY,
	client_id            TEXT NOT NULL,
	platform             TEXT NOT NULL,
	status               TEXT NOT NULL,
	body                 TEXT NOT NULL,
	image_prompt         TEXT NOT NULL DEFAULT '',
	hashtags             JSONB NOT NULL DEFAULT '[]',
	image_ref            TEXT NOT NULL DEFAULT '',
	suggested_at         TIMESTAMPTZ NOT NULL,
	quality_gate_report  JSONB,
	voice_alignment_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	publish_mode         TEXT NOT NULL,
	custom_post_time     TIMESTAMPTZ,
	approved_at          TIMESTAMPTZ,
	approved_by          TEXT NOT NULL DEFAULT '',
	edit_history         JSONB NOT NULL DEFAULT '[]',
	replacement_of       TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drafts_client_status ON drafts (client_id, status);

CREATE TABLE IF NOT EXISTS queue_entries (
	id                 TEXT PRIMARY KEY,
	draft_id           TEXT NOT NULL REFERENCES drafts(id),
	client_id          TEXT NOT NULL,
	platform           TEXT NOT NULL,
	scheduled_at       TIMESTAMPTZ NOT NULL,
	publish_mode       TEXT NOT NULL,
	status             TEXT NOT NULL,
	retry_count        INT NOT NULL DEFAULT 0,
	platform_post_id   TEXT NOT NULL DEFAULT '',
	platform_post_url  TEXT NOT NULL DEFAULT '',
	error_message      TEXT NOT NULL DEFAULT '',
	image_ref          TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_due ON queue_entries (status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_queue_draft ON queue_entries (draft_id);

CREATE TABLE IF NOT EXISTS audit_log (
	id              TEXT PRIMARY KEY,
	client_id       TEXT NOT NULL,
	actor           TEXT NOT NULL,
	action          TEXT NOT NULL,
	before_snapshot JSONB,
	after_snapshot  JSONB,
	timestamp       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_client_time ON audit_log (client_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS recovery_log (
	id                   TEXT PRIMARY KEY,
	draft_id             TEXT NOT NULL REFERENCES drafts(id),
	client_id            TEXT NOT NULL,
	platform             TEXT NOT NULL,
	platform_post_id     TEXT NOT NULL DEFAULT '',
	urgency              TEXT NOT NULL,
	reason               TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL,
	actor                TEXT NOT NULL,
	completed_at         TIMESTAMPTZ,
	replacement_draft_id TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recovery_client ON recovery_log (client_id, created_at DESC);

CREATE TABLE IF NOT EXISTS global_publish_state (
	id        INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	paused    BOOLEAN NOT NULL DEFAULT FALSE,
	paused_by TEXT NOT NULL DEFAULT '',
	paused_at TIMESTAMPTZ
);
INSERT INTO global_publish_state (id, paused) VALUES (1, FALSE) ON CONFLICT (id) DO NOTHING;
`

// ── Draft Store ──────────────────────────────────────────────

func (p *PostgresStore) ListDrafts(ctx context.Context, clientID string, filter ListFilter) ([]models.Draft, error) {
	query := `SELECT id, client_id, platform, status, body, image_prompt, hashtags, image_ref,
		suggested_at, quality_gate_report, voice_alignment_score, publish_mode, custom_post_time,
		approved_at, approved_by, edit_history, replacement_of, created_at, updated_at
		FROM drafts WHERE ($1 = '' OR client_id = $1) AND ($2 = '' OR status = $2) AND ($3 = '' OR platform = $3)
		ORDER BY created_at DESC`
	args := []any{clientID, filter.Status, string(filter.Platform)}
	query += pageClause(len(args))
	args = append(args, pageArgs(filter)...)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list drafts: %w", err)
	}
	defer rows.Close()

	var out []models.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetDraft(ctx context.Context, id string) (*models.Draft, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, client_id, platform, status, body, image_prompt, hashtags, image_ref,
		suggested_at, quality_gate_report, voice_alignment_score, publish_mode, custom_post_time,
		approved_at, approved_by, edit_history, replacement_of, created_at, updated_at
		FROM drafts WHERE id = $1`, id)
	d, err := scanDraft(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "draft", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *PostgresStore) CreateDraft(ctx context.Context, d *models.Draft) error {
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	hashtags, _ := json.Marshal(d.Hashtags)
	editHistory, _ := json.Marshal(d.EditHistory)

	_, err := p.pool.Exec(ctx, `INSERT INTO drafts
		(id, client_id, platform, status, body, image_prompt, hashtags, image_ref, suggested_at,
		 quality_gate_report, voice_alignment_score, publish_mode, custom_post_time, approved_at,
		 approved_by, edit_history, replacement_of, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		d.ID, d.ClientID, string(d.Platform), string(d.Status), d.Body, d.ImagePrompt, hashtags, d.ImageRef,
		d.SuggestedAt, nullJSON(d.QualityGateReport), d.VoiceAlignment, string(d.PublishMode), d.CustomPostTime,
		d.ApprovedAt, d.ApprovedBy, editHistory, d.ReplacementOf, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create draft: %w", err)
	}
	return nil
}

// UpdateDraftAtomic locks the row with SELECT ... FOR UPDATE inside a
// transaction, runs mutate against the locked state, and commits both the
// new row and its audit record together. If mutate returns an error the
// transaction rolls back and nothing is persisted.
func (p *PostgresStore) UpdateDraftAtomic(ctx context.Context, id string, mutate func(d *models.Draft) (*models.AuditRecord, error)) (*models.Draft, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT id, client_id, platform, status, body, image_prompt, hashtags, image_ref,
		suggested_at, quality_gate_report, voice_alignment_score, publish_mode, custom_post_time,
		approved_at, approved_by, edit_history, replacement_of, created_at, updated_at
		FROM drafts WHERE id = $1 FOR UPDATE`, id)
	d, err := scanDraft(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "draft", Key: id}
	}
	if err != nil {
		return nil, err
	}

	audit, err := mutate(&d)
	if err != nil {
		return nil, err
	}
	d.UpdatedAt = time.Now().UTC()

	hashtags, _ := json.Marshal(d.Hashtags)
	editHistory, _ := json.Marshal(d.EditHistory)
	_, err = tx.Exec(ctx, `UPDATE drafts SET status=$2, body=$3, image_prompt=$4, hashtags=$5, image_ref=$6,
		quality_gate_report=$7, voice_alignment_score=$8, publish_mode=$9, custom_post_time=$10,
		approved_at=$11, approved_by=$12, edit_history=$13, replacement_of=$14, updated_at=$15
		WHERE id=$1`,
		id, string(d.Status), d.Body, d.ImagePrompt, hashtags, d.ImageRef, nullJSON(d.QualityGateReport),
		d.VoiceAlignment, string(d.PublishMode), d.CustomPostTime, d.ApprovedAt, d.ApprovedBy, editHistory,
		d.ReplacementOf, d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: update draft: %w", err)
	}

	if audit != nil {
		if err := insertAudit(ctx, tx, audit); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDraft(row pgx.Row) (models.Draft, error) {
	var d models.Draft
	var platform, status, publishMode string
	var hashtags, editHistory []byte
	var qualityGate []byte
	err := row.Scan(&d.ID, &d.ClientID, &platform, &status, &d.Body, &d.ImagePrompt, &hashtags, &d.ImageRef,
		&d.SuggestedAt, &qualityGate, &d.VoiceAlignment, &publishMode, &d.CustomPostTime,
		&d.ApprovedAt, &d.ApprovedBy, &editHistory, &d.ReplacementOf, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	d.Platform = models.Platform(platform)
	d.Status = models.DraftStatus(status)
	d.PublishMode = models.PublishMode(publishMode)
	d.QualityGateReport = qualityGate
	_ = json.Unmarshal(hashtags, &d.Hashtags)
	_ = json.Unmarshal(editHistory, &d.EditHistory)
	return d, nil
}

// ── Queue Entry Store ────────────────────────────────────────

func (p *PostgresStore) ListQueueEntries(ctx context.Context, clientID string, filter ListFilter) ([]models.QueueEntry, error) {
	query := `SELECT id, draft_id, client_id, platform, scheduled_at, publish_mode, status, retry_count,
		platform_post_id, platform_post_url, error_message, image_ref, created_at, updated_at
		FROM queue_entries WHERE ($1 = '' OR client_id = $1) AND ($2 = '' OR status = $2) AND ($3 = '' OR platform = $3)
		ORDER BY scheduled_at ASC`
	args := []any{clientID, filter.Status, string(filter.Platform)}
	query += pageClause(len(args))
	args = append(args, pageArgs(filter)...)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list queue entries: %w", err)
	}
	defer rows.Close()

	var out []models.QueueEntry
	for rows.Next() {
		q, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListDueQueueEntries(ctx context.Context, asOf time.Time) ([]models.QueueEntry, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, draft_id, client_id, platform, scheduled_at, publish_mode, status,
		retry_count, platform_post_id, platform_post_url, error_message, image_ref, created_at, updated_at
		FROM queue_entries WHERE status = $1 AND scheduled_at <= $2 ORDER BY scheduled_at ASC`,
		string(models.QueueEntryQueued), asOf)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due entries: %w", err)
	}
	defer rows.Close()

	var out []models.QueueEntry
	for rows.Next() {
		q, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetQueueEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, draft_id, client_id, platform, scheduled_at, publish_mode, status,
		retry_count, platform_post_id, platform_post_url, error_message, image_ref, created_at, updated_at
		FROM queue_entries WHERE id = $1`, id)
	q, err := scanQueueEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "queue_entry", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (p *PostgresStore) GetQueueEntryByDraft(ctx context.Context, draftID string) (*models.QueueEntry, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, draft_id, client_id, platform, scheduled_at, publish_mode, status,
		retry_count, platform_post_id, platform_post_url, error_message, image_ref, created_at, updated_at
		FROM queue_entries WHERE draft_id = $1 ORDER BY created_at DESC LIMIT 1`, draftID)
	q, err := scanQueueEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "queue_entry", Key: draftID}
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (p *PostgresStore) CreateQueueEntry(ctx context.Context, q *models.QueueEntry) error {
	now := time.Now().UTC()
	q.CreatedAt, q.UpdatedAt = now, now
	_, err := p.pool.Exec(ctx, `INSERT INTO queue_entries
		(id, draft_id, client_id, platform, scheduled_at, publish_mode, status, retry_count,
		 platform_post_id, platform_post_url, error_message, image_ref, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		q.ID, q.DraftID, q.ClientID, string(q.Platform), q.ScheduledAt, string(q.PublishMode), string(q.Status),
		q.RetryCount, q.PlatformPostID, q.PlatformPostURL, q.ErrorMessage, q.ImageRef, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create queue entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) UpdateQueueEntryAtomic(ctx context.Context, id string, mutate func(q *models.QueueEntry) error) (*models.QueueEntry, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT id, draft_id, client_id, platform, scheduled_at, publish_mode, status,
		retry_count, platform_post_id, platform_post_url, error_message, image_ref, created_at, updated_at
		FROM queue_entries WHERE id = $1 FOR UPDATE`, id)
	q, err := scanQueueEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "queue_entry", Key: id}
	}
	if err != nil {
		return nil, err
	}

	if err := mutate(&q); err != nil {
		return nil, err
	}
	q.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx, `UPDATE queue_entries SET scheduled_at=$2, publish_mode=$3, status=$4, retry_count=$5,
		platform_post_id=$6, platform_post_url=$7, error_message=$8, image_ref=$9, updated_at=$10
		WHERE id=$1`,
		id, q.ScheduledAt, string(q.PublishMode), string(q.Status), q.RetryCount, q.PlatformPostID,
		q.PlatformPostURL, q.ErrorMessage, q.ImageRef, q.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: update queue entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &q, nil
}

func (p *PostgresStore) DeleteQueueEntry(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM queue_entries WHERE id = $1`, id)
	return err
}

func (p *PostgresStore) CountPublishedSince(ctx context.Context, clientID string, platform models.Platform, since time.Time) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM queue_entries
		WHERE client_id = $1 AND platform = $2 AND status = $3 AND updated_at >= $4`,
		clientID, string(platform), string(models.QueueEntryPublished), since).Scan(&count)
	return count, err
}

func scanQueueEntry(row pgx.Row) (models.QueueEntry, error) {
	var q models.QueueEntry
	var platform, publishMode, status string
	err := row.Scan(&q.ID, &q.DraftID, &q.ClientID, &platform, &q.ScheduledAt, &publishMode, &status,
		&q.RetryCount, &q.PlatformPostID, &q.PlatformPostURL, &q.ErrorMessage, &q.ImageRef, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return q, err
	}
	q.Platform = models.Platform(platform)
	q.PublishMode = models.PublishMode(publishMode)
	q.Status = models.QueueEntryStatus(status)
	return q, nil
}

// ── Audit Store ──────────────────────────────────────────────

func (p *PostgresStore) AppendAudit(ctx context.Context, rec *models.AuditRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := insertAudit(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertAudit(ctx context.Context, tx pgx.Tx, rec *models.AuditRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `INSERT INTO audit_log (id, client_id, actor, action, before_snapshot, after_snapshot, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.ClientID, string(rec.Actor), rec.Action, nullJSON(rec.BeforeSnapshot), nullJSON(rec.AfterSnapshot), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres: append audit: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListAudit(ctx context.Context, clientID string, filter ListFilter) ([]models.AuditRecord, error) {
	query := `SELECT id, client_id, actor, action, before_snapshot, after_snapshot, timestamp
		FROM audit_log WHERE ($1 = '' OR client_id = $1) ORDER BY timestamp DESC`
	args := []any{clientID}
	query += pageClause(len(args))
	args = append(args, pageArgs(filter)...)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var actor string
		if err := rows.Scan(&rec.ID, &rec.ClientID, &actor, &rec.Action, &rec.BeforeSnapshot, &rec.AfterSnapshot, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Actor = models.Actor(actor)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ── Recovery Log Store ───────────────────────────────────────

func (p *PostgresStore) CreateRecoveryLog(ctx context.Context, rec *models.RecoveryLog) error {
	rec.CreatedAt = time.Now().UTC()
	_, err := p.pool.Exec(ctx, `INSERT INTO recovery_log
		(id, draft_id, client_id, platform, platform_post_id, urgency, reason, status, actor, completed_at, replacement_draft_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, rec.DraftID, rec.ClientID, string(rec.Platform), rec.PlatformPostID, string(rec.Urgency),
		rec.Reason, string(rec.Status), string(rec.Actor), rec.CompletedAt, rec.ReplacementDraftID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create recovery log: %w", err)
	}
	return nil
}

func (p *PostgresStore) UpdateRecoveryLogAtomic(ctx context.Context, id string, mutate func(r *models.RecoveryLog) error) (*models.RecoveryLog, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT id, draft_id, client_id, platform, platform_post_id, urgency, reason, status,
		actor, completed_at, replacement_draft_id, created_at FROM recovery_log WHERE id = $1 FOR UPDATE`, id)
	r, err := scanRecoveryLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "recovery_log", Key: id}
	}
	if err != nil {
		return nil, err
	}

	if err := mutate(&r); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `UPDATE recovery_log SET status=$2, completed_at=$3, replacement_draft_id=$4 WHERE id=$1`,
		id, string(r.Status), r.CompletedAt, r.ReplacementDraftID)
	if err != nil {
		return nil, fmt.Errorf("postgres: update recovery log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStore) GetRecoveryLog(ctx context.Context, id string) (*models.RecoveryLog, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, draft_id, client_id, platform, platform_post_id, urgency, reason, status,
		actor, completed_at, replacement_draft_id, created_at FROM recovery_log WHERE id = $1`, id)
	r, err := scanRecoveryLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "recovery_log", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStore) ListRecoveryLogs(ctx context.Context, clientID string, filter ListFilter) ([]models.RecoveryLog, error) {
	query := `SELECT id, draft_id, client_id, platform, platform_post_id, urgency, reason, status,
		actor, completed_at, replacement_draft_id, created_at FROM recovery_log
		WHERE ($1 = '' OR client_id = $1) ORDER BY created_at DESC`
	args := []any{clientID}
	query += pageClause(len(args))
	args = append(args, pageArgs(filter)...)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recovery logs: %w", err)
	}
	defer rows.Close()

	var out []models.RecoveryLog
	for rows.Next() {
		r, err := scanRecoveryLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecoveryLog(row pgx.Row) (models.RecoveryLog, error) {
	var r models.RecoveryLog
	var platform, urgency, status, actor string
	err := row.Scan(&r.ID, &r.DraftID, &r.ClientID, &platform, &r.PlatformPostID, &urgency, &r.Reason, &status,
		&actor, &r.CompletedAt, &r.ReplacementDraftID, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	r.Platform = models.Platform(platform)
	r.Urgency = models.RecoveryUrgency(urgency)
	r.Status = models.RecoveryStatus(status)
	r.Actor = models.Actor(actor)
	return r, nil
}

// ── Global Publish State Store ───────────────────────────────

func (p *PostgresStore) GetGlobalPublishState(ctx context.Context) (*models.GlobalPublishState, error) {
	var s models.GlobalPublishState
	err := p.pool.QueryRow(ctx, `SELECT paused, paused_by, paused_at FROM global_publish_state WHERE id = 1`).
		Scan(&s.Paused, &s.PausedBy, &s.PausedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: get global publish state: %w", err)
	}
	return &s, nil
}

func (p *PostgresStore) SetGlobalPublishState(ctx context.Context, state *models.GlobalPublishState) error {
	_, err := p.pool.Exec(ctx, `UPDATE global_publish_state SET paused=$1, paused_by=$2, paused_at=$3 WHERE id = 1`,
		state.Paused, state.PausedBy, state.PausedAt)
	if err != nil {
		return fmt.Errorf("postgres: set global publish state: %w", err)
	}
	return nil
}

// ── Helpers ──────────────────────────────────────────────────

func pageClause(argOffset int) string {
	return fmt.Sprintf(" LIMIT NULLIF($%d, 0) OFFSET $%d", argOffset+1, argOffset+2)
}

func pageArgs(filter ListFilter) []any {
	return []any{filter.Limit, filter.Offset}
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
