package models

import "time"

// ── Platform ─────────────────────────────────────────────────

type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
)

// ── Draft ────────────────────────────────────────────────────

type DraftStatus string

const (
	DraftStatusDraft     DraftStatus = "draft"
	DraftStatusInReview  DraftStatus = "in_review"
	DraftStatusApproved  DraftStatus = "approved"
	DraftStatusRejected  DraftStatus = "rejected"
	DraftStatusSkipped   DraftStatus = "skipped"
	DraftStatusPublished DraftStatus = "published"
	DraftStatusRecovered DraftStatus = "recovered"
)

type PublishMode string

const (
	PublishModeAuto   PublishMode = "auto"
	PublishModeManual PublishMode = "manual"
)

// Draft is the central unit of work: content under operator review, owned
// by exactly one client, targeting one platform.
type Draft struct {
	ID       string      `json:"id" db:"id"`
	ClientID string      `json:"client_id" db:"client_id"`
	Platform Platform    `json:"platform" db:"platform"`
	Status   DraftStatus `json:"status" db:"status"`

	Body        string    `json:"body" db:"body"`
	ImagePrompt string    `json:"image_prompt,omitempty" db:"image_prompt"`
	Hashtags    []string  `json:"hashtags,omitempty"`
	ImageRef    string    `json:"image_ref,omitempty" db:"image_ref"`
	SuggestedAt time.Time `json:"suggested_at" db:"suggested_at"`

	// QualityGateReport is opaque JSON produced upstream; the core only
	// surfaces summary badges from it and never interprets its structure.
	QualityGateReport []byte  `json:"quality_gate_report,omitempty"`
	VoiceAlignment    float64 `json:"voice_alignment_score" db:"voice_alignment_score"`

	PublishMode    PublishMode `json:"publish_mode" db:"publish_mode"`
	CustomPostTime *time.Time  `json:"custom_post_time,omitempty" db:"custom_post_time"`

	ApprovedAt *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy string     `json:"approved_by,omitempty" db:"approved_by"`

	EditHistory []DraftEdit `json:"edit_history,omitempty"`

	// ReplacementOf links a replacement draft back to the recovery it was
	// submitted in response to. Empty unless the draft originated that way.
	ReplacementOf string `json:"replacement_of,omitempty" db:"replacement_of"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DraftEdit records one operator edit to a draft's copy or schedule.
type DraftEdit struct {
	At      time.Time  `json:"at"`
	By      string     `json:"by"`
	NewCopy string     `json:"new_copy,omitempty"`
	NewTime *time.Time `json:"new_time,omitempty"`
}

// ── Queue Entry ──────────────────────────────────────────────

type QueueEntryStatus string

const (
	QueueEntryQueued     QueueEntryStatus = "queued"
	QueueEntryPublishing QueueEntryStatus = "publishing"
	QueueEntryPublished  QueueEntryStatus = "published"
	QueueEntryFailed     QueueEntryStatus = "failed"
	QueueEntryPaused     QueueEntryStatus = "paused"
)

// QueueEntry is a scheduled publish intention: one per (draft, platform) pair.
type QueueEntry struct {
	ID          string           `json:"id" db:"id"`
	DraftID     string           `json:"draft_id" db:"draft_id"`
	ClientID    string           `json:"client_id" db:"client_id"`
	Platform    Platform         `json:"platform" db:"platform"`
	ScheduledAt time.Time        `json:"scheduled_at" db:"scheduled_at"`
	PublishMode PublishMode      `json:"publish_mode" db:"publish_mode"`
	Status      QueueEntryStatus `json:"status" db:"status"`
	RetryCount  int              `json:"retry_count" db:"retry_count"`

	PlatformPostID  string `json:"platform_post_id,omitempty" db:"platform_post_id"`
	PlatformPostURL string `json:"platform_post_url,omitempty" db:"platform_post_url"`
	ErrorMessage    string `json:"error_message,omitempty" db:"error_message"`
	ImageRef        string `json:"image_ref,omitempty" db:"image_ref"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ── Audit Record ─────────────────────────────────────────────

type Actor string

const (
	ActorOperatorWeb     Actor = "operator:web"
	ActorOperatorBot     Actor = "operator:bot"
	ActorOperatorCLI     Actor = "operator:cli"
	ActorSophiaPublisher Actor = "sophia:publisher"
	ActorSophiaMonitor   Actor = "sophia:monitor"
)

// AuditRecord is an append-only log entry capturing one mutation's
// before/after state and the actor responsible. Never mutated or deleted.
type AuditRecord struct {
	ID       string `json:"id" db:"id"`
	ClientID string `json:"client_id" db:"client_id"`
	Actor    Actor  `json:"actor" db:"actor"`
	Action   string `json:"action" db:"action"`

	BeforeSnapshot []byte `json:"before_snapshot,omitempty" db:"before_snapshot"`
	AfterSnapshot  []byte `json:"after_snapshot,omitempty" db:"after_snapshot"`

	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// ── Recovery Log ─────────────────────────────────────────────

type RecoveryUrgency string

const (
	RecoveryImmediate RecoveryUrgency = "immediate"
	RecoveryReview    RecoveryUrgency = "review"
)

type RecoveryStatus string

const (
	RecoveryPending              RecoveryStatus = "pending"
	RecoveryExecuting            RecoveryStatus = "executing"
	RecoveryCompleted            RecoveryStatus = "completed"
	RecoveryFailed               RecoveryStatus = "failed"
	RecoveryManualRecoveryNeeded RecoveryStatus = "manual_recovery_needed"
)

// RecoveryLog records a post-publish takedown action. Logs are never
// deleted; Status and ReplacementDraftID are updated in place as the
// takedown completes and a replacement is linked.
type RecoveryLog struct {
	ID                 string          `json:"id" db:"id"`
	DraftID             string          `json:"draft_id" db:"draft_id"`
	ClientID            string          `json:"client_id" db:"client_id"`
	Platform            Platform        `json:"platform" db:"platform"`
	PlatformPostID      string          `json:"platform_post_id" db:"platform_post_id"`
	Urgency             RecoveryUrgency `json:"urgency" db:"urgency"`
	Reason              string          `json:"reason" db:"reason"`
	Status              RecoveryStatus  `json:"status" db:"status"`
	Actor               Actor           `json:"actor" db:"actor"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	ReplacementDraftID  string          `json:"replacement_draft_id,omitempty" db:"replacement_draft_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ── Global Publish State ─────────────────────────────────────

// GlobalPublishState is a singleton, process-wide row: when paused, the
// scheduler holds all outbound dispatches without advancing queue entries.
type GlobalPublishState struct {
	Paused   bool       `json:"paused" db:"paused"`
	PausedBy string     `json:"paused_by,omitempty" db:"paused_by"`
	PausedAt *time.Time `json:"paused_at,omitempty" db:"paused_at"`
}

// ── Notification Preference ──────────────────────────────────

type NotificationChannelKind string

const (
	ChannelBrowser NotificationChannelKind = "browser"
	ChannelBot     NotificationChannelKind = "bot"
	ChannelEmail   NotificationChannelKind = "email"
)

// NotificationPreference configures, per channel, whether and which event
// types an operator surface should receive.
type NotificationPreference struct {
	Channel NotificationChannelKind `json:"channel"`
	Enabled bool                    `json:"enabled"`
	// Events is a subscription set; an empty set means "subscribe to all".
	Events map[EventType]bool `json:"events,omitempty"`
}

// ── Event ────────────────────────────────────────────────────

type EventType string

const (
	EventApprovalChanged  EventType = "approval_changed"
	EventPublishComplete  EventType = "publish_complete"
	EventPublishFailed    EventType = "publish_failed"
	EventRecoveryComplete EventType = "recovery_complete"
	EventContentStale     EventType = "content_stale"
)

// Event is an ephemeral message carried on the event bus.
type Event struct {
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// ── Cadence & client repository payloads ─────────────────────

// Cadence describes per-client posting-frequency rules.
type Cadence struct {
	PostsPerWeekPerPlatform map[Platform]int `json:"posts_per_week_per_platform"`
	MinHoursBetweenPosts    float64          `json:"min_hours_between_posts"`
	PreferredDays           []string         `json:"preferred_days,omitempty"`
	// PreferredWindowExpr is an optional expr-lang boolean expression
	// evaluated against candidate slot variables (hour, weekday) to break
	// ties among cadence-satisfying slots. Never a hard constraint.
	PreferredWindowExpr string `json:"preferred_window_expr,omitempty"`
}

// PlatformAccounts maps a client to its platform account identities.
type PlatformAccounts struct {
	FacebookID  string `json:"facebook_id,omitempty"`
	InstagramID string `json:"instagram_id,omitempty"`
}
