package domain

// Run statuses.
const (
	RunQueued             = "queued"
	RunRunning            = "running"
	RunBlockedForApproval = "blocked_for_approval"
	RunSucceeded          = "succeeded"
	RunFailed             = "failed"
)

// TaskRun statuses.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskSucceeded = "succeeded"
	TaskFailed    = "failed"
	TaskSkipped   = "skipped"
)

// Approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalDenied   = "denied"
)

// Broker listing lifecycle statuses.
const (
	ListingFound               = "found"
	ListingRemovalSubmitted    = "removal_submitted"
	ListingPendingVerification = "pending_verification"
	ListingRemoved             = "removed"
	ListingReappeared          = "reappeared"
	ListingManualRequired      = "manual_required"
	ListingFailed              = "failed"
)

// Run error codes recorded on terminal failure.
const (
	ErrCodeTaskFailed       = "TASK_EXECUTION_FAILED"
	ErrCodeApprovalDenied   = "APPROVAL_DENIED"
	ErrCodeRunTimeout       = "RUN_TIMEOUT"
	ErrCodePlanHashMismatch = "PLAN_HASH_MISMATCH"
	ErrCodeClaimLost        = "CLAIM_LOST"
)

type Run struct {
	RunID          string  `json:"run_id"`
	PlanID         string  `json:"plan_id"`
	PlanHash       string  `json:"plan_hash"`
	Status         string  `json:"status" enum:"queued,running,blocked_for_approval,succeeded,failed"`
	RequestedBy    *string `json:"requested_by,omitempty"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	StartedAt      *string `json:"started_at,omitempty" format:"date-time"`
	FinishedAt     *string `json:"finished_at,omitempty" format:"date-time"`
	ClaimedBy      *string `json:"claimed_by,omitempty"`
	ClaimExpiresAt *string `json:"claim_expires_at,omitempty" format:"date-time"`
	WakeAt         *string `json:"wake_at,omitempty" format:"date-time"`
	ParamsJSON     string  `json:"params_json"`
	ErrorCode      *string `json:"error_code,omitempty"`
	ErrorMessage   *string `json:"error_message,omitempty"`
}

type TaskRun struct {
	TaskRunID        string  `json:"task_run_id"`
	RunID            string  `json:"run_id"`
	TaskID           string  `json:"task_id"`
	TaskIndex        int     `json:"task_index"`
	TaskName         string  `json:"task_name"`
	TaskType         string  `json:"task_type"`
	Status           string  `json:"status" enum:"pending,running,succeeded,failed,skipped"`
	Attempt          int     `json:"attempt"`
	MaxAttempts      int     `json:"max_attempts"`
	Idempotent       bool    `json:"idempotent"`
	RequiresApproval bool    `json:"requires_approval"`
	StartedAt        *string `json:"started_at,omitempty" format:"date-time"`
	FinishedAt       *string `json:"finished_at,omitempty" format:"date-time"`
	InputJSON        string  `json:"input_json"`
	OutputJSON       *string `json:"output_json,omitempty"`
	ErrorCode        *string `json:"error_code,omitempty"`
	ErrorMessage     *string `json:"error_message,omitempty"`
}

type Approval struct {
	ApprovalID  string  `json:"approval_id"`
	RunID       string  `json:"run_id"`
	TaskID      string  `json:"task_id"`
	Status      string  `json:"status" enum:"pending,approved,denied"`
	Prompt      string  `json:"prompt"`
	PreviewJSON *string `json:"preview_json,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	ResolvedAt  *string `json:"resolved_at,omitempty" format:"date-time"`
	ResolvedBy  *string `json:"resolved_by,omitempty"`
}

// Profile is the persisted, encrypted form of a PII profile. Plaintext exists
// only inside a bounded decrypt scope; it is never stored or logged.
type Profile struct {
	ProfileID  string `json:"profile_id"`
	Label      string `json:"label"`
	Ciphertext []byte `json:"-"`
	Nonce      []byte `json:"-"`
	AuthTag    []byte `json:"-"`
	DataHash   string `json:"data_hash"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

type BrokerListing struct {
	ListingID         string  `json:"listing_id"`
	BrokerID          string  `json:"broker_id"`
	ProfileID         string  `json:"profile_id"`
	Status            string  `json:"status" enum:"found,removal_submitted,pending_verification,removed,reappeared,manual_required,failed"`
	ListingURL        *string `json:"listing_url,omitempty"`
	SnapshotJSON      *string `json:"listing_snapshot,omitempty"`
	MatchedFieldsJSON *string `json:"matched_fields,omitempty"`
	Confidence        float64 `json:"confidence"`
	DiscoveredAt      string  `json:"discovered_at" format:"date-time"`
	RemovalSentAt     *string `json:"removal_sent_at,omitempty" format:"date-time"`
	VerifiedAt        *string `json:"verified_at,omitempty" format:"date-time"`
	LastCheckedAt     *string `json:"last_checked_at,omitempty" format:"date-time"`
	RecheckAfter      *string `json:"recheck_after,omitempty" format:"date-time"`
	Notes             *string `json:"notes,omitempty"`
}

type ScanSchedule struct {
	ScheduleID   string  `json:"schedule_id"`
	BrokerID     string  `json:"broker_id"`
	ProfileID    string  `json:"profile_id"`
	ScanType     string  `json:"scan_type"`
	NextRunAt    string  `json:"next_run_at" format:"date-time"`
	LastRunID    *string `json:"last_run_id,omitempty"`
	LastRunAt    *string `json:"last_run_at,omitempty" format:"date-time"`
	IntervalDays int     `json:"interval_days"`
	Enabled      bool    `json:"enabled"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type HumanQueueItem struct {
	QueueID        string  `json:"queue_id"`
	ListingID      *string `json:"listing_id,omitempty"`
	BrokerID       string  `json:"broker_id"`
	ActionNeeded   string  `json:"action_needed"`
	Instructions   *string `json:"instructions,omitempty"`
	Priority       int     `json:"priority"`
	Status         string  `json:"status" enum:"pending,completed"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	CompletedAt    *string `json:"completed_at,omitempty" format:"date-time"`
	CompletedNotes *string `json:"completed_notes,omitempty"`
}

type Artifact struct {
	ArtifactID   string  `json:"artifact_id"`
	RunID        string  `json:"run_id"`
	Kind         string  `json:"kind"`
	ContentType  string  `json:"content_type"`
	URI          string  `json:"uri"`
	MetadataJSON *string `json:"metadata,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
