package deprovision

import "time"

// Status is the lifecycle state of a deprovision job.
type Status string

// Job statuses. PENDING and RETRYING are claimable; BLOCKED is terminal
// until an explicit reset.
const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusRetrying  Status = "RETRYING"
	StatusFailed    Status = "FAILED"
	StatusBlocked   Status = "BLOCKED"
	StatusSucceeded Status = "SUCCEEDED"
)

// EntityType identifies what kind of registry record a job removes.
type EntityType string

// Entity types.
const (
	EntityDevice  EntityType = "device"
	EntityGateway EntityType = "gateway"
)

// Job reasons.
const (
	// ReasonArchived marks jobs created by the normal archival flow.
	ReasonArchived = "ARCHIVED"

	// ReasonManualCleanup marks jobs enqueued from an orphan scan.
	ReasonManualCleanup = "MANUAL_CLEANUP"
)

// Job is one pending registry-side removal.
type Job struct {
	ID                    string     `json:"id"`
	OrgID                 string     `json:"org_id"`
	EntityType            EntityType `json:"entity_type"`
	EntityEUI             string     `json:"entity_eui"`
	RegistryID            *string    `json:"registry_id"`
	RegistryApplicationID string     `json:"registry_application_id"`
	Reason                string     `json:"reason"`
	Status                Status     `json:"status"`
	Attempts              int        `json:"attempts"`
	MaxAttempts           int        `json:"max_attempts"`
	NextRetryAt           *time.Time `json:"next_retry_at,omitempty"`
	LastErrorCode         *string    `json:"last_error_code,omitempty"`
	LastErrorMessage      *string    `json:"last_error_message,omitempty"`
	LastErrorPayload      *string    `json:"last_error_payload,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

// EnqueueParams are the caller-supplied fields of a new job.
type EnqueueParams struct {
	OrgID                 string
	EntityType            EntityType
	EntityEUI             string
	RegistryID            *string
	RegistryApplicationID string
	Reason                string
	MaxAttempts           int // zero means the repository default
}

// Stats are the per-organisation job counts. The five primary buckets
// plus succeeded partition all jobs exactly.
type Stats struct {
	Pending        int `json:"pending"`
	Running        int `json:"running"`
	Retrying       int `json:"retrying"`
	Failed         int `json:"failed"`
	Blocked        int `json:"blocked"`
	Succeeded      int `json:"succeeded"`
	NeedsAttention int `json:"needs_attention"`
}

// JobError captures the failure detail recorded on a job row after an
// unsuccessful attempt.
type JobError struct {
	Code    string
	Message string
	Payload string
}
