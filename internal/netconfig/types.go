package netconfig

import "time"

// State is the trust level of a network configuration.
type State string

// Configuration trust states.
const (
	// StateLocalDraft is an unvalidated local edit.
	StateLocalDraft State = "local_draft"

	// StateValidated has been checked against the registry but not yet
	// persisted as authoritative.
	StateValidated State = "validated"

	// StateCanonical is the persisted authoritative configuration.
	StateCanonical State = "canonical"

	// StateDrifted means local values no longer match the canonical
	// record. Reachable only from canonical.
	StateDrifted State = "drifted"

	// StateInvalid means validation failed outright.
	StateInvalid State = "invalid"
)

// Source records where the current configuration values came from.
type Source string

// Configuration sources.
const (
	SourceLocal          Source = "LOCAL"
	SourceCanonicalStore Source = "CANONICAL_STORE"
	SourceExternalSync   Source = "EXTERNAL_SYNC"
)

// Context is the per-organisation configuration session tracked by the
// state machine. Mutate it only through Machine's transition methods.
type Context struct {
	State                State
	Source               Source
	CanonicalHash        string
	LocalHash            string
	LastValidatedAt      *time.Time
	LastValidationResult *ValidationResult
	ErrorMessage         string
}

// NewContext returns a fresh draft context.
func NewContext() *Context {
	return &Context{
		State:  StateLocalDraft,
		Source: SourceLocal,
	}
}

// ValidationResult is the outcome of testing a candidate configuration
// against the registry. Immutable once created.
type ValidationResult struct {
	Valid         bool      `json:"valid"`
	GrantedRights []string  `json:"granted_rights,omitempty"`
	MissingRights []string  `json:"missing_rights,omitempty"`
	Cluster       string    `json:"cluster,omitempty"`
	ApplicationID string    `json:"application_id,omitempty"`
	CorrelationID string    `json:"correlation_id"`
	CheckedAt     time.Time `json:"checked_at"`
}

// CredentialScope distinguishes what a stored registry credential can
// manage. Application-scoped keys structurally cannot touch gateways.
type CredentialScope string

// Credential scopes.
const (
	ScopeOrg         CredentialScope = "org_scoped"
	ScopeApplication CredentialScope = "application_scoped"
)

// OrgConfig is the canonical stored registry configuration for one
// organisation, including the coordinator's checkpoint flags.
type OrgConfig struct {
	OrgID                 string
	Enabled               bool
	HasAPIKey             bool
	APIKeyLast4           string
	ApplicationID         *string
	Cluster               string
	CredentialScope       CredentialScope
	GatewayRightsVerified bool
	ApplicationCreated    bool
	WebhookConfigured     bool
	CanonicalHash         *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// DriftInput is the normalised tuple the drift hash is computed over.
type DriftInput struct {
	Cluster       string
	ApplicationID string
	APIKeyLast4   string
	Enabled       bool
}
