package netconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/registry"
)

// RightsChecker is the slice of the registry client validation uses.
type RightsChecker interface {
	AuthInfo(ctx context.Context) ([]string, *registry.Response, error)
}

// ApplyInput is a candidate configuration submitted for validation and
// persistence. APIKey is write-only: only its last four characters are
// retained, the secret itself never reaches the store.
type ApplyInput struct {
	OrgID           string
	Enabled         bool
	APIKey          string
	ApplicationID   string
	Cluster         string
	CredentialScope CredentialScope
}

// ApplyResult reports the outcome of an Apply: the persisted
// configuration, the trust state it landed in, and the validation
// evidence.
type ApplyResult struct {
	Config     *OrgConfig        `json:"config"`
	State      State             `json:"state"`
	Validation *ValidationResult `json:"validation"`
}

// StatusResult reports the stored configuration's current trust state.
type StatusResult struct {
	Config  *OrgConfig `json:"config"`
	State   State      `json:"state"`
	Drifted bool       `json:"drifted"`
}

// Service owns the configuration trust lifecycle: candidate values are
// validated against the registry, persisted, and canonicalised, and the
// stored record can later be checked for drift against its canonical
// hash. Every transition runs through the state machine.
type Service struct {
	repo    Repository
	rights  RightsChecker
	machine *Machine
	logger  Logger
}

// NewService creates a configuration service.
func NewService(repo Repository, rights RightsChecker) *Service {
	return &Service{
		repo:    repo,
		rights:  rights,
		machine: NewMachine(),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the service and its state machine.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
	s.machine.SetLogger(logger)
}

// Apply runs a candidate configuration through draft, validated and
// canonical. Validation failures leave the stored record untouched: an
// invalid candidate must never displace a working configuration.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (*ApplyResult, error) {
	if in.OrgID == "" {
		return nil, ErrInvalidOrgID
	}

	existing, err := s.repo.Get(ctx, in.OrgID)
	if err != nil && !errors.Is(err, ErrConfigNotFound) {
		return nil, fmt.Errorf("loading existing config: %w", err)
	}

	mctx := NewContext()
	if existing != nil && existing.CanonicalHash != nil {
		mctx.CanonicalHash = *existing.CanonicalHash
	}

	result := &ValidationResult{
		Cluster:       in.Cluster,
		ApplicationID: in.ApplicationID,
		CorrelationID: uuid.New().String(),
		CheckedAt:     time.Now().UTC(),
	}

	rights, _, err := s.rights.AuthInfo(ctx)
	if err != nil {
		s.machine.SetInvalid(mctx, err.Error())
		s.logger.Warn("configuration validation failed",
			"org_id", in.OrgID,
			"correlation_id", result.CorrelationID,
			"error", err,
		)
		return &ApplyResult{State: mctx.State, Validation: result}, err
	}

	result.Valid = true
	result.GrantedRights = rights
	gatewayOK := hasGatewayRights(rights)
	if !gatewayOK {
		result.MissingRights = []string{registry.RightGatewayLink}
	}
	s.machine.SetValidated(mctx, result)

	cfg := s.mergeConfig(existing, in, gatewayOK)

	// Persist as authoritative first, then record the drift baseline.
	cfg.CanonicalHash = nil
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return nil, fmt.Errorf("persisting config: %w", err)
	}

	hash := ComputeDriftHash(driftInputFor(cfg))
	s.machine.SetCanonical(mctx, hash)
	if err := s.repo.SetCanonicalHash(ctx, in.OrgID, hash); err != nil {
		return nil, fmt.Errorf("persisting canonical hash: %w", err)
	}
	cfg.CanonicalHash = &hash

	s.logger.Info("configuration canonicalised",
		"org_id", in.OrgID,
		"correlation_id", result.CorrelationID,
		"gateway_rights_verified", gatewayOK,
	)
	return &ApplyResult{Config: cfg, State: mctx.State, Validation: result}, nil
}

// Status reports the stored configuration's trust state. A record whose
// current values no longer hash to the canonical baseline is drifted;
// the coordinator's checkpoint updates are a legitimate source of such
// divergence and the answer is re-validating via Apply.
func (s *Service) Status(ctx context.Context, orgID string) (*StatusResult, error) {
	cfg, err := s.repo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	mctx := NewContext()
	if cfg.CanonicalHash != nil {
		mctx.State = StateCanonical
		mctx.Source = SourceCanonicalStore
		mctx.CanonicalHash = *cfg.CanonicalHash
	}

	drifted := s.machine.CheckForDrift(mctx, driftInputFor(cfg))
	return &StatusResult{Config: cfg, State: mctx.State, Drifted: drifted}, nil
}

// mergeConfig folds the candidate values over the existing record,
// keeping what the input does not replace. Changing the application
// resets the ensure checkpoints: they attest to a different resource.
func (s *Service) mergeConfig(existing *OrgConfig, in ApplyInput, gatewayOK bool) *OrgConfig {
	cfg := &OrgConfig{OrgID: in.OrgID}
	if existing != nil {
		*cfg = *existing
	}

	cfg.Enabled = in.Enabled
	cfg.Cluster = in.Cluster
	cfg.GatewayRightsVerified = gatewayOK
	if in.CredentialScope != "" {
		cfg.CredentialScope = in.CredentialScope
	}

	if in.APIKey != "" {
		cfg.HasAPIKey = true
		cfg.APIKeyLast4 = lastFour(in.APIKey)
	}

	if in.ApplicationID != "" {
		if cfg.ApplicationID == nil || *cfg.ApplicationID != in.ApplicationID {
			cfg.ApplicationCreated = false
			cfg.WebhookConfigured = false
		}
		appID := in.ApplicationID
		cfg.ApplicationID = &appID
	}

	return cfg
}

// driftInputFor extracts the hashed tuple from a stored record.
func driftInputFor(cfg *OrgConfig) DriftInput {
	var appID string
	if cfg.ApplicationID != nil {
		appID = *cfg.ApplicationID
	}
	return DriftInput{
		Cluster:       cfg.Cluster,
		ApplicationID: appID,
		APIKeyLast4:   cfg.APIKeyLast4,
		Enabled:       cfg.Enabled,
	}
}

// hasGatewayRights reports whether the granted rights cover gateway
// management.
func hasGatewayRights(rights []string) bool {
	for _, r := range rights {
		if r == "RIGHT_ALL" || strings.HasPrefix(r, "RIGHT_GATEWAY_") {
			return true
		}
	}
	return false
}

func lastFour(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}
