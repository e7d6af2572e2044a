package netconfig

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository stores per-organisation registry configuration.
type Repository interface {
	// Get returns the configuration for an organisation, or
	// ErrConfigNotFound.
	Get(ctx context.Context, orgID string) (*OrgConfig, error)

	// Upsert creates or replaces the configuration row. Checkpoint
	// flags are written as given; use the Set* methods for the
	// incremental checkpoint updates the coordinator makes.
	Upsert(ctx context.Context, cfg *OrgConfig) error

	// SetApplicationCreated persists the application checkpoint and the
	// resolved application ID.
	SetApplicationCreated(ctx context.Context, orgID, applicationID string) error

	// SetWebhookConfigured persists the webhook checkpoint.
	SetWebhookConfigured(ctx context.Context, orgID string) error

	// SetCanonicalHash records the drift baseline after the
	// configuration is persisted as authoritative.
	SetCanonicalHash(ctx context.Context, orgID, hash string) error
}

// SQLiteRepository implements Repository backed by SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository using the given database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, orgID string) (*OrgConfig, error) {
	if orgID == "" {
		return nil, ErrInvalidOrgID
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT org_id, enabled, has_api_key, api_key_last4, application_id,
		       cluster, credential_scope, gateway_rights_verified,
		       application_created, webhook_configured, canonical_hash,
		       created_at, updated_at
		FROM org_registry_config
		WHERE org_id = ?`, orgID)

	var (
		cfg           OrgConfig
		enabled       int
		hasKey        int
		rightsOK      int
		appCreated    int
		webhookDone   int
		applicationID sql.NullString
		hash          sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(&cfg.OrgID, &enabled, &hasKey, &cfg.APIKeyLast4, &applicationID,
		&cfg.Cluster, &cfg.CredentialScope, &rightsOK,
		&appCreated, &webhookDone, &hash,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying org config: %w", err)
	}

	cfg.Enabled = enabled != 0
	cfg.HasAPIKey = hasKey != 0
	cfg.GatewayRightsVerified = rightsOK != 0
	cfg.ApplicationCreated = appCreated != 0
	cfg.WebhookConfigured = webhookDone != 0
	if applicationID.Valid {
		cfg.ApplicationID = &applicationID.String
	}
	if hash.Valid {
		cfg.CanonicalHash = &hash.String
	}
	cfg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &cfg, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, cfg *OrgConfig) error {
	if cfg.OrgID == "" {
		return ErrInvalidOrgID
	}
	if cfg.CredentialScope == "" {
		cfg.CredentialScope = ScopeOrg
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO org_registry_config (
			org_id, enabled, has_api_key, api_key_last4, application_id,
			cluster, credential_scope, gateway_rights_verified,
			application_created, webhook_configured, canonical_hash,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET
			enabled = excluded.enabled,
			has_api_key = excluded.has_api_key,
			api_key_last4 = excluded.api_key_last4,
			application_id = excluded.application_id,
			cluster = excluded.cluster,
			credential_scope = excluded.credential_scope,
			gateway_rights_verified = excluded.gateway_rights_verified,
			application_created = excluded.application_created,
			webhook_configured = excluded.webhook_configured,
			canonical_hash = excluded.canonical_hash,
			updated_at = excluded.updated_at`,
		cfg.OrgID, boolToInt(cfg.Enabled), boolToInt(cfg.HasAPIKey), cfg.APIKeyLast4,
		nullableString(cfg.ApplicationID), cfg.Cluster, string(cfg.CredentialScope),
		boolToInt(cfg.GatewayRightsVerified), boolToInt(cfg.ApplicationCreated),
		boolToInt(cfg.WebhookConfigured), nullableString(cfg.CanonicalHash),
		now, now)
	if err != nil {
		return fmt.Errorf("upserting org config: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetApplicationCreated(ctx context.Context, orgID, applicationID string) error {
	return r.update(ctx, orgID, `
		UPDATE org_registry_config
		SET application_created = 1, application_id = ?, updated_at = ?
		WHERE org_id = ?`,
		applicationID, time.Now().UTC().Format(time.RFC3339), orgID)
}

func (r *SQLiteRepository) SetWebhookConfigured(ctx context.Context, orgID string) error {
	return r.update(ctx, orgID, `
		UPDATE org_registry_config
		SET webhook_configured = 1, updated_at = ?
		WHERE org_id = ?`,
		time.Now().UTC().Format(time.RFC3339), orgID)
}

func (r *SQLiteRepository) SetCanonicalHash(ctx context.Context, orgID, hash string) error {
	return r.update(ctx, orgID, `
		UPDATE org_registry_config
		SET canonical_hash = ?, updated_at = ?
		WHERE org_id = ?`,
		hash, time.Now().UTC().Format(time.RFC3339), orgID)
}

func (r *SQLiteRepository) update(ctx context.Context, orgID, query string, args ...any) error {
	if orgID == "" {
		return ErrInvalidOrgID
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating org config: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConfigNotFound
	}
	return nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// boolToInt converts a bool to the 0/1 integers SQLite stores.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
