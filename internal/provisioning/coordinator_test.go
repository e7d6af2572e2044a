package provisioning

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/netconfig"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/registry"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the tables the
// coordinator touches.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE org_registry_config (
			org_id TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 0,
			has_api_key INTEGER NOT NULL DEFAULT 0,
			api_key_last4 TEXT NOT NULL DEFAULT '',
			application_id TEXT,
			cluster TEXT NOT NULL DEFAULT '',
			credential_scope TEXT NOT NULL DEFAULT 'org_scoped',
			gateway_rights_verified INTEGER NOT NULL DEFAULT 0,
			application_created INTEGER NOT NULL DEFAULT 0,
			webhook_configured INTEGER NOT NULL DEFAULT 0,
			canonical_hash TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE TABLE provisioning_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			org_id TEXT NOT NULL,
			step TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			request_id TEXT,
			http_status INTEGER,
			response_body TEXT,
			error_category TEXT,
			endpoint TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// fakeRegistry scripts registry responses for the coordinator.
type fakeRegistry struct {
	getErr        error
	createErr     error
	webhookErr    error
	deviceErr     error
	gatewayErr    error
	gatewayKeyErr error

	getCalls        int
	createCalls     int
	webhookCalls    int
	deviceCalls     int
	gatewayCalls    int
	gatewayKeyCalls int

	lastDevice  registry.EndDevice
	lastGateway registry.Gateway
}

func (f *fakeRegistry) GetApplication(context.Context, string) (*registry.Response, error) {
	f.getCalls++
	return &registry.Response{Status: 200}, f.getErr
}

func (f *fakeRegistry) CreateApplication(context.Context, registry.Owner, registry.Application) (*registry.Response, error) {
	f.createCalls++
	return &registry.Response{Status: 201, RequestID: "req-create"}, f.createErr
}

func (f *fakeRegistry) SetWebhook(context.Context, string, registry.Webhook) (*registry.Response, error) {
	f.webhookCalls++
	return &registry.Response{Status: 200}, f.webhookErr
}

func (f *fakeRegistry) CreateDevice(_ context.Context, _ string, dev registry.EndDevice) (*registry.Response, error) {
	f.deviceCalls++
	f.lastDevice = dev
	return &registry.Response{Status: 201}, f.deviceErr
}

func (f *fakeRegistry) CreateGateway(_ context.Context, _ registry.Owner, gw registry.Gateway) (*registry.Response, error) {
	f.gatewayCalls++
	f.lastGateway = gw
	return &registry.Response{Status: 201}, f.gatewayErr
}

func (f *fakeRegistry) CreateGatewayAPIKey(_ context.Context, _, name string, rights []string) (*registry.APIKey, *registry.Response, error) {
	f.gatewayKeyCalls++
	if f.gatewayKeyErr != nil {
		return nil, &registry.Response{Status: 500}, f.gatewayKeyErr
	}
	return &registry.APIKey{ID: "key-1", Key: "NNSXS.GWSECRET", Name: name, Rights: rights},
		&registry.Response{Status: 201}, nil
}

func newTestCoordinator(t *testing.T, reg *fakeRegistry) (*Coordinator, netconfig.Repository, LogRepository) {
	t.Helper()
	db := setupTestDB(t)
	configs := netconfig.NewSQLiteRepository(db)
	logs := NewSQLiteLogRepository(db)
	coord := NewCoordinator(reg, configs, logs,
		registry.Owner{Type: registry.OwnerUser, ID: "platform-admin"},
		"https://api.freshtrack.example.com")
	return coord, configs, logs
}

func seedConfig(t *testing.T, configs netconfig.Repository, cfg *netconfig.OrgConfig) {
	t.Helper()
	if err := configs.Upsert(context.Background(), cfg); err != nil {
		t.Fatalf("seeding config: %v", err)
	}
}

func TestEnsureApplication(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh organisation runs both steps", func(t *testing.T) {
		reg := &fakeRegistry{getErr: registry.ErrNotFound}
		coord, configs, _ := newTestCoordinator(t, reg)
		seedConfig(t, configs, &netconfig.OrgConfig{OrgID: "acme-foods", Enabled: true, HasAPIKey: true})

		result, err := coord.EnsureApplication(ctx, "acme-foods")
		if err != nil {
			t.Fatalf("EnsureApplication: %v", err)
		}
		if !result.Completed || !result.ApplicationCreated || !result.WebhookConfigured {
			t.Errorf("result = %+v", result)
		}
		if result.ApplicationID != "ft-app-acme-foods" {
			t.Errorf("application id = %q", result.ApplicationID)
		}
		if reg.createCalls != 1 || reg.webhookCalls != 1 {
			t.Errorf("calls: create=%d webhook=%d", reg.createCalls, reg.webhookCalls)
		}

		cfg, err := configs.Get(ctx, "acme-foods")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !cfg.ApplicationCreated || !cfg.WebhookConfigured {
			t.Errorf("checkpoints not persisted: %+v", cfg)
		}
		if cfg.ApplicationID == nil || *cfg.ApplicationID != "ft-app-acme-foods" {
			t.Errorf("application id not persisted: %v", cfg.ApplicationID)
		}
	})

	t.Run("creation conflict is success and webhook still runs", func(t *testing.T) {
		reg := &fakeRegistry{getErr: registry.ErrNotFound, createErr: registry.ErrConflict}
		coord, configs, _ := newTestCoordinator(t, reg)
		seedConfig(t, configs, &netconfig.OrgConfig{OrgID: "acme-foods", Enabled: true, HasAPIKey: true})

		result, err := coord.EnsureApplication(ctx, "acme-foods")
		if err != nil {
			t.Fatalf("EnsureApplication: %v", err)
		}
		if !result.ApplicationCreated {
			t.Error("conflict must be treated as created")
		}
		if reg.webhookCalls != 1 {
			t.Error("webhook step must still run after a creation conflict")
		}

		cfg, _ := configs.Get(ctx, "acme-foods")
		if !cfg.ApplicationCreated {
			t.Error("application checkpoint not persisted after conflict")
		}
	})

	t.Run("application checkpoint skips the lookup entirely", func(t *testing.T) {
		reg := &fakeRegistry{}
		coord, configs, logs := newTestCoordinator(t, reg)
		appID := "ft-app-acme-foods"
		seedConfig(t, configs, &netconfig.OrgConfig{
			OrgID: "acme-foods", Enabled: true, HasAPIKey: true,
			ApplicationID: &appID, ApplicationCreated: true,
		})

		result, err := coord.EnsureApplication(ctx, "acme-foods")
		if err != nil {
			t.Fatalf("EnsureApplication: %v", err)
		}
		if reg.getCalls != 0 || reg.createCalls != 0 {
			t.Errorf("application step must be skipped, calls: get=%d create=%d", reg.getCalls, reg.createCalls)
		}
		if !result.Completed {
			t.Error("expected completion")
		}

		entries, err := logs.ListByOrg(ctx, "acme-foods", 50)
		if err != nil {
			t.Fatalf("ListByOrg: %v", err)
		}
		var sawSkip bool
		for _, e := range entries {
			if e.Step == "ensure_application" && e.Status == StepSkipped {
				sawSkip = true
			}
		}
		if !sawSkip {
			t.Error("skipped application step not logged")
		}
	})

	t.Run("auth failure is fatal with partial progress", func(t *testing.T) {
		reg := &fakeRegistry{
			getErr:     registry.ErrNotFound,
			createErr:  &registry.AuthError{Status: 403, Hint: "regenerate the key with application rights"},
		}
		coord, configs, logs := newTestCoordinator(t, reg)
		seedConfig(t, configs, &netconfig.OrgConfig{OrgID: "acme-foods", Enabled: true, HasAPIKey: true})

		result, err := coord.EnsureApplication(ctx, "acme-foods")
		if !registry.IsAuth(err) {
			t.Fatalf("expected auth error, got %v", err)
		}
		var ae *registry.AuthError
		if !errors.As(err, &ae) || ae.Hint == "" {
			t.Error("auth error must carry a remediation hint")
		}
		if result == nil || result.ApplicationCreated || result.Completed {
			t.Errorf("result = %+v, want untouched checkpoints", result)
		}
		if reg.webhookCalls != 0 {
			t.Error("fatal error must abort remaining steps")
		}

		entries, _ := logs.ListByOrg(ctx, "acme-foods", 50)
		var sawAuthFailure bool
		for _, e := range entries {
			if e.Status == StepFailed && e.ErrorCategory != nil && *e.ErrorCategory == "auth" {
				sawAuthFailure = true
			}
		}
		if !sawAuthFailure {
			t.Error("auth failure not recorded in provisioning log")
		}
	})

	t.Run("missing configuration", func(t *testing.T) {
		coord, _, _ := newTestCoordinator(t, &fakeRegistry{})
		if _, err := coord.EnsureApplication(ctx, "unknown-org"); !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("expected ErrNotConfigured, got %v", err)
		}
	})
}

func TestApplicationIDForOrg(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"acme-foods", "ft-app-acme-foods"},
		{"Acme Foods Inc.", "ft-app-acme-foods-inc"},
		{"  spaced  ", "ft-app-spaced"},
		{"org_42", "ft-app-org-42"},
	}
	for _, tt := range tests {
		if got := ApplicationIDForOrg(tt.in); got != tt.want {
			t.Errorf("ApplicationIDForOrg(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
