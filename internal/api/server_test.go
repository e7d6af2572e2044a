package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/audit"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/deprovision"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/fleet"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/config"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/logging"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/netconfig"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/provisioning"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/registry"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// testEnv bundles a fully wired server with the repositories the tests
// seed data through.
type testEnv struct {
	srv      *Server
	router   http.Handler
	db       *sql.DB
	devices  *fleet.SQLiteDeviceRepository
	gateways *fleet.SQLiteGatewayRepository
	configs  *netconfig.SQLiteRepository
	jobs     *deprovision.Repository
}

// newTestEnv wires a server against in-memory SQLite and a stub registry.
// identity and regional handle the registry's two clusters; nil means
// "respond 200 with an empty object" for every call.
func newTestEnv(t *testing.T, identity, regional http.HandlerFunc) *testEnv {
	t.Helper()

	if identity == nil {
		identity = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`)) //nolint:errcheck
		}
	}
	if regional == nil {
		regional = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`)) //nolint:errcheck
		}
	}
	identitySrv := httptest.NewServer(identity)
	regionalSrv := httptest.NewServer(regional)
	t.Cleanup(identitySrv.Close)
	t.Cleanup(regionalSrv.Close)

	db := setupTestDB(t)
	devices := fleet.NewSQLiteDeviceRepository(db)
	gateways := fleet.NewSQLiteGatewayRepository(db)
	configs := netconfig.NewSQLiteRepository(db)
	jobs := deprovision.NewRepository(db)
	stepLog := provisioning.NewSQLiteLogRepository(db)

	reg := registry.New(registry.Config{
		IdentityURL:  identitySrv.URL,
		RegionalURL:  regionalSrv.URL,
		RegionalHost: "nam1.test",
		APIKey:       "NNSXS.TESTKEY",
		Timeout:      5 * time.Second,
	})

	coordinator := provisioning.NewCoordinator(reg, configs, stepLog,
		registry.Owner{Type: registry.OwnerUser, ID: "freshtrack-platform"},
		"https://ingest.test")

	fleetSvc := fleet.NewService(devices, gateways, jobs)
	netcfgSvc := netconfig.NewService(configs, reg)

	log := logging.New(config.Logging{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.API{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeouts{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Security: config.Security{
			JWT: config.JWT{Secret: testJWTSecret},
		},
		Logger:       log,
		Devices:      devices,
		Gateways:     gateways,
		Fleet:        fleetSvc,
		Configs:      configs,
		NetConfig:    netcfgSvc,
		Coordinator:  coordinator,
		ProvisionLog: stepLog,
		Jobs:         jobs,
		Reconciler:   deprovision.NewReconciler(reg, devices, jobs),
		Audit:        audit.NewSQLiteRepository(db),
		Version:      "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testEnv{
		srv:      srv,
		router:   srv.buildRouter(),
		db:       db,
		devices:  devices,
		gateways: gateways,
		configs:  configs,
		jobs:     jobs,
	}
}

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			dev_eui TEXT NOT NULL,
			app_key TEXT,
			registry_id TEXT,
			registry_application_id TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			UNIQUE (org_id, dev_eui)
		) STRICT;
		CREATE TABLE gateways (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			gateway_eui TEXT NOT NULL,
			registry_id TEXT,
			frequency_plan TEXT NOT NULL DEFAULT 'US_902_928_FSB_2',
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			UNIQUE (org_id, gateway_eui)
		) STRICT;
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
		CREATE TABLE deprovision_jobs (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_eui TEXT NOT NULL,
			registry_id TEXT,
			registry_application_id TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			attempts INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 5,
			next_retry_at TEXT,
			last_error_code TEXT,
			last_error_message TEXT,
			last_error_payload TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			completed_at TEXT
		) STRICT;
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			user_id TEXT,
			details TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// testToken mints a bearer token. canManage nil omits the claim.
func testToken(t *testing.T, canManage *bool) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": "ops@freshtrack.test",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if canManage != nil {
		claims["can_manage"] = *canManage
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// doRequest performs a request against the router and decodes nothing.
func (e *testEnv) doRequest(t *testing.T, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
	}
	return resp
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
