package audit

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
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

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	entry := &AuditLog{
		OrgID:      "org-1",
		Action:     ActionArchive,
		EntityType: "device",
		EntityID:   "dev-1",
		UserID:     "ops@freshtrack.test",
		Details:    map[string]any{"job_id": "job-1"},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if entry.ID == "" {
		t.Error("Create must assign an ID")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("Create must stamp CreatedAt")
	}

	result, err := repo.List(ctx, "org-1", Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 1 || len(result.Logs) != 1 {
		t.Fatalf("total = %d, logs = %d, want 1/1", result.Total, len(result.Logs))
	}

	got := result.Logs[0]
	if got.Action != ActionArchive || got.EntityID != "dev-1" {
		t.Errorf("log = %+v", got)
	}
	if got.UserID != "ops@freshtrack.test" {
		t.Errorf("user = %q", got.UserID)
	}
	if got.Details["job_id"] != "job-1" {
		t.Errorf("details = %v", got.Details)
	}
}

func TestListScopedToOrg(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	for _, org := range []string{"org-1", "org-2"} {
		err := repo.Create(ctx, &AuditLog{
			OrgID:      org,
			Action:     ActionEnsure,
			EntityType: "organisation",
			EntityID:   org,
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	result, err := repo.List(ctx, "org-1", Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 1 {
		t.Errorf("total = %d, want 1", result.Total)
	}
	if result.Logs[0].OrgID != "org-1" {
		t.Errorf("org = %q", result.Logs[0].OrgID)
	}
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	seed := []AuditLog{
		{OrgID: "org-1", Action: ActionArchive, EntityType: "device", EntityID: "dev-1"},
		{OrgID: "org-1", Action: ActionArchive, EntityType: "gateway", EntityID: "gw-1"},
		{OrgID: "org-1", Action: ActionJobRetry, EntityType: "job", EntityID: "job-1"},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by action", Filter{Action: ActionArchive}, 2},
		{"by entity type", Filter{EntityType: "gateway"}, 1},
		{"by entity id", Filter{EntityID: "job-1"}, 1},
		{"action and type", Filter{Action: ActionArchive, EntityType: "device"}, 1},
		{"no match", Filter{Action: ActionOrphanEnqueue}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, "org-1", tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if result.Total != tt.want {
				t.Errorf("total = %d, want %d", result.Total, tt.want)
			}
		})
	}
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	for i := 0; i < 5; i++ {
		err := repo.Create(ctx, &AuditLog{
			OrgID:      "org-1",
			Action:     ActionEnsure,
			EntityType: "organisation",
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	result, err := repo.List(ctx, "org-1", Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 5 {
		t.Errorf("total = %d, want 5", result.Total)
	}
	if len(result.Logs) != 1 {
		t.Errorf("page size = %d, want 1", len(result.Logs))
	}
}
