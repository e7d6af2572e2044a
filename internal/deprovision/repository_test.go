package deprovision

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the
// deprovision_jobs table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
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
		CREATE INDEX idx_deprovision_jobs_claim ON deprovision_jobs(status, next_retry_at);
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

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(setupTestDB(t))
}

func enqueueTestJob(t *testing.T, repo *Repository, orgID string) *Job {
	t.Helper()
	registryID := "ft-dev-1"
	job, err := repo.Enqueue(context.Background(), EnqueueParams{
		OrgID:                 orgID,
		EntityType:            EntityDevice,
		EntityEUI:             "A84041000181D5E8",
		RegistryID:            &registryID,
		RegistryApplicationID: "ft-app-acme",
		Reason:                ReasonArchived,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return job
}

func TestEnqueue(t *testing.T) {
	repo := newTestRepository(t)

	job := enqueueTestJob(t, repo, "org-1")
	if job.Status != StatusPending {
		t.Errorf("status = %s, want PENDING", job.Status)
	}
	if job.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want default 5", job.MaxAttempts)
	}
	if job.ID == "" {
		t.Error("missing job ID")
	}

	t.Run("rejects incomplete params", func(t *testing.T) {
		_, err := repo.Enqueue(context.Background(), EnqueueParams{OrgID: "org-1"})
		if !errors.Is(err, ErrInvalidJob) {
			t.Errorf("expected ErrInvalidJob, got %v", err)
		}
	})
}

func TestClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("claims oldest pending job once", func(t *testing.T) {
		repo := newTestRepository(t)
		job := enqueueTestJob(t, repo, "org-1")

		claimed, err := repo.Claim(ctx)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if claimed.ID != job.ID {
			t.Errorf("claimed %s, want %s", claimed.ID, job.ID)
		}
		if claimed.Status != StatusRunning {
			t.Errorf("status = %s, want RUNNING", claimed.Status)
		}

		if _, err := repo.Claim(ctx); !errors.Is(err, ErrNoClaimableJob) {
			t.Errorf("second claim should find nothing, got %v", err)
		}
	})

	t.Run("retrying job claimable only after backoff elapses", func(t *testing.T) {
		repo := newTestRepository(t)
		job := enqueueTestJob(t, repo, "org-1")

		claimed, err := repo.Claim(ctx)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		future := time.Now().Add(time.Hour)
		if err := repo.MarkFailed(ctx, claimed.ID, JobError{Code: "TRANSIENT", Message: "502"}, future); err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}

		if _, err := repo.Claim(ctx); !errors.Is(err, ErrNoClaimableJob) {
			t.Fatalf("job with future next_retry_at must not be claimable, got %v", err)
		}

		// Move the retry time into the past.
		past := time.Now().Add(-time.Minute)
		if _, err := repo.db.Exec(`UPDATE deprovision_jobs SET next_retry_at = ? WHERE id = ?`,
			formatTime(past), job.ID); err != nil {
			t.Fatalf("rewinding retry time: %v", err)
		}

		claimed, err = repo.Claim(ctx)
		if err != nil {
			t.Fatalf("Claim after backoff: %v", err)
		}
		if claimed.Attempts != 1 {
			t.Errorf("attempts = %d, want 1", claimed.Attempts)
		}
	})
}

func TestClaimSingleFlight(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	// One shared connection keeps both goroutines on the same in-memory
	// database and serialises their statements through SQLite itself.
	repo.db.SetMaxOpenConns(1)

	job := enqueueTestJob(t, repo, "org-1")

	gate := make(chan struct{})
	type outcome struct {
		job *Job
		err error
	}
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-gate
			claimed, err := repo.Claim(ctx)
			results <- outcome{job: claimed, err: err}
		}()
	}
	close(gate)

	var winners, losers int
	for i := 0; i < 2; i++ {
		res := <-results
		switch {
		case res.err == nil:
			winners++
			if res.job.ID != job.ID {
				t.Errorf("claimed %s, want %s", res.job.ID, job.ID)
			}
			if res.job.Status != StatusRunning {
				t.Errorf("status = %s, want RUNNING", res.job.Status)
			}
		case errors.Is(res.err, ErrNoClaimableJob):
			losers++
		default:
			t.Errorf("unexpected claim error: %v", res.err)
		}
	}
	if winners != 1 || losers != 1 {
		t.Errorf("winners = %d, losers = %d, want exactly one of each", winners, losers)
	}
}

func TestMarkFailedBlocksAtMaxAttempts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	job := enqueueTestJob(t, repo, "org-1")

	// Put the job at attempts=4 of 5, then fail once more.
	if _, err := repo.db.Exec(`UPDATE deprovision_jobs SET attempts = 4, status = 'RUNNING' WHERE id = ?`, job.ID); err != nil {
		t.Fatalf("seeding attempts: %v", err)
	}

	if err := repo.MarkFailed(ctx, job.ID, JobError{Code: "TRANSIENT", Message: "timeout"}, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", got.Attempts)
	}
	if got.Status != StatusBlocked {
		t.Errorf("status = %s, want BLOCKED", got.Status)
	}
	if got.NextRetryAt != nil {
		t.Error("blocked job must not carry a retry time")
	}

	if _, err := repo.Claim(ctx); !errors.Is(err, ErrNoClaimableJob) {
		t.Errorf("blocked job must be excluded from claim, got %v", err)
	}
}

func TestReset(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	job := enqueueTestJob(t, repo, "org-1")

	if _, err := repo.db.Exec(`
		UPDATE deprovision_jobs
		SET status = 'BLOCKED', attempts = 5,
		    last_error_code = 'TRANSIENT', last_error_message = 'timeout',
		    last_error_payload = '{}'
		WHERE id = ?`, job.ID); err != nil {
		t.Fatalf("seeding blocked job: %v", err)
	}

	if err := repo.Reset(ctx, job.ID); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusPending || got.Attempts != 0 {
		t.Errorf("got status=%s attempts=%d, want PENDING/0", got.Status, got.Attempts)
	}
	if got.LastErrorCode != nil || got.LastErrorMessage != nil || got.LastErrorPayload != nil {
		t.Error("reset must clear all recorded error fields")
	}
	if got.NextRetryAt != nil {
		t.Error("reset must clear next_retry_at")
	}
}

func TestMarkSucceeded(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	job := enqueueTestJob(t, repo, "org-1")

	if err := repo.MarkSucceeded(ctx, job.ID); err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}
	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}
}

func TestStatsPartitionJobs(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	statuses := []Status{
		StatusPending, StatusPending,
		StatusRunning,
		StatusRetrying,
		StatusFailed,
		StatusBlocked, StatusBlocked,
		StatusSucceeded,
	}
	for _, s := range statuses {
		job := enqueueTestJob(t, repo, "org-1")
		if _, err := repo.db.Exec(`UPDATE deprovision_jobs SET status = ? WHERE id = ?`, string(s), job.ID); err != nil {
			t.Fatalf("seeding status %s: %v", s, err)
		}
	}
	// A different org's jobs must not leak into the counts.
	enqueueTestJob(t, repo, "org-2")

	stats, err := repo.Stats(ctx, "org-1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	total := stats.Pending + stats.Running + stats.Retrying + stats.Failed + stats.Blocked + stats.Succeeded
	if total != len(statuses) {
		t.Errorf("buckets sum to %d, want %d", total, len(statuses))
	}
	if stats.Pending != 2 || stats.Blocked != 2 {
		t.Errorf("unexpected distribution: %+v", stats)
	}
	if stats.NeedsAttention != stats.Failed+stats.Blocked {
		t.Errorf("needs_attention = %d, want failed+blocked = %d",
			stats.NeedsAttention, stats.Failed+stats.Blocked)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo := newTestRepository(t)
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
