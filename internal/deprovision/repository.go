package deprovision

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// defaultMaxAttempts bounds retries before a job is blocked for human
// attention.
const defaultMaxAttempts = 5

// Repository is the durable store for deprovision jobs.
type Repository struct {
	db          *sql.DB
	now         func() time.Time
	maxAttempts int
}

// NewRepository creates a job repository using the given database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:          db,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultMaxAttempts,
	}
}

// SetDefaultMaxAttempts overrides the attempt budget stamped on jobs
// enqueued without an explicit one.
func (r *Repository) SetDefaultMaxAttempts(n int) {
	if n > 0 {
		r.maxAttempts = n
	}
}

// Enqueue inserts a new PENDING job and returns it.
func (r *Repository) Enqueue(ctx context.Context, p EnqueueParams) (*Job, error) {
	if p.OrgID == "" || p.EntityEUI == "" || p.Reason == "" {
		return nil, ErrInvalidJob
	}
	if p.EntityType != EntityDevice && p.EntityType != EntityGateway {
		return nil, ErrInvalidJob
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = r.maxAttempts
	}

	job := &Job{
		ID:                    uuid.New().String(),
		OrgID:                 p.OrgID,
		EntityType:            p.EntityType,
		EntityEUI:             p.EntityEUI,
		RegistryID:            p.RegistryID,
		RegistryApplicationID: p.RegistryApplicationID,
		Reason:                p.Reason,
		Status:                StatusPending,
		MaxAttempts:           p.MaxAttempts,
		CreatedAt:             r.now(),
		UpdatedAt:             r.now(),
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deprovision_jobs (
			id, org_id, entity_type, entity_eui, registry_id,
			registry_application_id, reason, status, attempts, max_attempts,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		job.ID, job.OrgID, string(job.EntityType), job.EntityEUI,
		nullableString(job.RegistryID), job.RegistryApplicationID, job.Reason,
		string(job.Status), job.MaxAttempts,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("inserting deprovision job: %w", err)
	}
	return job, nil
}

// Claim atomically transitions one claimable job to RUNNING and returns
// it. A job is claimable when PENDING, or RETRYING with next_retry_at in
// the past. The conditional UPDATE guarantees no two workers run the
// same job: whichever statement matches the row first wins, the loser
// matches zero rows and moves on.
func (r *Repository) Claim(ctx context.Context) (*Job, error) {
	now := formatTime(r.now())

	row := r.db.QueryRowContext(ctx, `
		SELECT id FROM deprovision_jobs
		WHERE status = ? OR (status = ? AND next_retry_at <= ?)
		ORDER BY created_at
		LIMIT 1`,
		string(StatusPending), string(StatusRetrying), now)

	var id string
	if err := row.Scan(&id); err == sql.ErrNoRows {
		return nil, ErrNoClaimableJob
	} else if err != nil {
		return nil, fmt.Errorf("selecting claimable job: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE deprovision_jobs
		SET status = ?, updated_at = ?
		WHERE id = ? AND (status = ? OR (status = ? AND next_retry_at <= ?))`,
		string(StatusRunning), now, id,
		string(StatusPending), string(StatusRetrying), now)
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		// Another worker got there first.
		return nil, ErrNoClaimableJob
	}

	return r.GetByID(ctx, id)
}

// MarkSucceeded completes a job and stamps completed_at.
func (r *Repository) MarkSucceeded(ctx context.Context, id string) error {
	now := formatTime(r.now())
	return r.update(ctx, `
		UPDATE deprovision_jobs
		SET status = ?, completed_at = ?, next_retry_at = NULL,
		    last_error_code = NULL, last_error_message = NULL,
		    last_error_payload = NULL, updated_at = ?
		WHERE id = ?`,
		string(StatusSucceeded), now, now, id)
}

// MarkFailed records a failed attempt. The job moves to RETRYING with
// next_retry_at set, or to BLOCKED once attempts reach max_attempts.
// BLOCKED applies regardless of error type: by that point retrying has
// demonstrably not helped.
func (r *Repository) MarkFailed(ctx context.Context, id string, jobErr JobError, nextRetryAt time.Time) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	attempts := job.Attempts + 1
	status := StatusRetrying
	var retryAt sql.NullString
	if attempts >= job.MaxAttempts {
		status = StatusBlocked
	} else {
		retryAt = sql.NullString{String: formatTime(nextRetryAt), Valid: true}
	}

	return r.update(ctx, `
		UPDATE deprovision_jobs
		SET status = ?, attempts = ?, next_retry_at = ?,
		    last_error_code = ?, last_error_message = ?, last_error_payload = ?,
		    updated_at = ?
		WHERE id = ?`,
		string(status), attempts, retryAt,
		jobErr.Code, jobErr.Message, jobErr.Payload,
		formatTime(r.now()), id)
}

// MarkPermanentlyFailed moves a job straight to FAILED without waiting
// for attempts to exhaust. Used when the error cannot improve with
// retries, such as a revoked credential.
func (r *Repository) MarkPermanentlyFailed(ctx context.Context, id string, jobErr JobError) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return r.update(ctx, `
		UPDATE deprovision_jobs
		SET status = ?, attempts = ?, next_retry_at = NULL,
		    last_error_code = ?, last_error_message = ?, last_error_payload = ?,
		    updated_at = ?
		WHERE id = ?`,
		string(StatusFailed), job.Attempts+1,
		jobErr.Code, jobErr.Message, jobErr.Payload,
		formatTime(r.now()), id)
}

// Reset is the manual retry operation: a full restart, not a resume.
// Attempts return to zero and all recorded error detail is cleared;
// the provisioning log keeps the history.
func (r *Repository) Reset(ctx context.Context, id string) error {
	return r.update(ctx, `
		UPDATE deprovision_jobs
		SET status = ?, attempts = 0, next_retry_at = NULL,
		    last_error_code = NULL, last_error_message = NULL,
		    last_error_payload = NULL, completed_at = NULL, updated_at = ?
		WHERE id = ?`,
		string(StatusPending), formatTime(r.now()), id)
}

// GetByID returns a single job or ErrJobNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying job: %w", err)
	}
	return job, nil
}

// ListByOrg returns an organisation's jobs, newest first.
func (r *Repository) ListByOrg(ctx context.Context, orgID string) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, selectJob+`
		WHERE org_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats aggregates job counts for an organisation.
func (r *Repository) Stats(ctx context.Context, orgID string) (*Stats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM deprovision_jobs
		WHERE org_id = ?
		GROUP BY status`, orgID)
	if err != nil {
		return nil, fmt.Errorf("querying job stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning job stats: %w", err)
		}
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusRunning:
			stats.Running = count
		case StatusRetrying:
			stats.Retrying = count
		case StatusFailed:
			stats.Failed = count
		case StatusBlocked:
			stats.Blocked = count
		case StatusSucceeded:
			stats.Succeeded = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.NeedsAttention = stats.Failed + stats.Blocked
	return stats, nil
}

func (r *Repository) update(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

const selectJob = `
	SELECT id, org_id, entity_type, entity_eui, registry_id,
	       registry_application_id, reason, status, attempts, max_attempts,
	       next_retry_at, last_error_code, last_error_message,
	       last_error_payload, created_at, updated_at, completed_at
	FROM deprovision_jobs`

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var (
		job         Job
		entityType  string
		status      string
		registryID  sql.NullString
		nextRetry   sql.NullString
		errCode     sql.NullString
		errMessage  sql.NullString
		errPayload  sql.NullString
		createdAt   string
		updatedAt   string
		completedAt sql.NullString
	)
	err := s.Scan(&job.ID, &job.OrgID, &entityType, &job.EntityEUI, &registryID,
		&job.RegistryApplicationID, &job.Reason, &status, &job.Attempts, &job.MaxAttempts,
		&nextRetry, &errCode, &errMessage, &errPayload,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.EntityType = EntityType(entityType)
	job.Status = Status(status)
	if registryID.Valid {
		job.RegistryID = &registryID.String
	}
	if errCode.Valid {
		job.LastErrorCode = &errCode.String
	}
	if errMessage.Valid {
		job.LastErrorMessage = &errMessage.String
	}
	if errPayload.Valid {
		job.LastErrorPayload = &errPayload.String
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if t, ok := parseNullableTime(nextRetry); ok {
		job.NextRetryAt = t
	}
	if t, ok := parseNullableTime(completedAt); ok {
		job.CompletedAt = t
	}
	return &job, nil
}

func parseNullableTime(s sql.NullString) (*time.Time, bool) {
	if !s.Valid {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
