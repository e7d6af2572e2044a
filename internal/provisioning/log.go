package provisioning

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Step statuses recorded in the provisioning log.
const (
	StepStarted = "started"
	StepSuccess = "success"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// LogEntry is one append-only orchestration step record. Entries are
// never mutated or deleted; they are the only place failure detail
// survives a job reset.
type LogEntry struct {
	ID            int64     `json:"id"`
	OrgID         string    `json:"org_id"`
	Step          string    `json:"step"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	DurationMS    int64     `json:"duration_ms"`
	RequestID     *string   `json:"request_id,omitempty"`
	HTTPStatus    *int      `json:"http_status,omitempty"`
	ResponseBody  *string   `json:"response_body,omitempty"`
	ErrorCategory *string   `json:"error_category,omitempty"`
	Endpoint      *string   `json:"endpoint,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// LogRepository stores provisioning log entries.
type LogRepository interface {
	Append(ctx context.Context, entry *LogEntry) error
	ListByOrg(ctx context.Context, orgID string, limit int) ([]*LogEntry, error)
}

// SQLiteLogRepository implements LogRepository backed by SQLite.
type SQLiteLogRepository struct {
	db *sql.DB
}

// NewSQLiteLogRepository creates a log repository.
func NewSQLiteLogRepository(db *sql.DB) *SQLiteLogRepository {
	return &SQLiteLogRepository{db: db}
}

func (r *SQLiteLogRepository) Append(ctx context.Context, entry *LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO provisioning_log (
			org_id, step, status, message, duration_ms,
			request_id, http_status, response_body, error_category, endpoint,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.OrgID, entry.Step, entry.Status, entry.Message, entry.DurationMS,
		nullableString(entry.RequestID), nullableInt(entry.HTTPStatus),
		nullableString(entry.ResponseBody), nullableString(entry.ErrorCategory),
		nullableString(entry.Endpoint),
		entry.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("appending provisioning log: %w", err)
	}
	entry.ID, _ = result.LastInsertId()
	return nil
}

func (r *SQLiteLogRepository) ListByOrg(ctx context.Context, orgID string, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, org_id, step, status, message, duration_ms,
		       request_id, http_status, response_body, error_category, endpoint,
		       created_at
		FROM provisioning_log
		WHERE org_id = ?
		ORDER BY id DESC
		LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing provisioning log: %w", err)
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		var (
			e          LogEntry
			requestID  sql.NullString
			httpStatus sql.NullInt64
			body       sql.NullString
			category   sql.NullString
			endpoint   sql.NullString
			createdAt  string
		)
		err := rows.Scan(&e.ID, &e.OrgID, &e.Step, &e.Status, &e.Message, &e.DurationMS,
			&requestID, &httpStatus, &body, &category, &endpoint, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scanning provisioning log: %w", err)
		}
		if requestID.Valid {
			e.RequestID = &requestID.String
		}
		if httpStatus.Valid {
			status := int(httpStatus.Int64)
			e.HTTPStatus = &status
		}
		if body.Valid {
			e.ResponseBody = &body.String
		}
		if category.Valid {
			e.ErrorCategory = &category.String
		}
		if endpoint.Valid {
			e.Endpoint = &endpoint.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableInt returns a sql.NullInt64 for optional int pointers.
func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
