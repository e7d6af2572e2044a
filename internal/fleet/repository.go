package fleet

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeviceRepository stores devices.
type DeviceRepository interface {
	Create(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, orgID, id string) (*Device, error)
	ListByOrg(ctx context.Context, orgID string) ([]*Device, error)

	// DeviceEUIs returns the normalised EUIs of all non-archived
	// devices in the organisation. Used for orphan reconciliation.
	DeviceEUIs(ctx context.Context, orgID string) ([]string, error)

	// MarkProvisioned stamps the registry identifiers after a
	// successful registration.
	MarkProvisioned(ctx context.Context, orgID, id, registryID, registryApplicationID string) error

	SetStatus(ctx context.Context, orgID, id, status string) error
}

// GatewayRepository stores gateways.
type GatewayRepository interface {
	Create(ctx context.Context, g *Gateway) error
	GetByID(ctx context.Context, orgID, id string) (*Gateway, error)
	ListByOrg(ctx context.Context, orgID string) ([]*Gateway, error)
	GatewayEUIs(ctx context.Context, orgID string) ([]string, error)
	MarkProvisioned(ctx context.Context, orgID, id, registryID string) error
	SetStatus(ctx context.Context, orgID, id, status string) error
}

// SQLiteDeviceRepository implements DeviceRepository backed by SQLite.
type SQLiteDeviceRepository struct {
	db *sql.DB
}

// NewSQLiteDeviceRepository creates a device repository.
func NewSQLiteDeviceRepository(db *sql.DB) *SQLiteDeviceRepository {
	return &SQLiteDeviceRepository{db: db}
}

func (r *SQLiteDeviceRepository) Create(ctx context.Context, d *Device) error {
	eui, err := NormalizeEUI(d.DevEUI)
	if err != nil {
		return err
	}
	d.DevEUI = eui
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = StatusActive
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, org_id, name, dev_eui, app_key, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.OrgID, d.Name, d.DevEUI, nullableString(d.AppKey), d.Status)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

func (r *SQLiteDeviceRepository) GetByID(ctx context.Context, orgID, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, dev_eui, app_key, registry_id,
		       registry_application_id, status, created_at, updated_at
		FROM devices
		WHERE org_id = ? AND id = ?`, orgID, id)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return d, nil
}

func (r *SQLiteDeviceRepository) ListByOrg(ctx context.Context, orgID string) ([]*Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, org_id, name, dev_eui, app_key, registry_id,
		       registry_application_id, status, created_at, updated_at
		FROM devices
		WHERE org_id = ?
		ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *SQLiteDeviceRepository) DeviceEUIs(ctx context.Context, orgID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT dev_eui FROM devices
		WHERE org_id = ? AND status != ?`, orgID, StatusArchived)
	if err != nil {
		return nil, fmt.Errorf("listing device EUIs: %w", err)
	}
	defer rows.Close()

	var euis []string
	for rows.Next() {
		var eui string
		if err := rows.Scan(&eui); err != nil {
			return nil, fmt.Errorf("scanning EUI: %w", err)
		}
		euis = append(euis, eui)
	}
	return euis, rows.Err()
}

func (r *SQLiteDeviceRepository) MarkProvisioned(ctx context.Context, orgID, id, registryID, registryApplicationID string) error {
	return execExpectingRow(ctx, r.db, ErrDeviceNotFound, `
		UPDATE devices
		SET registry_id = ?, registry_application_id = ?, updated_at = ?
		WHERE org_id = ? AND id = ?`,
		registryID, registryApplicationID, nowRFC3339(), orgID, id)
}

func (r *SQLiteDeviceRepository) SetStatus(ctx context.Context, orgID, id, status string) error {
	return execExpectingRow(ctx, r.db, ErrDeviceNotFound, `
		UPDATE devices SET status = ?, updated_at = ?
		WHERE org_id = ? AND id = ?`,
		status, nowRFC3339(), orgID, id)
}

// SQLiteGatewayRepository implements GatewayRepository backed by SQLite.
type SQLiteGatewayRepository struct {
	db *sql.DB
}

// NewSQLiteGatewayRepository creates a gateway repository.
func NewSQLiteGatewayRepository(db *sql.DB) *SQLiteGatewayRepository {
	return &SQLiteGatewayRepository{db: db}
}

func (r *SQLiteGatewayRepository) Create(ctx context.Context, g *Gateway) error {
	eui, err := NormalizeEUI(g.GatewayEUI)
	if err != nil {
		return err
	}
	g.GatewayEUI = eui
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.Status == "" {
		g.Status = StatusActive
	}
	if g.FrequencyPlan == "" {
		g.FrequencyPlan = DefaultFrequencyPlan
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO gateways (id, org_id, name, gateway_eui, frequency_plan, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.OrgID, g.Name, g.GatewayEUI, g.FrequencyPlan, g.Status)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrGatewayExists
		}
		return fmt.Errorf("inserting gateway: %w", err)
	}
	return nil
}

func (r *SQLiteGatewayRepository) GetByID(ctx context.Context, orgID, id string) (*Gateway, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, gateway_eui, registry_id, frequency_plan,
		       status, created_at, updated_at
		FROM gateways
		WHERE org_id = ? AND id = ?`, orgID, id)
	g, err := scanGateway(row)
	if err == sql.ErrNoRows {
		return nil, ErrGatewayNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying gateway: %w", err)
	}
	return g, nil
}

func (r *SQLiteGatewayRepository) ListByOrg(ctx context.Context, orgID string) ([]*Gateway, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, org_id, name, gateway_eui, registry_id, frequency_plan,
		       status, created_at, updated_at
		FROM gateways
		WHERE org_id = ?
		ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing gateways: %w", err)
	}
	defer rows.Close()

	var gateways []*Gateway
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning gateway: %w", err)
		}
		gateways = append(gateways, g)
	}
	return gateways, rows.Err()
}

func (r *SQLiteGatewayRepository) GatewayEUIs(ctx context.Context, orgID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT gateway_eui FROM gateways
		WHERE org_id = ? AND status != ?`, orgID, StatusArchived)
	if err != nil {
		return nil, fmt.Errorf("listing gateway EUIs: %w", err)
	}
	defer rows.Close()

	var euis []string
	for rows.Next() {
		var eui string
		if err := rows.Scan(&eui); err != nil {
			return nil, fmt.Errorf("scanning EUI: %w", err)
		}
		euis = append(euis, eui)
	}
	return euis, rows.Err()
}

func (r *SQLiteGatewayRepository) MarkProvisioned(ctx context.Context, orgID, id, registryID string) error {
	return execExpectingRow(ctx, r.db, ErrGatewayNotFound, `
		UPDATE gateways SET registry_id = ?, updated_at = ?
		WHERE org_id = ? AND id = ?`,
		registryID, nowRFC3339(), orgID, id)
}

func (r *SQLiteGatewayRepository) SetStatus(ctx context.Context, orgID, id, status string) error {
	return execExpectingRow(ctx, r.db, ErrGatewayNotFound, `
		UPDATE gateways SET status = ?, updated_at = ?
		WHERE org_id = ? AND id = ?`,
		status, nowRFC3339(), orgID, id)
}

func scanDevice(s interface{ Scan(...any) error }) (*Device, error) {
	var (
		d          Device
		appKey     sql.NullString
		registryID sql.NullString
		registryAppID sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := s.Scan(&d.ID, &d.OrgID, &d.Name, &d.DevEUI, &appKey, &registryID,
		&registryAppID, &d.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if appKey.Valid {
		d.AppKey = &appKey.String
	}
	if registryID.Valid {
		d.RegistryID = &registryID.String
	}
	if registryAppID.Valid {
		d.RegistryApplicationID = &registryAppID.String
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &d, nil
}

func scanGateway(s interface{ Scan(...any) error }) (*Gateway, error) {
	var (
		g          Gateway
		registryID sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := s.Scan(&g.ID, &g.OrgID, &g.Name, &g.GatewayEUI, &registryID,
		&g.FrequencyPlan, &g.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if registryID.Valid {
		g.RegistryID = &registryID.String
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	g.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &g, nil
}

func execExpectingRow(ctx context.Context, db *sql.DB, notFound error, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
