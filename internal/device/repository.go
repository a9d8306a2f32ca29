package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
// Every method is scoped to one hub.
type Repository interface {
	// Upsert creates the row (status new) or replaces the descriptor of an
	// existing one. A nil state leaves the stored state untouched.
	Upsert(ctx context.Context, hubID, endpointID string, endpoint, state json.RawMessage) error

	// UpdateState writes state, creating a minimal new row if needed.
	UpdateState(ctx context.Context, hubID, endpointID string, state json.RawMessage) error

	// Get returns ErrDeviceNotFound if the device does not exist.
	Get(ctx context.Context, hubID, endpointID string) (*Device, error)

	// List returns every device of the hub, soft-deleted ones included.
	List(ctx context.Context, hubID string) ([]Device, error)

	// ListByStatus returns the hub's devices in one status.
	ListByStatus(ctx context.Context, hubID string, status Status) ([]Device, error)

	// SetStatusIf moves the device to status only while its current status
	// is one of from. It reports whether a row changed.
	SetStatusIf(ctx context.Context, hubID, endpointID string, status Status, from []Status) (bool, error)

	// Delete removes the row. Deleting an absent device is not an error.
	Delete(ctx context.Context, hubID, endpointID string) error

	// DeleteIfDeleted removes the row only while its status is deleted and
	// reports whether it did.
	DeleteIfDeleted(ctx context.Context, hubID, endpointID string) (bool, error)

	// PurgeOrphans removes devices whose hub no longer exists.
	PurgeOrphans(ctx context.Context) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `hub_id, endpoint_id, endpoint, state, status, first_seen, updated_at`

// Upsert creates or merges a device row.
func (r *SQLiteRepository) Upsert(ctx context.Context, hubID, endpointID string, endpoint, state json.RawMessage) error {
	now := database.FormatTime(time.Now())
	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hub_id, endpoint_id) DO UPDATE SET
			endpoint   = excluded.endpoint,
			state      = COALESCE(excluded.state, devices.state),
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		hubID,
		endpointID,
		nullableJSON(endpoint),
		nullableJSON(state),
		string(StatusNew),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// UpdateState writes the state document.
func (r *SQLiteRepository) UpdateState(ctx context.Context, hubID, endpointID string, state json.RawMessage) error {
	now := database.FormatTime(time.Now())
	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (?, ?, NULL, ?, ?, ?, ?)
		ON CONFLICT (hub_id, endpoint_id) DO UPDATE SET
			state      = excluded.state,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		hubID,
		endpointID,
		string(state),
		string(StatusNew),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("updating device state: %w", err)
	}
	return nil
}

// Get retrieves one device.
func (r *SQLiteRepository) Get(ctx context.Context, hubID, endpointID string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE hub_id = ? AND endpoint_id = ?`,
		hubID, endpointID)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return d, nil
}

// List retrieves all devices of a hub.
func (r *SQLiteRepository) List(ctx context.Context, hubID string) ([]Device, error) {
	return r.queryDevices(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE hub_id = ? ORDER BY endpoint_id`,
		hubID)
}

// ListByStatus retrieves the hub's devices in one status.
func (r *SQLiteRepository) ListByStatus(ctx context.Context, hubID string, status Status) ([]Device, error) {
	return r.queryDevices(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE hub_id = ? AND status = ? ORDER BY endpoint_id`,
		hubID, string(status))
}

// SetStatusIf updates the status in one conditional statement.
func (r *SQLiteRepository) SetStatusIf(ctx context.Context, hubID, endpointID string, status Status, from []Status) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := []any{string(status), database.FormatTime(time.Now()), hubID, endpointID}
	placeholders := strings.Repeat("?, ", len(from)-1) + "?"
	for _, f := range from {
		args = append(args, string(f))
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, updated_at = ?
		 WHERE hub_id = ? AND endpoint_id = ? AND status IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return false, fmt.Errorf("updating device status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete removes a device row.
func (r *SQLiteRepository) Delete(ctx context.Context, hubID, endpointID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM devices WHERE hub_id = ? AND endpoint_id = ?", hubID, endpointID)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return nil
}

// DeleteIfDeleted removes a soft-deleted device row.
func (r *SQLiteRepository) DeleteIfDeleted(ctx context.Context, hubID, endpointID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM devices WHERE hub_id = ? AND endpoint_id = ? AND status = ?",
		hubID, endpointID, string(StatusDeleted))
	if err != nil {
		return false, fmt.Errorf("purging device: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// PurgeOrphans removes devices of deleted hubs.
func (r *SQLiteRepository) PurgeOrphans(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM devices WHERE hub_id NOT IN (SELECT hub_id FROM hubs)")
	if err != nil {
		return 0, fmt.Errorf("purging orphaned devices: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var endpoint, state sql.NullString
	var status, firstSeen, updatedAt string

	if err := scanner.Scan(
		&d.HubID,
		&d.EndpointID,
		&endpoint,
		&state,
		&status,
		&firstSeen,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	d.Status = Status(status)
	if endpoint.Valid {
		d.Endpoint = json.RawMessage(endpoint.String)
	}
	if state.Valid {
		d.State = json.RawMessage(state.String)
	}

	var err error
	if d.FirstSeen, err = database.ParseTime(firstSeen); err != nil {
		return nil, fmt.Errorf("parsing first_seen: %w", err)
	}
	if d.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

// nullableJSON maps an absent document to SQL NULL.
func nullableJSON(b json.RawMessage) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
