package hub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database"
)

// Repository defines hub persistence.
type Repository interface {
	// Get returns ErrHubNotFound if the hub does not exist.
	Get(ctx context.Context, id string) (*Hub, error)

	// GetByOwnerEmail finds the hub pre-assigned to email.
	// Returns ErrHubNotFound when none is.
	GetByOwnerEmail(ctx context.Context, email string) (*Hub, error)

	List(ctx context.Context) ([]Hub, error)

	// Create returns ErrHubExists on an id collision.
	Create(ctx context.Context, h *Hub) error

	Update(ctx context.Context, id string, patch Patch) (time.Time, error)
	SetStatus(ctx context.Context, id string, status Status) (time.Time, error)
	Delete(ctx context.Context, id string) error

	// ClaimOwner records identityID as owner only while the hub has none.
	// Returns ErrAlreadyClaimed when it already has one.
	ClaimOwner(ctx context.Context, id, identityID string) error

	// SetOwner overwrites the owner unconditionally (admin path).
	SetOwner(ctx context.Context, id, identityID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const hubColumns = `hub_id, secret_hash, label, status, max_msgs_per_minute,
	owner_email, owner_identity, created_at, updated_at`

// Get retrieves a hub by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Hub, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+hubColumns+` FROM hubs WHERE hub_id = ?`, id)
	h, err := scanHub(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHubNotFound
		}
		return nil, fmt.Errorf("querying hub by id: %w", err)
	}
	return h, nil
}

// GetByOwnerEmail retrieves the first hub assigned to email.
func (r *SQLiteRepository) GetByOwnerEmail(ctx context.Context, email string) (*Hub, error) {
	if email == "" {
		return nil, ErrHubNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+hubColumns+` FROM hubs WHERE owner_email = ? ORDER BY created_at LIMIT 1`, email)
	h, err := scanHub(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHubNotFound
		}
		return nil, fmt.Errorf("querying hub by owner email: %w", err)
	}
	return h, nil
}

// List retrieves all hubs, oldest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Hub, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+hubColumns+` FROM hubs ORDER BY created_at, hub_id`)
	if err != nil {
		return nil, fmt.Errorf("querying hubs: %w", err)
	}
	defer rows.Close()

	var hubs []Hub
	for rows.Next() {
		h, err := scanHub(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning hub: %w", err)
		}
		hubs = append(hubs, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hubs: %w", err)
	}
	return hubs, nil
}

// Create inserts a new hub, applying the default label, status and limit.
func (r *SQLiteRepository) Create(ctx context.Context, h *Hub) error {
	if h.ID == "" || h.SecretHash == "" {
		return ErrInvalidHub
	}
	if h.Label == "" {
		h.Label = DefaultLabel
	}
	if h.Status == "" {
		h.Status = StatusActive
	}
	if h.MaxMsgsPerMinute <= 0 {
		h.MaxMsgsPerMinute = DefaultMaxMsgsPerMinute
	}
	now := time.Now().UTC()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO hubs (`+hubColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID,
		h.SecretHash,
		h.Label,
		string(h.Status),
		h.MaxMsgsPerMinute,
		database.NullString(h.OwnerEmail),
		database.NullString(h.OwnerIdentity),
		database.FormatTime(h.CreatedAt),
		database.FormatTime(h.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrHubExists
		}
		return fmt.Errorf("inserting hub: %w", err)
	}
	return nil
}

// Update applies a partial update and returns the new updated_at.
func (r *SQLiteRepository) Update(ctx context.Context, id string, patch Patch) (time.Time, error) {
	if err := patch.Validate(); err != nil {
		return time.Time{}, err
	}

	now := time.Now().UTC()
	sets := []string{"updated_at = ?"}
	args := []any{database.FormatTime(now)}
	if patch.Label != nil {
		sets = append(sets, "label = ?")
		args = append(args, *patch.Label)
	}
	if patch.MaxMsgsPerMinute != nil {
		sets = append(sets, "max_msgs_per_minute = ?")
		args = append(args, *patch.MaxMsgsPerMinute)
	}
	if patch.OwnerEmail != nil {
		sets = append(sets, "owner_email = ?")
		args = append(args, database.NullString(*patch.OwnerEmail))
	}
	args = append(args, id)

	query := "UPDATE hubs SET " + strings.Join(sets, ", ") + " WHERE hub_id = ?"
	if err := r.execOne(ctx, "updating hub", query, args...); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// SetStatus changes the hub status and returns the new updated_at.
func (r *SQLiteRepository) SetStatus(ctx context.Context, id string, status Status) (time.Time, error) {
	now := time.Now().UTC()
	err := r.execOne(ctx, "updating hub status",
		"UPDATE hubs SET status = ?, updated_at = ? WHERE hub_id = ?",
		string(status), database.FormatTime(now), id)
	if err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// Delete removes the hub row. Devices are left for the orphan sweep.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "deleting hub", "DELETE FROM hubs WHERE hub_id = ?", id)
}

// ClaimOwner sets owner_identity when it is still unset.
func (r *SQLiteRepository) ClaimOwner(ctx context.Context, id, identityID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE hubs SET owner_identity = ?, updated_at = ?
		WHERE hub_id = ? AND owner_identity IS NULL`,
		identityID, database.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("claiming hub: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Distinguish a lost race from a vanished hub.
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyClaimed
}

// SetOwner overwrites owner_identity.
func (r *SQLiteRepository) SetOwner(ctx context.Context, id, identityID string) error {
	return r.execOne(ctx, "setting hub owner",
		"UPDATE hubs SET owner_identity = ?, updated_at = ? WHERE hub_id = ?",
		database.NullString(identityID), database.FormatTime(time.Now()), id)
}

// execOne runs a statement that must touch exactly one hub row.
func (r *SQLiteRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrHubNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanHub(scanner rowScanner) (*Hub, error) {
	var h Hub
	var status, createdAt, updatedAt string
	var ownerEmail, ownerIdentity sql.NullString

	if err := scanner.Scan(
		&h.ID,
		&h.SecretHash,
		&h.Label,
		&status,
		&h.MaxMsgsPerMinute,
		&ownerEmail,
		&ownerIdentity,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	h.Status = Status(status)
	h.OwnerEmail = ownerEmail.String
	h.OwnerIdentity = ownerIdentity.String

	var err error
	if h.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if h.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &h, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
