package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database"
)

// Repository defines identity persistence.
type Repository interface {
	// Get returns ErrMappingNotFound if the identity has no row.
	Get(ctx context.Context, id string) (*Identity, error)

	// PutMapping binds the identity to hubID, keeping any stored tokens.
	PutMapping(ctx context.Context, id, hubID, email string, at time.Time) error

	// Touch refreshes the captured email and last-seen time.
	Touch(ctx context.Context, id, email string, at time.Time) error

	// ListByHub returns the identities mapped to hubID.
	ListByHub(ctx context.Context, hubID string) ([]Identity, error)

	// Delete removes the identity row. Missing rows are not an error.
	Delete(ctx context.Context, id string) error

	// SaveTokens stores tokens, creating a token-only row when needed.
	SaveTokens(ctx context.Context, id string, tokens Tokens) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const identityColumns = `identity_id, hub_id, email, mapped_at, last_seen,
	access_token, refresh_token, token_expires_at`

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Identity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE identity_id = ?`, id)
	i, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("querying identity: %w", err)
	}
	return i, nil
}

func (r *SQLiteRepository) PutMapping(ctx context.Context, id, hubID, email string, at time.Time) error {
	if id == "" || hubID == "" {
		return ErrInvalidIdentity
	}
	ts := database.FormatTime(at)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (identity_id, hub_id, email, mapped_at, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (identity_id) DO UPDATE SET
			hub_id    = excluded.hub_id,
			email     = COALESCE(excluded.email, identities.email),
			mapped_at = excluded.mapped_at,
			last_seen = excluded.last_seen`,
		id, hubID, database.NullString(email), ts, ts)
	if err != nil {
		return fmt.Errorf("writing identity mapping: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Touch(ctx context.Context, id, email string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET email = COALESCE(?, email), last_seen = ? WHERE identity_id = ?`,
		database.NullString(email), database.FormatTime(at), id)
	if err != nil {
		return fmt.Errorf("touching identity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrMappingNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListByHub(ctx context.Context, hubID string) ([]Identity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE hub_id = ? ORDER BY mapped_at, identity_id`, hubID)
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		out = append(out, *i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE identity_id = ?`, id); err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SaveTokens(ctx context.Context, id string, tokens Tokens) error {
	if id == "" {
		return ErrInvalidIdentity
	}
	var expires sql.NullString
	if !tokens.ExpiresAt.IsZero() {
		expires = database.NullString(database.FormatTime(tokens.ExpiresAt))
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (identity_id, access_token, refresh_token, token_expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (identity_id) DO UPDATE SET
			access_token     = excluded.access_token,
			refresh_token    = COALESCE(excluded.refresh_token, identities.refresh_token),
			token_expires_at = excluded.token_expires_at`,
		id,
		database.NullString(tokens.AccessToken),
		database.NullString(tokens.RefreshToken),
		expires)
	if err != nil {
		return fmt.Errorf("writing tokens: %w", err)
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(scanner rowScanner) (*Identity, error) {
	var i Identity
	var hubID, email, mappedAt, lastSeen, access, refresh, expires sql.NullString

	if err := scanner.Scan(&i.ID, &hubID, &email, &mappedAt, &lastSeen, &access, &refresh, &expires); err != nil {
		return nil, err
	}

	i.HubID = hubID.String
	i.Email = email.String
	i.Tokens.AccessToken = access.String
	i.Tokens.RefreshToken = refresh.String

	var err error
	for _, f := range []struct {
		name string
		src  sql.NullString
		dst  *time.Time
	}{
		{"mapped_at", mappedAt, &i.MappedAt},
		{"last_seen", lastSeen, &i.LastSeen},
		{"token_expires_at", expires, &i.Tokens.ExpiresAt},
	} {
		if !f.src.Valid {
			continue
		}
		if *f.dst, err = database.ParseTime(f.src.String); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.name, err)
		}
	}
	return &i, nil
}
