package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database"
)

// Connection binds a hub to its live push handle.
type Connection struct {
	HubID        string
	ConnectionID string
	ConnectedAt  time.Time
	ExpiresAt    time.Time
}

// Repository persists connection and session rows. Rows past expires_at
// are invisible to reads.
type Repository interface {
	// Put upserts the hub's connection row and inserts the session row.
	// Sessions of the hub's earlier handles are dropped.
	Put(ctx context.Context, c Connection) error

	// HubForConnection resolves a handle. Returns ErrSessionNotFound.
	HubForConnection(ctx context.Context, connectionID string, now time.Time) (string, error)

	// ConnectionForHub returns the hub's live connection. Returns ErrSessionNotFound.
	ConnectionForHub(ctx context.Context, hubID string, now time.Time) (*Connection, error)

	// DeleteSession removes the session row and returns the hub it named.
	DeleteSession(ctx context.Context, connectionID string) (string, error)

	// DeleteConnectionIf removes the hub's connection row only while it
	// still points at connectionID.
	DeleteConnectionIf(ctx context.Context, hubID, connectionID string) (bool, error)

	// ExpiredSessions lists handles whose session has expired.
	ExpiredSessions(ctx context.Context, now time.Time) ([]string, error)

	// DeleteExpired removes expired connection, session and rate rows.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Put writes both rows in one transaction.
func (r *SQLiteRepository) Put(ctx context.Context, c Connection) error {
	connectedAt := database.FormatTime(c.ConnectedAt)
	expires := c.ExpiresAt.Unix()

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO connections (hub_id, connection_id, connected_at, expires_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (hub_id) DO UPDATE SET
				connection_id = excluded.connection_id,
				connected_at  = excluded.connected_at,
				expires_at    = excluded.expires_at`,
			c.HubID, c.ConnectionID, connectedAt, expires); err != nil {
			return fmt.Errorf("writing connection: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO connection_sessions (connection_id, hub_id, connected_at, expires_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (connection_id) DO UPDATE SET
				hub_id       = excluded.hub_id,
				connected_at = excluded.connected_at,
				expires_at   = excluded.expires_at`,
			c.ConnectionID, c.HubID, connectedAt, expires); err != nil {
			return fmt.Errorf("writing session: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM connection_sessions WHERE hub_id = ? AND connection_id <> ?`,
			c.HubID, c.ConnectionID); err != nil {
			return fmt.Errorf("dropping superseded sessions: %w", err)
		}
		return nil
	})
}

// HubForConnection resolves the session row.
func (r *SQLiteRepository) HubForConnection(ctx context.Context, connectionID string, now time.Time) (string, error) {
	var hubID string
	err := r.db.QueryRowContext(ctx,
		`SELECT hub_id FROM connection_sessions WHERE connection_id = ? AND expires_at > ?`,
		connectionID, now.Unix()).Scan(&hubID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("querying session: %w", err)
	}
	return hubID, nil
}

// ConnectionForHub reads the connection row.
func (r *SQLiteRepository) ConnectionForHub(ctx context.Context, hubID string, now time.Time) (*Connection, error) {
	var c Connection
	var connectedAt string
	var expires int64
	err := r.db.QueryRowContext(ctx,
		`SELECT hub_id, connection_id, connected_at, expires_at FROM connections WHERE hub_id = ? AND expires_at > ?`,
		hubID, now.Unix()).Scan(&c.HubID, &c.ConnectionID, &connectedAt, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("querying connection: %w", err)
	}
	if c.ConnectedAt, err = database.ParseTime(connectedAt); err != nil {
		return nil, fmt.Errorf("parsing connected_at: %w", err)
	}
	c.ExpiresAt = time.Unix(expires, 0).UTC()
	return &c, nil
}

// DeleteSession removes the session row.
func (r *SQLiteRepository) DeleteSession(ctx context.Context, connectionID string) (string, error) {
	var hubID string
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM connection_sessions WHERE connection_id = ? RETURNING hub_id`,
		connectionID).Scan(&hubID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("deleting session: %w", err)
	}
	return hubID, nil
}

// DeleteConnectionIf removes the connection row when it matches.
func (r *SQLiteRepository) DeleteConnectionIf(ctx context.Context, hubID, connectionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM connections WHERE hub_id = ? AND connection_id = ?`, hubID, connectionID)
	if err != nil {
		return false, fmt.Errorf("deleting connection: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// ExpiredSessions lists expired handles.
func (r *SQLiteRepository) ExpiredSessions(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT connection_id FROM connection_sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("querying expired sessions: %w", err)
	}
	defer rows.Close()

	var handles []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		handles = append(handles, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return handles, nil
}

// DeleteExpired sweeps every table with a TTL.
func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.db.DeleteExpired(ctx, now, "connections", "connection_sessions", "rate_windows")
}
