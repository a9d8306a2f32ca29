package stream

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database"
)

// Changelog reads device_changes and stores consumer cursors.
type Changelog struct {
	db *database.DB
}

// NewChangelog creates a changelog reader.
func NewChangelog(db *database.DB) *Changelog {
	return &Changelog{db: db}
}

// Read returns up to limit records with seq > after, in seq order.
func (c *Changelog) Read(ctx context.Context, after int64, limit int) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT seq, kind, op, hub_id, endpoint_id, old_status, new_status, old_state, new_state, created_at
		FROM device_changes WHERE seq > ? ORDER BY seq LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("querying changelog: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var op string
		var oldStatus, newStatus, oldState, newState sql.NullString
		var created int64
		if err := rows.Scan(&r.Seq, &r.Kind, &op, &r.HubID, &r.EndpointID,
			&oldStatus, &newStatus, &oldState, &newState, &created); err != nil {
			return nil, fmt.Errorf("scanning changelog: %w", err)
		}
		r.Op = Op(op)
		r.OldStatus = oldStatus.String
		r.NewStatus = newStatus.String
		if oldState.Valid {
			r.OldState = []byte(oldState.String)
		}
		if newState.Valid {
			r.NewState = []byte(newState.String)
		}
		r.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating changelog: %w", err)
	}
	return out, nil
}

// Cursor returns the last delivered seq for consumer name, 0 if none.
func (c *Changelog) Cursor(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := c.db.QueryRowContext(ctx, `SELECT seq FROM stream_cursors WHERE name = ?`, name).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("querying cursor: %w", err)
	}
	return seq, nil
}

// SaveCursor records seq as delivered for consumer name.
func (c *Changelog) SaveCursor(ctx context.Context, name string, seq int64) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO stream_cursors (name, seq, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET seq = excluded.seq, updated_at = excluded.updated_at`,
		name, seq, database.FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}

// Prune deletes delivered records (seq <= upTo) created before cutoff.
func (c *Changelog) Prune(ctx context.Context, upTo int64, cutoff time.Time) (int64, error) {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM device_changes WHERE seq <= ? AND created_at < ?`, upTo, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning changelog: %w", err)
	}
	return result.RowsAffected()
}
