package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore keeps windows in the rate_windows table. Expired rows are
// removed by the session sweeper.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over an open database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Increment inserts the window at 1 or bumps it while below limit. The
// conditional DO UPDATE leaves the row untouched at capacity, which shows
// up as zero rows affected.
func (s *SQLiteStore) Increment(ctx context.Context, hubID, window string, limit int, ttl time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	expires := time.Now().Add(ttl).Unix()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_windows (hub_id, window_key, count, expires_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (hub_id, window_key) DO UPDATE SET
			count      = rate_windows.count + 1,
			expires_at = excluded.expires_at
		WHERE rate_windows.count < ?`,
		hubID, window, expires, limit)
	if err != nil {
		return false, fmt.Errorf("incrementing rate window: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}
