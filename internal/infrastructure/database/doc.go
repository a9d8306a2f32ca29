// Package database provides SQLite connectivity for the SlideBolt relay.
//
// This package manages:
//   - The database connection, with WAL mode and a busy timeout
//   - Embedded schema migrations (YYYYMMDD_HHMMSS_name.up.sql / .down.sql)
//   - Transactions and TTL sweeping of rows carrying expires_at
//
// The pool holds exactly one connection. Every repository must close its
// *sql.Rows before issuing another statement, or the call will block until
// the busy timeout.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
