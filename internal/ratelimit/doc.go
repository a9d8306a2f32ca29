// Package ratelimit admits hub messages against a per-hub, per-minute
// budget.
//
// Windows are fixed UTC minutes keyed by (hub id, "2006-01-02T15:04").
// A Store increments the window counter only while the count before the
// increment is below the limit, in one atomic step. Once a window is at
// capacity it stays pinned there and every further call is denied until
// the next minute.
//
// Two stores are provided: SQLiteStore (the default, a conditional
// upsert) and RedisStore (a Lua script), selected by
// relay.rate_limit.backend.
package ratelimit
