package ratelimit

import (
	"database/sql"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/config"
)

// NewStore picks the backend named by relay.rate_limit.backend. The redis
// client may be nil unless the backend is redis.
func NewStore(backend string, db *sql.DB, rdb *goredis.Client) (Store, error) {
	switch backend {
	case "", config.RateBackendSQLite:
		return NewSQLiteStore(db), nil
	case config.RateBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("%w: redis backend without a client", ErrUnknownBackend)
		}
		return NewRedisStore(rdb), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
