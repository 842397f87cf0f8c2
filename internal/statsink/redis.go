package statsink

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis fans the same event out to a shared counter so multiple directory
// processes behind a load balancer can agree on a single "services seen"
// figure, the way internal/infra/redis_adapter.go shares hub state across
// pods. This never persists cache entries — only the derived counter — so
// it does not reopen the "no persistence to disk" non-goal for the cache
// itself.
type Redis struct {
	rdb    *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(rdb *redis.Client, keyPrefix string, ttl time.Duration, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{rdb: rdb, key: keyPrefix + "services_seen", ttl: ttl, logger: logger}
}

func (r *Redis) NoteStoredMaybeNew(fingerprint string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	added, err := r.rdb.SAdd(ctx, r.key, fingerprint).Result()
	if err != nil {
		r.logger.Warn("statsink: redis SADD failed", "error", err)
		return
	}
	if r.ttl > 0 {
		r.rdb.Expire(ctx, r.key, r.ttl)
	}
	if added > 0 {
		r.rdb.Incr(ctx, r.key+":new_total")
	}
}
