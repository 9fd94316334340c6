package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis holds the one client shared by the scan queue (LPUSH/BRPOP on QUEUE_KEY)
// and the recent-scan feed (MULTI/EXEC of LPUSH+LTRIM per event).
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the shared client. Publishing a scan happens inside the check-in
// request, so dial and write timeouts stay short. BRPOP extends its own read
// deadline by the block time, so the short ReadTimeout does not cut consumers off.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy backs the "redis" entry of /healthz. A nil or closed client is unhealthy.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
