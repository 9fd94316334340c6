package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisQueue is a Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
	log    zerolog.Logger
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string, log zerolog.Logger) *RedisQueue {
	if key == "" {
		key = "attendance:scans"
	}
	return &RedisQueue{client: client, key: key, log: log}
}

// Publish enqueues a scan.
func (q *RedisQueue) Publish(ctx context.Context, scan Scan) error {
	b, err := Encode(scan)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, b).Err()
}

// Consume streams scans using BRPOP until ctx ends.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Scan, error) {
	out := make(chan Scan)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					q.log.Warn().Err(err).Msg("brpop failed")
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			scan, err := Decode([]byte(res[1]))
			if err != nil {
				q.log.Warn().Err(err).Msg("dropping malformed scan")
				continue
			}
			select {
			case out <- scan:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }
