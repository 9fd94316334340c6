package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"eventattendance/internal/queue"
)

// Redis keeps each event's feed in a capped list.
type Redis struct {
	client *redis.Client
	prefix string
	size   int
	log    zerolog.Logger
}

// NewRedis creates a Redis-backed feed.
func NewRedis(client *redis.Client, size int, log zerolog.Logger) *Redis {
	if size <= 0 {
		size = 50
	}
	return &Redis{client: client, prefix: "attendance:feed:", size: size, log: log}
}

func (r *Redis) key(eventID string) string { return r.prefix + eventID }

// Push prepends the scan and trims the list in one transaction.
func (r *Redis) Push(ctx context.Context, scan queue.Scan) error {
	b, err := queue.Encode(scan)
	if err != nil {
		return err
	}
	key := r.key(scan.EventID)
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, b)
		p.LTrim(ctx, key, 0, int64(r.size-1))
		return nil
	})
	return err
}

// Recent returns up to limit scans, newest first. Entries that fail to decode are logged and skipped.
func (r *Redis) Recent(ctx context.Context, eventID string, limit int) ([]queue.Scan, error) {
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	raw, err := r.client.LRange(ctx, r.key(eventID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	out := make([]queue.Scan, 0, len(raw))
	for _, s := range raw {
		scan, err := queue.Decode([]byte(s))
		if err != nil {
			r.log.Warn().Err(err).Str("event_id", eventID).Msg("skipping malformed feed entry")
			continue
		}
		out = append(out, scan)
	}
	return out, nil
}
