package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisSink keeps snapshots as JSON in a Redis list, newest at the head.
type RedisSink struct {
	client *redis.Client
	key    string
	keep   int
}

func NewRedisSink(client *redis.Client, key string, keep int) *RedisSink {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &RedisSink{client: client, key: key, keep: keep}
}

func (r *RedisSink) Save(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.client.LPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", r.key, err)
	}
	if err := r.client.LTrim(ctx, r.key, 0, int64(r.keep-1)).Err(); err != nil {
		return fmt.Errorf("redis ltrim %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisSink) Latest(ctx context.Context) (*Snapshot, error) {
	data, err := r.client.LIndex(ctx, r.key, 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis lindex %s: %w", r.key, err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &s, nil
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}
