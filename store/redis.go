package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/redis/go-redis/v9"
)

// Redis keeps the snapshot under "<prefix>:firebase_user".
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ iam.SnapshotStore = (*Redis)(nil)

// RedisOption configures the Redis store.
type RedisOption func(*Redis)

// WithKeyPrefix namespaces the snapshot key, e.g. per device or per profile.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.key = prefix + ":" + iam.SnapshotKey }
}

// WithTTL expires the snapshot after ttl. Zero keeps it forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// NewRedis returns a store backed by client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, key: "portfolio:" + iam.SnapshotKey}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Redis) Load(ctx context.Context) (*iam.ActivitySnapshot, error) {
	payload, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("iam/store: redis get: %w", err)
	}
	var snap iam.ActivitySnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("iam/store: decode snapshot: %w", err)
	}
	return &snap, nil
}

func (r *Redis) Save(ctx context.Context, snap iam.ActivitySnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("iam/store: encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("iam/store: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("iam/store: redis del: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
