package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/go-tlsterm/tlsterm/config"
)

// Redis is a session store shared by multiple processes. Single-process
// deployments normally use Memory; Redis exists for fleets terminating the
// same certificate behind a balancer without ticket-key coordination.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedis creates a Redis-backed store and verifies connectivity.
func NewRedis(ctx context.Context, settings config.RedisSettings, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     settings.Addr,
		Password: settings.Password,
		DB:       settings.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &CacheError{Op: "connect", Cause: err}
	}

	return &Redis{
		client:    client,
		keyPrefix: settings.KeyPrefix,
		ttl:       ttl,
	}, nil
}

// Get returns the state cached under id, or ErrCacheMiss.
func (r *Redis) Get(ctx context.Context, id string) ([]byte, error) {
	state, err := r.client.Get(ctx, r.keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, &CacheError{Op: "get", Cause: err}
	}
	return state, nil
}

// Put upserts the state under id with the store TTL.
func (r *Redis) Put(ctx context.Context, id string, state []byte) error {
	if err := r.client.Set(ctx, r.keyPrefix+id, state, r.ttl).Err(); err != nil {
		return &CacheError{Op: "set", Cause: err}
	}
	return nil
}

// Len reports -1: counting keys is not cheap on Redis.
func (r *Redis) Len() int {
	return -1
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Store = (*Redis)(nil)
