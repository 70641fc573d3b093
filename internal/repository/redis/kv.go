// Package redis implements repository.KeyValueStore on Redis, for deployments
// that run several server instances behind one load balancer and need the
// persisted sessions shared between them.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sakif/auth-demo/internal/apperror"
	"github.com/sakif/auth-demo/internal/repository"
)

// KV stores values under prefix+key.
type KV struct {
	client *goredis.Client
	prefix string
}

var _ repository.KeyValueStore = (*KV)(nil)

// Connect creates a client for addr and pings it.
func Connect(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return client, nil
}

// New wraps an existing client. prefix namespaces every key, e.g. "auth-demo:".
func New(client *goredis.Client, prefix string) *KV {
	return &KV{client: client, prefix: prefix}
}

func (kv *KV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := kv.client.Get(ctx, kv.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, apperror.NotFound("key", key)
		}
		return nil, fmt.Errorf("redis: getting key %s: %w", key, err)
	}
	return value, nil
}

func (kv *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := kv.client.Set(ctx, kv.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: setting key %s: %w", key, err)
	}
	return nil
}

func (kv *KV) Delete(ctx context.Context, key string) error {
	if err := kv.client.Del(ctx, kv.prefix+key).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis: deleting key %s: %w", key, err)
	}
	return nil
}
