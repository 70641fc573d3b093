// Package memory is a process-local repository.KeyValueStore. Sessions kept
// here do not survive a restart; it exists for tests and for running the demo
// without a database file.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sakif/auth-demo/internal/apperror"
	"github.com/sakif/auth-demo/internal/repository"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero = never
}

type KV struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

var _ repository.KeyValueStore = (*KV)(nil)

func New() *KV {
	return &KV{data: make(map[string]entry), now: time.Now}
}

func (kv *KV) Get(ctx context.Context, key string) ([]byte, error) {
	kv.mu.RLock()
	e, ok := kv.data[key]
	kv.mu.RUnlock()

	if !ok || (!e.expiresAt.IsZero() && !e.expiresAt.After(kv.now())) {
		return nil, apperror.NotFound("key", key)
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (kv *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = kv.now().Add(ttl)
	}

	kv.mu.Lock()
	kv.data[key] = e
	kv.mu.Unlock()
	return nil
}

func (kv *KV) Delete(ctx context.Context, key string) error {
	kv.mu.Lock()
	delete(kv.data, key)
	kv.mu.Unlock()
	return nil
}

// Len counts stored keys, expired ones included.
func (kv *KV) Len() int {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return len(kv.data)
}
