package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/auth-demo/internal/apperror"
	"github.com/sakif/auth-demo/internal/repository"
)

// KV adapts DB to repository.KeyValueStore.
//
// It is a separate type (rather than methods on DB) because its Get/Set/Delete
// names are too generic to share a method set with the account repository.
type KV struct {
	db *DB
}

var _ repository.KeyValueStore = (*KV)(nil)

// KV returns the key-value view of the database.
func (db *DB) KV() *KV {
	return &KV{db: db}
}

// Get returns the value for key. Expired rows are treated as missing and
// removed lazily.
func (kv *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt sql.NullTime
	)
	err := kv.db.conn.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("key", key)
		}
		return nil, fmt.Errorf("sqlite: getting key %s: %w", key, err)
	}

	if expiresAt.Valid && !expiresAt.Time.After(time.Now()) {
		if err := kv.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, apperror.NotFound("key", key)
	}

	return value, nil
}

// Set stores value under key, replacing any previous value.
func (kv *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: time.Now().Add(ttl).UTC(), Valid: true}
	}

	_, err := kv.db.conn.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting key %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (kv *KV) Delete(ctx context.Context, key string) error {
	if _, err := kv.db.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: deleting key %s: %w", key, err)
	}
	return nil
}

// PurgeExpired deletes every expired row and reports how many were removed.
func (kv *KV) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := kv.db.conn.ExecContext(ctx,
		`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging expired keys: %w", err)
	}
	return res.RowsAffected()
}
