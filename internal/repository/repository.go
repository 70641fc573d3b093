// Package repository declares the storage interfaces the rest of the app
// depends on. Implementations live in sub-packages (sqlite, redis) so the
// service and identity layers never import a driver.
package repository

import (
	"context"
	"time"

	"github.com/sakif/auth-demo/internal/model"
)

// AccountRepository stores the local identity provider's accounts.
//
// CreateAccount fills in ID and timestamps and returns an apperror.ErrConflict
// error when the email is already registered. The Get methods return
// apperror.ErrNotFound when nothing matches.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
}

// KeyValueStore is the persistence the identity clients use for the current
// session, the server-side equivalent of the browser's local storage.
//
// Get returns apperror.ErrNotFound for a missing or expired key. A ttl of
// zero means the value never expires.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
