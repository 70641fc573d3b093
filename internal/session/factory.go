package session

import (
	"context"
	"log/slog"

	"github.com/sakif/auth-demo/internal/domaincheck"
	"github.com/sakif/auth-demo/internal/identity"
	"github.com/sakif/auth-demo/internal/repository"
	"github.com/sakif/auth-demo/internal/service"
	"github.com/sakif/auth-demo/internal/store"
)

// ProviderFunc binds an identity provider client to one session's storage.
type ProviderFunc func(storage *identity.SessionStore) identity.Provider

// StoreDeps is everything NewStoreFactory wires into each store.
type StoreDeps struct {
	KV         repository.KeyValueStore
	StorageKey string
	Provider   ProviderFunc
	Domains    domaincheck.Validator
	Store      store.Options
	Logger     *slog.Logger
}

// NewStoreFactory returns a Factory that builds the provider client,
// AuthService and Store for a session and starts the store.
//
// A failed session lookup during Start is not a creation failure: the store
// already holds the error for the page to show, so it is returned anyway,
// and Manager.Get retries the lookup on the next request.
func NewStoreFactory(deps StoreDeps) Factory {
	return func(ctx context.Context, sessionID string) (*store.Store, error) {
		logger := deps.Logger.With(slog.String("session_id", sessionID))

		storage := identity.NewSessionStore(deps.KV, deps.StorageKey, sessionID)
		svc := service.NewAuthService(deps.Provider(storage), deps.Domains, logger)
		st := store.New(svc, logger, deps.Store)

		if err := st.Start(ctx); err != nil {
			logger.Warn("restoring session", slog.String("error", err.Error()))
		}
		return st, nil
	}
}
