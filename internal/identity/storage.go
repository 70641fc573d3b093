package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/auth-demo/internal/apperror"
	"github.com/sakif/auth-demo/internal/repository"
)

// DefaultStorageKey is the key prefix sessions are persisted under. It is the
// key the original browser app used for its local storage entry.
const DefaultStorageKey = "auth-demo-user"

// SessionStore persists one browser session's identity Session as JSON.
type SessionStore struct {
	kv  repository.KeyValueStore
	key string
}

// NewSessionStore stores under "<prefix>:<sessionID>".
func NewSessionStore(kv repository.KeyValueStore, prefix, sessionID string) *SessionStore {
	if prefix == "" {
		prefix = DefaultStorageKey
	}
	return &SessionStore{kv: kv, key: prefix + ":" + sessionID}
}

// Key is the storage key in use.
func (s *SessionStore) Key() string {
	return s.key
}

// Load returns the stored session, or nil when there is none.
func (s *SessionStore) Load(ctx context.Context) (*Session, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity: loading session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		// A corrupt entry is as good as no session; drop it so it does not
		// fail every later lookup.
		if delErr := s.kv.Delete(ctx, s.key); delErr != nil {
			return nil, fmt.Errorf("identity: deleting corrupt session: %w", delErr)
		}
		return nil, nil
	}
	if session.Token == nil || session.User.ID == "" {
		return nil, nil
	}
	return &session, nil
}

// Save persists session. The entry expires with the access token when it has
// an expiry.
func (s *SessionStore) Save(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("identity: encoding session: %w", err)
	}

	if err := s.kv.Set(ctx, s.key, raw, sessionTTL(session)); err != nil {
		return fmt.Errorf("identity: saving session: %w", err)
	}
	return nil
}

// Clear removes the stored session.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("identity: clearing session: %w", err)
	}
	return nil
}

func sessionTTL(session *Session) time.Duration {
	if session == nil || session.Token == nil || session.Token.Expiry.IsZero() {
		return 0
	}
	ttl := time.Until(session.Token.Expiry)
	if ttl <= 0 {
		// Already expired. Zero would mean "never expires", so keep it for a
		// moment and let GetSession drop it.
		return time.Second
	}
	return ttl
}
