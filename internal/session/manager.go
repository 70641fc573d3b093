// Package session keeps one store.Store per browser session.
//
// Stores are created lazily on the first request that carries a session ID
// and closed by a background janitor once nobody has asked for them for
// Config.IdleTTL. Closing a store only releases its subscription: the
// identity session itself stays persisted and is restored the next time the
// browser comes back.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/auth-demo/internal/store"
)

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("session: manager closed")

// Factory builds and starts the store for a browser session.
type Factory func(ctx context.Context, sessionID string) (*store.Store, error)

// Purger removes expired persisted sessions. sqlite.KV implements it; redis
// expires keys on its own and needs no purger.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Config tunes the janitor.
type Config struct {
	IdleTTL       time.Duration // default 30m
	SweepInterval time.Duration // default IdleTTL/2, at most one minute
	Purger        Purger        // optional
}

func (c Config) withDefaults() Config {
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = min(c.IdleTTL/2, time.Minute)
	}
	return c
}

type entry struct {
	store    *store.Store
	err      error
	ready    chan struct{} // closed once store/err are set
	lastSeen time.Time
}

// Manager maps session IDs to stores.
type Manager struct {
	factory Factory
	config  Config
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

func NewManager(factory Factory, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		factory: factory,
		config:  cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
}

// Start launches the janitor. Calling it again does nothing.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.logger.Info("starting session janitor",
			slog.Duration("idle_ttl", m.config.IdleTTL),
			slog.Duration("sweep_interval", m.config.SweepInterval),
		)
		m.wg.Add(1)
		go m.janitor()
	})
}

// Close stops the janitor and closes every store. Later Gets fail with
// ErrClosed.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.logger.Info("shutting down session manager")
		close(m.done)
		m.wg.Wait()

		m.mu.Lock()
		m.closed = true
		entries := m.entries
		m.entries = make(map[string]*entry)
		m.mu.Unlock()

		for _, e := range entries {
			<-e.ready
			if e.store != nil {
				e.store.Close()
			}
		}
	})
}

// Get returns the store for sessionID, creating it on first use. Concurrent
// first calls for the same ID share one factory call. A failed creation is
// not cached. A cached store whose session lookup failed retries it.
func (m *Manager) Get(ctx context.Context, sessionID string) (*store.Store, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	e, ok := m.entries[sessionID]
	if ok {
		e.lastSeen = m.now()
		m.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		// The error stays in the store's state for the page to show.
		if err := e.store.Restore(ctx); err != nil {
			m.logger.Warn("restoring session",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
		return e.store, nil
	}

	// SINGLE FLIGHT:
	// The entry goes into the map before the factory runs, so a concurrent Get
	// for the same ID finds it and blocks on ready instead of building a
	// second store. The mutex is not held during the factory call.
	e = &entry{ready: make(chan struct{}), lastSeen: m.now()}
	m.entries[sessionID] = e
	m.mu.Unlock()

	e.store, e.err = m.factory(ctx, sessionID)
	close(e.ready)

	if e.err != nil {
		m.mu.Lock()
		if m.entries[sessionID] == e {
			delete(m.entries, sessionID)
		}
		m.mu.Unlock()
		return nil, e.err
	}

	m.logger.Debug("session store created", slog.String("session_id", sessionID))
	return e.store, nil
}

// Len reports how many stores are live.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) janitor() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep closes idle stores and purges expired persisted sessions.
func (m *Manager) sweep() {
	cutoff := m.now().Add(-m.config.IdleTTL)

	var idle []*store.Store
	m.mu.Lock()
	for id, e := range m.entries {
		select {
		case <-e.ready:
		default:
			continue // still being created
		}
		if e.lastSeen.Before(cutoff) {
			delete(m.entries, id)
			idle = append(idle, e.store)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		m.logger.Info("evicted idle session stores", slog.Int("count", len(idle)))
	}

	if m.config.Purger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	purged, err := m.config.Purger.PurgeExpired(ctx)
	if err != nil {
		m.logger.Error("purging expired sessions", slog.String("error", err.Error()))
		return
	}
	if purged > 0 {
		m.logger.Info("purged expired sessions", slog.Int64("count", purged))
	}
}
