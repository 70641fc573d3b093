// Package server is the composition root: it builds the storage, identity
// provider, domain validator and session manager from config.Config, and
// mounts every route on one chi router.
//
// Routes:
//
//	GET  /                                  landing page (login / signup form)
//	GET  /dashboard                         protected page
//	POST /auth/login | /auth/signup | /auth/logout      form posts
//	POST /api/auth/login | signup | logout              JSON API
//	GET  /api/auth/state, /api/dashboard, /api/session  JSON API
//	POST /functions/v1/validate-email-domain            allow-list check
//	GET  /healthz, /metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	goredis "github.com/redis/go-redis/v9"
	"github.com/unrolled/secure"

	"github.com/sakif/auth-demo/internal/auth"
	"github.com/sakif/auth-demo/internal/config"
	"github.com/sakif/auth-demo/internal/domaincheck"
	"github.com/sakif/auth-demo/internal/handler"
	"github.com/sakif/auth-demo/internal/identity"
	"github.com/sakif/auth-demo/internal/identity/gotrue"
	"github.com/sakif/auth-demo/internal/identity/local"
	"github.com/sakif/auth-demo/internal/middleware"
	"github.com/sakif/auth-demo/internal/observability"
	"github.com/sakif/auth-demo/internal/repository"
	"github.com/sakif/auth-demo/internal/repository/memory"
	redisRepo "github.com/sakif/auth-demo/internal/repository/redis"
	sqliteRepo "github.com/sakif/auth-demo/internal/repository/sqlite"
	"github.com/sakif/auth-demo/internal/session"
	"github.com/sakif/auth-demo/internal/store"
	"github.com/sakif/auth-demo/web"
)

const (
	// browserSessionTTL is the lifetime of the browser session cookie. The
	// identity session inside it expires on its own schedule.
	browserSessionTTL = 30 * 24 * time.Hour

	// localSessionTTL is the lifetime of access tokens issued by the local
	// provider.
	localSessionTTL = time.Hour

	redisKeyPrefix = "auth-demo:"

	// authRateLimit caps auth POSTs per client IP per minute.
	authRateLimit = 20
)

// Server owns the router and every resource that must be released on
// shutdown.
type Server struct {
	router   *chi.Mux
	config   config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	sessions *session.Manager

	db    *sqliteRepo.DB  // nil unless the local provider or sqlite storage is used
	redis *goredis.Client // nil unless STORAGE_BACKEND=redis
}

// New wires the whole application. On error every resource opened so far is
// released.
func New(cfg config.Config, logger *slog.Logger) (_ *Server, err error) {
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if cfg.AuthProvider == config.ProviderLocal || cfg.StorageBackend == config.StorageSQLite {
		if s.db, err = openDB(cfg.DBPath); err != nil {
			return nil, err
		}
	}

	kv, purger, err := s.openKV(context.Background())
	if err != nil {
		return nil, err
	}

	sessionTokens, err := auth.NewTokenService(cfg.SessionSecret, auth.SessionIssuer, browserSessionTTL)
	if err != nil {
		return nil, fmt.Errorf("creating session token service: %w", err)
	}

	provider, err := s.newProvider()
	if err != nil {
		return nil, err
	}

	domains, err := s.newDomainValidator()
	if err != nil {
		return nil, err
	}

	factory := session.NewStoreFactory(session.StoreDeps{
		KV:         kv,
		StorageKey: cfg.StorageKey,
		Provider:   provider,
		Domains:    domains,
		Store:      store.Options{SettleTimeout: cfg.SettleTimeout},
		Logger:     logger,
	})
	s.sessions = session.NewManager(factory, session.Config{
		IdleTTL: cfg.SessionIdleTTL,
		Purger:  purger,
	}, logger)
	s.sessions.Start()
	s.metrics.TrackActiveSessions(s.sessions.Len)

	if err := s.setupRoutes(sessionTokens); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	logger.Info("server configured",
		slog.String("auth_provider", cfg.AuthProvider),
		slog.String("storage_backend", cfg.StorageBackend),
		slog.Duration("settle_timeout", cfg.SettleTimeout),
	)
	return s, nil
}

func openDB(path string) (*sqliteRepo.DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqliteRepo.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// openKV picks the session persistence backend. The purger is nil for
// backends that expire keys themselves.
func (s *Server) openKV(ctx context.Context) (repository.KeyValueStore, session.Purger, error) {
	switch s.config.StorageBackend {
	case config.StorageRedis:
		client, err := redisRepo.Connect(ctx, s.config.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		s.redis = client
		return redisRepo.New(client, redisKeyPrefix), nil, nil
	case config.StorageMemory:
		kv := memory.New()
		return kv, nil, nil
	default:
		kv := s.db.KV()
		return kv, kv, nil
	}
}

func (s *Server) newProvider() (session.ProviderFunc, error) {
	if s.config.AuthProvider == config.ProviderSupabase {
		backend, err := gotrue.New(gotrue.Config{
			BaseURL:    s.config.SupabaseURL,
			AnonKey:    s.config.SupabaseAnonKey,
			HTTPClient: &http.Client{Timeout: s.config.ProviderTimeout},
		}, s.logger)
		if err != nil {
			return nil, fmt.Errorf("creating identity provider: %w", err)
		}
		return func(storage *identity.SessionStore) identity.Provider {
			return backend.NewClient(storage)
		}, nil
	}

	tokens, err := auth.NewTokenService(s.config.SessionSecret, auth.LocalIssuer, localSessionTTL)
	if err != nil {
		return nil, fmt.Errorf("creating local token service: %w", err)
	}
	backend := local.New(s.db, auth.NewPasswordService(), tokens, s.logger)
	return func(storage *identity.SessionStore) identity.Provider {
		return backend.NewClient(storage)
	}, nil
}

// newDomainValidator calls the remote validation function when one is
// configured (explicitly, or implied by the supabase provider) and uses the
// in-process allow-list otherwise.
func (s *Server) newDomainValidator() (domaincheck.Validator, error) {
	baseURL := s.config.DomainCheckURL
	if baseURL == "" && s.config.AuthProvider == config.ProviderSupabase {
		baseURL = s.config.SupabaseURL
	}
	if baseURL == "" {
		return domaincheck.NewAllowList(s.config.AllowedEmailDomains), nil
	}

	client, err := domaincheck.NewClient(baseURL, s.config.DomainCheckAPIKey(),
		&http.Client{Timeout: s.config.ProviderTimeout}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("creating domain check client: %w", err)
	}
	return client, nil
}

// setupRoutes registers middleware and routes.
//
// ROUTE STRUCTURE:
// GET    /                   → landing page (login/signup forms)
// GET    /dashboard          → dashboard page, redirects home when signed out
// POST   /auth/{action}      → form posts, answer with a 303 redirect
// POST   /api/auth/{action}  → JSON login, signup, logout
// GET    /api/auth/state     → the session's AuthState
// POST   /functions/v1/...   → the email domain validation function
//
// MIDDLEWARE ORDER MATTERS:
// Middleware runs in the order it is added:
// 1. RequestID tags the request so log lines can be correlated
// 2. RealIP rewrites RemoteAddr from proxy headers, before the rate limiter reads it
// 3. Logger wraps everything below it, so it sees the final status
// 4. Recoverer turns a panic into a 500 the logger can still record
// 5. secure adds the security headers; metrics times the rest
//
// BrowserSession only wraps the page and API groups: health checks and
// scrapes never mint a session cookie.
func (s *Server) setupRoutes(sessionTokens *auth.TokenService) error {
	production := s.config.IsProduction()

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !production,
	})

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(secureMiddleware.Handler)
	s.router.Use(s.metrics.Middleware)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", s.metrics.Handler())

	// The allow-list is served even when signups are checked remotely, so
	// DOMAIN_CHECK_URL can point at another instance of this server.
	allowList := domaincheck.NewAllowList(s.config.AllowedEmailDomains)
	s.router.Method(http.MethodPost, domaincheck.Path, domaincheck.Handler(allowList, s.logger))

	pages, err := handler.NewPageHandler(web.Templates(), s.sessions, allowList.Domains(), s.logger)
	if err != nil {
		return err
	}
	authHandler := handler.NewAuthHandler(s.sessions, s.metrics, s.logger)
	dashboardHandler := handler.NewDashboardHandler(s.sessions, s.logger)
	limiter := httprate.LimitByIP(authRateLimit, time.Minute)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.BrowserSession(sessionTokens, production, s.logger))

		r.Get("/", pages.HandleLanding)
		r.Get("/dashboard", pages.HandleDashboard)

		r.Route("/auth", func(r chi.Router) {
			r.Use(limiter)
			r.Post("/login", authHandler.HandleLoginForm)
			r.Post("/signup", authHandler.HandleSignupForm)
			r.Post("/logout", authHandler.HandleLogoutForm)
		})

		r.Route("/api", func(r chi.Router) {
			r.With(limiter).Post("/auth/login", authHandler.HandleLogin)
			r.With(limiter).Post("/auth/signup", authHandler.HandleSignup)
			r.With(limiter).Post("/auth/logout", authHandler.HandleLogout)
			r.Get("/auth/state", authHandler.HandleState)
			r.Get("/dashboard", dashboardHandler.HandleDashboard)
			r.Get("/session", authHandler.HandleSession)
		})
	})

	return nil
}

// Handler returns the router. Tests serve it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the session manager and releases the storage connections.
func (s *Server) Close() error {
	if s.sessions != nil {
		s.sessions.Close()
	}

	var errs []error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully: stop
// accepting connections, let in-flight requests finish, then Close.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("releasing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // a login may wait for the provider and the settle timeout
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
