// Package config reads the server configuration from the environment.
//
// cmd/server loads a .env file first (when present), so every variable can
// live there during development.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ProviderLocal    = "local"
	ProviderSupabase = "supabase"

	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"

	EnvProduction = "production"
)

// Config is the complete server configuration.
type Config struct {
	Port      int    `env:"PORT"       envDefault:"8080"`
	AppEnv    string `env:"APP_ENV"    envDefault:"development"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"debug"`

	AuthProvider    string `env:"AUTH_PROVIDER"     envDefault:"local"`
	SupabaseURL     string `env:"SUPABASE_URL"`
	SupabaseAnonKey string `env:"SUPABASE_ANON_KEY"`

	// DomainCheckURL overrides where the domain validation function is
	// called. Empty means SUPABASE_URL for the supabase provider and the
	// in-process allow-list otherwise. DomainCheckKey authenticates the call
	// and defaults to SUPABASE_ANON_KEY.
	DomainCheckURL      string   `env:"DOMAIN_CHECK_URL"`
	DomainCheckKey      string   `env:"DOMAIN_CHECK_KEY"`
	AllowedEmailDomains []string `env:"ALLOWED_EMAIL_DOMAINS" envSeparator:","`

	DBPath         string `env:"DB_PATH"         envDefault:"data/auth-demo.db"`
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"sqlite"`
	RedisAddr      string `env:"REDIS_ADDR"      envDefault:"127.0.0.1:6379"`
	StorageKey     string `env:"STORAGE_KEY"     envDefault:"auth-demo-user"`

	SessionSecret string `env:"SESSION_SECRET"`

	SettleTimeout   time.Duration `env:"AUTH_SETTLE_TIMEOUT" envDefault:"5s"`
	SessionIdleTTL  time.Duration `env:"SESSION_IDLE_TTL"    envDefault:"30m"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT"    envDefault:"10s"`

	// GeneratedSecret is set when SessionSecret was generated because none
	// was configured. Sessions will not survive a restart.
	GeneratedSecret bool `env:"-"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment, fills in a development session secret when
// needed and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	cfg.AuthProvider = strings.ToLower(strings.TrimSpace(cfg.AuthProvider))
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))

	if cfg.SessionSecret == "" && !cfg.IsProduction() {
		secret, err := randomSecret()
		if err != nil {
			return Config{}, err
		}
		cfg.SessionSecret = secret
		cfg.GeneratedSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}

	switch c.AuthProvider {
	case ProviderLocal:
	case ProviderSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return errors.New("config: SUPABASE_URL and SUPABASE_ANON_KEY are required when AUTH_PROVIDER=supabase")
		}
	default:
		return fmt.Errorf("config: unknown AUTH_PROVIDER %q (want %q or %q)", c.AuthProvider, ProviderLocal, ProviderSupabase)
	}

	if c.DomainCheckURL != "" && c.DomainCheckAPIKey() == "" {
		return errors.New("config: DOMAIN_CHECK_URL needs DOMAIN_CHECK_KEY or SUPABASE_ANON_KEY")
	}

	switch c.StorageBackend {
	case StorageSQLite, StorageMemory:
	case StorageRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR is required when STORAGE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.SessionSecret == "" {
		return errors.New("config: SESSION_SECRET is required in production")
	}
	if len(c.SessionSecret) < 16 {
		return errors.New("config: SESSION_SECRET must be at least 16 characters")
	}

	if c.SettleTimeout < 0 || c.SessionIdleTTL <= 0 || c.ProviderTimeout <= 0 {
		return errors.New("config: AUTH_SETTLE_TIMEOUT must be >= 0, SESSION_IDLE_TTL and PROVIDER_TIMEOUT > 0")
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// DomainCheckAPIKey is the key sent to the domain validation function.
func (c Config) DomainCheckAPIKey() string {
	if c.DomainCheckKey != "" {
		return c.DomainCheckKey
	}
	return c.SupabaseAnonKey
}

// IsProduction reports APP_ENV=production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, EnvProduction)
}

// SlogLevel parses LOG_LEVEL.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return level, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("config: generating session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
