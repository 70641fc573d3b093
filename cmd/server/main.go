// Package main is the entry point of the auth demo server.
//
// Configuration comes from the environment (see internal/config); a .env
// file in the working directory is loaded first when present.
package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/sakif/auth-demo/internal/config"
	"github.com/sakif/auth-demo/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if cfg.GeneratedSecret {
		logger.Warn("SESSION_SECRET not set; using a random secret, browser sessions will not survive a restart")
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel() // checked by config.Load
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
