package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/maruel/jsondb/internal/server"
)

func cmdServe(ctx context.Context, a *app, args []string) error {
	if err := wantArgs(args, 0, "serve"); err != nil {
		return err
	}
	// Normalize addr: ":8080" becomes "localhost:8080"
	addr := a.httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	if err := a.settings.EnsureUtils(); err != nil {
		slog.WarnContext(ctx, "Reserved settings unavailable", "err", err)
	}

	// Watch own executable for modifications (for development restarts)
	if a.stop != nil {
		if err := watchExecutable(ctx, a.stop); err != nil {
			return fmt.Errorf("failed to watch executable: %w", err)
		}
	}
	if err := a.store.Watch(ctx, a.store.Reload); err != nil {
		return fmt.Errorf("failed to watch %s: %w", a.store.Path(), err)
	}

	go a.backup.Loop(ctx, a.cfg.BackupInterval)

	buildVersion, _, _, _ := getBuildInfo()
	httpServer := &http.Server{
		Addr: addr,
		Handler: server.NewRouter(&server.Services{
			Store:    a.store,
			Settings: a.settings,
			Backup:   a.backup,
			Activity: a.activity,
			Secret:   a.cfg.Secret(),
			Version:  buildVersion,
		}),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "db", a.store.Path(), "version", buildVersion, "backup_interval", a.cfg.BackupInterval)
		serverErr <- httpServer.ListenAndServe()
	}()

	// Wait for either context cancellation or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		// Graceful shutdown
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// watchExecutable watches the current executable for modifications and calls
// stop to trigger graceful shutdown when detected. This enables seamless
// restarts during development.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
