package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"

	"github.com/maruel/jsondb/internal/activity"
	"github.com/maruel/jsondb/internal/backup"
	"github.com/maruel/jsondb/internal/channel"
	"github.com/maruel/jsondb/internal/config"
	"github.com/maruel/jsondb/internal/docstore"
	"github.com/maruel/jsondb/internal/jsonldb"
	"github.com/maruel/jsondb/internal/settings"
)

// journalFilename records backup attempts in the data directory.
const journalFilename = "backups.jsonl"

// app holds the services shared by all commands.
type app struct {
	dataDir  string
	httpAddr string
	stop     context.CancelFunc
	out      io.Writer

	cfg      *config.Config
	store    *docstore.Store
	channels *channel.Registry
	settings *settings.Service
	backup   *backup.Service
	activity *activity.Logger
}

func openApp(dataDir, dbPath, tokenSecret string) (*app, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}
	if tokenSecret != "" {
		cfg.TokenSecret = tokenSecret
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("JSONDB_TOKEN_SECRET: %w", err)
		}
	}
	return newApp(cfg, dataDir, dbPath, os.Stdout)
}

func newApp(cfg *config.Config, dataDir, dbPath string, out io.Writer) (*app, error) {
	store, err := docstore.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dbPath, err)
	}
	reg, err := channel.FromConfig(cfg, dataDir, out)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", config.Filename, err)
	}
	journal, err := jsonldb.NewTable[backup.Result](filepath.Join(dataDir, journalFilename), 1000)
	if err != nil {
		return nil, err
	}
	b := backup.NewService(store, reg, cfg.ManualBackupPerHour)
	b.SetJournal(journal)
	return &app{
		dataDir:  dataDir,
		out:      out,
		cfg:      cfg,
		store:    store,
		channels: reg,
		settings: settings.NewService(store, reg),
		backup:   b,
		activity: activity.NewLogger(store, reg),
	}, nil
}

func (a *app) close() error {
	return a.store.Close()
}

// logCommand reports a command run from the command line to the log
// destination.
func (a *app) logCommand(ctx context.Context, command string, args map[string]any) {
	inv := &activity.Invocation{Command: command, Args: args}
	if u, err := user.Current(); err == nil {
		inv.User = u.Username
		inv.UserID = u.Uid
	} else {
		slog.DebugContext(ctx, "Unknown user", "err", err)
	}
	// Failures are logged by the activity logger.
	_ = a.activity.Log(ctx, inv)
}
