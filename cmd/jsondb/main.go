// Package main is the entry point for jsondb.
//
// jsondb keeps a JSON document in a single file, rewritten after every change,
// and backs it up to configurable destinations. It runs as a local HTTP API
// ("serve") or as one-shot commands operating on the same file.
// Configuration is read from CLI flags, a .env file and config.yaml in the
// data directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/maruel/jsondb/internal/docstore"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "jsondb: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: jsondb [flags] <command> [args]\n\n")
	fmt.Fprintf(out, "commands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-32s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(out, "\nflags:\n")
	flag.PrintDefaults()
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on for serve (e.g., localhost:8080, :8080)")
	dataDir := flag.String("data-dir", "./data", "Data directory holding config.yaml and .env")
	dbPath := flag.String("db", "", "Document file; relative paths resolve next to the executable (default "+docstore.DefaultFilename+")")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return nil
	}
	if flag.NArg() == 0 {
		usage()
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(newLogger(ll))

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}

	// Override with .env file values if not explicitly set via flags
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if !set["http"] {
		if v := env["HTTP"]; v != "" {
			*httpAddr = v
		}
	}
	if !set["log-level"] {
		if v := env["LOG_LEVEL"]; v != "" {
			*logLevel = v
		}
	}
	if !set["db"] {
		*dbPath = env["DATABASE"]
		if v := os.Getenv("DATABASE"); v != "" {
			*dbPath = v
		}
		if *dbPath == "" {
			*dbPath = docstore.DefaultFilename
		}
	}

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	name, args := flag.Arg(0), flag.Args()[1:]
	cmd := findCommand(name)
	if cmd == nil {
		usage()
		return fmt.Errorf("unknown command %q", name)
	}
	a, err := openApp(*dataDir, *dbPath, env["JSONDB_TOKEN_SECRET"])
	if err != nil {
		return err
	}
	a.httpAddr = *httpAddr
	a.stop = stop
	err = cmd.run(ctx, a, args)
	if err2 := a.close(); err == nil {
		err = err2
	}
	return err
}

func newLogger(ll *slog.LevelVar) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop localhost IPs (not useful in logs).
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case int64:
				skip = t == 0
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}
