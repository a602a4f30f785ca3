package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/jsondb/internal/backup"
	"github.com/maruel/jsondb/internal/channel"
	"github.com/maruel/jsondb/internal/docstore"
	"github.com/maruel/jsondb/internal/models"
	"github.com/maruel/jsondb/internal/server"
	"github.com/maruel/jsondb/internal/settings"
)

type command struct {
	name  string
	usage string
	help  string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"serve", "serve", "Run the HTTP API and the periodic backup", cmdServe},
	{"get", "get <path>", "Print the value at a dotted path", cmdGet},
	{"set", "set <path> <json>", "Store a value; invalid JSON is stored as a string", cmdSet},
	{"del", "del <path>", "Delete the key at a dotted path", cmdDel},
	{"keys", "keys [query]", "List top-level keys matching a regexp or substring", cmdKeys},
	{"backup", "backup", "Send a backup to the backup channel now", cmdBackup},
	{"dashboard", "dashboard", "Show the log and backup channels", cmdDashboard},
	{"set-channel", "set-channel <log|backup> <id>", "Set a channel; 0 disables it", cmdSetChannel},
	{"schema", "schema", "Print the JSON Schema of the utils object", cmdSchema},
	{"history", "history [n]", "List recent backups", cmdHistory},
	{"token", "token [-role r] [-ttl d] <name>", "Issue an API token", cmdToken},
}

func findCommand(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

func wantArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: jsondb %s", usage)
	}
	return nil
}

func (a *app) printJSON(v any) error {
	e := json.NewEncoder(a.out)
	e.SetEscapeHTML(false)
	e.SetIndent("", "    ")
	return e.Encode(v)
}

func cmdGet(ctx context.Context, a *app, args []string) error {
	if err := wantArgs(args, 1, "get <path>"); err != nil {
		return err
	}
	v, err := a.store.Resolve(args[0])
	if err != nil {
		return err
	}
	a.logCommand(ctx, "get", map[string]any{"path": args[0]})
	if view, ok := v.View(); ok {
		return a.printJSON(view.Snapshot())
	}
	return a.printJSON(v.Raw())
}

// parseValue decodes s as JSON, falling back to the literal string.
func parseValue(s string) any {
	d := json.NewDecoder(strings.NewReader(s))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil || d.More() {
		return s
	}
	return v
}

// parent splits a dotted path into the view holding the last key and the key.
func parent(store *docstore.Store, dotted string) (*docstore.View, string, error) {
	segs := docstore.SplitPath(dotted)
	if len(segs) == 0 {
		return nil, "", errors.New("empty path")
	}
	last := len(segs) - 1
	return store.View(segs[:last]...), segs[last], nil
}

func cmdSet(ctx context.Context, a *app, args []string) error {
	if err := wantArgs(args, 2, "set <path> <json>"); err != nil {
		return err
	}
	v, key, err := parent(a.store, args[0])
	if err != nil {
		return err
	}
	if err := v.Set(key, parseValue(args[1])); err != nil {
		return err
	}
	a.logCommand(ctx, "set", map[string]any{"path": args[0], "value": args[1]})
	return nil
}

func cmdDel(ctx context.Context, a *app, args []string) error {
	if err := wantArgs(args, 1, "del <path>"); err != nil {
		return err
	}
	v, key, err := parent(a.store, args[0])
	if err != nil {
		return err
	}
	if err := v.Delete(key); err != nil {
		return err
	}
	a.logCommand(ctx, "del", map[string]any{"path": args[0]})
	return nil
}

func cmdKeys(ctx context.Context, a *app, args []string) error {
	if len(args) > 1 {
		return errors.New("usage: jsondb keys [query]")
	}
	q := ""
	if len(args) == 1 {
		q = args[0]
	}
	for _, k := range a.store.Keys(q) {
		if _, err := fmt.Fprintln(a.out, k); err != nil {
			return err
		}
	}
	return nil
}

func cmdBackup(ctx context.Context, a *app, args []string) error {
	if err := wantArgs(args, 0, "backup"); err != nil {
		return err
	}
	res, err := a.backup.Run(ctx)
	if err != nil {
		return err
	}
	a.logCommand(ctx, "backup", nil)
	switch res.Action {
	case backup.ActionNone.String():
		_, err = fmt.Fprintln(a.out, "No backup channel set. Use set-channel backup <id>.")
	case backup.ActionSkip.String():
		_, err = fmt.Fprintf(a.out, "No changes since the last backup to #%s.\n", res.Channel)
	default:
		_, err = fmt.Fprintf(a.out, "Backup sent to #%s (%s), %d bytes.\n", res.Channel, res.Destination, res.Size)
	}
	return err
}

func cmdDashboard(ctx context.Context, a *app, args []string) error {
	if err := wantArgs(args, 0, "dashboard"); err != nil {
		return err
	}
	if err := a.settings.EnsureUtils(); err != nil {
		return err
	}
	a.logCommand(ctx, "dashboard", nil)
	_, err := fmt.Fprint(a.out, a.settings.Dashboard().Render())
	return err
}

func cmdSetChannel(ctx context.Context, a *app, args []string) error {
	if err := wantArgs(args, 2, "set-channel <log|backup> <id>"); err != nil {
		return err
	}
	id, _ := channel.ParseID(args[1])
	var err error
	switch args[0] {
	case "log":
		err = a.settings.SetLogChannel(id)
	case "backup":
		err = a.settings.SetBackupChannel(id)
	default:
		return fmt.Errorf("unknown channel kind %q, want log or backup", args[0])
	}
	if err != nil {
		return err
	}
	a.logCommand(ctx, "set-channel", map[string]any{"kind": args[0], "id": args[1]})
	_, err = fmt.Fprint(a.out, a.settings.Dashboard().Render())
	return err
}

func cmdSchema(ctx context.Context, a *app, args []string) error {
	if err := wantArgs(args, 0, "schema"); err != nil {
		return err
	}
	// The schema marshals its own ordered properties; indent it afterward.
	raw, err := json.Marshal(settings.Schema())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = a.out.Write(buf.Bytes())
	return err
}

func cmdHistory(ctx context.Context, a *app, args []string) error {
	n := 10
	switch len(args) {
	case 0:
	case 1:
		var err error
		if n, err = strconv.Atoi(args[0]); err != nil || n <= 0 {
			return fmt.Errorf("invalid count %q", args[0])
		}
	default:
		return errors.New("usage: jsondb history [n]")
	}
	// A git destination keeps its own history.
	if id := a.settings.Dashboard().BackupChannel; id != "" {
		if s, err := a.channels.Lookup(id); err == nil {
			if g, ok := s.(*channel.GitSender); ok {
				return printCommits(ctx, a, g, n)
			}
		}
	}
	for _, r := range a.backup.Journal(n) {
		status := "ok"
		if r.Error != "" {
			status = "failed: " + r.Error
		}
		if _, err := fmt.Fprintf(a.out, "%s %s #%s %d bytes %s\n", r.RunID, r.Time.Format(time.DateTime), r.Channel, r.Size, status); err != nil {
			return err
		}
	}
	return nil
}

func printCommits(ctx context.Context, a *app, g *channel.GitSender, n int) error {
	commits, err := g.History(ctx, n)
	if err != nil {
		return err
	}
	for _, c := range commits {
		if _, err := fmt.Fprintf(a.out, "%.12s %s %s [%s]\n", c.Hash, c.When.UTC().Format(time.DateTime), c.Subject, strings.Join(c.Files, ", ")); err != nil {
			return err
		}
	}
	return nil
}

func cmdToken(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(a.out)
	role := fs.String("role", string(models.RoleViewer), "Role: viewer, editor or admin")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: jsondb token [-role r] [-ttl d] <name>")
	}
	tok, err := server.IssueToken(a.cfg.Secret(), fs.Arg(0), models.Role(*role), *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, tok)
	return err
}
