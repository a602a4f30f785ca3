// Package activity reports command invocations to the log destination
// configured in the document.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/maruel/jsondb/internal/channel"
	"github.com/maruel/jsondb/internal/docstore"
	"github.com/maruel/jsondb/internal/settings"
)

// Invocation describes one handled command.
type Invocation struct {
	User     string
	UserID   string
	Source   string
	SourceID string
	Command  string
	Args     map[string]any
}

// Logger posts invocations to the destination in utils.log_channel.
type Logger struct {
	store    *docstore.Store
	channels *channel.Registry
}

// NewLogger returns a Logger.
func NewLogger(store *docstore.Store, channels *channel.Registry) *Logger {
	return &Logger{store: store, channels: channels}
}

// Log sends inv to the log destination. It does nothing when no destination
// is set.
func (l *Logger) Log(ctx context.Context, inv *Invocation) error {
	id, ok := channel.ParseID(l.store.View(settings.UtilsKey).Get(settings.LogChannelKey, nil))
	if !ok {
		return nil
	}
	if err := l.channels.Send(ctx, id, &channel.Message{Content: Format(inv)}); err != nil {
		slog.WarnContext(ctx, "Failed to send activity log", "channel", id, "command", inv.Command, "err", err)
		return err
	}
	return nil
}

// Format renders inv as a log message. Arguments are listed in key order.
func Format(inv *Invocation) string {
	source, sourceID := inv.Source, inv.SourceID
	if source == "" {
		source = "local"
	}
	if sourceID == "" {
		sourceID = "local"
	}
	var b strings.Builder
	b.WriteString("# LOG\n```js\n")
	fmt.Fprintf(&b, "Username: `%s`\n", inv.User)
	fmt.Fprintf(&b, "UserID: %s\n", inv.UserID)
	fmt.Fprintf(&b, "Source: `%s`\n", source)
	fmt.Fprintf(&b, "SourceID: %s\n", sourceID)
	fmt.Fprintf(&b, "Command: /%s\n", inv.Command)
	b.WriteString("```")
	if len(inv.Args) != 0 {
		keys := make([]string, 0, len(inv.Args))
		for k := range inv.Args {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString("\n**ARGS**\n```js")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %v", k, inv.Args[k])
		}
		b.WriteString("\n```")
	}
	return b.String()
}
