package activity

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maruel/jsondb/internal/channel"
	"github.com/maruel/jsondb/internal/docstore"
	dberrors "github.com/maruel/jsondb/internal/errors"
	"github.com/maruel/jsondb/internal/settings"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		inv  Invocation
		want string
	}{
		{
			"no args",
			Invocation{User: "alice", UserID: "1", Source: "host", SourceID: "10.0.0.1", Command: "dashboard"},
			"# LOG\n```js\nUsername: `alice`\nUserID: 1\nSource: `host`\nSourceID: 10.0.0.1\nCommand: /dashboard\n```",
		},
		{
			"sorted args",
			Invocation{User: "bob", UserID: "2", Command: "set", Args: map[string]any{"value": 3, "key": "a"}},
			"# LOG\n```js\nUsername: `bob`\nUserID: 2\nSource: `local`\nSourceID: local\nCommand: /set\n```" +
				"\n**ARGS**\n```js\nkey: a\nvalue: 3\n```",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(&tt.inv); got != tt.want {
				t.Errorf("Format() =\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestLog(t *testing.T) {
	s, err := docstore.Open(filepath.Join(t.TempDir(), "data.json"))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	reg := channel.NewRegistry()
	reg.Register("9", &channel.WriterSender{ID: "9", Name: "buf", W: &buf})
	l := NewLogger(s, reg)
	inv := &Invocation{User: "u", Command: "keys"}

	if err := l.Log(t.Context(), inv); err != nil {
		t.Fatalf("Log without destination = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}

	if err := s.View(settings.UtilsKey).Set(settings.LogChannelKey, 9); err != nil {
		t.Fatal(err)
	}
	if err := l.Log(t.Context(), inv); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Command: /keys") {
		t.Errorf("output = %q", buf.String())
	}

	if err := s.View(settings.UtilsKey).Set(settings.LogChannelKey, 10); err != nil {
		t.Fatal(err)
	}
	if err := l.Log(t.Context(), inv); !errors.Is(err, dberrors.ErrDestinationUnavailable) {
		t.Errorf("Log to unknown destination = %v", err)
	}
}
