package settings

import (
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maruel/jsondb/internal/channel"
	"github.com/maruel/jsondb/internal/docstore"
	dberrors "github.com/maruel/jsondb/internal/errors"
)

func newService(t *testing.T) (*Service, *docstore.Store) {
	t.Helper()
	s, err := docstore.Open(filepath.Join(t.TempDir(), "data.json"))
	if err != nil {
		t.Fatal(err)
	}
	reg := channel.NewRegistry()
	reg.Register("123", &channel.WriterSender{ID: "123", Name: "stdout", W: io.Discard})
	reg.Register("ops", &channel.DirSender{ID: "ops", Dir: "/var/backups"})
	return NewService(s, reg), s
}

func TestEnsureUtils(t *testing.T) {
	svc, s := newService(t)
	if err := svc.EnsureUtils(); err != nil {
		t.Fatalf("EnsureUtils failed: %v", err)
	}
	if got := s.View(UtilsKey).String(); got != `{"backup_channel":null,"log_channel":null}` {
		t.Errorf("utils = %s", got)
	}
	if err := s.View(UtilsKey).Set(LogChannelKey, 5); err != nil {
		t.Fatal(err)
	}
	if err := svc.EnsureUtils(); err != nil {
		t.Fatal(err)
	}
	if got := s.View(UtilsKey).Get(LogChannelKey, nil); got != json.Number("5") {
		t.Errorf("existing entry overwritten: %#v", got)
	}

	t.Run("not an object", func(t *testing.T) {
		svc, s := newService(t)
		if err := s.Set(UtilsKey, "oops"); err != nil {
			t.Fatal(err)
		}
		if err := svc.EnsureUtils(); !errors.Is(err, dberrors.ErrNotAnObject) {
			t.Errorf("EnsureUtils() = %v", err)
		}
	})
}

func TestSetChannels(t *testing.T) {
	svc, s := newService(t)
	if err := svc.SetLogChannel("123"); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetBackupChannel("ops"); err != nil {
		t.Fatal(err)
	}
	if got := s.View(UtilsKey).Get(LogChannelKey, nil); got != json.Number("123") {
		t.Errorf("log_channel = %#v", got)
	}
	if got := s.View(UtilsKey).Get(BackupChannelKey, nil); got != "ops" {
		t.Errorf("backup_channel = %#v", got)
	}
	if err := svc.SetLogChannel("999"); !errors.Is(err, dberrors.ErrDestinationUnavailable) {
		t.Errorf("SetLogChannel(unknown) = %v", err)
	}

	d := svc.Dashboard()
	if d.LogChannel != "123" || d.LogDestination != "stdout" || d.BackupChannel != "ops" || d.BackupDestination != "dir:/var/backups" {
		t.Errorf("Dashboard() = %+v", d)
	}

	if err := svc.SetBackupChannel(""); err != nil {
		t.Fatal(err)
	}
	if got := s.View(UtilsKey).Get(BackupChannelKey, "absent"); got != nil {
		t.Errorf("backup_channel = %#v, want null", got)
	}
}

func TestRender(t *testing.T) {
	d := &Dashboard{
		LogChannel:     "123",
		LogDestination: "stdout",
		BackupChannel:  "7",
		UpdatedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	got := d.Render()
	for _, want := range []string{
		"- Current Log Channel: #123 (stdout)\n",
		"- Current Backup Channel: #7 (unavailable)\n",
		"Last updated 2024-01-01 00:00:00 UTC\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Render() missing %q:\n%s", want, got)
		}
	}
	if got := (&Dashboard{}).Render(); !strings.Contains(got, "- Current Log Channel: None\n") {
		t.Errorf("Render() =\n%s", got)
	}
}

func TestSchema(t *testing.T) {
	b, err := json.Marshal(Schema())
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Title != "utils" {
		t.Errorf("title = %q", got.Title)
	}
	for _, k := range []string{LogChannelKey, BackupChannelKey, FileHashKey} {
		if _, ok := got.Properties[k]; !ok {
			t.Errorf("schema missing %s: %s", k, b)
		}
	}
}
