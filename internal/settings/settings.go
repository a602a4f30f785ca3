// Package settings manages the reserved utils object of the document: the
// log and backup destinations shown on the dashboard.
package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/maruel/jsondb/internal/channel"
	"github.com/maruel/jsondb/internal/docstore"
	dberrors "github.com/maruel/jsondb/internal/errors"
)

// Reserved keys.
const (
	UtilsKey         = "utils"
	LogChannelKey    = "log_channel"
	BackupChannelKey = "backup_channel"
	FileHashKey      = "file_hash"
)

// Utils documents the reserved object. It is only used to generate the
// schema; the store keeps the object as plain JSON.
type Utils struct {
	LogChannel    any    `json:"log_channel" jsonschema:"description=Destination ID receiving command logs; null or 0 disables logging,oneof_type=integer;string;null"`
	BackupChannel any    `json:"backup_channel" jsonschema:"description=Destination ID receiving data backups; null or 0 disables backups,oneof_type=integer;string;null"`
	FileHash      string `json:"file_hash,omitempty" jsonschema:"description=SHA-256 of the content at the last delivered backup,pattern=^[0-9a-f]{64}$"`
}

// Schema returns the JSON Schema of the utils object.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	s := r.Reflect(&Utils{})
	s.Title = "utils"
	s.Description = "Reserved settings object of a jsondb document."
	return s
}

// Dashboard is the current state of the settings.
type Dashboard struct {
	LogChannel        channel.ID `json:"log_channel,omitempty"`
	LogDestination    string     `json:"log_destination,omitempty"`
	BackupChannel     channel.ID `json:"backup_channel,omitempty"`
	BackupDestination string     `json:"backup_destination,omitempty"`
	FileHash          string     `json:"file_hash,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Service reads and updates the settings.
type Service struct {
	store    *docstore.Store
	channels *channel.Registry
}

// NewService returns a Service.
func NewService(store *docstore.Store, channels *channel.Registry) *Service {
	return &Service{store: store, channels: channels}
}

// EnsureUtils creates the utils object with null destinations when missing.
// Existing entries are kept.
func (s *Service) EnsureUtils() error {
	return s.store.Update(func(doc docstore.Document) error {
		raw, ok := doc[UtilsKey]
		if !ok || raw == nil {
			raw = map[string]any{}
			doc[UtilsKey] = raw
		}
		utils, ok := raw.(map[string]any)
		if !ok {
			return dberrors.NotAnObject([]string{UtilsKey})
		}
		for _, k := range []string{LogChannelKey, BackupChannelKey} {
			if _, ok := utils[k]; !ok {
				utils[k] = nil
			}
		}
		return nil
	})
}

// Dashboard returns the current settings.
func (s *Service) Dashboard() *Dashboard {
	u := s.store.View(UtilsKey)
	d := &Dashboard{UpdatedAt: time.Now().UTC()}
	d.LogChannel, _ = channel.ParseID(u.Get(LogChannelKey, nil))
	d.BackupChannel, _ = channel.ParseID(u.Get(BackupChannelKey, nil))
	d.FileHash, _ = u.Get(FileHashKey, "").(string)
	if d.LogChannel != "" {
		d.LogDestination = s.channels.Describe(d.LogChannel)
	}
	if d.BackupChannel != "" {
		d.BackupDestination = s.channels.Describe(d.BackupChannel)
	}
	return d
}

// SetLogChannel sets the log destination. An empty id disables logging.
func (s *Service) SetLogChannel(id channel.ID) error {
	return s.set(LogChannelKey, id)
}

// SetBackupChannel sets the backup destination. An empty id disables
// backups.
func (s *Service) SetBackupChannel(id channel.ID) error {
	return s.set(BackupChannelKey, id)
}

func (s *Service) set(key string, id channel.ID) error {
	if id == "" {
		return s.store.View(UtilsKey).Set(key, nil)
	}
	if _, err := s.channels.Lookup(id); err != nil {
		return err
	}
	return s.store.View(UtilsKey).Set(key, storedID(id))
}

// storedID keeps numeric IDs as JSON numbers.
func storedID(id channel.ID) any {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return json.Number(id)
	}
	return string(id)
}

// Render formats the dashboard as text.
func (d *Dashboard) Render() string {
	var b strings.Builder
	b.WriteString("Dashboard\n\n")
	b.WriteString("Current settings of the document. Use set-channel to update them.\n\n")
	b.WriteString("Log Channel\n")
	fmt.Fprintf(&b, "- Current Log Channel: %s\n", describe(d.LogChannel, d.LogDestination))
	b.WriteString("- Description: The channel where all logs will be sent.\n\n")
	b.WriteString("Data Backup Channel\n")
	fmt.Fprintf(&b, "- Current Backup Channel: %s\n", describe(d.BackupChannel, d.BackupDestination))
	b.WriteString("- Description: The channel where data backups will be sent.\n\n")
	fmt.Fprintf(&b, "Last updated %s\n", d.UpdatedAt.Format("2006-01-02 15:04:05 UTC"))
	return b.String()
}

func describe(id channel.ID, dest string) string {
	switch {
	case id == "":
		return "None"
	case dest == "":
		return "#" + id.String() + " (unavailable)"
	default:
		return "#" + id.String() + " (" + dest + ")"
	}
}
