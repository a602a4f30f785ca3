package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/maruel/ksid"
	"golang.org/x/time/rate"

	"github.com/maruel/jsondb/internal/channel"
	"github.com/maruel/jsondb/internal/docstore"
	dberrors "github.com/maruel/jsondb/internal/errors"
	"github.com/maruel/jsondb/internal/jsonldb"
	"github.com/maruel/jsondb/internal/settings"
)

// DefaultInterval is the period of Loop when none is given.
const DefaultInterval = 24 * time.Hour

// AttachmentName is the file name of the delivered copy.
const AttachmentName = "data.json"

// Action is the outcome of Decide.
type Action int

const (
	// ActionNone means no backup destination is configured.
	ActionNone Action = iota
	// ActionSkip means the content did not change since the last backup.
	ActionSkip
	// ActionBackup means the content must be delivered.
	ActionBackup
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionSkip:
		return "skip"
	case ActionBackup:
		return "backup"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Decision is the result of comparing the current content with the hash of
// the last delivered backup.
type Decision struct {
	Action   Action
	Channel  channel.ID
	Hash     string
	Previous string
}

// Decide reports whether a backup is needed. It never modifies the store.
func Decide(store *docstore.Store) (Decision, error) {
	id, ok := channel.ParseID(store.View(settings.UtilsKey).Get(settings.BackupChannelKey, nil))
	if !ok {
		return Decision{Action: ActionNone}, nil
	}
	snap := store.Snapshot()
	var prev string
	if utils, ok := snap[settings.UtilsKey].(map[string]any); ok {
		prev, _ = utils[settings.FileHashKey].(string)
		delete(utils, settings.FileHashKey)
	}
	h, err := ContentHash(snap)
	if err != nil {
		return Decision{}, dberrors.InvalidValue(err)
	}
	d := Decision{Action: ActionBackup, Channel: id, Hash: h, Previous: prev}
	if h == prev {
		d.Action = ActionSkip
	}
	return d, nil
}

// Result describes one run.
type Result struct {
	RunID       ksid.ID    `json:"run_id"`
	Action      string     `json:"action"`
	Channel     channel.ID `json:"channel,omitempty"`
	Destination string     `json:"destination,omitempty"`
	Hash        string     `json:"hash,omitempty"`
	Size        int64      `json:"size,omitempty"`
	Time        time.Time  `json:"time"`
	Error       string     `json:"error,omitempty"`
}

// Service delivers backups of a store.
type Service struct {
	store    *docstore.Store
	channels *channel.Registry
	limiter  *rate.Limiter
	now      func() time.Time
	journal  *jsonldb.Table[Result]
}

// NewService returns a backup service. manualPerHour limits Trigger; 0
// disables manual backups.
func NewService(store *docstore.Store, channels *channel.Registry, manualPerHour int) *Service {
	lim := rate.NewLimiter(0, 0)
	if manualPerHour > 0 {
		lim = rate.NewLimiter(rate.Every(time.Hour/time.Duration(manualPerHour)), 1)
	}
	return &Service{store: store, channels: channels, limiter: lim, now: time.Now}
}

// Run performs one backup cycle.
//
// The new hash is written to the store only after the destination accepted
// the file, so a failed delivery is retried on the next run.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: ksid.NewID(), Time: s.now().UTC()}
	d, err := Decide(s.store)
	if err != nil {
		return nil, err
	}
	res.Action = d.Action.String()
	res.Channel = d.Channel
	res.Hash = d.Hash
	switch d.Action {
	case ActionNone:
		slog.DebugContext(ctx, "Backup skipped, no destination", "run", res.RunID)
		return res, nil
	case ActionSkip:
		slog.InfoContext(ctx, "Backup skipped, content unchanged", "run", res.RunID, "hash", d.Hash)
		return res, nil
	default:
	}

	sender, err := s.channels.Lookup(d.Channel)
	if err != nil {
		return nil, err
	}
	res.Destination = sender.Describe()
	data, err := os.ReadFile(s.store.Path())
	if err != nil {
		return nil, dberrors.Storage("read "+s.store.Path(), err)
	}
	res.Size = int64(len(data))
	msg := &channel.Message{
		Content:    Header(s.now(), res.Size),
		Attachment: &channel.Attachment{Name: AttachmentName, Data: data},
	}
	if err := sender.Send(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Backup delivery failed", "run", res.RunID, "channel", d.Channel, "err", err)
		res.Error = err.Error()
		s.record(ctx, res)
		return nil, err
	}
	if err := s.store.View(settings.UtilsKey).Set(settings.FileHashKey, d.Hash); err != nil {
		return nil, err
	}
	s.record(ctx, res)
	slog.InfoContext(ctx, "Backup sent", "run", res.RunID, "channel", d.Channel, "dest", res.Destination, "size", res.Size, "hash", d.Hash)
	return res, nil
}

// SetJournal records every delivery attempt in j.
func (s *Service) SetJournal(j *jsonldb.Table[Result]) {
	s.journal = j
}

// Journal returns up to n recorded delivery attempts, newest first.
func (s *Service) Journal(n int) []Result {
	if s.journal == nil {
		return nil
	}
	return s.journal.Last(n)
}

func (s *Service) record(ctx context.Context, res *Result) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(*res); err != nil {
		slog.WarnContext(ctx, "Failed to record backup", "run", res.RunID, "err", err)
	}
}

// Header returns the message accompanying a backup file.
func Header(now time.Time, size int64) string {
	return fmt.Sprintf("# Data Backup\n**Timestamp:** %s\n**File Size:** %.2f KB\n",
		now.UTC().Format("2006-01-02 15:04:05 UTC"), float64(size)/1024)
}

// Loop runs a backup immediately and then every interval until ctx is done.
// Errors are logged.
func (s *Service) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := s.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "Backup failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Trigger runs a manual backup, subject to the manual rate limit.
func (s *Service) Trigger(ctx context.Context) (*Result, error) {
	r := s.limiter.Reserve()
	if !r.OK() {
		return nil, dberrors.RateLimited("manual backup")
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return nil, dberrors.RateLimited("manual backup").WithDetail("retry_after", delay.Round(time.Second).String())
	}
	return s.Run(ctx)
}
