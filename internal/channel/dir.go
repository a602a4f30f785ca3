package channel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maruel/ksid"

	dberrors "github.com/maruel/jsondb/internal/errors"
)

// DirSender writes each message as a markdown file in a directory. The
// attachment, if any, is written next to it.
//
// The directory must already exist; a missing directory makes the
// destination unavailable.
type DirSender struct {
	ID  ID
	Dir string
}

// Send implements Sender.
func (d *DirSender) Send(_ context.Context, msg *Message) error {
	fi, err := os.Stat(d.Dir)
	if err != nil {
		return dberrors.DestinationUnavailable(d.ID.String(), err.Error()).Wrap(err)
	}
	if !fi.IsDir() {
		return dberrors.DestinationUnavailable(d.ID.String(), d.Dir+" is not a directory")
	}
	base := ksid.NewID().String()
	if err := os.WriteFile(filepath.Join(d.Dir, base+".md"), []byte(msg.Content), 0o644); err != nil { //nolint:gosec // G306: messages are not secret
		return dberrors.DestinationUnavailable(d.ID.String(), err.Error()).Wrap(err)
	}
	if a := msg.Attachment; a != nil {
		name := fmt.Sprintf("%s-%s", base, filepath.Base(a.Name))
		if err := os.WriteFile(filepath.Join(d.Dir, name), a.Data, 0o600); err != nil {
			return dberrors.DestinationUnavailable(d.ID.String(), err.Error()).Wrap(err)
		}
	}
	return nil
}

// Describe implements Sender.
func (d *DirSender) Describe() string {
	return "dir:" + d.Dir
}
