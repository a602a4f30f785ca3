package channel

import (
	"context"
	"fmt"
	"io"
	"sync"

	dberrors "github.com/maruel/jsondb/internal/errors"
)

// WriterSender prints messages to an io.Writer. Attachments are summarized,
// not dumped.
type WriterSender struct {
	ID   ID
	Name string
	W    io.Writer

	mu sync.Mutex
}

// Send implements Sender.
func (w *WriterSender) Send(_ context.Context, msg *Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.W, "%s\n", msg.Content)
	if err == nil && msg.Attachment != nil {
		_, err = fmt.Fprintf(w.W, "[attachment %s, %d bytes]\n", msg.Attachment.Name, len(msg.Attachment.Data))
	}
	if err != nil {
		return dberrors.DestinationUnavailable(w.ID.String(), err.Error()).Wrap(err)
	}
	return nil
}

// Describe implements Sender.
func (w *WriterSender) Describe() string {
	return w.Name
}
