package channel

import (
	"fmt"
	"io"

	"github.com/maruel/jsondb/internal/config"
)

// FromConfig builds a registry from the declared channels. Relative paths are
// resolved against dataDir; stdout channels write to out.
func FromConfig(cfg *config.Config, dataDir string, out io.Writer) (*Registry, error) {
	r := NewRegistry()
	for i := range cfg.Channels {
		c := &cfg.Channels[i]
		id, ok := ParseID(c.ID)
		if !ok {
			return nil, fmt.Errorf("channels[%d]: invalid id %q", i, c.ID)
		}
		var s Sender
		switch c.Type {
		case config.TypeDir:
			s = &DirSender{ID: id, Dir: config.ResolvePath(dataDir, c.Path)}
		case config.TypeGit:
			s = &GitSender{ID: id, Dir: config.ResolvePath(dataDir, c.Path), Branch: c.Branch}
		case config.TypeWebhook:
			s = &WebhookSender{ID: id, URL: c.URL, Secret: cfg.Secret()}
		case config.TypeStdout:
			s = &WriterSender{ID: id, Name: "stdout", W: out}
		default:
			return nil, fmt.Errorf("channels[%d]: unknown type %q", i, c.Type)
		}
		r.Register(id, s)
	}
	return r, nil
}
