// Implements Sender by committing into a git repository using go-git (pure
// Go, no git binary dependency).

package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	dberrors "github.com/maruel/jsondb/internal/errors"
)

const (
	gitAuthorName  = "jsondb"
	gitAuthorEmail = "jsondb@localhost"
)

// Commit is one delivered message in a GitSender repository.
type Commit struct {
	Hash    string    `json:"hash"`
	Subject string    `json:"subject"`
	Body    string    `json:"body,omitempty"`
	When    time.Time `json:"when"`
	Files   []string  `json:"files,omitempty"`
}

// GitSender commits each message into a git repository. The attachment is
// written at the root of the work tree and the message content becomes the
// commit message. Messages without attachment are recorded as empty commits.
type GitSender struct {
	ID     ID
	Dir    string
	Branch string

	mu   sync.Mutex
	repo *gogit.Repository
}

// Send implements Sender.
func (g *GitSender) Send(ctx context.Context, msg *Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.commit(ctx, msg); err != nil {
		return dberrors.DestinationUnavailable(g.ID.String(), err.Error()).Wrap(err)
	}
	return nil
}

// Describe implements Sender.
func (g *GitSender) Describe() string {
	if g.Branch != "" {
		return "git:" + g.Dir + "@" + g.Branch
	}
	return "git:" + g.Dir
}

// History returns up to n commits, most recent first.
func (g *GitSender) History(_ context.Context, n int) ([]*Commit, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	repo, err := g.open()
	if err != nil {
		return nil, err
	}
	iter, err := repo.Log(&gogit.LogOptions{})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil // no commits yet
	} else if err != nil {
		return nil, fmt.Errorf("failed to read git log: %w", err)
	}
	defer iter.Close()

	var commits []*Commit
	for range n {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to read git log: %w", err)
		}
		subject, body, _ := strings.Cut(c.Message, "\n")
		item := &Commit{
			Hash:    c.Hash.String(),
			Subject: subject,
			Body:    strings.TrimSpace(body),
			When:    c.Author.When,
		}
		if stats, err := c.Stats(); err == nil {
			for _, s := range stats {
				item.Files = append(item.Files, s.Name)
			}
		}
		commits = append(commits, item)
	}
	return commits, nil
}

func (g *GitSender) commit(_ context.Context, msg *Message) error {
	repo, err := g.open()
	if err != nil {
		return err
	}
	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if a := msg.Attachment; a != nil {
		name := filepath.Base(a.Name)
		if err := os.WriteFile(filepath.Join(g.Dir, name), a.Data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		if _, err := w.Add(name); err != nil {
			return fmt.Errorf("failed to stage files: %w", err)
		}
	}
	now := time.Now()
	sig := &object.Signature{Name: gitAuthorName, Email: gitAuthorEmail, When: now}
	_, err = w.Commit(msg.Content, &gogit.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// open must be called with g.mu held.
func (g *GitSender) open() (*gogit.Repository, error) {
	if g.repo != nil {
		return g.repo, nil
	}
	if err := os.MkdirAll(g.Dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(g.Dir)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		opts := &gogit.PlainInitOptions{}
		if g.Branch != "" {
			opts.InitOptions.DefaultBranch = plumbing.NewBranchReferenceName(g.Branch)
		}
		repo, err = gogit.PlainInitWithOptions(g.Dir, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = gitAuthorName
		cfg.User.Email = gitAuthorEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open git repo: %w", err)
	} else if g.Branch != "" {
		if err := checkoutBranch(repo, plumbing.NewBranchReferenceName(g.Branch)); err != nil {
			return nil, fmt.Errorf("failed to switch to branch %s: %w", g.Branch, err)
		}
	}
	g.repo = repo
	return repo, nil
}

// checkoutBranch points HEAD of an existing repository at branch, creating it
// from the current HEAD commit when needed. Unstaged changes are kept.
func checkoutBranch(repo *gogit.Repository, branch plumbing.ReferenceName) error {
	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return err
	}
	if head.Type() == plumbing.SymbolicReference && head.Target() == branch {
		return nil
	}
	_, err = repo.Reference(branch, true)
	exists := err == nil
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return err
	}
	if !exists {
		if _, err := repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
			// No commit yet; the first commit creates the branch.
			return repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branch))
		} else if err != nil {
			return err
		}
	}
	w, err := repo.Worktree()
	if err != nil {
		return err
	}
	return w.Checkout(&gogit.CheckoutOptions{Branch: branch, Create: !exists})
}
