package docstore

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	dberrors "github.com/maruel/jsondb/internal/errors"
)

// DefaultFilename is the backing file used when Open is given an empty path.
const DefaultFilename = "data.json"

// Store handles persistence of a single JSON document.
type Store struct {
	path string
	mu   sync.Mutex

	data Document
	// dirty is set when a save failed; the in-memory document is then ahead of
	// the file and is not replaced by reloads until a save succeeds.
	dirty bool
	// saved holds the bytes of the last successful save, to tell our own
	// writes apart from external edits.
	saved []byte
}

// Open creates a Store backed by path and loads its content.
//
// An empty path means DefaultFilename. Relative paths are resolved against the
// directory holding the running executable.
func Open(path string) (*Store, error) {
	path, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	s := &Store{path: path}
	s.data = s.Load()
	return s, nil
}

func resolvePath(path string) (string, error) {
	if path == "" {
		path = DefaultFilename
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), path), nil
}

// Path returns the absolute path of the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the backing file and returns its document.
//
// A missing or malformed file yields an empty document; Load never fails.
// The in-memory document is not modified.
func (s *Store) Load() Document {
	f, err := os.Open(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to open store file", "path", s.path, "err", err)
		}
		return Document{}
	}
	defer func() {
		_ = f.Close()
	}()
	data, err := io.ReadAll(f)
	if err != nil {
		slog.Warn("Failed to read store file", "path", s.path, "err", err)
		return Document{}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}
	}
	v, err := decode(data)
	if err != nil {
		slog.Warn("Ignoring malformed store file", "path", s.path, "err", err)
		return Document{}
	}
	doc, ok := v.(map[string]any)
	if !ok {
		slog.Warn("Ignoring store file without a top-level object", "path", s.path, "kind", KindOf(v))
		return Document{}
	}
	return doc
}

// Save writes the in-memory document to the backing file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// Reload replaces the in-memory document with the file content.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
}

// Close flushes an in-memory document that is ahead of the file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.save()
}

// Get returns the top-level value at key. Objects are returned as a View
// rooted at key. ok is false when the key is absent.
func (s *Store) Get(key string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	v, ok := s.data[key]
	if !ok {
		return Value{}, false
	}
	if _, isObj := v.(map[string]any); isObj {
		return Value{view: &View{store: s, path: []string{key}}}, true
	}
	return Value{raw: deepCopy(v)}, true
}

// Set replaces the top-level value at key and persists the document.
func (s *Store) Set(key string, value any) error {
	nv, err := normalize(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	s.data[key] = nv
	return s.save()
}

// Delete removes the top-level key and persists the document. Deleting an
// absent key returns an error matching dberrors.ErrMissingKey.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	if _, ok := s.data[key]; !ok {
		return dberrors.MissingKey(key)
	}
	delete(s.data, key)
	return s.save()
}

// Keys returns the sorted top-level keys matching query.
//
// An empty query matches every key. A query that compiles as a regular
// expression is searched for anywhere in the key; otherwise it is matched as a
// literal substring.
func (s *Store) Keys(query string) []string {
	s.mu.Lock()
	s.reload()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	match := func(k string) bool { return strings.Contains(k, query) }
	if query != "" {
		if re, err := regexp.Compile(query); err == nil {
			match = re.MatchString
		}
	}
	out := keys[:0]
	for _, k := range keys {
		if match(k) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Snapshot reloads the document and returns a deep copy of it. Changes to the
// copy are never persisted.
func (s *Store) Snapshot() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	return deepCopy(s.data).(map[string]any)
}

// Update runs fn on a copy of the freshly loaded document and persists the
// result, all under one lock. When fn returns an error nothing is saved.
//
// fn must not call other Store or View methods, and must not place a *View or
// an object Value in doc; store a Snapshot instead. Update returns an error
// matching dberrors.ErrInvalidValue in the latter case.
func (s *Store) Update(fn func(doc Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	doc := deepCopy(s.data).(map[string]any)
	if err := fn(doc); err != nil {
		return err
	}
	if hasView(doc) {
		return dberrors.InvalidValue(errViewInUpdate)
	}
	nv, err := normalize(doc)
	if err != nil {
		return err
	}
	m, ok := nv.(map[string]any)
	if !ok {
		// A nil map encodes as null.
		m = Document{}
	}
	s.data = m
	return s.save()
}

// View returns a view rooted at path. Nothing is resolved until the view is
// used.
func (s *Store) View(path ...string) *View {
	return &View{store: s, path: slices.Clone(path)}
}

// Resolve walks a dotted path ("utils.log_channel") strictly: every segment
// must exist.
func (s *Store) Resolve(dotted string) (Value, error) {
	return s.Lookup(SplitPath(dotted)...)
}

// Lookup is Resolve with the path already split, for keys containing dots.
func (s *Store) Lookup(segments ...string) (Value, error) {
	if len(segments) == 0 {
		return Value{view: &View{store: s}}, nil
	}
	v, ok := s.Get(segments[0])
	if !ok {
		return Value{}, dberrors.KeyNotFound(segments[0])
	}
	for i, seg := range segments[1:] {
		view, isObj := v.View()
		if !isObj {
			return Value{}, dberrors.NotAnObject(segments[:i+1])
		}
		var err error
		if v, err = view.At(seg); err != nil {
			return Value{}, err
		}
	}
	return v, nil
}

// SplitPath splits a dotted path into its segments, ignoring empty ones.
func SplitPath(dotted string) []string {
	var out []string
	for seg := range strings.SplitSeq(dotted, ".") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// reload must be called with s.mu held.
func (s *Store) reload() {
	if s.dirty {
		return
	}
	s.data = s.Load()
}

// save must be called with s.mu held.
func (s *Store) save() error {
	data, err := encode(s.data)
	if err != nil {
		s.dirty = true
		return dberrors.InvalidValue(err)
	}
	if err := writeFile(s.path, data); err != nil {
		s.dirty = true
		return dberrors.Storage("write "+s.path, err)
	}
	s.dirty = false
	s.saved = data
	return nil
}

// savedContent returns the bytes of the last successful save.
func (s *Store) savedContent() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

func writeFile(path string, data []byte) error {
	f, err := os.Create(path) //nolint:gosec // G304: path is the configured store file
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
