// Package jsonldb stores append-only records as JSON lines.
package jsonldb

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Table is a JSONL file of rows of type T, cached in memory.
//
// With a positive row limit, the file is rewritten with the newest rows once
// it holds twice the limit.
type Table[T any] struct {
	path    string
	maxRows int

	mu   sync.RWMutex
	rows []T
}

// NewTable creates a Table and loads all rows from path. maxRows <= 0 keeps
// every row.
func NewTable[T any](path string, maxRows int) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	t := &Table[T]{path: path, maxRows: maxRows}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

// Path returns the backing file.
func (t *Table[T]) Path() string {
	return t.path
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.rows = nil
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var rows []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(b, &row); err != nil {
			// Torn lines from an interrupted append are skipped.
			slog.Warn("Skipping malformed row", "path", t.path, "line", line, "err", err)
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}
	t.rows = rows
	return nil
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Last returns up to n rows, newest first. n <= 0 returns every row.
func (t *Table[T]) Last(n int) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || n > len(t.rows) {
		n = len(t.rows)
	}
	out := slices.Clone(t.rows[len(t.rows)-n:])
	slices.Reverse(out)
	return out
}

// Append adds a row and persists it.
func (t *Table[T]) Append(row T) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: journal is not secret
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	_, err = f.Write(data)
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	t.rows = append(t.rows, row)
	if t.maxRows > 0 && len(t.rows) >= 2*t.maxRows {
		return t.rewrite(t.rows[len(t.rows)-t.maxRows:])
	}
	return nil
}

// rewrite replaces the file content with rows. t.mu must be held.
func (t *Table[T]) rewrite(rows []T) error {
	tmp := t.path + ".tmp"
	f, err := os.Create(tmp) //nolint:gosec // G304: path derived from the table path
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, row := range rows {
		if err = enc.Encode(row); err != nil {
			break
		}
	}
	if err == nil {
		err = w.Flush()
	}
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err == nil {
		err = os.Rename(tmp, t.path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to compact %s: %w", t.path, err)
	}
	t.rows = slices.Clone(rows)
	return nil
}
