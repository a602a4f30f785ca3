// Package docstore provides a file-backed JSON document store with
// path-addressed views into nested objects.
//
// # Overview
//
// [Store] owns one JSON document persisted to a single file. Every read reloads
// the file first and every mutation is immediately followed by a full rewrite,
// so the store always reflects the latest persisted state. There is no cache
// across operations; the full reload per read is the known scalability ceiling
// of the design.
//
// # Views
//
// Reading a top-level object returns a [View] instead of a copy. A View is a
// pure path descriptor: it holds no value and re-resolves its path from the
// document root on every operation, so views never dangle when the root is
// reloaded wholesale. Missing intermediate objects are created in memory while
// resolving (auto-vivification) and only reach the disk when a write happens
// at the leaf.
//
// # Concurrency
//
// Each logical operation (reload, mutate, persist) holds the store mutex for
// its whole duration. Concurrent writers are last-write-wins; no update is lost
// in the middle of an operation. Multi-process locking is not attempted.
//
// # File Format
//
// UTF-8 JSON indented with 4 spaces and a trailing newline. Object keys are
// written in sorted order so saving an unchanged document is byte-stable.
// Numbers are kept as [encoding/json.Number] to preserve 64-bit identifiers.
package docstore
