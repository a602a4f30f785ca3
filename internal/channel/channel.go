// Package channel delivers messages to destinations addressed by the IDs
// stored in the document.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	dberrors "github.com/maruel/jsondb/internal/errors"
)

// ID identifies a destination. The empty ID means unset.
type ID string

// ParseID converts a value read from the document into an ID.
//
// Absent, null, zero and empty values are unset and return false.
func ParseID(v any) (ID, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case json.Number:
		if f, err := t.Float64(); err == nil && f == 0 {
			return "", false
		}
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case uint64:
		s = strconv.FormatUint(t, 10)
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return "", false
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return "", false
	}
	if s == "" || s == "0" {
		return "", false
	}
	return ID(s), true
}

func (id ID) String() string {
	return string(id)
}

// UnmarshalJSON accepts a JSON number or string. Unset values decode to the
// empty ID.
func (id *ID) UnmarshalJSON(b []byte) error {
	v, err := decodeNumber(b)
	if err != nil {
		return err
	}
	*id, _ = ParseID(v)
	return nil
}

func decodeNumber(b []byte) (any, error) {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case nil, json.Number, string:
		return v, nil
	default:
		return nil, fmt.Errorf("destination id must be a number or a string, got %s", b)
	}
}

// Attachment is a file sent along a message.
type Attachment struct {
	Name string
	Data []byte
}

// Message is what a Sender delivers.
type Message struct {
	Content    string
	Attachment *Attachment
}

// Sender delivers messages to one destination.
type Sender interface {
	// Send delivers msg. Delivery failures return an error matching
	// dberrors.ErrDestinationUnavailable.
	Send(ctx context.Context, msg *Message) error
	// Describe names the destination for humans.
	Describe() string
}

// Registry maps IDs to senders.
type Registry struct {
	mu      sync.RWMutex
	senders map[ID]Sender
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{senders: map[ID]Sender{}}
}

// Register adds or replaces the sender for id.
func (r *Registry) Register(id ID, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[id] = s
}

// Lookup returns the sender for id.
func (r *Registry) Lookup(id ID) (Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[id]
	if !ok {
		return nil, dberrors.DestinationUnavailable(id.String(), "unknown destination")
	}
	return s, nil
}

// IDs returns the registered IDs in sorted order.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ID, 0, len(r.senders))
	for id := range r.senders {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Send delivers msg to the destination id.
func (r *Registry) Send(ctx context.Context, id ID, msg *Message) error {
	s, err := r.Lookup(id)
	if err != nil {
		return err
	}
	return s.Send(ctx, msg)
}

// Describe names the destination id, or returns an empty string when unknown.
func (r *Registry) Describe(id ID) string {
	s, err := r.Lookup(id)
	if err != nil {
		return ""
	}
	return s.Describe()
}
