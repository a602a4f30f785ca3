// Package handlers implements the HTTP API over the document store.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/maruel/jsondb/internal/docstore"
	dberrors "github.com/maruel/jsondb/internal/errors"
)

// KeysRequest lists top-level keys.
type KeysRequest struct {
	Query string `query:"q" json:"-"`
}

// KeysResponse is the sorted list of matching keys.
type KeysResponse struct {
	Keys []string `json:"keys"`
}

// GetDocRequest reads the value at a slash separated path.
type GetDocRequest struct {
	Path string `path:"path" json:"-"`
}

// PutDocRequest writes a value at a slash separated path.
type PutDocRequest struct {
	Path  string          `path:"path" json:"-"`
	Value json.RawMessage `json:"value"`
}

// DeleteDocRequest deletes the key at a slash separated path.
type DeleteDocRequest struct {
	Path string `path:"path" json:"-"`
}

// DocResponse is a value and where it lives.
type DocResponse struct {
	Path  []string `json:"path"`
	Value any      `json:"value"`
}

// DeleteDocResponse confirms a deletion.
type DeleteDocResponse struct {
	Deleted []string `json:"deleted"`
}

// DocHandler handles document requests.
type DocHandler struct {
	store *docstore.Store
}

// NewDocHandler creates a new document handler.
func NewDocHandler(store *docstore.Store) *DocHandler {
	return &DocHandler{store: store}
}

// Keys returns the top-level keys matching the q query parameter.
func (h *DocHandler) Keys(ctx context.Context, req KeysRequest) (*KeysResponse, error) {
	keys := h.store.Keys(req.Query)
	if keys == nil {
		keys = []string{}
	}
	return &KeysResponse{Keys: keys}, nil
}

// GetDoc returns the value at the path. An empty path returns the whole
// document.
func (h *DocHandler) GetDoc(ctx context.Context, req GetDocRequest) (*DocResponse, error) {
	segs := splitPath(req.Path)
	v, err := h.store.Lookup(segs...)
	if err != nil {
		return nil, err
	}
	return &DocResponse{Path: segs, Value: plain(v)}, nil
}

// PutDoc stores the value at the path, creating intermediate objects.
func (h *DocHandler) PutDoc(ctx context.Context, req PutDocRequest) (*DocResponse, error) {
	segs := splitPath(req.Path)
	if len(segs) == 0 {
		return nil, dberrors.BadRequest("path is required")
	}
	if len(req.Value) == 0 {
		return nil, dberrors.BadRequest("value is required")
	}
	d := json.NewDecoder(bytes.NewReader(req.Value))
	d.UseNumber()
	var value any
	if err := d.Decode(&value); err != nil {
		return nil, dberrors.InvalidValue(err)
	}
	last := len(segs) - 1
	var err error
	if last == 0 {
		err = h.store.Set(segs[0], value)
	} else {
		err = h.store.View(segs[:last]...).Set(segs[last], value)
	}
	if err != nil {
		return nil, err
	}
	return &DocResponse{Path: segs, Value: value}, nil
}

// DeleteDoc removes the key at the path.
func (h *DocHandler) DeleteDoc(ctx context.Context, req DeleteDocRequest) (*DeleteDocResponse, error) {
	segs := splitPath(req.Path)
	if len(segs) == 0 {
		return nil, dberrors.BadRequest("path is required")
	}
	last := len(segs) - 1
	var err error
	if last == 0 {
		err = h.store.Delete(segs[0])
	} else {
		err = h.store.View(segs[:last]...).Delete(segs[last])
	}
	if err != nil {
		return nil, err
	}
	return &DeleteDocResponse{Deleted: segs}, nil
}

// splitPath splits a URL path into keys. Dots are part of keys here.
func splitPath(p string) []string {
	segs := []string{}
	for seg := range strings.SplitSeq(p, "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return segs
}

// plain converts v to values encoding/json can serialize directly.
func plain(v docstore.Value) any {
	if view, ok := v.View(); ok {
		return view.Snapshot()
	}
	return v.Raw()
}
