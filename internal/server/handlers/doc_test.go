package handlers

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/maruel/jsondb/internal/docstore"
	dberrors "github.com/maruel/jsondb/internal/errors"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"/", []string{}},
		{"a", []string{"a"}},
		{"a//b/", []string{"a", "b"}},
		{"hosts/example.com", []string{"hosts", "example.com"}},
	}
	for _, tt := range tests {
		if got := splitPath(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDocHandler(t *testing.T) {
	store, err := docstore.Open(filepath.Join(t.TempDir(), "data.json"))
	if err != nil {
		t.Fatal(err)
	}
	h := NewDocHandler(store)
	ctx := t.Context()

	if _, err := h.PutDoc(ctx, PutDocRequest{Path: "hosts/example.com", Value: json.RawMessage(`{"up": true}`)}); err != nil {
		t.Fatalf("PutDoc failed: %v", err)
	}
	resp, err := h.GetDoc(ctx, GetDocRequest{Path: "hosts"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"example.com": map[string]any{"up": true}}
	if !reflect.DeepEqual(resp.Value, want) {
		t.Errorf("GetDoc() = %#v", resp.Value)
	}
	if _, err := h.PutDoc(ctx, PutDocRequest{Path: "x", Value: json.RawMessage(`{`)}); !errors.Is(err, dberrors.ErrInvalidValue) {
		t.Errorf("PutDoc(malformed) = %v", err)
	}
	keys, err := h.Keys(ctx, KeysRequest{Query: "zzz"})
	if err != nil || keys.Keys == nil || len(keys.Keys) != 0 {
		t.Errorf("Keys() = %v, %v", keys, err)
	}
	if _, err := h.DeleteDoc(ctx, DeleteDocRequest{Path: "hosts/example.com"}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.GetDoc(ctx, GetDocRequest{Path: "hosts/example.com"}); !errors.Is(err, dberrors.ErrKeyNotFound) {
		t.Errorf("GetDoc() after delete = %v", err)
	}
}
