package docstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	dberrors "github.com/maruel/jsondb/internal/errors"
)

var (
	errTrailingData = errors.New("unexpected data after top-level value")
	errViewInUpdate = errors.New("a view cannot be stored from inside Update")
)

// Document is the whole persisted state.
type Document = map[string]any

// Kind tags the JSON type of a value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// KindOf returns the Kind of a normalized document value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case json.Number, float64, float32, int, int64, int32, uint, uint64, uint32:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	default:
		return KindNull
	}
}

// Value is the result of reading a key. Objects are returned as a View,
// everything else as a detached copy of the leaf.
type Value struct {
	raw  any
	view *View
}

// Kind returns the JSON type of the value.
func (v Value) Kind() Kind {
	if v.view != nil {
		return KindObject
	}
	return KindOf(v.raw)
}

// View returns the view when the value is an object.
func (v Value) View() (*View, bool) {
	return v.view, v.view != nil
}

// Raw returns the leaf value, or the *View for objects.
func (v Value) Raw() any {
	if v.view != nil {
		return v.view
	}
	return v.raw
}

// IsNull reports whether the value is JSON null.
func (v Value) IsNull() bool {
	return v.view == nil && v.raw == nil
}

// Str returns the value when it is a JSON string.
func (v Value) Str() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok
}

// Bool returns the value when it is a JSON boolean.
func (v Value) Bool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok
}

// Int64 returns the value when it is an integral JSON number.
func (v Value) Int64() (int64, bool) {
	n, ok := v.raw.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	return i, err == nil
}

// Float64 returns the value when it is a JSON number.
func (v Value) Float64() (float64, bool) {
	n, ok := v.raw.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	return f, err == nil
}

// Array returns the value when it is a JSON array.
func (v Value) Array() ([]any, bool) {
	a, ok := v.raw.([]any)
	return a, ok
}

// MarshalJSON encodes leaves as themselves and objects as their current
// content.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.view != nil {
		return json.Marshal(v.view.Snapshot())
	}
	return json.Marshal(v.raw)
}

// normalize converts v into the representation the document holds after a
// round trip through the file: maps become map[string]any, slices []any and
// numbers json.Number.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case *View:
		return t.Snapshot(), nil
	case Value:
		if t.view != nil {
			return t.view.Snapshot(), nil
		}
		v = t.raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, dberrors.InvalidValue(err)
	}
	return decode(data)
}

// hasView reports whether v holds a *View or an object Value.
func hasView(v any) bool {
	switch t := v.(type) {
	case *View:
		return true
	case Value:
		return t.view != nil
	case map[string]any:
		for _, e := range t {
			if hasView(e) {
				return true
			}
		}
	case []any:
		for _, e := range t {
			if hasView(e) {
				return true
			}
		}
	}
	return false
}

// decode parses exactly one JSON value with numbers kept as json.Number.
func decode(data []byte) (any, error) {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	var out any
	if err := d.Decode(&out); err != nil {
		return nil, dberrors.InvalidValue(err)
	}
	if _, err := d.Token(); err != io.EOF {
		return nil, dberrors.InvalidValue(errTrailingData)
	}
	return out, nil
}

// encode serializes v the way the backing file stores it.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	e := json.NewEncoder(&buf)
	e.SetEscapeHTML(false)
	e.SetIndent("", "    ")
	if err := e.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deepCopy copies maps and slices so callers never alias the live document.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
