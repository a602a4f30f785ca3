package docstore

import (
	"encoding/json"
	"iter"
	"slices"

	dberrors "github.com/maruel/jsondb/internal/errors"
)

// View addresses a nested object of a Store by its path from the root.
//
// A View holds no data. Every call reloads the store and walks the path again.
type View struct {
	store *Store
	path  []string
}

// Path returns a copy of the path from the document root.
func (v *View) Path() []string {
	return slices.Clone(v.path)
}

// At returns the value at key. Objects come back as a deeper View.
func (v *View) At(key string) (Value, error) {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	obj, err := v.resolve(true)
	if err != nil {
		return Value{}, err
	}
	e, ok := obj[key]
	if !ok {
		return Value{}, dberrors.KeyNotFound(key)
	}
	if _, isObj := e.(map[string]any); isObj {
		return Value{view: v.child(key)}, nil
	}
	return Value{raw: deepCopy(e)}, nil
}

// Get returns a copy of the value at key, or def when the key is absent or
// the view does not resolve to an object.
func (v *View) Get(key string, def any) any {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	obj, _ := v.resolve(false)
	e, ok := obj[key]
	if !ok {
		return def
	}
	return deepCopy(e)
}

// Set stores value at key, creating missing intermediate objects, and
// persists the document once.
func (v *View) Set(key string, value any) error {
	nv, err := normalize(value)
	if err != nil {
		return err
	}
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	obj, err := v.resolve(true)
	if err != nil {
		return err
	}
	obj[key] = nv
	return s.save()
}

// Delete removes key and persists the document once.
func (v *View) Delete(key string) error {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	obj, err := v.resolve(true)
	if err != nil {
		return err
	}
	if _, ok := obj[key]; !ok {
		return dberrors.MissingKey(key)
	}
	delete(obj, key)
	return s.save()
}

// Keys yields the keys of the resolved object in sorted order. The path is
// resolved again each time iteration starts.
func (v *View) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		s := v.store
		s.mu.Lock()
		s.reload()
		obj, _ := v.resolve(false)
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		s.mu.Unlock()
		slices.Sort(keys)
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}
}

// Len returns the number of keys of the resolved object.
func (v *View) Len() int {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	obj, _ := v.resolve(false)
	return len(obj)
}

// Snapshot returns a deep copy of the resolved object. It is empty when the
// path does not resolve to an object.
func (v *View) Snapshot() Document {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	obj, _ := v.resolve(false)
	if obj == nil {
		return Document{}
	}
	return deepCopy(obj).(map[string]any)
}

// String returns the compact JSON encoding of the resolved object.
func (v *View) String() string {
	b, err := json.Marshal(v.Snapshot())
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (v *View) child(key string) *View {
	p := make([]string, len(v.path), len(v.path)+1)
	copy(p, v.path)
	return &View{store: v.store, path: append(p, key)}
}

// resolve walks the path from the document root. With create, missing
// segments become empty objects in the in-memory document; without it, a
// missing segment resolves to nil. A segment holding a non-object is an
// error in both modes.
//
// Must be called with the store mutex held.
func (v *View) resolve(create bool) (map[string]any, error) {
	s := v.store
	if s.data == nil {
		s.data = Document{}
	}
	cur := s.data
	for i, seg := range v.path {
		e, ok := cur[seg]
		if !ok {
			if !create {
				return nil, nil
			}
			next := map[string]any{}
			cur[seg] = next
			cur = next
			continue
		}
		next, isObj := e.(map[string]any)
		if !isObj {
			return nil, dberrors.NotAnObject(v.path[:i+1])
		}
		cur = next
	}
	return cur, nil
}
