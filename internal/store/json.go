package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// JSONStore is a store over a raw JSON document. Reads go through gjson and
// writes through sjson, so untouched parts of the document keep their
// original key order and number literals.
type JSONStore struct {
	mu  sync.RWMutex
	raw []byte
}

// NewJSONStore validates raw and returns a store over a copy of it. The
// document root must be an object and no object may repeat a key, since
// gjson reads the first occurrence.
func NewJSONStore(raw []byte) (*JSONStore, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrInvalidDocument)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, ErrInvalidDocument
	}
	if err := checkDuplicateKeys(root, ""); err != nil {
		return nil, err
	}
	buf := make([]byte, len(raw))
	copy(buf, raw)
	return &JSONStore{raw: buf}, nil
}

// Bytes returns a copy of the current document.
func (s *JSONStore) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]byte, len(s.raw))
	copy(out, s.raw)
	return out
}

// All decodes the whole document into a tree.
func (s *JSONStore) All() *Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, ok := fromResult(gjson.ParseBytes(s.raw)).(*Tree)
	if !ok {
		return NewTree()
	}
	return tree
}

// Get returns the value at key.
func (s *JSONStore) Get(key string) (Value, bool) {
	if key == "" {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := gjson.GetBytes(s.raw, jsonPath(key))
	if !result.Exists() {
		return nil, false
	}
	return fromResult(result), true
}

// Has reports whether key exists.
func (s *JSONStore) Has(key string) bool {
	if key == "" {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return gjson.GetBytes(s.raw, jsonPath(key)).Exists()
}

// Set writes value at key. Opaque values have no JSON form and are rejected.
func (s *JSONStore) Set(key string, value Value) error {
	if key == "" {
		return ErrInvalidKey
	}

	var (
		raw []byte
		err error
	)
	switch v := value.(type) {
	case String:
		raw, err = json.Marshal(string(v))
	case Scalar:
		raw, err = v.MarshalJSON()
	case *Tree:
		raw, err = v.MarshalJSON()
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := sjson.SetRawBytes(s.raw, jsonPath(key), raw)
	if err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	s.raw = updated
	return nil
}

// jsonPath escapes every dotted segment so gjson/sjson treat wildcard and
// modifier characters literally.
func jsonPath(key string) string {
	segments := strings.Split(key, Separator)
	for i, segment := range segments {
		segments[i] = gjson.Escape(segment)
	}
	return strings.Join(segments, Separator)
}

func checkDuplicateKeys(r gjson.Result, path string) error {
	var err error
	switch {
	case r.IsObject():
		seen := make(map[string]struct{})
		r.ForEach(func(key, item gjson.Result) bool {
			child := JoinKey(path, key.Str)
			if _, dup := seen[key.Str]; dup {
				err = fmt.Errorf("%w: duplicate key %q", ErrInvalidDocument, child)
				return false
			}
			seen[key.Str] = struct{}{}
			err = checkDuplicateKeys(item, child)
			return err == nil
		})
	case r.IsArray():
		i := 0
		r.ForEach(func(_, item gjson.Result) bool {
			err = checkDuplicateKeys(item, JoinKey(path, strconv.Itoa(i)))
			i++
			return err == nil
		})
	}
	return err
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.String:
		return String(r.Str)
	case gjson.Number:
		return Scalar{V: json.Number(r.Raw)}
	case gjson.True:
		return Bool(true)
	case gjson.False:
		return Bool(false)
	case gjson.Null:
		return Null()
	}

	if r.IsArray() {
		list := NewList()
		r.ForEach(func(_, item gjson.Result) bool {
			list.Put(strconv.Itoa(list.Len()), fromResult(item))
			return true
		})
		return list
	}
	tree := NewTree()
	r.ForEach(func(key, item gjson.Result) bool {
		tree.Put(key.Str, fromResult(item))
		return true
	})
	return tree
}
