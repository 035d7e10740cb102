package store

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Separator joins path segments into dotted keys.
const Separator = "."

// Tree is an ordered mapping from segment names to values. A tree flagged as
// a list keeps its entries under the index keys "0".."n-1" and encodes as a
// sequence.
type Tree struct {
	keys   []string
	values map[string]Value
	list   bool
}

func (*Tree) isValue() {}

// NewTree returns an empty mapping.
func NewTree() *Tree {
	return &Tree{values: make(map[string]Value)}
}

// NewList returns a list holding the given values in order.
func NewList(values ...Value) *Tree {
	t := &Tree{values: make(map[string]Value, len(values)), list: true}
	for _, v := range values {
		t.Put(strconv.Itoa(len(t.keys)), v)
	}
	return t
}

// IsList reports whether the tree encodes as a sequence.
func (t *Tree) IsList() bool {
	return t != nil && t.list
}

// Len returns the number of direct children.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Keys returns the direct child keys in insertion order.
func (t *Tree) Keys() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Lookup returns a direct child.
func (t *Tree) Lookup(key string) (Value, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.values[key]
	return v, ok
}

// Put sets a direct child, appending the key when it is new. Putting a
// non-index key into a list turns it into a mapping.
func (t *Tree) Put(key string, v Value) {
	if t.values == nil {
		t.values = make(map[string]Value)
	}
	if _, exists := t.values[key]; !exists {
		if t.list && key != strconv.Itoa(len(t.keys)) {
			t.list = false
		}
		t.keys = append(t.keys, key)
	}
	t.values[key] = v
}

// Delete removes a direct child and reports whether it existed.
func (t *Tree) Delete(key string) bool {
	if t == nil {
		return false
	}
	if _, ok := t.values[key]; !ok {
		return false
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
	if t.list {
		t.list = isSequential(t.keys)
	}
	return true
}

// Get resolves a dotted key against the tree.
func (t *Tree) Get(key string) (Value, bool) {
	if t == nil || key == "" {
		return nil, false
	}
	var current Value = t
	for _, segment := range strings.Split(key, Separator) {
		node, ok := current.(*Tree)
		if !ok {
			return nil, false
		}
		current, ok = node.values[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Has reports whether a dotted key exists. Null leaves count as present.
func (t *Tree) Has(key string) bool {
	_, ok := t.Get(key)
	return ok
}

// Set writes a value at a dotted key, creating intermediate mappings and
// replacing any non-mapping value found on the way.
func (t *Tree) Set(key string, v Value) error {
	if key == "" {
		return ErrInvalidKey
	}
	segments := strings.Split(key, Separator)
	node := t
	for _, segment := range segments[:len(segments)-1] {
		next, ok := node.values[segment].(*Tree)
		if !ok {
			next = NewTree()
			node.Put(segment, next)
		}
		node = next
	}
	node.Put(segments[len(segments)-1], v)
	return nil
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	out := &Tree{
		keys:   make([]string, len(t.keys)),
		values: make(map[string]Value, len(t.values)),
		list:   t.list,
	}
	copy(out.keys, t.keys)
	for k, v := range t.values {
		out.values[k] = Clone(v)
	}
	return out
}

// Range calls fn for every direct child in order until fn returns false.
func (t *Tree) Range(fn func(key string, v Value) bool) {
	if t == nil {
		return
	}
	for _, k := range t.keys {
		if !fn(k, t.values[k]) {
			return
		}
	}
}

// MarshalJSON encodes the tree preserving key order.
func (t *Tree) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	open, close := byte('{'), byte('}')
	if t.list {
		open, close = '[', ']'
	}
	buf.WriteByte(open)
	for i, k := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if !t.list {
			name, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(name)
			buf.WriteByte(':')
		}
		data, err := json.Marshal(t.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(close)
	return buf.Bytes(), nil
}

// JoinKey composes a dotted key from a parent key and a child segment.
func JoinKey(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + Separator + child
}

func isSequential(keys []string) bool {
	for i, k := range keys {
		if k != strconv.Itoa(i) {
			return false
		}
	}
	return true
}
