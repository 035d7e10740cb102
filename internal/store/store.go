package store

import (
	"errors"
	"sync"
)

var (
	// ErrInvalidKey indicates an empty dotted key was used for a write.
	ErrInvalidKey = errors.New("configuration key must not be empty")
	// ErrUnsupportedValue indicates the store cannot hold the given value kind.
	ErrUnsupportedValue = errors.New("value kind is not supported by this store")
	// ErrInvalidDocument indicates the source document is malformed or its root is not a mapping.
	ErrInvalidDocument = errors.New("configuration document must be a mapping")
)

// Store is a configuration tree addressed by dotted keys.
type Store interface {
	// All returns a snapshot of the top-level mapping.
	All() *Tree
	// Get returns the value at a dotted key.
	Get(key string) (Value, bool)
	// Has reports whether a dotted key exists.
	Has(key string) bool
	// Set creates or overwrites the leaf at a dotted key.
	Set(key string, value Value) error
}

// MemoryStore keeps a configuration tree in memory and guards access with a RWMutex.
type MemoryStore struct {
	mu   sync.RWMutex
	root *Tree
}

// NewMemoryStore initialises a store with a copy of the given tree.
func NewMemoryStore(root *Tree) *MemoryStore {
	if root == nil {
		root = NewTree()
	}
	return &MemoryStore{root: root.Clone()}
}

// All returns a defensive copy of the whole tree.
func (s *MemoryStore) All() *Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.root.Clone()
}

// Get returns the value at key. Subtrees are returned as copies.
func (s *MemoryStore) Get(key string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.root.Get(key)
	if !ok {
		return nil, false
	}
	return Clone(v), true
}

// Has reports whether key exists.
func (s *MemoryStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.root.Has(key)
}

// Set stores a copy of value at key.
func (s *MemoryStore) Set(key string, value Value) error {
	if value == nil {
		return ErrUnsupportedValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.root.Set(key, Clone(value))
}
