package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/eugenenazirov/confref/internal/store"
)

const maxNameLength = 64

var (
	// ErrInvalidName indicates the document name violates validation rules.
	ErrInvalidName = errors.New("document name must be 1-64 characters of letters, digits, '.', '_' or '-'")
	// ErrDocumentNotFound indicates no document is stored under the requested name.
	ErrDocumentNotFound = errors.New("document not found")
)

// Document is a stored, unresolved configuration tree.
type Document struct {
	Name      string
	Tree      *store.Tree
	UpdatedAt time.Time
}

// Storage provides access to named configuration documents.
type Storage interface {
	ListDocuments() ([]Document, error)
	GetDocument(name string) (Document, error)
	PutDocument(name string, tree *store.Tree) (Document, error)
	DeleteDocument(name string) error
}

// Option configures MemoryStorage.
type Option func(*MemoryStorage)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *MemoryStorage) {
		s.clock = clock
	}
}

// MemoryStorage keeps documents in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu        sync.RWMutex
	documents map[string]Document
	clock     func() time.Time
}

// NewMemoryStorage initialises an empty storage.
func NewMemoryStorage(opts ...Option) *MemoryStorage {
	s := &MemoryStorage{
		documents: make(map[string]Document),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListDocuments returns copies of all documents sorted by name.
func (s *MemoryStorage) ListDocuments() ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, 0, len(s.documents))
	for _, doc := range s.documents {
		out = append(out, cloneDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// GetDocument returns a defensive copy of the named document.
func (s *MemoryStorage) GetDocument(name string) (Document, error) {
	if err := ValidateName(name); err != nil {
		return Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[name]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return cloneDocument(doc), nil
}

// PutDocument validates the name and stores a copy of tree under it.
func (s *MemoryStorage) PutDocument(name string, tree *store.Tree) (Document, error) {
	if err := ValidateName(name); err != nil {
		return Document{}, err
	}
	if tree == nil {
		tree = store.NewTree()
	}

	doc := Document{
		Name:      name,
		Tree:      tree.Clone(),
		UpdatedAt: s.clock(),
	}

	s.mu.Lock()
	s.documents[name] = doc
	s.mu.Unlock()

	return cloneDocument(doc), nil
}

// DeleteDocument removes the named document.
func (s *MemoryStorage) DeleteDocument(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[name]; !ok {
		return ErrDocumentNotFound
	}
	delete(s.documents, name)
	return nil
}

// ValidateName checks a document name.
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLength {
		return ErrInvalidName
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return ErrInvalidName
		}
	}
	return nil
}

func cloneDocument(doc Document) Document {
	doc.Tree = doc.Tree.Clone()
	return doc
}
