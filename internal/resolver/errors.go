package resolver

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReferenceNotFound is returned when a placeholder names a key absent from the store.
	ErrReferenceNotFound = errors.New("reference not found")
	// ErrCircularReference is returned when resolving a key requires resolving that same key again.
	ErrCircularReference = errors.New("circular reference")
	// ErrInvalidDelimiters is returned when the placeholder delimiters are empty or identical.
	ErrInvalidDelimiters = errors.New("placeholder delimiters must be non-empty and distinct")
)

// ReferenceNotFoundError carries the literal placeholder that could not be dereferenced.
type ReferenceNotFoundError struct {
	// Token is the full placeholder text, delimiters included.
	Token string
	// Reference is the enclosed key that was looked up.
	Reference string
	// Key is the dotted key whose value contained the placeholder.
	Key string
}

// Error implements the error interface.
func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("cannot find %q in source repository (referenced by %q)", e.Token, e.Key)
}

// Is matches ErrReferenceNotFound.
func (e *ReferenceNotFoundError) Is(target error) bool {
	return target == ErrReferenceNotFound
}

// CircularReferenceError describes a chain of keys that refer back to themselves.
type CircularReferenceError struct {
	// Chain lists the keys being resolved, ending with the key that closed the cycle.
	Chain []string
}

// Error implements the error interface.
func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("circular reference: %s", strings.Join(e.Chain, " -> "))
}

// Is matches ErrCircularReference.
func (e *CircularReferenceError) Is(target error) bool {
	return target == ErrCircularReference
}
