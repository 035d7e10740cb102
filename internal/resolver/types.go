package resolver

import "github.com/eugenenazirov/confref/internal/store"

// Parser rewrites a configuration store in place and returns it.
type Parser interface {
	Parse(s store.Store) (store.Store, error)
}

// Report summarises one resolution pass.
// Resolved lists the dotted keys that were rewritten, in the order they were
// rewritten; keys pre-resolved because another value referenced them appear
// before the key that referenced them.
type Report struct {
	Store    store.Store
	Resolved []string
}
