package resolver

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/confref/internal/store"
)

const (
	// DefaultOpenDelimiter starts a placeholder.
	DefaultOpenDelimiter = "{{"
	// DefaultCloseDelimiter ends a placeholder.
	DefaultCloseDelimiter = "}}"
)

// Resolver replaces placeholders such as "{{db.host}}" with the values they
// name. A Resolver holds no per-call state and is safe for concurrent use on
// different stores; a single store must not be resolved concurrently.
type Resolver struct {
	open   string
	close  string
	logger *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDelimiters overrides the placeholder delimiters.
func WithDelimiters(open, close string) Option {
	return func(r *Resolver) {
		r.open = open
		r.close = close
	}
}

// New creates a Resolver using "{{" and "}}" unless overridden.
func New(opts ...Option) (*Resolver, error) {
	r := &Resolver{
		open:   DefaultOpenDelimiter,
		close:  DefaultCloseDelimiter,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.open == "" || r.close == "" || r.open == r.close {
		return nil, ErrInvalidDelimiters
	}
	return r, nil
}

// Parse resolves every placeholder reachable from the top-level entries of s
// and returns s. On failure s is left partially rewritten.
func (r *Resolver) Parse(s store.Store) (store.Store, error) {
	report, err := r.Resolve(s)
	if err != nil {
		return nil, err
	}
	return report.Store, nil
}

// Resolve is Parse with a report of the rewritten keys.
func (r *Resolver) Resolve(s store.Store) (Report, error) {
	run := &resolution{
		Resolver:  r,
		source:    s,
		processed: make(map[string]struct{}),
		onChain:   make(map[string]struct{}),
	}
	if err := run.walk(s.All(), ""); err != nil {
		return Report{}, err
	}
	r.logger.Debug("configuration resolved", zap.Int("rewritten", len(run.rewritten)))
	return Report{Store: s, Resolved: run.rewritten}, nil
}

// resolution is the state of a single Resolve call.
type resolution struct {
	*Resolver
	source    store.Store
	processed map[string]struct{}
	chain     []string
	onChain   map[string]struct{}
	rewritten []string
}

// walk visits items depth first. items is a snapshot; writes made while
// walking go to the live store.
func (p *resolution) walk(items *store.Tree, parent string) error {
	for _, child := range items.Keys() {
		key := store.JoinKey(parent, child)
		if p.isProcessed(key) {
			continue
		}

		value, _ := items.Lookup(child)
		switch v := value.(type) {
		case store.String:
			if err := p.resolveString(key, string(v)); err != nil {
				return err
			}
		case *store.Tree:
			if err := p.walk(v, key); err != nil {
				return err
			}
		case store.Scalar, store.Opaque:
		}
	}
	return nil
}

func (p *resolution) resolveString(key, value string) error {
	if p.isProcessed(key) {
		return nil
	}

	tokens := scan(value, p.open, p.close)
	if len(tokens) == 0 {
		return nil
	}

	if _, cycling := p.onChain[key]; cycling {
		return &CircularReferenceError{Chain: append(slices.Clone(p.chain), key)}
	}
	p.chain = append(p.chain, key)
	p.onChain[key] = struct{}{}
	defer func() {
		p.chain = p.chain[:len(p.chain)-1]
		delete(p.onChain, key)
	}()

	replacements := make([]string, 0, 2*len(tokens))
	for _, tok := range tokens {
		if !p.source.Has(tok.reference) {
			return &ReferenceNotFoundError{Token: tok.text, Reference: tok.reference, Key: key}
		}
		replacement, _ := p.source.Get(tok.reference)

		if nested, ok := replacement.(store.String); ok && len(scan(string(nested), p.open, p.close)) > 0 {
			if err := p.resolveString(tok.reference, string(nested)); err != nil {
				return err
			}
			replacement, _ = p.source.Get(tok.reference)
		}

		switch v := replacement.(type) {
		case *store.Tree:
			if err := p.walk(v, tok.reference); err != nil {
				return err
			}
			resolved, _ := p.source.Get(tok.reference)
			return p.substitute(key, resolved)
		case store.String:
			replacements = append(replacements, tok.text, string(v))
		case store.Scalar, store.Opaque:
			if len(tokens) == 1 {
				return p.substitute(key, v)
			}
			replacements = append(replacements, tok.text, store.Text(v))
		default:
			return fmt.Errorf("resolve %q: unexpected value type %T", tok.reference, replacement)
		}
	}

	result := value
	for i := 0; i < len(replacements); i += 2 {
		result = strings.ReplaceAll(result, replacements[i], replacements[i+1])
	}
	if err := p.source.Set(key, store.String(result)); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	p.markProcessed(key)
	p.logger.Debug("placeholders interpolated", zap.String("key", key), zap.Int("tokens", len(tokens)))
	return nil
}

// substitute replaces the whole value at key, keeping the replacement's type.
func (p *resolution) substitute(key string, value store.Value) error {
	if err := p.source.Set(key, value); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	p.markProcessed(key)
	p.logger.Debug("value substituted", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", value)))
	return nil
}

func (p *resolution) isProcessed(key string) bool {
	_, ok := p.processed[key]
	return ok
}

func (p *resolution) markProcessed(key string) {
	p.processed[key] = struct{}{}
	p.rewritten = append(p.rewritten, key)
}
