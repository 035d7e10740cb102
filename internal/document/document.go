// Package document converts YAML and JSON configuration documents to and from
// ordered configuration trees.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/confref/internal/store"
)

// Format identifies a document encoding.
type Format string

const (
	// FormatYAML is YAML 1.2 as understood by gopkg.in/yaml.v3.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON object.
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned for formats other than yaml and json.
var ErrUnknownFormat = errors.New("unknown document format")

// ParseFormat converts "yaml", "yml" or "json" (any case) into a Format.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
	}
}

// FormatFromPath picks a format from the file extension; anything that is not
// .json is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// FormatFromContentType picks a format from an HTTP Content-Type header.
// Missing or unrecognised types default to JSON.
func FormatFromContentType(contentType string) Format {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// NewStore decodes data into a store suited to its format: JSON documents are
// kept as raw bytes in a store.JSONStore, YAML documents are decoded into a
// store.MemoryStore.
func NewStore(data []byte, format Format) (store.Store, error) {
	switch format {
	case FormatJSON:
		return store.NewJSONStore(data)
	case FormatYAML:
		tree, err := DecodeYAML(data)
		if err != nil {
			return nil, err
		}
		return store.NewMemoryStore(tree), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Decode reads a document into a tree.
func Decode(data []byte, format Format) (*store.Tree, error) {
	s, err := NewStore(data, format)
	if err != nil {
		return nil, err
	}
	return s.All(), nil
}

// Encode renders a tree in the given format.
func Encode(tree *store.Tree, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return EncodeJSON(tree)
	case FormatYAML:
		return EncodeYAML(tree)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// LoadFile reads a document from disk, choosing the format from the extension.
func LoadFile(path string) (*store.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	tree, err := Decode(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return tree, nil
}

// OpenStore reads a document from disk into a store.
func OpenStore(path string) (store.Store, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	format := FormatFromPath(path)
	s, err := NewStore(data, format)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	return s, format, nil
}

// EncodeJSON renders a tree as indented JSON, keeping key order.
func EncodeJSON(tree *store.Tree) ([]byte, error) {
	if tree == nil {
		tree = store.NewTree()
	}
	compact, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("encode JSON: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("encode JSON: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// EncodeYAML renders a tree as YAML, keeping key order.
func EncodeYAML(tree *store.Tree) ([]byte, error) {
	if tree == nil {
		tree = store.NewTree()
	}
	node, err := toNode(tree)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	enc := yaml.NewEncoder(&out)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode YAML: %w", err)
	}
	return out.Bytes(), nil
}
