package document

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/confref/internal/store"
)

const (
	maxAliasDepth = 64

	// Alias expansion may produce this many nodes per input byte, within
	// the floor and ceiling below.
	nodesPerByte  = 32
	minNodeBudget = 10_000
	maxNodeBudget = 4_000_000
)

// DecodeYAML parses a YAML document into an ordered tree. An empty document
// yields an empty tree; any other non-mapping root is rejected. Documents
// whose aliases expand past a budget proportional to their size are rejected
// with store.ErrInvalidDocument.
func DecodeYAML(data []byte) (*store.Tree, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidDocument, err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return store.NewTree(), nil
		}
		root = root.Content[0]
	}
	switch {
	case root.Kind == 0:
		return store.NewTree(), nil
	case root.Kind == yaml.ScalarNode && root.ShortTag() == "!!null":
		return store.NewTree(), nil
	case root.Kind != yaml.MappingNode:
		return nil, store.ErrInvalidDocument
	}

	d := &nodeDecoder{budget: nodeBudget(len(data))}
	value, err := d.fromNode(root, 0)
	if err != nil {
		return nil, err
	}
	return value.(*store.Tree), nil
}

func nodeBudget(size int) int {
	return min(max(size*nodesPerByte, minNodeBudget), maxNodeBudget)
}

// nodeDecoder converts yaml nodes to values, counting every node it emits,
// including each expansion of an alias.
type nodeDecoder struct {
	budget int
}

func (d *nodeDecoder) fromNode(n *yaml.Node, depth int) (store.Value, error) {
	if depth > maxAliasDepth {
		return nil, fmt.Errorf("%w: nesting too deep at line %d", store.ErrInvalidDocument, n.Line)
	}
	if d.budget--; d.budget < 0 {
		return nil, fmt.Errorf("%w: document contains excessive aliasing", store.ErrInvalidDocument)
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return store.Null(), nil
		}
		return d.fromNode(n.Content[0], depth+1)
	case yaml.AliasNode:
		return d.fromNode(n.Alias, depth+1)
	case yaml.MappingNode:
		return d.fromMapping(n, depth)
	case yaml.SequenceNode:
		list := store.NewList()
		for _, item := range n.Content {
			v, err := d.fromNode(item, depth+1)
			if err != nil {
				return nil, err
			}
			list.Put(strconv.Itoa(list.Len()), v)
		}
		return list, nil
	case yaml.ScalarNode:
		return fromScalar(n)
	default:
		return nil, fmt.Errorf("%w: unsupported node at line %d", store.ErrInvalidDocument, n.Line)
	}
}

func (d *nodeDecoder) fromMapping(n *yaml.Node, depth int) (*store.Tree, error) {
	tree := store.NewTree()
	var merges []*yaml.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		if key.Kind == yaml.ScalarNode && key.ShortTag() == "!!merge" {
			merges = append(merges, value)
			continue
		}
		if key.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: non-scalar key at line %d", store.ErrInvalidDocument, key.Line)
		}
		v, err := d.fromNode(value, depth+1)
		if err != nil {
			return nil, err
		}
		tree.Put(key.Value, v)
	}

	// explicit keys win over merged ones
	for _, merge := range merges {
		sources := []*yaml.Node{merge}
		if merge.Kind == yaml.SequenceNode {
			sources = merge.Content
		}
		for _, source := range sources {
			v, err := d.fromNode(source, depth+1)
			if err != nil {
				return nil, err
			}
			merged, ok := v.(*store.Tree)
			if !ok {
				return nil, fmt.Errorf("%w: merge value at line %d is not a mapping", store.ErrInvalidDocument, source.Line)
			}
			merged.Range(func(k string, mv store.Value) bool {
				if _, exists := tree.Lookup(k); !exists {
					tree.Put(k, mv)
				}
				return true
			})
		}
	}
	return tree, nil
}

func fromScalar(n *yaml.Node) (store.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return store.Null(), nil
	case "!!bool", "!!int", "!!float":
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", store.ErrInvalidDocument, n.Line, err)
		}
		if i, ok := v.(int); ok {
			v = int64(i)
		}
		return store.Scalar{V: v}, nil
	default:
		return store.String(n.Value), nil
	}
}

func toNode(v store.Value) (*yaml.Node, error) {
	switch tv := v.(type) {
	case *store.Tree:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if tv.IsList() {
			n.Kind, n.Tag = yaml.SequenceNode, "!!seq"
		}
		var err error
		tv.Range(func(k string, child store.Value) bool {
			var childNode *yaml.Node
			childNode, err = toNode(child)
			if err != nil {
				return false
			}
			if !tv.IsList() {
				n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k})
			}
			n.Content = append(n.Content, childNode)
			return true
		})
		if err != nil {
			return nil, err
		}
		return n, nil
	case store.String:
		return encodeNode(string(tv))
	case store.Scalar:
		if tv.IsNull() {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
		}
		if num, ok := tv.V.(json.Number); ok {
			tag := "!!int"
			if strings.ContainsAny(num.String(), ".eE") {
				tag = "!!float"
			}
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: num.String()}, nil
		}
		return encodeNode(tv.V)
	case store.Opaque:
		return encodeNode(tv.Text())
	default:
		return nil, fmt.Errorf("encode YAML: unexpected value type %T", v)
	}
}

func encodeNode(v any) (*yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return nil, fmt.Errorf("encode YAML: %w", err)
	}
	return &n, nil
}
