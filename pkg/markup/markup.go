// Package markup parses declarative UI documents written in YAML.
//
// A document is a tree of nodes:
//
//	kind: window
//	id: main
//	props:
//	  title: Notes
//	children:
//	  - kind: text
//	    props: {content: "Hello"}
//	  - kind: input
//	    id: name
//
// Parse failures carry the line and column of the offending node.
package markup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrEmpty is returned for a document with no root node.
var ErrEmpty = errors.New("empty document")

// ParseError is a failure at a position in the source.
type ParseError struct {
	Line   int
	Column int
	Msg    string

	cause error
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return e.Msg
	}
	if e.Column == 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.cause
}

// Location returns the 1-based line and column, or zeros if unknown.
func (e *ParseError) Location() (line, column int) {
	return e.Line, e.Column
}

// Node is one element of a document tree.
type Node struct {
	Kind     string
	ID       string
	Props    map[string]string
	Children []*Node
	Line     int
	Column   int
}

// Document is a parsed UI tree.
type Document struct {
	Root *Node
	ids  map[string]*Node
}

// Find returns the node with the given id.
func (d *Document) Find(id string) (*Node, bool) {
	n, ok := d.ids[id]
	return n, ok
}

// Walk visits every node depth-first, parents before children.
func (d *Document) Walk(fn func(n *Node, depth int)) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	if d.Root != nil {
		visit(d.Root, 0)
	}
}

// Count returns the number of nodes.
func (d *Document) Count() int {
	n := 0
	d.Walk(func(*Node, int) { n++ })
	return n
}

// IDs returns every node id in document order.
func (d *Document) IDs() []string {
	var out []string
	d.Walk(func(n *Node, _ int) {
		if n.ID != "" {
			out = append(out, n.ID)
		}
	})
	return out
}

// Parser implements the reloader's parser contract for markup documents.
type Parser struct{}

// Parse implements reloader.Parser.
func (Parser) Parse(content []byte) (*Document, error) {
	return Parse(content)
}

// Parse decodes a document. The first YAML document in content is used.
func Parse(content []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))

	var root yaml.Node
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Msg: ErrEmpty.Error(), cause: ErrEmpty}
		}
		return nil, syntaxError(err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &ParseError{Msg: ErrEmpty.Error(), cause: ErrEmpty}
	}

	doc := &Document{ids: make(map[string]*Node)}
	n, err := doc.node(root.Content[0])
	if err != nil {
		return nil, err
	}
	doc.Root = n
	return doc, nil
}

func (d *Document) node(y *yaml.Node) (*Node, error) {
	if y.Kind != yaml.MappingNode {
		return nil, at(y, "expected a node mapping, got %s", kindName(y))
	}

	n := &Node{Line: y.Line, Column: y.Column}
	for i := 0; i+1 < len(y.Content); i += 2 {
		key, val := y.Content[i], y.Content[i+1]
		switch key.Value {
		case "kind":
			if val.Kind != yaml.ScalarNode || val.Value == "" {
				return nil, at(val, "kind must be a non-empty string")
			}
			n.Kind = val.Value
		case "id":
			if val.Kind != yaml.ScalarNode {
				return nil, at(val, "id must be a string")
			}
			if prev, dup := d.ids[val.Value]; dup {
				return nil, at(val, "duplicate id %q (first defined on line %d)", val.Value, prev.Line)
			}
			n.ID = val.Value
			d.ids[val.Value] = n
		case "props":
			props, err := scalarMap(val)
			if err != nil {
				return nil, err
			}
			n.Props = props
		case "children":
			if val.Kind != yaml.SequenceNode {
				return nil, at(val, "children must be a list")
			}
			for _, c := range val.Content {
				child, err := d.node(c)
				if err != nil {
					return nil, err
				}
				n.Children = append(n.Children, child)
			}
		default:
			return nil, at(key, "unknown field %q", key.Value)
		}
	}

	if n.Kind == "" {
		return nil, at(y, "node has no kind")
	}
	return n, nil
}

func scalarMap(y *yaml.Node) (map[string]string, error) {
	if y.Kind != yaml.MappingNode {
		return nil, at(y, "props must be a mapping")
	}
	out := make(map[string]string, len(y.Content)/2)
	for i := 0; i+1 < len(y.Content); i += 2 {
		key, val := y.Content[i], y.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, at(val, "prop %q must be a scalar", key.Value)
		}
		out[key.Value] = val.Value
	}
	return out, nil
}

func at(y *yaml.Node, format string, args ...any) *ParseError {
	return &ParseError{Line: y.Line, Column: y.Column, Msg: fmt.Sprintf(format, args...)}
}

func kindName(y *yaml.Node) string {
	switch y.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "list"
	case yaml.AliasNode:
		return "alias"
	default:
		return "mapping"
	}
}

var yamlLine = regexp.MustCompile(`^yaml: line (\d+): (.*)$`)

// syntaxError converts a yaml.v3 decode error into a ParseError.
func syntaxError(err error) *ParseError {
	msg := err.Error()
	if m := yamlLine.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		return &ParseError{Line: line, Msg: m[2], cause: err}
	}
	return &ParseError{Msg: msg, cause: err}
}
