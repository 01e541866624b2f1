// Package structparse reads JSON, XML, YAML and CDB documents into a tree of
// named nodes whose leaves are typed variables built with typecreator.
package structparse

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/numparse"
	"github.com/rawbytedev/typeconv/pkg/typecreator"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
)

// MaxDepth bounds the nesting of a document.
const MaxDepth = 256

var (
	ErrUnknownFormat = errors.New("unknown structured data format")
	ErrTooDeep       = errors.New("document nested too deeply")
)

// Node is one named element of a parsed document. A node holds either a typed
// leaf, children, or nothing (null).
type Node struct {
	Name     string
	Children []*Node
	Leaf     *typecreator.Object
}

func (n *Node) IsLeaf() bool { return n.Leaf != nil }

// Child returns the first child called name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildFold is Child falling back to a case insensitive match, so Go field
// names find lower case document keys.
func (n *Node) ChildFold(name string) *Node {
	if c := n.Child(name); c != nil {
		return c
	}
	for _, c := range n.Children {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// Find follows a dot separated path of child names.
func (n *Node) Find(path string) *Node {
	cur := n
	for _, part := range strings.Split(path, ".") {
		if cur = cur.Child(part); cur == nil {
			return nil
		}
	}
	return cur
}

// Variable describes the leaf. It is the zero Variable for inner nodes.
func (n *Node) Variable() vardesc.Variable {
	if n.Leaf == nil {
		return vardesc.Variable{}
	}
	return n.Leaf.Variable()
}

// Walk visits n and its descendants depth first. Paths are dot separated and
// exclude the root name. Returning false skips the children of that node.
func (n *Node) Walk(fn func(path string, node *Node) bool) {
	n.walk("", fn)
}

func (n *Node) walk(path string, fn func(string, *Node) bool) {
	if !fn(path, n) {
		return
	}
	for _, c := range n.Children {
		p := c.Name
		if path != "" {
			p = path + "." + c.Name
		}
		c.walk(p, fn)
	}
}

// Release frees every leaf in the tree.
func (n *Node) Release() {
	if n.Leaf != nil {
		n.Leaf.Release()
		n.Leaf = nil
	}
	for _, c := range n.Children {
		c.Release()
	}
}

// Parse reads a whole document of the given format and builds its tree in
// space.
func Parse(format typedesc.Format, r io.Reader, space *memory.Space, opts ...typecreator.Option) (*Node, error) {
	var root *value
	var err error
	switch format {
	case typedesc.FormatJSON:
		root, err = readJSON(r)
	case typedesc.FormatXML:
		root, err = readXML(r)
	case typedesc.FormatYAML:
		root, err = readYAML(r)
	case typedesc.FormatCDB:
		root, err = readCDB(r)
	default:
		return nil, fmt.Errorf("%s: %w", format, ErrUnknownFormat)
	}
	if err != nil {
		return nil, err
	}
	b := &builder{creator: typecreator.New(space, opts...)}
	node, err := b.node(root.name, root, 0)
	if err != nil {
		if node != nil {
			node.Release()
		}
		return nil, err
	}
	return node, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(format typedesc.Format, doc string, space *memory.Space, opts ...typecreator.Option) (*Node, error) {
	return Parse(format, strings.NewReader(doc), space, opts...)
}

type kind uint8

const (
	kindNull kind = iota
	kindScalar
	kindList
	kindObject
)

// value is the format independent document tree produced by every reader.
type value struct {
	kind   kind
	name   string
	text   string
	quoted bool
	items  []*value
}

func scalar(text string, quoted bool) *value {
	return &value{kind: kindScalar, text: text, quoted: quoted}
}

type class uint8

const (
	classInteger class = iota
	classFloat
	classBool
	classText
)

func classify(v *value) class {
	if v.quoted {
		return classText
	}
	if _, ret := numparse.ParseInt(v.text, 64); ret == errflags.None {
		return classInteger
	}
	if _, ret := numparse.ParseFloat(v.text, 64); ret == errflags.None {
		return classFloat
	}
	switch strings.ToLower(v.text) {
	case "true", "false":
		return classBool
	}
	return classText
}

// leafType picks the narrowest common leaf: all integers are int64, numbers
// float64, booleans uint8 and anything else a string.
func leafType(classes []class) typedesc.Descriptor {
	var seen [4]bool
	for _, c := range classes {
		seen[c] = true
	}
	switch {
	case seen[classText], seen[classBool] && (seen[classInteger] || seen[classFloat]):
		return typedesc.CCStringType
	case seen[classBool]:
		return typedesc.Uint8
	case seen[classFloat]:
		return typedesc.Float64
	}
	return typedesc.Int64
}

func token(v *value, c class, leaf typedesc.Descriptor) string {
	switch {
	case leaf.Type == typedesc.CCString:
		return v.text
	case c == classBool:
		if strings.EqualFold(v.text, "true") {
			return "1"
		}
		return "0"
	case c == classInteger && leaf.IsFloat():
		n, _ := numparse.ParseInt(v.text, 64)
		return strconv.FormatInt(n, 10)
	}
	return v.text
}

type builder struct {
	creator *typecreator.Creator
}

func (b *builder) node(name string, v *value, depth int) (*Node, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	n := &Node{Name: name}
	switch v.kind {
	case kindNull:
		return n, nil
	case kindScalar:
		leaf, err := b.leaf([][]*value{{v}}, false)
		n.Leaf = leaf
		return n, err
	case kindList:
		if allScalars(v.items) {
			leaf, err := b.leaf([][]*value{v.items}, false)
			n.Leaf = leaf
			return n, err
		}
		if rows, ok := matrixRows(v.items); ok {
			leaf, err := b.leaf(rows, true)
			n.Leaf = leaf
			return n, err
		}
		for i, item := range v.items {
			c, err := b.node("["+strconv.Itoa(i)+"]", item, depth+1)
			if c != nil {
				n.Children = append(n.Children, c)
			}
			if err != nil {
				return n, err
			}
		}
	case kindObject:
		for _, item := range v.items {
			c, err := b.node(item.name, item, depth+1)
			if c != nil {
				n.Children = append(n.Children, c)
			}
			if err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

func allScalars(items []*value) bool {
	for _, it := range items {
		if it.kind != kindScalar {
			return false
		}
	}
	return true
}

func matrixRows(items []*value) ([][]*value, bool) {
	if len(items) == 0 {
		return nil, false
	}
	rows := make([][]*value, len(items))
	for i, it := range items {
		if it.kind != kindList || !allScalars(it.items) {
			return nil, false
		}
		rows[i] = it.items
	}
	return rows, true
}

func (b *builder) leaf(rows [][]*value, matrix bool) (*typecreator.Object, error) {
	var classes []class
	for _, r := range rows {
		for _, v := range r {
			classes = append(classes, classify(v))
		}
	}
	td := leafType(classes)

	c := b.creator
	defer c.Clean()
	if ret := c.Start(td); ret != errflags.None {
		return nil, ret.Err("structparse.leaf")
	}
	i := 0
	for _, r := range rows {
		for _, v := range r {
			if ret := c.AddElement(token(v, classes[i], td)); !ret.ErrorsCleared() {
				return nil, errflags.New(ret, "structparse.leaf", "element %q", v.text)
			}
			i++
		}
		if matrix {
			c.EndVector()
		}
	}
	if ret := c.End(); ret != errflags.None {
		return nil, ret.Err("structparse.leaf")
	}
	obj, ret := c.GetReference()
	if ret != errflags.None {
		return nil, ret.Err("structparse.leaf")
	}
	return obj, nil
}
