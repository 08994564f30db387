package markup

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NodeType identifies the kind of a Node.
type NodeType uint32

const (
	DocumentNode NodeType = iota
	ElementNode
	TextNode
	CommentNode
	DoctypeNode
)

// String returns the string representation of the NodeType
func (t NodeType) String() string {
	switch t {
	case DocumentNode:
		return "document"
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	case CommentNode:
		return "comment"
	case DoctypeNode:
		return "doctype"
	default:
		return "unknown"
	}
}

// Node is one node of a parsed document. Every node keeps the exact source
// bytes it was built from so the tree serializes back to the input.
type Node struct {
	Type NodeType
	// Data is the lower-cased tag name for elements and the unescaped
	// content for text, comment and doctype nodes.
	Data     string
	DataAtom atom.Atom
	Attr     []html.Attribute
	// Line is the 1-based line the node starts on.
	Line int

	Parent   *Node
	Children []*Node

	raw    []byte // start tag, or the whole token for non-elements
	endRaw []byte // end tag; empty when the element was closed implicitly
}

// AppendChild adds c as the last child of n.
func (n *Node) AppendChild(c *Node) {
	c.Parent = n
	n.Children = append(n.Children, c)
}

// Remove detaches n from its parent. It is a no-op for detached nodes.
func (n *Node) Remove() {
	p := n.Parent
	if p == nil {
		return
	}
	for i, c := range p.Children {
		if c == n {
			p.Children = append(p.Children[:i:i], p.Children[i+1:]...)
			break
		}
	}
	n.Parent = nil
}

// AttrValue returns the value of the attribute key (matched case-insensitively).
func (n *Node) AttrValue(key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// InnerText returns the raw source of all descendants, without the node's
// own tags. For a script element this is the script body as written.
func (n *Node) InnerText() string {
	var buf bytes.Buffer
	for _, c := range n.Children {
		_ = c.render(&buf)
	}
	return buf.String()
}

// Walk calls fn for n and every descendant in document order. Returning
// false from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	// Copy so fn may detach children while walking.
	children := append([]*Node(nil), n.Children...)
	for _, c := range children {
		c.Walk(fn)
	}
}

// Render writes the node and its descendants as source text.
func (n *Node) Render(w io.Writer) error {
	return n.render(w)
}

func (n *Node) render(w io.Writer) error {
	if len(n.raw) > 0 {
		if _, err := w.Write(n.raw); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := c.render(w); err != nil {
			return err
		}
	}
	if len(n.endRaw) > 0 {
		if _, err := w.Write(n.endRaw); err != nil {
			return err
		}
	}
	return nil
}
