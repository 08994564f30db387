// Package markup parses page sources into a node tree and pulls server
// scripts out of it.
//
// The tree is built from the golang.org/x/net/html tokenizer rather than the
// full HTML5 tree builder: no elements are implied and nothing is
// reordered, so a page without server scripts serializes back to exactly
// the bytes it was parsed from. Template expressions in text and attribute
// values survive untouched for the same reason.
package markup

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// SyntaxError reports markup the parser cannot accept.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

// Document is a parsed page.
type Document struct {
	Root *Node
}

// String serializes the document back to markup.
func (d *Document) String() string {
	var buf bytes.Buffer
	_ = d.Root.Render(&buf)
	return buf.String()
}

// Option configures Parse.
type Option func(*parser)

// WithMaxBuffer caps the tokenizer buffer. A token larger than n bytes makes
// Parse fail. Zero means unlimited.
func WithMaxBuffer(n int) Option {
	return func(p *parser) {
		p.maxBuf = n
	}
}

// DecodeSource normalizes page bytes to UTF-8. A UTF-8 or UTF-16 byte order
// mark is honored and stripped; input without one is treated as UTF-8.
func DecodeSource(src []byte) ([]byte, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), src)
	if err != nil {
		return nil, fmt.Errorf("decoding source: %w", err)
	}
	return out, nil
}

type parser struct {
	z      *html.Tokenizer
	maxBuf int
	doc    *Node
	open   []*Node // stack of open elements, doc at the bottom
	line   int
}

// Parse builds a Document from src.
func Parse(src []byte, opts ...Option) (*Document, error) {
	p := &parser{
		doc:  &Node{Type: DocumentNode, Line: 1},
		line: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.open = []*Node{p.doc}

	p.z = html.NewTokenizer(bytes.NewReader(src))
	if p.maxBuf > 0 {
		p.z.SetMaxBuf(p.maxBuf)
	}

	if err := p.parse(); err != nil {
		return nil, err
	}
	return &Document{Root: p.doc}, nil
}

func (p *parser) top() *Node {
	return p.open[len(p.open)-1]
}

func (p *parser) parse() error {
	for {
		tt := p.z.Next()
		if tt == html.ErrorToken {
			err := p.z.Err()
			if err == io.EOF {
				// A tag cut off by the end of input is kept as text.
				if rest := p.z.Raw(); len(rest) > 0 {
					p.top().AppendChild(&Node{Type: TextNode, Line: p.line, raw: append([]byte(nil), rest...)})
				}
				return p.finish()
			}
			return &SyntaxError{Line: p.line, Msg: err.Error()}
		}

		raw := append([]byte(nil), p.z.Raw()...)
		p.handle(tt, raw)
		p.line += bytes.Count(raw, []byte{'\n'})
	}
}

func (p *parser) handle(tt html.TokenType, raw []byte) {
	switch tt {
	case html.TextToken:
		p.top().AppendChild(&Node{Type: TextNode, Data: string(p.z.Text()), Line: p.line, raw: raw})

	case html.CommentToken:
		p.top().AppendChild(&Node{Type: CommentNode, Data: string(p.z.Text()), Line: p.line, raw: raw})

	case html.DoctypeToken:
		p.top().AppendChild(&Node{Type: DoctypeNode, Data: string(p.z.Text()), Line: p.line, raw: raw})

	case html.StartTagToken, html.SelfClosingTagToken:
		n := p.element(raw)
		p.top().AppendChild(n)
		if opensScope(n, tt) {
			p.open = append(p.open, n)
		}

	case html.EndTagToken:
		name, _ := p.z.TagName()
		if !p.close(string(name), raw) {
			// A stray end tag is kept verbatim so output matches input.
			p.top().AppendChild(&Node{Type: TextNode, Line: p.line, raw: raw})
		}
	}
}

func (p *parser) element(raw []byte) *Node {
	name, hasAttr := p.z.TagName()
	n := &Node{
		Type:     ElementNode,
		Data:     string(name),
		DataAtom: atom.Lookup(name),
		Line:     p.line,
		raw:      raw,
	}
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = p.z.TagAttr()
		n.Attr = append(n.Attr, html.Attribute{Key: string(key), Val: string(val)})
	}
	return n
}

// close pops open elements up to and including the nearest one named name.
// Elements popped on the way are closed implicitly.
func (p *parser) close(name string, raw []byte) bool {
	for i := len(p.open) - 1; i > 0; i-- {
		if p.open[i].Data == name {
			p.open[i].endRaw = raw
			p.open = p.open[:i]
			return true
		}
	}
	return false
}

func (p *parser) finish() error {
	for _, n := range p.open[1:] {
		if n.DataAtom == atom.Script {
			return &SyntaxError{Line: n.Line, Msg: "unterminated <script> element"}
		}
	}
	p.open = p.open[:1]
	return nil
}

// opensScope reports whether a start tag leaves an element open for children.
func opensScope(n *Node, tt html.TokenType) bool {
	if isVoid(n.DataAtom) {
		return false
	}
	if tt == html.SelfClosingTagToken {
		// The tokenizer still switches to raw text after these, so their
		// content has to land inside them.
		return isRawText(n.DataAtom)
	}
	return true
}

func isVoid(a atom.Atom) bool {
	switch a {
	case atom.Area, atom.Base, atom.Br, atom.Col, atom.Embed, atom.Hr, atom.Img,
		atom.Input, atom.Link, atom.Meta, atom.Source, atom.Track, atom.Wbr:
		return true
	}
	return false
}

func isRawText(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Textarea, atom.Title, atom.Xmp,
		atom.Iframe, atom.Noembed, atom.Noframes, atom.Plaintext:
		return true
	}
	return false
}
