package markup

import (
	"strings"

	"golang.org/x/net/html/atom"
)

// ServerAttr and ServerValue mark a script element for server execution:
// <script use="server">.
const (
	ServerAttr  = "use"
	ServerValue = "server"
)

// IsServerScript reports whether n is a script element flagged for server
// execution.
func IsServerScript(n *Node) bool {
	if n.Type != ElementNode || n.DataAtom != atom.Script {
		return false
	}
	v, ok := n.AttrValue(ServerAttr)
	return ok && strings.EqualFold(strings.TrimSpace(v), ServerValue)
}

// ServerScripts returns every server script element in document order.
func (d *Document) ServerScripts() []*Node {
	var found []*Node
	d.Root.Walk(func(n *Node) bool {
		if IsServerScript(n) {
			found = append(found, n)
			return false
		}
		return true
	})
	return found
}

// Extraction is the result of pulling server scripts out of a document.
type Extraction struct {
	// Script is the body of the first server script, empty when Count is 0.
	Script string
	// ScriptLine is the line the first server script starts on.
	ScriptLine int
	// Count is how many server script elements were removed.
	Count int
}

// Static reports whether the document had no server script.
func (e Extraction) Static() bool {
	return e.Count == 0
}

// Extract removes all server script elements from d. Only the first one's
// body is returned; the others are stripped from the output and ignored.
func Extract(d *Document) Extraction {
	scripts := d.ServerScripts()
	if len(scripts) == 0 {
		return Extraction{}
	}

	for _, s := range scripts {
		s.Remove()
	}

	return Extraction{
		Script:     scripts[0].InnerText(),
		ScriptLine: scripts[0].Line,
		Count:      len(scripts),
	}
}
