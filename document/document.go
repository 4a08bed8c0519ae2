// Package document wraps a parsed HTML tree with an index of its element
// nodes. Callers address elements by types.NodeID (document order) instead
// of holding node pointers, and every mutation goes through the Document so
// concurrent rewrites of the same tree stay consistent.
package document

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"golang.org/x/net/html"

	"github.com/cnosuke/pagemirror/types"
)

// ErrNodeNotFound is returned for a NodeID outside the document.
var ErrNodeNotFound = errors.New("node not found")

type Document struct {
	mu    sync.RWMutex
	root  *html.Node
	nodes []*html.Node
	ids   map[*html.Node]types.NodeID
}

// Parse reads an HTML document and indexes its element nodes.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HTML")
	}

	d := &Document{
		root: root,
		ids:  make(map[*html.Node]types.NodeID),
	}
	d.index(root)
	return d, nil
}

func (d *Document) index(n *html.Node) {
	if n.Type == html.ElementNode {
		d.ids[n] = types.NodeID(len(d.nodes))
		d.nodes = append(d.nodes, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.index(c)
	}
}

// Len returns the number of indexed elements.
func (d *Document) Len() int {
	return len(d.nodes)
}

func (d *Document) node(id types.NodeID) (*html.Node, error) {
	if id < 0 || int(id) >= len(d.nodes) {
		return nil, errors.Wrapf(ErrNodeNotFound, "node %d", id)
	}
	return d.nodes[id], nil
}

// Tag returns the lowercase tag name of the element, or "" if id is unknown.
func (d *Document) Tag(id types.NodeID) string {
	n, err := d.node(id)
	if err != nil {
		return ""
	}
	return n.Data
}

// Attr returns the value of the attribute key on the element.
func (d *Document) Attr(id types.NodeID, key string) (string, bool) {
	n, err := d.node(id)
	if err != nil {
		return "", false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Text returns the concatenated text children of the element. For <style>
// and <script> that is the raw element content.
func (d *Document) Text(id types.NodeID) string {
	n, err := d.node(id)
	if err != nil {
		return ""
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return textOf(n)
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// Select returns the IDs of elements matching a CSS selector, in document
// order.
func (d *Document) Select(selector string) []types.NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []types.NodeID
	goquery.NewDocumentFromNode(d.root).Find(selector).Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			if id, ok := d.ids[n]; ok {
				ids = append(ids, id)
			}
		}
	})
	return ids
}

// SetAttr replaces the value of an existing attribute.
func (d *Document) SetAttr(id types.NodeID, key, val string) (bool, error) {
	return d.UpdateAttr(id, key, func(string) string { return val })
}

// UpdateAttr rewrites an attribute value with fn while holding the document
// lock, so read-modify-write cycles on the same attribute never interleave.
// It reports whether the value changed.
func (d *Document) UpdateAttr(id types.NodeID, key string, fn func(string) string) (bool, error) {
	n, err := d.node(id)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i, a := range n.Attr {
		if a.Namespace != "" || a.Key != key {
			continue
		}
		updated := fn(a.Val)
		if updated == a.Val {
			return false, nil
		}
		n.Attr[i].Val = updated
		return true, nil
	}
	return false, errors.Newf("node %d has no attribute %q", id, key)
}

// UpdateText rewrites the text content of the element with fn. The element's
// text children are replaced by a single text node.
func (d *Document) UpdateText(id types.NodeID, fn func(string) string) (bool, error) {
	n, err := d.node(id)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	current := textOf(n)
	updated := fn(current)
	if updated == current {
		return false, nil
	}

	var first *html.Node
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode {
			if first == nil {
				first = c
			} else {
				n.RemoveChild(c)
			}
		}
		c = next
	}
	if first == nil {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: updated})
	} else {
		first.Data = updated
	}
	return true, nil
}

// Render serializes the document.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := html.Render(w, d.root); err != nil {
		return errors.Wrap(err, "failed to render HTML")
	}
	return nil
}

// Bytes serializes the document into memory.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
