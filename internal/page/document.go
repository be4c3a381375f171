// Package page assembles an HTML document from fragment placeholders.
//
// A placeholder is any element whose id starts with a prefix ("fragment-" by
// default); the rest of the id names the fragment fetched from
// fragments/<name>.html. Installing a fragment replaces the placeholder's
// children and re-creates its <script> elements at the end of <body>.
package page

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultPrefix marks fragment placeholders.
const DefaultPrefix = "fragment-"

var errNoBody = errors.New("page: document has no body")

// Document is a parsed page. Installs may run concurrently; all tree
// mutations go through mu.
type Document struct {
	mu   sync.Mutex
	root *html.Node
	body *html.Node
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	body := findFirst(root, atom.Body)
	if body == nil {
		return nil, errNoBody
	}
	return &Document{root: root, body: body}, nil
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the document, returning "" if rendering fails.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// Placeholders returns the elements whose id starts with prefix, in document
// order. An id equal to the bare prefix names no fragment and is skipped.
func (d *Document) Placeholders(prefix string) []*Placeholder {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*Placeholder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			id := attr(n, "id")
			if name, ok := FragmentName(id, prefix); ok {
				out = append(out, &Placeholder{doc: d, node: n, ID: id, Name: name})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

// FragmentName strips prefix from id. ok is false when id does not carry the
// prefix or nothing follows it.
func FragmentName(id, prefix string) (string, bool) {
	if !strings.HasPrefix(id, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(id, prefix)
	return name, name != ""
}

// FragmentPath is the locator of a named fragment, relative to the page.
// A "/" in name nests the fragment in a subdirectory; each segment is
// path-escaped so characters such as "?", "#" and spaces stay part of the path.
func FragmentPath(name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return "fragments/" + strings.Join(segments, "/") + ".html"
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}
