package page

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Placeholder is one fragment sink in a Document. It satisfies fetchqueue.Sink.
type Placeholder struct {
	doc  *Document
	node *html.Node

	ID   string
	Name string
}

// Path is the fragment locator for this placeholder.
func (p *Placeholder) Path() string {
	return FragmentPath(p.Name)
}

// Install replaces the placeholder's children with content. Every <script> in
// content is removed from the installed markup and re-created, with the same
// attributes and inline text, as the last child of <body>.
func (p *Placeholder) Install(content []byte) error {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()

	nodes, err := html.ParseFragment(bytes.NewReader(content), p.node)
	if err != nil {
		return fmt.Errorf("parse fragment %s: %w", p.Name, err)
	}

	for c := p.node.FirstChild; c != nil; {
		next := c.NextSibling
		p.node.RemoveChild(c)
		c = next
	}

	var scripts []*html.Node
	for _, n := range nodes {
		scripts = append(scripts, collectScripts(n)...)
		if !isScript(n) {
			p.node.AppendChild(n)
		}
	}
	for _, s := range scripts {
		if s.Parent != nil {
			s.Parent.RemoveChild(s)
		}
		p.doc.body.AppendChild(recreateScript(s))
	}
	return nil
}

func isScript(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Script
}

func collectScripts(n *html.Node) []*html.Node {
	if isScript(n) {
		return []*html.Node{n}
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, collectScripts(c)...)
	}
	return out
}

// recreateScript builds a new script element with old's attributes and text.
func recreateScript(old *html.Node) *html.Node {
	s := &html.Node{
		Type:      html.ElementNode,
		Data:      "script",
		DataAtom:  atom.Script,
		Namespace: old.Namespace,
		Attr:      append([]html.Attribute(nil), old.Attr...),
	}
	if text := textContent(old); text != "" {
		s.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return s
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
