package page

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	articleTag  = "d-article"
	contentsTag = "d-contents"
	titleTag    = "d-title"
)

// GenerateTOC fills the first <d-contents> element with a table of contents
// built from the h2, h3 and h4 headings of the first <d-article>, then marks
// it prerendered. Headings directly inside <d-title> or carrying a no-toc
// attribute are left out; every listed heading gets an id derived from its
// text. ok is false, and the document untouched, when either element is missing.
func (d *Document) GenerateTOC() (entries int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	article := findElement(d.root, articleTag)
	toc := findElement(d.root, contentsTag)
	if article == nil || toc == nil {
		return 0, false
	}

	content := element("div", "class", "toc-content")
	stack := []*html.Node{content}
	prevLevel := 0
	for _, h := range tocHeadings(article) {
		id := headingID(h)
		setAttr(h, "id", id)

		level := headingLevel(h)
		for prevLevel < level {
			ul := element("ul")
			stack[len(stack)-1].AppendChild(ul)
			stack = append(stack, ul)
			prevLevel++
		}
		for prevLevel > level {
			stack = stack[:len(stack)-1]
			prevLevel--
		}

		link := element("a", "target", "_self", "href", "#"+id)
		link.AppendChild(text(textContent(h)))
		itemTag := "li"
		if level == 0 {
			itemTag = "div"
		}
		item := element(itemTag)
		item.AppendChild(link)
		stack[len(stack)-1].AppendChild(item)
		entries++
	}

	header := element("div", "class", "toc-header", "onclick", "toggleTOC()")
	title := element("span", "class", "toc-title")
	title.AppendChild(text("Table of Contents"))
	icon := element("span", "class", "toggle-icon")
	icon.AppendChild(text("▼"))
	header.AppendChild(title)
	header.AppendChild(icon)

	nav := element("nav", "role", "navigation", "class", "l-text figcaption")
	nav.AppendChild(header)
	nav.AppendChild(content)

	for c := toc.FirstChild; c != nil; {
		next := c.NextSibling
		toc.RemoveChild(c)
		c = next
	}
	toc.AppendChild(nav)
	setAttr(toc, "prerendered", "true")
	return entries, true
}

// tocHeadings returns the listable headings under article in document order.
func tocHeadings(article *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if headingLevel(c) >= 0 && !excludedHeading(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(article)
	return out
}

func excludedHeading(n *html.Node) bool {
	if n.Parent != nil && n.Parent.Type == html.ElementNode && n.Parent.Data == titleTag {
		return true
	}
	return hasAttr(n, "no-toc")
}

// headingLevel maps h2, h3 and h4 to 0, 1 and 2; anything else is -1.
func headingLevel(n *html.Node) int {
	if n.Type != html.ElementNode {
		return -1
	}
	switch n.DataAtom {
	case atom.H2:
		return 0
	case atom.H3:
		return 1
	case atom.H4:
		return 2
	default:
		return -1
	}
}

func headingID(n *html.Node) string {
	return strings.ReplaceAll(strings.ToLower(textContent(n)), " ", "_")
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// element builds an element node; attrs are key/value pairs.
func element(tag string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
